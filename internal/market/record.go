package market

import (
	"strings"

	"conductor/internal/pkg/convert"
	"conductor/internal/pkg/maputil"
)

// PositionFromRecord converts a loosely typed broker or store record into a
// Position. Required fields are checked in order (id, symbol, symbol identity,
// quantity, side) and the first miss is returned as a ValidationError.
// Optional fields are coerced and defaulted.
func PositionFromRecord(rec map[string]any) (Position, error) {
	id := convert.ToString(lookup(rec, "id", "ID"))
	if id == "" {
		return Position{}, &ValidationError{Field: "id"}
	}

	sym, present := symbolFromRecord(rec)
	if !present {
		return Position{}, &ValidationError{Field: "symbol"}
	}
	if !sym.Valid() {
		return Position{}, &ValidationError{Field: "symbol", Reason: "name and exchange are required"}
	}

	rawQty, ok := maputil.Lookup(rec, "quantity", "qty")
	if !ok || convert.ToString(rawQty) == "" {
		return Position{}, &ValidationError{Field: "quantity"}
	}
	qty, err := convert.ToFloat64E(rawQty)
	if err != nil {
		return Position{}, &ValidationError{Field: "quantity", Reason: "not a number"}
	}

	rawSide := convert.ToString(lookup(rec, "side"))
	if rawSide == "" {
		return Position{}, &ValidationError{Field: "side"}
	}
	side := ParseSide(rawSide)
	if side == "" {
		return Position{}, &ValidationError{Field: "side", Reason: "must be buy or sell"}
	}

	p := NewPosition(id, sym, qty, side)
	if strings.EqualFold(convert.ToString(lookup(rec, "status")), string(StatusClosed)) {
		p.Status = StatusClosed
	}
	p.PL = convert.ToFloat64(lookup(rec, "pl", "unrealized_pl"))
	p.OpenPrice = convert.ToFloat64(lookup(rec, "openPrice", "open_price"))
	p.ClosePrice = convert.ToFloat64(lookup(rec, "closePrice", "close_price"))
	if p.OpenDate, err = convert.ToTime(lookup(rec, "openDate", "open_date")); err != nil {
		return Position{}, &ValidationError{Field: "openDate", Reason: err.Error()}
	}
	if p.CloseDate, err = convert.ToTime(lookup(rec, "closeDate", "close_date")); err != nil {
		return Position{}, &ValidationError{Field: "closeDate", Reason: err.Error()}
	}
	return p, nil
}

func lookup(rec map[string]any, keys ...string) any {
	v, _ := maputil.Lookup(rec, keys...)
	return v
}

// symbolFromRecord accepts a nested object, a Symbol value, or flat columns.
func symbolFromRecord(rec map[string]any) (Symbol, bool) {
	if raw, ok := maputil.Lookup(rec, "symbol"); ok {
		switch v := raw.(type) {
		case Symbol:
			return v, true
		case *Symbol:
			if v == nil {
				return Symbol{}, false
			}
			return *v, true
		}
	}
	if nested, ok := maputil.Map(rec, "symbol"); ok {
		return Symbol{
			Name:     convert.ToString(lookup(nested, "name")),
			Exchange: Exchange(convert.ToString(lookup(nested, "exchange", "exchangeName", "exchange_name"))),
		}, true
	}
	name := convert.ToString(lookup(rec, "symbolName", "symbol_name"))
	exchange := convert.ToString(lookup(rec, "symbolExchange", "symbol_exchange"))
	if name == "" && exchange == "" {
		if s, ok := rec["symbol"].(string); ok && strings.TrimSpace(s) != "" {
			return Symbol{Name: strings.TrimSpace(s)}, true
		}
		return Symbol{}, false
	}
	return Symbol{Name: name, Exchange: Exchange(exchange)}, true
}

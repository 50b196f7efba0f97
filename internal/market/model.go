package market

import (
	"strings"
	"time"
)

// Exchange names the venue a symbol trades on.
type Exchange string

const (
	ExchangeBinance  Exchange = "BINANCE"
	ExchangeBacktest Exchange = "BACKTEST"
)

// Symbol is identified by the (Name, Exchange) pair.
type Symbol struct {
	Name     string   `json:"name"`
	Exchange Exchange `json:"exchange"`
}

func (s Symbol) String() string {
	if s.Exchange == "" {
		return s.Name
	}
	return s.Name + "@" + string(s.Exchange)
}

// Valid reports whether both identity fields are set.
func (s Symbol) Valid() bool {
	return strings.TrimSpace(s.Name) != "" && strings.TrimSpace(string(s.Exchange)) != ""
}

// SymbolNames returns the names used for subscriptions, keeping order and duplicates.
func SymbolNames(symbols []Symbol) []string {
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		out = append(out, s.Name)
	}
	return out
}

// Tick is a single bid/ask observation.
type Tick struct {
	Symbol    Symbol    `json:"symbol"`
	AskPrice  float64   `json:"ask_price"`
	AskSize   float64   `json:"ask_size"`
	BidPrice  float64   `json:"bid_price"`
	BidSize   float64   `json:"bid_size"`
	Spread    float64   `json:"spread"`
	Timestamp time.Time `json:"timestamp"`
}

// NewTick builds a tick with the spread derived from ask and bid.
func NewTick(sym Symbol, askPrice, askSize, bidPrice, bidSize float64, ts time.Time) Tick {
	return Tick{
		Symbol:    sym,
		AskPrice:  askPrice,
		AskSize:   askSize,
		BidPrice:  bidPrice,
		BidSize:   bidSize,
		Spread:    askPrice - bidPrice,
		Timestamp: ts,
	}
}

// OHLC is one bar. Timestamp is the exact time of the first contributing
// observation; bucketing compares the minute-truncated value.
type OHLC struct {
	Symbol    Symbol    `json:"symbol"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// Field selects one price series from a bar.
type Field string

const (
	FieldOpen  Field = "open"
	FieldHigh  Field = "high"
	FieldLow   Field = "low"
	FieldClose Field = "close"
)

// ParseField falls back to close for unknown names.
func ParseField(name string) Field {
	switch Field(strings.ToLower(strings.TrimSpace(name))) {
	case FieldOpen:
		return FieldOpen
	case FieldHigh:
		return FieldHigh
	case FieldLow:
		return FieldLow
	default:
		return FieldClose
	}
}

// Value returns the price selected by f.
func (b OHLC) Value(f Field) float64 {
	switch f {
	case FieldOpen:
		return b.Open
	case FieldHigh:
		return b.High
	case FieldLow:
		return b.Low
	default:
		return b.Close
	}
}

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ParseSide accepts any casing; unknown values yield "".
func ParseSide(raw string) Side {
	switch Side(strings.ToLower(strings.TrimSpace(raw))) {
	case SideBuy, "long":
		return SideBuy
	case SideSell, "short":
		return SideSell
	default:
		return ""
	}
}

// Opposite is the side that flattens a position opened on s.
func (s Side) Opposite() Side {
	if s == SideSell {
		return SideBuy
	}
	return SideSell
}

type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Order is the immutable request submitted to a broker.
type Order struct {
	Symbol   Symbol  `json:"symbol"`
	Quantity float64 `json:"quantity"`
	Side     Side    `json:"side"`
	ID       string  `json:"id,omitempty"`
	PL       float64 `json:"pl,omitempty"`
}

// Validate checks the fields required before submission.
func (o Order) Validate() error {
	if !o.Symbol.Valid() {
		return &ValidationError{Field: "symbol"}
	}
	if o.Quantity <= 0 {
		return &ValidationError{Field: "quantity"}
	}
	if o.Side != SideBuy && o.Side != SideSell {
		return &ValidationError{Field: "side"}
	}
	return nil
}

// Position tracks one order from fill to close. ClosePrice doubles as the
// latest mark while the position is open.
type Position struct {
	ID         string     `json:"id"`
	Symbol     Symbol     `json:"symbol"`
	Quantity   float64    `json:"quantity"`
	Side       Side       `json:"side"`
	Status     Status     `json:"status"`
	PL         float64    `json:"pl"`
	OpenPrice  float64    `json:"open_price"`
	ClosePrice float64    `json:"close_price"`
	OpenDate   *time.Time `json:"open_date"`
	CloseDate  *time.Time `json:"close_date"`
}

// NewPosition returns an open position with zeroed prices and no dates.
func NewPosition(id string, sym Symbol, qty float64, side Side) Position {
	return Position{
		ID:       id,
		Symbol:   sym,
		Quantity: qty,
		Side:     side,
		Status:   StatusOpen,
	}
}

// Marked reports whether a mark price has been recorded.
func (p Position) Marked() bool {
	return p.ClosePrice != 0
}

func (p Position) IsOpen() bool {
	return p.Status != StatusClosed
}

// Account is reported by the broker or derived from stored positions.
type Account struct {
	ID       string  `json:"id"`
	Currency string  `json:"currency"`
	Balance  float64 `json:"balance"`
	Equity   float64 `json:"equity"`
	PL       float64 `json:"pl"`
}

// TimePtr is a small helper for optional dates.
func TimePtr(t time.Time) *time.Time {
	return &t
}

package market

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var btc = Symbol{Name: "BTCUSDT", Exchange: ExchangeBinance}

func TestNewTickDerivesSpread(t *testing.T) {
	tick := NewTick(btc, 101.5, 2, 100.25, 3, time.Now())
	assert.InDelta(t, 1.25, tick.Spread, 1e-9)
	assert.Equal(t, tick.AskPrice-tick.BidPrice, tick.Spread)
}

func TestCalculatePL(t *testing.T) {
	assert.Equal(t, 500.0, CalculatePL(SideBuy, 10, 50, 100))
	assert.Equal(t, -500.0, CalculatePL(SideSell, 10, 50, 100))
	assert.Equal(t, 0.0, CalculatePL(SideBuy, 10, 50, 50))
	// decimal arithmetic keeps this exact
	assert.Equal(t, 0.3, CalculatePL(SideBuy, 3, 0.1, 0.2))
}

func TestOrderValidate(t *testing.T) {
	assert.NoError(t, Order{Symbol: btc, Quantity: 1, Side: SideBuy}.Validate())
	err := Order{Symbol: btc, Quantity: 0, Side: SideBuy}.Validate()
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "quantity", ve.Field)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestPositionFromRecordValidationOrder(t *testing.T) {
	cases := []struct {
		name  string
		rec   map[string]any
		field string
	}{
		{"everything missing", map[string]any{}, "id"},
		{"missing symbol", map[string]any{"id": "p1", "quantity": 1, "side": "buy"}, "symbol"},
		{"symbol without exchange", map[string]any{"id": "p1", "symbol": map[string]any{"name": "BTCUSDT"}}, "symbol"},
		{"missing quantity", map[string]any{"id": "p1", "symbol": btc, "side": "buy"}, "quantity"},
		{"missing side", map[string]any{"id": "p1", "symbol": btc, "quantity": "2"}, "side"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := PositionFromRecord(tc.rec)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)
			assert.True(t, errors.Is(err, ErrValidation))
		})
	}
}

func TestPositionFromRecordCoercesAndDefaults(t *testing.T) {
	p, err := PositionFromRecord(map[string]any{
		"id":        "p1",
		"symbol":    map[string]any{"name": "BTCUSDT", "exchangeName": "BINANCE"},
		"quantity":  "0.5",
		"side":      "BUY",
		"openPrice": "100.5",
		"openDate":  "2024-03-01T10:15:00Z",
	})
	require.NoError(t, err)
	assert.Equal(t, btc, p.Symbol)
	assert.Equal(t, 0.5, p.Quantity)
	assert.Equal(t, SideBuy, p.Side)
	assert.Equal(t, StatusOpen, p.Status)
	assert.Equal(t, 100.5, p.OpenPrice)
	assert.Equal(t, 0.0, p.ClosePrice)
	assert.Equal(t, 0.0, p.PL)
	require.NotNil(t, p.OpenDate)
	assert.Nil(t, p.CloseDate)
}

func TestPositionFromRecordFlatColumns(t *testing.T) {
	p, err := PositionFromRecord(map[string]any{
		"id":              "p2",
		"symbol_name":     "ETHUSDT",
		"symbol_exchange": "BINANCE",
		"quantity":        3.0,
		"side":            "sell",
		"status":          "closed",
		"close_price":     1800.0,
		"pl":              nil,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, p.Status)
	assert.Equal(t, 1800.0, p.ClosePrice)
	assert.Equal(t, 0.0, p.PL)
}

func TestSymbolNamesKeepsDuplicates(t *testing.T) {
	names := SymbolNames([]Symbol{btc, {Name: "ETHUSDT", Exchange: ExchangeBinance}, btc})
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT", "BTCUSDT"}, names)
}

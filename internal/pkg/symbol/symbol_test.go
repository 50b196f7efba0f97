package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	assert.Equal(t, Symbol{Base: "BTC", Quote: "USDT"}, Parse("btc/usdt"))
	assert.Equal(t, Symbol{Base: "ETH", Quote: "USDT"}, Parse("ETHUSDT"))
	assert.Equal(t, Symbol{Base: "SOL", Quote: "USDT"}, Parse("SOL/USDT:USDT"))
	assert.Equal(t, Symbol{}, Parse("USDT"))
	assert.False(t, IsValid("nonsense"))
}

func TestNormalizeListKeepsOrderAndDuplicates(t *testing.T) {
	got := NormalizeList([]string{"btc/usdt", " ETHUSDT ", "", "btcusdt"}, Binance)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT", "BTCUSDT"}, got)
	assert.Equal(t, []string{"BTC/USDT"}, NormalizeList([]string{"BTCUSDT"}, nil))
}

func TestBinanceConverter(t *testing.T) {
	assert.Equal(t, "BTCUSDT", Binance.ToExchange("btc/usdt"))
	assert.Equal(t, "BTC/USDT", Binance.FromExchange("BTCUSDT"))
	assert.Equal(t, FormatBinance, Binance.Format())
}

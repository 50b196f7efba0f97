package gateway

import (
	"testing"

	"conductor/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLiveClientBinance(t *testing.T) {
	cfg := &config.Config{Binance: config.BinanceConfig{RESTBaseURL: "http://127.0.0.1:1", HTTPTimeoutSeconds: 1}}
	for _, name := range []string{"", "binance", "BINANCE"} {
		c, err := NewLiveClient(name, cfg)
		require.NoError(t, err, name)
		assert.Equal(t, "BINANCE", c.Name())
		assert.NoError(t, c.Close())
	}
}

func TestNewLiveClientRejectsUnknownExchange(t *testing.T) {
	_, err := NewLiveClient("KRAKEN", &config.Config{})
	assert.ErrorContains(t, err, "unsupported live exchange")

	_, err = NewLiveClient("BINANCE", nil)
	assert.Error(t, err)
}

func TestNewBinanceFromConfigRejectsBadProxy(t *testing.T) {
	_, err := NewBinanceFromConfig(config.BinanceConfig{
		Proxy: config.ProxyConfig{Enabled: true, RESTURL: "://bad"},
	})
	assert.Error(t, err)
}

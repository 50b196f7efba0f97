// Package gateway picks the upstream venue client for a configured exchange.
package gateway

import (
	"fmt"
	"strings"
	"time"

	"conductor/internal/config"
	"conductor/internal/gateway/binance"
	"conductor/internal/market"
)

// NewBinanceFromConfig maps the binance config section onto a client.
func NewBinanceFromConfig(cfg config.BinanceConfig) (*binance.Client, error) {
	return binance.New(binance.Config{
		APIKey:           cfg.APIKey,
		APISecret:        cfg.APISecret,
		RESTBaseURL:      cfg.RESTBaseURL,
		HTTPTimeout:      time.Duration(cfg.HTTPTimeoutSeconds) * time.Second,
		ProxyEnabled:     cfg.Proxy.Enabled,
		RESTProxyURL:     cfg.Proxy.RESTURL,
		WSProxyURL:       cfg.Proxy.WSURL,
		BreakerThreshold: cfg.BreakerThreshold,
		BreakerTimeout:   time.Duration(cfg.BreakerTimeoutSeconds) * time.Second,
	})
}

// NewLiveClient returns the client for a live run on exchange.
func NewLiveClient(exchange string, cfg *config.Config) (*binance.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	switch market.Exchange(strings.ToUpper(strings.TrimSpace(exchange))) {
	case "", market.ExchangeBinance:
		return NewBinanceFromConfig(cfg.Binance)
	default:
		return nil, fmt.Errorf("unsupported live exchange: %s", exchange)
	}
}

// Package binance connects the orchestrator and the reconciler to Binance
// USDⓈ-M futures through go-binance.
package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"conductor/internal/gateway/exchange"
	"conductor/internal/logger"
	"conductor/internal/market"
	"conductor/internal/pkg/circuit"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
)

// klineFetcher is the REST klines call, replaceable in tests.
type klineFetcher func(ctx context.Context, symbol, interval string, start, end time.Time, limit int) ([]*futures.Kline, error)

// Client implements exchange.MarketData and exchange.Broker.
type Client struct {
	cfg     Config
	client  *futures.Client
	breaker *circuit.CircuitBreaker
	klines  klineFetcher

	cbMu      sync.RWMutex
	onConnect func()
	onError   func(error)
	onQuote   func(exchange.Quote)
	onBar     func(market.OHLC)

	mu          sync.Mutex
	quoteCancel context.CancelFunc
	barCancel   context.CancelFunc
}

var (
	_ exchange.MarketData = (*Client)(nil)
	_ exchange.Broker     = (*Client)(nil)
)

func New(cfg Config) (*Client, error) {
	final := cfg.withDefaults()
	client := futures.NewClient(final.APIKey, final.APISecret)
	client.BaseURL = final.RESTBaseURL
	httpClient := &http.Client{Timeout: final.HTTPTimeout}
	if final.ProxyEnabled && final.RESTProxyURL != "" {
		proxyURL, err := url.Parse(final.RESTProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	client.HTTPClient = httpClient
	if final.ProxyEnabled {
		wsProxy := final.WSProxyURL
		if wsProxy == "" {
			wsProxy = final.RESTProxyURL
		}
		if wsProxy != "" {
			futures.SetWsProxyUrl(wsProxy)
		}
	}
	c := &Client{
		cfg:     final,
		client:  client,
		breaker: circuit.NewCircuitBreaker("binance-rest", final.BreakerThreshold, final.BreakerTimeout),
	}
	c.klines = c.fetchKlines
	return c, nil
}

func (c *Client) Name() string { return string(market.ExchangeBinance) }

func (c *Client) OnConnect(fn func()) { c.setCallback(func() { c.onConnect = fn }) }

func (c *Client) OnError(fn func(error)) { c.setCallback(func() { c.onError = fn }) }

func (c *Client) OnQuote(fn func(exchange.Quote)) { c.setCallback(func() { c.onQuote = fn }) }

func (c *Client) OnBar(fn func(market.OHLC)) { c.setCallback(func() { c.onBar = fn }) }

func (c *Client) setCallback(set func()) {
	c.cbMu.Lock()
	set()
	c.cbMu.Unlock()
}

// Connect checks REST reachability. Streams are opened per subscription,
// so a successful ping is what counts as connected.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.guard(func() error { return c.client.NewPingService().Do(ctx) }); err != nil {
		return fmt.Errorf("ping binance: %w", err)
	}
	c.cbMu.RLock()
	fn := c.onConnect
	c.cbMu.RUnlock()
	if fn != nil {
		fn()
	}
	return nil
}

// Close stops every open stream.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.quoteCancel != nil {
		c.quoteCancel()
		c.quoteCancel = nil
	}
	if c.barCancel != nil {
		c.barCancel()
		c.barCancel = nil
	}
	return nil
}

// guard runs a REST call through the breaker. API errors are venue answers
// and do not count as transport failures.
func (c *Client) guard(fn func() error) error {
	return c.breaker.Execute(fn, common.IsAPIError)
}

func (c *Client) emitError(err error) {
	if err == nil {
		return
	}
	c.cbMu.RLock()
	fn := c.onError
	c.cbMu.RUnlock()
	if fn != nil {
		fn(err)
		return
	}
	logger.Warnf("[binance] %v", err)
}

func (c *Client) fetchKlines(ctx context.Context, symbol, interval string, start, end time.Time, limit int) ([]*futures.Kline, error) {
	var out []*futures.Kline
	err := c.guard(func() error {
		kls, err := c.client.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			StartTime(start.UnixMilli()).
			EndTime(end.UnixMilli()).
			Limit(limit).
			Do(ctx)
		out = kls
		return err
	})
	return out, err
}

func normalizeInterval(tf string) string {
	tf = strings.ToLower(strings.TrimSpace(tf))
	switch tf {
	case "", "1min":
		return "1m"
	case "1hour":
		return "1h"
	case "1day":
		return "1d"
	}
	return tf
}

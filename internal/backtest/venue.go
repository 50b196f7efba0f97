// Package backtest replays recorded history through the connector as if it
// came from a venue, fills orders at the replayed price and reports the
// result.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"conductor/internal/gateway/exchange"
	"conductor/internal/logger"
	"conductor/internal/market"
	"conductor/internal/position"
	"conductor/internal/store"

	"github.com/google/uuid"
)

var errNoPrice = errors.New("no simulated price yet")

// Venue is the simulated exchange behind a backtest. It serves history from
// a HistorySource and fills market orders at the price last pushed through
// UpdatePrice.
type Venue struct {
	name    market.Exchange
	source  HistorySource
	store   store.PositionStore
	account *position.BacktestAccount

	cbMu      sync.RWMutex
	onConnect func()
	onError   func(error)

	mu    sync.RWMutex
	price float64
	date  time.Time
}

var (
	_ exchange.MarketData      = (*Venue)(nil)
	_ exchange.Broker          = (*Venue)(nil)
	_ exchange.BacktestControl = (*Venue)(nil)
)

type VenueConfig struct {
	Exchange        market.Exchange
	Source          HistorySource
	Store           store.PositionStore
	StartingBalance float64
	Currency        string
}

func NewVenue(cfg VenueConfig) (*Venue, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("history source is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("position store is required")
	}
	name := cfg.Exchange
	if name == "" {
		name = market.ExchangeBacktest
	}
	return &Venue{
		name:    name,
		source:  cfg.Source,
		store:   cfg.Store,
		account: position.NewBacktestAccount(cfg.Store, cfg.StartingBalance, cfg.Currency),
	}, nil
}

func (v *Venue) Name() string { return string(v.name) }

func (v *Venue) OnConnect(fn func()) {
	v.cbMu.Lock()
	v.onConnect = fn
	v.cbMu.Unlock()
}

func (v *Venue) OnError(fn func(error)) {
	v.cbMu.Lock()
	v.onError = fn
	v.cbMu.Unlock()
}

// Quotes and bars are driven by the replay, not pushed by the venue.
func (v *Venue) OnQuote(func(exchange.Quote)) {}

func (v *Venue) OnBar(func(market.OHLC)) {}

// Connect confirms immediately.
func (v *Venue) Connect(context.Context) error {
	v.cbMu.RLock()
	fn := v.onConnect
	v.cbMu.RUnlock()
	logger.Infof("backtest: venue %s connected (history from %s)", v.name, v.source.Name())
	if fn != nil {
		fn()
	}
	return nil
}

func (v *Venue) SubscribeQuotes(context.Context, []string) error { return nil }

func (v *Venue) SubscribeBars(context.Context, []string) error { return nil }

// HistoricalBars concatenates the source's bars for every symbol.
func (v *Venue) HistoricalBars(ctx context.Context, symbols []string, req market.HistoryRequest) (market.BarSequence, error) {
	seqs := make([]market.BarSequence, 0, len(symbols))
	for _, name := range symbols {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		seq, err := v.source.Bars(ctx, market.Symbol{Name: name, Exchange: v.name}, req)
		if err != nil {
			return nil, fmt.Errorf("history %s: %w", name, err)
		}
		seqs = append(seqs, seq)
	}
	return market.Concat(seqs...), nil
}

func (v *Venue) UpdatePrice(price float64) {
	v.mu.Lock()
	v.price = price
	v.mu.Unlock()
}

func (v *Venue) UpdateDate(t time.Time) {
	v.mu.Lock()
	v.date = t
	v.mu.Unlock()
}

// Clock returns the replayed date, falling back to the wall clock before the
// first update.
func (v *Venue) Clock() time.Time {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.date.IsZero() {
		return time.Now()
	}
	return v.date
}

func (v *Venue) current() (float64, time.Time) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.price, v.date
}

// CreateOrder fills the whole quantity at the current price.
func (v *Venue) CreateOrder(_ context.Context, order market.Order) (exchange.Fill, error) {
	price, date := v.current()
	if price <= 0 {
		return exchange.Fill{}, market.Rejected(errNoPrice)
	}
	return exchange.Fill{
		OrderID:   uuid.NewString(),
		FilledQty: order.Quantity,
		AvgPrice:  price,
		FilledAt:  date,
	}, nil
}

// OpenPositions reports the stored open positions marked at the current price.
func (v *Venue) OpenPositions(ctx context.Context) ([]exchange.BrokerPosition, error) {
	stored, err := v.store.GetPositions(ctx)
	if err != nil {
		return nil, err
	}
	price, _ := v.current()
	out := make([]exchange.BrokerPosition, 0, len(stored))
	for _, p := range stored {
		if !p.IsOpen() {
			continue
		}
		out = append(out, v.brokerPosition(p, price))
	}
	return out, nil
}

// ClosePosition flattens the first open position on sym at the current price.
func (v *Venue) ClosePosition(ctx context.Context, sym market.Symbol) (exchange.BrokerPosition, error) {
	price, _ := v.current()
	if price <= 0 {
		return exchange.BrokerPosition{}, market.Rejected(errNoPrice)
	}
	stored, err := v.store.GetPositions(ctx)
	if err != nil {
		return exchange.BrokerPosition{}, err
	}
	for _, p := range stored {
		if p.IsOpen() && strings.EqualFold(p.Symbol.Name, sym.Name) {
			return v.brokerPosition(p, price), nil
		}
	}
	return exchange.BrokerPosition{}, fmt.Errorf("%w: %s", market.ErrPositionNotFound, sym)
}

func (v *Venue) brokerPosition(p market.Position, price float64) exchange.BrokerPosition {
	bp := exchange.BrokerPosition{
		Symbol:        p.Symbol,
		Quantity:      p.Quantity,
		Side:          p.Side,
		AvgEntryPrice: p.OpenPrice,
		CurrentPrice:  price,
	}
	if price > 0 {
		bp.UnrealizedPL = market.CalculatePL(p.Side, p.Quantity, p.OpenPrice, price)
	}
	return bp
}

func (v *Venue) Account(ctx context.Context) (market.Account, error) {
	return v.account.Account(ctx)
}

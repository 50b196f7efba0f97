package exchange

import (
	"context"
	"time"

	"conductor/internal/market"
)

// MarketData is the streaming side of a connector. Callbacks must be
// registered before Connect; implementations may invoke them from their own
// goroutines.
type MarketData interface {
	Name() string

	OnConnect(fn func())
	OnError(fn func(error))
	OnQuote(fn func(Quote))
	OnBar(fn func(market.OHLC))

	Connect(ctx context.Context) error

	SubscribeQuotes(ctx context.Context, symbols []string) error
	SubscribeBars(ctx context.Context, symbols []string) error

	// HistoricalBars returns a forward-only sequence covering req. Pages are
	// fetched lazily as the sequence is consumed.
	HistoricalBars(ctx context.Context, symbols []string, req market.HistoryRequest) (market.BarSequence, error)
}

// Broker places orders and reports positions and balances.
type Broker interface {
	// CreateOrder fails with an error wrapping market.ErrOrderRejected when
	// the venue refuses the order.
	CreateOrder(ctx context.Context, order market.Order) (Fill, error)

	OpenPositions(ctx context.Context) ([]BrokerPosition, error)

	ClosePosition(ctx context.Context, sym market.Symbol) (BrokerPosition, error)

	// Account fails with an error wrapping market.ErrAccountNotFound.
	Account(ctx context.Context) (market.Account, error)
}

// BacktestControl lets the replay loop move the simulated clock and price.
// Only simulated brokers implement it.
type BacktestControl interface {
	UpdatePrice(price float64)
	UpdateDate(t time.Time)
}

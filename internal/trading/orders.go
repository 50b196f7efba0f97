package trading

import (
	"context"
	"errors"
	"time"

	"conductor/internal/market"
)

var errNoRouter = errors.New("no order router attached")

// OrderRouter is the reconciling order path.
type OrderRouter interface {
	CreateOrder(ctx context.Context, order market.Order) (market.Position, error)
	GetPositions(ctx context.Context) ([]market.Position, error)
	ClosePosition(ctx context.Context, id string) (market.Position, error)
	ClosedPositions(ctx context.Context, symbols []market.Symbol, since time.Time) ([]market.Position, error)
}

// Orders is the strategy-facing order API.
type Orders struct {
	router OrderRouter
}

func NewOrders(router OrderRouter) *Orders {
	return &Orders{router: router}
}

func (o *Orders) Buy(ctx context.Context, sym market.Symbol, qty float64) (market.Position, error) {
	return o.submit(ctx, market.Order{Symbol: sym, Quantity: qty, Side: market.SideBuy})
}

func (o *Orders) Sell(ctx context.Context, sym market.Symbol, qty float64) (market.Position, error) {
	return o.submit(ctx, market.Order{Symbol: sym, Quantity: qty, Side: market.SideSell})
}

func (o *Orders) submit(ctx context.Context, order market.Order) (market.Position, error) {
	if o == nil || o.router == nil {
		return market.Position{}, errNoRouter
	}
	if err := order.Validate(); err != nil {
		return market.Position{}, err
	}
	return o.router.CreateOrder(ctx, order)
}

// Positions lists open positions reconciled against the broker.
func (o *Orders) Positions(ctx context.Context) ([]market.Position, error) {
	if o == nil || o.router == nil {
		return nil, errNoRouter
	}
	return o.router.GetPositions(ctx)
}

func (o *Orders) Close(ctx context.Context, id string) (market.Position, error) {
	if o == nil || o.router == nil {
		return market.Position{}, errNoRouter
	}
	return o.router.ClosePosition(ctx, id)
}

// ClosedPositions returns stored closed positions for symbols since the given time.
func (o *Orders) ClosedPositions(ctx context.Context, symbols []market.Symbol, since time.Time) ([]market.Position, error) {
	if o == nil || o.router == nil {
		return nil, errNoRouter
	}
	return o.router.ClosedPositions(ctx, symbols, since)
}

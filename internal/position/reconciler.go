// Package position keeps broker-side positions and the local store in step
// and derives P&L from them.
package position

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"conductor/internal/eventbus"
	"conductor/internal/gateway/exchange"
	"conductor/internal/logger"
	"conductor/internal/market"
	"conductor/internal/store"
	"conductor/internal/trading"

	"github.com/google/uuid"
)

// Publisher receives order lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, ev eventbus.Event) error
}

// Reconciler routes orders to the broker and persists the resulting
// positions. Each store row is written on its own; a position closed
// externally between a read and the following write is not detected.
type Reconciler struct {
	broker exchange.Broker
	store  store.PositionStore
	events Publisher
	now    func() time.Time
}

var _ trading.OrderRouter = (*Reconciler)(nil)

type Option func(*Reconciler)

// WithClock overrides time.Now, mainly for backtests and tests.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

func WithPublisher(p Publisher) Option {
	return func(r *Reconciler) { r.events = p }
}

func NewReconciler(broker exchange.Broker, st store.PositionStore, opts ...Option) *Reconciler {
	r := &Reconciler{broker: broker, store: st, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateOrder submits order and stores the filled position. Nothing is
// stored when the broker refuses the order.
func (r *Reconciler) CreateOrder(ctx context.Context, order market.Order) (market.Position, error) {
	if err := order.Validate(); err != nil {
		return market.Position{}, err
	}
	fill, err := r.broker.CreateOrder(ctx, order)
	if err != nil {
		if !errors.Is(err, market.ErrOrderRejected) {
			err = market.Rejected(err)
		}
		logger.Warnf("reconciler: order %s %v %s rejected: %v", order.Side, order.Quantity, order.Symbol, err)
		return market.Position{}, err
	}

	id := strings.TrimSpace(fill.OrderID)
	if id == "" {
		id = uuid.NewString()
	}
	qty := fill.FilledQty
	if qty <= 0 {
		qty = order.Quantity
	}
	opened := fill.FilledAt
	if opened.IsZero() {
		opened = r.now()
	}
	p := market.NewPosition(id, order.Symbol, qty, order.Side)
	p.OpenDate = market.TimePtr(opened)
	p.OpenPrice = fill.AvgPrice
	p.PL = fill.UnrealizedPL

	if err := r.SavePosition(ctx, p); err != nil {
		return p, fmt.Errorf("persist position %s: %w", p.ID, err)
	}
	logger.Infof("reconciler: opened %s %s qty=%v at %v", p.ID, p.Symbol, p.Quantity, p.OpenPrice)
	r.publish(ctx, eventbus.OrderCreated, p)
	return p, nil
}

// GetPositions marks every stored open position that the broker still
// reports and drops the rest. Upstream failures yield an empty result.
func (r *Reconciler) GetPositions(ctx context.Context) ([]market.Position, error) {
	remote, err := r.broker.OpenPositions(ctx)
	if err != nil {
		logger.Errorf("reconciler: broker positions: %v", err)
		return []market.Position{}, nil
	}
	local, err := r.openPositions(ctx)
	if err != nil {
		logger.Errorf("reconciler: stored positions: %v", err)
		return []market.Position{}, nil
	}

	out := make([]market.Position, 0, len(local))
	for _, p := range local {
		bp, ok := counterpart(remote, p.Symbol)
		if !ok {
			continue
		}
		marked := r.mark(p, bp)
		if err := r.store.UpdatePosition(ctx, marked); err != nil {
			logger.Warnf("reconciler: update %s: %v", marked.ID, err)
		}
		out = append(out, marked)
	}
	return out, nil
}

// ClosePosition closes the stored position id at the broker and records
// the realized result. An order-closed event is published even when the
// broker call fails; the row is only marked closed when it succeeds.
func (r *Reconciler) ClosePosition(ctx context.Context, id string) (market.Position, error) {
	stored, err := r.store.GetPosition(ctx, id)
	if err != nil {
		return market.Position{}, err
	}

	var (
		markPrice float64
		markPL    float64
		haveMark  bool
	)
	if remote, err := r.broker.OpenPositions(ctx); err != nil {
		logger.Warnf("reconciler: broker positions for close %s: %v", id, err)
	} else if bp, ok := counterpart(remote, stored.Symbol); ok {
		markPrice, markPL, haveMark = bp.MarkPrice(), bp.UnrealizedPL, true
	}

	closed, closeErr := r.broker.ClosePosition(ctx, stored.Symbol)
	if closeErr == nil && !haveMark && closed.MarkPrice() != 0 {
		markPrice, markPL, haveMark = closed.MarkPrice(), closed.UnrealizedPL, true
	}

	p := stored
	p.Status = market.StatusClosed
	p.CloseDate = market.TimePtr(r.now())
	switch {
	case haveMark:
		p.ClosePrice, p.PL = markPrice, markPL
	default:
		p.ClosePrice, p.PL = stored.ClosePrice, stored.PL
	}

	if closeErr != nil {
		logger.Errorf("reconciler: broker close %s: %v", id, closeErr)
		r.publish(ctx, eventbus.OrderClosed, p)
		return p, fmt.Errorf("close %s at broker: %w", id, closeErr)
	}
	if err := r.SavePosition(ctx, p); err != nil {
		logger.Errorf("reconciler: persist close %s: %v", id, err)
		r.publish(ctx, eventbus.OrderClosed, p)
		return p, fmt.Errorf("persist close %s: %w", id, err)
	}
	logger.Infof("reconciler: closed %s %s at %v pl=%v", p.ID, p.Symbol, p.ClosePrice, p.PL)
	r.publish(ctx, eventbus.OrderClosed, p)
	return p, nil
}

// ClosedPositions returns stored closed positions on any of symbols that
// closed at or after since. An empty symbol list matches everything.
func (r *Reconciler) ClosedPositions(ctx context.Context, symbols []market.Symbol, since time.Time) ([]market.Position, error) {
	all, err := r.store.GetPositions(ctx)
	if err != nil {
		return nil, err
	}
	want := make(map[market.Symbol]struct{}, len(symbols))
	for _, s := range symbols {
		want[s] = struct{}{}
	}
	out := make([]market.Position, 0)
	for _, p := range all {
		if p.IsOpen() {
			continue
		}
		if len(want) > 0 {
			if _, ok := want[p.Symbol]; !ok {
				continue
			}
		}
		if p.CloseDate != nil && p.CloseDate.Before(since) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// SavePosition picks the write path from the position state:
// no id is a no-op, open and unmarked inserts, open and marked updates,
// and closed performs the close update.
func (r *Reconciler) SavePosition(ctx context.Context, p market.Position) error {
	switch {
	case strings.TrimSpace(p.ID) == "":
		return nil
	case p.IsOpen() && !p.Marked():
		return r.store.CreatePosition(ctx, p)
	case p.IsOpen():
		return r.store.UpdatePosition(ctx, p)
	default:
		return r.closeUpdate(ctx, p)
	}
}

func (r *Reconciler) closeUpdate(ctx context.Context, p market.Position) error {
	if p.CloseDate == nil {
		p.CloseDate = market.TimePtr(r.now())
	}
	return r.store.UpdatePosition(ctx, p)
}

func (r *Reconciler) openPositions(ctx context.Context) ([]market.Position, error) {
	all, err := r.store.GetPositions(ctx)
	if err != nil {
		return nil, err
	}
	open := all[:0:0]
	for _, p := range all {
		if p.IsOpen() {
			open = append(open, p)
		}
	}
	return open, nil
}

func (r *Reconciler) mark(p market.Position, bp exchange.BrokerPosition) market.Position {
	p.ClosePrice = bp.MarkPrice()
	p.PL = bp.UnrealizedPL
	p.CloseDate = market.TimePtr(r.now())
	return p
}

func (r *Reconciler) publish(ctx context.Context, name eventbus.Name, p market.Position) {
	if r.events == nil {
		return
	}
	snapshot := p
	_ = r.events.Publish(ctx, eventbus.Event{Name: name, Position: &snapshot})
}

// counterpart finds the broker position for sym. Brokers often report a
// different venue label than the configured one, so names are compared
// alone when the exchanges disagree.
func counterpart(remote []exchange.BrokerPosition, sym market.Symbol) (exchange.BrokerPosition, bool) {
	var byName *exchange.BrokerPosition
	for i := range remote {
		bp := remote[i]
		if !strings.EqualFold(bp.Symbol.Name, sym.Name) {
			continue
		}
		if bp.Symbol.Exchange == sym.Exchange {
			return bp, true
		}
		if byName == nil {
			byName = &remote[i]
		}
	}
	if byName != nil {
		return *byName, true
	}
	return exchange.BrokerPosition{}, false
}

// Package connector drives a strategy from a live feed or a historical
// replay through one event contract.
package connector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"conductor/internal/aggregator"
	"conductor/internal/eventbus"
	"conductor/internal/gateway/exchange"
	"conductor/internal/logger"
	"conductor/internal/market"
	"conductor/internal/trading"
)

// ErrNoSymbols is recorded when a run is started without symbols.
var ErrNoSymbols = errors.New("no symbol to subscribe")

// Orchestrator is implemented by the live and backtest connectors. Run
// returns once streaming has been scheduled; Done is closed at termination.
type Orchestrator interface {
	Run(ctx context.Context) error
	Bus() *eventbus.Bus
	Context() *trading.Context
	State() State
	Status() Status
	Done() <-chan struct{}
	Wait(ctx context.Context) error
}

// HistoryWindow bounds the bootstrap fetch relative to the start time.
type HistoryWindow struct {
	Lookback  time.Duration
	EndOffset time.Duration
	Timeframe string
}

func (w HistoryWindow) request(now time.Time) market.HistoryRequest {
	tf := w.Timeframe
	if tf == "" {
		tf = "1m"
	}
	return market.HistoryRequest{
		Start:     now.Add(-w.Lookback).Truncate(time.Second),
		End:       now.Add(-w.EndOffset).Truncate(time.Second),
		Timeframe: tf,
	}
}

type base struct {
	mode string
	md   exchange.MarketData
	bus  *eventbus.Bus
	tc   *trading.Context
	now  func() time.Time

	state  atomic.Int32
	status *statusTracker

	doneOnce sync.Once
	done     chan struct{}
	started  atomic.Bool
}

func newBase(mode string, md exchange.MarketData, bus *eventbus.Bus, tc *trading.Context) *base {
	if bus == nil {
		bus = eventbus.New()
	}
	if tc == nil {
		tc = trading.NewContext()
	}
	b := &base{
		mode:   mode,
		md:     md,
		bus:    bus,
		tc:     tc,
		now:    time.Now,
		status: newStatusTracker(mode),
		done:   make(chan struct{}),
	}
	return b
}

func (b *base) Bus() *eventbus.Bus { return b.bus }

func (b *base) Context() *trading.Context { return b.tc }

func (b *base) State() State { return State(b.state.Load()) }

func (b *base) Status() Status { return b.status.snapshot() }

func (b *base) Done() <-chan struct{} { return b.done }

// Wait blocks until the run terminates or ctx ends.
func (b *base) Wait(ctx context.Context) error {
	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *base) setState(s State) {
	b.state.Store(int32(s))
	b.status.setState(s)
	logger.Debugf("connector[%s]: state -> %s", b.mode, s)
}

func (b *base) begin() error {
	if !b.started.CompareAndSwap(false, true) {
		return fmt.Errorf("connector[%s]: already running", b.mode)
	}
	b.setState(StateConnecting)
	return nil
}

func (b *base) terminate(err error) {
	b.doneOnce.Do(func() {
		if err != nil {
			b.status.setErr(err)
		}
		b.setState(StateTerminated)
		close(b.done)
	})
}

func (b *base) publish(ctx context.Context, name eventbus.Name) {
	_ = b.bus.Publish(ctx, eventbus.Event{Name: name, Context: b.tc})
}

func (b *base) publishErr(ctx context.Context, err error) {
	logger.Errorf("connector[%s]: %v", b.mode, err)
	b.status.setErr(err)
	_ = b.bus.Publish(ctx, eventbus.Event{Name: eventbus.Error, Context: b.tc, Err: err})
}

// authenticate registers the connect callback, connects and waits for the
// upstream to confirm, then emits authenticated.
func (b *base) authenticate(ctx context.Context, onError func(error)) error {
	connected := make(chan struct{})
	var once sync.Once
	b.md.OnConnect(func() { once.Do(func() { close(connected) }) })
	if onError != nil {
		b.md.OnError(onError)
	}
	if err := b.md.Connect(ctx); err != nil {
		return fmt.Errorf("connect %s: %w", b.md.Name(), err)
	}
	select {
	case <-connected:
	case <-ctx.Done():
		return ctx.Err()
	}
	logger.Infof("connector[%s]: connected to %s", b.mode, b.md.Name())
	b.setState(StateAuthenticated)
	b.publish(ctx, eventbus.Authenticated)
	return nil
}

// hasSymbols applies the no-symbol guard after authentication.
func (b *base) hasSymbols() bool {
	if len(b.tc.Symbols()) > 0 {
		return true
	}
	logger.Errorf("connector[%s]: %v", b.mode, ErrNoSymbols)
	return false
}

// fetchHistory pulls the bootstrap window and merges fragmented bars. A
// failed page keeps the bars collected so far.
func (b *base) fetchHistory(ctx context.Context, w HistoryWindow) []*market.OHLC {
	req := w.request(b.now())
	names := market.SymbolNames(b.tc.Symbols())
	logger.Infof("connector[%s]: loading history %v for %s .. %s", b.mode, names,
		req.Start.Format(time.RFC3339), req.End.Format(time.RFC3339))
	seq, err := b.md.HistoricalBars(ctx, names, req)
	if err != nil {
		b.publishErr(ctx, fmt.Errorf("historical bars: %w", err))
		return nil
	}
	bars, err := aggregator.Backfill(ctx, seq)
	if err != nil {
		b.publishErr(ctx, err)
	}
	logger.Infof("connector[%s]: loaded %d historical bars", b.mode, len(bars))
	return bars
}

// seed appends bootstrap bars, initialises the indicators and emits
// historical-bar.
func (b *base) seed(ctx context.Context, bars []*market.OHLC) {
	b.tc.AddBars(bars)
	b.tc.Pipeline().Init(b.tc.Bars())
	b.status.record(b.tc)
	b.publish(ctx, eventbus.HistoricalBar)
}

// applyTick records t, folds it into agg when present and emits tick, then
// bar when a new minute was opened. A tick that only extends the open bar
// revises the indicators' last output instead of adding one.
func (b *base) applyTick(ctx context.Context, agg *aggregator.Aggregator, t market.Tick) {
	b.tc.AddTick(t)
	created := false
	if agg != nil {
		bar, isNew := agg.Push(t)
		switch last, _ := b.tc.LastBar(); {
		case isNew:
			b.tc.Pipeline().NextValue(*bar)
		case last == bar:
			b.tc.Pipeline().Update(*bar)
		default:
			// another symbol's bar came after this one; rebuild so outputs
			// stay aligned with Bars()
			b.tc.Pipeline().Init(b.tc.Bars())
		}
		created = isNew
	}
	b.status.record(b.tc)
	b.publish(ctx, eventbus.Tick)
	if created {
		b.publish(ctx, eventbus.Bar)
	}
}

// applyBar appends a complete bar and emits bar.
func (b *base) applyBar(ctx context.Context, bar market.OHLC) {
	nb := bar
	b.tc.AddBar(&nb)
	b.tc.Pipeline().NextValue(nb)
	b.status.record(b.tc)
	b.publish(ctx, eventbus.Bar)
}

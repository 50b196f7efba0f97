package connector

import (
	"context"
	"fmt"
	"time"

	"conductor/internal/aggregator"
	"conductor/internal/eventbus"
	"conductor/internal/gateway/exchange"
	"conductor/internal/logger"
	"conductor/internal/market"
	"conductor/internal/trading"
)

const defaultInboxSize = 1024

// LiveOptions configures a live run.
type LiveOptions struct {
	History HistoryWindow
	// AggregateQuotes builds bars from quotes instead of subscribing to the
	// upstream bar stream.
	AggregateQuotes bool
	InboxSize       int
}

// DefaultLiveOptions fetches the last 20 minutes, ending one minute ago.
func DefaultLiveOptions() LiveOptions {
	return LiveOptions{
		History: HistoryWindow{
			Lookback:  20 * time.Minute,
			EndOffset: time.Minute,
			Timeframe: "1m",
		},
		InboxSize: defaultInboxSize,
	}
}

// Live streams a venue feed into the strategy. Upstream callbacks are
// queued and handled in arrival order by a single loop goroutine.
type Live struct {
	*base
	opts  LiveOptions
	agg   *aggregator.Aggregator
	inbox chan func(context.Context)
}

var _ Orchestrator = (*Live)(nil)

func NewLive(md exchange.MarketData, bus *eventbus.Bus, tc *trading.Context, opts LiveOptions) *Live {
	if opts.InboxSize <= 0 {
		opts.InboxSize = defaultInboxSize
	}
	l := &Live{
		base:  newBase("live", md, bus, tc),
		opts:  opts,
		inbox: make(chan func(context.Context), opts.InboxSize),
	}
	if opts.AggregateQuotes {
		l.agg = aggregator.NewWindowed(l.tc)
	}
	return l
}

// Run connects, bootstraps history and subscribes. It returns once the
// subscriptions are in place; the loop keeps running until ctx ends.
func (l *Live) Run(ctx context.Context) error {
	if err := l.begin(); err != nil {
		return err
	}
	l.md.OnQuote(func(q exchange.Quote) { l.enqueue(ctx, func(ctx context.Context) { l.handleQuote(ctx, q) }) })
	l.md.OnBar(func(b market.OHLC) { l.enqueue(ctx, func(ctx context.Context) { l.applyBar(ctx, b) }) })

	onError := func(err error) {
		l.enqueue(ctx, func(ctx context.Context) { l.handleUpstreamError(ctx, err) })
	}
	if err := l.authenticate(ctx, onError); err != nil {
		l.terminate(err)
		return err
	}
	if !l.hasSymbols() {
		l.terminate(ErrNoSymbols)
		return nil
	}

	l.setState(StateBootstrapping)
	l.seed(ctx, l.fetchHistory(ctx, l.opts.History))

	names := market.SymbolNames(l.tc.Symbols())
	if err := l.md.SubscribeQuotes(ctx, names); err != nil {
		err = fmt.Errorf("subscribe quotes: %w", err)
		l.terminate(err)
		return err
	}
	if !l.opts.AggregateQuotes {
		if err := l.md.SubscribeBars(ctx, names); err != nil {
			err = fmt.Errorf("subscribe bars: %w", err)
			l.terminate(err)
			return err
		}
	}

	l.setState(StateStreaming)
	go l.loop(ctx)
	return nil
}

func (l *Live) loop(ctx context.Context) {
	defer l.terminate(nil)
	for {
		select {
		case <-ctx.Done():
			logger.Infof("connector[live]: ctx done, exit")
			return
		case fn := <-l.inbox:
			fn(ctx)
		}
	}
}

// enqueue blocks while the inbox is full so a slow strategy slows the
// producer instead of dropping data.
func (l *Live) enqueue(ctx context.Context, fn func(context.Context)) {
	select {
	case l.inbox <- fn:
	case <-ctx.Done():
	}
}

// handleQuote ignores quotes from venues no tracked symbol trades on.
func (l *Live) handleQuote(ctx context.Context, q exchange.Quote) {
	if !l.tc.HasExchange(q.Exchange) {
		logger.Debugf("connector[live]: skip quote %s from %s", q.Symbol, q.Exchange)
		return
	}
	l.applyTick(ctx, l.agg, q.Tick())
}

func (l *Live) handleUpstreamError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	if exchange.IsDisconnect(err) {
		logger.Warnf("connector[live]: upstream disconnected: %v", err)
		_ = l.bus.Publish(ctx, eventbus.Event{Name: eventbus.Disconnected, Context: l.tc, Err: err})
		return
	}
	l.publishErr(ctx, err)
}

package connector

import (
	"context"
	"sync/atomic"
	"time"

	"conductor/internal/aggregator"
	"conductor/internal/eventbus"
	"conductor/internal/gateway/exchange"
	"conductor/internal/logger"
	"conductor/internal/market"
	"conductor/internal/scheduler"
	"conductor/internal/trading"
)

// BacktestOptions configures a replay.
type BacktestOptions struct {
	History  HistoryWindow
	Interval time.Duration
	// WarmupBars is the number of leading bars handed over as history
	// instead of being replayed.
	WarmupBars int
	// ReplayQuotes replays synthetic quotes derived from each bar and lets
	// the aggregator rebuild the bars.
	ReplayQuotes bool
}

// DefaultBacktestOptions replays three days of one-minute bars, one per second.
func DefaultBacktestOptions() BacktestOptions {
	return BacktestOptions{
		History: HistoryWindow{
			Lookback:  3 * 24 * time.Hour,
			EndOffset: time.Minute,
			Timeframe: "1m",
		},
		Interval: scheduler.DefaultReplayInterval,
	}
}

// Backtest replays historical bars on a timer. Before each event it moves
// the simulated price and clock so fills see the replayed market.
type Backtest struct {
	*base
	opts    BacktestOptions
	control exchange.BacktestControl
	sched   *scheduler.ReplayScheduler
	agg     *aggregator.Aggregator

	// bars and ticks belong to the scheduler goroutine once streaming.
	bars      []*market.OHLC
	ticks     []market.Tick
	remaining atomic.Int64
}

var _ Orchestrator = (*Backtest)(nil)

// NewBacktest builds a replay over md. control may be nil when nothing needs
// the simulated price.
func NewBacktest(md exchange.MarketData, control exchange.BacktestControl, bus *eventbus.Bus, tc *trading.Context, opts BacktestOptions) *Backtest {
	bt := &Backtest{
		base:    newBase("backtest", md, bus, tc),
		opts:    opts,
		control: control,
		sched:   scheduler.NewReplayScheduler(opts.Interval),
	}
	if opts.ReplayQuotes {
		bt.agg = aggregator.NewContinuous(bt.tc)
	}
	return bt
}

// Run bootstraps and schedules the replay, then returns. Use Done or Wait
// to observe the end of the replay.
func (bt *Backtest) Run(ctx context.Context) error {
	if err := bt.begin(); err != nil {
		return err
	}
	onError := func(err error) { bt.publishErr(ctx, err) }
	if err := bt.authenticate(ctx, onError); err != nil {
		bt.terminate(err)
		return err
	}
	if !bt.hasSymbols() {
		bt.terminate(ErrNoSymbols)
		return nil
	}

	bt.setState(StateBootstrapping)
	history := bt.fetchHistory(ctx, bt.opts.History)
	if len(history) == 0 {
		logger.Infof("connector[backtest]: no historical data, nothing to replay")
		bt.terminate(nil)
		return nil
	}
	warmup := bt.opts.WarmupBars
	if warmup < 0 {
		warmup = 0
	}
	if warmup > len(history) {
		warmup = len(history)
	}
	bt.seed(ctx, history[:warmup])
	bt.bars = history[warmup:]
	if bt.opts.ReplayQuotes {
		bt.ticks = QuotesFromBars(bt.bars)
		bt.bars = nil
	}
	bt.remaining.Store(int64(len(bt.bars) + len(bt.ticks)))
	logger.Infof("connector[backtest]: replaying %d bars / %d quotes every %s",
		len(bt.bars), len(bt.ticks), bt.sched.Interval)

	bt.setState(StateStreaming)
	bt.sched.Start(ctx, bt.step)
	go func() {
		<-bt.sched.Done()
		bt.terminate(ctx.Err())
	}()
	return nil
}

// Remaining reports how many replay units are still queued. Safe to call
// from any goroutine.
func (bt *Backtest) Remaining() int {
	return int(bt.remaining.Load())
}

func (bt *Backtest) step(ctx context.Context) bool {
	switch {
	case len(bt.ticks) > 0:
		t := bt.ticks[0]
		bt.ticks = bt.ticks[1:]
		bt.remaining.Add(-1)
		bt.advance(t.AskPrice, t.Timestamp)
		bt.applyTick(ctx, bt.agg, t)
	case len(bt.bars) > 0:
		b := bt.bars[0]
		bt.bars = bt.bars[1:]
		bt.remaining.Add(-1)
		if b != nil {
			bt.advance(b.Close, b.Timestamp)
			bt.applyBar(ctx, *b)
		}
	}
	return bt.remaining.Load() > 0
}

func (bt *Backtest) advance(price float64, at time.Time) {
	if bt.control == nil {
		return
	}
	bt.control.UpdatePrice(price)
	bt.control.UpdateDate(at)
}

// QuotesFromBars expands each bar into four quotes (open, high, low, close)
// spread across its minute. Volume is split evenly on the ask side.
func QuotesFromBars(bars []*market.OHLC) []market.Tick {
	offsets := [4]time.Duration{0, 15 * time.Second, 30 * time.Second, 45 * time.Second}
	out := make([]market.Tick, 0, len(bars)*4)
	for _, b := range bars {
		if b == nil {
			continue
		}
		prices := [4]float64{b.Open, b.High, b.Low, b.Close}
		size := b.Volume / 4
		for i, p := range prices {
			out = append(out, market.NewTick(b.Symbol, p, size, p, 0, b.Timestamp.Add(offsets[i])))
		}
	}
	return out
}

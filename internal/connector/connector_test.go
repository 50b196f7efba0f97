package connector

import (
	"context"
	"sync"
	"testing"
	"time"

	"conductor/internal/analysis/indicator"
	"conductor/internal/eventbus"
	"conductor/internal/gateway/exchange"
	"conductor/internal/market"
	"conductor/internal/trading"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var btc = market.Symbol{Name: "BTCUSDT", Exchange: market.ExchangeBinance}

type fakeMarket struct {
	mu sync.Mutex

	onConnect func()
	onError   func(error)
	onQuote   func(exchange.Quote)
	onBar     func(market.OHLC)

	history      []market.OHLC
	historyCalls int
	lastRequest  market.HistoryRequest
	quoteSubs    [][]string
	barSubs      [][]string

	prices []float64
	dates  []time.Time
}

func (f *fakeMarket) Name() string { return "fake" }

func (f *fakeMarket) OnConnect(fn func())               { f.onConnect = fn }
func (f *fakeMarket) OnError(fn func(error))            { f.onError = fn }
func (f *fakeMarket) OnQuote(fn func(exchange.Quote))   { f.onQuote = fn }
func (f *fakeMarket) OnBar(fn func(market.OHLC))        { f.onBar = fn }
func (f *fakeMarket) Connect(ctx context.Context) error { f.onConnect(); return nil }

func (f *fakeMarket) SubscribeQuotes(_ context.Context, names []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quoteSubs = append(f.quoteSubs, names)
	return nil
}

func (f *fakeMarket) SubscribeBars(_ context.Context, names []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.barSubs = append(f.barSubs, names)
	return nil
}

func (f *fakeMarket) HistoricalBars(_ context.Context, _ []string, req market.HistoryRequest) (market.BarSequence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyCalls++
	f.lastRequest = req
	return market.NewSliceSequence(f.history...), nil
}

func (f *fakeMarket) UpdatePrice(p float64) {
	f.mu.Lock()
	f.prices = append(f.prices, p)
	f.mu.Unlock()
}

func (f *fakeMarket) UpdateDate(t time.Time) {
	f.mu.Lock()
	f.dates = append(f.dates, t)
	f.mu.Unlock()
}

type eventLog struct {
	mu    sync.Mutex
	names []eventbus.Name
	ch    chan eventbus.Name
}

func watch(bus *eventbus.Bus, names ...eventbus.Name) *eventLog {
	l := &eventLog{ch: make(chan eventbus.Name, 64)}
	for _, n := range names {
		bus.Subscribe(n, func(_ context.Context, ev eventbus.Event) error {
			l.mu.Lock()
			l.names = append(l.names, ev.Name)
			l.mu.Unlock()
			l.ch <- ev.Name
			return nil
		})
	}
	return l
}

func (l *eventLog) all() []eventbus.Name {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]eventbus.Name(nil), l.names...)
}

func (l *eventLog) await(t *testing.T, want eventbus.Name) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case got := <-l.ch:
			if got == want {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

var allEvents = []eventbus.Name{
	eventbus.Authenticated, eventbus.HistoricalBar, eventbus.Tick, eventbus.Bar, eventbus.Error,
}

func minute(m int) time.Time {
	return time.Date(2024, 3, 1, 10, m, 0, 0, time.UTC)
}

func bar(m int, close, vol float64) market.OHLC {
	return market.OHLC{Symbol: btc, Open: close, High: close, Low: close, Close: close, Volume: vol, Timestamp: minute(m)}
}

func fastBacktest() BacktestOptions {
	opts := DefaultBacktestOptions()
	opts.Interval = time.Millisecond
	return opts
}

func waitDone(t *testing.T, o Orchestrator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, o.Wait(ctx))
}

func TestBacktestWithoutSymbolsStopsAfterAuthentication(t *testing.T) {
	md := &fakeMarket{}
	bus := eventbus.New()
	log := watch(bus, allEvents...)
	bt := NewBacktest(md, md, bus, trading.NewContext(), fastBacktest())

	require.NoError(t, bt.Run(context.Background()))
	waitDone(t, bt)

	assert.Equal(t, StateTerminated, bt.State())
	assert.Equal(t, []eventbus.Name{eventbus.Authenticated}, log.all())
	assert.Zero(t, md.historyCalls)
	assert.Empty(t, md.quoteSubs)
	assert.Empty(t, md.barSubs)
}

func TestBacktestReplaysBarsInOrder(t *testing.T) {
	md := &fakeMarket{history: []market.OHLC{
		bar(0, 100, 1),
		bar(1, 101, 1),
		bar(1, 102, 2), // fragment of the same bar
		bar(2, 103, 1),
	}}
	tc := trading.NewContext()
	tc.AddSymbol(btc)
	bus := eventbus.New()
	log := watch(bus, allEvents...)

	opts := fastBacktest()
	opts.WarmupBars = 1
	bt := NewBacktest(md, md, bus, tc, opts)
	require.NoError(t, bt.Run(context.Background()))
	waitDone(t, bt)

	assert.Equal(t, []eventbus.Name{
		eventbus.Authenticated,
		eventbus.HistoricalBar,
		eventbus.Bar,
		eventbus.Bar,
	}, log.all())

	bars := tc.Bars()
	require.Len(t, bars, 3)
	assert.Equal(t, 102.0, bars[1].Close)
	assert.Equal(t, 3.0, bars[1].Volume)
	assert.Equal(t, []float64{102, 103}, md.prices)
	assert.Equal(t, []time.Time{minute(1), minute(2)}, md.dates)
	assert.Equal(t, StateTerminated, bt.State())
	assert.Zero(t, bt.Remaining())
	assert.Equal(t, 1, md.historyCalls)
	assert.Equal(t, "1m", md.lastRequest.Timeframe)
}

func TestBacktestWithoutHistoryTerminatesQuietly(t *testing.T) {
	md := &fakeMarket{}
	tc := trading.NewContext()
	tc.AddSymbol(btc)
	bus := eventbus.New()
	log := watch(bus, allEvents...)

	bt := NewBacktest(md, md, bus, tc, fastBacktest())
	require.NoError(t, bt.Run(context.Background()))
	waitDone(t, bt)

	assert.Equal(t, []eventbus.Name{eventbus.Authenticated}, log.all())
	assert.Empty(t, bt.Status().Error)
}

func TestBacktestQuoteReplayRebuildsBars(t *testing.T) {
	md := &fakeMarket{history: []market.OHLC{
		{Symbol: btc, Open: 10, High: 14, Low: 9, Close: 12, Volume: 8, Timestamp: minute(0)},
	}}
	tc := trading.NewContext()
	tc.AddSymbol(btc)
	bus := eventbus.New()
	log := watch(bus, eventbus.Tick, eventbus.Bar)

	opts := fastBacktest()
	opts.ReplayQuotes = true
	bt := NewBacktest(md, md, bus, tc, opts)
	require.NoError(t, bt.Run(context.Background()))
	waitDone(t, bt)

	assert.Equal(t, []eventbus.Name{
		eventbus.Tick, eventbus.Bar, eventbus.Tick, eventbus.Tick, eventbus.Tick,
	}, log.all())
	require.Len(t, tc.Bars(), 1)
	rebuilt := tc.Bars()[0]
	assert.Equal(t, 10.0, rebuilt.Open)
	assert.Equal(t, 14.0, rebuilt.High)
	assert.Equal(t, 9.0, rebuilt.Low)
	assert.Equal(t, 12.0, rebuilt.Close)
	assert.InDelta(t, 8.0, rebuilt.Volume, 1e-9)
	assert.Len(t, tc.Ticks(), 4)
}

func TestBacktestQuoteReplayKeepsOneIndicatorValuePerBar(t *testing.T) {
	md := &fakeMarket{history: []market.OHLC{
		{Symbol: btc, Open: 10, High: 14, Low: 9, Close: 12, Volume: 4, Timestamp: minute(0)},
		{Symbol: btc, Open: 12, High: 13, Low: 8, Close: 11, Volume: 4, Timestamp: minute(1)},
	}}
	tc := trading.NewContext()
	tc.AddSymbol(btc)
	streamed := indicator.NewSMA("fast", 2, market.FieldClose)
	tc.AddIndicator(streamed)

	opts := fastBacktest()
	opts.ReplayQuotes = true
	bt := NewBacktest(md, md, eventbus.New(), tc, opts)
	require.NoError(t, bt.Run(context.Background()))
	waitDone(t, bt)

	require.Len(t, tc.Bars(), 2)
	replayed := indicator.NewSMA("fast", 2, market.FieldClose)
	replayed.Init(tc.Bars())
	assert.Equal(t, []float64{11.5}, replayed.Values())
	assert.Equal(t, replayed.Values(), streamed.Values())
	assert.Len(t, tc.Ticks(), 8)
}

func TestBacktestQuoteReplayKeepsSymbolsApart(t *testing.T) {
	eth := market.Symbol{Name: "ETHUSDT", Exchange: market.ExchangeBinance}
	md := &fakeMarket{history: []market.OHLC{
		{Symbol: btc, Open: 40000, High: 40100, Low: 39900, Close: 40050, Volume: 4, Timestamp: minute(0)},
		{Symbol: eth, Open: 2000, High: 2010, Low: 1990, Close: 2005, Volume: 8, Timestamp: minute(0)},
		{Symbol: btc, Open: 40050, High: 40200, Low: 40000, Close: 40150, Volume: 4, Timestamp: minute(1)},
		{Symbol: eth, Open: 2005, High: 2020, Low: 2000, Close: 2015, Volume: 8, Timestamp: minute(1)},
	}}
	tc := trading.NewContext()
	tc.AddSymbol(btc, eth)
	bus := eventbus.New()
	log := watch(bus, eventbus.Bar)

	opts := fastBacktest()
	opts.ReplayQuotes = true
	bt := NewBacktest(md, md, bus, tc, opts)
	require.NoError(t, bt.Run(context.Background()))
	waitDone(t, bt)

	assert.Len(t, log.all(), 4)
	bars := tc.Bars()
	require.Len(t, bars, 4)
	for i, want := range md.history {
		got := bars[i]
		assert.Equal(t, want.Symbol, got.Symbol)
		assert.Equal(t, want.Open, got.Open)
		assert.Equal(t, want.High, got.High)
		assert.Equal(t, want.Low, got.Low)
		assert.Equal(t, want.Close, got.Close)
		assert.InDelta(t, want.Volume, got.Volume, 1e-9)
	}
}

func TestBacktestRemainingCountsDown(t *testing.T) {
	md := &fakeMarket{history: []market.OHLC{bar(0, 1, 1), bar(1, 2, 1), bar(2, 3, 1)}}
	tc := trading.NewContext()
	tc.AddSymbol(btc)
	bus := eventbus.New()

	var bt *Backtest
	var seen []int
	bus.Subscribe(eventbus.Bar, func(context.Context, eventbus.Event) error {
		seen = append(seen, bt.Remaining())
		return nil
	})
	bt = NewBacktest(md, md, bus, tc, fastBacktest())
	require.NoError(t, bt.Run(context.Background()))

	// polled concurrently with the replay, as the status endpoint does
	for i := 0; i < 500 && bt.State() != StateTerminated; i++ {
		assert.GreaterOrEqual(t, bt.Remaining(), 0)
		time.Sleep(time.Millisecond)
	}
	waitDone(t, bt)
	assert.Equal(t, []int{2, 1, 0}, seen)
	assert.Zero(t, bt.Remaining())
}

func TestRunTwiceFails(t *testing.T) {
	md := &fakeMarket{}
	bt := NewBacktest(md, nil, nil, nil, fastBacktest())
	require.NoError(t, bt.Run(context.Background()))
	assert.Error(t, bt.Run(context.Background()))
}

func TestLiveWithoutSymbolsNeverSubscribes(t *testing.T) {
	md := &fakeMarket{}
	l := NewLive(md, nil, nil, DefaultLiveOptions())
	require.NoError(t, l.Run(context.Background()))
	waitDone(t, l)

	assert.Zero(t, md.historyCalls)
	assert.Empty(t, md.quoteSubs)
	assert.Empty(t, md.barSubs)
	assert.Equal(t, ErrNoSymbols.Error(), l.Status().Error)
}

func TestLiveStreamsQuotesAndBars(t *testing.T) {
	md := &fakeMarket{history: []market.OHLC{bar(0, 100, 1)}}
	tc := trading.NewContext()
	tc.AddSymbol(btc)
	bus := eventbus.New()
	log := watch(bus, allEvents...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := NewLive(md, bus, tc, DefaultLiveOptions())
	require.NoError(t, l.Run(ctx))
	assert.Equal(t, StateStreaming, l.State())
	assert.Equal(t, [][]string{{"BTCUSDT"}}, md.quoteSubs)
	assert.Equal(t, [][]string{{"BTCUSDT"}}, md.barSubs)

	// quotes from an untracked venue are ignored
	md.onQuote(exchange.Quote{Symbol: "BTCUSD", Exchange: "OTHER", AskPrice: 1, BidPrice: 1, Timestamp: minute(1)})
	md.onQuote(exchange.Quote{Symbol: "BTCUSDT", Exchange: market.ExchangeBinance, AskPrice: 101, BidPrice: 100.5, Timestamp: minute(1)})
	log.await(t, eventbus.Tick)
	md.onBar(bar(1, 101, 5))
	log.await(t, eventbus.Bar)

	assert.Equal(t, []eventbus.Name{
		eventbus.Authenticated, eventbus.HistoricalBar, eventbus.Tick, eventbus.Bar,
	}, log.all())

	cancel()
	waitDone(t, l)
	assert.Len(t, tc.Ticks(), 1)
	assert.Len(t, tc.Bars(), 2)
	st := l.Status()
	assert.Equal(t, 2, st.Bars)
	last, ok := st.LastBar()
	require.True(t, ok)
	assert.Equal(t, 101.0, last.Close)
}

func TestLiveAggregatesQuotesIntoBars(t *testing.T) {
	md := &fakeMarket{}
	tc := trading.NewContext()
	tc.AddSymbol(btc)
	bus := eventbus.New()
	log := watch(bus, eventbus.Tick, eventbus.Bar)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	opts := DefaultLiveOptions()
	opts.AggregateQuotes = true
	l := NewLive(md, bus, tc, opts)
	require.NoError(t, l.Run(ctx))
	assert.Empty(t, md.barSubs)

	q := func(sec int, ask float64) exchange.Quote {
		return exchange.Quote{Symbol: "BTCUSDT", Exchange: market.ExchangeBinance, AskPrice: ask, AskSize: 1, BidPrice: ask - 1, BidSize: 1,
			Timestamp: minute(5).Add(time.Duration(sec) * time.Second)}
	}
	md.onQuote(q(1, 100))
	md.onQuote(q(20, 104))
	md.onQuote(q(40, 98))
	for i := 0; i < 3; i++ {
		log.await(t, eventbus.Tick)
	}
	cancel()
	waitDone(t, l)

	require.Len(t, tc.Bars(), 1)
	b := tc.Bars()[0]
	assert.Equal(t, 104.0, b.High)
	assert.Equal(t, 98.0, b.Low)
	assert.Equal(t, 98.0, b.Close)
	assert.Equal(t, 6.0, b.Volume)
	assert.Equal(t, []eventbus.Name{eventbus.Tick, eventbus.Bar, eventbus.Tick, eventbus.Tick}, log.all())
}

func TestLiveAggregatesSymbolsSeparately(t *testing.T) {
	eth := market.Symbol{Name: "ETHUSDT", Exchange: market.ExchangeBinance}
	md := &fakeMarket{}
	tc := trading.NewContext()
	tc.AddSymbol(btc, eth)
	fast := indicator.NewSMA("fast", 1, market.FieldClose)
	tc.AddIndicator(fast)
	bus := eventbus.New()
	log := watch(bus, eventbus.Tick, eventbus.Bar)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	opts := DefaultLiveOptions()
	opts.AggregateQuotes = true
	l := NewLive(md, bus, tc, opts)
	require.NoError(t, l.Run(ctx))

	q := func(name string, sec int, ask float64) exchange.Quote {
		return exchange.Quote{Symbol: name, Exchange: market.ExchangeBinance, AskPrice: ask, AskSize: 1, BidPrice: ask - 1, BidSize: 1,
			Timestamp: minute(5).Add(time.Duration(sec) * time.Second)}
	}
	md.onQuote(q("BTCUSDT", 1, 40000))
	md.onQuote(q("ETHUSDT", 2, 2000))
	md.onQuote(q("BTCUSDT", 3, 40100))
	md.onQuote(q("ETHUSDT", 4, 1990))
	for i := 0; i < 4; i++ {
		log.await(t, eventbus.Tick)
	}
	cancel()
	waitDone(t, l)

	bars := tc.Bars()
	require.Len(t, bars, 2)
	assert.Equal(t, btc, bars[0].Symbol)
	assert.Equal(t, 40000.0, bars[0].Low)
	assert.Equal(t, 40100.0, bars[0].Close)
	assert.Equal(t, eth, bars[1].Symbol)
	assert.Equal(t, 2000.0, bars[1].High)
	assert.Equal(t, 1990.0, bars[1].Close)
	assert.Equal(t, []float64{40100, 1990}, fast.Values())
}

type MockStrategy struct {
	mock.Mock
}

func (m *MockStrategy) Init(ctx context.Context, tc *trading.Context) error {
	return m.Called(ctx, tc).Error(0)
}

func (m *MockStrategy) Run(ctx context.Context, tc *trading.Context) error {
	return m.Called(ctx, tc).Error(0)
}

func (m *MockStrategy) OnTick(ctx context.Context, tc *trading.Context) error {
	return m.Called(ctx, tc).Error(0)
}

func (m *MockStrategy) OnBar(ctx context.Context, tc *trading.Context) error {
	return m.Called(ctx, tc).Error(0)
}

func TestBindStrategyRoutesEvents(t *testing.T) {
	ctx := context.Background()
	tc := trading.NewContext()
	bus := eventbus.New()
	s := new(MockStrategy)
	s.On("Init", ctx, tc).Return(nil).Once()
	s.On("Run", ctx, tc).Return(nil).Twice()
	s.On("OnTick", ctx, tc).Return(nil).Once()
	s.On("OnBar", ctx, tc).Return(nil).Once()

	unbind := BindStrategy(bus, s)
	for _, name := range []eventbus.Name{eventbus.Authenticated, eventbus.Tick, eventbus.Bar, eventbus.HistoricalBar} {
		require.NoError(t, bus.Publish(ctx, eventbus.Event{Name: name, Context: tc}))
	}
	s.AssertExpectations(t)

	unbind()
	require.NoError(t, bus.Publish(ctx, eventbus.Event{Name: eventbus.Authenticated, Context: tc}))
	s.AssertNumberOfCalls(t, "Init", 1)
}

func TestQuotesFromBars(t *testing.T) {
	b := bar(3, 50, 4)
	b.High, b.Low = 55, 45
	ticks := QuotesFromBars([]*market.OHLC{&b, nil})
	require.Len(t, ticks, 4)
	assert.Equal(t, []float64{50, 55, 45, 50}, []float64{ticks[0].AskPrice, ticks[1].AskPrice, ticks[2].AskPrice, ticks[3].AskPrice})
	assert.Equal(t, minute(3).Add(45*time.Second), ticks[3].Timestamp)
	assert.Equal(t, 1.0, ticks[0].AskSize)
}

package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"conductor/internal/backtest"
	"conductor/internal/config"
	"conductor/internal/connector"
	"conductor/internal/eventbus"
	"conductor/internal/gateway"
	"conductor/internal/gateway/binance"
	"conductor/internal/gateway/exchange"
	"conductor/internal/logger"
	"conductor/internal/market"
	"conductor/internal/pkg/symbol"
	"conductor/internal/position"
	"conductor/internal/store"
	"conductor/internal/store/memory"
	"conductor/internal/store/sqlite"
	"conductor/internal/strategy"
	"conductor/internal/trading"
	statushttp "conductor/internal/transport/http/status"

	"github.com/google/uuid"
)

// MemoryDatabase selects the in-process store instead of a sqlite file.
const MemoryDatabase = ":memory:"

type AppBuilder struct {
	cfg     *config.Config
	cfgPath string

	storeFn   func(config.DatabaseConfig) (store.Store, error)
	binanceFn func(config.BinanceConfig) (*binance.Client, error)
	liveFn    func(string, *config.Config) (*binance.Client, error)
	sourceFn  func(*config.Config, exchange.MarketData) (backtest.HistorySource, func() error, error)
	httpFn    func(config.AppConfig, statushttp.ServerConfig) (*statushttp.Server, error)
	registry  *strategy.Registry
	runID     string
}

type AppBuilderOption func(*AppBuilder)

// WithConfigPath enables hot reload of the log level from path.
func WithConfigPath(path string) AppBuilderOption {
	return func(b *AppBuilder) { b.cfgPath = strings.TrimSpace(path) }
}

// WithStore replaces the store opened from the database section.
func WithStore(st store.Store) AppBuilderOption {
	return func(b *AppBuilder) {
		b.storeFn = func(config.DatabaseConfig) (store.Store, error) { return st, nil }
	}
}

// WithHistorySource replaces the backtest history source.
func WithHistorySource(src backtest.HistorySource) AppBuilderOption {
	return func(b *AppBuilder) {
		b.sourceFn = func(*config.Config, exchange.MarketData) (backtest.HistorySource, func() error, error) {
			return src, nil, nil
		}
	}
}

func WithRegistry(r *strategy.Registry) AppBuilderOption {
	return func(b *AppBuilder) { b.registry = r }
}

func WithRunID(id string) AppBuilderOption {
	return func(b *AppBuilder) { b.runID = id }
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:       cfg,
		storeFn:   openStore,
		binanceFn: gateway.NewBinanceFromConfig,
		liveFn:    gateway.NewLiveClient,
		sourceFn:  buildHistorySource,
		httpFn:    buildStatusHTTP,
		registry:  strategy.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func openStore(cfg config.DatabaseConfig) (store.Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == MemoryDatabase {
		return memory.New(), nil
	}
	return sqlite.NewSqliteStore(path)
}

// buildHistorySource returns the replay source and an optional closer.
func buildHistorySource(cfg *config.Config, upstream exchange.MarketData) (backtest.HistorySource, func() error, error) {
	bt := cfg.Backtest
	if strings.EqualFold(bt.Source, config.SourceFile) {
		src, err := backtest.NewFileSource(bt.DataFile)
		if err != nil {
			return nil, nil, err
		}
		return src, nil, nil
	}
	if upstream == nil {
		return nil, nil, fmt.Errorf("backtest source %q needs an upstream client", bt.Source)
	}
	cache, err := backtest.OpenCache(bt.CacheDir)
	if err != nil {
		return nil, nil, fmt.Errorf("open candle cache: %w", err)
	}
	return backtest.NewCachedSource(cache, backtest.NewUpstreamSource(upstream)), cache.Close, nil
}

func buildStatusHTTP(cfg config.AppConfig, sc statushttp.ServerConfig) (*statushttp.Server, error) {
	addr := strings.TrimSpace(cfg.HTTPAddr)
	if addr == "" || addr == "off" {
		return nil, nil
	}
	sc.Addr = addr
	return statushttp.NewServer(sc)
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	st, err := b.storeFn(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a := &App{cfg: cfg, cfgPath: b.cfgPath, store: st}
	a.closers = append(a.closers, st.Close)
	fail := func(err error) (*App, error) {
		a.close()
		return nil, err
	}
	if err := st.Init(ctx); err != nil {
		return fail(fmt.Errorf("init store: %w", err))
	}

	bus := eventbus.New()
	a.detach = append(a.detach, position.AttachJournal(bus, st))

	runID := b.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	a.runID = runID

	var (
		broker  exchange.Broker
		md      exchange.MarketData
		accSrc  trading.AccountSource
		venue   *backtest.Venue
		recOpts = []position.Option{position.WithPublisher(bus)}
	)
	exchangeName := market.Exchange(strings.ToUpper(strings.TrimSpace(cfg.Connector.Exchange)))

	if cfg.Connector.IsBacktest() {
		var upstream exchange.MarketData
		if !strings.EqualFold(cfg.Backtest.Source, config.SourceFile) {
			client, err := b.binanceFn(cfg.Binance)
			if err != nil {
				return fail(fmt.Errorf("binance client: %w", err))
			}
			a.closers = append(a.closers, client.Close)
			upstream = client
		}
		src, closeSrc, err := b.sourceFn(cfg, upstream)
		if err != nil {
			return fail(err)
		}
		if closeSrc != nil {
			a.closers = append(a.closers, closeSrc)
		}
		venue, err = backtest.NewVenue(backtest.VenueConfig{
			Exchange:        exchangeName,
			Source:          src,
			Store:           st,
			StartingBalance: cfg.Backtest.StartingBalance,
			Currency:        cfg.Backtest.Currency,
		})
		if err != nil {
			return fail(err)
		}
		broker, md, accSrc = venue, venue, venue
		recOpts = append(recOpts, position.WithClock(venue.Clock))
		logger.Infof("backtest history source: %s", src.Name())
	} else {
		client, err := b.liveFn(cfg.Connector.Exchange, cfg)
		if err != nil {
			return fail(fmt.Errorf("binance client: %w", err))
		}
		a.closers = append(a.closers, client.Close)
		broker, md = client, client
		accSrc = position.NewLiveAccount(client)
	}

	rec := position.NewReconciler(broker, st, recOpts...)
	tc := trading.NewContext(
		trading.WithOrders(trading.NewOrders(rec)),
		trading.WithAccounts(trading.NewAccounts(accSrc)),
		trading.WithRunID(runID),
	)
	for _, name := range symbol.NormalizeList(cfg.Connector.Symbols, symbol.Binance) {
		tc.AddSymbol(market.Symbol{Name: name, Exchange: exchangeName})
	}

	window := connector.HistoryWindow{
		Lookback:  time.Duration(cfg.Connector.HistoryLookbackMinutes) * time.Minute,
		EndOffset: time.Duration(cfg.Connector.HistoryEndOffsetMinutes) * time.Minute,
		Timeframe: cfg.Connector.Timeframe,
	}
	if cfg.Connector.IsBacktest() {
		window.Lookback = time.Duration(cfg.Backtest.LookbackDays) * 24 * time.Hour
		a.orch = connector.NewBacktest(md, venue, bus, tc, connector.BacktestOptions{
			History:      window,
			Interval:     time.Duration(cfg.Backtest.ReplayIntervalMS) * time.Millisecond,
			WarmupBars:   cfg.Backtest.WarmupBars,
			ReplayQuotes: strings.EqualFold(cfg.Backtest.ReplayMode, config.ReplayQuotes),
		})
		a.report = b.reportFunc(a, tc, venue)
	} else {
		a.orch = connector.NewLive(md, bus, tc, connector.LiveOptions{
			History:         window,
			AggregateQuotes: cfg.Connector.AggregateQuotes,
			InboxSize:       cfg.Connector.InboxSize,
		})
	}

	strategyName := strings.TrimSpace(cfg.Strategy.Name)
	if strategyName != "" {
		s, err := b.registry.New(strategyName, strategy.Params{
			Quantity:   cfg.Strategy.Quantity,
			FastPeriod: cfg.Strategy.FastPeriod,
			SlowPeriod: cfg.Strategy.SlowPeriod,
			Source:     market.ParseField(cfg.Strategy.Source),
		})
		if err != nil {
			return fail(err)
		}
		a.detach = append(a.detach, connector.BindStrategy(bus, s))
	}

	a.http, err = b.httpFn(cfg.App, statushttp.ServerConfig{
		Status:    a.orch,
		Positions: rec,
		Account:   tc.Accounts(),
		Events:    st,
	})
	if err != nil {
		return fail(fmt.Errorf("status http: %w", err))
	}

	a.Summary = buildSummary(cfg, runID, tc.Symbols(), a.http)
	return a, nil
}

func (b *AppBuilder) reportFunc(a *App, tc *trading.Context, venue *backtest.Venue) func(context.Context) error {
	return func(ctx context.Context) error {
		if len(tc.Bars()) == 0 {
			logger.Infof("backtest %s replayed no bars, no report written", a.runID)
			return nil
		}
		positions, err := a.store.GetPositions(ctx)
		if err != nil {
			return fmt.Errorf("load positions: %w", err)
		}
		acc, err := venue.Account(ctx)
		if err != nil {
			return fmt.Errorf("load account: %w", err)
		}
		status := a.orch.Status()
		in := backtest.ReportInput{
			RunID:           a.runID,
			Bars:            tc.Bars(),
			Indicators:      tc.Indicators(),
			Positions:       positions,
			Account:         acc,
			StartingBalance: b.cfg.Backtest.StartingBalance,
			StartedAt:       status.StartedAt,
			FinishedAt:      status.UpdatedAt,
		}
		dir := strings.TrimSpace(b.cfg.Backtest.ReportDir)
		if dir == "" {
			logger.InfoBlock(renderResult(backtest.Summarize(in)))
			return nil
		}
		files, err := backtest.WriteReport(filepath.Join(dir, a.runID), in)
		if err != nil {
			return err
		}
		logger.InfoBlock(renderResult(backtest.Summarize(in)))
		logger.Infof("backtest report written: %s, %s", files.HTML, files.Summary)
		if b.cfg.Backtest.ReportPNG {
			if png, err := backtest.Snapshot(ctx, files.HTML); err != nil {
				logger.Warnf("backtest report screenshot skipped: %v", err)
			} else {
				logger.Infof("backtest report screenshot: %s", png)
			}
		}
		return nil
	}
}

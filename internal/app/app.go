package app

import (
	"context"
	"errors"
	"fmt"

	"conductor/internal/config"
	"conductor/internal/connector"
	"conductor/internal/logger"
	"conductor/internal/store"
	statushttp "conductor/internal/transport/http/status"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// App wires one connector run to its store, status server and config watcher.
type App struct {
	cfg     *config.Config
	cfgPath string
	runID   string

	store   store.Store
	orch    connector.Orchestrator
	http    *statushttp.Server
	report  func(context.Context) error
	detach  []func()
	closers []func() error

	Summary *StartupSummary
}

// NewApp builds the application from cfg without starting it.
func NewApp(cfg *config.Config, opts ...AppBuilderOption) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	if len(opts) == 0 {
		return buildAppWithWire(context.Background(), cfg)
	}
	return NewAppBuilder(cfg, opts...).Build(context.Background())
}

// Run starts the connector and the side services. In backtest mode it
// returns once the replay finished and the report was written; in live mode
// it runs until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil || a.orch == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.close()

	if a.Summary != nil {
		a.Summary.Print()
	}

	group, gctx := errgroup.WithContext(ctx)
	runCtx, stop := context.WithCancel(gctx)
	defer stop()

	if a.http != nil {
		group.Go(func() error {
			if err := a.http.Start(runCtx); err != nil {
				return fmt.Errorf("status http server error: %w", err)
			}
			return nil
		})
	}

	if a.cfgPath != "" {
		group.Go(func() error {
			if err := config.Watch(runCtx, a.cfgPath, a.applyConfig); err != nil {
				logger.Warnf("config watch disabled: %v", err)
			}
			return nil
		})
	}

	group.Go(func() error {
		defer stop()
		if err := a.orch.Run(runCtx); err != nil {
			return fmt.Errorf("connector run: %w", err)
		}
		err := a.orch.Wait(runCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		if err != nil {
			return err
		}
		st := a.orch.Status()
		logger.Infof("connector[%s] finished: state=%s ticks=%d bars=%d", st.Mode, st.State, st.Ticks, st.Bars)
		if st.Error != "" {
			logger.Warnf("connector[%s] terminated with: %s", st.Mode, st.Error)
		}
		if a.report != nil {
			if err := a.report(context.WithoutCancel(runCtx)); err != nil {
				return fmt.Errorf("backtest report: %w", err)
			}
		}
		return nil
	})

	return group.Wait()
}

// RunID identifies this run in logs, reports and the trading context.
func (a *App) RunID() string { return a.runID }

// Orchestrator exposes the connector for tests and embedding callers.
func (a *App) Orchestrator() connector.Orchestrator { return a.orch }

func (a *App) applyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.App.LogLevel != logger.Level() {
		logger.Infof("log level %s -> %s", logger.Level(), cfg.App.LogLevel)
		logger.SetLevel(cfg.App.LogLevel)
	}
}

func (a *App) close() {
	for i := len(a.detach) - 1; i >= 0; i-- {
		a.detach[i]()
	}
	a.detach = nil
	var errs error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, a.closers[i]())
	}
	a.closers = nil
	if errs != nil {
		logger.Warnf("app shutdown: %v", errs)
	}
}

package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"conductor/internal/app"
	"conductor/internal/config"
	"conductor/internal/logger"
)

func main() {
	var (
		cfgFlag  = flag.String("config", "", "config file (default $CONDUCTOR_CONFIG or configs/config.yaml)")
		modeFlag = flag.String("mode", "", "override connector.mode (live or backtest)")
	)
	flag.Parse()

	cfgPath := config.ResolvePath(*cfgFlag, "configs/config.yaml")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if m := strings.TrimSpace(*modeFlag); m != "" && !strings.EqualFold(m, cfg.Connector.Mode) {
		// reload so mode-dependent defaults follow the override
		_ = os.Setenv("CONDUCTOR_CONNECTOR_MODE", strings.ToLower(m))
		if cfg, err = config.Load(cfgPath); err != nil {
			log.Fatalf("load config: %v", err)
		}
	}

	closeLogs, err := setupLogOutput(cfg.App)
	if err != nil {
		log.Fatalf("init log output: %v", err)
	}
	defer closeLogs()
	logger.SetLevel(cfg.App.LogLevel)
	logger.Infof("config loaded from %s (env=%s, mode=%s)", cfgPath, cfg.App.Env, cfg.Connector.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.NewApp(cfg, app.WithConfigPath(cfgPath))
	if err != nil {
		log.Fatalf("init app: %v", err)
	}
	if err := a.Run(ctx); err != nil {
		logger.Errorf("run failed: %v", err)
		closeLogs()
		os.Exit(1)
	}
}

// setupLogOutput tees the combined log to stdout and a rotated file, and
// sends errors to their own rotated file.
func setupLogOutput(cfg config.AppConfig) (func(), error) {
	var closers []io.Closer
	closeAll := func() {
		for _, c := range closers {
			_ = c.Close()
		}
		closers = nil
	}
	if strings.TrimSpace(cfg.LogPath) != "" {
		combined, err := logger.OpenRotating(cfg.LogPath, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
		if err != nil {
			return closeAll, err
		}
		closers = append(closers, combined)
		mw := io.MultiWriter(os.Stdout, combined)
		log.SetOutput(mw)
		logger.SetOutput(mw)
	}
	if strings.TrimSpace(cfg.ErrorLogPath) != "" {
		errs, err := logger.OpenRotating(cfg.ErrorLogPath, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
		if err != nil {
			closeAll()
			return closeAll, err
		}
		closers = append(closers, errs)
		logger.SetErrorOutput(errs)
	}
	return closeAll, nil
}

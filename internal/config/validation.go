package config

import (
	"fmt"
	"strings"

	"conductor/internal/scheduler"
)

// validate runs the per-section checks.
func validate(c *Config) error {
	if err := c.Connector.validate(); err != nil {
		return err
	}
	if c.Connector.IsBacktest() {
		if err := c.Backtest.validate(); err != nil {
			return err
		}
	}
	if err := c.Binance.validate(); err != nil {
		return err
	}
	if err := c.Strategy.validate(); err != nil {
		return err
	}
	return nil
}

func (c *ConnectorConfig) validate() error {
	switch c.Mode {
	case ModeLive, ModeBacktest:
	default:
		return fmt.Errorf("connector.mode must be %q or %q, got %q", ModeLive, ModeBacktest, c.Mode)
	}
	if _, ok := scheduler.ParseIntervalDuration(c.Timeframe); !ok {
		return fmt.Errorf("connector.timeframe %q is not a valid interval", c.Timeframe)
	}
	if c.HistoryLookbackMinutes <= 0 {
		return fmt.Errorf("connector.history_lookback_minutes must be > 0")
	}
	if c.HistoryEndOffsetMinutes < 0 {
		return fmt.Errorf("connector.history_end_offset_minutes must be >= 0")
	}
	if c.HistoryEndOffsetMinutes >= c.HistoryLookbackMinutes {
		return fmt.Errorf("connector.history_end_offset_minutes must be below history_lookback_minutes")
	}
	for i, s := range c.Symbols {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("connector.symbols[%d] is empty", i)
		}
	}
	return nil
}

func (b *BacktestConfig) validate() error {
	if b.StartingBalance < 0 {
		return fmt.Errorf("backtest.starting_balance must be >= 0")
	}
	if b.ReplayIntervalMS <= 0 {
		return fmt.Errorf("backtest.replay_interval_ms must be > 0")
	}
	if b.LookbackDays <= 0 {
		return fmt.Errorf("backtest.lookback_days must be > 0")
	}
	if b.WarmupBars < 0 {
		return fmt.Errorf("backtest.warmup_bars must be >= 0")
	}
	switch b.ReplayMode {
	case ReplayBars, ReplayQuotes:
	default:
		return fmt.Errorf("backtest.replay_mode must be %q or %q", ReplayBars, ReplayQuotes)
	}
	switch b.Source {
	case SourceBinance:
	case SourceFile:
		if strings.TrimSpace(b.DataFile) == "" {
			return fmt.Errorf("backtest.data_file is required when backtest.source is %q", SourceFile)
		}
	default:
		return fmt.Errorf("backtest.source must be %q or %q", SourceBinance, SourceFile)
	}
	return nil
}

func (b *BinanceConfig) validate() error {
	if b.Proxy.Enabled && b.Proxy.RESTURL == "" && b.Proxy.WSURL == "" {
		return fmt.Errorf("binance.proxy.enabled requires rest_url or ws_url")
	}
	if (b.APIKey == "") != (b.APISecret == "") {
		return fmt.Errorf("binance.api_key and binance.api_secret must be set together")
	}
	return nil
}

func (s *StrategyConfig) validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return nil
	}
	if s.Quantity <= 0 {
		return fmt.Errorf("strategy.quantity must be > 0")
	}
	if s.FastPeriod <= 0 || s.SlowPeriod <= 0 {
		return fmt.Errorf("strategy periods must be > 0")
	}
	if s.FastPeriod >= s.SlowPeriod {
		return fmt.Errorf("strategy.fast_period must be below strategy.slow_period")
	}
	return nil
}

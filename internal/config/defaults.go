package config

import (
	"strings"

	"conductor/internal/market"
)

const (
	defaultAppEnv        = "dev"
	defaultAppLogLevel   = "info"
	defaultAppHTTPAddr   = ":9991"
	defaultAppLogPath    = "logs/combined.log"
	defaultAppErrLogPath = "logs/error.log"
	defaultLogMaxSizeMB  = 50
	defaultLogMaxBackups = 5
	defaultDatabasePath  = "./db/db.sqlite"
	defaultTimeframe     = "1m"
	defaultLookbackMin   = 20
	defaultEndOffsetMin  = 1
	defaultInboxSize     = 256
	defaultBalance       = 1000
	defaultCurrency      = "USD"
	defaultReplayMS      = 1000
	defaultLookbackDays  = 3
	defaultCacheDir      = "data/candles"
	defaultReportDir     = "data/reports"
	defaultBinanceREST   = "https://fapi.binance.com"
	defaultHTTPTimeout   = 15
	defaultBreakerThresh = 5
	defaultBreakerSecs   = 30
	defaultStrategy      = "sma_cross"
	defaultQuantity      = 0.001
	defaultFastPeriod    = 5
	defaultSlowPeriod    = 20
)

// applyDefaults fills every section; keys present in the file are left alone.
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Database.applyDefaults(keys)
	c.Connector.applyDefaults(keys)
	c.Backtest.applyDefaults(keys)
	c.Binance.applyDefaults(keys)
	c.Strategy.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		stringFieldDefault("app.error_log_path", &a.ErrorLogPath, defaultAppErrLogPath),
		intFieldDefault("app.log_max_size_mb", &a.LogMaxSizeMB, defaultLogMaxSizeMB),
		intFieldDefault("app.log_max_backups", &a.LogMaxBackups, defaultLogMaxBackups),
	)
}

func (d *DatabaseConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys, stringFieldDefault("database.path", &d.Path, defaultDatabasePath))
}

func (c *ConnectorConfig) applyDefaults(keys keySet) {
	exchange := string(market.ExchangeBinance)
	if c.IsBacktest() {
		exchange = string(market.ExchangeBacktest)
	}
	applyFieldDefaults(keys,
		stringFieldDefault("connector.mode", &c.Mode, ModeLive),
		stringFieldDefault("connector.exchange", &c.Exchange, exchange),
		stringFieldDefault("connector.timeframe", &c.Timeframe, defaultTimeframe),
		intFieldDefault("connector.history_lookback_minutes", &c.HistoryLookbackMinutes, defaultLookbackMin),
		intFieldDefault("connector.history_end_offset_minutes", &c.HistoryEndOffsetMinutes, defaultEndOffsetMin),
		intFieldDefault("connector.inbox_size", &c.InboxSize, defaultInboxSize),
	)
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	c.Exchange = strings.ToUpper(strings.TrimSpace(c.Exchange))
}

func (b *BacktestConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "backtest.starting_balance",
			need:  func() bool { return b.StartingBalance == 0 },
			apply: func() { b.StartingBalance = defaultBalance },
		},
		stringFieldDefault("backtest.currency", &b.Currency, defaultCurrency),
		intFieldDefault("backtest.replay_interval_ms", &b.ReplayIntervalMS, defaultReplayMS),
		intFieldDefault("backtest.lookback_days", &b.LookbackDays, defaultLookbackDays),
		stringFieldDefault("backtest.replay_mode", &b.ReplayMode, ReplayBars),
		stringFieldDefault("backtest.source", &b.Source, SourceBinance),
		stringFieldDefault("backtest.cache_dir", &b.CacheDir, defaultCacheDir),
		stringFieldDefault("backtest.report_dir", &b.ReportDir, defaultReportDir),
	)
	b.ReplayMode = strings.ToLower(strings.TrimSpace(b.ReplayMode))
	b.Source = strings.ToLower(strings.TrimSpace(b.Source))
}

func (b *BinanceConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("binance.rest_base_url", &b.RESTBaseURL, defaultBinanceREST),
		intFieldDefault("binance.http_timeout_seconds", &b.HTTPTimeoutSeconds, defaultHTTPTimeout),
		intFieldDefault("binance.breaker_threshold", &b.BreakerThreshold, defaultBreakerThresh),
		intFieldDefault("binance.breaker_timeout_seconds", &b.BreakerTimeoutSeconds, defaultBreakerSecs),
	)
	b.APIKey = strings.TrimSpace(b.APIKey)
	b.APISecret = strings.TrimSpace(b.APISecret)
	b.Proxy.normalize()
}

func (s *StrategyConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("strategy.name", &s.Name, defaultStrategy),
		fieldDefault{
			key:   "strategy.quantity",
			need:  func() bool { return s.Quantity == 0 },
			apply: func() { s.Quantity = defaultQuantity },
		},
		intFieldDefault("strategy.fast_period", &s.FastPeriod, defaultFastPeriod),
		intFieldDefault("strategy.slow_period", &s.SlowPeriod, defaultSlowPeriod),
		stringFieldDefault("strategy.source", &s.Source, string(market.FieldClose)),
	)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

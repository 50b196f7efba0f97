package config

import "strings"

// Config is the root of the conductor configuration file.
type Config struct {
	App       AppConfig       `toml:"app"`
	Database  DatabaseConfig  `toml:"database"`
	Connector ConnectorConfig `toml:"connector"`
	Backtest  BacktestConfig  `toml:"backtest"`
	Binance   BinanceConfig   `toml:"binance"`
	Strategy  StrategyConfig  `toml:"strategy"`
}

type AppConfig struct {
	Env           string `toml:"env"`
	LogLevel      string `toml:"log_level"`
	LogPath       string `toml:"log_path"`
	ErrorLogPath  string `toml:"error_log_path"`
	LogMaxSizeMB  int    `toml:"log_max_size_mb"`
	LogMaxBackups int    `toml:"log_max_backups"`
	HTTPAddr      string `toml:"http_addr"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

const (
	ModeLive     = "live"
	ModeBacktest = "backtest"
)

// ConnectorConfig selects the run mode and what it subscribes to.
type ConnectorConfig struct {
	Mode                    string   `toml:"mode"`
	Exchange                string   `toml:"exchange"`
	Symbols                 []string `toml:"symbols"`
	Timeframe               string   `toml:"timeframe"`
	HistoryLookbackMinutes  int      `toml:"history_lookback_minutes"`
	HistoryEndOffsetMinutes int      `toml:"history_end_offset_minutes"`
	AggregateQuotes         bool     `toml:"aggregate_quotes"`
	InboxSize               int      `toml:"inbox_size"`
}

func (c ConnectorConfig) IsBacktest() bool {
	return strings.EqualFold(strings.TrimSpace(c.Mode), ModeBacktest)
}

const (
	ReplayBars   = "bars"
	ReplayQuotes = "quotes"

	SourceBinance = "binance"
	SourceFile    = "file"
)

type BacktestConfig struct {
	StartingBalance  float64 `toml:"starting_balance"`
	Currency         string  `toml:"currency"`
	ReplayIntervalMS int     `toml:"replay_interval_ms"`
	LookbackDays     int     `toml:"lookback_days"`
	WarmupBars       int     `toml:"warmup_bars"`
	ReplayMode       string  `toml:"replay_mode"`
	Source           string  `toml:"source"`
	DataFile         string  `toml:"data_file"`
	CacheDir         string  `toml:"cache_dir"`
	ReportDir        string  `toml:"report_dir"`
	// ReportPNG also screenshots the html report with headless Chrome.
	ReportPNG bool `toml:"report_png"`
}

type BinanceConfig struct {
	APIKey                string      `toml:"api_key"`
	APISecret             string      `toml:"api_secret"`
	RESTBaseURL           string      `toml:"rest_base_url"`
	HTTPTimeoutSeconds    int         `toml:"http_timeout_seconds"`
	Proxy                 ProxyConfig `toml:"proxy"`
	BreakerThreshold      int         `toml:"breaker_threshold"`
	BreakerTimeoutSeconds int         `toml:"breaker_timeout_seconds"`
}

type ProxyConfig struct {
	Enabled bool   `toml:"enabled"`
	RESTURL string `toml:"rest_url"`
	WSURL   string `toml:"ws_url"`
}

func (p *ProxyConfig) normalize() {
	if p == nil {
		return
	}
	p.RESTURL = strings.TrimSpace(p.RESTURL)
	p.WSURL = strings.TrimSpace(p.WSURL)
}

type StrategyConfig struct {
	Name       string  `toml:"name"`
	Quantity   float64 `toml:"quantity"`
	FastPeriod int     `toml:"fast_period"`
	SlowPeriod int     `toml:"slow_period"`
	Source     string  `toml:"source"`
}

// keySet tracks the dotted paths explicitly present in the config file.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault describes how one field is defaulted.
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}

package app

import (
	"fmt"
	"strings"

	"conductor/internal/backtest"
	"conductor/internal/config"
	"conductor/internal/logger"
	"conductor/internal/market"
	statushttp "conductor/internal/transport/http/status"
)

type StartupSummary struct {
	RunID     string
	Mode      string
	Exchange  string
	Symbols   []string
	Timeframe string
	Strategy  string
	Database  string
	HTTPAddr  string
	Backtest  *BacktestSummary
}

type BacktestSummary struct {
	Source          string
	LookbackDays    int
	Interval        string
	Replay          string
	WarmupBars      int
	StartingBalance float64
	Currency        string
	ReportDir       string
}

func buildSummary(cfg *config.Config, runID string, symbols []market.Symbol, srv *statushttp.Server) *StartupSummary {
	s := &StartupSummary{
		RunID:     runID,
		Mode:      cfg.Connector.Mode,
		Exchange:  cfg.Connector.Exchange,
		Symbols:   market.SymbolNames(symbols),
		Timeframe: cfg.Connector.Timeframe,
		Strategy:  cfg.Strategy.Name,
		Database:  cfg.Database.Path,
	}
	if srv != nil {
		s.HTTPAddr = srv.Addr()
	}
	if cfg.Connector.IsBacktest() {
		bt := cfg.Backtest
		s.Backtest = &BacktestSummary{
			Source:          bt.Source,
			LookbackDays:    bt.LookbackDays,
			Interval:        fmt.Sprintf("%dms", bt.ReplayIntervalMS),
			Replay:          bt.ReplayMode,
			WarmupBars:      bt.WarmupBars,
			StartingBalance: bt.StartingBalance,
			Currency:        bt.Currency,
			ReportDir:       bt.ReportDir,
		}
	}
	return s
}

func (s *StartupSummary) String() string {
	var b strings.Builder
	b.WriteString(strings.Repeat("=", 60) + "\n")
	b.WriteString("STARTUP SUMMARY\n")
	b.WriteString(strings.Repeat("=", 60) + "\n")
	fmt.Fprintf(&b, "  run:        %s\n", s.RunID)
	fmt.Fprintf(&b, "  mode:       %s\n", s.Mode)
	fmt.Fprintf(&b, "  exchange:   %s\n", s.Exchange)
	fmt.Fprintf(&b, "  symbols:    %s\n", formatList(s.Symbols))
	fmt.Fprintf(&b, "  timeframe:  %s\n", s.Timeframe)
	fmt.Fprintf(&b, "  strategy:   %s\n", orDash(s.Strategy))
	fmt.Fprintf(&b, "  database:   %s\n", s.Database)
	fmt.Fprintf(&b, "  status api: %s\n", orDash(s.HTTPAddr))
	if bt := s.Backtest; bt != nil {
		b.WriteString("[backtest]\n")
		fmt.Fprintf(&b, "  source:     %s\n", bt.Source)
		fmt.Fprintf(&b, "  lookback:   %dd\n", bt.LookbackDays)
		fmt.Fprintf(&b, "  replay:     %s every %s (warmup %d)\n", bt.Replay, bt.Interval, bt.WarmupBars)
		fmt.Fprintf(&b, "  balance:    %.2f %s\n", bt.StartingBalance, bt.Currency)
		fmt.Fprintf(&b, "  reports:    %s\n", orDash(bt.ReportDir))
	}
	b.WriteString(strings.Repeat("=", 60))
	return b.String()
}

func (s *StartupSummary) Print() {
	logger.InfoBlock(s.String())
}

func renderResult(sum backtest.Summary) string {
	var b strings.Builder
	b.WriteString(strings.Repeat("-", 60) + "\n")
	fmt.Fprintf(&b, "BACKTEST RESULT %s\n", sum.RunID)
	fmt.Fprintf(&b, "  symbols:    %s\n", formatList(sum.Symbols))
	fmt.Fprintf(&b, "  bars:       %d\n", sum.Bars)
	fmt.Fprintf(&b, "  trades:     %d (open %d)\n", sum.Trades, sum.OpenPositions)
	fmt.Fprintf(&b, "  win rate:   %.2f%% (%dW %dL)\n", sum.WinRate, sum.Wins, sum.Losses)
	fmt.Fprintf(&b, "  balance:    %.2f -> %.2f %s\n", sum.StartingBalance, sum.Balance, sum.Currency)
	fmt.Fprintf(&b, "  equity:     %.2f (unrealized %.2f)\n", sum.Equity, sum.UnrealizedPL)
	fmt.Fprintf(&b, "  return:     %.4f%%\n", sum.ReturnPct)
	b.WriteString(strings.Repeat("-", 60))
	return b.String()
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"conductor/internal/backtest"
	"conductor/internal/config"
	"conductor/internal/connector"
	"conductor/internal/market"
	"conductor/internal/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeDump(t *testing.T, dir string, closes ...float64) string {
	t.Helper()
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC).UnixMilli()
	rows := make([]string, 0, len(closes))
	for i, c := range closes {
		rows = append(rows, fmt.Sprintf(`[%d, %g, %g, %g, %g, 1]`, start+int64(i)*60_000, c, c, c, c))
	}
	body := `{"series":[{"symbol":"BTCUSDT","exchange":"BACKTEST","klines":[` + strings.Join(rows, ",") + `]}]}`
	path := filepath.Join(dir, "dump.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func backtestConfig(t *testing.T, dir, dump string) *config.Config {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf(`
app:
  http_addr: "off"
database:
  path: ":memory:"
connector:
  mode: backtest
  symbols: [BTC/USDT]
backtest:
  source: file
  data_file: %q
  replay_interval_ms: 1
  report_dir: %q
strategy:
  quantity: 2
  fast_period: 2
  slow_period: 3
`, dump, filepath.Join(dir, "reports"))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func TestBacktestRunTradesAndWritesReport(t *testing.T) {
	dir := t.TempDir()
	cfg := backtestConfig(t, dir, writeDump(t, dir, 10, 9, 8, 12, 13, 5))
	st := memory.New()

	a, err := NewApp(cfg, WithStore(st), WithRunID("run-1"))
	require.NoError(t, err)
	assert.Equal(t, "run-1", a.RunID())
	assert.Equal(t, []string{"BTCUSDT"}, a.Summary.Symbols)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, a.Run(ctx))

	assert.Equal(t, connector.StateTerminated, a.Orchestrator().State())
	positions, err := st.GetPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	p := positions[0]
	assert.Equal(t, market.StatusClosed, p.Status)
	assert.Equal(t, 12.0, p.OpenPrice)
	assert.Equal(t, 5.0, p.ClosePrice)
	assert.Equal(t, -14.0, p.PL)

	events, err := st.ListEvents(context.Background(), p.ID, 0)
	require.NoError(t, err)
	assert.Len(t, events, 2)

	raw, err := os.ReadFile(filepath.Join(dir, "reports", "run-1", "summary.yaml"))
	require.NoError(t, err)
	var sum backtest.Summary
	require.NoError(t, yaml.Unmarshal(raw, &sum))
	assert.Equal(t, 1, sum.Trades)
	assert.Equal(t, 1, sum.Losses)
	assert.Equal(t, 986.0, sum.Balance)
	assert.FileExists(t, filepath.Join(dir, "reports", "run-1", "report.html"))
}

func TestBacktestWithoutSymbolsFinishesQuietly(t *testing.T) {
	dir := t.TempDir()
	cfg := backtestConfig(t, dir, writeDump(t, dir, 1, 2, 3))
	cfg.Connector.Symbols = nil

	a, err := NewApp(cfg, WithStore(memory.New()))
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Run(ctx))

	st := a.Orchestrator().Status()
	assert.Equal(t, connector.ErrNoSymbols.Error(), st.Error)
	assert.Zero(t, st.Bars)
}

func TestBuildRejectsUnknownStrategy(t *testing.T) {
	dir := t.TempDir()
	cfg := backtestConfig(t, dir, writeDump(t, dir, 1))
	cfg.Strategy.Name = "does_not_exist"

	_, err := NewAppBuilder(cfg, WithStore(memory.New())).Build(context.Background())
	assert.ErrorContains(t, err, "unknown strategy")
}

func TestBuildFailsOnMissingDump(t *testing.T) {
	dir := t.TempDir()
	cfg := backtestConfig(t, dir, writeDump(t, dir, 1))
	cfg.Backtest.DataFile = filepath.Join(dir, "missing.json")

	_, err := NewAppBuilder(cfg, WithStore(memory.New())).Build(context.Background())
	assert.Error(t, err)
}

func TestStartupSummaryMentionsBacktest(t *testing.T) {
	dir := t.TempDir()
	cfg := backtestConfig(t, dir, writeDump(t, dir, 1))

	a, err := NewApp(cfg, WithStore(memory.New()), WithRunID("run-2"))
	require.NoError(t, err)
	out := a.Summary.String()
	assert.Contains(t, out, "run-2")
	assert.Contains(t, out, "backtest")
	assert.Contains(t, out, "sma_cross")
	assert.Contains(t, out, "1ms")
	a.close()
}

func TestRunRejectsUninitializedApp(t *testing.T) {
	var a *App
	assert.Error(t, a.Run(context.Background()))
}

package backtest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"conductor/internal/analysis/indicator"
	"conductor/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func reportFixture() ReportInput {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	bars := minuteBars(btc, base, 100, 110, 120, 130)
	ptrs := make([]*market.OHLC, len(bars))
	for i := range bars {
		ptrs[i] = &bars[i]
	}
	sma := indicator.NewSMA("", 2, market.FieldClose)
	sma.Init(ptrs)

	win := market.NewPosition("p1", btc, 1, market.SideBuy)
	win.Status = market.StatusClosed
	win.OpenPrice, win.ClosePrice = 100, 130
	win.CloseDate = market.TimePtr(base.Add(3 * time.Minute))

	loss := market.NewPosition("p2", btc, 1, market.SideSell)
	loss.Status = market.StatusClosed
	loss.OpenPrice, loss.ClosePrice = 110, 120
	loss.CloseDate = market.TimePtr(base.Add(2 * time.Minute))

	open := market.NewPosition("p3", btc, 1, market.SideBuy)
	open.OpenPrice, open.ClosePrice = 120, 130

	return ReportInput{
		RunID:           "run-1",
		Bars:            ptrs,
		Indicators:      []indicator.Indicator{sma},
		Positions:       []market.Position{win, loss, open},
		Account:         market.Account{Currency: "USD", Balance: 1020, Equity: 1030, PL: 10},
		StartingBalance: 1000,
		StartedAt:       base,
		FinishedAt:      base.Add(time.Hour),
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(reportFixture())
	assert.Equal(t, []string{"BTCUSDT"}, s.Symbols)
	assert.Equal(t, 4, s.Bars)
	assert.Equal(t, 2, s.Trades)
	assert.Equal(t, 1, s.Wins)
	assert.Equal(t, 1, s.Losses)
	assert.Equal(t, 1, s.OpenPositions)
	assert.Equal(t, 50.0, s.WinRate)
	assert.Equal(t, 3.0, s.ReturnPct)
}

func TestEquityCurveOrdersByCloseDate(t *testing.T) {
	x, y := equityCurve(reportFixture())
	assert.Equal(t, []float64{1000, 990, 1020}, y)
	assert.Equal(t, "start", x[0])
	assert.Len(t, x, 3)
}

func TestToLineDataRightAligns(t *testing.T) {
	data := toLineData([]float64{1, 2}, 4)
	require.Len(t, data, 4)
	assert.Nil(t, data[0].Value)
	assert.Nil(t, data[1].Value)
	assert.Equal(t, 1.0, data[2].Value)
	assert.Equal(t, 2.0, data[3].Value)

	data = toLineData([]float64{1, 2, 3}, 2)
	assert.Equal(t, 2.0, data[0].Value)
	assert.Equal(t, 3.0, data[1].Value)
}

func TestWriteReport(t *testing.T) {
	dir := t.TempDir()
	files, err := WriteReport(dir, reportFixture())
	require.NoError(t, err)

	html, err := os.ReadFile(files.HTML)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(html), "BTCUSDT"))
	assert.True(t, strings.Contains(string(html), "sma2"))

	raw, err := os.ReadFile(files.Summary)
	require.NoError(t, err)
	var got Summary
	require.NoError(t, yaml.Unmarshal(raw, &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, 2, got.Trades)
	assert.Equal(t, 1030.0, got.Equity)
}

func TestWriteReportRequiresDir(t *testing.T) {
	_, err := WriteReport("", reportFixture())
	assert.Error(t, err)
}

func TestSnapshotNeedsReport(t *testing.T) {
	_, err := Snapshot(context.Background(), filepath.Join(t.TempDir(), "missing.html"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

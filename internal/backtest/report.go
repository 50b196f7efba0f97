package backtest

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"conductor/internal/analysis/indicator"
	"conductor/internal/market"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	"gopkg.in/yaml.v3"
)

const (
	chartWidthPx  = 1280
	klineHeightPx = 520
	equityHeight  = 320

	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorBull          = "#34d399"
	colorBear          = "#f87171"
	colorEquity        = "#fbbf24"
)

var lineColors = []string{"#3b82f6", "#f472b6", "#22d3ee", "#a78bfa"}

// ReportInput is the end-of-run state the report is built from.
type ReportInput struct {
	RunID           string
	Bars            []*market.OHLC
	Indicators      []indicator.Indicator
	Positions       []market.Position
	Account         market.Account
	StartingBalance float64
	StartedAt       time.Time
	FinishedAt      time.Time
}

// Summary is written to summary.yaml.
type Summary struct {
	RunID           string    `yaml:"run_id"`
	StartedAt       time.Time `yaml:"started_at"`
	FinishedAt      time.Time `yaml:"finished_at"`
	Symbols         []string  `yaml:"symbols"`
	Bars            int       `yaml:"bars"`
	FirstBar        time.Time `yaml:"first_bar,omitempty"`
	LastBar         time.Time `yaml:"last_bar,omitempty"`
	Trades          int       `yaml:"trades"`
	OpenPositions   int       `yaml:"open_positions"`
	Wins            int       `yaml:"wins"`
	Losses          int       `yaml:"losses"`
	WinRate         float64   `yaml:"win_rate"`
	Currency        string    `yaml:"currency"`
	StartingBalance float64   `yaml:"starting_balance"`
	Balance         float64   `yaml:"balance"`
	Equity          float64   `yaml:"equity"`
	UnrealizedPL    float64   `yaml:"unrealized_pl"`
	ReturnPct       float64   `yaml:"return_pct"`
}

// ReportFiles are the paths written by WriteReport.
type ReportFiles struct {
	HTML    string
	Summary string
}

// Summarize derives the run statistics from the final state.
func Summarize(in ReportInput) Summary {
	s := Summary{
		RunID:           in.RunID,
		StartedAt:       in.StartedAt.UTC(),
		FinishedAt:      in.FinishedAt.UTC(),
		Symbols:         symbolsOf(in.Bars),
		Bars:            len(in.Bars),
		Currency:        in.Account.Currency,
		StartingBalance: in.StartingBalance,
		Balance:         in.Account.Balance,
		Equity:          in.Account.Equity,
		UnrealizedPL:    in.Account.PL,
	}
	if n := len(in.Bars); n > 0 {
		s.FirstBar = in.Bars[0].Timestamp.UTC()
		s.LastBar = in.Bars[n-1].Timestamp.UTC()
	}
	for _, p := range in.Positions {
		if p.IsOpen() {
			s.OpenPositions++
			continue
		}
		s.Trades++
		if market.PositionPL(p) > 0 {
			s.Wins++
		} else {
			s.Losses++
		}
	}
	if s.Trades > 0 {
		s.WinRate = round(float64(s.Wins)/float64(s.Trades)*100, 2)
	}
	if in.StartingBalance != 0 {
		s.ReturnPct = round((in.Account.Equity-in.StartingBalance)/in.StartingBalance*100, 4)
	}
	return s
}

// WriteReport renders report.html and summary.yaml into dir.
func WriteReport(dir string, in ReportInput) (ReportFiles, error) {
	if strings.TrimSpace(dir) == "" {
		return ReportFiles{}, fmt.Errorf("report dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ReportFiles{}, err
	}
	files := ReportFiles{
		HTML:    filepath.Join(dir, "report.html"),
		Summary: filepath.Join(dir, "summary.yaml"),
	}
	html, err := renderHTML(in)
	if err != nil {
		return ReportFiles{}, fmt.Errorf("render report: %w", err)
	}
	if err := os.WriteFile(files.HTML, html, 0o644); err != nil {
		return ReportFiles{}, err
	}
	raw, err := yaml.Marshal(Summarize(in))
	if err != nil {
		return ReportFiles{}, err
	}
	if err := os.WriteFile(files.Summary, raw, 0o644); err != nil {
		return ReportFiles{}, err
	}
	return files, nil
}

func renderHTML(in ReportInput) ([]byte, error) {
	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.PageTitle = "backtest " + in.RunID

	symbols := symbolsOf(in.Bars)
	for _, name := range symbols {
		bars := barsFor(in.Bars, name)
		kline := buildKline(name, bars)
		// indicators see every symbol's bars, so they only line up with a single series
		if len(symbols) == 1 && len(in.Indicators) > 0 {
			kline.Overlap(buildIndicatorLines(bars, in.Indicators))
		}
		page.AddCharts(kline)
	}
	page.AddCharts(buildEquity(in))

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func buildKline(name string, bars []*market.OHLC) *charts.Kline {
	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", klineHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTitleOpts(opts.Title{
			Title:      strings.ToUpper(name),
			Left:       "left",
			TitleStyle: &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
		}),
	)
	kline.SetSeriesOptions(
		charts.WithItemStyleOpts(opts.ItemStyle{
			Color:        colorBull,
			Color0:       colorBear,
			BorderColor:  colorBull,
			BorderColor0: colorBear,
		}),
	)
	x := make([]string, len(bars))
	data := make([]opts.KlineData, len(bars))
	for i, b := range bars {
		x[i] = b.Timestamp.UTC().Format("01-02 15:04")
		data[i] = opts.KlineData{Value: [4]float64{b.Open, b.Close, b.Low, b.High}}
	}
	kline.SetXAxis(x)
	kline.AddSeries("Price", data)
	return kline
}

func buildIndicatorLines(bars []*market.OHLC, inds []indicator.Indicator) *charts.Line {
	line := charts.NewLine()
	line.SetSeriesOptions(
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)
	x := make([]string, len(bars))
	for i, b := range bars {
		x[i] = b.Timestamp.UTC().Format("01-02 15:04")
	}
	line.SetXAxis(x)
	for i, ind := range inds {
		color := lineColors[i%len(lineColors)]
		line.AddSeries(ind.Name(), toLineData(ind.Values(), len(bars)),
			charts.WithLineStyleOpts(opts.LineStyle{Color: color, Width: 2}))
	}
	return line
}

// equityCurve walks closed positions by close date and accumulates their P&L
// onto the starting balance.
func equityCurve(in ReportInput) ([]string, []float64) {
	closed := make([]market.Position, 0, len(in.Positions))
	for _, p := range in.Positions {
		if !p.IsOpen() && p.CloseDate != nil {
			closed = append(closed, p)
		}
	}
	sort.SliceStable(closed, func(i, j int) bool { return closed[i].CloseDate.Before(*closed[j].CloseDate) })

	x := []string{"start"}
	y := []float64{in.StartingBalance}
	balance := in.StartingBalance
	for _, p := range closed {
		balance += market.PositionPL(p)
		x = append(x, p.CloseDate.UTC().Format("01-02 15:04"))
		y = append(y, round(balance, 4))
	}
	return x, y
}

func buildEquity(in ReportInput) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", equityHeight),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{Title: "Balance", Left: "left", TitleStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
		}),
	)
	x, y := equityCurve(in)
	data := make([]opts.LineData, len(y))
	for i, v := range y {
		data[i] = opts.LineData{Value: v}
	}
	line.SetXAxis(x)
	line.AddSeries("balance", data, charts.WithLineStyleOpts(opts.LineStyle{Color: colorEquity, Width: 2}))
	return line
}

// toLineData right-aligns series against length points; missing or NaN
// values become gaps.
func toLineData(series []float64, length int) []opts.LineData {
	if len(series) > length {
		series = series[len(series)-length:]
	}
	out := make([]opts.LineData, length)
	offset := length - len(series)
	for i := 0; i < offset; i++ {
		out[i] = opts.LineData{Value: nil}
	}
	for i, v := range series {
		if math.IsNaN(v) {
			out[offset+i] = opts.LineData{Value: nil}
			continue
		}
		out[offset+i] = opts.LineData{Value: round(v, 4)}
	}
	return out
}

func symbolsOf(bars []*market.OHLC) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, b := range bars {
		if b == nil {
			continue
		}
		if _, ok := seen[b.Symbol.Name]; ok {
			continue
		}
		seen[b.Symbol.Name] = struct{}{}
		out = append(out, b.Symbol.Name)
	}
	return out
}

func barsFor(bars []*market.OHLC, name string) []*market.OHLC {
	out := make([]*market.OHLC, 0, len(bars))
	for _, b := range bars {
		if b != nil && b.Symbol.Name == name {
			out = append(out, b)
		}
	}
	return out
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

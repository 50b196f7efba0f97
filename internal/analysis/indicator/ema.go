package indicator

import (
	"fmt"

	"github.com/markcheno/go-talib"

	"conductor/internal/market"
)

// EMA seeds with the SMA of the first period values and then applies the
// standard 2/(n+1) smoothing.
type EMA struct {
	series
	name   string
	period int
	source market.Field
	seed   []float64
	prev   float64
	before float64
	ready  bool
}

func NewEMA(name string, period int, source market.Field) *EMA {
	if period <= 0 {
		period = 1
	}
	if name == "" {
		name = fmt.Sprintf("ema%d", period)
	}
	if source == "" {
		source = market.FieldClose
	}
	return &EMA{name: name, period: period, source: source}
}

func (e *EMA) Name() string { return e.name }

func (e *EMA) Init(bars []*market.OHLC) {
	e.seed = e.seed[:0]
	e.values = nil
	e.prev = 0
	e.before = 0
	e.ready = false
	for _, b := range bars {
		if b == nil {
			continue
		}
		e.NextValue(*b)
	}
}

func (e *EMA) NextValue(bar market.OHLC) {
	v := bar.Value(e.source)
	if !e.ready {
		e.seed = append(e.seed, v)
		if len(e.seed) < e.period {
			return
		}
		e.prev = e.seedValue()
		e.ready = true
		e.values = append(e.values, e.prev)
		return
	}
	e.before = e.prev
	e.prev = e.smooth(v, e.before)
	e.values = append(e.values, e.prev)
}

// UpdateLast recomputes the newest output from the value preceding it. The
// seed window is kept after seeding so the first output can be revised too.
func (e *EMA) UpdateLast(bar market.OHLC) {
	v := bar.Value(e.source)
	switch {
	case len(e.seed) == 0:
		e.NextValue(bar)
	case !e.ready:
		e.seed[len(e.seed)-1] = v
	case len(e.values) == 1:
		e.seed[len(e.seed)-1] = v
		e.prev = e.seedValue()
		e.values[0] = e.prev
	default:
		e.prev = e.smooth(v, e.before)
		e.values[len(e.values)-1] = e.prev
	}
}

func (e *EMA) seedValue() float64 {
	out := talib.Sma(e.seed, e.period)
	return out[e.period-1]
}

func (e *EMA) smooth(v, prev float64) float64 {
	k := 2.0 / float64(e.period+1)
	return (v-prev)*k + prev
}

package indicator

import (
	"fmt"

	"github.com/markcheno/go-talib"

	"conductor/internal/market"
)

// SMA is a simple moving average over one bar field.
type SMA struct {
	series
	name   string
	period int
	source market.Field
	inputs []float64
}

// NewSMA returns an SMA named "sma<period>" unless name is given.
func NewSMA(name string, period int, source market.Field) *SMA {
	if period <= 0 {
		period = 1
	}
	if name == "" {
		name = fmt.Sprintf("sma%d", period)
	}
	if source == "" {
		source = market.FieldClose
	}
	return &SMA{name: name, period: period, source: source}
}

func (s *SMA) Name() string { return s.name }

func (s *SMA) Period() int { return s.period }

func (s *SMA) Source() market.Field { return s.source }

// Init replays bars through NextValue so both paths share arithmetic.
func (s *SMA) Init(bars []*market.OHLC) {
	s.inputs = s.inputs[:0]
	s.values = nil
	for _, b := range bars {
		if b == nil {
			continue
		}
		s.NextValue(*b)
	}
}

func (s *SMA) NextValue(bar market.OHLC) {
	s.inputs = append(s.inputs, bar.Value(s.source))
	if len(s.inputs) > s.period {
		s.inputs = s.inputs[len(s.inputs)-s.period:]
	}
	if len(s.inputs) < s.period {
		return
	}
	s.values = append(s.values, s.compute())
}

func (s *SMA) UpdateLast(bar market.OHLC) {
	if len(s.inputs) == 0 {
		s.NextValue(bar)
		return
	}
	s.inputs[len(s.inputs)-1] = bar.Value(s.source)
	// a full window means the last NextValue produced an output
	if len(s.inputs) == s.period && len(s.values) > 0 {
		s.values[len(s.values)-1] = s.compute()
	}
}

func (s *SMA) compute() float64 {
	window := make([]float64, s.period)
	copy(window, s.inputs)
	out := talib.Sma(window, s.period)
	return out[s.period-1]
}

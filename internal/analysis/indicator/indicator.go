package indicator

import (
	"sync"

	"conductor/internal/market"
)

// Indicator is a rolling computation over the bar stream.
type Indicator interface {
	Name() string
	// Init resets the indicator and feeds the full history.
	Init(bars []*market.OHLC)
	// NextValue feeds one more bar.
	NextValue(bar market.OHLC)
	// UpdateLast replaces the most recent bar fed and recomputes its output
	// in place.
	UpdateLast(bar market.OHLC)
	// LastValue returns (0, false) until enough observations exist.
	LastValue() (float64, bool)
	Value(index int) (float64, bool)
	Values() []float64
}

// Pipeline holds named indicators and fans bars out to them in registration order.
type Pipeline struct {
	mu    sync.RWMutex
	order []string
	items map[string]Indicator
}

func NewPipeline() *Pipeline {
	return &Pipeline{items: make(map[string]Indicator)}
}

// Add registers ind under its name. Re-adding a name replaces the previous
// indicator and keeps its position.
func (p *Pipeline) Add(ind Indicator) {
	if ind == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	name := ind.Name()
	if _, ok := p.items[name]; !ok {
		p.order = append(p.order, name)
	}
	p.items[name] = ind
}

func (p *Pipeline) Init(bars []*market.OHLC) {
	for _, ind := range p.All() {
		ind.Init(bars)
	}
}

func (p *Pipeline) NextValue(bar market.OHLC) {
	for _, ind := range p.All() {
		ind.NextValue(bar)
	}
}

// Update revises the last bar in every indicator. Ticks that extend the
// current bar go through here so outputs stay one per bar.
func (p *Pipeline) Update(bar market.OHLC) {
	for _, ind := range p.All() {
		ind.UpdateLast(bar)
	}
}

func (p *Pipeline) Get(name string) (Indicator, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ind, ok := p.items[name]
	return ind, ok
}

// All returns the indicators in registration order.
func (p *Pipeline) All() []Indicator {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Indicator, 0, len(p.order))
	for _, name := range p.order {
		out = append(out, p.items[name])
	}
	return out
}

func (p *Pipeline) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.order)
}

// series is the shared output buffer behind the concrete indicators.
type series struct {
	values []float64
}

func (s *series) LastValue() (float64, bool) {
	if len(s.values) == 0 {
		return 0, false
	}
	return s.values[len(s.values)-1], true
}

func (s *series) Value(index int) (float64, bool) {
	if index < 0 || index >= len(s.values) {
		return 0, false
	}
	return s.values[index], true
}

func (s *series) Values() []float64 {
	return s.values
}

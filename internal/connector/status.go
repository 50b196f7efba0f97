package connector

import (
	"sync"
	"time"

	"conductor/internal/market"
	"conductor/internal/trading"
)

const statusBarTail = 200

// Status is a copy of the run state that is safe to read from other
// goroutines. The trading context itself is only touched by the loop.
type Status struct {
	Mode      string        `json:"mode"`
	State     string        `json:"state"`
	Symbols   []string      `json:"symbols"`
	Ticks     int           `json:"ticks"`
	Bars      int           `json:"bars"`
	LastTick  *market.Tick  `json:"last_tick,omitempty"`
	Tail      []market.OHLC `json:"-"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// LastBar returns the most recent bar of the tail.
func (s Status) LastBar() (market.OHLC, bool) {
	if len(s.Tail) == 0 {
		return market.OHLC{}, false
	}
	return s.Tail[len(s.Tail)-1], true
}

type statusTracker struct {
	mu sync.RWMutex
	st Status
}

func newStatusTracker(mode string) *statusTracker {
	return &statusTracker{st: Status{
		Mode:      mode,
		State:     StateIdle.String(),
		StartedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}}
}

func (t *statusTracker) setState(s State) {
	t.mu.Lock()
	t.st.State = s.String()
	t.st.UpdatedAt = time.Now().UTC()
	t.mu.Unlock()
}

func (t *statusTracker) setErr(err error) {
	if err == nil {
		return
	}
	t.mu.Lock()
	t.st.Error = err.Error()
	t.mu.Unlock()
}

// record copies counters and the bar tail out of tc. It must be called from
// the loop that owns tc.
func (t *statusTracker) record(tc *trading.Context) {
	bars := tc.Bars()
	from := 0
	if len(bars) > statusBarTail {
		from = len(bars) - statusBarTail
	}
	tail := make([]market.OHLC, 0, len(bars)-from)
	for _, b := range bars[from:] {
		if b != nil {
			tail = append(tail, *b)
		}
	}
	var last *market.Tick
	if tick, ok := tc.LastTick(); ok {
		last = &tick
	}
	symbols := market.SymbolNames(tc.Symbols())

	t.mu.Lock()
	t.st.Symbols = symbols
	t.st.Ticks = len(tc.Ticks())
	t.st.Bars = len(bars)
	t.st.LastTick = last
	t.st.Tail = tail
	t.st.UpdatedAt = time.Now().UTC()
	t.mu.Unlock()
}

func (t *statusTracker) snapshot() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := t.st
	out.Symbols = append([]string(nil), t.st.Symbols...)
	out.Tail = append([]market.OHLC(nil), t.st.Tail...)
	return out
}

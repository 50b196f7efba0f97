// Package aggregator folds ticks into one-minute bars and merges paginated
// historical bars.
package aggregator

import (
	"errors"

	"conductor/internal/market"
	"conductor/internal/scheduler"
)

// Mode selects where the "last bar" is read from.
type Mode int

const (
	// Windowed keeps its own last bar.
	Windowed Mode = iota
	// Continuous reads the last bar from the shared history.
	Continuous
)

// History is the bar store new bars are appended to.
type History interface {
	AddBar(b *market.OHLC)
	LastBarOf(sym market.Symbol) (*market.OHLC, error)
}

// Aggregator turns a timestamp-ordered tick stream into 1-minute bars, one
// series per symbol. Buckets are never reopened once a newer bar exists.
type Aggregator struct {
	mode    Mode
	history History
	last    map[market.Symbol]*market.OHLC
}

func New(mode Mode, history History) *Aggregator {
	return &Aggregator{mode: mode, history: history, last: make(map[market.Symbol]*market.OHLC)}
}

func NewWindowed(history History) *Aggregator { return New(Windowed, history) }

func NewContinuous(history History) *Aggregator { return New(Continuous, history) }

// Push folds t into the current bar. It returns the affected bar and
// created=true when t opened a new minute.
func (a *Aggregator) Push(t market.Tick) (bar *market.OHLC, created bool) {
	last := a.lastBar(t.Symbol)
	if last == nil || last.Symbol != t.Symbol || !scheduler.SameMinute(last.Timestamp, t.Timestamp) {
		b := &market.OHLC{
			Symbol:    t.Symbol,
			Open:      t.AskPrice,
			High:      t.AskPrice,
			Low:       t.AskPrice,
			Close:     t.AskPrice,
			Volume:    t.AskSize + t.BidSize,
			Timestamp: t.Timestamp,
		}
		a.last[t.Symbol] = b
		if a.history != nil {
			a.history.AddBar(b)
		}
		return b, true
	}
	if t.AskPrice > last.High {
		last.High = t.AskPrice
	}
	if t.AskPrice < last.Low {
		last.Low = t.AskPrice
	}
	last.Close = t.AskPrice
	last.Volume += t.AskSize + t.BidSize
	return last, false
}

// Last returns the bar the next tick of sym would be compared against.
func (a *Aggregator) Last(sym market.Symbol) *market.OHLC {
	return a.lastBar(sym)
}

func (a *Aggregator) lastBar(sym market.Symbol) *market.OHLC {
	if a.mode == Windowed || a.history == nil {
		return a.last[sym]
	}
	b, err := a.history.LastBarOf(sym)
	if err != nil {
		if !errors.Is(err, market.ErrEmptyHistory) {
			return a.last[sym]
		}
		return nil
	}
	return b
}

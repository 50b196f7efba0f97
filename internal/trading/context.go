// Package trading holds the per-run state shared between the orchestrator
// and the strategy.
package trading

import (
	"conductor/internal/analysis/indicator"
	"conductor/internal/market"
)

// Context is owned by one orchestrator run and handed to strategy callbacks by
// pointer. It is not safe for concurrent use; the orchestrator's event loop is
// the only writer and callbacks run one at a time.
type Context struct {
	runID    string
	symbols  []market.Symbol
	ticks    []market.Tick
	bars     []*market.OHLC
	pipeline *indicator.Pipeline
	orders   *Orders
	accounts *Accounts
}

// Option configures a Context at construction.
type Option func(*Context)

func WithOrders(o *Orders) Option { return func(c *Context) { c.orders = o } }

func WithAccounts(a *Accounts) Option { return func(c *Context) { c.accounts = a } }

func WithPipeline(p *indicator.Pipeline) Option { return func(c *Context) { c.pipeline = p } }

func WithRunID(id string) Option { return func(c *Context) { c.runID = id } }

func NewContext(opts ...Option) *Context {
	c := &Context{}
	for _, opt := range opts {
		opt(c)
	}
	if c.pipeline == nil {
		c.pipeline = indicator.NewPipeline()
	}
	return c
}

func (c *Context) RunID() string { return c.runID }

// AddSymbol appends symbols in order. Duplicates are kept.
func (c *Context) AddSymbol(symbols ...market.Symbol) {
	c.symbols = append(c.symbols, symbols...)
}

func (c *Context) Symbols() []market.Symbol { return c.symbols }

// HasExchange reports whether any tracked symbol trades on ex.
func (c *Context) HasExchange(ex market.Exchange) bool {
	for _, s := range c.symbols {
		if s.Exchange == ex {
			return true
		}
	}
	return false
}

func (c *Context) AddTick(t market.Tick) {
	c.ticks = append(c.ticks, t)
}

func (c *Context) Ticks() []market.Tick { return c.ticks }

// LastTick returns the most recent tick, if any.
func (c *Context) LastTick() (market.Tick, bool) {
	if len(c.ticks) == 0 {
		return market.Tick{}, false
	}
	return c.ticks[len(c.ticks)-1], true
}

func (c *Context) AddBar(b *market.OHLC) {
	if b == nil {
		return
	}
	c.bars = append(c.bars, b)
}

func (c *Context) AddBars(bars []*market.OHLC) {
	for _, b := range bars {
		c.AddBar(b)
	}
}

// Bars returns the backing history. Elements are shared with the aggregator,
// so in-place updates to the open bar are visible to callers.
func (c *Context) Bars() []*market.OHLC { return c.bars }

// LastBar fails with market.ErrEmptyHistory before the first bar.
func (c *Context) LastBar() (*market.OHLC, error) {
	if len(c.bars) == 0 {
		return nil, market.ErrEmptyHistory
	}
	return c.bars[len(c.bars)-1], nil
}

// LastBarOf returns the newest bar of sym, or market.ErrEmptyHistory when sym
// has none yet.
func (c *Context) LastBarOf(sym market.Symbol) (*market.OHLC, error) {
	for i := len(c.bars) - 1; i >= 0; i-- {
		if c.bars[i].Symbol == sym {
			return c.bars[i], nil
		}
	}
	return nil, market.ErrEmptyHistory
}

func (c *Context) AddIndicator(ind indicator.Indicator) {
	c.pipeline.Add(ind)
}

func (c *Context) Indicator(name string) (indicator.Indicator, bool) {
	return c.pipeline.Get(name)
}

func (c *Context) Indicators() []indicator.Indicator {
	return c.pipeline.All()
}

func (c *Context) Pipeline() *indicator.Pipeline { return c.pipeline }

// Orders may be nil when the run has no broker attached.
func (c *Context) Orders() *Orders { return c.orders }

func (c *Context) Accounts() *Accounts { return c.accounts }

package market

import (
	"context"
	"time"
)

// BarSequence is a finite, forward-only stream of bars. Next returns
// ok=false once the stream is exhausted; it is not restartable.
type BarSequence interface {
	Next(ctx context.Context) (bar OHLC, ok bool, err error)
}

// HistoryRequest bounds a historical fetch.
type HistoryRequest struct {
	Start     time.Time
	End       time.Time
	Timeframe string
}

// SliceSequence replays a fixed set of bars.
type SliceSequence struct {
	bars []OHLC
	pos  int
}

func NewSliceSequence(bars ...OHLC) *SliceSequence {
	return &SliceSequence{bars: bars}
}

func (s *SliceSequence) Next(ctx context.Context) (OHLC, bool, error) {
	if err := ctx.Err(); err != nil {
		return OHLC{}, false, err
	}
	if s.pos >= len(s.bars) {
		return OHLC{}, false, nil
	}
	b := s.bars[s.pos]
	s.pos++
	return b, true, nil
}

// PageFunc fetches one page of bars starting at cursor. It returns the next
// cursor and done=true when no further pages exist.
type PageFunc func(ctx context.Context, cursor time.Time) (page []OHLC, next time.Time, done bool, err error)

// PagedSequence lazily walks pages produced by fetch, one element at a time.
type PagedSequence struct {
	fetch  PageFunc
	cursor time.Time
	buf    []OHLC
	done   bool
}

func NewPagedSequence(start time.Time, fetch PageFunc) *PagedSequence {
	return &PagedSequence{fetch: fetch, cursor: start}
}

func (p *PagedSequence) Next(ctx context.Context) (OHLC, bool, error) {
	for len(p.buf) == 0 {
		if p.done || p.fetch == nil {
			return OHLC{}, false, nil
		}
		prev := p.cursor
		page, next, done, err := p.fetch(ctx, prev)
		if err != nil {
			return OHLC{}, false, err
		}
		p.buf = page
		p.cursor = next
		p.done = done
		if len(page) == 0 && !done && !next.After(prev) {
			// no progress; treat as exhausted rather than spin
			p.done = true
		}
	}
	b := p.buf[0]
	p.buf = p.buf[1:]
	return b, true, nil
}

// Concat drains sequences in order.
func Concat(seqs ...BarSequence) BarSequence {
	return &concatSequence{seqs: seqs}
}

type concatSequence struct {
	seqs []BarSequence
}

func (c *concatSequence) Next(ctx context.Context) (OHLC, bool, error) {
	for len(c.seqs) > 0 {
		b, ok, err := c.seqs[0].Next(ctx)
		if err != nil {
			return OHLC{}, false, err
		}
		if ok {
			return b, true, nil
		}
		c.seqs = c.seqs[1:]
	}
	return OHLC{}, false, nil
}

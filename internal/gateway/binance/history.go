package binance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"conductor/internal/market"
	symbolpkg "conductor/internal/pkg/symbol"
	"conductor/internal/scheduler"
)

const maxHistoryLimit = 1500

// HistoricalBars walks the klines endpoint page by page for each symbol.
// Pages are only requested as the returned sequence is consumed.
func (c *Client) HistoricalBars(_ context.Context, symbols []string, req market.HistoryRequest) (market.BarSequence, error) {
	interval := normalizeInterval(req.Timeframe)
	step, ok := scheduler.ParseIntervalDuration(interval)
	if !ok {
		return nil, fmt.Errorf("unsupported timeframe %q", req.Timeframe)
	}
	if !req.End.After(req.Start) {
		return nil, fmt.Errorf("history window is empty: %s .. %s", req.Start, req.End)
	}
	seqs := make([]market.BarSequence, 0, len(symbols))
	for _, name := range symbols {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		seqs = append(seqs, market.NewPagedSequence(req.Start, c.klinePages(name, interval, step, req.End)))
	}
	return market.Concat(seqs...), nil
}

// klinePages returns a PageFunc fetching up to maxHistoryLimit klines from
// the cursor; the next cursor is one step after the last open time.
func (c *Client) klinePages(name, interval string, step time.Duration, end time.Time) market.PageFunc {
	exchangeSymbol := symbolpkg.Binance.ToExchange(name)
	sym := market.Symbol{Name: name, Exchange: market.ExchangeBinance}
	return func(ctx context.Context, cursor time.Time) ([]market.OHLC, time.Time, bool, error) {
		if !cursor.Before(end) {
			return nil, cursor, true, nil
		}
		kls, err := c.klines(ctx, exchangeSymbol, interval, cursor, end, maxHistoryLimit)
		if err != nil {
			return nil, cursor, false, fmt.Errorf("klines %s %s from %s: %w", exchangeSymbol, interval, cursor.Format(time.RFC3339), err)
		}
		page := make([]market.OHLC, 0, len(kls))
		next := cursor
		for _, kl := range kls {
			bar, ok := klineToOHLC(sym, kl)
			if !ok {
				continue
			}
			page = append(page, bar)
			if after := bar.Timestamp.Add(step); after.After(next) {
				next = after
			}
		}
		page = scheduler.DropUnclosedBar(page, step)
		done := len(kls) < maxHistoryLimit || !next.Before(end)
		return page, next, done, nil
	}
}

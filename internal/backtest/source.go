package backtest

import (
	"context"
	"fmt"
	"time"

	"conductor/internal/gateway/exchange"
	"conductor/internal/logger"
	"conductor/internal/market"
)

// HistorySource yields the bars a backtest replays.
type HistorySource interface {
	Name() string
	Bars(ctx context.Context, sym market.Symbol, req market.HistoryRequest) (market.BarSequence, error)
}

// UpstreamSource reads history from a live venue's klines endpoint and
// relabels the bars with the backtest symbol.
type UpstreamSource struct {
	md exchange.MarketData
}

func NewUpstreamSource(md exchange.MarketData) *UpstreamSource {
	return &UpstreamSource{md: md}
}

func (s *UpstreamSource) Name() string { return s.md.Name() }

func (s *UpstreamSource) Bars(ctx context.Context, sym market.Symbol, req market.HistoryRequest) (market.BarSequence, error) {
	seq, err := s.md.HistoricalBars(ctx, []string{sym.Name}, req)
	if err != nil {
		return nil, err
	}
	return &relabel{seq: seq, sym: sym}, nil
}

type relabel struct {
	seq market.BarSequence
	sym market.Symbol
}

func (r *relabel) Next(ctx context.Context) (market.OHLC, bool, error) {
	b, ok, err := r.seq.Next(ctx)
	if ok {
		b.Symbol = r.sym
	}
	return b, ok, err
}

// CachedSource serves a window from the candle cache when the cache covers
// it and otherwise drains the upstream source into the cache first.
type CachedSource struct {
	cache    *Cache
	upstream HistorySource
}

func NewCachedSource(cache *Cache, upstream HistorySource) *CachedSource {
	return &CachedSource{cache: cache, upstream: upstream}
}

func (s *CachedSource) Name() string { return "cache+" + s.upstream.Name() }

func (s *CachedSource) Bars(ctx context.Context, sym market.Symbol, req market.HistoryRequest) (market.BarSequence, error) {
	tf, err := ParseTimeframe(req.Timeframe)
	if err != nil {
		return nil, err
	}
	start, end := tf.AlignRange(req.Start, req.End)
	if end < start {
		return market.NewSliceSequence(), nil
	}
	m, err := s.cache.Manifest(ctx, sym.Name, tf)
	if err != nil {
		return nil, fmt.Errorf("cache manifest %s@%s: %w", sym.Name, tf, err)
	}
	// the newest bar may still be missing upstream, so one step of slack
	if m.Covers(start, end-tf.durationMillis()) {
		bars, err := s.cache.RangeBars(ctx, sym, tf, start, end)
		if err != nil {
			return nil, err
		}
		logger.Debugf("backtest: %s@%s served %d bars from cache", sym.Name, tf, len(bars))
		return market.NewSliceSequence(bars...), nil
	}

	seq, err := s.upstream.Bars(ctx, sym, req)
	if err != nil {
		return nil, err
	}
	var bars []market.OHLC
	for {
		b, ok, err := seq.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		bars = append(bars, b)
	}
	n, err := s.cache.InsertBars(ctx, sym.Name, tf, bars)
	if err != nil {
		logger.Warnf("backtest: cache %s@%s write failed: %v", sym.Name, tf, err)
	} else {
		logger.Infof("backtest: cached %d bars for %s@%s (%s .. %s)", n, sym.Name, tf,
			time.UnixMilli(start).UTC().Format(time.RFC3339), time.UnixMilli(end).UTC().Format(time.RFC3339))
	}
	return market.NewSliceSequence(bars...), nil
}

package aggregator

import (
	"context"
	"fmt"
	"sort"

	"conductor/internal/market"
)

type backfillKey struct {
	symbol market.Symbol
	nanos  int64
}

// Backfill drains seq one element at a time and merges bars that share an
// exact timestamp: volumes add up and the later close wins. The result is
// sorted by timestamp with arrival order kept for equal instants.
func Backfill(ctx context.Context, seq market.BarSequence) ([]*market.OHLC, error) {
	if seq == nil {
		return nil, nil
	}
	var out []*market.OHLC
	index := make(map[backfillKey]*market.OHLC)
	for {
		b, ok, err := seq.Next(ctx)
		if err != nil {
			return out, fmt.Errorf("backfill after %d bars: %w", len(out), err)
		}
		if !ok {
			break
		}
		key := backfillKey{symbol: b.Symbol, nanos: b.Timestamp.UnixNano()}
		if existing, found := index[key]; found {
			existing.Volume += b.Volume
			existing.Close = b.Close
			continue
		}
		bar := b
		index[key] = &bar
		out = append(out, &bar)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

package backtest

import (
	"context"
	"testing"
	"time"

	"conductor/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var btc = market.Symbol{Name: "BTCUSDT", Exchange: market.ExchangeBacktest}

func minuteBars(sym market.Symbol, start time.Time, closes ...float64) []market.OHLC {
	out := make([]market.OHLC, len(closes))
	for i, c := range closes {
		out[i] = market.OHLC{
			Symbol:    sym,
			Open:      c - 1,
			High:      c + 1,
			Low:       c - 2,
			Close:     c,
			Volume:    10,
			Timestamp: start.Add(time.Duration(i) * time.Minute),
		}
	}
	return out
}

func TestParseTimeframe(t *testing.T) {
	tf, err := ParseTimeframe("1Min")
	require.NoError(t, err)
	assert.Equal(t, "1m", tf.Key)
	assert.Equal(t, time.Minute, tf.Duration)

	tf, err = ParseTimeframe("4h")
	require.NoError(t, err)
	assert.Equal(t, "4h", tf.Key)

	tf, err = ParseTimeframe("1w")
	require.NoError(t, err)
	assert.Equal(t, "1w", tf.Key)

	_, err = ParseTimeframe("soon")
	assert.Error(t, err)
}

func TestAlignRangeSkipsPartialBars(t *testing.T) {
	tf, _ := ParseTimeframe("1m")
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	start, end := tf.AlignRange(base.Add(30*time.Second), base.Add(5*time.Minute))
	assert.Equal(t, base.Add(time.Minute).UnixMilli(), start)
	assert.Equal(t, base.Add(4*time.Minute).UnixMilli(), end)
	assert.Equal(t, int64(4), tf.ExpectedBars(start, end))
}

func TestCacheInsertAndRange(t *testing.T) {
	ctx := context.Background()
	cache, err := OpenCache(t.TempDir())
	require.NoError(t, err)
	defer cache.Close()

	tf, _ := ParseTimeframe("1m")
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	n, err := cache.InsertBars(ctx, "BTCUSDT", tf, minuteBars(btc, base, 100, 101, 102))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// upsert on open time
	_, err = cache.InsertBars(ctx, "BTCUSDT", tf, minuteBars(btc, base.Add(2*time.Minute), 200, 201))
	require.NoError(t, err)

	m, err := cache.Manifest(ctx, "BTCUSDT", tf)
	require.NoError(t, err)
	assert.Equal(t, int64(4), m.Rows)
	assert.Equal(t, base.UnixMilli(), m.MinTime)
	assert.Equal(t, base.Add(3*time.Minute).UnixMilli(), m.MaxTime)
	assert.True(t, m.Covers(base.UnixMilli(), base.Add(3*time.Minute).UnixMilli()))
	assert.False(t, m.Covers(base.UnixMilli(), base.Add(4*time.Minute).UnixMilli()))

	bars, err := cache.RangeBars(ctx, btc, tf, base.Add(time.Minute).UnixMilli(), base.Add(3*time.Minute).UnixMilli())
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.Equal(t, 101.0, bars[0].Close)
	assert.Equal(t, 200.0, bars[1].Close)
	assert.Equal(t, 201.0, bars[2].Close)
	assert.Equal(t, btc, bars[0].Symbol)
	assert.True(t, bars[0].Timestamp.Equal(base.Add(time.Minute)))
}

func TestCacheEmptyManifest(t *testing.T) {
	cache, err := OpenCache(t.TempDir())
	require.NoError(t, err)
	defer cache.Close()

	tf, _ := ParseTimeframe("1m")
	m, err := cache.Manifest(context.Background(), "ETHUSDT", tf)
	require.NoError(t, err)
	assert.Equal(t, int64(0), m.Rows)
	assert.False(t, m.Covers(0, 0))
}

func TestOpenCacheRequiresDir(t *testing.T) {
	_, err := OpenCache(" ")
	assert.Error(t, err)
}

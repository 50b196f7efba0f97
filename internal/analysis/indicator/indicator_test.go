package indicator

import (
	"testing"
	"time"

	"conductor/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func barsFromCloses(closes ...float64) []*market.OHLC {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]*market.OHLC, 0, len(closes))
	for i, c := range closes {
		out = append(out, &market.OHLC{
			Open: c - 1, High: c + 1, Low: c - 2, Close: c,
			Timestamp: start.Add(time.Duration(i) * time.Minute),
		})
	}
	return out
}

func TestSMAInit(t *testing.T) {
	sma := NewSMA("", 3, market.FieldClose)
	sma.Init(barsFromCloses(1, 2, 3, 4, 5))
	assert.Equal(t, "sma3", sma.Name())
	assert.Equal(t, []float64{2, 3, 4}, sma.Values())

	last, ok := sma.LastValue()
	require.True(t, ok)
	assert.Equal(t, 4.0, last)

	v, ok := sma.Value(0)
	require.True(t, ok)
	assert.Equal(t, 2.0, v)
	_, ok = sma.Value(10)
	assert.False(t, ok)
}

func TestSMANotEnoughData(t *testing.T) {
	sma := NewSMA("", 5, market.FieldClose)
	sma.Init(barsFromCloses(1, 2))
	_, ok := sma.LastValue()
	assert.False(t, ok)
	assert.Empty(t, sma.Values())
}

func TestSMAReplayMatchesInit(t *testing.T) {
	bars := barsFromCloses(10.1, 10.7, 9.3, 11.9, 12.4, 12.2, 13.05, 11.1, 10.0, 14.6)

	bulk := NewSMA("bulk", 4, market.FieldClose)
	bulk.Init(bars)

	stream := NewSMA("stream", 4, market.FieldClose)
	for _, b := range bars {
		stream.NextValue(*b)
	}
	assert.Equal(t, bulk.Values(), stream.Values())
	assert.Len(t, stream.Values(), len(bars)-3)
}

func TestSMASourceField(t *testing.T) {
	sma := NewSMA("highs", 2, market.FieldHigh)
	sma.Init(barsFromCloses(1, 3))
	v, ok := sma.LastValue()
	require.True(t, ok)
	assert.Equal(t, 3.0, v)
}

func TestEMAReplayMatchesInit(t *testing.T) {
	bars := barsFromCloses(1, 2, 3, 4, 5, 6)
	bulk := NewEMA("", 3, market.FieldClose)
	bulk.Init(bars)
	stream := NewEMA("", 3, market.FieldClose)
	for _, b := range bars {
		stream.NextValue(*b)
	}
	assert.Equal(t, bulk.Values(), stream.Values())
	require.Len(t, bulk.Values(), 4)
	assert.Equal(t, 2.0, bulk.Values()[0])
	assert.Equal(t, 3.0, bulk.Values()[1])
}

func TestPipelineOverwriteKeepsOrder(t *testing.T) {
	p := NewPipeline()
	p.Add(NewSMA("fast", 2, market.FieldClose))
	p.Add(NewSMA("slow", 3, market.FieldClose))
	replacement := NewSMA("fast", 1, market.FieldClose)
	p.Add(replacement)

	require.Equal(t, 2, p.Len())
	all := p.All()
	assert.Same(t, replacement, all[0])
	assert.Equal(t, "slow", all[1].Name())

	p.Init(barsFromCloses(1, 2, 3))
	fast, ok := p.Get("fast")
	require.True(t, ok)
	assert.Equal(t, []float64{1, 2, 3}, fast.Values())

	p.NextValue(*barsFromCloses(4)[0])
	slow, _ := p.Get("slow")
	assert.Equal(t, []float64{2, 3}, slow.Values())

	_, ok = p.Get("missing")
	assert.False(t, ok)
}

// feedWithRevisions streams each bar as a provisional version first, then
// revises it to the final bar, the way aggregated ticks arrive.
func feedWithRevisions(ind Indicator, bars []*market.OHLC) {
	for _, b := range bars {
		draft := *b
		draft.Close = b.Close * 3
		ind.NextValue(draft)
		draft.Close = b.Close / 2
		ind.UpdateLast(draft)
		ind.UpdateLast(*b)
	}
}

func TestSMAUpdateLastMatchesInit(t *testing.T) {
	bars := barsFromCloses(10, 11, 12, 13, 9, 8)
	bulk := NewSMA("", 3, market.FieldClose)
	bulk.Init(bars)

	stream := NewSMA("", 3, market.FieldClose)
	feedWithRevisions(stream, bars)
	assert.InDeltaSlice(t, bulk.Values(), stream.Values(), 1e-9)
	assert.Len(t, stream.Values(), len(bars)-2)
}

func TestEMAUpdateLastMatchesInit(t *testing.T) {
	bars := barsFromCloses(1, 2, 3, 4, 5, 6)
	bulk := NewEMA("", 3, market.FieldClose)
	bulk.Init(bars)

	stream := NewEMA("", 3, market.FieldClose)
	feedWithRevisions(stream, bars)
	assert.InDeltaSlice(t, bulk.Values(), stream.Values(), 1e-9)
}

func TestUpdateLastOnEmptyIndicatorFeeds(t *testing.T) {
	sma := NewSMA("", 1, market.FieldClose)
	sma.UpdateLast(*barsFromCloses(7)[0])
	assert.Equal(t, []float64{7}, sma.Values())

	ema := NewEMA("", 1, market.FieldClose)
	ema.UpdateLast(*barsFromCloses(7)[0])
	assert.Equal(t, []float64{7}, ema.Values())
}

func TestPipelineUpdateKeepsOneValuePerBar(t *testing.T) {
	p := NewPipeline()
	p.Add(NewSMA("fast", 2, market.FieldClose))
	p.Init(barsFromCloses(1, 3))

	bar := *barsFromCloses(5)[0]
	p.NextValue(bar)
	bar.Close = 9
	p.Update(bar)

	fast, _ := p.Get("fast")
	assert.Equal(t, []float64{2, 6}, fast.Values())
}

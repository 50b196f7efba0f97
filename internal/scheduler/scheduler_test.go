package scheduler

import (
	"context"
	"testing"
	"time"

	"conductor/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIntervalDuration(t *testing.T) {
	d, ok := ParseIntervalDuration("1m")
	require.True(t, ok)
	assert.Equal(t, time.Minute, d)

	d, ok = ParseIntervalDuration("1Min")
	require.True(t, ok)
	assert.Equal(t, time.Minute, d)

	d, ok = ParseIntervalDuration("4h")
	require.True(t, ok)
	assert.Equal(t, 4*time.Hour, d)

	_, ok = ParseIntervalDuration("xm")
	assert.False(t, ok)
	_, ok = ParseIntervalDuration("")
	assert.False(t, ok)
}

func TestTruncateToMinute(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 59, 999_000_000, time.UTC)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 0, 0, time.UTC), TruncateToMinute(ts))
	assert.True(t, SameMinute(ts, time.Date(2024, 1, 2, 3, 4, 0, 1, time.UTC)))
	assert.False(t, SameMinute(ts, time.Date(2024, 1, 2, 3, 5, 0, 0, time.UTC)))
}

func TestSubtractTime(t *testing.T) {
	now := time.Date(2024, 1, 4, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), SubtractTime(now, 3, 0, 0, 0))
	assert.Equal(t, time.Date(2024, 1, 4, 11, 40, 0, 0, time.UTC), SubtractTime(now, 0, 0, 20, 0))
	withMillis := now.Add(750 * time.Millisecond)
	assert.Equal(t, time.Date(2024, 1, 4, 11, 59, 0, 0, time.UTC), SubtractTime(withMillis, 0, 0, 1, 0))
}

func TestDropUnclosedBar(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 10, 30, 0, time.UTC)
	bars := []market.OHLC{
		{Timestamp: time.Date(2024, 1, 1, 0, 9, 0, 0, time.UTC)},
		{Timestamp: time.Date(2024, 1, 1, 0, 10, 0, 0, time.UTC)},
	}
	out := dropUnclosedBarAt(bars, time.Minute, now, DefaultKlineGrace)
	assert.Len(t, out, 1)

	later := now.Add(time.Minute)
	assert.Len(t, dropUnclosedBarAt(bars, time.Minute, later, DefaultKlineGrace), 2)
}

func TestReplaySchedulerStopsWhenExhausted(t *testing.T) {
	ticks := make(chan time.Time)
	stopped := make(chan struct{})
	s := NewReplayScheduler(time.Second)
	s.newTicker = func(time.Duration) (<-chan time.Time, func()) {
		return ticks, func() { close(stopped) }
	}

	remaining := 3
	var calls int
	s.Start(context.Background(), func(context.Context) bool {
		calls++
		if remaining == 0 {
			return false
		}
		remaining--
		return true
	})

	for i := 0; i < 4; i++ {
		ticks <- time.Now()
	}
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("replay did not finish")
	}
	<-stopped
	assert.Equal(t, 4, calls)
}

func TestReplaySchedulerHonoursContext(t *testing.T) {
	s := NewReplayScheduler(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx, func(context.Context) bool { return true })
	cancel()
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("replay ignored cancellation")
	}
}

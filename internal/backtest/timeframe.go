package backtest

import (
	"fmt"
	"strings"
	"time"

	"conductor/internal/scheduler"
)

// Timeframe is a bar interval under a canonical key such as "1m" or "4h".
type Timeframe struct {
	Key      string
	Duration time.Duration
}

// ParseTimeframe accepts the same spellings as scheduler.ParseIntervalDuration.
func ParseTimeframe(input string) (Timeframe, error) {
	d, ok := scheduler.ParseIntervalDuration(input)
	if !ok {
		return Timeframe{}, fmt.Errorf("unsupported timeframe: %q", input)
	}
	return Timeframe{Key: canonicalKey(d), Duration: d}, nil
}

func canonicalKey(d time.Duration) string {
	const (
		day  = 24 * time.Hour
		week = 7 * day
	)
	switch {
	case d%week == 0:
		return fmt.Sprintf("%dw", d/week)
	case d%day == 0:
		return fmt.Sprintf("%dd", d/day)
	case d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	default:
		return fmt.Sprintf("%dm", d/time.Minute)
	}
}

func (tf Timeframe) String() string { return strings.ToLower(tf.Key) }

func (tf Timeframe) durationMillis() int64 {
	return tf.Duration.Milliseconds()
}

func alignDown(ts, step int64) int64 {
	if step <= 0 {
		return ts
	}
	rem := ts % step
	if rem < 0 {
		rem += step
	}
	return ts - rem
}

// AlignRange snaps [start, end] onto the timeframe grid in unix millis.
// The first open time is rounded up so a partially covered bar is skipped.
func (tf Timeframe) AlignRange(start, end time.Time) (int64, int64) {
	step := tf.durationMillis()
	s, e := start.UnixMilli(), end.UnixMilli()
	if e < s {
		s, e = e, s
	}
	alStart := alignDown(s, step)
	if alStart < s {
		alStart += step
	}
	// the bar opening at end is not closed yet
	alEnd := alignDown(e, step)
	if alEnd == e {
		alEnd -= step
	}
	if alEnd < alStart {
		alEnd = alStart - step
	}
	return alStart, alEnd
}

// ExpectedBars counts the grid points in [start, end] (millis, inclusive).
func (tf Timeframe) ExpectedBars(start, end int64) int64 {
	if end < start {
		return 0
	}
	step := tf.durationMillis()
	if step == 0 {
		return 0
	}
	return ((end - start) / step) + 1
}

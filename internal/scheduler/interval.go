package scheduler

import (
	"strconv"
	"strings"
	"time"
)

// ParseIntervalDuration parses "1m", "15m", "1h", "1d", "1w" into time.Duration.
// Alpaca-style names such as "1Min" or "1Hour" are accepted too.
// Returns (0, false) on invalid input.
func ParseIntervalDuration(interval string) (time.Duration, bool) {
	interval = strings.ToLower(strings.TrimSpace(interval))
	if interval == "" {
		return 0, false
	}
	for long, short := range map[string]string{"min": "m", "hour": "h", "day": "d", "week": "w"} {
		if strings.HasSuffix(interval, long) {
			interval = strings.TrimSuffix(interval, long) + short
			break
		}
	}
	unit := interval[len(interval)-1]
	numStr := strings.TrimSpace(interval[:len(interval)-1])
	if numStr == "" {
		return 0, false
	}
	n, err := strconv.Atoi(numStr)
	if err != nil || n <= 0 {
		return 0, false
	}
	switch unit {
	case 'm':
		return time.Duration(n) * time.Minute, true
	case 'h':
		return time.Duration(n) * time.Hour, true
	case 'd':
		return time.Duration(n) * 24 * time.Hour, true
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// TruncateToMinute zeroes seconds and sub-second parts in t's own location.
func TruncateToMinute(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, t.Location())
}

// SameMinute reports whether a and b fall in the same wall-clock minute.
func SameMinute(a, b time.Time) bool {
	return TruncateToMinute(a.UTC()).Equal(TruncateToMinute(b.UTC()))
}

// SubtractTime moves t back by the given calendar parts and drops the
// sub-second part.
func SubtractTime(t time.Time, days, hours, minutes, seconds int) time.Time {
	d := time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute + time.Duration(seconds)*time.Second
	return t.AddDate(0, 0, -days).Add(-d).Truncate(time.Second)
}

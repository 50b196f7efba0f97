package scheduler

import (
	"time"

	"conductor/internal/market"
)

const DefaultKlineGrace = 10 * time.Second

// DropUnclosedBar drops the last bar if its window has not closed yet.
// Binance returns the in-progress kline as the final element of a history page.
func DropUnclosedBar(bars []market.OHLC, interval time.Duration) []market.OHLC {
	return dropUnclosedBarAt(bars, interval, time.Now().UTC(), DefaultKlineGrace)
}

func dropUnclosedBarAt(bars []market.OHLC, interval time.Duration, now time.Time, grace time.Duration) []market.OHLC {
	if len(bars) == 0 || interval <= 0 {
		return bars
	}
	if grace < 0 {
		grace = 0
	}
	last := bars[len(bars)-1]
	if last.Timestamp.IsZero() {
		return bars
	}
	cutoff := last.Timestamp.Add(interval).Add(grace)
	if now.Before(cutoff) {
		return bars[:len(bars)-1]
	}
	return bars
}

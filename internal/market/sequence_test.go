package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, seq BarSequence) []OHLC {
	t.Helper()
	var out []OHLC
	for {
		b, ok, err := seq.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			return out
		}
		out = append(out, b)
	}
}

func TestPagedSequenceWalksPages(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var calls int
	seq := NewPagedSequence(start, func(ctx context.Context, cursor time.Time) ([]OHLC, time.Time, bool, error) {
		calls++
		page := []OHLC{{Close: float64(calls), Timestamp: cursor}, {Close: float64(calls) + 0.5, Timestamp: cursor.Add(time.Minute)}}
		return page, cursor.Add(2 * time.Minute), calls == 2, nil
	})
	bars := drain(t, seq)
	require.Len(t, bars, 4)
	assert.Equal(t, 2, calls)
	assert.Equal(t, start.Add(3*time.Minute), bars[3].Timestamp)

	_, ok, err := seq.Next(context.Background())
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestPagedSequenceStopsWithoutProgress(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seq := NewPagedSequence(start, func(ctx context.Context, cursor time.Time) ([]OHLC, time.Time, bool, error) {
		return nil, cursor, false, nil
	})
	assert.Empty(t, drain(t, seq))
}

func TestPagedSequencePropagatesError(t *testing.T) {
	boom := errors.New("boom")
	seq := NewPagedSequence(time.Now(), func(context.Context, time.Time) ([]OHLC, time.Time, bool, error) {
		return nil, time.Time{}, false, boom
	})
	_, _, err := seq.Next(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestConcat(t *testing.T) {
	seq := Concat(NewSliceSequence(OHLC{Close: 1}), NewSliceSequence(), NewSliceSequence(OHLC{Close: 2}))
	bars := drain(t, seq)
	require.Len(t, bars, 2)
	assert.Equal(t, 2.0, bars[1].Close)
}

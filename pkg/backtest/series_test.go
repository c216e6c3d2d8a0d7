package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func dailyBars(closes []float64) []Bar {
	bars := make([]Bar, len(closes))
	for i, c := range closes {
		bars[i] = Bar{Timestamp: day(i), Close: c}
	}
	return bars
}

func TestNewSeries_RejectsEmpty(t *testing.T) {
	_, err := NewSeries(nil)
	assert.ErrorIs(t, err, ErrInvalidSeries)
}

func TestNewSeries_RejectsMissingClose(t *testing.T) {
	bars := []Bar{{Timestamp: day(0), Close: 100}, {Timestamp: day(1)}}
	_, err := NewSeries(bars)
	assert.ErrorIs(t, err, ErrInvalidSeries)
}

func TestNewSeries_SortsAndDeduplicates(t *testing.T) {
	bars := []Bar{
		{Timestamp: day(2), Close: 102},
		{Timestamp: day(0), Close: 100},
		{Timestamp: day(1), Close: 101},
		{Timestamp: day(1), Close: 201}, // later occurrence wins
	}
	s, err := NewSeries(bars)
	require.NoError(t, err)

	require.Equal(t, 3, s.Len())
	assert.Equal(t, 100.0, s.At(0).Close)
	assert.Equal(t, 201.0, s.At(1).Close)
	assert.Equal(t, 102.0, s.At(2).Close)
	for i := 1; i < s.Len(); i++ {
		assert.True(t, s.At(i-1).Timestamp.Before(s.At(i).Timestamp), "timestamps must be strictly increasing")
	}
}

func TestSeries_AsOf(t *testing.T) {
	s, err := NewSeries(dailyBars([]float64{100, 101, 102}))
	require.NoError(t, err)

	_, ok := s.AsOf(day(0).Add(-time.Hour))
	assert.False(t, ok, "no bar before the first timestamp")

	bar, ok := s.AsOf(day(1))
	require.True(t, ok)
	assert.Equal(t, 101.0, bar.Close, "exact timestamp matches")

	bar, ok = s.AsOf(day(1).Add(12 * time.Hour))
	require.True(t, ok)
	assert.Equal(t, 101.0, bar.Close, "between bars returns the earlier one")

	bar, ok = s.AsOf(day(10))
	require.True(t, ok)
	assert.Equal(t, 102.0, bar.Close, "past the end returns the last bar")
}

package backtest

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// ErrInvalidSeries indicates the supplied price data cannot back a run.
var ErrInvalidSeries = errors.New("backtest: invalid price series")

// Bar is one OHLCV observation for a symbol at a point in time.
// Close is required; the other fields are optional.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open,omitempty"`
	High      float64   `json:"high,omitempty"`
	Low       float64   `json:"low,omitempty"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume,omitempty"`
}

// Series is a validated, chronologically ordered price timeline for one
// symbol. Bars are sorted ascending and de-duplicated by timestamp, keeping
// the last occurrence.
type Series struct {
	bars []Bar
}

// NewSeries validates and indexes raw bars. It fails when the input is empty,
// a bar has a zero timestamp, or a close price is missing.
func NewSeries(bars []Bar) (*Series, error) {
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: no bars", ErrInvalidSeries)
	}
	sorted := make([]Bar, len(bars))
	copy(sorted, bars)
	for i, b := range sorted {
		if b.Timestamp.IsZero() {
			return nil, fmt.Errorf("%w: bar %d has no timestamp", ErrInvalidSeries, i)
		}
		if b.Close <= 0 || math.IsNaN(b.Close) {
			return nil, fmt.Errorf("%w: bar %d has no close price", ErrInvalidSeries, i)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	// Stable sort keeps insertion order among equal timestamps, so the last
	// slot of each run is the caller's last occurrence.
	deduped := sorted[:0]
	for i := 0; i < len(sorted); i++ {
		if i+1 < len(sorted) && sorted[i+1].Timestamp.Equal(sorted[i].Timestamp) {
			continue
		}
		deduped = append(deduped, sorted[i])
	}
	return &Series{bars: deduped}, nil
}

// Len returns the number of bars after normalization.
func (s *Series) Len() int { return len(s.bars) }

// At returns the i-th bar in chronological order.
func (s *Series) At(i int) Bar { return s.bars[i] }

// Bars returns a copy of the normalized bar sequence.
func (s *Series) Bars() []Bar {
	out := make([]Bar, len(s.bars))
	copy(out, s.bars)
	return out
}

// AsOf returns the latest bar at or before ts. The second return value is
// false when no bar exists yet at that time.
func (s *Series) AsOf(ts time.Time) (Bar, bool) {
	// First index strictly after ts; the bar before it is the as-of match.
	n := sort.Search(len(s.bars), func(i int) bool {
		return s.bars[i].Timestamp.After(ts)
	})
	if n == 0 {
		return Bar{}, false
	}
	return s.bars[n-1], true
}

// Timestamps returns the bar timestamps in ascending order.
func (s *Series) Timestamps() []time.Time {
	out := make([]time.Time, len(s.bars))
	for i, b := range s.bars {
		out[i] = b.Timestamp
	}
	return out
}

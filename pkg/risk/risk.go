// Package risk provides stateless portfolio risk analytics: historical
// VaR/CVaR, rolling volatility, stop-loss detection, and exposure
// aggregation. All functions operate on plain slices and maps supplied by
// the caller; nothing here touches I/O or shared state.
package risk

import (
	"math"
	"sort"
)

// Returns computes consecutive-pair simple returns from a price series,
// dropping the undefined first value. Entries following a zero price are
// skipped.
func Returns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev := prices[i-1]
		if prev == 0 {
			continue
		}
		out = append(out, prices[i]/prev-1)
	}
	return out
}

// HistoricalVaR is the negated return at the (1-confidence) quantile of the
// sorted sample, using floor indexing. Returns 0 for an empty sample.
func HistoricalVaR(returns []float64, confidence float64) float64 {
	n := len(returns)
	if n == 0 {
		return 0
	}
	sorted := sortedCopy(returns)
	idx := varIndex(n, confidence)
	return -sorted[idx]
}

// HistoricalCVaR is the negated mean of the sorted returns at or below the
// VaR index, consistent with HistoricalVaR's indexing convention.
func HistoricalCVaR(returns []float64, confidence float64) float64 {
	n := len(returns)
	if n == 0 {
		return 0
	}
	sorted := sortedCopy(returns)
	idx := varIndex(n, confidence)
	sum := 0.0
	for _, r := range sorted[:idx+1] {
		sum += r
	}
	return -sum / float64(idx+1)
}

func varIndex(n int, confidence float64) int {
	idx := int(math.Floor((1 - confidence) * float64(n)))
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return idx
}

func sortedCopy(returns []float64) []float64 {
	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)
	return sorted
}

// Volatility annualizes the sample standard deviation of the most recent
// window returns by sqrt(252). Insufficient data or an undefined deviation
// yields 0.
func Volatility(returns []float64, window int) float64 {
	if window <= 0 {
		return 0
	}
	tail := returns
	if len(tail) > window {
		tail = tail[len(tail)-window:]
	}
	n := len(tail)
	if n < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range tail {
		mean += r
	}
	mean /= float64(n)
	variance := 0.0
	for _, r := range tail {
		d := r - mean
		variance += d * d
	}
	vol := math.Sqrt(variance/float64(n-1)) * math.Sqrt(252)
	if math.IsNaN(vol) {
		return 0
	}
	return vol
}

// Position is the minimal holding view the stop-loss check needs.
type Position struct {
	Symbol   string
	Quantity float64 // signed; positive long, negative short
	AvgCost  float64
}

// StopOrder is a closing order emitted when a stop triggers.
type StopOrder struct {
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"` // SELL closes a long, BUY closes a short
	Quantity float64 `json:"quantity"`
	Reason   string  `json:"reason"`
}

// ApplyStopLosses emits a closing order for every position whose drawdown
// from average cost reaches stopPct. Positions without a current price or
// without an average cost are left alone.
func ApplyStopLosses(positions []Position, prices map[string]float64, stopPct float64) []StopOrder {
	var triggered []StopOrder
	for _, pos := range positions {
		if pos.Quantity == 0 || pos.AvgCost <= 0 {
			continue
		}
		price, ok := prices[pos.Symbol]
		if !ok {
			continue
		}
		drawdown := (pos.AvgCost - price) / pos.AvgCost
		if drawdown < stopPct {
			continue
		}
		side := "SELL"
		if pos.Quantity < 0 {
			side = "BUY"
		}
		triggered = append(triggered, StopOrder{
			Symbol:   pos.Symbol,
			Side:     side,
			Quantity: math.Abs(pos.Quantity),
			Reason:   "stop loss triggered",
		})
	}
	return triggered
}

// Intent is a minimal order view used for exposure aggregation.
type Intent struct {
	Symbol   string
	Quantity float64
}

// AggregateExposure sums signed order quantity per symbol.
func AggregateExposure(intents []Intent) map[string]float64 {
	exposure := make(map[string]float64)
	for _, it := range intents {
		if it.Symbol == "" {
			continue
		}
		exposure[it.Symbol] += it.Quantity
	}
	return exposure
}

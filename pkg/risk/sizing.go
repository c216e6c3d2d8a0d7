package risk

// Sizing bounds for the volatility scale factor.
const (
	minVolScale = 0.25
	maxVolScale = 1.5
)

// ComputePositionSize converts signal confidence and realized volatility
// into a position size fraction. Confidence interpolates between minPct and
// maxPct; the result is then scaled toward targetRiskVol and clamped back
// into [minPct, maxPct].
func ComputePositionSize(confidence, volatility, maxPct, targetRiskVol, minPct float64) float64 {
	confidence = clamp(confidence, 0, 1)
	base := minPct + (maxPct-minPct)*confidence
	if volatility <= 0 {
		if base > maxPct {
			return maxPct
		}
		return base
	}
	scale := clamp(targetRiskVol/volatility, minVolScale, maxVolScale)
	return clamp(base*scale, minPct, maxPct)
}

// RollingVolatility estimates annualized volatility from a price history
// over the most recent window of returns.
func RollingVolatility(prices []float64, window int) float64 {
	return Volatility(Returns(prices), window)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

package backtest

import "math"

const annualizationFactor = 252

// equityReturns computes simple returns between consecutive equity points,
// dropping the undefined first return. Points following a zero equity value
// are skipped to avoid dividing by zero.
func equityReturns(curve []EquityPoint) []float64 {
	if len(curve) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev == 0 {
			continue
		}
		returns = append(returns, curve[i].Equity/prev-1)
	}
	return returns
}

// sharpeRatio annualizes mean excess return over its sample standard
// deviation. The risk-free rate is divided by the return count, not
// annualized per period; this unusual convention is kept deliberately.
// Zero or undefined deviation yields 0.
func sharpeRatio(returns []float64, riskFree float64) float64 {
	n := len(returns)
	if n < 2 {
		return 0
	}
	adj := riskFree / float64(n)
	mean := 0.0
	for _, r := range returns {
		mean += r - adj
	}
	mean /= float64(n)
	variance := 0.0
	for _, r := range returns {
		d := (r - adj) - mean
		variance += d * d
	}
	std := math.Sqrt(variance / float64(n-1))
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return mean / std * math.Sqrt(annualizationFactor)
}

// maxDrawdown is the most negative deviation of equity from its running
// maximum, as a fraction of that maximum. Always <= 0.
func maxDrawdown(curve []EquityPoint) float64 {
	if len(curve) == 0 {
		return 0
	}
	peak := curve[0].Equity
	minDD := 0.0
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak == 0 {
			continue
		}
		dd := (p.Equity - peak) / peak
		if dd < minDD {
			minDD = dd
		}
	}
	return minDD
}

// finalizeMetrics derives the scalar statistics on a populated result.
// The slippage-cost total folds spread, slippage, and impact deviation from
// the reference close into one number; it overlaps conceptually with the
// per-trade impact figure and is kept that way.
func finalizeMetrics(res *Result, riskFree float64) {
	res.Sharpe = sharpeRatio(equityReturns(res.EquityCurve), riskFree)
	res.MaxDrawdown = maxDrawdown(res.EquityCurve)
	res.TotalTrades = len(res.Trades)

	for _, t := range res.Trades {
		res.TotalCommission += t.Commission
		qty := float64(t.Quantity)
		if t.Side == SideBuy {
			res.TotalSlippageCost += (t.EffectivePrice - t.Price) * qty
		} else {
			res.TotalSlippageCost += (t.Price - t.EffectivePrice) * qty
		}
		res.TotalNotional += t.EffectivePrice * qty
	}
	if res.TotalNotional > 0 {
		res.AverageCostBps = (res.TotalCommission + res.TotalSlippageCost) / res.TotalNotional * 10000.0
	}
}

package backtest

import "math"

// fillOutcome is the result of pricing one fill against one bar. Callers
// apply it to their ledgers; computeFill itself has no side effects.
type fillOutcome struct {
	Qty            int64
	EffectivePrice float64
	Commission     float64
	Impact         float64
}

// symbolFlow carries the per-symbol cumulative volume and participation
// fraction that the impact model depends on. It is threaded through
// computeFill by value so the cost model stays pure.
type symbolFlow struct {
	cumVolume     float64
	participation float64
}

// barVolume returns the volume used for participation math. A bar without
// volume counts as 1.0.
func barVolume(bar Bar) float64 {
	if bar.Volume <= 0 {
		return 1.0
	}
	return bar.Volume
}

// computeFill sizes and prices one fill.
//
// Sizing: with no participation cap the full remaining quantity fills.
// Otherwise at most max(1, floor(volume*cap)) shares fill on this bar.
//
// Pricing starts from the bar close. Partial-fill mode adds a half-spread
// with sign matching the side, then slippage applies multiplicatively.
// Market impact scales with the prospective cumulative participation under
// the configured model; zero cumulative volume contributes zero impact.
// Commission is charged on the effective notional.
func computeFill(bar Bar, side Side, remaining int64, cfg *Config, flow symbolFlow) (fillOutcome, symbolFlow) {
	var volume float64
	if cfg.ParticipationCap > 0 {
		volume = barVolume(bar)
	}

	fillQty := remaining
	if cfg.ParticipationCap > 0 && volume > 0 {
		maxBarQty := int64(math.Floor(volume * cfg.ParticipationCap))
		if maxBarQty < 1 {
			maxBarQty = 1
		}
		if fillQty > maxBarQty {
			fillQty = maxBarQty
		}
	}

	price := bar.Close
	effective := price
	if cfg.ParticipationCap > 0 {
		spread := (cfg.BaseSpreadBps / 10000.0) * price
		if side == SideBuy {
			effective += spread
		} else {
			effective -= spread
		}
	}
	slip := cfg.SlippageBps / 10000.0
	if side == SideBuy {
		effective *= 1 + slip
	} else {
		effective *= 1 - slip
	}

	// Cumulative volume advances per fill, mirroring the reference
	// bookkeeping: two orders on the same bar count the bar twice.
	if volume > 0 {
		flow.cumVolume += volume
	}

	var impact, prevQty float64
	if cfg.ImpactCoef > 0 && flow.cumVolume > 0 {
		prevQty = flow.participation * flow.cumVolume
		prospective := (prevQty + float64(fillQty)) / flow.cumVolume
		var scale float64
		switch cfg.ImpactModel {
		case ImpactSqrt:
			scale = math.Sqrt(prospective)
		case ImpactPower:
			scale = math.Pow(prospective, math.Max(1e-6, cfg.ImpactPower))
		default:
			scale = prospective
		}
		impact = cfg.ImpactCoef * scale * price
		if side == SideBuy {
			effective += impact
		} else {
			effective -= impact
		}
	}

	if volume > 0 && flow.cumVolume > 0 {
		flow.participation = math.Min(1.0, (prevQty+float64(fillQty))/flow.cumVolume)
	}

	notional := float64(fillQty) * effective
	return fillOutcome{
		Qty:            fillQty,
		EffectivePrice: effective,
		Commission:     notional * cfg.CommissionPct,
		Impact:         impact,
	}, flow
}

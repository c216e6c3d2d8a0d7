package backtest

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
)

// Run replays orders against a single symbol's bar series and returns the
// resulting equity curve, trade log, and performance statistics.
//
// Orders execute at the close of the first bar at or after their timestamp.
// The loop deliberately allows negative cash and short positions; the
// validating policy lives in pkg/portfolio and the two are not reconciled.
func Run(series *Series, orders []Order, cfg *Config) (*Result, error) {
	if series == nil || series.Len() == 0 {
		return nil, fmt.Errorf("%w: no bars", ErrInvalidSeries)
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	initialCash := cfg.InitialCash
	if initialCash <= 0 {
		initialCash = 100000
	}

	states := newFillStates(orders)
	logSkipped(orders, states)

	cash := initialCash
	var position int64
	var flow symbolFlow
	res := &Result{
		EquityCurve: make([]EquityPoint, 0, series.Len()),
	}

	for i := 0; i < series.Len(); i++ {
		bar := series.At(i)
		for idx := range states {
			st := &states[idx]
			if !st.eligible(bar.Timestamp) {
				continue
			}
			o := orders[idx]
			var out fillOutcome
			out, flow = computeFill(bar, o.Side, st.remaining, cfg, flow)
			notional := float64(out.Qty) * out.EffectivePrice
			if o.Side == SideBuy {
				cash -= notional + out.Commission
				position += out.Qty
			} else {
				cash += notional - out.Commission
				position -= out.Qty
			}
			st.remaining -= out.Qty
			if st.remaining <= 0 {
				st.remaining = 0
				st.executed = true
			}
			res.Trades = append(res.Trades, Trade{
				Date:           bar.Timestamp,
				Symbol:         o.Symbol,
				Side:           o.Side,
				Quantity:       out.Qty,
				Price:          bar.Close,
				EffectivePrice: out.EffectivePrice,
				Commission:     out.Commission,
				Impact:         out.Impact,
				Remaining:      st.remaining,
				OriginalQty:    o.Quantity,
				PositionAfter:  position,
				CashAfter:      cash,
			})
		}

		equity := cash + float64(position)*bar.Close
		res.EquityCurve = append(res.EquityCurve, EquityPoint{Timestamp: bar.Timestamp, Equity: equity})
		exposure := math.Abs(float64(position)) * bar.Close
		if exposure > res.GrossExposurePeak {
			res.GrossExposurePeak = exposure
		}
	}

	finalizeMetrics(res, cfg.RiskFreeRate)
	return res, nil
}

// RunMulti replays orders against several symbols at once. Bars are walked
// along the union of all symbols' timestamps; each order prices off the
// latest bar for its symbol at or before the calendar timestamp, and is
// skipped while no such bar exists yet.
func RunMulti(seriesBySymbol map[string]*Series, orders []Order, cfg *Config) (*Result, error) {
	valid := make(map[string]*Series, len(seriesBySymbol))
	for sym, s := range seriesBySymbol {
		if s == nil || s.Len() == 0 {
			continue
		}
		valid[sym] = s
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("%w: no valid price data", ErrInvalidSeries)
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	initialCash := cfg.InitialCash
	if initialCash <= 0 {
		initialCash = 100000
	}

	calendar := masterCalendar(valid)

	// Group order indices by symbol; orders for unknown symbols never fill.
	bySymbol := make(map[string][]int)
	for i, o := range orders {
		if o.Symbol == "" {
			continue
		}
		bySymbol[o.Symbol] = append(bySymbol[o.Symbol], i)
	}

	states := newFillStates(orders)
	logSkipped(orders, states)

	cash := initialCash
	positions := make(map[string]int64, len(valid))
	flows := make(map[string]symbolFlow, len(valid))
	res := &Result{
		EquityCurve: make([]EquityPoint, 0, len(calendar)),
	}

	symbols := make([]string, 0, len(valid))
	for sym := range valid {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	for _, ts := range calendar {
		for _, sym := range symbols {
			idxs := bySymbol[sym]
			if len(idxs) == 0 {
				continue
			}
			bar, ok := valid[sym].AsOf(ts)
			if !ok {
				continue
			}
			flow := flows[sym]
			for _, idx := range idxs {
				st := &states[idx]
				if !st.eligible(ts) {
					continue
				}
				o := orders[idx]
				var out fillOutcome
				out, flow = computeFill(bar, o.Side, st.remaining, cfg, flow)
				notional := float64(out.Qty) * out.EffectivePrice
				if o.Side == SideBuy {
					cash -= notional + out.Commission
					positions[sym] += out.Qty
				} else {
					cash += notional - out.Commission
					positions[sym] -= out.Qty
				}
				st.remaining -= out.Qty
				if st.remaining <= 0 {
					st.remaining = 0
					st.executed = true
				}
				res.Trades = append(res.Trades, Trade{
					Date:           ts,
					Symbol:         sym,
					Side:           o.Side,
					Quantity:       out.Qty,
					Price:          bar.Close,
					EffectivePrice: out.EffectivePrice,
					Commission:     out.Commission,
					Impact:         out.Impact,
					Remaining:      st.remaining,
					OriginalQty:    o.Quantity,
					PositionAfter:  positions[sym],
					CashAfter:      cash,
				})
			}
			flows[sym] = flow
		}

		mtm := 0.0
		grossExposure := 0.0
		for sym, qty := range positions {
			if qty == 0 {
				continue
			}
			bar, ok := valid[sym].AsOf(ts)
			if !ok {
				continue
			}
			mtm += float64(qty) * bar.Close
			grossExposure += math.Abs(float64(qty)) * bar.Close
		}
		res.EquityCurve = append(res.EquityCurve, EquityPoint{Timestamp: ts, Equity: cash + mtm})
		if grossExposure > res.GrossExposurePeak {
			res.GrossExposurePeak = grossExposure
		}
	}

	finalizeMetrics(res, cfg.RiskFreeRate)
	return res, nil
}

// masterCalendar returns the sorted union of all symbols' bar timestamps.
func masterCalendar(series map[string]*Series) []time.Time {
	seen := make(map[int64]time.Time)
	for _, s := range series {
		for _, ts := range s.Timestamps() {
			seen[ts.UnixNano()] = ts
		}
	}
	calendar := make([]time.Time, 0, len(seen))
	for _, ts := range seen {
		calendar = append(calendar, ts)
	}
	sort.Slice(calendar, func(i, j int) bool { return calendar[i].Before(calendar[j]) })
	return calendar
}

func logSkipped(orders []Order, states []fillState) {
	for i, st := range states {
		if st.skipped {
			logx.Infof("backtest: dropping order %d (%s %s): unparseable timestamp %q",
				i, orders[i].Side, orders[i].Symbol, orders[i].Timestamp)
		}
	}
}

package backtest

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frictionless() *Config {
	return &Config{InitialCash: 100000}
}

func mustSeries(t *testing.T, closes []float64) *Series {
	t.Helper()
	s, err := NewSeries(dailyBars(closes))
	require.NoError(t, err)
	return s
}

func TestRun_NoOrdersFlatCurve(t *testing.T) {
	s := mustSeries(t, []float64{100, 101, 102})
	res, err := Run(s, nil, frictionless())
	require.NoError(t, err)

	require.Len(t, res.EquityCurve, 3)
	for _, p := range res.EquityCurve {
		assert.Equal(t, 100000.0, p.Equity)
	}
	assert.Zero(t, res.Sharpe)
	assert.Zero(t, res.MaxDrawdown)
	assert.Zero(t, res.TotalTrades)
	assert.Zero(t, res.GrossExposurePeak)
}

func TestRun_RoundTripZeroCosts(t *testing.T) {
	s := mustSeries(t, []float64{100, 101, 102, 101, 103})
	orders := []Order{
		{Symbol: "AAPL", Side: SideBuy, Quantity: 10, Timestamp: day(0).Format("2006-01-02")},
		{Symbol: "AAPL", Side: SideSell, Quantity: 10, Timestamp: day(4).Format("2006-01-02")},
	}
	res, err := Run(s, orders, frictionless())
	require.NoError(t, err)

	require.Len(t, res.Trades, 2)
	for _, tr := range res.Trades {
		assert.Equal(t, tr.Price, tr.EffectivePrice, "zero costs leave effective price at reference")
	}
	assert.Zero(t, res.TotalCommission)
	assert.Zero(t, res.TotalSlippageCost)

	finalCash := res.Trades[1].CashAfter
	assert.InDelta(t, 100000+10*(103-100), finalCash, 1e-9)
	assert.Zero(t, res.Trades[1].PositionAfter)
	assert.InDelta(t, finalCash, res.EquityCurve[4].Equity, 1e-9, "flat position marks to cash")
	assert.Len(t, res.EquityCurve, s.Len())
}

func TestRun_CommissionScenario(t *testing.T) {
	s := mustSeries(t, []float64{100, 101, 102, 101, 103})
	orders := []Order{
		{Symbol: "AAPL", Side: SideBuy, Quantity: 10, Timestamp: day(0).Format("2006-01-02")},
		{Symbol: "AAPL", Side: SideSell, Quantity: 10, Timestamp: day(4).Format("2006-01-02")},
	}
	cfg := &Config{InitialCash: 100000, CommissionPct: 0.001}
	res, err := Run(s, orders, cfg)
	require.NoError(t, err)

	require.Len(t, res.Trades, 2)
	assert.InDelta(t, 1.0, res.Trades[0].Commission, 1e-9)
	assert.InDelta(t, 1.03, res.Trades[1].Commission, 1e-9)

	pnl := res.EquityCurve[len(res.EquityCurve)-1].Equity - 100000
	assert.InDelta(t, 27.97, pnl, 1e-9)
}

func TestRun_PartialFillsCarryRemainder(t *testing.T) {
	bars := dailyBars([]float64{100, 100, 100, 100, 100})
	for i := range bars {
		bars[i].Volume = 10000
	}
	s, err := NewSeries(bars)
	require.NoError(t, err)

	// floor(10000 * 0.0005) = 5 shares per bar against a 12 share order.
	cfg := &Config{InitialCash: 100000, ParticipationCap: 0.0005}
	orders := []Order{{Symbol: "AAPL", Side: SideBuy, Quantity: 12, Timestamp: day(0).Format("2006-01-02")}}
	res, err := Run(s, orders, cfg)
	require.NoError(t, err)

	require.Len(t, res.Trades, 3)
	assert.Equal(t, int64(5), res.Trades[0].Quantity)
	assert.Equal(t, int64(7), res.Trades[0].Remaining, "order stays partially filled")
	assert.Equal(t, int64(5), res.Trades[1].Quantity)
	assert.Equal(t, int64(2), res.Trades[2].Quantity)
	assert.Zero(t, res.Trades[2].Remaining)

	var filled int64
	for _, tr := range res.Trades {
		filled += tr.Quantity
	}
	assert.Equal(t, int64(12), filled, "partial fills sum to the original quantity")
}

func TestRun_SkipsUnparseableTimestamps(t *testing.T) {
	s := mustSeries(t, []float64{100, 101})
	orders := []Order{
		{Symbol: "AAPL", Side: SideBuy, Quantity: 10, Timestamp: "not-a-date"},
		{Symbol: "AAPL", Side: SideBuy, Quantity: 5, Timestamp: day(0).Format("2006-01-02")},
	}
	res, err := Run(s, orders, frictionless())
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	assert.Equal(t, int64(5), res.Trades[0].Quantity)
}

func TestRun_AllowsShortAndNegativeCash(t *testing.T) {
	s := mustSeries(t, []float64{100, 100})
	orders := []Order{
		{Symbol: "AAPL", Side: SideSell, Quantity: 50, Timestamp: day(0).Format("2006-01-02")},
		{Symbol: "AAPL", Side: SideBuy, Quantity: 5000, Timestamp: day(0).Format("2006-01-02")},
	}
	res, err := Run(s, orders, frictionless())
	require.NoError(t, err)

	last := res.Trades[len(res.Trades)-1]
	assert.Equal(t, int64(4950), last.PositionAfter)
	assert.Less(t, last.CashAfter, 0.0, "bar-loop policy permits negative cash")
}

func TestRun_GrossExposurePeak(t *testing.T) {
	s := mustSeries(t, []float64{100, 110, 90})
	orders := []Order{{Symbol: "AAPL", Side: SideBuy, Quantity: 10, Timestamp: day(0).Format("2006-01-02")}}
	res, err := Run(s, orders, frictionless())
	require.NoError(t, err)

	assert.InDelta(t, 1100.0, res.GrossExposurePeak, 1e-9)
	for i := range res.EquityCurve {
		exposure := 10 * s.At(i).Close
		assert.GreaterOrEqual(t, res.GrossExposurePeak, exposure, "peak is a running maximum")
	}
}

func TestRun_MaxDrawdownNeverPositive(t *testing.T) {
	cases := [][]float64{
		{100, 101, 102, 103},
		{100, 90, 95, 80},
		{100, 100, 100},
	}
	for _, closes := range cases {
		s := mustSeries(t, closes)
		orders := []Order{{Symbol: "X", Side: SideBuy, Quantity: 10, Timestamp: day(0).Format("2006-01-02")}}
		res, err := Run(s, orders, frictionless())
		require.NoError(t, err)
		assert.LessOrEqual(t, res.MaxDrawdown, 0.0)
	}
}

func TestRunMulti_AsOfAlignment(t *testing.T) {
	aapl := mustSeries(t, []float64{100, 101, 102, 101, 103})
	// MSFT trades on a sparser calendar: days 1 and 3 only.
	msft, err := NewSeries([]Bar{
		{Timestamp: day(1), Close: 50},
		{Timestamp: day(3), Close: 55},
	})
	require.NoError(t, err)

	orders := []Order{
		{Symbol: "AAPL", Side: SideBuy, Quantity: 10, Timestamp: day(0).Format("2006-01-02")},
		{Symbol: "MSFT", Side: SideBuy, Quantity: 4, Timestamp: day(0).Format("2006-01-02")},
	}
	res, err := RunMulti(map[string]*Series{"AAPL": aapl, "MSFT": msft}, orders, frictionless())
	require.NoError(t, err)

	// Master calendar is the union of both series' timestamps (days 0-4).
	assert.Len(t, res.EquityCurve, 5)

	require.Len(t, res.Trades, 2)
	assert.Equal(t, "AAPL", res.Trades[0].Symbol)
	assert.True(t, res.Trades[0].Date.Equal(day(0)))
	assert.Equal(t, "MSFT", res.Trades[1].Symbol, "MSFT order waits for its first bar")
	assert.True(t, res.Trades[1].Date.Equal(day(1)))
	assert.Equal(t, 50.0, res.Trades[1].Price)

	// Day 2 marks MSFT at its day-1 close via as-of lookup.
	wantEquity := res.Trades[1].CashAfter + 10*102 + 4*50
	assert.InDelta(t, wantEquity, res.EquityCurve[2].Equity, 1e-9)
}

func TestRunMulti_NoValidSeries(t *testing.T) {
	_, err := RunMulti(map[string]*Series{"AAPL": nil}, nil, frictionless())
	assert.ErrorIs(t, err, ErrInvalidSeries)
}

func TestRun_ImpactModels(t *testing.T) {
	bars := dailyBars([]float64{100})
	bars[0].Volume = 1000
	s, err := NewSeries(bars)
	require.NoError(t, err)

	order := []Order{{Symbol: "X", Side: SideBuy, Quantity: 100, Timestamp: day(0).Format("2006-01-02")}}

	cases := []struct {
		model      string
		power      float64
		wantImpact float64
	}{
		// participation = 100/1000 = 0.1 on the only bar
		{model: ImpactLinear, wantImpact: 0.5 * 0.1 * 100},
		{model: ImpactSqrt, wantImpact: 0.5 * math.Sqrt(0.1) * 100},
		{model: ImpactPower, power: 0.75, wantImpact: 0.5 * math.Pow(0.1, 0.75) * 100},
	}
	for _, tc := range cases {
		cfg := &Config{
			InitialCash:      100000,
			ParticipationCap: 0.5,
			ImpactCoef:       0.5,
			ImpactModel:      tc.model,
			ImpactPower:      tc.power,
		}
		res, err := Run(s, order, cfg)
		require.NoError(t, err, tc.model)
		require.Len(t, res.Trades, 1, tc.model)
		assert.InDelta(t, tc.wantImpact, res.Trades[0].Impact, 1e-9, tc.model)
	}
}

func TestRun_ZeroVolumeNoImpact(t *testing.T) {
	// Impact enabled without a participation cap: cumulative volume never
	// advances, so impact must stay zero rather than dividing by zero.
	s := mustSeries(t, []float64{100})
	cfg := &Config{InitialCash: 100000, ImpactCoef: 1.0}
	orders := []Order{{Symbol: "X", Side: SideBuy, Quantity: 10, Timestamp: day(0).Format("2006-01-02")}}
	res, err := Run(s, orders, cfg)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.Zero(t, res.Trades[0].Impact)
	assert.False(t, math.IsNaN(res.Trades[0].EffectivePrice))
}

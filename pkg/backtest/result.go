package backtest

import "time"

// Trade is an immutable record of one (possibly partial) fill.
type Trade struct {
	Date           time.Time `json:"date"`
	Symbol         string    `json:"symbol,omitempty"`
	Side           Side      `json:"side"`
	Quantity       int64     `json:"qty"`
	Price          float64   `json:"price"` // reference close before costs
	EffectivePrice float64   `json:"effective_price"`
	Commission     float64   `json:"commission"`
	Impact         float64   `json:"impact_applied"`
	Remaining      int64     `json:"remaining"`
	OriginalQty    int64     `json:"original_qty"`
	PositionAfter  int64     `json:"position_after"`
	CashAfter      float64   `json:"cash_after"`
}

// EquityPoint is one mark-to-market observation of total portfolio value.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

// Result is the immutable snapshot produced by a run.
type Result struct {
	EquityCurve       []EquityPoint `json:"equity_curve"`
	Trades            []Trade       `json:"trades"`
	Sharpe            float64       `json:"sharpe"`
	MaxDrawdown       float64       `json:"max_drawdown"`
	TotalCommission   float64       `json:"total_commission"`
	TotalSlippageCost float64       `json:"total_slippage_cost"`
	TotalNotional     float64       `json:"total_notional"`
	TotalTrades       int           `json:"total_trades"`
	AverageCostBps    float64       `json:"average_cost_bps"`
	GrossExposurePeak float64       `json:"gross_exposure_peak"`
}

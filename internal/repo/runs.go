package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"quantbt/pkg/backtest"
)

// RunSummary is a normalised view of the backtest_runs table.
type RunSummary struct {
	ID              int64
	Label           string
	StartedAt       time.Time
	Symbols         *string
	InitialCash     float64
	FinalEquity     float64
	Sharpe          float64
	MaxDrawdown     float64
	TotalTrades     int64
	TotalCommission float64
	TotalSlippage   float64
}

// RunsRepo persists completed runs and serves run history queries.
type RunsRepo interface {
	// SaveRun stores the run summary and its trades, returning the new run id.
	SaveRun(ctx context.Context, label string, symbols []string, initialCash float64, res *backtest.Result) (int64, error)
	// RecentRuns returns runs ordered by start time descending.
	RecentRuns(ctx context.Context, limit int) ([]RunSummary, error)
	// TradesForRun returns the stored trades of a run in execution order.
	TradesForRun(ctx context.Context, runID int64) ([]backtest.Trade, error)
}

type runsRepo struct {
	conn  sqlx.SqlConn
	cache cache.Cache
	ttls  TTLs
}

func newRunsRepo(deps Dependencies) RunsRepo {
	return &runsRepo{
		conn:  deps.DBConn,
		cache: deps.Cache,
		ttls:  deps.TTL,
	}
}

const cacheKeyRecentRuns = "quantbt:recent_runs"

func (r *runsRepo) SaveRun(ctx context.Context, label string, symbols []string, initialCash float64, res *backtest.Result) (int64, error) {
	if res == nil {
		return 0, fmt.Errorf("runsRepo.SaveRun: nil result")
	}

	finalEquity := initialCash
	if n := len(res.EquityCurve); n > 0 {
		finalEquity = res.EquityCurve[n-1].Equity
	}

	var runID int64
	err := r.conn.TransactCtx(ctx, func(ctx context.Context, session sqlx.Session) error {
		const insertRun = `
INSERT INTO backtest_runs
    (label, started_at, symbols, initial_cash, final_equity, sharpe_ratio,
     max_drawdown, total_trades, total_commission, total_slippage_cost)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING id`

		if err := session.QueryRowCtx(ctx, &runID, insertRun,
			label, time.Now().UTC(), symbolsValue(symbols), initialCash, finalEquity,
			res.Sharpe, res.MaxDrawdown, res.TotalTrades,
			res.TotalCommission, res.TotalSlippageCost); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		const insertTrade = `
INSERT INTO backtest_trades
    (run_id, seq, trade_date, symbol, side, quantity, price, effective_price,
     commission, impact, remaining, original_qty, position_after, cash_after)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

		for i, tr := range res.Trades {
			if _, err := session.ExecCtx(ctx, insertTrade,
				runID, i, tr.Date, tr.Symbol, tr.Side, tr.Quantity, tr.Price,
				tr.EffectivePrice, tr.Commission, tr.Impact, tr.Remaining,
				tr.OriginalQty, tr.PositionAfter, tr.CashAfter); err != nil {
				return fmt.Errorf("insert trade %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("runsRepo.SaveRun: %w", err)
	}

	r.dropCache(ctx, cacheKeyRecentRuns)
	return runID, nil
}

func (r *runsRepo) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	var cached []RunSummary
	if limit == 50 {
		if ok, _ := r.getCache(ctx, cacheKeyRecentRuns, &cached); ok {
			return cached, nil
		}
	}

	const query = `
SELECT
    id,
    label,
    started_at,
    symbols,
    initial_cash,
    final_equity,
    sharpe_ratio,
    max_drawdown,
    total_trades,
    total_commission,
    total_slippage_cost
FROM backtest_runs
ORDER BY started_at DESC
LIMIT $1`

	var rows []runRow
	if err := r.conn.QueryRowsCtx(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("runsRepo.RecentRuns query: %w", err)
	}

	result := make([]RunSummary, 0, len(rows))
	for _, row := range rows {
		rec := RunSummary{
			ID:              row.ID,
			Label:           row.Label,
			StartedAt:       row.StartedAt,
			InitialCash:     row.InitialCash,
			FinalEquity:     row.FinalEquity,
			Sharpe:          row.Sharpe,
			MaxDrawdown:     row.MaxDrawdown,
			TotalTrades:     row.TotalTrades,
			TotalCommission: row.TotalCommission,
			TotalSlippage:   row.TotalSlippage,
		}
		if row.Symbols.Valid {
			value := row.Symbols.String
			rec.Symbols = &value
		}
		result = append(result, rec)
	}

	if limit == 50 {
		r.setCache(ctx, cacheKeyRecentRuns, r.ttls.Short, result)
	}
	return result, nil
}

func (r *runsRepo) TradesForRun(ctx context.Context, runID int64) ([]backtest.Trade, error) {
	const query = `
SELECT
    trade_date,
    symbol,
    side,
    quantity,
    price,
    effective_price,
    commission,
    impact,
    remaining,
    original_qty,
    position_after,
    cash_after
FROM backtest_trades
WHERE run_id = $1
ORDER BY seq ASC`

	var rows []tradeRow
	if err := r.conn.QueryRowsCtx(ctx, &rows, query, runID); err != nil {
		return nil, fmt.Errorf("runsRepo.TradesForRun query: %w", err)
	}

	trades := make([]backtest.Trade, 0, len(rows))
	for _, row := range rows {
		trades = append(trades, backtest.Trade{
			Date:           row.TradeDate,
			Symbol:         row.Symbol,
			Side:           backtest.Side(row.Side),
			Quantity:       row.Quantity,
			Price:          row.Price,
			EffectivePrice: row.EffectivePrice,
			Commission:     row.Commission,
			Impact:         row.Impact,
			Remaining:      row.Remaining,
			OriginalQty:    row.OriginalQty,
			PositionAfter:  row.PositionAfter,
			CashAfter:      row.CashAfter,
		})
	}
	return trades, nil
}

// symbolsValue flattens the symbol set into the comma-joined text column,
// NULL when empty.
func symbolsValue(symbols []string) any {
	joined := strings.Join(symbols, ",")
	if joined == "" {
		return nil
	}
	return joined
}

func (r *runsRepo) getCache(ctx context.Context, key string, v any) (bool, error) {
	if r.cache == nil {
		return false, nil
	}
	if err := r.cache.GetCtx(ctx, key, v); err != nil {
		if r.cache.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *runsRepo) setCache(ctx context.Context, key string, ttl int, v any) {
	if r.cache == nil || ttl <= 0 {
		return
	}
	expire := time.Duration(ttl) * time.Second
	if err := r.cache.SetWithExpireCtx(ctx, key, v, expire); err != nil {
		logx.WithContext(ctx).Errorf("set cache %s: %v", key, err)
	}
}

func (r *runsRepo) dropCache(ctx context.Context, key string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.DelCtx(ctx, key); err != nil {
		logx.WithContext(ctx).Errorf("drop cache %s: %v", key, err)
	}
}

type runRow struct {
	ID              int64          `db:"id"`
	Label           string         `db:"label"`
	StartedAt       time.Time      `db:"started_at"`
	Symbols         sql.NullString `db:"symbols"`
	InitialCash     float64        `db:"initial_cash"`
	FinalEquity     float64        `db:"final_equity"`
	Sharpe          float64        `db:"sharpe_ratio"`
	MaxDrawdown     float64        `db:"max_drawdown"`
	TotalTrades     int64          `db:"total_trades"`
	TotalCommission float64        `db:"total_commission"`
	TotalSlippage   float64        `db:"total_slippage_cost"`
}

type tradeRow struct {
	TradeDate      time.Time `db:"trade_date"`
	Symbol         string    `db:"symbol"`
	Side           string    `db:"side"`
	Quantity       int64     `db:"quantity"`
	Price          float64   `db:"price"`
	EffectivePrice float64   `db:"effective_price"`
	Commission     float64   `db:"commission"`
	Impact         float64   `db:"impact"`
	Remaining      int64     `db:"remaining"`
	OriginalQty    int64     `db:"original_qty"`
	PositionAfter  int64     `db:"position_after"`
	CashAfter      float64   `db:"cash_after"`
}

// Package journal persists completed run records to a directory for audit
// and offline analysis.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"quantbt/pkg/backtest"
)

// RunRecord captures the outcome of a single engine run.
type RunRecord struct {
	Timestamp    time.Time        `json:"timestamp"`
	RunID        string           `json:"run_id,omitempty"`
	Symbols      []string         `json:"symbols,omitempty"`
	FinalEquity  float64          `json:"final_equity"`
	Sharpe       float64          `json:"sharpe_ratio"`
	MaxDrawdown  float64          `json:"max_drawdown"`
	TotalTrades  int              `json:"total_trades"`
	TotalCost    float64          `json:"total_cost"`
	Trades       []backtest.Trade `json:"trades,omitempty"`
	Success      bool             `json:"success"`
	ErrorMessage string           `json:"error_message,omitempty"`
	EquityFile   string           `json:"equity_file,omitempty"`
	Extra        map[string]any   `json:"extra,omitempty"`
}

// Writer persists run records to a directory, one JSON file per run plus a
// msgpack equity snapshot alongside it.
type Writer struct {
	dir   string
	seq   int
	nowFn func() time.Time
}

// NewWriter constructs a journal writer rooted at dir.
func NewWriter(dir string) *Writer {
	if dir == "" {
		dir = "journal"
	}
	_ = os.MkdirAll(dir, 0o755)
	return &Writer{dir: dir, nowFn: time.Now}
}

// WriteRun writes rec to a timestamped JSON file and, when the result has an
// equity curve, a companion msgpack snapshot of it. Returns the record path.
func (w *Writer) WriteRun(rec *RunRecord, res *backtest.Result) (string, error) {
	if rec == nil {
		return "", fmt.Errorf("journal: nil record")
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = w.nowFn()
	}
	w.seq++
	stamp := rec.Timestamp.UTC().Format("20060102_150405")

	if res != nil {
		rec.FinalEquity = finalEquity(res)
		rec.Sharpe = res.Sharpe
		rec.MaxDrawdown = res.MaxDrawdown
		rec.TotalTrades = res.TotalTrades
		rec.TotalCost = res.TotalCommission + res.TotalSlippageCost
		rec.Trades = res.Trades

		if len(res.EquityCurve) > 0 {
			eqName := fmt.Sprintf("run_%s_%05d_equity.msgpack", stamp, w.seq)
			if err := w.writeEquity(eqName, res.EquityCurve); err != nil {
				return "", err
			}
			rec.EquityFile = eqName
		}
	}

	name := fmt.Sprintf("run_%s_%05d.json", stamp, w.seq)
	path := filepath.Join(w.dir, name)
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// ReadEquity loads an equity snapshot previously written next to a record.
func (w *Writer) ReadEquity(name string) ([]backtest.EquityPoint, error) {
	data, err := os.ReadFile(filepath.Join(w.dir, name))
	if err != nil {
		return nil, fmt.Errorf("journal: read equity snapshot: %w", err)
	}
	var curve []backtest.EquityPoint
	if err := msgpack.Unmarshal(data, &curve); err != nil {
		return nil, fmt.Errorf("journal: decode equity snapshot: %w", err)
	}
	return curve, nil
}

func (w *Writer) writeEquity(name string, curve []backtest.EquityPoint) error {
	data, err := msgpack.Marshal(curve)
	if err != nil {
		return fmt.Errorf("journal: encode equity snapshot: %w", err)
	}
	if err := os.WriteFile(filepath.Join(w.dir, name), data, 0o644); err != nil {
		return fmt.Errorf("journal: write equity snapshot: %w", err)
	}
	return nil
}

func finalEquity(res *backtest.Result) float64 {
	if len(res.EquityCurve) == 0 {
		return 0
	}
	return res.EquityCurve[len(res.EquityCurve)-1].Equity
}

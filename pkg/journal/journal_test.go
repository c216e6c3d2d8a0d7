package journal

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantbt/pkg/backtest"
)

func TestWriteRun(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	w.nowFn = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

	res := &backtest.Result{
		EquityCurve: []backtest.EquityPoint{
			{Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Equity: 100000},
			{Timestamp: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), Equity: 100300},
		},
		Sharpe:          1.2,
		MaxDrawdown:     -0.01,
		TotalTrades:     2,
		TotalCommission: 1.5,
	}

	path, err := w.WriteRun(&RunRecord{Symbols: []string{"AAPL"}, Success: true}, res)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var rec RunRecord
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, 100300.0, rec.FinalEquity)
	assert.Equal(t, 1.2, rec.Sharpe)
	assert.Equal(t, 2, rec.TotalTrades)
	assert.True(t, rec.Success)
	require.NotEmpty(t, rec.EquityFile)

	curve, err := w.ReadEquity(rec.EquityFile)
	require.NoError(t, err)
	require.Len(t, curve, 2)
	assert.Equal(t, 100300.0, curve[1].Equity)
}

func TestWriteRun_NilRecord(t *testing.T) {
	w := NewWriter(t.TempDir())
	_, err := w.WriteRun(nil, nil)
	assert.Error(t, err)
}

func TestWriteRun_NoEquityCurve(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	path, err := w.WriteRun(&RunRecord{Success: false, ErrorMessage: "no valid price data"}, nil)
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))

	var rec RunRecord
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Empty(t, rec.EquityFile)
	assert.Equal(t, "no valid price data", rec.ErrorMessage)
}

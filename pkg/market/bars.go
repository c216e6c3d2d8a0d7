// Package market loads historical price bars from files. Live market data
// feeds are external collaborators; the engine only ever sees bars that have
// been fetched to completion before a run starts.
package market

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"quantbt/pkg/backtest"
)

var barTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// LoadBarsCSVFile reads OHLCV bars from a CSV file.
func LoadBarsCSVFile(path string) ([]backtest.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("market: open bars file: %w", err)
	}
	defer f.Close()
	bars, err := LoadBarsCSV(f)
	if err != nil {
		return nil, fmt.Errorf("market: %s: %w", path, err)
	}
	return bars, nil
}

// LoadBarsCSV reads OHLCV bars from CSV content. The first row must be a
// header naming at least a date/timestamp column and a close column; open,
// high, low, and volume columns are picked up when present. Column matching
// is case-insensitive.
func LoadBarsCSV(r io.Reader) ([]backtest.Bar, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty csv")
	}

	cols := map[string]int{}
	for i, name := range records[0] {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	tsCol, ok := firstColumn(cols, "date", "timestamp", "time", "ts")
	if !ok {
		return nil, fmt.Errorf("csv header missing date column")
	}
	closeCol, ok := firstColumn(cols, "close", "adj close")
	if !ok {
		return nil, fmt.Errorf("csv header missing close column")
	}

	bars := make([]backtest.Bar, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) <= tsCol || len(rec) <= closeCol {
			continue
		}
		ts, err := parseBarTime(rec[tsCol])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		closePx, err := strconv.ParseFloat(strings.TrimSpace(rec[closeCol]), 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid close %q", i+2, rec[closeCol])
		}
		bar := backtest.Bar{Timestamp: ts, Close: closePx}
		bar.Open = optionalFloat(rec, cols, "open")
		bar.High = optionalFloat(rec, cols, "high")
		bar.Low = optionalFloat(rec, cols, "low")
		bar.Volume = optionalFloat(rec, cols, "volume")
		bars = append(bars, bar)
	}
	return bars, nil
}

func firstColumn(cols map[string]int, names ...string) (int, bool) {
	for _, name := range names {
		if idx, ok := cols[name]; ok {
			return idx, true
		}
	}
	return 0, false
}

func optionalFloat(rec []string, cols map[string]int, name string) float64 {
	idx, ok := cols[name]
	if !ok || len(rec) <= idx {
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(rec[idx]), 64)
	if err != nil {
		return 0
	}
	return v
}

func parseBarTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range barTimeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	// Fall back to unix seconds or milliseconds.
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", raw)
}

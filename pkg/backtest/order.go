package backtest

import (
	"strings"
	"time"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Order is a caller-supplied trading intention. The engine never mutates it;
// fill progress lives in an engine-owned ledger keyed by order index.
//
// Timestamp is the earliest time the order may execute. It is kept as a
// string because order originators produce loosely formatted times; an
// unparseable timestamp drops the order from the run (logged, never fatal).
type Order struct {
	Symbol    string `json:"symbol" yaml:"symbol"`
	Side      Side   `json:"side" yaml:"side"`
	Quantity  int64  `json:"qty" yaml:"qty"`
	Timestamp string `json:"timestamp" yaml:"timestamp"`
}

var orderTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseOrderTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range orderTimeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// fillState tracks execution progress for one order. It is owned by the
// engine for the duration of a single run and discarded afterwards.
type fillState struct {
	due       time.Time
	remaining int64
	executed  bool
	skipped   bool // unparseable timestamp, ignored for the whole run
}

func (f *fillState) eligible(barTime time.Time) bool {
	return !f.skipped && !f.executed && !f.due.After(barTime)
}

func newFillStates(orders []Order) []fillState {
	states := make([]fillState, len(orders))
	for i, o := range orders {
		ts, ok := parseOrderTime(o.Timestamp)
		if !ok {
			states[i] = fillState{skipped: true}
			continue
		}
		states[i] = fillState{due: ts, remaining: o.Quantity}
	}
	return states
}

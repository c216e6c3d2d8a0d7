// Package portfolio provides a standalone cash/position ledger with strict
// trade validation. Unlike the bar-by-bar loop in pkg/backtest, ExecuteTrade
// rejects trades the account cannot afford; the two policies are deliberately
// kept separate.
package portfolio

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	// ErrInsufficientCash rejects a BUY whose total cost exceeds free cash.
	ErrInsufficientCash = errors.New("portfolio: insufficient cash")
	// ErrInsufficientShares rejects a SELL larger than the held quantity.
	ErrInsufficientShares = errors.New("portfolio: insufficient shares")
)

// Position is a snapshot of one holding.
type Position struct {
	Symbol    string  `json:"symbol"`
	Quantity  float64 `json:"quantity"`
	AvgCost   float64 `json:"avg_cost"`
	LastPrice float64 `json:"last_price"`
}

// TradeRecord captures one executed trade for the caller's audit trail.
type TradeRecord struct {
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	Quantity   float64   `json:"quantity"`
	Price      float64   `json:"price"`
	Commission float64   `json:"commission"`
	Date       time.Time `json:"date"`
	CashAfter  float64   `json:"cash_after"`
}

// Ledger tracks cash and long positions in memory. Safe for concurrent use.
type Ledger struct {
	mu        sync.Mutex
	cash      float64
	positions map[string]*Position
	nowFn     func() time.Time
}

// NewLedger constructs a ledger with the given starting cash.
func NewLedger(cash float64) *Ledger {
	return &Ledger{
		cash:      cash,
		positions: make(map[string]*Position),
		nowFn:     time.Now,
	}
}

// ExecuteTrade applies one validated trade. BUY requires sufficient cash for
// notional plus commission; SELL requires a sufficient existing quantity.
// Constraint violations surface as typed errors and are never clamped.
func (l *Ledger) ExecuteTrade(symbol, side string, quantity, price, commission float64) (*TradeRecord, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	side = strings.ToUpper(strings.TrimSpace(side))
	if symbol == "" {
		return nil, fmt.Errorf("portfolio: symbol is required")
	}
	if side != "BUY" && side != "SELL" {
		return nil, fmt.Errorf("portfolio: side must be BUY or SELL, got %q", side)
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("portfolio: quantity must be positive")
	}
	if price <= 0 {
		return nil, fmt.Errorf("portfolio: price must be positive")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	notional := quantity * price
	pos := l.positions[symbol]

	if side == "BUY" {
		total := notional + commission
		if total > l.cash {
			return nil, fmt.Errorf("%w: %.2f < %.2f", ErrInsufficientCash, l.cash, total)
		}
		l.cash -= total
		if pos == nil {
			l.positions[symbol] = &Position{Symbol: symbol, Quantity: quantity, AvgCost: price, LastPrice: price}
		} else {
			newQty := pos.Quantity + quantity
			pos.AvgCost = (pos.Quantity*pos.AvgCost + quantity*price) / newQty
			pos.Quantity = newQty
			pos.LastPrice = price
		}
	} else {
		held := 0.0
		if pos != nil {
			held = pos.Quantity
		}
		if held < quantity {
			return nil, fmt.Errorf("%w: %.4f < %.4f", ErrInsufficientShares, held, quantity)
		}
		l.cash += notional - commission
		pos.Quantity -= quantity
		pos.LastPrice = price
		if pos.Quantity <= 0 {
			delete(l.positions, symbol)
		}
	}

	return &TradeRecord{
		Symbol:     symbol,
		Side:       side,
		Quantity:   quantity,
		Price:      price,
		Commission: commission,
		Date:       l.nowFn().UTC(),
		CashAfter:  l.cash,
	}, nil
}

// MarkPrices updates the last known price of matching positions.
func (l *Ledger) MarkPrices(prices map[string]float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for sym, px := range prices {
		if pos, ok := l.positions[strings.ToUpper(sym)]; ok {
			pos.LastPrice = px
		}
	}
}

// Value returns free cash, the marked value of open positions, and the total.
func (l *Ledger) Value() (cash, positionsValue, total float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, pos := range l.positions {
		positionsValue += pos.Quantity * pos.LastPrice
	}
	return l.cash, positionsValue, l.cash + positionsValue
}

// Position returns a copy of the holding for symbol, if any.
func (l *Ledger) Position(symbol string) (Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos, ok := l.positions[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// Positions returns copies of all open holdings, sorted by symbol.
func (l *Ledger) Positions() []Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Position, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Package portfolio tracks bracketed positions and their P&L for simulated
// venues.
//
// Every filled order opens one position that stays open until a later
// candle trades through its stop-loss or take-profit level. On a real venue
// the protective orders do that; the backtester and the paper venue use Book
// to play the venue's part.
package portfolio

import (
	"sort"
	"sync"
	"time"

	"binance-signalbot/internal/model"
)

// Exit reasons.
const (
	ExitStopLoss   = "stop_loss"
	ExitTakeProfit = "take_profit"
	ExitEndOfData  = "end_of_data"
)

// Exit is a closed position.
type Exit struct {
	model.Position
	Price    float64   `json:"price"`
	Reason   string    `json:"reason"`
	ClosedAt time.Time `json:"closed_at"`
	PnL      float64   `json:"pnl"`
}

// Book holds open positions keyed by order ID.
type Book struct {
	mu        sync.RWMutex
	positions map[string]*model.Position
}

// New creates an empty Book.
func New() *Book {
	return &Book{positions: make(map[string]*model.Position)}
}

// Open starts tracking pos.
func (b *Book) Open(pos model.Position) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.positions[pos.OrderID] = &pos
}

// Mark closes every position on symbol whose bracket candle c traded
// through. When a candle spans both levels the stop-loss is assumed to have
// traded first.
func (b *Book) Mark(symbol string, c model.Candle) []Exit {
	b.mu.Lock()
	defer b.mu.Unlock()

	var exits []Exit
	for id, p := range b.positions {
		if p.Symbol != symbol || !c.TS.After(p.OpenedAt) {
			continue
		}
		price, reason, hit := bracketHit(p, c)
		if !hit {
			continue
		}
		exits = append(exits, Exit{Position: *p, Price: price, Reason: reason, ClosedAt: c.TS, PnL: p.PnL(price)})
		delete(b.positions, id)
	}
	sortExits(exits)
	return exits
}

// CloseAll closes every open position on symbol at price.
func (b *Book) CloseAll(symbol string, price float64, at time.Time) []Exit {
	b.mu.Lock()
	defer b.mu.Unlock()

	var exits []Exit
	for id, p := range b.positions {
		if p.Symbol != symbol {
			continue
		}
		exits = append(exits, Exit{Position: *p, Price: price, Reason: ExitEndOfData, ClosedAt: at, PnL: p.PnL(price)})
		delete(b.positions, id)
	}
	sortExits(exits)
	return exits
}

// Positions returns a snapshot of open positions, oldest first.
func (b *Book) Positions() []model.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]model.Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}

// Unrealized returns the open P&L given the latest price per symbol.
func (b *Book) Unrealized(prices map[string]float64) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var total float64
	for _, p := range b.positions {
		if price, ok := prices[p.Symbol]; ok {
			total += p.PnL(price)
		}
	}
	return total
}

func bracketHit(p *model.Position, c model.Candle) (float64, string, bool) {
	if p.Side == model.SideSell {
		switch {
		case p.StopLoss > 0 && c.High >= p.StopLoss:
			return p.StopLoss, ExitStopLoss, true
		case p.TakeProfit > 0 && c.Low <= p.TakeProfit:
			return p.TakeProfit, ExitTakeProfit, true
		}
		return 0, "", false
	}
	switch {
	case p.StopLoss > 0 && c.Low <= p.StopLoss:
		return p.StopLoss, ExitStopLoss, true
	case p.TakeProfit > 0 && c.High >= p.TakeProfit:
		return p.TakeProfit, ExitTakeProfit, true
	}
	return 0, "", false
}

func sortExits(exits []Exit) {
	sort.Slice(exits, func(i, j int) bool { return exits[i].OpenedAt.Before(exits[j].OpenedAt) })
}

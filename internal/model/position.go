package model

import "time"

// Position is one bracketed entry tracked until its stop-loss or
// take-profit level trades.
type Position struct {
	OrderID    string    `json:"order_id"`
	Venue      string    `json:"venue"`
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Qty        float64   `json:"qty"`
	Entry      float64   `json:"entry"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	OpenedAt   time.Time `json:"opened_at"`
}

// PnL is the profit or loss of closing the position at price.
func (p *Position) PnL(price float64) float64 {
	if p.Side == SideSell {
		return (p.Entry - price) * p.Qty
	}
	return (price - p.Entry) * p.Qty
}

// Key returns "venue:symbol".
func (p *Position) Key() string {
	return p.Venue + ":" + p.Symbol
}

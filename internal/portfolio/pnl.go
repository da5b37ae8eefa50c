package portfolio

import "sync"

// PnLTracker accumulates realized P&L from closed positions.
type PnLTracker struct {
	mu       sync.RWMutex
	exits    []Exit
	realized float64
	wins     int
	losses   int
}

// NewPnLTracker creates a new P&L tracker.
func NewPnLTracker() *PnLTracker {
	return &PnLTracker{exits: make([]Exit, 0, 64)}
}

// RecordExit books a closed position and returns its P&L.
func (p *PnLTracker) RecordExit(e Exit) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.exits = append(p.exits, e)
	p.realized += e.PnL
	switch {
	case e.PnL > 0:
		p.wins++
	case e.PnL < 0:
		p.losses++
	}
	return e.PnL
}

// Realized returns total realized P&L in quote units.
func (p *PnLTracker) Realized() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.realized
}

// Exits returns a snapshot of all closed positions.
func (p *PnLTracker) Exits() []Exit {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]Exit, len(p.exits))
	copy(cp, p.exits)
	return cp
}

// PnLSummary is a point-in-time P&L summary.
type PnLSummary struct {
	RealizedPnL   float64 `json:"realized_pnl"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	TotalPnL      float64 `json:"total_pnl"`
	ClosedTrades  int     `json:"closed_trades"`
	Wins          int     `json:"wins"`
	Losses        int     `json:"losses"`
	WinRatePct    float64 `json:"win_rate_pct"`
	OpenPositions int     `json:"open_positions"`
}

// Summary combines realized P&L with book's open positions marked at prices.
func (p *PnLTracker) Summary(book *Book, prices map[string]float64) PnLSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s := PnLSummary{
		RealizedPnL:  p.realized,
		ClosedTrades: len(p.exits),
		Wins:         p.wins,
		Losses:       p.losses,
	}
	if book != nil {
		s.UnrealizedPnL = book.Unrealized(prices)
		s.OpenPositions = len(book.Positions())
	}
	s.TotalPnL = s.RealizedPnL + s.UnrealizedPnL
	if s.ClosedTrades > 0 {
		s.WinRatePct = float64(s.Wins) / float64(s.ClosedTrades) * 100
	}
	return s
}

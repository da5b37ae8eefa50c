package portfolio

import "sync"

// EquityCurve follows account equity through realized P&L and tracks the
// deepest peak-to-trough drawdown.
type EquityCurve struct {
	mu          sync.RWMutex
	start       float64
	equity      float64
	peak        float64
	maxDrawdown float64 // percent, 0-100
}

// NewEquityCurve starts a curve at initialEquity.
func NewEquityCurve(initialEquity float64) *EquityCurve {
	return &EquityCurve{start: initialEquity, equity: initialEquity, peak: initialEquity}
}

// RecordPnL applies a realized result.
func (c *EquityCurve) RecordPnL(pnl float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.equity += pnl
	if c.equity > c.peak {
		c.peak = c.equity
	}
	if c.peak > 0 {
		if dd := (c.peak - c.equity) / c.peak * 100; dd > c.maxDrawdown {
			c.maxDrawdown = dd
		}
	}
}

// EquityStatus is a snapshot of the curve.
type EquityStatus struct {
	Start          float64 `json:"start"`
	Equity         float64 `json:"equity"`
	Peak           float64 `json:"peak"`
	ReturnPct      float64 `json:"return_pct"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
}

// Status returns the current equity figures.
func (c *EquityCurve) Status() EquityStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := EquityStatus{Start: c.start, Equity: c.equity, Peak: c.peak, MaxDrawdownPct: c.maxDrawdown}
	if c.start > 0 {
		s.ReturnPct = (c.equity - c.start) / c.start * 100
	}
	return s
}

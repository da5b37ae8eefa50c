// Package indicator provides technical indicator calculations over candle data.
//
// All indicators implement the Indicator interface, receiving candles and
// producing float64 values. Compute runs the momentum and trend indicators
// over a full price window for one evaluation.
package indicator

import "binance-signalbot/internal/model"

// Indicator is the interface for all technical indicators.
type Indicator interface {
	// Update feeds a new candle and recalculates.
	Update(candle model.Candle)

	// Value returns the current calculated value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool
}

package model

import (
	"fmt"
	"time"
)

// Candle is one OHLCV sample as returned by the venue's kline endpoint.
// Prices are quote-asset units (e.g. USDT) as float64.
type Candle struct {
	TS     time.Time `json:"ts"` // bucket open time (UTC)
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// PriceSeries is an ordered OHLCV window, most recent sample last.
type PriceSeries []Candle

// Closes returns the close prices in series order.
func (s PriceSeries) Closes() []float64 {
	out := make([]float64, len(s))
	for i := range s {
		out[i] = s[i].Close
	}
	return out
}

// Last returns the most recent sample. The series must not be empty.
func (s PriceSeries) Last() Candle {
	return s[len(s)-1]
}

// Validate checks the strictly-increasing timestamp invariant.
// A violation means the venue returned a malformed window.
func (s PriceSeries) Validate() error {
	for i := 1; i < len(s); i++ {
		if !s[i].TS.After(s[i-1].TS) {
			return fmt.Errorf("%w: non-increasing timestamp at index %d (%s <= %s)",
				ErrDataUnavailable, i, s[i].TS.Format(time.RFC3339), s[i-1].TS.Format(time.RFC3339))
		}
	}
	return nil
}

package indicator

import (
	"fmt"
	"math"
	"time"

	"binance-signalbot/internal/model"
)

// Snapshot is the indicator state of one evaluation. It is immutable once
// produced and owned by the evaluation that created it.
type Snapshot struct {
	Momentum float64   `json:"momentum"` // RSI, [0,100]
	Trend    float64   `json:"trend"`    // SMA of the trailing closes
	Price    float64   `json:"price"`    // last close
	At       time.Time `json:"at"`      // open time of the last candle
}

// Compute runs RSI(momentumPeriod) and SMA(trendPeriod) over the whole series.
// The series must hold at least max(momentumPeriod, trendPeriod) samples.
func Compute(series model.PriceSeries, momentumPeriod, trendPeriod int) (Snapshot, error) {
	if momentumPeriod < 1 || trendPeriod < 1 {
		return Snapshot{}, fmt.Errorf("%w: periods must be >= 1 (momentum=%d trend=%d)",
			model.ErrInsufficientHistory, momentumPeriod, trendPeriod)
	}
	need := momentumPeriod
	if trendPeriod > need {
		need = trendPeriod
	}
	if len(series) < need {
		return Snapshot{}, fmt.Errorf("%w: have %d samples, need %d",
			model.ErrInsufficientHistory, len(series), need)
	}
	if err := series.Validate(); err != nil {
		return Snapshot{}, err
	}

	rsi := NewRSI(momentumPeriod)
	sma := NewSMA(trendPeriod)
	inds := []Indicator{rsi, sma}
	for i, c := range series {
		if math.IsNaN(c.Close) || math.IsInf(c.Close, 0) || c.Close <= 0 {
			return Snapshot{}, fmt.Errorf("%w: bad close %v at index %d", model.ErrDataUnavailable, c.Close, i)
		}
		for _, ind := range inds {
			ind.Update(c)
		}
	}

	last := series.Last()
	snap := Snapshot{
		Momentum: rsi.Value(),
		Trend:    sma.Value(),
		Price:    last.Close,
		At:       last.TS,
	}
	if !rsi.Seeded() {
		// A single sample carries no movement.
		snap.Momentum = 50.0
	}
	return snap, nil
}

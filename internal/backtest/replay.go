// Package backtest replays archived candles through the live evaluation
// pipeline against a paper venue.
package backtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"binance-signalbot/internal/model"
)

// maxGap caps the simulated wait between two candles.
const maxGap = 5 * time.Second

// Feed serves a historical series as if it were live: FetchOHLCV returns the
// trailing window that ends at the cursor.
type Feed struct {
	mu     sync.Mutex
	series model.PriceSeries
	cursor int
}

// NewFeed sorts series by time and positions the cursor on the first candle.
func NewFeed(series model.PriceSeries) *Feed {
	s := make(model.PriceSeries, len(series))
	copy(s, series)
	sort.SliceStable(s, func(i, j int) bool { return s[i].TS.Before(s[j].TS) })
	return &Feed{series: s}
}

// Len is the number of candles in the replay.
func (f *Feed) Len() int { return len(f.series) }

// Seek moves the cursor to candle i.
func (f *Feed) Seek(i int) model.Candle {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cursor = i
	return f.series[i]
}

// FetchOHLCV returns up to limit candles ending at the cursor. The symbol and
// timeframe are fixed by the loaded series.
func (f *Feed) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) (model.PriceSeries, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrDataUnavailable, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.series) == 0 {
		return nil, fmt.Errorf("%w: empty replay", model.ErrDataUnavailable)
	}
	end := f.cursor + 1
	start := 0
	if limit > 0 && end-limit > 0 {
		start = end - limit
	}
	out := make(model.PriceSeries, end-start)
	copy(out, f.series[start:end])
	return out, nil
}

// Replayer walks a Feed candle by candle.
type Replayer struct {
	feed  *Feed
	speed float64
}

// NewReplayer creates a Replayer. speed scales the real gap between candles:
// 1.0 is real time, 100 is 100x, 0 is as fast as possible.
func NewReplayer(feed *Feed, speed float64) *Replayer {
	return &Replayer{feed: feed, speed: speed}
}

// Run seeks to each candle from index from onward and calls step. It stops
// at the first step error or when ctx is cancelled.
func (r *Replayer) Run(ctx context.Context, from int, step func(i int, c model.Candle) error) error {
	var prevTS time.Time
	for i := from; i < r.feed.Len(); i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		c := r.feed.Seek(i)
		if r.speed > 0 && !prevTS.IsZero() {
			if gap := c.TS.Sub(prevTS); gap > 0 {
				scaled := time.Duration(float64(gap) / r.speed)
				if scaled > maxGap {
					scaled = maxGap
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(scaled):
				}
			}
		}
		prevTS = c.TS

		if err := step(i, c); err != nil {
			return err
		}
	}
	return nil
}

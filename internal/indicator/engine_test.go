package indicator

import (
	"errors"
	"testing"
	"time"

	"binance-signalbot/internal/model"
)

var t0 = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func series(closes ...float64) model.PriceSeries {
	out := make(model.PriceSeries, len(closes))
	for i, c := range closes {
		out[i] = candle(c)
		out[i].TS = t0.Add(time.Duration(i) * 15 * time.Minute)
	}
	return out
}

func rising(n int, start, step float64) model.PriceSeries {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = start + float64(i)*step
	}
	return series(closes...)
}

func TestCompute_InsufficientHistory(t *testing.T) {
	cases := []struct {
		name     string
		n        int
		momentum int
		trend    int
	}{
		{"empty", 0, 14, 20},
		{"shorter than trend", 19, 14, 20},
		{"shorter than momentum", 13, 14, 5},
		{"zero period", 50, 0, 20},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snap, err := Compute(rising(tc.n, 100, 1), tc.momentum, tc.trend)
			if !errors.Is(err, model.ErrInsufficientHistory) {
				t.Fatalf("err = %v, want ErrInsufficientHistory", err)
			}
			if snap != (Snapshot{}) {
				t.Fatalf("expected zero snapshot, got %+v", snap)
			}
		})
	}
}

func TestCompute_ExactLookback(t *testing.T) {
	snap, err := Compute(rising(20, 100, 1), 14, 20)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	// mean(100..119) = 109.5
	assertClose(t, "trend", snap.Trend, 109.5, 1e-9)
	assertClose(t, "momentum", snap.Momentum, 100, 1e-9)
	assertClose(t, "price", snap.Price, 119, 1e-9)
	if !snap.At.Equal(t0.Add(19 * 15 * time.Minute)) {
		t.Errorf("At = %v", snap.At)
	}
}

func TestCompute_TrendUsesTrailingWindow(t *testing.T) {
	// 100 samples; SMA(20) must only see the last 20 closes.
	s := rising(100, 1, 1)
	snap, err := Compute(s, 14, 20)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	// mean(81..100) = 90.5
	assertClose(t, "trend", snap.Trend, 90.5, 1e-9)
}

func TestCompute_SingleSample(t *testing.T) {
	snap, err := Compute(series(42), 1, 1)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	assertClose(t, "momentum", snap.Momentum, 50, 1e-9)
	assertClose(t, "trend", snap.Trend, 42, 1e-9)
}

func TestCompute_FlatWindow(t *testing.T) {
	snap, err := Compute(rising(100, 100, 0), 14, 20)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	assertClose(t, "momentum", snap.Momentum, 100, 1e-9)
	assertClose(t, "trend", snap.Trend, 100, 1e-9)
	assertClose(t, "price", snap.Price, 100, 1e-9)
}

func TestCompute_Deterministic(t *testing.T) {
	s := series(10, 11, 10.5, 12, 11.7, 13, 12.2, 12.9, 14, 13.1)
	a, err := Compute(s, 5, 5)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	b, _ := Compute(s, 5, 5)
	if a != b {
		t.Fatalf("non-deterministic: %+v vs %+v", a, b)
	}
}

func TestCompute_MalformedSeries(t *testing.T) {
	s := rising(30, 100, 1)
	s[10].TS = s[9].TS
	if _, err := Compute(s, 14, 20); !errors.Is(err, model.ErrDataUnavailable) {
		t.Fatalf("duplicate timestamp: err = %v, want ErrDataUnavailable", err)
	}

	s = rising(30, 100, 1)
	s[5].Close = 0
	if _, err := Compute(s, 14, 20); !errors.Is(err, model.ErrDataUnavailable) {
		t.Fatalf("zero close: err = %v, want ErrDataUnavailable", err)
	}
}

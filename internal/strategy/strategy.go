// Package strategy turns an indicator snapshot into a trading decision.
//
// A Strategy is a pure function of the snapshot: it keeps no state between
// evaluations, so the same snapshot always yields the same Signal.
package strategy

import (
	"fmt"

	"binance-signalbot/internal/indicator"
	"binance-signalbot/internal/model"
)

// Strategy is the interface that all trading strategies must implement.
type Strategy interface {
	// Name returns the unique name of the strategy.
	Name() string

	// Evaluate maps a snapshot to Buy, Sell or Hold.
	Evaluate(snap indicator.Snapshot) model.Signal
}

// Evaluate applies the RSI mean-reversion rule with a trend filter.
//
// Buy signal: RSI below oversold while price is above the trend line.
// Sell signal: RSI above overbought while price is at or below the trend line.
// Anything else holds, including values equal to a threshold.
func Evaluate(snap indicator.Snapshot, oversold, overbought float64) model.Signal {
	switch {
	case snap.Momentum < oversold && snap.Price > snap.Trend:
		return model.Buy
	case snap.Momentum > overbought && snap.Price <= snap.Trend:
		return model.Sell
	default:
		return model.Hold
	}
}

// RSITrend is the configured form of Evaluate.
type RSITrend struct {
	Oversold   float64
	Overbought float64
}

// NewRSITrend validates the threshold pair.
func NewRSITrend(oversold, overbought float64) (*RSITrend, error) {
	if oversold < 0 || overbought > 100 || oversold >= overbought {
		return nil, fmt.Errorf("strategy: need 0 <= oversold < overbought <= 100, got %v/%v", oversold, overbought)
	}
	return &RSITrend{Oversold: oversold, Overbought: overbought}, nil
}

func (s *RSITrend) Name() string { return "RSI_Trend" }

func (s *RSITrend) Evaluate(snap indicator.Snapshot) model.Signal {
	return Evaluate(snap, s.Oversold, s.Overbought)
}

// Reason renders the inputs behind a decision for logs and notifications.
func Reason(snap indicator.Snapshot, sig model.Signal) string {
	rel := "above"
	if snap.Price <= snap.Trend {
		rel = "at/below"
	}
	return fmt.Sprintf("%s: RSI=%.2f price=%s %s SMA=%.2f",
		sig, snap.Momentum, model.FormatFloat(snap.Price), rel, snap.Trend)
}

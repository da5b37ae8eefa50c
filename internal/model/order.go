package model

import (
	"fmt"
	"math"
	"strings"
)

// Signal is the discrete trading decision for one evaluation.
type Signal int

const (
	Hold Signal = iota
	Buy
	Sell
)

func (s Signal) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "HOLD"
	}
}

// Actionable reports whether the signal leads to an order.
func (s Signal) Actionable() bool { return s == Buy || s == Sell }

// Side is an order direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the closing direction for a position opened with s.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// SideFor maps an actionable signal to an order side.
func SideFor(sig Signal) (Side, error) {
	switch sig {
	case Buy:
		return SideBuy, nil
	case Sell:
		return SideSell, nil
	default:
		return "", fmt.Errorf("signal %s has no order side", sig)
	}
}

// OrderIntent is a fully specified, not-yet-submitted order with attached
// protective levels. It is built once per cycle and never mutated.
type OrderIntent struct {
	Venue           Venue
	Symbol          string // unified form, e.g. "BTC/USDT"
	Side            Side
	Quantity        float64
	ReferencePrice  float64
	StopLossPrice   float64
	TakeProfitPrice float64
	ClientOrderID   string
}

// Validate checks that the intent can be submitted as-is.
func (o OrderIntent) Validate() error {
	if math.IsNaN(o.Quantity) || math.IsInf(o.Quantity, 0) || o.Quantity <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidQuantity, o.Quantity)
	}
	p, sl, tp := o.ReferencePrice, o.StopLossPrice, o.TakeProfitPrice
	switch o.Side {
	case SideBuy:
		if !(sl < p && p < tp) {
			return fmt.Errorf("%w: buy needs SL %v < price %v < TP %v", ErrInvalidPriceLevels, sl, p, tp)
		}
	case SideSell:
		if !(tp < p && p < sl) {
			return fmt.Errorf("%w: sell needs TP %v < price %v < SL %v", ErrInvalidPriceLevels, tp, p, sl)
		}
	default:
		return fmt.Errorf("%w: unknown side %q", ErrInvalidQuantity, o.Side)
	}
	return nil
}

// Message renders the intent the way operators read it:
// "[SPOT] BUY @ 30000, Qty: 0.01, SL: 29700, TP: 30600".
func (o OrderIntent) Message() string {
	return fmt.Sprintf("%s %s @ %s, Qty: %s, SL: %s, TP: %s",
		o.Venue.Tag(), o.Side,
		FormatFloat(o.ReferencePrice), FormatFloat(o.Quantity),
		FormatFloat(o.StopLossPrice), FormatFloat(o.TakeProfitPrice))
}

// OrderRequest is the venue-neutral order handed to an order gateway.
type OrderRequest struct {
	Symbol          string
	Side            Side
	Type            string // always "MARKET"
	Amount          float64
	StopLossPrice   float64
	TakeProfitPrice float64
	ClientOrderID   string
	Leverage        int // 0 means "do not set"
}

// OrderConfirmation is what the venue acknowledged.
type OrderConfirmation struct {
	OrderID            string
	Status             string
	ProtectionAttached bool // false when the venue accepted the entry but not both protective legs
}

// AssetBalance holds one asset's amounts.
type AssetBalance struct {
	Free   float64
	Locked float64
	Total  float64
}

// Balance is keyed by asset code, e.g. "USDT".
type Balance map[string]AssetBalance

// SplitSymbol splits "BTC/USDT" into base and quote. Symbols without a
// separator return the whole string as base and an empty quote.
func SplitSymbol(symbol string) (base, quote string) {
	if i := strings.IndexByte(symbol, '/'); i >= 0 {
		return symbol[:i], symbol[i+1:]
	}
	return symbol, ""
}

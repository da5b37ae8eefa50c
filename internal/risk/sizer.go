// Package risk sizes orders and places protective levels.
package risk

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"binance-signalbot/internal/model"
)

// RoundingMode selects how halves are resolved when rounding quantities and prices.
type RoundingMode string

const (
	HalfAwayFromZero RoundingMode = "half_away_from_zero"
	HalfEven         RoundingMode = "half_even"
)

// ParseRoundingMode maps a config string to a RoundingMode. Empty means HalfAwayFromZero.
func ParseRoundingMode(s string) (RoundingMode, error) {
	switch RoundingMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", HalfAwayFromZero:
		return HalfAwayFromZero, nil
	case HalfEven:
		return HalfEven, nil
	default:
		return "", fmt.Errorf("unknown rounding mode %q", s)
	}
}

func (m RoundingMode) round(d decimal.Decimal, places int32) decimal.Decimal {
	if m == HalfEven {
		return d.RoundBank(places)
	}
	return d.Round(places)
}

// CapitalBasis selects which balance figure sizing is based on.
type CapitalBasis string

const (
	BasisAvailable CapitalBasis = "available" // free, unlocked funds
	BasisTotal     CapitalBasis = "total"     // free + locked
)

// ParseCapitalBasis maps a config string to a CapitalBasis. Empty means BasisAvailable.
func ParseCapitalBasis(s string) (CapitalBasis, error) {
	switch CapitalBasis(strings.ToLower(strings.TrimSpace(s))) {
	case "", BasisAvailable:
		return BasisAvailable, nil
	case BasisTotal:
		return BasisTotal, nil
	default:
		return "", fmt.Errorf("unknown capital basis %q", s)
	}
}

// Capital picks the quote-asset figure from bal. A missing asset is zero.
func (b CapitalBasis) Capital(bal model.Balance, quote string) float64 {
	ab, ok := bal[quote]
	if !ok {
		return 0
	}
	if b == BasisTotal {
		if ab.Total > 0 {
			return ab.Total
		}
		return ab.Free + ab.Locked
	}
	return ab.Free
}

const (
	quantityPlaces = 6
	pricePlaces    = 2
)

// Sizer converts a decision and available capital into an OrderIntent.
// Half of the usable capital is committed per decision.
type Sizer struct {
	Mode          RoundingMode
	StopLossPct   float64 // e.g. 0.01
	TakeProfitPct float64 // e.g. 0.02
}

// Size builds the intent for sig at price. Venue and symbol are copied onto
// the intent; ClientOrderID is left for the dispatcher.
//
// The returned intent is not validated: a tiny balance yields quantity 0 and
// rounding may collapse a level onto the price. The dispatcher rejects both.
func (s Sizer) Size(venue model.Venue, symbol string, sig model.Signal, price, capital float64) (model.OrderIntent, error) {
	side, err := model.SideFor(sig)
	if err != nil {
		return model.OrderIntent{}, err
	}
	if price <= 0 {
		return model.OrderIntent{}, fmt.Errorf("%w: reference price %v", model.ErrInvalidPriceLevels, price)
	}

	p := decimal.NewFromFloat(price)
	usable := decimal.NewFromFloat(capital).
		Mul(decimal.NewFromFloat(venue.CapitalUsage)).
		Div(decimal.NewFromInt(2))
	qty := s.Mode.round(usable.Div(p), quantityPlaces)

	one := decimal.NewFromInt(1)
	sl := decimal.NewFromFloat(s.StopLossPct)
	tp := decimal.NewFromFloat(s.TakeProfitPct)

	var stop, take decimal.Decimal
	if side == model.SideBuy {
		stop = p.Mul(one.Sub(sl))
		take = p.Mul(one.Add(tp))
	} else {
		stop = p.Mul(one.Add(sl))
		take = p.Mul(one.Sub(tp))
	}

	return model.OrderIntent{
		Venue:           venue,
		Symbol:          symbol,
		Side:            side,
		Quantity:        qty.InexactFloat64(),
		ReferencePrice:  price,
		StopLossPrice:   s.Mode.round(stop, pricePlaces).InexactFloat64(),
		TakeProfitPrice: s.Mode.round(take, pricePlaces).InexactFloat64(),
	}, nil
}

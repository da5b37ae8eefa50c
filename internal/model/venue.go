package model

import (
	"fmt"
	"strings"
)

// VenueKind distinguishes cash-settled spot trading from leveraged derivatives.
type VenueKind int

const (
	Spot VenueKind = iota
	Leveraged
)

func (k VenueKind) String() string {
	switch k {
	case Spot:
		return "spot"
	case Leveraged:
		return "futures"
	default:
		return "unknown"
	}
}

// ParseVenueKind maps a config string to a VenueKind.
func ParseVenueKind(s string) (VenueKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "spot":
		return Spot, nil
	case "futures", "leveraged", "future":
		return Leveraged, nil
	default:
		return 0, fmt.Errorf("unknown venue kind %q", s)
	}
}

// Venue is a distinct trading market with its own balance and order semantics.
type Venue struct {
	Kind         VenueKind
	CapitalUsage float64 // fraction of the capital basis committed per decision, (0,1]
	Leverage     int     // always 1 for Spot, >= 1 for Leveraged
}

// NewSpot returns a spot venue.
func NewSpot(capitalUsage float64) Venue {
	return Venue{Kind: Spot, CapitalUsage: capitalUsage, Leverage: 1}
}

// NewLeveraged returns a leveraged venue. Leverage below 1 is rejected.
func NewLeveraged(capitalUsage float64, leverage int) (Venue, error) {
	if leverage < 1 {
		return Venue{}, fmt.Errorf("leveraged venue requires leverage >= 1, got %d", leverage)
	}
	return Venue{Kind: Leveraged, CapitalUsage: capitalUsage, Leverage: leverage}, nil
}

// Name is the lower-case label used in logs and metrics.
func (v Venue) Name() string { return v.Kind.String() }

// Tag is the upper-case label used in human-readable messages, e.g. "[SPOT]".
func (v Venue) Tag() string { return "[" + strings.ToUpper(v.Kind.String()) + "]" }

// SetsLeverage reports whether orders on this venue carry a leverage setting.
func (v Venue) SetsLeverage() bool { return v.Kind == Leveraged }

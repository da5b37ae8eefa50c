package model

import (
	"strings"
	"time"
)

// Outcome is the terminal result of one submission attempt.
type Outcome string

const (
	OutcomeSubmitted Outcome = "submitted"
	OutcomeRejected  Outcome = "rejected"
	OutcomeInvalid   Outcome = "invalid"
)

// ActivityRecord is one append-only log entry. It is created exactly once per
// submitted order or terminal failure and never mutated afterwards.
type ActivityRecord struct {
	Timestamp       time.Time `json:"ts"`
	Venue           string    `json:"venue"`
	Symbol          string    `json:"symbol"`
	Side            Side      `json:"side"`
	Quantity        float64   `json:"qty"`
	ReferencePrice  float64   `json:"price"`
	StopLossPrice   float64   `json:"stop_loss"`
	TakeProfitPrice float64   `json:"take_profit"`
	Outcome         Outcome   `json:"outcome"`
	OrderID         string    `json:"order_id,omitempty"`
	Detail          string    `json:"detail,omitempty"`
}

// NewActivityRecord captures intent with the given outcome at ts.
func NewActivityRecord(ts time.Time, intent OrderIntent, outcome Outcome) ActivityRecord {
	return ActivityRecord{
		Timestamp:       ts.UTC(),
		Venue:           intent.Venue.Name(),
		Symbol:          intent.Symbol,
		Side:            intent.Side,
		Quantity:        intent.Quantity,
		ReferencePrice:  intent.ReferencePrice,
		StopLossPrice:   intent.StopLossPrice,
		TakeProfitPrice: intent.TakeProfitPrice,
		Outcome:         outcome,
	}
}

// String renders the single human-readable log line (without the trailing newline).
func (r ActivityRecord) String() string {
	var b strings.Builder
	b.WriteString(r.Timestamp.UTC().Format(time.RFC3339))
	b.WriteString(" [")
	b.WriteString(strings.ToUpper(r.Venue))
	b.WriteString("] ")
	b.WriteString(string(r.Side))
	b.WriteString(" ")
	b.WriteString(r.Symbol)
	b.WriteString(" @ ")
	b.WriteString(FormatFloat(r.ReferencePrice))
	b.WriteString(", Qty: ")
	b.WriteString(FormatFloat(r.Quantity))
	b.WriteString(", SL: ")
	b.WriteString(FormatFloat(r.StopLossPrice))
	b.WriteString(", TP: ")
	b.WriteString(FormatFloat(r.TakeProfitPrice))
	b.WriteString(" | outcome=")
	b.WriteString(string(r.Outcome))
	if r.OrderID != "" {
		b.WriteString(" order=")
		b.WriteString(r.OrderID)
	}
	if r.Detail != "" {
		// keep one record per line
		b.WriteString(" detail=")
		b.WriteString(strings.Join(strings.Fields(r.Detail), " "))
	}
	return b.String()
}

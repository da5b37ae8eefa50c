package model

import "errors"

// Data errors abort the current venue's evaluation before any order is considered.
var (
	// ErrInsufficientHistory is returned when the price window is shorter than
	// the longest indicator lookback.
	ErrInsufficientHistory = errors.New("insufficient history")

	// ErrDataUnavailable is returned when market data cannot be fetched or is malformed.
	ErrDataUnavailable = errors.New("data unavailable")
)

// Order errors abort the current venue's cycle at or after sizing.
var (
	// ErrExchangeUnavailable covers transport, auth and timeout failures.
	// The next scheduled tick is the only retry.
	ErrExchangeUnavailable = errors.New("exchange unavailable")

	// ErrOrderRejected is returned when the venue refuses the order. Terminal.
	ErrOrderRejected = errors.New("order rejected")

	// ErrInvalidQuantity is returned when the sized quantity is not a positive number.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrInvalidPriceLevels is returned when rounding collapsed a protective level
	// onto (or across) the reference price.
	ErrInvalidPriceLevels = errors.New("invalid protective price levels")
)

// ErrNotification marks a failed delivery to a notification sink. It is always
// contained at the notifier boundary.
var ErrNotification = errors.New("notification failed")

// IsDataError reports whether err belongs to the data error family.
func IsDataError(err error) bool {
	return errors.Is(err, ErrInsufficientHistory) || errors.Is(err, ErrDataUnavailable)
}

// IsOrderError reports whether err belongs to the order error family.
func IsOrderError(err error) bool {
	return errors.Is(err, ErrExchangeUnavailable) ||
		errors.Is(err, ErrOrderRejected) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInvalidPriceLevels)
}

// Kind returns a short, stable label for err's family member, used in
// notifications and metric labels.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrInsufficientHistory):
		return "insufficient_history"
	case errors.Is(err, ErrDataUnavailable):
		return "data_unavailable"
	case errors.Is(err, ErrExchangeUnavailable):
		return "exchange_unavailable"
	case errors.Is(err, ErrOrderRejected):
		return "order_rejected"
	case errors.Is(err, ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, ErrInvalidPriceLevels):
		return "invalid_price_levels"
	case errors.Is(err, ErrNotification):
		return "notification"
	default:
		return "unknown"
	}
}

package exchange

import (
	"errors"
	"fmt"

	"binance-signalbot/internal/model"
	"binance-signalbot/pkg/binance"
)

// isUnavailable reports whether err means the venue could not be reached or
// would not talk to us: transport failures, timeouts, 5xx, throttling and
// auth failures. Undecodable answers are not availability problems.
func isUnavailable(err error) bool {
	if errors.Is(err, binance.ErrMalformed) {
		return false
	}
	var apiErr *binance.APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsAuth() || apiErr.IsServer()
	}
	return true
}

// marketDataError maps a kline failure. Every failure is a data error; the
// unreachable ones also carry ErrExchangeUnavailable so breakers count them.
func marketDataError(op string, err error) error {
	if isUnavailable(err) {
		return fmt.Errorf("%w: %s: %w", model.ErrDataUnavailable, op, errors.Join(model.ErrExchangeUnavailable, err))
	}
	return fmt.Errorf("%w: %s: %w", model.ErrDataUnavailable, op, err)
}

// venueError maps a balance, ping, leverage or order failure: unreachable
// means retry on the next tick, anything the venue answered with is a
// terminal rejection.
func venueError(op string, err error) error {
	if isUnavailable(err) {
		return fmt.Errorf("%w: %s: %w", model.ErrExchangeUnavailable, op, err)
	}
	return fmt.Errorf("%w: %s: %w", model.ErrOrderRejected, op, err)
}

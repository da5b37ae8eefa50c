package exchange

import (
	"context"
	"errors"
	"fmt"

	"binance-signalbot/internal/breaker"
	"binance-signalbot/internal/model"
)

// Guard runs every call to the wrapped exchange through a circuit breaker.
// Only unreachability trips it; rejections and bad data pass through.
type Guard struct {
	next model.Exchange
	cb   *breaker.Breaker
}

// NewGuard wraps next with cb and installs the trip filter on cb.
func NewGuard(next model.Exchange, cb *breaker.Breaker) *Guard {
	cb.Trips = func(err error) bool { return errors.Is(err, model.ErrExchangeUnavailable) }
	return &Guard{next: next, cb: cb}
}

// Breaker exposes the underlying breaker for health reporting.
func (g *Guard) Breaker() *breaker.Breaker { return g.cb }

func (g *Guard) open(op string, dataErr bool) error {
	if dataErr {
		return fmt.Errorf("%w: %s: %w", model.ErrDataUnavailable, op,
			errors.Join(model.ErrExchangeUnavailable, fmt.Errorf("%s %w", g.cb.Name(), breaker.ErrOpen)))
	}
	return fmt.Errorf("%w: %s: %s %w", model.ErrExchangeUnavailable, op, g.cb.Name(), breaker.ErrOpen)
}

func (g *Guard) Ping(ctx context.Context) error {
	err := g.cb.Execute(func() error { return g.next.Ping(ctx) })
	if err == breaker.ErrOpen {
		return g.open("ping", false)
	}
	return err
}

func (g *Guard) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) (model.PriceSeries, error) {
	var out model.PriceSeries
	err := g.cb.Execute(func() error {
		var err error
		out, err = g.next.FetchOHLCV(ctx, symbol, timeframe, limit)
		return err
	})
	if err == breaker.ErrOpen {
		return nil, g.open("klines", true)
	}
	return out, err
}

func (g *Guard) FetchBalance(ctx context.Context) (model.Balance, error) {
	var out model.Balance
	err := g.cb.Execute(func() error {
		var err error
		out, err = g.next.FetchBalance(ctx)
		return err
	})
	if err == breaker.ErrOpen {
		return nil, g.open("balance", false)
	}
	return out, err
}

func (g *Guard) CreateOrder(ctx context.Context, req model.OrderRequest) (model.OrderConfirmation, error) {
	var out model.OrderConfirmation
	err := g.cb.Execute(func() error {
		var err error
		out, err = g.next.CreateOrder(ctx, req)
		return err
	})
	if err == breaker.ErrOpen {
		return model.OrderConfirmation{}, g.open("order", false)
	}
	return out, err
}

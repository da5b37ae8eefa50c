package exchange

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binance-signalbot/internal/breaker"
	"binance-signalbot/internal/model"
)

// flakyExchange fails every call with err.
type flakyExchange struct {
	err   error
	calls int
}

func (f *flakyExchange) Ping(ctx context.Context) error { f.calls++; return f.err }
func (f *flakyExchange) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) (model.PriceSeries, error) {
	f.calls++
	return nil, f.err
}
func (f *flakyExchange) FetchBalance(ctx context.Context) (model.Balance, error) {
	f.calls++
	return nil, f.err
}
func (f *flakyExchange) CreateOrder(ctx context.Context, req model.OrderRequest) (model.OrderConfirmation, error) {
	f.calls++
	return model.OrderConfirmation{}, f.err
}

func TestGuard_OpensOnUnavailable(t *testing.T) {
	next := &flakyExchange{err: fmt.Errorf("%w: dial tcp: timeout", model.ErrExchangeUnavailable)}
	g := NewGuard(next, breaker.New("spot", 2, time.Minute))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := g.FetchBalance(ctx)
		require.ErrorIs(t, err, model.ErrExchangeUnavailable)
	}
	assert.Equal(t, breaker.StateOpen, g.Breaker().CurrentState())

	_, err := g.CreateOrder(ctx, model.OrderRequest{})
	assert.ErrorIs(t, err, model.ErrExchangeUnavailable)
	assert.ErrorIs(t, err, breaker.ErrOpen)
	assert.Equal(t, 2, next.calls, "open breaker must not reach the venue")

	_, err = g.FetchOHLCV(ctx, "BTC/USDT", "15m", 100)
	assert.ErrorIs(t, err, model.ErrDataUnavailable)
	assert.ErrorIs(t, err, model.ErrExchangeUnavailable)
	assert.Equal(t, "data_unavailable", model.Kind(err))

	assert.ErrorIs(t, g.Ping(ctx), breaker.ErrOpen)
}

func TestGuard_RejectionsDoNotTrip(t *testing.T) {
	next := &flakyExchange{err: fmt.Errorf("%w: insufficient balance", model.ErrOrderRejected)}
	g := NewGuard(next, breaker.New("spot", 1, time.Minute))

	for i := 0; i < 3; i++ {
		_, err := g.CreateOrder(context.Background(), model.OrderRequest{})
		require.ErrorIs(t, err, model.ErrOrderRejected)
	}
	assert.Equal(t, breaker.StateClosed, g.Breaker().CurrentState())
	assert.Equal(t, 3, next.calls)
}

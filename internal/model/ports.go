package model

import "context"

// ── Collaborator ports ──
// The decision engine only talks to venues, stores and sinks through these
// interfaces; concrete adapters live in internal/exchange and internal/store.

// MarketData fetches price history for a symbol.
type MarketData interface {
	// FetchOHLCV returns up to limit samples, most recent last.
	// Failures wrap ErrDataUnavailable.
	FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) (PriceSeries, error)
}

// OrderGateway places orders and reports balances.
type OrderGateway interface {
	// FetchBalance failures wrap ErrExchangeUnavailable.
	FetchBalance(ctx context.Context) (Balance, error)

	// CreateOrder submits a single MARKET order with both protective levels.
	// Failures wrap ErrExchangeUnavailable or ErrOrderRejected.
	CreateOrder(ctx context.Context, req OrderRequest) (OrderConfirmation, error)
}

// Exchange is the full capability one venue exposes.
type Exchange interface {
	MarketData
	OrderGateway

	// Ping checks connectivity for the startup self-check.
	Ping(ctx context.Context) error
}

// ActivityStore is the append-only activity log.
type ActivityStore interface {
	// Append writes exactly one record atomically.
	Append(ctx context.Context, rec ActivityRecord) error

	// Contents returns the whole log as newline-terminated human-readable lines.
	Contents(ctx context.Context) (string, error)

	// Close releases underlying resources.
	Close() error
}

// Package exchange adapts venue APIs to the model's market-data and order
// ports, and wraps them with paper trading and circuit breaking.
package exchange

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"binance-signalbot/internal/model"
	"binance-signalbot/pkg/binance"
)

// fallbackQtyPlaces floors protective quantities when the lot step is unknown.
const fallbackQtyPlaces = 6

// Binance implements model.Exchange for one Binance market.
type Binance struct {
	client *binance.Client
	venue  model.Venue
	log    zerolog.Logger

	mu    sync.Mutex
	steps map[string]decimal.Decimal // LOT_SIZE step by exchange symbol
}

// NewBinance wraps client for venue. The client's market must match the
// venue kind.
func NewBinance(client *binance.Client, venue model.Venue, log zerolog.Logger) (*Binance, error) {
	want := binance.Spot
	if venue.Kind == model.Leveraged {
		want = binance.Futures
	}
	if client.Market() != want {
		return nil, fmt.Errorf("exchange: %s venue needs a %s client, got %s", venue.Name(), want, client.Market())
	}
	return &Binance{
		client: client,
		venue:  venue,
		log:    log.With().Str("component", "exchange").Str("venue", venue.Name()).Logger(),
		steps:  make(map[string]decimal.Decimal),
	}, nil
}

// MarketSymbol converts "BTC/USDT" to "BTCUSDT".
func MarketSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "/", ""))
}

func (b *Binance) Ping(ctx context.Context) error {
	if err := b.client.Ping(ctx); err != nil {
		return venueError("ping", err)
	}
	return nil
}

func (b *Binance) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) (model.PriceSeries, error) {
	kl, err := b.client.Klines(ctx, MarketSymbol(symbol), timeframe, limit)
	if err != nil {
		return nil, marketDataError("klines", err)
	}
	series := make(model.PriceSeries, len(kl))
	for i, k := range kl {
		series[i] = model.Candle{
			TS:     k.OpenTime,
			Open:   k.Open,
			High:   k.High,
			Low:    k.Low,
			Close:  k.Close,
			Volume: k.Volume,
		}
	}
	if err := series.Validate(); err != nil {
		return nil, err
	}
	return series, nil
}

func (b *Binance) FetchBalance(ctx context.Context) (model.Balance, error) {
	raw, err := b.client.Balances(ctx)
	if err != nil {
		return nil, venueError("balance", err)
	}
	out := make(model.Balance, len(raw))
	for asset, bal := range raw {
		out[asset] = model.AssetBalance{Free: bal.Free, Locked: bal.Locked, Total: bal.Total}
	}
	return out, nil
}

// CreateOrder places a market entry with both protective legs. On spot the
// legs are an OCO on the closing side; on futures the leverage is set first
// and entry plus legs go out as one batch.
func (b *Binance) CreateOrder(ctx context.Context, req model.OrderRequest) (model.OrderConfirmation, error) {
	if req.Type != "" && req.Type != binance.TypeMarket {
		return model.OrderConfirmation{}, fmt.Errorf("%w: unsupported order type %q", model.ErrOrderRejected, req.Type)
	}
	if b.venue.Kind == model.Leveraged {
		return b.createFutures(ctx, req)
	}
	return b.createSpot(ctx, req)
}

func (b *Binance) createSpot(ctx context.Context, req model.OrderRequest) (model.OrderConfirmation, error) {
	symbol := MarketSymbol(req.Symbol)
	entry, err := b.client.PlaceOrder(ctx, binance.OrderParams{
		Symbol:        symbol,
		Side:          string(req.Side),
		Type:          binance.TypeMarket,
		Quantity:      req.Amount,
		ClientOrderID: req.ClientOrderID,
	})
	if err != nil {
		return model.OrderConfirmation{}, venueError("spot market order", err)
	}

	conf := model.OrderConfirmation{
		OrderID: strconv.FormatInt(entry.OrderID, 10),
		Status:  entry.Status,
	}

	base, _ := model.SplitSymbol(req.Symbol)
	qty := protectedQty(entry, req.Amount, strings.ToUpper(base), b.lotStep(ctx, symbol))
	if !qty.IsPositive() {
		b.log.Warn().Str("order_id", conf.OrderID).Str("qty", qty.String()).Msg("protective OCO not placed: nothing left after commission")
		return conf, nil
	}
	oco, err := b.client.PlaceOCO(ctx, binance.OCOParams{
		Symbol:            symbol,
		Side:              string(req.Side.Opposite()),
		Quantity:          qty.InexactFloat64(),
		Price:             req.TakeProfitPrice,
		StopPrice:         req.StopLossPrice,
		ListClientOrderID: req.ClientOrderID + "-oco",
	})
	if err != nil {
		// The entry is live; report it as placed without protection.
		b.log.Warn().Err(err).Str("order_id", conf.OrderID).Msg("protective OCO not placed")
		return conf, nil
	}
	conf.ProtectionAttached = true
	b.log.Debug().Int64("order_list_id", oco.OrderListID).Str("order_id", conf.OrderID).Msg("protective OCO placed")
	return conf, nil
}

// lotStep returns the cached LOT_SIZE step for symbol, fetching it on first
// use. A zero step means it is unknown.
func (b *Binance) lotStep(ctx context.Context, symbol string) decimal.Decimal {
	b.mu.Lock()
	step, ok := b.steps[symbol]
	b.mu.Unlock()
	if ok {
		return step
	}

	raw, err := b.client.LotStepSize(ctx, symbol)
	if err == nil {
		step, err = decimal.NewFromString(raw)
	}
	if err != nil || !step.IsPositive() {
		b.log.Warn().Err(err).Str("symbol", symbol).Msg("lot step unavailable, flooring to default precision")
		return decimal.Zero
	}
	b.mu.Lock()
	b.steps[symbol] = step
	b.mu.Unlock()
	return step
}

// protectedQty is the base quantity the entry actually left in the account:
// the executed quantity less any commission charged in the base asset,
// floored to step so the closing order passes the lot filter.
func protectedQty(entry *binance.OrderResponse, requested float64, base string, step decimal.Decimal) decimal.Decimal {
	qty := decimal.NewFromFloat(requested)
	if filled, err := decimal.NewFromString(entry.ExecutedQty); err == nil && filled.IsPositive() {
		qty = filled
	}
	for _, f := range entry.Fills {
		if !strings.EqualFold(f.CommissionAsset, base) {
			continue
		}
		if fee, err := decimal.NewFromString(f.Commission); err == nil {
			qty = qty.Sub(fee)
		}
	}
	if step.IsPositive() {
		return qty.Div(step).Floor().Mul(step)
	}
	return qty.Truncate(fallbackQtyPlaces)
}

func (b *Binance) createFutures(ctx context.Context, req model.OrderRequest) (model.OrderConfirmation, error) {
	symbol := MarketSymbol(req.Symbol)
	if req.Leverage > 0 {
		applied, err := b.client.ChangeLeverage(ctx, symbol, req.Leverage)
		if err != nil {
			return model.OrderConfirmation{}, venueError("set leverage", err)
		}
		if applied != req.Leverage {
			b.log.Warn().Int("requested", req.Leverage).Int("applied", applied).Msg("leverage adjusted by venue")
		}
	}

	closing := string(req.Side.Opposite())
	legs := []binance.OrderParams{
		{Symbol: symbol, Side: string(req.Side), Type: binance.TypeMarket, Quantity: req.Amount, ClientOrderID: req.ClientOrderID},
		{Symbol: symbol, Side: closing, Type: binance.TypeStopMarket, StopPrice: req.StopLossPrice, ClosePosition: true, WorkingType: "MARK_PRICE"},
		{Symbol: symbol, Side: closing, Type: binance.TypeTakeProfitMarket, StopPrice: req.TakeProfitPrice, ClosePosition: true, WorkingType: "MARK_PRICE"},
	}
	res, err := b.client.PlaceBatchOrders(ctx, legs)
	if err != nil {
		return model.OrderConfirmation{}, venueError("futures batch order", err)
	}
	if len(res) == 0 {
		return model.OrderConfirmation{}, fmt.Errorf("%w: empty batch answer", model.ErrOrderRejected)
	}
	if res[0].Err != nil {
		return model.OrderConfirmation{}, venueError("futures market order", res[0].Err)
	}

	conf := model.OrderConfirmation{
		OrderID:            strconv.FormatInt(res[0].Order.OrderID, 10),
		Status:             res[0].Order.Status,
		ProtectionAttached: len(res) == len(legs),
	}
	for i, r := range res[1:] {
		if r.Err != nil {
			conf.ProtectionAttached = false
			b.log.Warn().Err(r.Err).Str("leg", legs[i+1].Type).Str("order_id", conf.OrderID).Msg("protective leg rejected")
		}
	}
	return conf, nil
}

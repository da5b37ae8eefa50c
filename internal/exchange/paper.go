package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"binance-signalbot/internal/model"
	"binance-signalbot/internal/portfolio"
)

// Fill represents a simulated order fill.
type Fill struct {
	OrderID    string     `json:"order_id"`
	Symbol     string     `json:"symbol"`
	Side       model.Side `json:"side"`
	Qty        float64    `json:"qty"`
	FillPrice  float64    `json:"fill_price"`
	Slippage   float64    `json:"slippage"`
	Margin     float64    `json:"margin"` // quote funds committed
	StopLoss   float64    `json:"stop_loss"`
	TakeProfit float64    `json:"take_profit"`
	FilledAt   time.Time  `json:"filled_at"`
	Settled    bool       `json:"settled"`
}

// PaperExchange trades against a simulated quote balance while reading real
// market data from the wrapped feed. Useful for dry runs.
type PaperExchange struct {
	feed  model.MarketData
	venue model.Venue
	quote string
	log   zerolog.Logger

	mu        sync.Mutex
	free      float64
	locked    float64
	lastPrice map[string]float64
	fills     []Fill
	orderSeq  int64

	// Simulation parameters
	slippageBps float64 // basis points of slippage (e.g., 5 = 0.05%)
	now         func() time.Time
	brackets    *portfolio.Book // nil unless TrackBrackets was called
}

// NewPaperExchange creates a paper venue holding startBalance of quote.
func NewPaperExchange(feed model.MarketData, venue model.Venue, quote string, startBalance, slippageBps float64, log zerolog.Logger) *PaperExchange {
	return &PaperExchange{
		feed:        feed,
		venue:       venue,
		quote:       quote,
		log:         log.With().Str("component", "paper").Str("venue", venue.Name()).Logger(),
		free:        startBalance,
		lastPrice:   make(map[string]float64),
		fills:       make([]Fill, 0, 64),
		slippageBps: slippageBps,
		now:         time.Now,
	}
}

// Ping reports the feed's reachability when it can tell.
func (p *PaperExchange) Ping(ctx context.Context) error {
	if pinger, ok := p.feed.(interface{ Ping(context.Context) error }); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

// FetchOHLCV reads from the live feed and remembers the last close per symbol
// as the simulated fill price. With bracket tracking on, every candle in the
// window is also checked against open stop-loss and take-profit levels.
func (p *PaperExchange) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) (model.PriceSeries, error) {
	series, err := p.feed.FetchOHLCV(ctx, symbol, timeframe, limit)
	if err != nil {
		return nil, err
	}
	if len(series) > 0 {
		p.mu.Lock()
		p.lastPrice[symbol] = series.Last().Close
		if p.brackets != nil {
			for _, c := range series {
				for _, e := range p.brackets.Mark(symbol, c) {
					if _, err := p.settleLocked(e.OrderID, e.Price); err != nil {
						p.log.Warn().Err(err).Str("order_id", e.OrderID).Msg("bracket settle failed")
						continue
					}
					p.log.Info().Str("order_id", e.OrderID).Str("reason", e.Reason).Time("candle", c.TS).Msg("paper bracket hit")
				}
			}
		}
		p.mu.Unlock()
	}
	return series, nil
}

// TrackBrackets makes the venue act as its own protective orders: a position
// is settled at its stop-loss or take-profit once a candle opened after the
// fill trades through the level. Replays that settle through their own Book
// leave it off.
func (p *PaperExchange) TrackBrackets() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.brackets == nil {
		p.brackets = portfolio.New()
	}
}

// OpenPositions lists the fills bracket tracking still holds open.
func (p *PaperExchange) OpenPositions() []model.Position {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.brackets == nil {
		return nil
	}
	return p.brackets.Positions()
}

func (p *PaperExchange) FetchBalance(ctx context.Context) (model.Balance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return model.Balance{
		p.quote: {Free: p.free, Locked: p.locked, Total: p.free + p.locked},
	}, nil
}

// CreateOrder fills immediately at the last seen close plus slippage and
// moves the margin (notional / leverage) from free to locked funds.
func (p *PaperExchange) CreateOrder(ctx context.Context, req model.OrderRequest) (model.OrderConfirmation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	price, ok := p.lastPrice[req.Symbol]
	if !ok || price <= 0 {
		return model.OrderConfirmation{}, fmt.Errorf("%w: paper: no price seen for %s", model.ErrOrderRejected, req.Symbol)
	}
	if req.Amount <= 0 {
		return model.OrderConfirmation{}, fmt.Errorf("%w: paper: quantity %v", model.ErrOrderRejected, req.Amount)
	}

	slippage := price * p.slippageBps / 10000
	fillPrice := price
	if req.Side == model.SideBuy {
		fillPrice += slippage // buy higher
	} else {
		fillPrice -= slippage // sell lower
	}

	lev := 1
	if req.Leverage > 0 {
		lev = req.Leverage
	}
	margin := req.Amount * fillPrice / float64(lev)
	if margin > p.free {
		return model.OrderConfirmation{}, fmt.Errorf("%w: paper: insufficient balance (need %.2f %s, free %.2f)",
			model.ErrOrderRejected, margin, p.quote, p.free)
	}

	p.orderSeq++
	orderID := fmt.Sprintf("PAPER-%d", p.orderSeq)
	p.free -= margin
	p.locked += margin
	p.fills = append(p.fills, Fill{
		OrderID:    orderID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Qty:        req.Amount,
		FillPrice:  fillPrice,
		Slippage:   slippage,
		Margin:     margin,
		StopLoss:   req.StopLossPrice,
		TakeProfit: req.TakeProfitPrice,
		FilledAt:   p.now(),
	})

	if p.brackets != nil {
		p.brackets.Open(model.Position{
			OrderID:    orderID,
			Venue:      p.venue.Name(),
			Symbol:     req.Symbol,
			Side:       req.Side,
			Qty:        req.Amount,
			Entry:      fillPrice,
			StopLoss:   req.StopLossPrice,
			TakeProfit: req.TakeProfitPrice,
			OpenedAt:   p.now(),
		})
	}

	p.log.Info().
		Str("order_id", orderID).
		Str("side", string(req.Side)).
		Str("symbol", req.Symbol).
		Float64("qty", req.Amount).
		Float64("price", fillPrice).
		Float64("slip", slippage).
		Float64("sl", req.StopLossPrice).
		Float64("tp", req.TakeProfitPrice).
		Msg("paper fill")

	return model.OrderConfirmation{OrderID: orderID, Status: "FILLED", ProtectionAttached: true}, nil
}

// SetClock replaces the fill timestamp source. Replays use candle time.
func (p *PaperExchange) SetClock(now func() time.Time) {
	p.mu.Lock()
	p.now = now
	p.mu.Unlock()
}

// Settle closes the position opened by orderID at exit, releasing its margin
// and crediting the realized P&L to free funds.
func (p *PaperExchange) Settle(orderID string, exit float64) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settleLocked(orderID, exit)
}

func (p *PaperExchange) settleLocked(orderID string, exit float64) (float64, error) {
	for i := range p.fills {
		f := &p.fills[i]
		if f.OrderID != orderID {
			continue
		}
		if f.Settled {
			return 0, fmt.Errorf("paper: order %s already settled", orderID)
		}
		pnl := (exit - f.FillPrice) * f.Qty
		if f.Side == model.SideSell {
			pnl = -pnl
		}
		f.Settled = true
		p.locked -= f.Margin
		p.free += f.Margin + pnl
		if p.free < 0 {
			p.free = 0 // liquidated
		}
		p.log.Info().
			Str("order_id", orderID).
			Float64("exit", exit).
			Float64("pnl", pnl).
			Msg("paper settle")
		return pnl, nil
	}
	return 0, fmt.Errorf("paper: unknown order %s", orderID)
}

// Fills returns a snapshot of all fills.
func (p *PaperExchange) Fills() []Fill {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]Fill, len(p.fills))
	copy(cp, p.fills)
	return cp
}

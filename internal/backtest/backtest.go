package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"binance-signalbot/internal/exchange"
	"binance-signalbot/internal/execution"
	"binance-signalbot/internal/model"
	"binance-signalbot/internal/notification"
	"binance-signalbot/internal/portfolio"
	"binance-signalbot/internal/risk"
	"binance-signalbot/internal/scheduler"
	"binance-signalbot/internal/strategy"
)

// Config describes one replay.
type Config struct {
	Venue          model.Venue
	Symbol         string
	Timeframe      string
	HistoryLimit   int
	MomentumPeriod int
	TrendPeriod    int

	Strategy strategy.Strategy
	Sizer    risk.Sizer
	Basis    risk.CapitalBasis

	StartBalance float64 // quote units
	SlippageBps  float64
	Speed        float64 // 0 = as fast as possible
}

// Report summarizes a finished replay.
type Report struct {
	Venue       string                 `json:"venue"`
	Symbol      string                 `json:"symbol"`
	Timeframe   string                 `json:"timeframe"`
	From        time.Time              `json:"from"`
	To          time.Time              `json:"to"`
	Candles     int                    `json:"candles"`
	Evaluations int                    `json:"evaluations"`
	Signals     map[string]int         `json:"signals"`
	Outcomes    map[string]int         `json:"outcomes"`
	Failures    map[string]int         `json:"failures"`
	Alerts      int                    `json:"alerts"`
	PnL         portfolio.PnLSummary   `json:"pnl"`
	Equity      portfolio.EquityStatus `json:"equity"`
	Exits       []portfolio.Exit       `json:"exits"`
}

// Run replays series through the evaluation pipeline. Orders fill on a paper
// venue at each candle's close and stay open until a later candle trades
// through their stop-loss or take-profit. Positions still open at the end
// are closed at the last close. Activity records go to activity.
func Run(ctx context.Context, series model.PriceSeries, cfg Config, activity model.ActivityStore, log zerolog.Logger) (Report, error) {
	log = log.With().Str("component", "backtest").Str("venue", cfg.Venue.Name()).Logger()

	need := cfg.MomentumPeriod
	if cfg.TrendPeriod > need {
		need = cfg.TrendPeriod
	}
	feed := NewFeed(series)
	if feed.Len() < need || need < 1 {
		return Report{}, fmt.Errorf("%w: %d archived candles, need %d", model.ErrInsufficientHistory, feed.Len(), need)
	}

	_, quote := model.SplitSymbol(cfg.Symbol)
	paper := exchange.NewPaperExchange(feed, cfg.Venue, quote, cfg.StartBalance, cfg.SlippageBps, log)

	rep := Report{
		Venue:     cfg.Venue.Name(),
		Symbol:    cfg.Symbol,
		Timeframe: cfg.Timeframe,
		Signals:   make(map[string]int),
		Outcomes:  make(map[string]int),
		Failures:  make(map[string]int),
	}
	notify := notification.PublisherFunc(func(a notification.Alert) {
		rep.Alerts++
		log.Debug().Str("title", a.Title).Msg(a.Message)
	})

	var clock time.Time
	now := func() time.Time { return clock }
	paper.SetClock(now)
	disp := execution.NewDispatcher(paper, activity, notify, log)
	disp.SetClock(now)
	disp.OnOutcome = func(_ string, _ model.Side, outcome string) { rep.Outcomes[outcome]++ }

	pipe := &scheduler.Pipeline{
		Venue:          cfg.Venue,
		Symbol:         cfg.Symbol,
		Timeframe:      cfg.Timeframe,
		HistoryLimit:   cfg.HistoryLimit,
		MomentumPeriod: cfg.MomentumPeriod,
		TrendPeriod:    cfg.TrendPeriod,
		Exchange:       paper,
		Strategy:       cfg.Strategy,
		Sizer:          cfg.Sizer,
		Basis:          cfg.Basis,
		Submitter:      disp,
		Notify:         notify,
		Log:            log,
	}

	book := portfolio.New()
	pnl := portfolio.NewPnLTracker()
	equity := portfolio.NewEquityCurve(cfg.StartBalance)
	settle := func(exits []portfolio.Exit) {
		for _, e := range exits {
			if _, err := paper.Settle(e.OrderID, e.Price); err != nil {
				log.Warn().Err(err).Str("order_id", e.OrderID).Msg("settle failed")
			}
			equity.RecordPnL(pnl.RecordExit(e))
		}
	}

	var last model.Candle
	err := NewReplayer(feed, cfg.Speed).Run(ctx, need-1, func(i int, c model.Candle) error {
		clock = c.TS
		last = c
		if rep.From.IsZero() {
			rep.From = c.TS
		}
		rep.Candles++

		settle(book.Mark(cfg.Symbol, c))

		res := pipe.Run(ctx)
		rep.Evaluations++
		if res.Err != nil {
			rep.Failures[model.Kind(res.Err)]++
		}
		if res.Err == nil || res.Record != nil {
			rep.Signals[res.Signal.String()]++
		}
		if res.Record == nil || res.Record.Outcome != model.OutcomeSubmitted {
			return nil
		}
		for _, f := range paper.Fills() {
			if f.OrderID != res.Record.OrderID {
				continue
			}
			book.Open(model.Position{
				OrderID:    f.OrderID,
				Venue:      cfg.Venue.Name(),
				Symbol:     cfg.Symbol,
				Side:       f.Side,
				Qty:        f.Qty,
				Entry:      f.FillPrice,
				StopLoss:   f.StopLoss,
				TakeProfit: f.TakeProfit,
				OpenedAt:   f.FilledAt,
			})
		}
		return nil
	})
	if err != nil {
		return rep, err
	}

	settle(book.CloseAll(cfg.Symbol, last.Close, last.TS))
	rep.To = last.TS
	rep.PnL = pnl.Summary(book, map[string]float64{cfg.Symbol: last.Close})
	rep.Equity = equity.Status()
	rep.Exits = pnl.Exits()

	log.Info().
		Int("candles", rep.Candles).
		Int("trades", rep.PnL.ClosedTrades).
		Float64("pnl", rep.PnL.RealizedPnL).
		Float64("max_drawdown_pct", rep.Equity.MaxDrawdownPct).
		Msg("backtest complete")
	return rep, nil
}

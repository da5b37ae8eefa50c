package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"binance-signalbot/internal/indicator"
	"binance-signalbot/internal/logger"
	"binance-signalbot/internal/model"
	"binance-signalbot/internal/notification"
	"binance-signalbot/internal/risk"
	"binance-signalbot/internal/strategy"
)

// Submitter places a sized order. Implemented by execution.Dispatcher.
type Submitter interface {
	Submit(ctx context.Context, intent model.OrderIntent) (model.ActivityRecord, error)
}

// CandleArchive keeps fetched windows for later inspection. Optional.
type CandleArchive interface {
	SaveCandles(ctx context.Context, venue, symbol, timeframe string, series model.PriceSeries) error
}

// Pipeline runs one venue's evaluation: fetch, indicators, signal, size, submit.
type Pipeline struct {
	Venue          model.Venue
	Symbol         string // unified, e.g. "BTC/USDT"
	Timeframe      string // e.g. "15m"
	HistoryLimit   int
	MomentumPeriod int
	TrendPeriod    int
	CallTimeout    time.Duration // per exchange call

	Exchange  model.Exchange
	Strategy  strategy.Strategy
	Sizer     risk.Sizer
	Basis     risk.CapitalBasis
	Submitter Submitter
	Archive   CandleArchive
	Notify    notification.Publisher
	Log       zerolog.Logger
}

// Result summarizes one pipeline run.
type Result struct {
	Signal   model.Signal
	Snapshot indicator.Snapshot
	Record   *model.ActivityRecord // nil unless a record was appended
	Err      error
}

// Label is the cycles_total result label.
func (r Result) Label() string {
	switch {
	case r.Err != nil:
		return model.Kind(r.Err)
	case r.Signal == model.Hold:
		return "hold"
	default:
		return "ok"
	}
}

// Run evaluates the venue once. Failures before submission are notified
// here; submission failures are notified by the Submitter.
func (p *Pipeline) Run(ctx context.Context) Result {
	log := logger.Ctx(ctx, p.Log).With().Str("venue", p.Venue.Name()).Str("symbol", p.Symbol).Logger()

	series, err := p.fetch(ctx)
	if err != nil {
		return p.fail(log, "Market data unavailable", err)
	}
	if p.Archive != nil {
		if err := p.Archive.SaveCandles(ctx, p.Venue.Name(), p.Symbol, p.Timeframe, series); err != nil {
			log.Warn().Err(err).Msg("candle archive write failed")
		}
	}

	snap, err := indicator.Compute(series, p.MomentumPeriod, p.TrendPeriod)
	if err != nil {
		return p.fail(log, "Indicators not computed", err)
	}

	sig := p.Strategy.Evaluate(snap)
	log.Info().
		Float64("rsi", snap.Momentum).
		Float64("sma", snap.Trend).
		Float64("price", snap.Price).
		Str("signal", sig.String()).
		Msg("evaluated")
	res := Result{Signal: sig, Snapshot: snap}
	if !sig.Actionable() {
		return res
	}
	log.Info().Msg(strategy.Reason(snap, sig))

	bal, err := p.balance(ctx)
	if err != nil {
		res.Err = err
		p.notifyFailure(log, "Balance unavailable", err)
		return res
	}
	_, quote := model.SplitSymbol(p.Symbol)
	capital := p.Basis.Capital(bal, quote)

	intent, err := p.Sizer.Size(p.Venue, p.Symbol, sig, snap.Price, capital)
	if err != nil {
		res.Err = err
		p.notifyFailure(log, "Order not sized", err)
		return res
	}

	rec, err := p.Submitter.Submit(ctx, intent)
	if rec.Outcome != "" {
		res.Record = &rec
	}
	res.Err = err
	return res
}

func (p *Pipeline) fetch(ctx context.Context) (model.PriceSeries, error) {
	ctx, cancel := p.callContext(ctx)
	defer cancel()
	return p.Exchange.FetchOHLCV(ctx, p.Symbol, p.Timeframe, p.HistoryLimit)
}

func (p *Pipeline) balance(ctx context.Context) (model.Balance, error) {
	ctx, cancel := p.callContext(ctx)
	defer cancel()
	bal, err := p.Exchange.FetchBalance(ctx)
	if err != nil && !errors.Is(err, model.ErrExchangeUnavailable) {
		err = fmt.Errorf("%w: balance: %v", model.ErrExchangeUnavailable, err)
	}
	return bal, err
}

func (p *Pipeline) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.CallTimeout)
}

func (p *Pipeline) fail(log zerolog.Logger, title string, err error) Result {
	p.notifyFailure(log, title, err)
	return Result{Err: err}
}

func (p *Pipeline) notifyFailure(log zerolog.Logger, title string, err error) {
	log.Error().Err(err).Str("kind", model.Kind(err)).Msg(title)
	p.Notify.Publish(notification.Alert{
		Level:    notification.AlertWarning,
		Title:    fmt.Sprintf("%s %s", p.Venue.Tag(), title),
		Message:  err.Error(),
		Venue:    p.Venue.Name(),
		Kind:     model.Kind(err),
		Audience: notification.AudiencePush,
	})
}

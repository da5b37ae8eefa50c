// Package execution submits sized orders to a venue and records the outcome.
//
// The Dispatcher is the only component that places orders. Each Submit call
// makes exactly one attempt, appends at most one activity record and
// publishes exactly one notification, whatever the outcome.
package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"binance-signalbot/internal/logger"
	"binance-signalbot/internal/model"
	"binance-signalbot/internal/notification"
)

const marketOrder = "MARKET"

// Dispatcher places orders for one venue.
type Dispatcher struct {
	gateway model.OrderGateway
	store   model.ActivityStore
	notify  notification.Publisher
	log     zerolog.Logger

	now   func() time.Time
	newID func() string

	// OnOutcome is called once per Submit with the outcome label
	// ("submitted", "rejected", "invalid" or "unavailable").
	OnOutcome func(venue string, side model.Side, outcome string)
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(gw model.OrderGateway, store model.ActivityStore, notify notification.Publisher, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		gateway: gw,
		store:   store,
		notify:  notify,
		log:     log.With().Str("component", "dispatcher").Logger(),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// SetClock replaces the record timestamp source.
func (d *Dispatcher) SetClock(now func() time.Time) { d.now = now }

// Submit validates intent, places it and records the result.
//
// Invalid intents and venue rejections are terminal: they are recorded and
// their error returned alongside the record. An unreachable venue yields no
// record and an error wrapping model.ErrExchangeUnavailable; the next
// scheduled evaluation is the only retry.
func (d *Dispatcher) Submit(ctx context.Context, intent model.OrderIntent) (model.ActivityRecord, error) {
	if intent.ClientOrderID == "" {
		intent.ClientOrderID = d.newID()
	}
	log := logger.Ctx(ctx, d.log).With().
		Str("venue", intent.Venue.Name()).
		Str("symbol", intent.Symbol).
		Str("side", string(intent.Side)).
		Str("client_order_id", intent.ClientOrderID).
		Logger()

	if err := intent.Validate(); err != nil {
		rec := model.NewActivityRecord(d.now(), intent, model.OutcomeInvalid)
		rec.Detail = err.Error()
		log.Warn().Err(err).Msg("order intent invalid")
		storeErr := d.record(ctx, log, rec)
		d.publish(notification.AlertWarning, "Order not placed", intent, err, storeErr)
		d.outcome(intent, string(model.OutcomeInvalid))
		return rec, err
	}

	req := model.OrderRequest{
		Symbol:          intent.Symbol,
		Side:            intent.Side,
		Type:            marketOrder,
		Amount:          intent.Quantity,
		StopLossPrice:   intent.StopLossPrice,
		TakeProfitPrice: intent.TakeProfitPrice,
		ClientOrderID:   intent.ClientOrderID,
	}
	if intent.Venue.SetsLeverage() {
		req.Leverage = intent.Venue.Leverage
	}

	start := d.now()
	conf, err := d.gateway.CreateOrder(ctx, req)
	if err != nil {
		if !errors.Is(err, model.ErrOrderRejected) {
			if !errors.Is(err, model.ErrExchangeUnavailable) {
				err = fmt.Errorf("%w: %v", model.ErrExchangeUnavailable, err)
			}
			log.Error().Err(err).Msg("exchange unavailable, order not placed")
			d.publish(notification.AlertCritical, "Exchange unavailable", intent, err, nil)
			d.outcome(intent, "unavailable")
			return model.ActivityRecord{}, err
		}
		rec := model.NewActivityRecord(d.now(), intent, model.OutcomeRejected)
		rec.Detail = err.Error()
		log.Warn().Err(err).Msg("order rejected")
		storeErr := d.record(ctx, log, rec)
		d.publish(notification.AlertWarning, "Order rejected", intent, err, storeErr)
		d.outcome(intent, string(model.OutcomeRejected))
		return rec, err
	}

	rec := model.NewActivityRecord(d.now(), intent, model.OutcomeSubmitted)
	rec.OrderID = conf.OrderID
	if !conf.ProtectionAttached {
		rec.Detail = "protection not attached"
	}
	log.Info().
		Str("order_id", conf.OrderID).
		Str("status", conf.Status).
		Bool("protected", conf.ProtectionAttached).
		Dur("latency", d.now().Sub(start)).
		Msg("order submitted")
	storeErr := d.record(ctx, log, rec)
	d.publishTrade(intent, rec, storeErr)
	d.outcome(intent, string(model.OutcomeSubmitted))
	return rec, nil
}

// record appends rec. Failures are logged and returned for the notification
// but never change the order outcome.
func (d *Dispatcher) record(ctx context.Context, log zerolog.Logger, rec model.ActivityRecord) error {
	if err := d.store.Append(ctx, rec); err != nil {
		log.Error().Err(err).Str("record", rec.String()).Msg("activity log append failed")
		return err
	}
	return nil
}

func (d *Dispatcher) publish(level notification.AlertLevel, title string, intent model.OrderIntent, cause, storeErr error) {
	msg := fmt.Sprintf("%s\n%s", intent.Message(), cause)
	if storeErr != nil {
		msg += fmt.Sprintf("\nactivity log write failed: %v", storeErr)
	}
	d.notify.Publish(notification.Alert{
		Level:    level,
		Title:    fmt.Sprintf("%s %s", intent.Venue.Tag(), title),
		Message:  msg,
		Venue:    intent.Venue.Name(),
		Kind:     model.Kind(cause),
		Audience: notification.AudiencePush,
		At:       d.now().UTC(),
	})
}

func (d *Dispatcher) publishTrade(intent model.OrderIntent, rec model.ActivityRecord, storeErr error) {
	level := notification.AlertInfo
	msg := intent.Message()
	if rec.Detail != "" {
		level = notification.AlertWarning
		msg += "\n" + rec.Detail
	}
	if storeErr != nil {
		level = notification.AlertWarning
		msg += fmt.Sprintf("\nactivity log write failed: %v", storeErr)
	}
	d.notify.Publish(notification.Alert{
		Level:    level,
		Title:    fmt.Sprintf("%s %s order placed", intent.Venue.Tag(), intent.Side),
		Message:  msg,
		Venue:    intent.Venue.Name(),
		Audience: notification.AudiencePush,
		At:       rec.Timestamp,
	})
}

func (d *Dispatcher) outcome(intent model.OrderIntent, outcome string) {
	if d.OnOutcome != nil {
		d.OnOutcome(intent.Venue.Name(), intent.Side, outcome)
	}
}

// Package scheduler drives the periodic evaluation and reporting loop.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"binance-signalbot/internal/logger"
	"binance-signalbot/internal/model"
	"binance-signalbot/internal/notification"
)

const (
	ReportSubject  = "Binance Trading Bot Report"
	ReportSentNote = "📈 Binance Bot Report Sent"
	emptyReport    = "No trading activity recorded yet."
)

// ScheduleState tracks when each periodic task last ran. A zero time means
// the task is due immediately.
type ScheduleState struct {
	LastEvaluation time.Time
	LastReport     time.Time
}

// Config holds the loop timing.
type Config struct {
	EvaluationInterval time.Duration
	ReportInterval     time.Duration
	PollInterval       time.Duration
	PingTimeout        time.Duration
	Mode               string // mainnet, testnet or paper
}

// Hooks are optional observers, used for metrics and health.
type Hooks struct {
	OnCycle      func(venue, result string, d time.Duration)
	OnSignal     func(venue string, sig model.Signal)
	OnEvaluation func(at time.Time)
	OnReport     func(result string, at time.Time)
	OnReachable  func(venue string, ok bool)
}

// Controller owns the schedule and runs pipelines in venue order. All of
// its methods run on the single control goroutine.
type Controller struct {
	cfg       Config
	pipelines []*Pipeline
	store     model.ActivityStore
	notify    notification.Publisher
	hooks     Hooks
	log       zerolog.Logger

	state ScheduleState
	now   func() time.Time
}

// NewController creates a controller. Pipelines run in the given order.
func NewController(cfg Config, pipelines []*Pipeline, store model.ActivityStore, notify notification.Publisher, hooks Hooks, log zerolog.Logger) *Controller {
	if cfg.EvaluationInterval <= 0 {
		cfg.EvaluationInterval = 15 * time.Minute
	}
	if cfg.ReportInterval <= 0 {
		cfg.ReportInterval = 12 * time.Hour
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 10 * time.Second
	}
	return &Controller{
		cfg:       cfg,
		pipelines: pipelines,
		store:     store,
		notify:    notify,
		hooks:     hooks,
		log:       log.With().Str("component", "scheduler").Logger(),
		now:       time.Now,
	}
}

// State returns a copy of the schedule state.
func (c *Controller) State() ScheduleState { return c.state }

// Run sends the startup self-check and report, then polls until ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	c.Start(ctx)

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			c.Tick(ctx, c.now())
		}
	}
}

// Start runs the connectivity self-check and one reporting pass.
func (c *Controller) Start(ctx context.Context) {
	c.SelfCheck(ctx)
	c.Report(ctx)
}

// Tick runs whichever tasks are due at now. Tasks run to completion.
func (c *Controller) Tick(ctx context.Context, now time.Time) {
	if c.state.LastEvaluation.IsZero() || now.Sub(c.state.LastEvaluation) >= c.cfg.EvaluationInterval {
		c.Evaluate(ctx, now)
	}
	if ctx.Err() != nil {
		return
	}
	if c.state.LastReport.IsZero() || now.Sub(c.state.LastReport) >= c.cfg.ReportInterval {
		c.Report(ctx)
	}
}

// Evaluate runs every pipeline once. A failing venue never affects the next.
func (c *Controller) Evaluate(ctx context.Context, now time.Time) {
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID("cycle", now))
	log := logger.Ctx(ctx, c.log)
	log.Debug().Int("venues", len(c.pipelines)).Msg("evaluation cycle")

	for _, p := range c.pipelines {
		if ctx.Err() != nil {
			return
		}
		start := c.now()
		res := p.Run(ctx)
		venue := p.Venue.Name()
		if c.hooks.OnCycle != nil {
			c.hooks.OnCycle(venue, res.Label(), c.now().Sub(start))
		}
		if c.hooks.OnSignal != nil && res.Err == nil {
			c.hooks.OnSignal(venue, res.Signal)
		}
		if c.hooks.OnReachable != nil {
			c.hooks.OnReachable(venue, !isUnreachable(res.Err))
		}
	}

	c.state.LastEvaluation = now
	if c.hooks.OnEvaluation != nil {
		c.hooks.OnEvaluation(now)
	}
}

// Report sends the activity log by email and a short push note. Failures
// are logged and notified, never returned.
func (c *Controller) Report(ctx context.Context) {
	at := c.now()
	c.state.LastReport = at

	content, err := c.store.Contents(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("reading activity log for report failed")
		c.notify.Publish(notification.Alert{
			Level:    notification.AlertWarning,
			Title:    "Report failed",
			Message:  err.Error(),
			Audience: notification.AudiencePush,
		})
		c.reported("error", at)
		return
	}
	if strings.TrimSpace(content) == "" {
		content = emptyReport
	}

	c.notify.Publish(notification.Alert{
		Level:    notification.AlertInfo,
		Title:    ReportSubject,
		Message:  content,
		Audience: notification.AudienceEmail,
	})
	c.notify.Publish(notification.Alert{
		Level:    notification.AlertInfo,
		Title:    ReportSentNote,
		Audience: notification.AudiencePush,
	})
	c.log.Info().Int("bytes", len(content)).Msg("report sent")
	c.reported("ok", at)
}

func (c *Controller) reported(result string, at time.Time) {
	if c.hooks.OnReport != nil {
		c.hooks.OnReport(result, at)
	}
}

// SelfCheck pings every venue and publishes one "alive" note with the
// trading mode and per-venue reachability.
func (c *Controller) SelfCheck(ctx context.Context) {
	var b strings.Builder
	fmt.Fprintf(&b, "Mode: %s", strings.ToUpper(c.cfg.Mode))
	level := notification.AlertInfo
	for _, p := range c.pipelines {
		pctx, cancel := context.WithTimeout(ctx, c.cfg.PingTimeout)
		err := p.Exchange.Ping(pctx)
		cancel()

		venue := p.Venue.Name()
		if c.hooks.OnReachable != nil {
			c.hooks.OnReachable(venue, err == nil)
		}
		if err != nil {
			level = notification.AlertWarning
			c.log.Warn().Err(err).Str("venue", venue).Msg("venue unreachable at startup")
			fmt.Fprintf(&b, "\n%s %s unreachable: %v", p.Venue.Tag(), p.Symbol, err)
			continue
		}
		fmt.Fprintf(&b, "\n%s %s reachable", p.Venue.Tag(), p.Symbol)
	}

	c.notify.Publish(notification.Alert{
		Level:    level,
		Title:    "✅ Binance bot is alive",
		Message:  b.String(),
		Audience: notification.AudiencePush,
	})
	c.log.Info().Str("mode", c.cfg.Mode).Msg("startup self-check sent")
}

// isUnreachable also matches data failures caused by an unreachable venue,
// which wrap both sentinels.
func isUnreachable(err error) bool {
	return errors.Is(err, model.ErrExchangeUnavailable)
}

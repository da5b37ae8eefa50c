package notification

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Route binds a sink to the audience it serves.
type Route struct {
	Name     string
	Audience Audience // AudienceAll receives every alert
	Notifier Notifier
}

func (r Route) accepts(a Audience) bool {
	return r.Audience == AudienceAll || a == AudienceAll || r.Audience == a
}

// Fanout is the asynchronous Publisher: a bounded queue drained by one
// worker that delivers each alert to every matching route. Sink errors are
// logged and discarded; a full queue drops the alert.
type Fanout struct {
	routes      []Route
	queue       chan Alert
	sendTimeout time.Duration
	log         zerolog.Logger

	// Metrics hooks (optional)
	OnResult func(sink string, err error)
	OnDrop   func()

	closeOnce sync.Once
	done      chan struct{}
	now       func() time.Time
}

// NewFanout starts the delivery worker.
func NewFanout(routes []Route, queueSize int, sendTimeout time.Duration, log zerolog.Logger) *Fanout {
	if queueSize <= 0 {
		queueSize = 64
	}
	if sendTimeout <= 0 {
		sendTimeout = 15 * time.Second
	}
	f := &Fanout{
		routes:      routes,
		queue:       make(chan Alert, queueSize),
		sendTimeout: sendTimeout,
		log:         log.With().Str("component", "notify").Logger(),
		done:        make(chan struct{}),
		now:         time.Now,
	}
	go f.run()
	return f
}

// Publish enqueues alert without blocking.
func (f *Fanout) Publish(alert Alert) {
	if alert.At.IsZero() {
		alert.At = f.now().UTC()
	}
	defer func() {
		// Publish after Close must not panic the caller.
		if recover() != nil {
			f.log.Warn().Str("title", alert.Title).Msg("notifier closed, alert dropped")
		}
	}()
	select {
	case f.queue <- alert:
	default:
		f.log.Warn().Str("title", alert.Title).Msg("notification queue full, alert dropped")
		if f.OnDrop != nil {
			f.OnDrop()
		}
	}
}

func (f *Fanout) run() {
	defer close(f.done)
	for alert := range f.queue {
		f.deliver(alert)
	}
}

func (f *Fanout) deliver(alert Alert) {
	for _, r := range f.routes {
		if !r.accepts(alert.Audience) {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), f.sendTimeout)
		err := r.Notifier.Send(ctx, alert)
		cancel()
		if err != nil {
			f.log.Error().Err(err).Str("sink", r.Name).Str("title", alert.Title).Msg("notification failed")
		}
		if f.OnResult != nil {
			f.OnResult(r.Name, err)
		}
	}
}

// Close stops accepting alerts and waits for queued ones to be delivered,
// up to ctx's deadline.
func (f *Fanout) Close(ctx context.Context) error {
	f.closeOnce.Do(func() { close(f.queue) })
	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

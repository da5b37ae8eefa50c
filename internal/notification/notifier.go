// Package notification provides alert delivery to external channels
// (Telegram, email, webhooks, websocket clients) for trading events.
//
// Delivery is best-effort: callers hand alerts to a Publisher, which queues
// them and never reports sink failures back.
package notification

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Audience selects which channel class an alert is meant for.
type Audience int

const (
	AudiencePush  Audience = iota // short messages: Telegram, webhook, websocket
	AudienceEmail                 // long-form: the periodic report
	AudienceAll
)

// Alert represents a notification to be sent.
type Alert struct {
	Level    AlertLevel `json:"level"`
	Title    string     `json:"title"`
	Message  string     `json:"message"`
	Venue    string     `json:"venue,omitempty"`
	Kind     string     `json:"kind,omitempty"` // failure kind, e.g. "data_unavailable"
	Audience Audience   `json:"-"`
	At       time.Time  `json:"ts"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// Publisher accepts alerts for asynchronous, best-effort delivery.
type Publisher interface {
	Publish(alert Alert)
}

// PublisherFunc adapts a function to Publisher. It runs synchronously.
type PublisherFunc func(alert Alert)

func (f PublisherFunc) Publish(alert Alert) { f(alert) }

// LogNotifier writes alerts to the structured log (useful for development).
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "notify").Logger()}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	ev := n.log.Info()
	switch alert.Level {
	case AlertWarning:
		ev = n.log.Warn()
	case AlertCritical:
		ev = n.log.Error()
	}
	ev.Str("title", alert.Title).
		Str("venue", alert.Venue).
		Str("kind", alert.Kind).
		Msg(alert.Message)
	return nil
}

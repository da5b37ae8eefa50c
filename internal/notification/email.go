package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/wneessen/go-mail"

	"binance-signalbot/internal/model"
)

// EmailConfig configures the SMTP sink.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
	Timeout  time.Duration
}

// EmailNotifier sends alerts as plain-text mail over SMTP with STARTTLS.
type EmailNotifier struct {
	cfg  EmailConfig
	log  zerolog.Logger
	send func(ctx context.Context, msg *mail.Msg) error
}

// NewEmailNotifier creates an email notifier. No connection is made until Send.
func NewEmailNotifier(cfg EmailConfig, log zerolog.Logger) *EmailNotifier {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	n := &EmailNotifier{cfg: cfg, log: log.With().Str("component", "email").Logger()}
	n.send = n.dialAndSend
	return n
}

func (n *EmailNotifier) Send(ctx context.Context, alert Alert) error {
	msg, err := n.message(alert)
	if err != nil {
		return fmt.Errorf("%w: email: %v", model.ErrNotification, err)
	}
	if err := n.send(ctx, msg); err != nil {
		return fmt.Errorf("%w: email: %v", model.ErrNotification, err)
	}
	n.log.Debug().Str("subject", alert.Title).Strs("to", n.cfg.To).Msg("sent mail")
	return nil
}

func (n *EmailNotifier) message(alert Alert) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(n.cfg.From); err != nil {
		return nil, fmt.Errorf("from: %w", err)
	}
	if err := msg.To(n.cfg.To...); err != nil {
		return nil, fmt.Errorf("to: %w", err)
	}
	msg.Subject(alert.Title)
	msg.SetDate()
	msg.SetBodyString(mail.TypeTextPlain, alert.Message)
	return msg, nil
}

func (n *EmailNotifier) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	client, err := mail.NewClient(n.cfg.Host,
		mail.WithPort(n.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(n.cfg.Username),
		mail.WithPassword(n.cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithTimeout(n.cfg.Timeout),
	)
	if err != nil {
		return err
	}
	return client.DialAndSendWithContext(ctx, msg)
}

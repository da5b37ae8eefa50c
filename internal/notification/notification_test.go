package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"

	"binance-signalbot/internal/model"
)

type recorder struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
	block  chan struct{}
}

func (r *recorder) Send(ctx context.Context, a Alert) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return r.err
}

func (r *recorder) titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.alerts))
	for _, a := range r.alerts {
		out = append(out, a.Title)
	}
	return out
}

func TestTelegramSend(t *testing.T) {
	var got map[string]interface{}
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		if !assert.NoError(t, json.Unmarshal(body, &got)) {
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewTelegramNotifier("TOKEN", "42", zerolog.Nop())
	n.baseURL = srv.URL

	err := n.Send(context.Background(), Alert{Level: AlertWarning, Title: "Order failed", Message: "[SPOT] BUY @ 30000.5"})
	require.NoError(t, err)
	assert.Equal(t, "/botTOKEN/sendMessage", path)
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "MarkdownV2", got["parse_mode"])
	assert.Equal(t, "⚠️ *Order failed*\n\n\\[SPOT\\] BUY @ 30000\\.5", got["text"])
}

func TestTelegramErrorHidesToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	n := NewTelegramNotifier("SECRET", "42", zerolog.Nop())
	n.baseURL = srv.URL
	err := n.Send(context.Background(), Alert{Title: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrNotification))
	assert.NotContains(t, err.Error(), "SECRET")

	srv.Close()
	err = n.Send(context.Background(), Alert{Title: "x"})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "SECRET")
}

func TestEscapeMarkdown(t *testing.T) {
	assert.Equal(t, `a\_b\*c\\d`, escapeMarkdown(`a_b*c\d`))
	assert.Equal(t, "plain", escapeMarkdown("plain"))
}

func TestWebhookSend(t *testing.T) {
	var got Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&got)) {
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, zerolog.Nop())
	require.NoError(t, n.Send(context.Background(), Alert{Level: AlertCritical, Title: "Exchange unavailable", Venue: "futures", Kind: "exchange_unavailable"}))
	assert.Equal(t, "Exchange unavailable", got.Title)
	assert.Equal(t, "futures", got.Venue)
	assert.Equal(t, "exchange_unavailable", got.Kind)
	assert.False(t, got.At.IsZero())
}

func TestWebhookBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL, zerolog.Nop()).Send(context.Background(), Alert{Title: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrNotification))
}

func TestEmailMessage(t *testing.T) {
	n := NewEmailNotifier(EmailConfig{
		Host: "smtp.example.com",
		From: "bot@example.com",
		To:   []string{"ops@example.com"},
	}, zerolog.Nop())

	var raw bytes.Buffer
	n.send = func(ctx context.Context, msg *mail.Msg) error {
		_, err := msg.WriteTo(&raw)
		return err
	}

	require.NoError(t, n.Send(context.Background(), Alert{Title: "Binance Trading Bot Report", Message: "line one\nline two\n"}))
	out := raw.String()
	assert.Contains(t, out, "Subject: Binance Trading Bot Report")
	assert.Contains(t, out, "ops@example.com")
	assert.Contains(t, out, "line two")
}

func TestEmailFailureWrapped(t *testing.T) {
	n := NewEmailNotifier(EmailConfig{Host: "h", From: "bot@example.com", To: []string{"ops@example.com"}}, zerolog.Nop())
	n.send = func(ctx context.Context, msg *mail.Msg) error { return errors.New("dial tcp: refused") }

	err := n.Send(context.Background(), Alert{Title: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrNotification))

	bad := NewEmailNotifier(EmailConfig{Host: "h", From: "not an address", To: []string{"ops@example.com"}}, zerolog.Nop())
	assert.True(t, errors.Is(bad.Send(context.Background(), Alert{Title: "x"}), model.ErrNotification))
}

func TestFanoutRoutesByAudience(t *testing.T) {
	push, email, all := &recorder{}, &recorder{}, &recorder{}
	f := NewFanout([]Route{
		{Name: "telegram", Audience: AudiencePush, Notifier: push},
		{Name: "email", Audience: AudienceEmail, Notifier: email},
		{Name: "log", Audience: AudienceAll, Notifier: all},
	}, 8, time.Second, zerolog.Nop())

	f.Publish(Alert{Title: "trade", Audience: AudiencePush})
	f.Publish(Alert{Title: "report", Audience: AudienceEmail})
	f.Publish(Alert{Title: "alive", Audience: AudienceAll})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.Close(ctx))

	assert.Equal(t, []string{"trade", "alive"}, push.titles())
	assert.Equal(t, []string{"report", "alive"}, email.titles())
	assert.Equal(t, []string{"trade", "report", "alive"}, all.titles())
}

func TestFanoutContainsSinkErrors(t *testing.T) {
	failing := &recorder{err: errors.New("boom")}
	ok := &recorder{}

	var mu sync.Mutex
	results := map[string]int{}
	f := NewFanout([]Route{
		{Name: "bad", Audience: AudienceAll, Notifier: failing},
		{Name: "good", Audience: AudienceAll, Notifier: ok},
	}, 4, time.Second, zerolog.Nop())
	f.OnResult = func(sink string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			results[sink+":error"]++
		} else {
			results[sink+":ok"]++
		}
	}

	f.Publish(Alert{Title: "a"})
	require.NoError(t, f.Close(context.Background()))

	assert.Equal(t, []string{"a"}, ok.titles())
	assert.Equal(t, 1, results["bad:error"])
	assert.Equal(t, 1, results["good:ok"])
}

func TestFanoutDropsWhenFull(t *testing.T) {
	slow := &recorder{block: make(chan struct{})}
	f := NewFanout([]Route{{Name: "slow", Audience: AudienceAll, Notifier: slow}}, 1, time.Second, zerolog.Nop())
	dropped := 0
	f.OnDrop = func() { dropped++ }

	// first alert is taken by the worker and blocks, second fills the queue
	f.Publish(Alert{Title: "1"})
	require.Eventually(t, func() bool { return len(f.queue) == 0 }, time.Second, time.Millisecond)
	f.Publish(Alert{Title: "2"})
	f.Publish(Alert{Title: "3"})
	assert.Equal(t, 1, dropped)

	close(slow.block)
	require.NoError(t, f.Close(context.Background()))
	assert.Equal(t, []string{"1", "2"}, slow.titles())

	// publishing after close is a no-op
	assert.NotPanics(t, func() { f.Publish(Alert{Title: "late"}) })
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(zerolog.New(&buf))
	require.NoError(t, n.Send(context.Background(), Alert{Level: AlertCritical, Title: "t", Venue: "spot", Kind: "order_rejected", Message: "m"}))
	line := buf.String()
	assert.True(t, strings.Contains(line, `"level":"error"`))
	assert.Contains(t, line, `"kind":"order_rejected"`)
	assert.Contains(t, line, `"message":"m"`)
}

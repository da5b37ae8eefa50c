package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binance-signalbot/internal/breaker"
	"binance-signalbot/internal/model"
)

func TestHooksUpdateCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveOrder("spot", model.SideBuy, "submitted")
	m.ObserveOrder("spot", model.SideBuy, "submitted")
	m.ObserveNotification("telegram", nil)
	m.ObserveNotification("telegram", errors.New("x"))
	m.ObserveBreaker("futures", breaker.StateClosed, breaker.StateOpen)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.OrdersTotal.WithLabelValues("spot", "BUY", "submitted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("telegram", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("telegram", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("futures")))
}

func TestServerExposesMetricsAndHealth(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.CyclesTotal.WithLabelValues("spot", "hold").Inc()

	health := NewHealthStatus("paper", time.Hour)
	health.SetVenueReachable("spot", true)
	srv := NewServer(":0", reg, health, zerolog.Nop())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `signalbot_cycles_total{result="hold",venue="spot"} 1`)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "paper", body["mode"])
}

func TestHealthDegradedWhenVenueUnreachable(t *testing.T) {
	health := NewHealthStatus("live", 0)
	health.SetVenueReachable("spot", true)
	health.SetVenueReachable("futures", false)

	rec := httptest.NewRecorder()
	health.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `"status":"degraded"`))
}

func TestHealthUnhealthyWhenStale(t *testing.T) {
	health := NewHealthStatus("live", time.Minute)
	health.SetLastEvaluation(time.Now().Add(-time.Hour))

	rec := httptest.NewRecorder()
	health.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"unhealthy"`)
}

type stubRecords struct {
	recs  []model.ActivityRecord
	limit int
	err   error
}

func (s *stubRecords) Records(ctx context.Context, limit int) ([]model.ActivityRecord, error) {
	s.limit = limit
	return s.recs, s.err
}

func TestActivityHandler(t *testing.T) {
	src := &stubRecords{recs: []model.ActivityRecord{{Venue: "spot", Symbol: "BTC/USDT", Outcome: model.OutcomeSubmitted}}}
	h := ActivityHandler(src)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/activity?limit=5000", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1000, src.limit)

	var got []model.ActivityRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "BTC/USDT", got[0].Symbol)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/activity?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	src.err = errors.New("db closed")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/activity", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 50, src.limit)
}

// Package metrics exposes Prometheus counters for the decision loop and an
// HTTP server for /metrics, /healthz and the optional dashboard endpoints.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"binance-signalbot/internal/breaker"
	"binance-signalbot/internal/model"
)

const namespace = "signalbot"

// Metrics holds all Prometheus metrics for the bot.
type Metrics struct {
	CyclesTotal          *prometheus.CounterVec // labels: venue, result
	SignalsTotal         *prometheus.CounterVec // labels: venue, signal
	OrdersTotal          *prometheus.CounterVec // labels: venue, side, outcome
	NotificationsTotal   *prometheus.CounterVec // labels: sink, result
	NotificationsDropped prometheus.Counter
	ReportsTotal         *prometheus.CounterVec // labels: result
	CycleDuration        *prometheus.HistogramVec
	LastEvaluation       prometheus.Gauge
	BreakerState         *prometheus.GaugeVec // 0=closed, 1=open, 2=half-open
	ActivityBuffered     prometheus.Counter   // records replayed after a redis outage
}

// NewMetrics creates the metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Evaluation cycles per venue by result (ok, hold, data_unavailable, ...)",
		}, []string{"venue", "result"}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_total",
			Help:      "Signals evaluated per venue",
		}, []string{"venue", "signal"}),
		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_total",
			Help:      "Order submissions by outcome",
		}, []string{"venue", "side", "outcome"}),
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries per sink",
		}, []string{"sink", "result"}),
		NotificationsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Alerts dropped because the notification queue was full",
		}),
		ReportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "Periodic reports by result",
		}, []string{"result"}),
		CycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one venue pipeline run",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"venue"}),
		LastEvaluation: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_evaluation_timestamp_seconds",
			Help:      "Unix time of the last evaluation pass",
		}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"venue"}),
		ActivityBuffered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activity_buffered_flushed_total",
			Help:      "Activity records written late after the redis breaker closed",
		}),
	}

	reg.MustRegister(
		m.CyclesTotal,
		m.SignalsTotal,
		m.OrdersTotal,
		m.NotificationsTotal,
		m.NotificationsDropped,
		m.ReportsTotal,
		m.CycleDuration,
		m.LastEvaluation,
		m.BreakerState,
		m.ActivityBuffered,
	)
	return m
}

// ObserveOrder is a dispatcher OnOutcome hook.
func (m *Metrics) ObserveOrder(venue string, side model.Side, outcome string) {
	m.OrdersTotal.WithLabelValues(venue, string(side), outcome).Inc()
}

// ObserveNotification is a fanout OnResult hook.
func (m *Metrics) ObserveNotification(sink string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.NotificationsTotal.WithLabelValues(sink, result).Inc()
}

// ObserveBreaker is a breaker OnStateChange hook. It runs under the breaker
// lock and must not call back into the breaker.
func (m *Metrics) ObserveBreaker(name string, _, to breaker.State) {
	m.BreakerState.WithLabelValues(name).Set(float64(to))
}

// HealthStatus is the liveness view served on /healthz.
type HealthStatus struct {
	mu sync.RWMutex

	Mode           string          `json:"mode"`
	Venues         map[string]bool `json:"venues"` // venue -> last call reached the exchange
	LastEvaluation time.Time       `json:"last_evaluation"`
	LastReport     time.Time       `json:"last_report"`
	RedisConnected *bool           `json:"redis_connected,omitempty"`
	SQLiteOK       *bool           `json:"sqlite_ok,omitempty"`

	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`

	// StaleAfter marks the bot degraded when no evaluation ran for this long.
	StaleAfter time.Duration `json:"-"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus(mode string, staleAfter time.Duration) *HealthStatus {
	return &HealthStatus{
		Mode:       mode,
		Venues:     make(map[string]bool),
		StaleAfter: staleAfter,
		StartedAt:  time.Now(),
	}
}

func (h *HealthStatus) SetVenueReachable(venue string, ok bool) {
	h.mu.Lock()
	h.Venues[venue] = ok
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastEvaluation(t time.Time) {
	h.mu.Lock()
	h.LastEvaluation = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastReport(t time.Time) {
	h.mu.Lock()
	h.LastReport = t
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	ok := err == nil
	h.mu.Lock()
	h.RedisConnected = &ok
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	ok := err == nil
	h.mu.Lock()
	h.SQLiteOK = &ok
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic store checks. Nil dependencies are skipped.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overall := "healthy"
	code := http.StatusOK
	for _, ok := range h.Venues {
		if !ok {
			overall = "degraded"
		}
	}
	if h.RedisConnected != nil && !*h.RedisConnected {
		overall = "degraded"
	}
	if h.SQLiteOK != nil && !*h.SQLiteOK {
		overall = "degraded"
	}
	if h.StaleAfter > 0 && !h.LastEvaluation.IsZero() && time.Since(h.LastEvaluation) > h.StaleAfter {
		overall = "unhealthy"
	}
	if overall != "healthy" {
		code = http.StatusServiceUnavailable
	}

	status := struct {
		Status string `json:"status"`
		Uptime string `json:"uptime"`
		*HealthStatus
	}{
		Status:       overall,
		Uptime:       time.Since(h.StartedAt).Round(time.Second).String(),
		HealthStatus: h,
	}

	w.Header().Set("Content-Type", "application/json")
	if code != http.StatusOK {
		w.WriteHeader(code)
	}
	json.NewEncoder(w).Encode(status)
}

// RecordSource lists recent activity records, newest first.
type RecordSource interface {
	Records(ctx context.Context, limit int) ([]model.ActivityRecord, error)
}

// ActivityHandler serves recent activity records as JSON. ?limit=N caps the
// result (default 50, max 1000).
func ActivityHandler(src RecordSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}
		if limit > 1000 {
			limit = 1000
		}
		recs, err := src.Records(r.Context(), limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if recs == nil {
			recs = []model.ActivityRecord{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(recs)
	})
}

// Server runs an HTTP server exposing /metrics and /healthz plus any extra
// handlers registered before Start.
type Server struct {
	addr string
	mux  *http.ServeMux
	srv  *http.Server
	log  zerolog.Logger
}

// NewServer creates a metrics and health server for the given gatherer.
func NewServer(addr string, gatherer prometheus.Gatherer, health *HealthStatus, log zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)

	return &Server{
		addr: addr,
		mux:  mux,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log.With().Str("component", "http").Logger(),
	}
}

// Handle registers an extra route, e.g. /ws or /activity.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

// Handler returns the root handler (for tests).
func (s *Server) Handler() http.Handler { return s.mux }

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("http server listening")
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("http server error")
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

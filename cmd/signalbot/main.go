// Command signalbot evaluates RSI/SMA signals on Binance spot and futures,
// places bracketed market orders and reports its activity.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"binance-signalbot/config"
	"binance-signalbot/internal/breaker"
	"binance-signalbot/internal/exchange"
	"binance-signalbot/internal/execution"
	"binance-signalbot/internal/gateway"
	"binance-signalbot/internal/logger"
	"binance-signalbot/internal/metrics"
	"binance-signalbot/internal/model"
	"binance-signalbot/internal/notification"
	"binance-signalbot/internal/scheduler"
	"binance-signalbot/internal/store"
	filestore "binance-signalbot/internal/store/file"
	redisstore "binance-signalbot/internal/store/redis"
	sqlitestore "binance-signalbot/internal/store/sqlite"
	"binance-signalbot/internal/strategy"
	"binance-signalbot/pkg/binance"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "signalbot: %v\n", err)
		os.Exit(1)
	}

	log := logger.Init("signalbot", cfg.Log.Level, cfg.Log.Format)
	if err := run(cfg, log); err != nil {
		log.Error().Err(err).Msg("signalbot stopped with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	log.Info().
		Str("mode", cfg.Exchange.Mode).
		Str("symbol", cfg.Symbol).
		Str("timeframe", cfg.Timeframe).
		Msg("starting")

	// ---- Context for graceful shutdown ----
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- Metrics & health ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := metrics.NewMetrics(reg)
	health := metrics.NewHealthStatus(cfg.Exchange.Mode, 3*cfg.Schedule.EvaluationInterval)
	httpSrv := metrics.NewServer(cfg.HTTP.Addr, reg, health, log)

	// ---- Activity store ----
	activity, records, archive, err := openStore(ctx, cfg, prom, health, log)
	if err != nil {
		return err
	}
	defer activity.Close()
	if records != nil {
		httpSrv.Handle("/activity", metrics.ActivityHandler(records))
	}

	// ---- Notification sinks ----
	routes := []notification.Route{{Name: "log", Audience: notification.AudienceAll, Notifier: notification.NewLogNotifier(log)}}
	if cfg.TelegramEnabled() {
		routes = append(routes, notification.Route{
			Name:     "telegram",
			Audience: notification.AudiencePush,
			Notifier: notification.NewTelegramNotifier(cfg.Notify.Telegram.Token, cfg.Notify.Telegram.ChatID, log),
		})
	}
	if cfg.EmailEnabled() {
		e := cfg.Notify.Email
		routes = append(routes, notification.Route{
			Name:     "email",
			Audience: notification.AudienceEmail,
			Notifier: notification.NewEmailNotifier(notification.EmailConfig{
				Host: e.Host, Port: e.Port, Username: e.Username, Password: e.Password, From: e.From, To: e.To,
			}, log),
		})
	}
	if cfg.Notify.WebhookURL != "" {
		routes = append(routes, notification.Route{
			Name:     "webhook",
			Audience: notification.AudiencePush,
			Notifier: notification.NewWebhookNotifier(cfg.Notify.WebhookURL, log),
		})
	}
	var hub *gateway.Hub
	if cfg.Notify.Websocket {
		hub = gateway.NewHub(cfg.Notify.ReplaySize, log)
		httpSrv.Handle("/ws", hub)
		routes = append(routes, notification.Route{Name: "websocket", Audience: notification.AudiencePush, Notifier: hub})
		if rs, ok := activity.(*redisstore.Store); ok {
			router := gateway.NewPubSubRouter(hub, rs.Client(), map[string]string{rs.PubChannel(): gateway.ChannelActivity})
			go router.Run(ctx)
		}
	}
	notifier := notification.NewFanout(routes, cfg.Notify.QueueSize, cfg.Notify.SendTimeout, log)
	notifier.OnResult = prom.ObserveNotification
	notifier.OnDrop = prom.NotificationsDropped.Inc

	// ---- Venues ----
	pipelines, err := buildPipelines(cfg, activity, archive, notifier, prom, log)
	if err != nil {
		return err
	}

	httpSrv.Start()

	// ---- Control loop ----
	ctrl := scheduler.NewController(scheduler.Config{
		EvaluationInterval: cfg.Schedule.EvaluationInterval,
		ReportInterval:     cfg.Schedule.ReportInterval,
		PollInterval:       cfg.Schedule.PollInterval,
		PingTimeout:        cfg.Exchange.Timeout,
		Mode:               cfg.Exchange.Mode,
	}, pipelines, activity, notifier, scheduler.Hooks{
		OnCycle: func(venue, result string, d time.Duration) {
			prom.CyclesTotal.WithLabelValues(venue, result).Inc()
			prom.CycleDuration.WithLabelValues(venue).Observe(d.Seconds())
		},
		OnSignal: func(venue string, sig model.Signal) {
			prom.SignalsTotal.WithLabelValues(venue, sig.String()).Inc()
		},
		OnEvaluation: func(at time.Time) {
			prom.LastEvaluation.Set(float64(at.Unix()))
			health.SetLastEvaluation(at)
		},
		OnReport: func(result string, at time.Time) {
			prom.ReportsTotal.WithLabelValues(result).Inc()
			health.SetLastReport(at)
		},
		OnReachable: health.SetVenueReachable,
	}, log)

	err = ctrl.Run(ctx)

	// ---- Shutdown ----
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := notifier.Close(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("pending notifications dropped")
	}
	if hub != nil {
		hub.Close()
	}
	if err := httpSrv.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown")
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// openStore opens the configured activity backend. records and archive are
// nil unless the backend supports them.
func openStore(ctx context.Context, cfg *config.Config, prom *metrics.Metrics, health *metrics.HealthStatus, log zerolog.Logger) (model.ActivityStore, metrics.RecordSource, scheduler.CandleArchive, error) {
	switch cfg.Activity.Backend {
	case store.BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.Activity.SQLitePath), 0o755); err != nil {
			return nil, nil, nil, fmt.Errorf("sqlite dir: %w", err)
		}
		s, err := sqlitestore.Open(cfg.Activity.SQLitePath, log)
		if err != nil {
			return nil, nil, nil, err
		}
		health.StartLivenessChecker(ctx, nil, s.DB(), 30*time.Second)
		var archive scheduler.CandleArchive
		if cfg.Activity.ArchiveCandles {
			archive = s
		}
		return s, s, archive, nil

	case store.BackendRedis:
		cb := breaker.New("redis", cfg.Exchange.Breaker.MaxFailures, cfg.Exchange.Breaker.ResetTimeout)
		cb.OnStateChange = prom.ObserveBreaker
		r := cfg.Activity.Redis
		s, err := redisstore.New(ctx, redisstore.Config{
			Addr:     r.Addr,
			Password: r.Password,
			DB:       r.DB,
			Stream:   r.Stream,
		}, cb, log)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("redis: %w", err)
		}
		s.OnFlush = func(n int) { prom.ActivityBuffered.Add(float64(n)) }
		health.StartLivenessChecker(ctx, s.Client(), nil, 30*time.Second)
		return s, nil, nil, nil

	default:
		s, err := filestore.Open(cfg.Activity.FilePath)
		if err != nil {
			return nil, nil, nil, err
		}
		log.Info().Str("path", s.Path()).Msg("activity log file ready")
		return s, nil, nil, nil
	}
}

// buildPipelines wires one guarded exchange, dispatcher and pipeline per
// configured venue, in configuration order.
func buildPipelines(cfg *config.Config, activity model.ActivityStore, archive scheduler.CandleArchive,
	notifier notification.Publisher, prom *metrics.Metrics, log zerolog.Logger) ([]*scheduler.Pipeline, error) {

	venues, err := cfg.ModelVenues()
	if err != nil {
		return nil, err
	}
	sizer, basis, err := cfg.Sizer()
	if err != nil {
		return nil, err
	}
	strat, err := strategy.NewRSITrend(cfg.Thresholds.Oversold, cfg.Thresholds.Overbought)
	if err != nil {
		return nil, err
	}
	_, quote := model.SplitSymbol(cfg.Symbol)

	pipelines := make([]*scheduler.Pipeline, 0, len(venues))
	for _, venue := range venues {
		vlog := log.With().Str("venue", venue.Name()).Logger()

		ex, err := venueExchange(cfg, venue, quote, vlog)
		if err != nil {
			return nil, err
		}
		cb := breaker.New(venue.Name(), cfg.Exchange.Breaker.MaxFailures, cfg.Exchange.Breaker.ResetTimeout)
		cb.OnStateChange = func(name string, from, to breaker.State) {
			prom.ObserveBreaker(name, from, to)
			vlog.Warn().Str("from", from.String()).Str("to", to.String()).Msg("exchange breaker state changed")
		}
		guarded := exchange.NewGuard(ex, cb)

		dispatcher := execution.NewDispatcher(guarded, activity, notifier, vlog)
		dispatcher.OnOutcome = prom.ObserveOrder

		pipelines = append(pipelines, &scheduler.Pipeline{
			Venue:          venue,
			Symbol:         cfg.Symbol,
			Timeframe:      cfg.Timeframe,
			HistoryLimit:   cfg.HistoryLimit,
			MomentumPeriod: cfg.Indicators.RSIPeriod,
			TrendPeriod:    cfg.Indicators.SMAPeriod,
			CallTimeout:    cfg.Exchange.Timeout,
			Exchange:       guarded,
			Strategy:       strat,
			Sizer:          sizer,
			Basis:          basis,
			Submitter:      dispatcher,
			Archive:        archive,
			Notify:         notifier,
			Log:            vlog,
		})
		vlog.Info().
			Float64("capital_usage", venue.CapitalUsage).
			Int("leverage", venue.Leverage).
			Msg("venue ready")
	}
	return pipelines, nil
}

// venueExchange returns the live Binance adapter, or a paper venue fed by
// public mainnet market data.
func venueExchange(cfg *config.Config, venue model.Venue, quote string, log zerolog.Logger) (model.Exchange, error) {
	market := binance.Spot
	baseURL := cfg.Exchange.SpotURL
	if venue.Kind == model.Leveraged {
		market = binance.Futures
		baseURL = cfg.Exchange.FuturesURL
	}
	client := binance.New(binance.Config{
		Market:     market,
		APIKey:     cfg.Exchange.APIKey,
		APISecret:  cfg.Exchange.APISecret,
		Testnet:    cfg.Exchange.Mode == config.ModeTestnet,
		BaseURL:    baseURL,
		Timeout:    cfg.Exchange.Timeout,
		RecvWindow: cfg.Exchange.RecvWindow,
	})
	live, err := exchange.NewBinance(client, venue, log)
	if err != nil {
		return nil, err
	}
	if cfg.Exchange.Mode != config.ModePaper {
		log.Info().Str("base_url", client.BaseURL()).Msg("binance client ready")
		return live, nil
	}
	paper := exchange.NewPaperExchange(live, venue, quote, cfg.Paper.StartBalance, cfg.Paper.SlippageBps, log)
	paper.TrackBrackets()
	return paper, nil
}

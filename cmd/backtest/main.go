// cmd/backtest replays candles archived by the bot (activity.archive_candles)
// through the live evaluation pipeline against a paper venue, to check
// thresholds and risk settings without touching an exchange.
//
// Usage:
//
//	go run ./cmd/backtest -config=config.yaml -venue=futures -from=2026-09-01T00:00:00Z
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"binance-signalbot/config"
	"binance-signalbot/internal/backtest"
	"binance-signalbot/internal/logger"
	"binance-signalbot/internal/model"
	filestore "binance-signalbot/internal/store/file"
	sqlitestore "binance-signalbot/internal/store/sqlite"
	"binance-signalbot/internal/strategy"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	dbPath := flag.String("db", "", "SQLite candle archive (default: activity.sqlite_path)")
	venueFlag := flag.String("venue", "", "replay only this venue (spot or futures)")
	fromStr := flag.String("from", "", "RFC3339 start time (default: whole archive)")
	speed := flag.Float64("speed", 0, "playback speed multiplier (0=max, 1=realtime, 100=100x)")
	outPath := flag.String("out", "backtest_log.txt", "activity log written by the replay")
	asJSON := flag.Bool("json", false, "print reports as JSON")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backtest: %v\n", err)
		os.Exit(1)
	}
	log := logger.Init("backtest", cfg.Log.Level, cfg.Log.Format)

	var from time.Time
	if *fromStr != "" {
		if from, err = time.Parse(time.RFC3339, *fromStr); err != nil {
			log.Fatal().Err(err).Msg("invalid -from")
		}
	}
	if *dbPath == "" {
		*dbPath = cfg.Activity.SQLitePath
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reports, err := run(ctx, cfg, *dbPath, *venueFlag, from, *speed, *outPath, log)
	for _, rep := range reports {
		if *asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(rep)
			continue
		}
		printReport(rep)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("backtest failed")
	}
}

func run(ctx context.Context, cfg *config.Config, dbPath, only string, from time.Time, speed float64, outPath string, log zerolog.Logger) ([]backtest.Report, error) {
	archive, err := sqlitestore.Open(dbPath, log)
	if err != nil {
		return nil, err
	}
	defer archive.Close()

	activity, err := filestore.Open(outPath)
	if err != nil {
		return nil, err
	}
	defer activity.Close()

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

	var reports []backtest.Report
	for _, venue := range venues {
		if only != "" && only != venue.Name() {
			continue
		}
		series, err := archive.Candles(ctx, venue.Name(), cfg.Symbol, cfg.Timeframe, from)
		if err != nil {
			return reports, fmt.Errorf("%s: read archive: %w", venue.Name(), err)
		}
		log.Info().
			Str("venue", venue.Name()).
			Int("candles", len(series)).
			Float64("speed", speed).
			Msg("replaying")

		rep, err := backtest.Run(ctx, series, backtest.Config{
			Venue:          venue,
			Symbol:         cfg.Symbol,
			Timeframe:      cfg.Timeframe,
			HistoryLimit:   cfg.HistoryLimit,
			MomentumPeriod: cfg.Indicators.RSIPeriod,
			TrendPeriod:    cfg.Indicators.SMAPeriod,
			Strategy:       strat,
			Sizer:          sizer,
			Basis:          basis,
			StartBalance:   cfg.Paper.StartBalance,
			SlippageBps:    cfg.Paper.SlippageBps,
			Speed:          speed,
		}, activity, log)
		if err != nil {
			return reports, fmt.Errorf("%s: %w", venue.Name(), err)
		}
		reports = append(reports, rep)
	}
	if len(reports) == 0 && only != "" {
		return nil, fmt.Errorf("venue %q is not configured", only)
	}
	return reports, nil
}

func printReport(rep backtest.Report) {
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║        BACKTEST COMPLETE             ║")
	fmt.Println("╠══════════════════════════════════════╣")
	fmt.Printf("║  Venue:             %-16s ║\n", rep.Venue)
	fmt.Printf("║  Symbol:            %-16s ║\n", rep.Symbol+" "+rep.Timeframe)
	fmt.Printf("║  Candles replayed:  %-16d ║\n", rep.Candles)
	fmt.Printf("║  Buy / Sell:        %-16s ║\n", fmt.Sprintf("%d / %d", rep.Signals[model.Buy.String()], rep.Signals[model.Sell.String()]))
	fmt.Printf("║  Orders submitted:  %-16d ║\n", rep.Outcomes[string(model.OutcomeSubmitted)])
	fmt.Printf("║  Closed trades:     %-16d ║\n", rep.PnL.ClosedTrades)
	fmt.Printf("║  Win rate:          %-16s ║\n", fmt.Sprintf("%.1f%%", rep.PnL.WinRatePct))
	fmt.Printf("║  Realized P&L:      %-16s ║\n", model.FormatFloat(rep.PnL.RealizedPnL))
	fmt.Printf("║  Return:            %-16s ║\n", fmt.Sprintf("%.2f%%", rep.Equity.ReturnPct))
	fmt.Printf("║  Max drawdown:      %-16s ║\n", fmt.Sprintf("%.2f%%", rep.Equity.MaxDrawdownPct))
	fmt.Println("╚══════════════════════════════════════╝")
}

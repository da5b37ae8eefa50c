// Package sqlite persists the activity log (and an optional archive of the
// candles each evaluation saw) to SQLite for analysis and audit.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"binance-signalbot/internal/model"
)

// Store is the SQLite-backed activity log.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Open opens (or creates) the database with WAL mode and schema.
func Open(dbPath string, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Info().Str("component", "sqlite").Str("path", dbPath).Msg("opened activity database")
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS activity (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			ts          TEXT    NOT NULL,
			venue       TEXT    NOT NULL,
			symbol      TEXT    NOT NULL,
			side        TEXT    NOT NULL,
			qty         REAL    NOT NULL,
			price       REAL    NOT NULL,
			stop_loss   REAL    NOT NULL,
			take_profit REAL    NOT NULL,
			outcome     TEXT    NOT NULL,
			order_id    TEXT,
			detail      TEXT,
			line        TEXT    NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_activity_venue ON activity(venue);
		CREATE INDEX IF NOT EXISTS idx_activity_ts ON activity(ts);

		CREATE TABLE IF NOT EXISTS candles (
			venue     TEXT    NOT NULL,
			symbol    TEXT    NOT NULL,
			timeframe TEXT    NOT NULL,
			ts        INTEGER NOT NULL,
			open      REAL    NOT NULL,
			high      REAL    NOT NULL,
			low       REAL    NOT NULL,
			close     REAL    NOT NULL,
			volume    REAL,
			PRIMARY KEY (venue, symbol, timeframe, ts)
		);
	`)
	return err
}

// Append persists one record in a single INSERT.
func (s *Store) Append(ctx context.Context, rec model.ActivityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activity (ts, venue, symbol, side, qty, price, stop_loss, take_profit, outcome, order_id, detail, line)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
		rec.Venue,
		rec.Symbol,
		string(rec.Side),
		rec.Quantity,
		rec.ReferencePrice,
		rec.StopLossPrice,
		rec.TakeProfitPrice,
		string(rec.Outcome),
		rec.OrderID,
		rec.Detail,
		rec.String(),
	)
	if err != nil {
		return fmt.Errorf("sqlite append: %w", err)
	}
	return nil
}

// Contents returns every record's line in insertion order.
func (s *Store) Contents(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT line FROM activity ORDER BY id`)
	if err != nil {
		return "", fmt.Errorf("sqlite contents: %w", err)
	}
	defer rows.Close()

	var b strings.Builder
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return "", fmt.Errorf("sqlite contents: %w", err)
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String(), rows.Err()
}

// Records returns the last limit records, newest first.
func (s *Store) Records(ctx context.Context, limit int) ([]model.ActivityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, venue, symbol, side, qty, price, stop_loss, take_profit, outcome, order_id, detail
		 FROM activity ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ActivityRecord
	for rows.Next() {
		var (
			r            model.ActivityRecord
			ts, side, oc string
			orderID      sql.NullString
			detail       sql.NullString
		)
		if err := rows.Scan(&ts, &r.Venue, &r.Symbol, &side, &r.Quantity, &r.ReferencePrice,
			&r.StopLossPrice, &r.TakeProfitPrice, &oc, &orderID, &detail); err != nil {
			return nil, err
		}
		r.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		r.Side = model.Side(side)
		r.Outcome = model.Outcome(oc)
		r.OrderID = orderID.String
		r.Detail = detail.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveCandles archives a fetched window in one transaction. Re-fetched
// candles overwrite the stored row, so the still-forming last candle ends up
// with its final values.
func (s *Store) SaveCandles(ctx context.Context, venue, symbol, timeframe string, series model.PriceSeries) error {
	if len(series) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO candles (venue, symbol, timeframe, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, c := range series {
		if _, err := stmt.ExecContext(ctx, venue, symbol, timeframe, c.TS.Unix(), c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Candles returns archived candles at or after since, oldest first.
func (s *Store) Candles(ctx context.Context, venue, symbol, timeframe string, since time.Time) (model.PriceSeries, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, open, high, low, close, volume FROM candles
		 WHERE venue = ? AND symbol = ? AND timeframe = ? AND ts >= ?
		 ORDER BY ts`, venue, symbol, timeframe, since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out model.PriceSeries
	for rows.Next() {
		var (
			c  model.Candle
			ts int64
			v  sql.NullFloat64
		)
		if err := rows.Scan(&ts, &c.Open, &c.High, &c.Low, &c.Close, &v); err != nil {
			return nil, err
		}
		c.TS = time.Unix(ts, 0).UTC()
		c.Volume = v.Float64
		out = append(out, c)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

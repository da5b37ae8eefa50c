// Package redis keeps the activity log in a Redis stream. Appends go through
// a circuit breaker; while it is open, records are buffered locally and
// written ahead of the next record once Redis answers again. The stream is
// never trimmed here.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"binance-signalbot/internal/breaker"
	"binance-signalbot/internal/model"
)

const (
	defaultStream  = "signalbot:activity"
	defaultMaxBuf  = 1000
	defaultTimeout = 5 * time.Second
)

// Config configures the Redis activity store.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
	Stream   string // stream key, default "signalbot:activity"
	MaxBuf   int    // max buffered records while the breaker is open
}

// ErrBufferFull is returned by Append when the breaker is open and the local
// buffer cannot take another record.
var ErrBufferFull = errors.New("activity buffer full")

func (c *Config) setDefaults() {
	if c.Stream == "" {
		c.Stream = defaultStream
	}
	if c.MaxBuf <= 0 {
		c.MaxBuf = defaultMaxBuf
	}
}

// Store is the stream-backed activity log.
type Store struct {
	client  *goredis.Client
	cfg     Config
	cb      *breaker.Breaker
	log     zerolog.Logger
	pubChan string

	appendMu sync.Mutex // keeps buffered records ahead of new ones
	mu       sync.Mutex
	buffer   []model.ActivityRecord

	// OnFlush is called after buffered records are replayed (for metrics).
	OnFlush func(count int)
}

// Client returns the underlying Redis client for health checks.
func (s *Store) Client() *goredis.Client { return s.client }

// PubChannel is the PubSub channel every appended record is published on.
func (s *Store) PubChannel() string { return s.pubChan }

// New connects, pings the server and returns the store.
func New(ctx context.Context, cfg Config, cb *breaker.Breaker, log zerolog.Logger) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	s := NewWithClient(client, cfg, cb, log)
	s.log.Info().Str("addr", cfg.Addr).Str("stream", s.cfg.Stream).Msg("connected")
	return s, nil
}

// NewWithClient wraps an existing client without pinging it.
func NewWithClient(client *goredis.Client, cfg Config, cb *breaker.Breaker, log zerolog.Logger) *Store {
	cfg.setDefaults()
	return &Store{
		client:  client,
		cfg:     cfg,
		cb:      cb,
		log:     log.With().Str("component", "redis").Logger(),
		pubChan: "pub:" + cfg.Stream,
		buffer:  make([]model.ActivityRecord, 0, 16),
	}
}

// Append writes XADD + PUBLISH in one pipeline, after any records buffered
// during an outage. While the breaker is open the record is buffered locally
// and nil is returned; a full buffer fails the append.
func (s *Store) Append(ctx context.Context, rec model.ActivityRecord) error {
	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	err := s.cb.Execute(func() error {
		if err := s.flush(ctx); err != nil {
			return err
		}
		return s.write(ctx, rec)
	})
	if errors.Is(err, breaker.ErrOpen) {
		return s.bufferRecord(rec)
	}
	if err != nil {
		return fmt.Errorf("redis append: %w", err)
	}
	return nil
}

func (s *Store) write(ctx context.Context, rec model.ActivityRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	line := rec.String()

	pipe := s.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: s.cfg.Stream,
		Values: map[string]interface{}{"line": line, "data": string(data)},
	})
	pipe.Publish(ctx, s.pubChan, string(data))
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Store) bufferRecord(rec model.ActivityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buffer) >= s.cfg.MaxBuf {
		s.log.Error().Str("record", rec.String()).Int("buffered", len(s.buffer)).Msg("activity buffer full")
		return fmt.Errorf("redis append: %w (%d records pending)", ErrBufferFull, len(s.buffer))
	}
	s.buffer = append(s.buffer, rec)
	return nil
}

// flush writes buffered records in order. Records that fail stay buffered.
func (s *Store) flush(ctx context.Context) error {
	s.mu.Lock()
	pending := s.buffer
	s.mu.Unlock()
	if len(pending) == 0 {
		return nil
	}

	flushed := 0
	var err error
	for _, rec := range pending {
		if err = s.write(ctx, rec); err != nil {
			break
		}
		flushed++
	}

	s.mu.Lock()
	s.buffer = append(make([]model.ActivityRecord, 0, 16), s.buffer[flushed:]...)
	s.mu.Unlock()

	if err != nil {
		s.log.Error().Err(err).Int("remaining", len(pending)-flushed).Msg("activity replay failed")
	} else {
		s.log.Info().Int("count", flushed).Msg("flushed buffered activity")
	}
	if flushed > 0 && s.OnFlush != nil {
		s.OnFlush(flushed)
	}
	return err
}

// PendingCount returns the number of buffered records waiting to be flushed.
func (s *Store) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffer)
}

// Contents reads the whole stream, followed by any still-buffered records.
func (s *Store) Contents(ctx context.Context) (string, error) {
	var msgs []goredis.XMessage
	err := s.cb.Execute(func() error {
		var err error
		msgs, err = s.client.XRange(ctx, s.cfg.Stream, "-", "+").Result()
		return err
	})
	if err != nil {
		return "", fmt.Errorf("redis XRANGE %s: %w", s.cfg.Stream, err)
	}

	var b strings.Builder
	for _, m := range msgs {
		if line, ok := m.Values["line"].(string); ok {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	s.mu.Lock()
	for _, rec := range s.buffer {
		b.WriteString(rec.String())
		b.WriteByte('\n')
	}
	s.mu.Unlock()
	return b.String(), nil
}

// Close closes the Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

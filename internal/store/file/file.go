// Package file is the plain-text activity log: one human-readable line per
// record, appended to a single file.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"binance-signalbot/internal/model"
	"binance-signalbot/internal/store"
)

// Store appends records to an O_APPEND file under a mutex, one write per
// record, so concurrent appends never interleave.
type Store struct {
	path string

	mu sync.Mutex
	f  *os.File
}

// Open opens (or creates) the log at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("activity log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open activity log: %w", err)
	}
	return &Store{path: path, f: f}, nil
}

// Path returns the log file location.
func (s *Store) Path() string { return s.path }

func (s *Store) Append(ctx context.Context, rec model.ActivityRecord) error {
	line := []byte(rec.String() + "\n")

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return store.ErrClosed
	}
	if _, err := s.f.Write(line); err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	return nil
}

func (s *Store) Contents(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := os.ReadFile(s.path)
	if err != nil {
		return "", fmt.Errorf("read activity log: %w", err)
	}
	return string(b), nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

package file

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binance-signalbot/internal/model"
	"binance-signalbot/internal/store"
)

func record(i int) model.ActivityRecord {
	intent := model.OrderIntent{
		Venue: model.NewSpot(0.6), Symbol: "BTC/USDT", Side: model.SideBuy,
		Quantity: 0.01, ReferencePrice: 30000, StopLossPrice: 29700, TakeProfitPrice: 30600,
	}
	rec := model.NewActivityRecord(time.Date(2026, 10, 16, 12, 0, i, 0, time.UTC), intent, model.OutcomeSubmitted)
	rec.OrderID = fmt.Sprint(i)
	return rec
}

func TestStore_AppendAndContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "profit_log.txt")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	empty, err := s.Contents(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, s.Append(ctx, record(1)))
	require.NoError(t, s.Append(ctx, record(2)))

	got, err := s.Contents(ctx)
	require.NoError(t, err)
	assert.Equal(t, record(1).String()+"\n"+record(2).String()+"\n", got)
}

func TestStore_ReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profit_log.txt")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, record(1)))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Append(ctx, record(2)))

	got, err := s.Contents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(got, "\n"))
}

func TestStore_ConcurrentAppendsDoNotInterleave(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "log.txt"))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.Append(ctx, record(i%60)))
		}(i)
	}
	wg.Wait()

	got, err := s.Contents(ctx)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(got, "\n"), "\n")
	require.Len(t, lines, 50)
	for _, l := range lines {
		assert.True(t, strings.HasPrefix(l, "2026-10-16T12:00:"), l)
		assert.Contains(t, l, "outcome=submitted")
	}
}

func TestStore_AppendAfterClose(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "log.txt"))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Append(context.Background(), record(1)), store.ErrClosed)
	assert.NoError(t, s.Close())
}

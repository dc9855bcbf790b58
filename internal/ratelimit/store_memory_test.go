package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bluele/gcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_IncrementAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(100)

	n, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	for i := int64(1); i <= 3; i++ {
		n, err = s.Increment(ctx, "k", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}

	n, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	require.NoError(t, s.Delete(ctx, "k"))
	n, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestMemoryStore_WindowExpiryKeepsOriginalTTL(t *testing.T) {
	ctx := context.Background()
	clock := gcache.NewFakeClock()
	s := NewMemoryStoreWithClock(100, clock)

	_, err := s.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)

	clock.Advance(40 * time.Second)
	n, err := s.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// 70s after the first hit: the window opened by the first hit is over
	// even though the second hit was only 30s ago.
	clock.Advance(30 * time.Second)
	n, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = s.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMemoryStore_ConcurrentIncrements(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(100)

	const workers = 64
	const perWorker = 25
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				_, err := s.Increment(ctx, "shared", time.Minute)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	n, err := s.Get(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, int64(workers*perWorker), n)
}

func TestMemoryStore_RejectsNonPositiveWindow(t *testing.T) {
	_, err := NewMemoryStore(10).Increment(context.Background(), "k", 0)
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

func TestMemoryStore_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(2)

	_, _ = s.Increment(ctx, "a", time.Minute)
	_, _ = s.Increment(ctx, "b", time.Minute)
	_, _ = s.Increment(ctx, "a", time.Minute)
	_, _ = s.Increment(ctx, "c", time.Minute)

	n, _ := s.Get(ctx, "b")
	assert.Equal(t, int64(0), n)
	n, _ = s.Get(ctx, "a")
	assert.Equal(t, int64(2), n)
}

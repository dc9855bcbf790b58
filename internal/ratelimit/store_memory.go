package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bluele/gcache"
)

type counter struct {
	count     int64
	expiresAt time.Time
}

// MemoryStore is a single-process CounterStore backed by a bounded LRU.
// When the LRU is full the least recently touched counter is evicted.
type MemoryStore struct {
	mu    sync.Mutex
	cache gcache.Cache
	clock gcache.Clock
}

// NewMemoryStore returns a store holding at most size counters.
func NewMemoryStore(size int) *MemoryStore {
	return NewMemoryStoreWithClock(size, gcache.NewRealClock())
}

// NewMemoryStoreWithClock is NewMemoryStore with an explicit clock.
func NewMemoryStoreWithClock(size int, clock gcache.Clock) *MemoryStore {
	return &MemoryStore{
		cache: gcache.New(size).LRU().Clock(clock).Build(),
		clock: clock,
	}
}

// Increment implements CounterStore.
func (s *MemoryStore) Increment(_ context.Context, key string, window time.Duration) (int64, error) {
	if window <= 0 {
		return 0, ErrInvalidWindow
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	c, ok, err := s.lookup(key, now)
	if err != nil {
		return 0, err
	}
	if !ok {
		c = counter{expiresAt: now.Add(window)}
	}
	c.count++
	if err := s.cache.SetWithExpire(key, c, c.expiresAt.Sub(now)); err != nil {
		return 0, err
	}
	return c.count, nil
}

// Get implements CounterStore.
func (s *MemoryStore) Get(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok, err := s.lookup(key, s.clock.Now())
	if err != nil || !ok {
		return 0, err
	}
	return c.count, nil
}

// Delete implements CounterStore.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Remove(key)
	return nil
}

func (s *MemoryStore) lookup(key string, now time.Time) (counter, bool, error) {
	v, err := s.cache.Get(key)
	if err != nil {
		if errors.Is(err, gcache.KeyNotFoundError) {
			return counter{}, false, nil
		}
		return counter{}, false, err
	}
	c, ok := v.(counter)
	if !ok || !c.expiresAt.After(now) {
		return counter{}, false, nil
	}
	return c, true, nil
}

package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidWindow is returned when a counter is hit with a non-positive window.
var ErrInvalidWindow = errors.New("window must be positive")

// CounterStore is a keyed counter with per-key expiry.
//
// Increment must be atomic: a missing or expired key starts at 1 with a TTL of
// window, an existing key is incremented and keeps its TTL. Windows are fixed,
// not sliding, so a client can burst up to twice the limit across a window
// boundary.
type CounterStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
	Get(ctx context.Context, key string) (int64, error)
	Delete(ctx context.Context, key string) error
}

// Limiter answers throttle questions over a CounterStore.
type Limiter struct {
	store CounterStore
}

// NewLimiter wraps store.
func NewLimiter(store CounterStore) *Limiter {
	return &Limiter{store: store}
}

// TooManyAttempts reports whether key has reached max. It does not count.
func (l *Limiter) TooManyAttempts(ctx context.Context, key string, max int) (bool, error) {
	n, err := l.Attempts(ctx, key)
	if err != nil {
		return false, err
	}
	return n >= max, nil
}

// Hit counts one attempt against key and returns the new count.
func (l *Limiter) Hit(ctx context.Context, key string, window time.Duration) (int, error) {
	if window <= 0 {
		return 0, ErrInvalidWindow
	}
	n, err := l.store.Increment(ctx, key, window)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Attempts returns the current count for key, 0 when absent.
func (l *Limiter) Attempts(ctx context.Context, key string) (int, error) {
	n, err := l.store.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Remaining returns how many attempts key has left before max, never negative.
func (l *Limiter) Remaining(ctx context.Context, key string, max int) (int, error) {
	n, err := l.Attempts(ctx, key)
	if err != nil {
		return 0, err
	}
	return remaining(max, n), nil
}

// Clear drops the counter for key.
func (l *Limiter) Clear(ctx context.Context, key string) error {
	return l.store.Delete(ctx, key)
}

func remaining(max, n int) int {
	if n >= max {
		return 0
	}
	return max - n
}

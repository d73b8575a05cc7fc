package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Operation classes gated by the limiter.
const (
	ClassSearch = "search"
)

// Clock abstracts time so tests can drive the window deterministically
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by time.Now
func SystemClock() Clock { return systemClock{} }

// Config defines fixed-window limits for one operation class
type Config struct {
	// Limit is the maximum number of calls admitted per window
	Limit int
	// Window is the fixed window length
	Window time.Duration
}

// DefaultSearchConfig returns the limit applied to search-class reads
func DefaultSearchConfig() *Config {
	return &Config{
		Limit:  20,
		Window: time.Minute,
	}
}

// Store is the counter backend. Incr must atomically increment the counter
// for key within the window containing now and return the resulting count;
// Get reads the current count without incrementing. Counts reset strictly
// when the window elapses, never partially.
type Store interface {
	Incr(ctx context.Context, key string, window time.Duration, now time.Time) (int64, error)
	Get(ctx context.Context, key string, window time.Duration, now time.Time) (int64, error)
}

// Limiter gates operations per principal per operation class using a fixed
// window counter. Because the store's increment-and-check is atomic,
// concurrent callers sharing a key never observe more admitted calls than
// the configured limit.
type Limiter struct {
	store  Store
	config *Config
	clock  Clock
}

// NewLimiter creates a limiter over the given store
func NewLimiter(store Store, config *Config, clock Clock) *Limiter {
	if config == nil {
		config = DefaultSearchConfig()
	}
	if clock == nil {
		clock = SystemClock()
	}
	return &Limiter{store: store, config: config, clock: clock}
}

// Allow reports whether one more call is admitted for the principal key in
// the given operation class.
func (l *Limiter) Allow(ctx context.Context, principalKey, class string) (bool, error) {
	count, err := l.store.Incr(ctx, l.key(principalKey, class), l.config.Window, l.clock.Now())
	if err != nil {
		return false, fmt.Errorf("rate limit store: %w", err)
	}
	return count <= int64(l.config.Limit), nil
}

// Remaining returns how many calls are left in the current window
func (l *Limiter) Remaining(ctx context.Context, principalKey, class string) (int, error) {
	count, err := l.store.Get(ctx, l.key(principalKey, class), l.config.Window, l.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("rate limit store: %w", err)
	}
	remaining := l.config.Limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// Limit returns the configured per-window limit
func (l *Limiter) Limit() int { return l.config.Limit }

// Window returns the configured window length
func (l *Limiter) Window() time.Duration { return l.config.Window }

func (l *Limiter) key(principalKey, class string) string {
	return class + ":" + principalKey
}

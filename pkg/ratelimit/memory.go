package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	start time.Time
	count int64
}

// MemoryStore is a process-local Store. A single mutex guards the window map;
// this is a correctness-first design, the limiter is nowhere near any
// throughput-critical path.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window
}

// NewMemoryStore creates an empty in-process counter store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string]*window)}
}

// Incr atomically increments the counter for key, starting a fresh window if
// the previous one has elapsed.
func (s *MemoryStore) Incr(ctx context.Context, key string, windowLen time.Duration, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || now.Sub(w.start) >= windowLen {
		w = &window{start: now}
		s.windows[key] = w
	}
	w.count++
	return w.count, nil
}

// Get returns the current count for key, or zero if its window has elapsed
func (s *MemoryStore) Get(ctx context.Context, key string, windowLen time.Duration, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || now.Sub(w.start) >= windowLen {
		return 0, nil
	}
	return w.count, nil
}

// Cleanup removes windows that have been quiescent for at least two window
// lengths and returns how many were dropped. Callers schedule it
// periodically; expired windows are otherwise harmless but accumulate.
func (s *MemoryStore) Cleanup(windowLen time.Duration, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, w := range s.windows {
		if now.Sub(w.start) >= 2*windowLen {
			delete(s.windows, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked windows
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

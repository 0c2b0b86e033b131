package ratelimit

import (
	"context"
	"sync"
	"time"

	"voice-gateway/internal/clock"
)

type record struct {
	count   int
	resetAt time.Time
}

// MemoryStore is a process-local fixed-window counter map. A record is
// replaced, not merged, once its window expires. Expired records are also
// swept by a janitor so the map does not grow with every caller ever seen.
type MemoryStore struct {
	clk          clock.Clock
	limit        int
	window       time.Duration
	cleanupEvery time.Duration

	mu      sync.Mutex
	records map[string]*record
}

type MemoryOption func(*MemoryStore)

// WithClock injects a clock, used by tests to advance windows.
func WithClock(c clock.Clock) MemoryOption {
	return func(s *MemoryStore) { s.clk = c }
}

// WithCleanupEvery sets the janitor sweep interval. Zero disables the janitor.
func WithCleanupEvery(d time.Duration) MemoryOption {
	return func(s *MemoryStore) { s.cleanupEvery = d }
}

func NewMemoryStore(limit int, window time.Duration, opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		clk:          clock.NewRealClock(),
		limit:        limit,
		window:       window,
		cleanupEvery: 2 * time.Minute,
		records:      make(map[string]*record),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Take implements Store.
func (s *MemoryStore) Take(_ context.Context, key string) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now()

	rec, ok := s.records[key]
	if !ok || now.After(rec.resetAt) {
		// First request from this caller, or the previous window elapsed.
		rec = &record{count: 1, resetAt: now.Add(s.window)}
		s.records[key] = rec
		return s.decision(true, rec), nil
	}

	if rec.count >= s.limit {
		return s.decision(false, rec), nil
	}

	rec.count++
	return s.decision(true, rec), nil
}

func (s *MemoryStore) decision(allowed bool, rec *record) Decision {
	remaining := s.limit - rec.count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   allowed,
		Limit:     s.limit,
		Remaining: remaining,
		ResetAt:   rec.resetAt,
	}
}

// Cleanup drops records whose window has expired.
func (s *MemoryStore) Cleanup() {
	now := s.clk.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, rec := range s.records {
		if now.After(rec.resetAt) {
			delete(s.records, key)
		}
	}
}

// Len reports the number of tracked callers.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// StartJanitor sweeps expired records until ctx is cancelled.
func (s *MemoryStore) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}

// Package ratelimit bounds how many token-issuance requests a single caller
// may make per fixed window. The window is anchored at the caller's first
// request, so bursts of up to twice the limit are possible across a window
// boundary. That matches the contract the voice widget was built against.
package ratelimit

import (
	"context"
	"time"
)

const (
	// DefaultMaxRequests is the per-caller request budget per window.
	DefaultMaxRequests = 10
	// DefaultWindow is the fixed counting window.
	DefaultWindow = time.Minute
)

// Decision is the outcome of a rate-limit check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// ResetAt is when the caller's current window expires.
	ResetAt time.Time
}

// RetryAfter returns how long the caller should wait before retrying,
// measured from now. Zero when the request was allowed.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.Allowed {
		return 0
	}
	wait := d.ResetAt.Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

// Store applies fixed-window bookkeeping for a caller key and reports whether
// the request fits the budget. Implementations hold the counter state; the
// in-memory store is per-process, the Redis store is shared across instances.
type Store interface {
	Take(ctx context.Context, key string) (Decision, error)
}

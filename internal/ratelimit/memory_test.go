package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-gateway/internal/clock"
)

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(limit int, window time.Duration) (*MemoryStore, *clock.VirtualClock) {
	vc := clock.NewVirtualClock(epoch)
	return NewMemoryStore(limit, window, WithClock(vc)), vc
}

func TestMemoryStore_AllowsUpToLimit(t *testing.T) {
	store, _ := newTestStore(10, time.Minute)

	for i := 0; i < 10; i++ {
		d, err := store.Take(context.Background(), "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, 10, d.Limit)
		assert.Equal(t, 10-(i+1), d.Remaining)
	}
}

func TestMemoryStore_DeniesEleventhRequest(t *testing.T) {
	store, _ := newTestStore(10, time.Minute)

	for i := 0; i < 10; i++ {
		_, err := store.Take(context.Background(), "1.2.3.4")
		require.NoError(t, err)
	}

	d, err := store.Take(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, epoch.Add(time.Minute), d.ResetAt)
}

func TestMemoryStore_WindowAnchoredAtFirstRequest(t *testing.T) {
	store, vc := newTestStore(3, time.Minute)

	// First request anchors the window at t0.
	d, err := store.Take(context.Background(), "caller")
	require.NoError(t, err)
	assert.Equal(t, epoch.Add(time.Minute), d.ResetAt)

	// 30s later: still the same window, same reset time.
	vc.Advance(30 * time.Second)
	d, err = store.Take(context.Background(), "caller")
	require.NoError(t, err)
	assert.Equal(t, epoch.Add(time.Minute), d.ResetAt)
}

func TestMemoryStore_AllowsAgainAfterReset(t *testing.T) {
	store, vc := newTestStore(3, time.Minute)

	for i := 0; i < 3; i++ {
		_, err := store.Take(context.Background(), "caller")
		require.NoError(t, err)
	}
	d, err := store.Take(context.Background(), "caller")
	require.NoError(t, err)
	require.False(t, d.Allowed)

	// Past the reset time the record is replaced, not merged.
	vc.Advance(time.Minute + time.Second)

	d, err = store.Take(context.Background(), "caller")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 2, d.Remaining)
	assert.Equal(t, vc.Now().Add(time.Minute), d.ResetAt)
}

func TestMemoryStore_CallersAreIndependent(t *testing.T) {
	store, _ := newTestStore(2, time.Minute)

	for i := 0; i < 2; i++ {
		_, err := store.Take(context.Background(), "a")
		require.NoError(t, err)
	}
	d, err := store.Take(context.Background(), "a")
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	d, err = store.Take(context.Background(), "b")
	require.NoError(t, err)
	assert.True(t, d.Allowed, "a different caller must not share a's budget")
}

func TestMemoryStore_BoundaryBurst(t *testing.T) {
	// Fixed-window semantics: a caller may spend the full budget at the end
	// of one window and again at the start of the next.
	store, vc := newTestStore(5, time.Minute)

	vc.Advance(50 * time.Second)
	for i := 0; i < 5; i++ {
		d, err := store.Take(context.Background(), "bursty")
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}

	vc.Advance(time.Minute + time.Second)
	for i := 0; i < 5; i++ {
		d, err := store.Take(context.Background(), "bursty")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
}

func TestMemoryStore_CleanupEvictsExpiredRecords(t *testing.T) {
	store, vc := newTestStore(5, time.Minute)

	_, err := store.Take(context.Background(), "old")
	require.NoError(t, err)
	vc.Advance(2 * time.Minute)
	_, err = store.Take(context.Background(), "fresh")
	require.NoError(t, err)

	require.Equal(t, 2, store.Len())
	store.Cleanup()
	assert.Equal(t, 1, store.Len(), "only the expired record should be evicted")
}

func TestDecision_RetryAfter(t *testing.T) {
	d := Decision{Allowed: false, ResetAt: epoch.Add(40 * time.Second)}
	assert.Equal(t, 40*time.Second, d.RetryAfter(epoch))
	assert.Equal(t, time.Duration(0), d.RetryAfter(epoch.Add(time.Minute)))

	allowed := Decision{Allowed: true, ResetAt: epoch.Add(40 * time.Second)}
	assert.Equal(t, time.Duration(0), allowed.RetryAfter(epoch))
}

package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore implements CounterStore with a mutex so the
// increment-with-ceiling contract holds under concurrency.
type memStore struct {
	mu       sync.Mutex
	counters map[string]int
	err      error
}

func newMemStore() *memStore {
	return &memStore{counters: make(map[string]int)}
}

func (s *memStore) key(identifier, action string, windowStart time.Time) string {
	return identifier + "|" + action + "|" + windowStart.UTC().Format(time.RFC3339)
}

func (s *memStore) IncrementWithCeiling(_ context.Context, identifier, action string, windowStart time.Time, _, limit int) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, false, s.err
	}
	k := s.key(identifier, action, windowStart)
	if s.counters[k] >= limit {
		return 0, false, nil
	}
	s.counters[k]++
	return s.counters[k], true, nil
}

func (s *memStore) Count(_ context.Context, identifier, action string, windowStart time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	return s.counters[s.key(identifier, action, windowStart)], nil
}

func fixedClock(l *Limiter, at time.Time) {
	l.now = func() time.Time { return at }
}

func TestLimiter_AllowsUnderLimit(t *testing.T) {
	l := NewLimiter(newMemStore())
	ctx := context.Background()

	res, err := l.Check(ctx, UserIdentifier("u1"), "generate", 3, 10)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 3, res.Limit)
	assert.Equal(t, 2, res.Remaining)
}

func TestLimiter_DeniesAtLimit(t *testing.T) {
	l := NewLimiter(newMemStore())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := l.Check(ctx, "ip:1.2.3.4", "generate", 3, 10)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d should be allowed", i+1)
	}

	res, err := l.Check(ctx, "ip:1.2.3.4", "generate", 3, 10)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
}

func TestLimiter_DeniedAttemptsDoNotCount(t *testing.T) {
	store := newMemStore()
	l := NewLimiter(store)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := l.Check(ctx, "ip:9.9.9.9", "generate", 2, 10)
		require.NoError(t, err)
	}

	// Counter stays at the ceiling; the three rejects did not increment.
	res, err := l.Peek(ctx, "ip:9.9.9.9", "generate", 2, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Remaining)
	start, _ := window(time.Now(), 10)
	count, err := store.Count(ctx, "ip:9.9.9.9", "generate", start)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestLimiter_ResetAtIsNextWindowStart(t *testing.T) {
	l := NewLimiter(newMemStore())
	at := time.Date(2026, 3, 1, 12, 34, 56, 0, time.UTC)
	fixedClock(l, at)

	res, err := l.Check(context.Background(), "ip:1.1.1.1", "generate", 1, 15)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 45, 0, 0, time.UTC), res.ResetAt)
}

func TestLimiter_NewWindowResetsCount(t *testing.T) {
	l := NewLimiter(newMemStore())
	ctx := context.Background()

	fixedClock(l, time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC))
	res, err := l.Check(ctx, "ip:5.5.5.5", "generate", 1, 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = l.Check(ctx, "ip:5.5.5.5", "generate", 1, 1)
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	// Next minute is a fresh bucket.
	fixedClock(l, time.Date(2026, 3, 1, 12, 1, 5, 0, time.UTC))
	res, err = l.Check(ctx, "ip:5.5.5.5", "generate", 1, 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestLimiter_DifferentIdentifiersIndependent(t *testing.T) {
	l := NewLimiter(newMemStore())
	ctx := context.Background()

	res, err := l.Check(ctx, "ip:1.1.1.1", "generate", 1, 10)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = l.Check(ctx, "ip:1.1.1.1", "generate", 1, 10)
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	res, err = l.Check(ctx, "ip:2.2.2.2", "generate", 1, 10)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestLimiter_InvalidArgs(t *testing.T) {
	l := NewLimiter(newMemStore())
	ctx := context.Background()

	_, err := l.Check(ctx, "", "generate", 1, 1)
	assert.Error(t, err)
	_, err = l.Check(ctx, "ip:1.1.1.1", "", 1, 1)
	assert.Error(t, err)
	_, err = l.Check(ctx, "ip:1.1.1.1", "generate", 0, 1)
	assert.Error(t, err)
	_, err = l.Check(ctx, "ip:1.1.1.1", "generate", 1, 0)
	assert.Error(t, err)
}

// Allowed requests within a window never exceed the limit, for any
// interleaving of concurrent checks.
func TestLimiter_ConcurrentChecksNeverExceedLimit(t *testing.T) {
	const limit = 10
	const workers = 100

	l := NewLimiter(newMemStore())
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Check(ctx, "user:u-stress", "generate", limit, 60)
			assert.NoError(t, err)
			results <- res.Allowed
		}()
	}
	wg.Wait()
	close(results)

	allowed := 0
	for ok := range results {
		if ok {
			allowed++
		}
	}
	assert.Equal(t, limit, allowed)
}

func TestGate_FailOpen(t *testing.T) {
	res := Gate(Result{Limit: 5, ResetAt: time.Now()}, errors.New("store down"), FailOpen)
	assert.True(t, res.Allowed)
	assert.Equal(t, 5, res.Remaining)
}

func TestGate_FailClosed(t *testing.T) {
	res := Gate(Result{Limit: 5}, errors.New("store down"), FailClosed)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
}

func TestGate_NoErrorPassesThrough(t *testing.T) {
	in := Result{Allowed: false, Limit: 5, Remaining: 0}
	out := Gate(in, nil, FailOpen)
	assert.Equal(t, in, out)
}

func TestLimiter_StoreErrorSurfacedWithMetadata(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("connection refused")
	l := NewLimiter(store)

	res, err := l.Check(context.Background(), "ip:1.1.1.1", "generate", 7, 10)
	require.Error(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 7, res.Limit)
	assert.False(t, res.ResetAt.IsZero())
}

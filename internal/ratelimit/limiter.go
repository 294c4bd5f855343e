package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// FailurePolicy decides what a gate does when the counter store is
// unreachable. A legitimate limit-exceeded result always denies
// regardless of policy.
type FailurePolicy int

const (
	FailOpen FailurePolicy = iota
	FailClosed
)

// Limiter performs fixed-window rate limiting on top of a CounterStore.
// Windows are bucketed by flooring the current time to the window length,
// so a key's counter row is keyed by (identifier, action, bucket start).
// Denied attempts are not counted against the window; burst abuse is
// absorbed by the Redis middleware in front of the API.
type Limiter struct {
	store CounterStore
	now   func() time.Time
}

func NewLimiter(store CounterStore) *Limiter {
	return &Limiter{store: store, now: time.Now}
}

// Check atomically counts a request against the (identifier, action)
// window and reports whether it may proceed. On a store error the
// returned Result carries the window metadata with Allowed=false; the
// caller applies its FailurePolicy via Gate.
func (l *Limiter) Check(ctx context.Context, identifier, action string, limit, windowMinutes int) (Result, error) {
	if err := validateArgs(identifier, action, limit, windowMinutes); err != nil {
		return Result{}, err
	}

	start, resetAt := window(l.now(), windowMinutes)
	res := Result{Limit: limit, ResetAt: resetAt}

	count, incremented, err := l.store.IncrementWithCeiling(ctx, identifier, action, start, windowMinutes, limit)
	if err != nil {
		return res, err
	}
	if !incremented {
		return res, nil
	}

	res.Allowed = true
	res.Remaining = limit - count
	return res, nil
}

// Peek reports the window state without counting. Used for early-reject
// gate checks and for error messaging.
func (l *Limiter) Peek(ctx context.Context, identifier, action string, limit, windowMinutes int) (Result, error) {
	if err := validateArgs(identifier, action, limit, windowMinutes); err != nil {
		return Result{}, err
	}

	start, resetAt := window(l.now(), windowMinutes)
	res := Result{Limit: limit, ResetAt: resetAt}

	count, err := l.store.Count(ctx, identifier, action, start)
	if err != nil {
		return res, err
	}

	res.Allowed = count < limit
	res.Remaining = max(limit-count, 0)
	return res, nil
}

// Gate resolves a check outcome under the given failure policy:
// infrastructure errors are logged and turned into allow (FailOpen) or
// deny (FailClosed); error-free results pass through untouched.
func Gate(res Result, err error, policy FailurePolicy) Result {
	if err == nil {
		return res
	}
	if policy == FailOpen {
		slog.Warn("rate limiter: store error, failing open", "error", err)
		res.Allowed = true
		res.Remaining = res.Limit
		return res
	}
	slog.Warn("rate limiter: store error, failing closed", "error", err)
	res.Allowed = false
	res.Remaining = 0
	return res
}

func validateArgs(identifier, action string, limit, windowMinutes int) error {
	if identifier == "" || action == "" {
		return fmt.Errorf("rate limit: identifier and action are required")
	}
	if limit < 1 || windowMinutes < 1 {
		return fmt.Errorf("rate limit: limit and window must be at least 1")
	}
	return nil
}

func window(now time.Time, windowMinutes int) (start, resetAt time.Time) {
	d := time.Duration(windowMinutes) * time.Minute
	start = now.UTC().Truncate(d)
	return start, start.Add(d)
}

package quota

import (
	"context"
	"log/slog"

	"github.com/snaplist-app/snaplist/internal/ratelimit"
)

const (
	// Anonymous creations count against a fixed 24-hour window.
	anonymousWindowMinutes = 1440
	anonymousAction        = "create"
)

// AnonymousLimiter caps creations per IP address per day. The cheap gate
// check is an optimization that fails open on infrastructure errors; the
// Record increment is what actually enforces the cap, and its denial is
// authoritative even when the gate already passed.
type AnonymousLimiter struct {
	limiter    *ratelimit.Limiter
	dailyLimit int
}

func NewAnonymousLimiter(limiter *ratelimit.Limiter, dailyLimit int) *AnonymousLimiter {
	return &AnonymousLimiter{limiter: limiter, dailyLimit: dailyLimit}
}

// CheckDailyLimit is the boolean early-reject gate. It reads the counter
// without incrementing; a store error logs and allows.
func (a *AnonymousLimiter) CheckDailyLimit(ctx context.Context, ipAddress string) bool {
	res, err := a.limiter.Peek(ctx, ratelimit.IPIdentifier(ipAddress), anonymousAction, a.dailyLimit, anonymousWindowMinutes)
	if err != nil {
		slog.Warn("anonymous limiter: gate check failed, allowing", "error", err, "ip", ipAddress)
		return true
	}
	return res.Allowed
}

// Record counts the creation against the IP's daily window. Its result
// is authoritative: a deny here blocks the request regardless of the
// earlier gate, while infrastructure errors still fail open.
func (a *AnonymousLimiter) Record(ctx context.Context, ipAddress string) ratelimit.Result {
	res, err := a.limiter.Check(ctx, ratelimit.IPIdentifier(ipAddress), anonymousAction, a.dailyLimit, anonymousWindowMinutes)
	return ratelimit.Gate(res, err, ratelimit.FailOpen)
}

// Snapshot is the projection used for the limit-exceeded message.
func (a *AnonymousLimiter) Snapshot(ctx context.Context, ipAddress string) (*AnonymousSnapshot, error) {
	res, err := a.limiter.Peek(ctx, ratelimit.IPIdentifier(ipAddress), anonymousAction, a.dailyLimit, anonymousWindowMinutes)
	if err != nil {
		return nil, err
	}
	return &AnonymousSnapshot{
		RemainingToday: res.Remaining,
		DailyLimit:     a.dailyLimit,
		ResetAt:        res.ResetAt,
	}, nil
}

// DailyLimit exposes the configured cap for error payloads.
func (a *AnonymousLimiter) DailyLimit() int { return a.dailyLimit }

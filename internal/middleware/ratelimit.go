package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// BurstLimiter provides per-IP sliding-window throttling backed by Redis
// sorted sets. It is the outer protection on unauthenticated surfaces
// (login, register, webhook); metered creation quotas live in the
// ratelimit and quota packages, not here.
type BurstLimiter struct {
	client    redis.Cmdable
	scope     string
	maxReqs   int
	windowSec int
}

// NewBurstLimiter creates a limiter allowing maxReqs per windowSec seconds
// per client IP. scope namespaces the Redis keys so different route groups
// get independent budgets.
func NewBurstLimiter(client redis.Cmdable, scope string, maxReqs, windowSec int) *BurstLimiter {
	return &BurstLimiter{client: client, scope: scope, maxReqs: maxReqs, windowSec: windowSec}
}

// Middleware returns an HTTP middleware enforcing the limit. On Redis
// errors it fails open: burst protection is best-effort and must never
// take the API down with it.
func (bl *BurstLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r)
		key := "burst:" + bl.scope + ":" + ip

		allowed, err := bl.allow(r.Context(), key)
		if err != nil {
			slog.Warn("burst limiter: redis error, failing open", "error", err, "ip", ip, "scope", bl.scope)
			next.ServeHTTP(w, r)
			return
		}

		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(bl.windowSec))
			http.Error(w, `{"error":"too many requests"}`, http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (bl *BurstLimiter) allow(ctx context.Context, key string) (bool, error) {
	now := time.Now()
	windowStart := float64(now.Add(-time.Duration(bl.windowSec) * time.Second).UnixMilli())
	member := fmt.Sprintf("%d", now.UnixNano())
	score := float64(now.UnixMilli())

	pipe := bl.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%f", windowStart))
	countCmd := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{Score: score, Member: member})
	pipe.Expire(ctx, key, time.Duration(bl.windowSec)*time.Second+time.Second)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return false, err
	}

	return countCmd.Val() < int64(bl.maxReqs), nil
}

// ClientIP extracts the caller's IP, preferring forwarded headers set by
// the reverse proxy over the socket address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for i := 0; i < len(xff); i++ {
			if xff[i] == ',' {
				return xff[:i]
			}
		}
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

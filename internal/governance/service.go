package governance

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/snaplist-app/snaplist/internal/config"
	"github.com/snaplist-app/snaplist/internal/metrics"
	"github.com/snaplist-app/snaplist/internal/quota"
	"github.com/snaplist-app/snaplist/internal/ratelimit"
)

// ActionGenerate names the metered copy-generation operation.
const ActionGenerate = "generate"

// Error codes carried by a denying Decision.
const (
	CodeRateLimited         = "RATE_LIMITED"
	CodeAnonymousDailyLimit = "ANONYMOUS_DAILY_LIMIT_EXCEEDED"
	CodeQuotaExceeded       = "QUOTA_EXCEEDED"
)

// Identity is a resolved authenticated caller; nil means anonymous.
type Identity struct {
	UserID uuid.UUID
}

// Decision is the gate verdict for a metered request. Exactly one of the
// deny codes is set when Allowed is false, together with the projection
// the client needs for its error message.
type Decision struct {
	Allowed   bool                     `json:"allowed"`
	ErrorCode string                   `json:"error_code,omitempty"`
	RateLimit ratelimit.Result         `json:"rate_limit"`
	Quota     *quota.Snapshot          `json:"quota,omitempty"`
	Anonymous *quota.AnonymousSnapshot `json:"anonymous,omitempty"`
}

// Service sequences the gates in front of a unit of metered work:
// the fixed-window rate limit first, then the per-IP daily cap for
// anonymous callers or the quota decrement for authenticated ones. The
// decrement runs last because it is the consequential mutation; a unit
// consumed here is only returned by an explicit refund.
type Service struct {
	limiter  *ratelimit.Limiter
	anon     *quota.AnonymousLimiter
	quotaSvc *quota.Service
	cfg      config.LimitsConfig
}

func NewService(limiter *ratelimit.Limiter, anon *quota.AnonymousLimiter, quotaSvc *quota.Service, cfg config.LimitsConfig) *Service {
	return &Service{limiter: limiter, anon: anon, quotaSvc: quotaSvc, cfg: cfg}
}

// EvaluateRequest decides whether one unit of metered work may proceed.
// Rate-limit infrastructure errors fail open; quota store errors fail
// closed and surface as the returned error.
func (s *Service) EvaluateRequest(ctx context.Context, identity *Identity, ipAddress, action string) (*Decision, error) {
	if ipAddress == "" {
		return nil, fmt.Errorf("governance: ip address is required")
	}
	if action == "" {
		return nil, fmt.Errorf("governance: action is required")
	}

	identifier := ratelimit.IPIdentifier(ipAddress)
	if identity != nil {
		identifier = ratelimit.UserIdentifier(identity.UserID.String())
	}

	res, err := s.limiter.Check(ctx, identifier, action, s.cfg.GenerateLimit, s.cfg.GenerateWindowMinutes)
	res = ratelimit.Gate(res, err, ratelimit.FailOpen)
	if !res.Allowed {
		metrics.GateDecisionsTotal.WithLabelValues(action, "rate_limited").Inc()
		return &Decision{ErrorCode: CodeRateLimited, RateLimit: res}, nil
	}

	if identity == nil {
		return s.evaluateAnonymous(ctx, ipAddress, action, res)
	}
	return s.evaluateAuthenticated(ctx, identity.UserID, action, res)
}

func (s *Service) evaluateAnonymous(ctx context.Context, ipAddress, action string, rateRes ratelimit.Result) (*Decision, error) {
	// Early-reject gate; cheap, fails open. The Record call below is the
	// authoritative count — a request can never bypass the cap by
	// slipping past the gate, because Record's own ceiling denies it.
	if !s.anon.CheckDailyLimit(ctx, ipAddress) {
		metrics.GateDecisionsTotal.WithLabelValues(action, "anonymous_daily_limit").Inc()
		return &Decision{
			ErrorCode: CodeAnonymousDailyLimit,
			RateLimit: rateRes,
			Anonymous: s.anonymousSnapshot(ctx, ipAddress),
		}, nil
	}

	recorded := s.anon.Record(ctx, ipAddress)
	if !recorded.Allowed {
		metrics.GateDecisionsTotal.WithLabelValues(action, "anonymous_daily_limit").Inc()
		return &Decision{
			ErrorCode: CodeAnonymousDailyLimit,
			RateLimit: rateRes,
			Anonymous: &quota.AnonymousSnapshot{
				RemainingToday: recorded.Remaining,
				DailyLimit:     recorded.Limit,
				ResetAt:        recorded.ResetAt,
			},
		}, nil
	}

	metrics.GateDecisionsTotal.WithLabelValues(action, "allowed").Inc()
	return &Decision{
		Allowed:   true,
		RateLimit: rateRes,
		Anonymous: &quota.AnonymousSnapshot{
			RemainingToday: recorded.Remaining,
			DailyLimit:     recorded.Limit,
			ResetAt:        recorded.ResetAt,
		},
	}, nil
}

func (s *Service) evaluateAuthenticated(ctx context.Context, userID uuid.UUID, action string, rateRes ratelimit.Result) (*Decision, error) {
	ok, err := s.quotaSvc.Decrement(ctx, userID, 1)
	if err != nil {
		// Fail closed: an uncertain decrement must not admit the work.
		return nil, fmt.Errorf("evaluating quota: %w", err)
	}

	snap, snapErr := s.quotaSvc.GetQuota(ctx, userID)
	if snapErr != nil {
		// The decision stands; the projection is best-effort messaging.
		snap = nil
	}

	if !ok {
		metrics.GateDecisionsTotal.WithLabelValues(action, "quota_exceeded").Inc()
		return &Decision{ErrorCode: CodeQuotaExceeded, RateLimit: rateRes, Quota: snap}, nil
	}

	metrics.GateDecisionsTotal.WithLabelValues(action, "allowed").Inc()
	return &Decision{Allowed: true, RateLimit: rateRes, Quota: snap}, nil
}

func (s *Service) anonymousSnapshot(ctx context.Context, ipAddress string) *quota.AnonymousSnapshot {
	snap, err := s.anon.Snapshot(ctx, ipAddress)
	if err != nil {
		return &quota.AnonymousSnapshot{DailyLimit: s.anon.DailyLimit()}
	}
	return snap
}

// GetQuotaSnapshot exposes the read-only quota projection.
func (s *Service) GetQuotaSnapshot(ctx context.Context, userID uuid.UUID) (*quota.Snapshot, error) {
	return s.quotaSvc.GetQuota(ctx, userID)
}

// SetPlan switches a user's tier. Operator-only.
func (s *Service) SetPlan(ctx context.Context, userID uuid.UUID, isPro bool) error {
	return s.quotaSvc.SetPlan(ctx, userID, isPro)
}

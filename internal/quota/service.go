package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/snaplist-app/snaplist/internal/config"
)

// Service owns the per-user creation allowance: an atomic daily+bonus
// decrement and a read-only snapshot projection. Quota mutations fail
// closed — a store error rejects the request rather than risking an
// uncounted creation.
type Service struct {
	repo Repository
	cfg  config.LimitsConfig
	now  func() time.Time
}

func NewService(repo Repository, cfg config.LimitsConfig) *Service {
	return &Service{repo: repo, cfg: cfg, now: time.Now}
}

// Decrement consumes amount creations from the user's daily pool, then
// the bonus pool. Returns false on exhaustion with nothing mutated.
func (s *Service) Decrement(ctx context.Context, userID uuid.UUID, amount int) (bool, error) {
	if amount < 1 {
		return false, fmt.Errorf("quota: amount must be at least 1")
	}

	// Ensure the row exists so the conditional update has something to
	// match; the update itself is the only decision point.
	if _, err := s.repo.GetOrCreate(ctx, userID); err != nil {
		return false, err
	}

	return s.repo.Decrement(ctx, userID, amount, utcMidnight(s.now()), s.cfg.DailyAllowance, s.cfg.ProDailyAllowance)
}

// Refund is the explicit compensating increment for a consumed unit.
// Cancellation mid-flight never refunds automatically; callers that want
// refund-on-failure invoke this themselves.
func (s *Service) Refund(ctx context.Context, userID uuid.UUID, amount int) error {
	if amount < 1 {
		return fmt.Errorf("quota: amount must be at least 1")
	}
	return s.repo.Refund(ctx, userID, amount, s.cfg.DailyAllowance, s.cfg.ProDailyAllowance)
}

// Grant adds purchased credits to the user's bonus pool.
func (s *Service) Grant(ctx context.Context, userID uuid.UUID, credits int) error {
	if credits < 1 {
		return fmt.Errorf("quota: credits must be at least 1")
	}
	return s.repo.AddBonus(ctx, userID, credits)
}

// SetPlan moves the user between the free and pro tiers. Today's
// remaining pool is untouched; the new allowance applies from the next
// daily reset.
func (s *Service) SetPlan(ctx context.Context, userID uuid.UUID, isPro bool) error {
	return s.repo.SetPlan(ctx, userID, isPro)
}

// GetQuota returns the user's quota snapshot. This is a pure projection:
// a stale last_reset is reported as a full daily pool without writing
// anything back; the row mutates only on the next decrement.
func (s *Service) GetQuota(ctx context.Context, userID uuid.UUID) (*Snapshot, error) {
	q, err := s.repo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("getting quota: %w", err)
	}
	return s.project(q), nil
}

func (s *Service) project(q *UserQuota) *Snapshot {
	allowance := s.cfg.DailyAllowance
	if q.IsPro {
		allowance = s.cfg.ProDailyAllowance
	}

	now := s.now()
	remaining := q.RemainingToday
	if q.LastReset.Before(utcMidnight(now)) {
		remaining = allowance
	}

	return &Snapshot{
		RemainingToday: remaining,
		BonusRemaining: q.BonusRemaining,
		DailyAllowance: allowance,
		IsPro:          q.IsPro,
		ResetAt:        nextUTCMidnight(now),
	}
}

// utcMidnight floors t to the UTC day boundary.
func utcMidnight(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}

// nextUTCMidnight is the upcoming UTC midnight strictly after t.
func nextUTCMidnight(t time.Time) time.Time {
	return utcMidnight(t).Add(24 * time.Hour)
}

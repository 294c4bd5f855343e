package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the quota ledger persistence. Decrement and Refund must
// be linearizable per user: the store performs the conditional balance
// mutation in a single statement, never read-then-write.
type Repository interface {
	// GetOrCreate returns the user's quota row, creating one if it does
	// not exist. Fresh rows carry last_reset at the epoch so the first
	// decrement or projection lazily fills the daily allowance.
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*UserQuota, error)

	// Decrement consumes amount units, lazily resetting the daily pool if
	// lastReset predates today, drawing from the daily pool first and the
	// bonus pool for any shortfall. It returns false, mutating nothing,
	// when daily+bonus cannot cover the full amount.
	Decrement(ctx context.Context, userID uuid.UUID, amount int, today time.Time, baseAllowance, proAllowance int) (bool, error)

	// Refund is the compensating increment for callers that consumed a
	// unit and then failed. Units return to the daily pool up to the
	// allowance; overflow lands in the bonus pool.
	Refund(ctx context.Context, userID uuid.UUID, amount int, baseAllowance, proAllowance int) error

	// AddBonus grants bonus creations (credit purchases, reconciliation).
	AddBonus(ctx context.Context, userID uuid.UUID, credits int) error

	// SetPlan switches the user between the free and pro tiers. The new
	// daily allowance takes effect at the next lazy reset.
	SetPlan(ctx context.Context, userID uuid.UUID, isPro bool) error
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

func (r *postgresRepository) GetOrCreate(ctx context.Context, userID uuid.UUID) (*UserQuota, error) {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_quotas (user_id) VALUES ($1)
		 ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		return nil, fmt.Errorf("ensuring user quota: %w", err)
	}

	var q UserQuota
	err = r.pool.QueryRow(ctx,
		`SELECT user_id, remaining_today, bonus_remaining, is_pro, last_reset, updated_at
		 FROM user_quotas WHERE user_id = $1`, userID,
	).Scan(&q.UserID, &q.RemainingToday, &q.BonusRemaining, &q.IsPro, &q.LastReset, &q.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("fetching user quota: %w", err)
	}
	return &q, nil
}

// Decrement is one conditional UPDATE: the lazy daily reset, the
// daily-then-bonus split, and the sufficiency check all evaluate against
// the same row version, so concurrent calls serialize on the row and
// at most floor(balance/amount) of them succeed.
func (r *postgresRepository) Decrement(ctx context.Context, userID uuid.UUID, amount int, today time.Time, baseAllowance, proAllowance int) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE user_quotas SET
		   remaining_today = CASE
		     WHEN last_reset < $2 THEN GREATEST((CASE WHEN is_pro THEN $5 ELSE $4 END) - $3, 0)
		     WHEN remaining_today >= $3 THEN remaining_today - $3
		     ELSE 0
		   END,
		   bonus_remaining = CASE
		     WHEN last_reset < $2 THEN bonus_remaining - GREATEST($3 - (CASE WHEN is_pro THEN $5 ELSE $4 END), 0)
		     WHEN remaining_today >= $3 THEN bonus_remaining
		     ELSE bonus_remaining - ($3 - remaining_today)
		   END,
		   last_reset = CASE WHEN last_reset < $2 THEN $2 ELSE last_reset END,
		   updated_at = NOW()
		 WHERE user_id = $1
		   AND (CASE WHEN last_reset < $2 THEN (CASE WHEN is_pro THEN $5 ELSE $4 END) ELSE remaining_today END) + bonus_remaining >= $3`,
		userID, today, amount, baseAllowance, proAllowance)
	if err != nil {
		return false, fmt.Errorf("decrementing quota: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *postgresRepository) Refund(ctx context.Context, userID uuid.UUID, amount int, baseAllowance, proAllowance int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE user_quotas SET
		   remaining_today = LEAST(remaining_today + $2, CASE WHEN is_pro THEN $4 ELSE $3 END),
		   bonus_remaining = bonus_remaining + GREATEST(remaining_today + $2 - (CASE WHEN is_pro THEN $4 ELSE $3 END), 0),
		   updated_at = NOW()
		 WHERE user_id = $1`,
		userID, amount, baseAllowance, proAllowance)
	if err != nil {
		return fmt.Errorf("refunding quota: %w", err)
	}
	return nil
}

func (r *postgresRepository) AddBonus(ctx context.Context, userID uuid.UUID, credits int) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_quotas (user_id, bonus_remaining) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET
		   bonus_remaining = user_quotas.bonus_remaining + $2,
		   updated_at = NOW()`, userID, credits)
	if err != nil {
		return fmt.Errorf("adding bonus credits: %w", err)
	}
	return nil
}

func (r *postgresRepository) SetPlan(ctx context.Context, userID uuid.UUID, isPro bool) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_quotas (user_id, is_pro) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET
		   is_pro = $2,
		   updated_at = NOW()`, userID, isPro)
	if err != nil {
		return fmt.Errorf("setting plan: %w", err)
	}
	return nil
}

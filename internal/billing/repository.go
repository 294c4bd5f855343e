package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrPaymentNotFound is returned when no payment exists for a session id.
var ErrPaymentNotFound = errors.New("payment not found")

// Repository is the payment-record persistence. ClaimShortfall carries
// the exactly-once contract: concurrent claims for the same payment
// serialize on the payment row, and the cumulative granted amount never
// exceeds what is owed.
type Repository interface {
	// Insert records a payment. Replayed webhooks for the same session id
	// are a no-op.
	Insert(ctx context.Context, p *Payment) error

	// GetBySession returns the payment or ErrPaymentNotFound.
	GetBySession(ctx context.Context, sessionID string) (*Payment, error)

	// ListUndercredited returns payments whose granted credits are below
	// what their amount derives to under the given rate.
	ListUndercredited(ctx context.Context, creditsPerDollar int) ([]Payment, error)

	// ClaimShortfall raises the payment's granted amount to owed and adds
	// the difference to the user's bonus balance, atomically. Returns the
	// credits added; zero when the payment is already fully credited.
	ClaimShortfall(ctx context.Context, sessionID string, owed int) (int, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

func (r *postgresRepository) Insert(ctx context.Context, p *Payment) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO payments (session_id, user_id, amount_cents)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (session_id) DO NOTHING`,
		p.SessionID, p.UserID, p.AmountCents)
	if err != nil {
		return fmt.Errorf("inserting payment: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetBySession(ctx context.Context, sessionID string) (*Payment, error) {
	var p Payment
	err := r.pool.QueryRow(ctx,
		`SELECT session_id, user_id, amount_cents, credits_granted, created_at, updated_at
		 FROM payments WHERE session_id = $1`, sessionID,
	).Scan(&p.SessionID, &p.UserID, &p.AmountCents, &p.CreditsGranted, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying payment: %w", err)
	}
	return &p, nil
}

func (r *postgresRepository) ListUndercredited(ctx context.Context, creditsPerDollar int) ([]Payment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT session_id, user_id, amount_cents, credits_granted, created_at, updated_at
		 FROM payments
		 WHERE credits_granted < amount_cents * $1 / 100
		 ORDER BY created_at`, creditsPerDollar)
	if err != nil {
		return nil, fmt.Errorf("listing undercredited payments: %w", err)
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.SessionID, &p.UserID, &p.AmountCents, &p.CreditsGranted, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning payment: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// ClaimShortfall locks the payment row for the duration of the claim, so
// a replayed webhook and an operator-triggered reconcile racing on the
// same payment grant the shortfall once between them. The lock is scoped
// to the single payment row; other payments proceed unaffected.
func (r *postgresRepository) ClaimShortfall(ctx context.Context, sessionID string, owed int) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning claim transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var userID uuid.UUID
	var granted int
	err = tx.QueryRow(ctx,
		`SELECT user_id, credits_granted FROM payments WHERE session_id = $1 FOR UPDATE`,
		sessionID,
	).Scan(&userID, &granted)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrPaymentNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("locking payment: %w", err)
	}

	// Shortfall saturates at zero: a fully credited payment is a no-op.
	delta := owed - granted
	if delta <= 0 {
		return 0, tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE payments SET credits_granted = credits_granted + $2, updated_at = NOW()
		 WHERE session_id = $1`, sessionID, delta); err != nil {
		return 0, fmt.Errorf("raising granted credits: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO user_quotas (user_id, bonus_remaining) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET
		   bonus_remaining = user_quotas.bonus_remaining + $2,
		   updated_at = NOW()`, userID, delta); err != nil {
		return 0, fmt.Errorf("granting bonus credits: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing claim: %w", err)
	}
	return delta, nil
}

package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CounterStore is the keyed-counter persistence behind the limiter.
// IncrementWithCeiling must be atomic: two concurrent calls for the same
// key must never both observe "below limit" and both pass the ceiling.
type CounterStore interface {
	// IncrementWithCeiling increments the counter for
	// (identifier, action, windowStart) unless the increment would exceed
	// limit. It returns the post-increment count and whether the
	// increment was applied. A denied call leaves the counter unchanged.
	IncrementWithCeiling(ctx context.Context, identifier, action string, windowStart time.Time, windowMinutes, limit int) (int, bool, error)

	// Count returns the current count for the key, 0 if no row exists.
	Count(ctx context.Context, identifier, action string, windowStart time.Time) (int, error)
}

// PostgresStore implements CounterStore on the rate_limit_counters table.
// The check-and-increment is a single INSERT .. ON CONFLICT .. DO UPDATE
// statement so the ceiling check and the mutation are one indivisible
// step at the database; no row lock is held across round trips.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) IncrementWithCeiling(ctx context.Context, identifier, action string, windowStart time.Time, windowMinutes, limit int) (int, bool, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`INSERT INTO rate_limit_counters (identifier, action, window_start, window_minutes, count)
		 VALUES ($1, $2, $3, $4, 1)
		 ON CONFLICT (identifier, action, window_start)
		 DO UPDATE SET count = rate_limit_counters.count + 1, updated_at = NOW()
		 WHERE rate_limit_counters.count < $5
		 RETURNING count`,
		identifier, action, windowStart, windowMinutes, limit,
	).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		// Ceiling reached: the conditional update matched no row.
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("incrementing rate limit counter: %w", err)
	}
	return count, true, nil
}

func (s *PostgresStore) Count(ctx context.Context, identifier, action string, windowStart time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT count FROM rate_limit_counters
		 WHERE identifier = $1 AND action = $2 AND window_start = $3`,
		identifier, action, windowStart,
	).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading rate limit counter: %w", err)
	}
	return count, nil
}

// PruneBefore deletes counter rows whose window ended before the cutoff.
// Superseded rows are harmless; this only bounds table growth.
func (s *PostgresStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM rate_limit_counters
		 WHERE window_start + (window_minutes * INTERVAL '1 minute') < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning rate limit counters: %w", err)
	}
	return tag.RowsAffected(), nil
}

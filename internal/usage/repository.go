package usage

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository handles usage_log PostgreSQL operations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new usage Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert persists a single usage record.
func (r *Repository) Insert(ctx context.Context, rec *Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO usage_log (id, user_id, identifier, action, allowed, error_code, listing_id, ip_address, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.UserID, rec.Identifier, rec.Action, rec.Allowed, rec.ErrorCode, rec.ListingID, rec.IPAddress, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting usage record: %w", err)
	}
	return nil
}

// ListByUser returns paginated usage records for a user with optional filters.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, params ListParams) ([]Record, int64, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 || params.PageSize > 100 {
		params.PageSize = 20
	}

	var conditions []string
	var args []any
	argIdx := 1

	conditions = append(conditions, fmt.Sprintf("user_id = $%d", argIdx))
	args = append(args, userID)
	argIdx++

	if params.Action != "" {
		conditions = append(conditions, fmt.Sprintf("action = $%d", argIdx))
		args = append(args, params.Action)
		argIdx++
	}

	if params.Allowed != nil {
		conditions = append(conditions, fmt.Sprintf("allowed = $%d", argIdx))
		args = append(args, *params.Allowed)
		argIdx++
	}

	if params.From != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, *params.From)
		argIdx++
	}

	if params.To != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", argIdx))
		args = append(args, *params.To)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM usage_log WHERE %s", where)
	var totalCount int64
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("counting usage records: %w", err)
	}

	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(
		`SELECT id, user_id, identifier, action, allowed, error_code, listing_id, ip_address, created_at
		 FROM usage_log WHERE %s
		 ORDER BY created_at DESC
		 LIMIT $%d OFFSET $%d`, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying usage records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Identifier, &rec.Action,
			&rec.Allowed, &rec.ErrorCode, &rec.ListingID, &rec.IPAddress, &rec.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning usage record: %w", err)
		}
		records = append(records, rec)
	}

	return records, totalCount, nil
}

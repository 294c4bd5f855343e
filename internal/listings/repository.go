package listings

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	Create(ctx context.Context, l *Listing) error
	GetByID(ctx context.Context, id uuid.UUID) (*Listing, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*Listing, error)
	CountByOwner(ctx context.Context, ownerID uuid.UUID) (int64, error)
	Update(ctx context.Context, l *Listing) error
	SoftDelete(ctx context.Context, id uuid.UUID) error

	AddFeedback(ctx context.Context, f *Feedback) error
	ListFeedback(ctx context.Context, listingID uuid.UUID, limit, offset int) ([]*Feedback, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

func (r *postgresRepository) Create(ctx context.Context, l *Listing) error {
	query := `
		INSERT INTO listings (id, owner_user_id, title, description, category, price_cents, condition, photo_urls, generated_copy, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.pool.Exec(ctx, query,
		l.ID, l.OwnerUserID, l.Title, l.Description, l.Category,
		l.PriceCents, l.Condition, l.PhotoURLs, l.GeneratedCopy, l.Status,
		l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting listing: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Listing, error) {
	query := `
		SELECT id, owner_user_id, title, description, category, price_cents, condition, photo_urls, generated_copy, status, created_at, updated_at, deleted_at
		FROM listings
		WHERE id = $1 AND deleted_at IS NULL`

	l := &Listing{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&l.ID, &l.OwnerUserID, &l.Title, &l.Description, &l.Category,
		&l.PriceCents, &l.Condition, &l.PhotoURLs, &l.GeneratedCopy, &l.Status,
		&l.CreatedAt, &l.UpdatedAt, &l.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying listing by id: %w", err)
	}
	return l, nil
}

func (r *postgresRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*Listing, error) {
	query := `
		SELECT id, owner_user_id, title, description, category, price_cents, condition, photo_urls, generated_copy, status, created_at, updated_at, deleted_at
		FROM listings
		WHERE owner_user_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing listings: %w", err)
	}
	defer rows.Close()

	var result []*Listing
	for rows.Next() {
		l := &Listing{}
		err := rows.Scan(
			&l.ID, &l.OwnerUserID, &l.Title, &l.Description, &l.Category,
			&l.PriceCents, &l.Condition, &l.PhotoURLs, &l.GeneratedCopy, &l.Status,
			&l.CreatedAt, &l.UpdatedAt, &l.DeletedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning listing row: %w", err)
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

func (r *postgresRepository) CountByOwner(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM listings WHERE owner_user_id = $1 AND deleted_at IS NULL`,
		ownerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting listings: %w", err)
	}
	return count, nil
}

func (r *postgresRepository) Update(ctx context.Context, l *Listing) error {
	query := `
		UPDATE listings
		SET title = $2, description = $3, category = $4, price_cents = $5, condition = $6, photo_urls = $7, generated_copy = $8, status = $9, updated_at = $10
		WHERE id = $1 AND deleted_at IS NULL`

	tag, err := r.pool.Exec(ctx, query,
		l.ID, l.Title, l.Description, l.Category, l.PriceCents,
		l.Condition, l.PhotoURLs, l.GeneratedCopy, l.Status, l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("updating listing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("listing %s not found", l.ID)
	}
	return nil
}

func (r *postgresRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE listings SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("deleting listing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("listing %s not found", id)
	}
	return nil
}

func (r *postgresRepository) AddFeedback(ctx context.Context, f *Feedback) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO listing_feedback (id, listing_id, user_id, helpful, comment, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		f.ID, f.ListingID, f.UserID, f.Helpful, f.Comment, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting feedback: %w", err)
	}
	return nil
}

func (r *postgresRepository) ListFeedback(ctx context.Context, listingID uuid.UUID, limit, offset int) ([]*Feedback, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, listing_id, user_id, helpful, comment, created_at
		 FROM listing_feedback
		 WHERE listing_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`, listingID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing feedback: %w", err)
	}
	defer rows.Close()

	var result []*Feedback
	for rows.Next() {
		f := &Feedback{}
		if err := rows.Scan(&f.ID, &f.ListingID, &f.UserID, &f.Helpful, &f.Comment, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning feedback row: %w", err)
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

package listings

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Listing struct {
	ID            uuid.UUID       `json:"id"`
	OwnerUserID   uuid.UUID       `json:"owner_user_id"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	Category      string          `json:"category"`
	PriceCents    int             `json:"price_cents"`
	Condition     string          `json:"condition"`
	PhotoURLs     []string        `json:"photo_urls,omitempty"`
	GeneratedCopy json.RawMessage `json:"generated_copy,omitempty"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	DeletedAt     *time.Time      `json:"deleted_at,omitempty"`
}

// Feedback is a buyer reaction to a listing's generated copy. Votes feed
// future prompt tuning; they never affect quotas.
type Feedback struct {
	ID        uuid.UUID  `json:"id"`
	ListingID uuid.UUID  `json:"listing_id"`
	UserID    *uuid.UUID `json:"user_id,omitempty"`
	Helpful   bool       `json:"helpful"`
	Comment   string     `json:"comment,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type CreateListingRequest struct {
	Title       string   `json:"title" validate:"required,min=1,max=255"`
	Description string   `json:"description" validate:"max=5000"`
	Category    string   `json:"category" validate:"required,min=1,max=100"`
	PriceCents  int      `json:"price_cents" validate:"gte=0"`
	Condition   string   `json:"condition" validate:"omitempty,oneof=new like_new good fair poor"`
	PhotoURLs   []string `json:"photo_urls" validate:"max=12,dive,url"`
}

type UpdateListingRequest struct {
	Title       *string  `json:"title" validate:"omitempty,min=1,max=255"`
	Description *string  `json:"description" validate:"omitempty,max=5000"`
	Category    *string  `json:"category" validate:"omitempty,min=1,max=100"`
	PriceCents  *int     `json:"price_cents" validate:"omitempty,gte=0"`
	Condition   *string  `json:"condition" validate:"omitempty,oneof=new like_new good fair poor"`
	Status      *string  `json:"status" validate:"omitempty,oneof=draft active sold archived"`
	PhotoURLs   []string `json:"photo_urls" validate:"omitempty,max=12,dive,url"`
}

type FeedbackRequest struct {
	Helpful bool   `json:"helpful"`
	Comment string `json:"comment" validate:"max=2000"`
}

// ListParams holds pagination parameters for listing queries.
type ListParams struct {
	Page     int
	PageSize int
}

func DefaultListParams() ListParams {
	return ListParams{Page: 1, PageSize: 20}
}

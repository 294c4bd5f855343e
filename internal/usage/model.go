package usage

import (
	"time"

	"github.com/google/uuid"
)

// Record matches the usage_log table schema. One row per gate decision,
// allowed or denied, written asynchronously off the request path.
type Record struct {
	ID         uuid.UUID  `json:"id"`
	UserID     *uuid.UUID `json:"user_id,omitempty"`
	Identifier string     `json:"identifier"`
	Action     string     `json:"action"`
	Allowed    bool       `json:"allowed"`
	ErrorCode  string     `json:"error_code,omitempty"`
	ListingID  *uuid.UUID `json:"listing_id,omitempty"`
	IPAddress  string     `json:"ip_address,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ListParams holds pagination and filtering parameters for usage queries.
type ListParams struct {
	Action   string
	Allowed  *bool
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// DefaultListParams returns sensible defaults.
func DefaultListParams() ListParams {
	return ListParams{
		Page:     1,
		PageSize: 20,
	}
}

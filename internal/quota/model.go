package quota

import (
	"time"

	"github.com/google/uuid"
)

// UserQuota matches the user_quotas table schema. RemainingToday resets
// lazily at the UTC day boundary; BonusRemaining persists across days and
// is only consumed once the daily pool is exhausted.
type UserQuota struct {
	UserID         uuid.UUID `json:"user_id"`
	RemainingToday int       `json:"remaining_today"`
	BonusRemaining int       `json:"bonus_remaining"`
	IsPro          bool      `json:"is_pro"`
	LastReset      time.Time `json:"last_reset"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Snapshot is the read-only quota projection returned to clients.
type Snapshot struct {
	RemainingToday int       `json:"creations_remaining_today"`
	BonusRemaining int       `json:"bonus_remaining"`
	DailyAllowance int       `json:"daily_allowance"`
	IsPro          bool      `json:"is_pro"`
	ResetAt        time.Time `json:"reset_at"`
}

// AnonymousSnapshot is the projection for an IP-scoped daily cap.
type AnonymousSnapshot struct {
	RemainingToday int       `json:"creations_remaining_today"`
	DailyLimit     int       `json:"daily_limit"`
	ResetAt        time.Time `json:"reset_at"`
}

package billing

import (
	"time"

	"github.com/google/uuid"
)

// Payment matches the payments table schema, keyed by the provider's
// checkout session id. CreditsGranted is cumulative; the invariant is
// that it never exceeds the credits owed for the payment, which makes
// reconciliation safe to re-run.
type Payment struct {
	SessionID      string    `json:"session_id"`
	UserID         uuid.UUID `json:"user_id"`
	AmountCents    int       `json:"amount_cents"`
	CreditsGranted int       `json:"credits_granted"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// CreditGrantResult is the per-payment outcome of a reconciliation run.
// It is never persisted; the durable effect is the payment's cumulative
// granted amount and the user's bonus balance.
type CreditGrantResult struct {
	SessionID    string `json:"session_id"`
	Success      bool   `json:"success"`
	CreditsAdded int    `json:"credits_added"`
	Error        string `json:"error,omitempty"`
}

// ReconcileSummary aggregates a bulk reconciliation run.
type ReconcileSummary struct {
	Processed         int                 `json:"processed"`
	Successful        int                 `json:"successful"`
	Failed            int                 `json:"failed"`
	TotalCreditsAdded int                 `json:"total_credits_added"`
	Results           []CreditGrantResult `json:"results"`
}

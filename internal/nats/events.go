package nats

import (
	"time"

	"github.com/google/uuid"
)

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

// Stream names.
const (
	StreamEvents = "SNAPLIST_EVENTS"
)

// Subject constants.
const (
	SubjectUsageEvent   = "snaplist.events.usage"
	SubjectPaymentEvent = "snaplist.events.payment"
)

// UsageEvent records one pass through the generation gate, allowed or
// denied. UserID is nil for anonymous callers; Identifier carries the
// scoped form ("user:<id>" or "ip:<addr>") either way.
type UsageEvent struct {
	UserID     *uuid.UUID `json:"user_id,omitempty"`
	Identifier string     `json:"identifier"`
	Action     string     `json:"action"`
	Allowed    bool       `json:"allowed"`
	ErrorCode  string     `json:"error_code,omitempty"`
	ListingID  string     `json:"listing_id,omitempty"`
	IPAddress  string     `json:"ip_address,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// PaymentEvent is published when a payment webhook lands, before
// reconciliation runs. Consumers use it for bookkeeping, not granting.
type PaymentEvent struct {
	SessionID   string    `json:"session_id"`
	UserID      uuid.UUID `json:"user_id"`
	AmountCents int       `json:"amount_cents"`
	Timestamp   time.Time `json:"timestamp"`
}

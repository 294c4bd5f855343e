package ratelimit

import "time"

// Result is the outcome of a rate-limit check.
type Result struct {
	Allowed   bool      `json:"allowed"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// Counter matches the rate_limit_counters table schema. One row exists
// per (identifier, action, window_start); the row is superseded when the
// next window begins and is eventually pruned.
type Counter struct {
	Identifier    string    `json:"identifier"`
	Action        string    `json:"action"`
	WindowStart   time.Time `json:"window_start"`
	WindowMinutes int       `json:"window_minutes"`
	Count         int       `json:"count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Identifier scope prefixes. Keys are "user:<uuid>" or "ip:<addr>".
func UserIdentifier(userID string) string { return "user:" + userID }
func IPIdentifier(addr string) string     { return "ip:" + addr }

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks Config for production-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	// JWT secrets
	if len(c.JWT.AccessSecret) < 32 {
		errs = append(errs, "JWT_ACCESS_SECRET must be at least 32 characters")
	}
	if len(c.JWT.RefreshSecret) < 32 {
		errs = append(errs, "JWT_REFRESH_SECRET must be at least 32 characters")
	}
	if c.JWT.AccessSecret != "" && c.JWT.RefreshSecret != "" && c.JWT.AccessSecret == c.JWT.RefreshSecret {
		errs = append(errs, "JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}

	// DB password
	if c.DB.Password == "" {
		errs = append(errs, "DB_PASSWORD is required")
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1–65535, got %d", c.Server.Port))
	}
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Sprintf("DB_PORT must be 1–65535, got %d", c.DB.Port))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1–65535, got %d", c.Redis.Port))
	}

	// Metering limits
	if c.Limits.DailyAllowance < 1 {
		errs = append(errs, "LIMITS_DAILY_ALLOWANCE must be at least 1")
	}
	if c.Limits.ProDailyAllowance < c.Limits.DailyAllowance {
		errs = append(errs, "LIMITS_PRO_DAILY_ALLOWANCE must not be below LIMITS_DAILY_ALLOWANCE")
	}
	if c.Limits.AnonymousDailyLimit < 1 {
		errs = append(errs, "LIMITS_ANONYMOUS_DAILY must be at least 1")
	}
	if c.Limits.GenerateLimit < 1 || c.Limits.GenerateWindowMinutes < 1 {
		errs = append(errs, "LIMITS_GENERATE_MAX and LIMITS_GENERATE_WINDOW_MINUTES must be at least 1")
	}

	if c.Billing.CreditsPerDollar < 1 {
		errs = append(errs, "BILLING_CREDITS_PER_DOLLAR must be at least 1")
	}

	// Webhook secret: warn only
	if c.Billing.WebhookSecret == "" {
		slog.Warn("BILLING_WEBHOOK_SECRET is empty — payment webhook has no signature check")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}

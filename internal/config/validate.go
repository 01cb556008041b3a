package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate checks Config for production-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	// JWT secret: tokens come from the external identity provider but are
	// verified locally with a shared secret.
	if len(c.JWT.Secret) < 32 {
		errs = append(errs, "JWT_SECRET must be at least 32 characters")
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

	// Rollover schedule must parse if set
	if c.Rollover.Schedule != "" {
		if _, err := cron.ParseStandard(c.Rollover.Schedule); err != nil {
			errs = append(errs, fmt.Sprintf("ROLLOVER_SCHEDULE is not a valid cron expression: %v", err))
		}
	}

	if c.Quota.MaxRequestsPerMinute < 1 {
		errs = append(errs, "QUOTA_MAX_REQUESTS_PER_MINUTE must be positive")
	}

	// Admin key: warn only
	if c.Admin.APIKey == "" {
		slog.Warn("ADMIN_API_KEY is empty — admin endpoints are disabled")
	}

	if len(errs) > 0 {
		return errors.New("invalid configuration:\n  - " + strings.Join(errs, "\n  - "))
	}
	return nil
}

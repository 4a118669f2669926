package config

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Validate checks the configuration for errors.
// Returns nil if valid, or ValidationErrors if invalid.
func Validate(cfg Config) error {
	var errs ValidationErrors

	// WEBHOOK_SECRET is required: with an empty secret every signature
	// check fails and the service rejects all traffic.
	if cfg.WebhookSecret == "" {
		errs = append(errs, ValidationError{
			Field:   "WEBHOOK_SECRET",
			Message: "required",
		})
	}

	durations := []struct {
		field string
		raw   string
	}{
		{"RATE_LIMIT_WINDOW", cfg.RateLimitWindowStr},
		{"RATE_LIMIT_BLOCK", cfg.RateLimitBlockStr},
		{"RETRY_BASE_DELAY", cfg.RetryBaseDelayStr},
		{"REQUEST_TIMEOUT", cfg.RequestTimeoutStr},
		{"DB_OP_TIMEOUT", cfg.DBOpTimeoutStr},
		{"HTTP_SHUTDOWN_TIMEOUT", cfg.HTTPShutdownTimeoutStr},
		{"RETENTION_MAX_AGE", cfg.RetentionMaxAgeStr},
		{"LEADER_RETRY_INTERVAL", cfg.LeaderRetryIntervalStr},
		{"LEADER_HEARTBEAT_INTERVAL", cfg.LeaderHeartbeatIntervalStr},
	}
	for _, item := range durations {
		if item.raw == "" {
			continue
		}
		d, err := time.ParseDuration(item.raw)
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   item.field,
				Message: fmt.Sprintf("invalid duration: %v", err),
			})
		} else if d <= 0 {
			errs = append(errs, ValidationError{
				Field:   item.field,
				Message: "must be positive",
			})
		}
	}

	if cfg.RetentionEnabled {
		if cfg.DatabaseURL == "" {
			errs = append(errs, ValidationError{
				Field:   "RETENTION_ENABLED",
				Message: "requires DATABASE_URL (retention prunes the delivery tables)",
			})
		}
		if _, err := cron.ParseStandard(cfg.RetentionSchedule); err != nil {
			errs = append(errs, ValidationError{
				Field:   "RETENTION_SCHEDULE",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}

	if cfg.ArchiveBucket != "" && cfg.ArchiveRegion == "" {
		errs = append(errs, ValidationError{
			Field:   "ARCHIVE_REGION",
			Message: "required when ARCHIVE_BUCKET is set",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

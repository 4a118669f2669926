package config

import (
	"encoding/json"
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the webhook service.
// Values are loaded from environment variables; see printUsage() for the full list.
type Config struct {
	WebhookSecret string `json:"webhook_secret"`
	HTTPAddr      string `json:"http_addr"`

	// DatabaseURL is optional: when empty, deliveries are recorded in memory only.
	DatabaseURL string `json:"database_url,omitempty"`

	// RedisAddr is optional: when empty, rate limiting is per-process in memory.
	RedisAddr string `json:"redis_addr,omitempty"`

	RateLimitPoints    int           `json:"rate_limit_points"`
	RateLimitWindow    time.Duration `json:"-"`
	RateLimitWindowStr string        `json:"rate_limit_window"`
	RateLimitBlock     time.Duration `json:"-"`
	RateLimitBlockStr  string        `json:"rate_limit_block"`

	RetryMaxAttempts  int           `json:"retry_max_attempts"`
	RetryBaseDelay    time.Duration `json:"-"`
	RetryBaseDelayStr string        `json:"retry_base_delay"`

	// RequestTimeout bounds a single delivery end to end, including retry backoff.
	RequestTimeout    time.Duration `json:"-"`
	RequestTimeoutStr string        `json:"request_timeout"`

	MaxBodyBytes int64 `json:"max_body_bytes"`

	DBOpTimeout    time.Duration `json:"-"`
	DBOpTimeoutStr string        `json:"db_op_timeout"`

	DBMaxOpenConns       int           `json:"db_max_open_conns"`
	DBMaxIdleConns       int           `json:"db_max_idle_conns"`
	DBConnMaxLifetime    time.Duration `json:"-"`
	DBConnMaxLifetimeStr string        `json:"db_conn_max_lifetime"`
	DBConnMaxIdleTime    time.Duration `json:"-"`
	DBConnMaxIdleTimeStr string        `json:"db_conn_max_idle_time"`

	HTTPShutdownTimeout    time.Duration `json:"-"`
	HTTPShutdownTimeoutStr string        `json:"http_shutdown_timeout"`

	MetricsEnabled bool   `json:"metrics_enabled"`
	MetricsAddr    string `json:"metrics_addr"`
	MetricsPath    string `json:"metrics_path"`

	// ValidationSchemaFile overrides the built-in payload schemas when set.
	ValidationSchemaFile string `json:"validation_schema_file,omitempty"`

	GitHubAPIURL string `json:"github_api_url"`
	GitHubToken  string `json:"github_token,omitempty"`

	// CrawlerBin: path to the crawler binary invoked on push events.
	// When empty, crawl requests are logged but not executed.
	CrawlerBin string `json:"crawler_bin,omitempty"`

	// ArchiveBucket: 0 value disables payload archiving.
	ArchiveBucket     string `json:"archive_bucket,omitempty"`
	ArchiveRegion     string `json:"archive_region,omitempty"`
	ArchiveBufferSize int    `json:"archive_buffer_size"`
	ArchiveMaxRetries int    `json:"archive_max_retries"`

	RetentionEnabled  bool   `json:"retention_enabled"`
	RetentionSchedule string `json:"retention_schedule"`

	RetentionMaxAge    time.Duration `json:"-"`
	RetentionMaxAgeStr string        `json:"retention_max_age"`

	// LeaderLockKey: all instances sharing the same database must use the same key.
	LeaderLockKey int64 `json:"leader_lock_key"`

	// LeaderRetryInterval determines the maximum failover gap.
	LeaderRetryInterval    time.Duration `json:"-"`
	LeaderRetryIntervalStr string        `json:"leader_retry_interval"`

	// LeaderHeartbeatInterval: pings the dedicated connection to detect local
	// connection death. Does NOT renew the advisory lock.
	LeaderHeartbeatInterval    time.Duration `json:"-"`
	LeaderHeartbeatIntervalStr string        `json:"leader_heartbeat_interval"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	cfg := Config{
		WebhookSecret:              os.Getenv("WEBHOOK_SECRET"),
		HTTPAddr:                   os.Getenv("HTTP_ADDR"),
		DatabaseURL:                os.Getenv("DATABASE_URL"),
		RedisAddr:                  os.Getenv("REDIS_ADDR"),
		RateLimitWindowStr:         os.Getenv("RATE_LIMIT_WINDOW"),
		RateLimitBlockStr:          os.Getenv("RATE_LIMIT_BLOCK"),
		RetryBaseDelayStr:          os.Getenv("RETRY_BASE_DELAY"),
		RequestTimeoutStr:          os.Getenv("REQUEST_TIMEOUT"),
		DBOpTimeoutStr:             os.Getenv("DB_OP_TIMEOUT"),
		DBConnMaxLifetimeStr:       os.Getenv("DB_CONN_MAX_LIFETIME"),
		DBConnMaxIdleTimeStr:       os.Getenv("DB_CONN_MAX_IDLE_TIME"),
		HTTPShutdownTimeoutStr:     os.Getenv("HTTP_SHUTDOWN_TIMEOUT"),
		MetricsEnabled:             os.Getenv("METRICS_ENABLED") == "true",
		MetricsAddr:                os.Getenv("METRICS_ADDR"),
		MetricsPath:                os.Getenv("METRICS_PATH"),
		ValidationSchemaFile:       os.Getenv("VALIDATION_SCHEMA_FILE"),
		GitHubAPIURL:               os.Getenv("GITHUB_API_URL"),
		GitHubToken:                os.Getenv("GITHUB_TOKEN"),
		CrawlerBin:                 os.Getenv("CRAWLER_BIN"),
		ArchiveBucket:              os.Getenv("ARCHIVE_BUCKET"),
		ArchiveRegion:              os.Getenv("ARCHIVE_REGION"),
		RetentionEnabled:           os.Getenv("RETENTION_ENABLED") == "true",
		RetentionSchedule:          os.Getenv("RETENTION_SCHEDULE"),
		RetentionMaxAgeStr:         os.Getenv("RETENTION_MAX_AGE"),
		LeaderRetryIntervalStr:     os.Getenv("LEADER_RETRY_INTERVAL"),
		LeaderHeartbeatIntervalStr: os.Getenv("LEADER_HEARTBEAT_INTERVAL"),
	}

	if pointsStr := os.Getenv("RATE_LIMIT_POINTS"); pointsStr != "" {
		if n, err := strconv.Atoi(pointsStr); err == nil && n > 0 {
			cfg.RateLimitPoints = n
		} else {
			log.Printf("config: invalid RATE_LIMIT_POINTS %q (must be a positive integer), using default 100", pointsStr)
		}
	}
	if cfg.RateLimitPoints == 0 {
		cfg.RateLimitPoints = 100
	}

	if attemptsStr := os.Getenv("RETRY_MAX_ATTEMPTS"); attemptsStr != "" {
		if n, err := strconv.Atoi(attemptsStr); err == nil && n > 0 {
			cfg.RetryMaxAttempts = n
		} else {
			log.Printf("config: invalid RETRY_MAX_ATTEMPTS %q (must be a positive integer), using default 3", attemptsStr)
		}
	}
	if cfg.RetryMaxAttempts == 0 {
		cfg.RetryMaxAttempts = 3
	}

	if bodyStr := os.Getenv("MAX_BODY_BYTES"); bodyStr != "" {
		if n, err := strconv.Atoi(bodyStr); err == nil && n > 0 {
			cfg.MaxBodyBytes = int64(n)
		} else {
			log.Printf("config: invalid MAX_BODY_BYTES %q (must be a positive integer), using default 1048576", bodyStr)
		}
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = 1 << 20
	}

	if bufStr := os.Getenv("ARCHIVE_BUFFER_SIZE"); bufStr != "" {
		if n, err := strconv.Atoi(bufStr); err == nil && n > 0 {
			cfg.ArchiveBufferSize = n
		} else {
			log.Printf("config: invalid ARCHIVE_BUFFER_SIZE %q (must be a positive integer), using default 256", bufStr)
		}
	}
	if cfg.ArchiveBufferSize == 0 {
		cfg.ArchiveBufferSize = 256
	}

	if retriesStr := os.Getenv("ARCHIVE_MAX_RETRIES"); retriesStr != "" {
		if n, err := strconv.Atoi(retriesStr); err == nil && n > 0 {
			cfg.ArchiveMaxRetries = n
		}
	}
	if cfg.ArchiveMaxRetries == 0 {
		cfg.ArchiveMaxRetries = 5
	}

	if maxOpenStr := os.Getenv("DB_MAX_OPEN_CONNS"); maxOpenStr != "" {
		if n, err := strconv.Atoi(maxOpenStr); err == nil && n > 0 {
			cfg.DBMaxOpenConns = n
		}
	}
	if cfg.DBMaxOpenConns == 0 {
		cfg.DBMaxOpenConns = 25
	}

	if maxIdleStr := os.Getenv("DB_MAX_IDLE_CONNS"); maxIdleStr != "" {
		if n, err := strconv.Atoi(maxIdleStr); err == nil && n > 0 {
			cfg.DBMaxIdleConns = n
		}
	}
	if cfg.DBMaxIdleConns == 0 {
		cfg.DBMaxIdleConns = 5
	}

	if lockKeyStr := os.Getenv("LEADER_LOCK_KEY"); lockKeyStr != "" {
		if n, err := strconv.Atoi(lockKeyStr); err == nil && n > 0 {
			cfg.LeaderLockKey = int64(n)
		} else {
			log.Printf("config: invalid LEADER_LOCK_KEY %q (must be a positive integer), using default 842917", lockKeyStr)
		}
	}
	if cfg.LeaderLockKey == 0 {
		cfg.LeaderLockKey = 842917
	}

	// Support Railway's PORT variable as fallback for HTTP_ADDR.
	if cfg.HTTPAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			cfg.HTTPAddr = ":" + port
		} else {
			cfg.HTTPAddr = ":8080"
		}
	}
	if cfg.RateLimitWindowStr == "" {
		cfg.RateLimitWindowStr = "60s"
	}
	if cfg.RateLimitBlockStr == "" {
		cfg.RateLimitBlockStr = "15m"
	}
	if cfg.RetryBaseDelayStr == "" {
		cfg.RetryBaseDelayStr = "1s"
	}
	if cfg.RequestTimeoutStr == "" {
		cfg.RequestTimeoutStr = "30s"
	}
	if cfg.DBOpTimeoutStr == "" {
		cfg.DBOpTimeoutStr = "5s"
	}
	if cfg.DBConnMaxLifetimeStr == "" {
		cfg.DBConnMaxLifetimeStr = "30m"
	}
	if cfg.DBConnMaxIdleTimeStr == "" {
		cfg.DBConnMaxIdleTimeStr = "5m"
	}
	if cfg.HTTPShutdownTimeoutStr == "" {
		cfg.HTTPShutdownTimeoutStr = "10s"
	}
	if cfg.MetricsAddr == "" {
		cfg.MetricsAddr = ":9090"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.GitHubAPIURL == "" {
		cfg.GitHubAPIURL = "https://api.github.com"
	}
	if cfg.RetentionSchedule == "" {
		cfg.RetentionSchedule = "0 3 * * *"
	}
	if cfg.RetentionMaxAgeStr == "" {
		cfg.RetentionMaxAgeStr = "720h"
	}
	if cfg.LeaderRetryIntervalStr == "" {
		cfg.LeaderRetryIntervalStr = "5s"
	}
	if cfg.LeaderHeartbeatIntervalStr == "" {
		cfg.LeaderHeartbeatIntervalStr = "2s"
	}

	// Parse durations; validation is handled separately by Validate().
	if d, err := time.ParseDuration(cfg.RateLimitWindowStr); err == nil {
		cfg.RateLimitWindow = d
	}
	if d, err := time.ParseDuration(cfg.RateLimitBlockStr); err == nil {
		cfg.RateLimitBlock = d
	}
	if d, err := time.ParseDuration(cfg.RetryBaseDelayStr); err == nil {
		cfg.RetryBaseDelay = d
	}
	if d, err := time.ParseDuration(cfg.RequestTimeoutStr); err == nil {
		cfg.RequestTimeout = d
	}
	if d, err := time.ParseDuration(cfg.DBOpTimeoutStr); err == nil {
		cfg.DBOpTimeout = d
	}
	if d, err := time.ParseDuration(cfg.DBConnMaxLifetimeStr); err == nil {
		cfg.DBConnMaxLifetime = d
	}
	if d, err := time.ParseDuration(cfg.DBConnMaxIdleTimeStr); err == nil {
		cfg.DBConnMaxIdleTime = d
	}
	if d, err := time.ParseDuration(cfg.HTTPShutdownTimeoutStr); err == nil {
		cfg.HTTPShutdownTimeout = d
	}
	if d, err := time.ParseDuration(cfg.RetentionMaxAgeStr); err == nil {
		cfg.RetentionMaxAge = d
	}
	if d, err := time.ParseDuration(cfg.LeaderRetryIntervalStr); err == nil {
		cfg.LeaderRetryInterval = d
	}
	if d, err := time.ParseDuration(cfg.LeaderHeartbeatIntervalStr); err == nil {
		cfg.LeaderHeartbeatInterval = d
	}

	return cfg
}

// MaskedJSON returns the configuration as JSON with secrets masked.
func (c Config) MaskedJSON() ([]byte, error) {
	masked := struct {
		WebhookSecret           string `json:"webhook_secret"`
		HTTPAddr                string `json:"http_addr"`
		DatabaseURL             string `json:"database_url,omitempty"`
		RedisAddr               string `json:"redis_addr,omitempty"`
		RateLimitPoints         int    `json:"rate_limit_points"`
		RateLimitWindow         string `json:"rate_limit_window"`
		RateLimitBlock          string `json:"rate_limit_block"`
		RetryMaxAttempts        int    `json:"retry_max_attempts"`
		RetryBaseDelay          string `json:"retry_base_delay"`
		RequestTimeout          string `json:"request_timeout"`
		MaxBodyBytes            int64  `json:"max_body_bytes"`
		DBOpTimeout             string `json:"db_op_timeout"`
		DBMaxOpenConns          int    `json:"db_max_open_conns"`
		DBMaxIdleConns          int    `json:"db_max_idle_conns"`
		DBConnMaxLifetime       string `json:"db_conn_max_lifetime"`
		DBConnMaxIdleTime       string `json:"db_conn_max_idle_time"`
		HTTPShutdownTimeout     string `json:"http_shutdown_timeout"`
		MetricsEnabled          bool   `json:"metrics_enabled"`
		MetricsAddr             string `json:"metrics_addr"`
		MetricsPath             string `json:"metrics_path"`
		ValidationSchemaFile    string `json:"validation_schema_file,omitempty"`
		GitHubAPIURL            string `json:"github_api_url"`
		GitHubToken             string `json:"github_token,omitempty"`
		CrawlerBin              string `json:"crawler_bin,omitempty"`
		ArchiveBucket           string `json:"archive_bucket,omitempty"`
		ArchiveRegion           string `json:"archive_region,omitempty"`
		ArchiveBufferSize       int    `json:"archive_buffer_size"`
		ArchiveMaxRetries       int    `json:"archive_max_retries"`
		RetentionEnabled        bool   `json:"retention_enabled"`
		RetentionSchedule       string `json:"retention_schedule"`
		RetentionMaxAge         string `json:"retention_max_age"`
		LeaderLockKey           int64  `json:"leader_lock_key"`
		LeaderRetryInterval     string `json:"leader_retry_interval"`
		LeaderHeartbeatInterval string `json:"leader_heartbeat_interval"`
	}{
		WebhookSecret:           maskValue(c.WebhookSecret),
		HTTPAddr:                c.HTTPAddr,
		DatabaseURL:             maskSecret(c.DatabaseURL),
		RedisAddr:               c.RedisAddr,
		RateLimitPoints:         c.RateLimitPoints,
		RateLimitWindow:         c.RateLimitWindowStr,
		RateLimitBlock:          c.RateLimitBlockStr,
		RetryMaxAttempts:        c.RetryMaxAttempts,
		RetryBaseDelay:          c.RetryBaseDelayStr,
		RequestTimeout:          c.RequestTimeoutStr,
		MaxBodyBytes:            c.MaxBodyBytes,
		DBOpTimeout:             c.DBOpTimeoutStr,
		DBMaxOpenConns:          c.DBMaxOpenConns,
		DBMaxIdleConns:          c.DBMaxIdleConns,
		DBConnMaxLifetime:       c.DBConnMaxLifetimeStr,
		DBConnMaxIdleTime:       c.DBConnMaxIdleTimeStr,
		HTTPShutdownTimeout:     c.HTTPShutdownTimeoutStr,
		MetricsEnabled:          c.MetricsEnabled,
		MetricsAddr:             c.MetricsAddr,
		MetricsPath:             c.MetricsPath,
		ValidationSchemaFile:    c.ValidationSchemaFile,
		GitHubAPIURL:            c.GitHubAPIURL,
		GitHubToken:             maskValue(c.GitHubToken),
		CrawlerBin:              c.CrawlerBin,
		ArchiveBucket:           c.ArchiveBucket,
		ArchiveRegion:           c.ArchiveRegion,
		ArchiveBufferSize:       c.ArchiveBufferSize,
		ArchiveMaxRetries:       c.ArchiveMaxRetries,
		RetentionEnabled:        c.RetentionEnabled,
		RetentionSchedule:       c.RetentionSchedule,
		RetentionMaxAge:         c.RetentionMaxAgeStr,
		LeaderLockKey:           c.LeaderLockKey,
		LeaderRetryInterval:     c.LeaderRetryIntervalStr,
		LeaderHeartbeatInterval: c.LeaderHeartbeatIntervalStr,
	}
	return json.MarshalIndent(masked, "", "  ")
}

// maskSecret masks a secret value, preserving only the URI scheme if present.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if len(s) >= len(scheme) && s[:len(scheme)] == scheme {
			return scheme + "***"
		}
	}
	return "***"
}

// maskValue masks a secret entirely.
func maskValue(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

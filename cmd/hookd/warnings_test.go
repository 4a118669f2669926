package main

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"github.com/cbwinslow/crawl4ai/internal/config"
)

// captureLogOutput calls logConfigWarnings with the given config and returns
// the captured log output as a string.
func captureLogOutput(cfg *config.Config) string {
	var buf bytes.Buffer
	original := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(original)

	logConfigWarnings(cfg)
	return buf.String()
}

func TestLogConfigWarnings_BareConfig(t *testing.T) {
	cfg := &config.Config{
		WebhookSecret: "secret",
	}
	output := captureLogOutput(cfg)

	if !strings.Contains(output, "WARNING [P0]: DATABASE_URL not set") {
		t.Error("expected in-memory store P0 warning, got:", output)
	}
	if !strings.Contains(output, "WARNING [P1]: REDIS_ADDR not set") {
		t.Error("expected per-process rate limit P1 warning, got:", output)
	}
	if !strings.Contains(output, "WARNING [P1]: METRICS_ENABLED=false") {
		t.Error("expected metrics P1 warning, got:", output)
	}
	if !strings.Contains(output, "INFO: GITHUB_TOKEN not set") {
		t.Error("expected token INFO, got:", output)
	}

	// Retention INFO only applies with a database configured.
	if strings.Contains(output, "RETENTION_ENABLED=false") {
		t.Error("did not expect retention INFO without a database, got:", output)
	}
}

func TestLogConfigWarnings_DatabaseWithoutRetention(t *testing.T) {
	cfg := &config.Config{
		WebhookSecret: "secret",
		DatabaseURL:   "postgres://localhost/webhooks",
	}
	output := captureLogOutput(cfg)

	if strings.Contains(output, "WARNING [P0]: DATABASE_URL not set") {
		t.Error("did not expect in-memory warning with a database, got:", output)
	}
	if !strings.Contains(output, "INFO: RETENTION_ENABLED=false") {
		t.Error("expected unbounded-growth INFO, got:", output)
	}
}

func TestLogConfigWarnings_FullyConfigured(t *testing.T) {
	cfg := &config.Config{
		WebhookSecret:    "secret",
		DatabaseURL:      "postgres://localhost/webhooks",
		RedisAddr:        "localhost:6379",
		MetricsEnabled:   true,
		RetentionEnabled: true,
		GitHubToken:      "ghp_abc",
	}
	output := captureLogOutput(cfg)

	if strings.Contains(output, "WARNING") {
		t.Error("expected no warnings for a fully configured service, got:", output)
	}
	if strings.Contains(output, "INFO") {
		t.Error("expected no info notes for a fully configured service, got:", output)
	}
}

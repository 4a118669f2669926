// Package crawl hands crawl requests to the external crawling engine.
// The engine is a separate long-running process; this package only
// enqueues work by invoking its CLI.
package crawl

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"time"

	"github.com/cbwinslow/crawl4ai/internal/dispatch"
)

const defaultInvokeTimeout = 2 * time.Minute

// CommandRequester invokes the engine binary once per request:
//
//	<bin> crawl --repo <repository> --ref <ref>
type CommandRequester struct {
	bin     string
	timeout time.Duration
}

func NewCommandRequester(bin string) *CommandRequester {
	return &CommandRequester{bin: bin, timeout: defaultInvokeTimeout}
}

func (r *CommandRequester) RequestCrawl(ctx context.Context, req dispatch.CrawlRequest) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	args := []string{"crawl", "--repo", req.Repository}
	if req.Ref != "" {
		args = append(args, "--ref", req.Ref)
	}

	cmd := exec.CommandContext(ctx, r.bin, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("crawl: invoke engine for %s: %w: %s", req.Repository, err, out)
	}

	log.Printf("crawl: requested repo=%s ref=%s reason=%q", req.Repository, req.Ref, req.Reason)
	return nil
}

// LogRequester records crawl requests without invoking anything. Used
// when no engine binary is configured (development, tests).
type LogRequester struct{}

func NewLogRequester() *LogRequester {
	return &LogRequester{}
}

func (r *LogRequester) RequestCrawl(_ context.Context, req dispatch.CrawlRequest) error {
	log.Printf("crawl: engine not configured, skipping repo=%s ref=%s reason=%q",
		req.Repository, req.Ref, req.Reason)
	return nil
}

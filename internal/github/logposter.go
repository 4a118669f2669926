package github

import (
	"context"
	"log"
)

// LogPoster logs comments instead of posting them. Used when no API token
// is configured, so handler flow stays identical in both modes.
type LogPoster struct{}

func NewLogPoster() *LogPoster {
	return &LogPoster{}
}

func (p *LogPoster) PostComment(_ context.Context, repo string, number int, body string) error {
	log.Printf("github: no token configured, skipping comment on %s#%d (%d bytes)", repo, number, len(body))
	return nil
}

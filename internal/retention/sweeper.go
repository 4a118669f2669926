// Package retention prunes delivery records past their retention age.
//
// The sweeper runs on a cron schedule and deletes transition rows and
// delivery heads recorded before the cutoff. Pruning is idempotent; a
// missed or doubled run only shifts when rows disappear, never what
// disappears.
package retention

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Store defines the interface for pruning aged delivery records.
type Store interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config holds sweeper configuration.
type Config struct {
	// Schedule is a standard cron expression.
	// Default: nightly at 03:00.
	Schedule string

	// MaxAge is how long delivery records are kept.
	// Default: 720 hours (30 days).
	MaxAge time.Duration

	// OpTimeout bounds a single prune pass.
	// Default: 1 minute.
	OpTimeout time.Duration
}

// DefaultConfig returns the default sweeper configuration.
func DefaultConfig() Config {
	return Config{
		Schedule:  "0 3 * * *",
		MaxAge:    720 * time.Hour,
		OpTimeout: time.Minute,
	}
}

// Sweeper deletes delivery records older than the retention age.
type Sweeper struct {
	config Config
	store  Store
	clock  func() time.Time
}

// New creates a new Sweeper. Zero config fields fall back to defaults.
func New(config Config, store Store) *Sweeper {
	def := DefaultConfig()
	if config.Schedule == "" {
		config.Schedule = def.Schedule
	}
	if config.MaxAge <= 0 {
		config.MaxAge = def.MaxAge
	}
	if config.OpTimeout <= 0 {
		config.OpTimeout = def.OpTimeout
	}
	return &Sweeper{config: config, store: store, clock: time.Now}
}

// WithClock overrides the time source. Only for tests.
func (s *Sweeper) WithClock(clock func() time.Time) *Sweeper {
	s.clock = clock
	return s
}

// Run starts the sweep schedule. It blocks until ctx is cancelled, then
// waits for any in-flight prune to finish.
func (s *Sweeper) Run(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(s.config.Schedule, func() { s.RunCycle(ctx) }); err != nil {
		return err
	}

	log.Printf("retention: started (schedule=%q, max_age=%s)", s.config.Schedule, s.config.MaxAge)
	c.Start()

	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	log.Println("retention: stopped")
	return nil
}

// RunCycle executes one prune pass.
func (s *Sweeper) RunCycle(ctx context.Context) {
	cutoff := s.clock().UTC().Add(-s.config.MaxAge)

	opCtx, cancel := context.WithTimeout(ctx, s.config.OpTimeout)
	defer cancel()

	pruned, err := s.store.PruneBefore(opCtx, cutoff)
	if err != nil {
		log.Printf("retention: prune failed (cutoff=%s): %v", cutoff.Format(time.RFC3339), err)
		return
	}
	if pruned > 0 {
		log.Printf("retention: pruned %d records older than %s", pruned, cutoff.Format(time.RFC3339))
	}
}

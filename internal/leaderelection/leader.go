// Package leaderelection elects the replica that runs singleton duties,
// currently the retention sweeper. Every hookd replica campaigns for one
// Postgres session advisory lock; whoever holds it runs the duties, the
// rest keep serving webhooks and re-campaign on an interval.
//
// The lock lives exactly as long as the session that took it. There is no
// TTL and nothing to renew: if the holder's connection dies, Postgres
// releases the lock server-side and some replica wins the next campaign.
// The heartbeat below only detects connection death locally, so a demoted
// leader stops pruning promptly instead of waiting for the next query.
package leaderelection

import (
	"context"
	"database/sql"
	"log"
	"time"
)

// Demotion reasons reported to the metrics sink.
const (
	ReasonShutdown = "shutdown"
	ReasonConnLost = "conn_lost"
)

// MetricsSink counts leadership changes. Implementations must not block.
type MetricsSink interface {
	LeaderStatusChanged(isLeader bool)
	LeaderAcquired()
	LeaderLost(reason string)
}

// pinger is the slice of *sql.Conn the hold loop needs.
type pinger interface {
	PingContext(ctx context.Context) error
}

// Elector campaigns for the advisory lock and runs the callbacks around
// each term of leadership.
type Elector struct {
	db        *sql.DB
	lockKey   int64
	retry     time.Duration // between campaigns while another replica leads
	heartbeat time.Duration // between connection pings while leading
	onElected func(ctx context.Context)
	onDemoted func()
	metrics   MetricsSink // optional, nil = disabled
}

// New returns an Elector campaigning for lockKey on db.
//
// onElected runs in a new goroutine at the start of every term; it should
// start the singleton duties and return. Its context is cancelled when
// the term ends. onDemoted runs synchronously after that cancellation and
// must block until the duties have fully stopped; it is called once per
// term, including on shutdown.
func New(
	db *sql.DB,
	lockKey int64,
	retry, heartbeat time.Duration,
	onElected func(ctx context.Context),
	onDemoted func(),
) *Elector {
	return &Elector{
		db:        db,
		lockKey:   lockKey,
		retry:     retry,
		heartbeat: heartbeat,
		onElected: onElected,
		onDemoted: onDemoted,
	}
}

// WithMetrics attaches a metrics sink to the elector.
func (e *Elector) WithMetrics(sink MetricsSink) *Elector {
	e.metrics = sink
	return e
}

// Run campaigns until ctx is cancelled. Each iteration either loses the
// campaign and sleeps, or wins and blocks for the whole term.
func (e *Elector) Run(ctx context.Context) {
	log.Printf("election: campaigning for lock %d (retry=%s, heartbeat=%s)",
		e.lockKey, e.retry, e.heartbeat)

	for ctx.Err() == nil {
		if won := e.campaign(ctx); !won {
			select {
			case <-ctx.Done():
			case <-time.After(e.retry):
			}
		}
	}
	log.Println("election: stopped")
}

// campaign takes a dedicated connection, tries the lock once, and when it
// wins holds the term until demotion. Advisory locks are session-scoped,
// so the connection must stay pinned for the whole term; closing it is
// what releases the lock.
func (e *Elector) campaign(ctx context.Context) bool {
	conn, err := e.db.Conn(ctx)
	if err != nil {
		log.Printf("election: no dedicated connection: %v", err)
		return false
	}
	defer conn.Close()

	var won bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", e.lockKey).Scan(&won); err != nil {
		log.Printf("election: lock attempt failed: %v", err)
		return false
	}
	if !won {
		return false
	}

	log.Printf("election: this replica leads (lock=%d), starting singleton duties", e.lockKey)
	if e.metrics != nil {
		e.metrics.LeaderStatusChanged(true)
		e.metrics.LeaderAcquired()
	}

	termCtx, endTerm := context.WithCancel(ctx)
	go e.onElected(termCtx)

	reason := holdTerm(ctx, conn, e.heartbeat)

	endTerm()
	e.onDemoted()

	if e.metrics != nil {
		e.metrics.LeaderStatusChanged(false)
		e.metrics.LeaderLost(reason)
	}
	log.Printf("election: term over (reason=%s), lock %d released with the connection", reason, e.lockKey)
	return true
}

// holdTerm pings the pinned connection until shutdown or connection
// death. The ping renews nothing; it only surfaces a dead session so
// duties stop before another replica's campaign succeeds.
func holdTerm(ctx context.Context, conn pinger, heartbeat time.Duration) string {
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ReasonShutdown
		case <-ticker.C:
			if err := conn.PingContext(ctx); err != nil {
				if ctx.Err() != nil {
					return ReasonShutdown
				}
				log.Printf("election: heartbeat failed, assuming lock lost: %v", err)
				return ReasonConnLost
			}
		}
	}
}

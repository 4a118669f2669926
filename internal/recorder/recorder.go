// Package recorder keeps the durable record of each delivery's lifecycle.
// Writes are best-effort: a store failure is logged and counted, never
// propagated to the pipeline.
package recorder

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/cbwinslow/crawl4ai/internal/domain"
)

// Store persists delivery head state and the append-only transition log.
type Store interface {
	UpsertDelivery(ctx context.Context, d domain.Delivery) error
	AppendTransition(ctx context.Context, tr domain.Transition) error
}

// MetricsSink counts recorder write failures.
// Must be non-blocking and fire-and-forget.
type MetricsSink interface {
	RecorderFailure()
}

type Recorder struct {
	store   Store
	metrics MetricsSink // optional, nil = disabled
	clock   func() time.Time
}

func New(store Store) *Recorder {
	return &Recorder{store: store, clock: time.Now}
}

// WithMetrics attaches a metrics sink to the recorder.
func (r *Recorder) WithMetrics(sink MetricsSink) *Recorder {
	r.metrics = sink
	return r
}

// WithClock overrides the time source. Only for tests.
func (r *Recorder) WithClock(clock func() time.Time) *Recorder {
	r.clock = clock
	return r
}

// Record writes the delivery head state and appends a transition for its
// current status. detail carries the failure text for error statuses.
// Errors never reach the caller: each failed write is logged and counted,
// and a failed head write does not suppress the transition append.
func (r *Recorder) Record(ctx context.Context, d domain.Delivery, detail string) {
	now := r.clock().UTC()
	d.RecordedAt = now

	if err := r.store.UpsertDelivery(ctx, d); err != nil {
		log.Printf("recorder: delivery=%s upsert failed: %v", d.DeliveryID, err)
		r.countFailure()
	}

	tr := domain.Transition{
		ID:         uuid.New(),
		DeliveryID: d.DeliveryID,
		Status:     d.Status,
		Detail:     detail,
		RecordedAt: now,
	}
	if err := r.store.AppendTransition(ctx, tr); err != nil {
		log.Printf("recorder: delivery=%s transition append failed: %v", d.DeliveryID, err)
		r.countFailure()
	}
}

func (r *Recorder) countFailure() {
	if r.metrics != nil {
		r.metrics.RecorderFailure()
	}
}

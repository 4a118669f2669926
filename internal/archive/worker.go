package archive

import (
	"context"
	"log"
	"time"
)

// Uploader stores one encoded object. Implemented by S3Uploader; tests
// substitute fakes.
type Uploader interface {
	Upload(ctx context.Context, key string, body []byte) error
}

// MetricsSink counts archive failures.
// Must be non-blocking and fire-and-forget.
type MetricsSink interface {
	ArchiveError()
}

// DrainTimeout is the maximum time to spend on buffered jobs during shutdown.
const DrainTimeout = 30 * time.Second

// Worker consumes the queue and uploads each job. One worker goroutine is
// enough: archiving is off the request path and mild lag is acceptable.
type Worker struct {
	queue    *Queue
	uploader Uploader
	metrics  MetricsSink // optional, nil = disabled
}

func NewWorker(queue *Queue, uploader Uploader) *Worker {
	return &Worker{queue: queue, uploader: uploader}
}

// WithMetrics attaches a metrics sink to the worker.
func (w *Worker) WithMetrics(sink MetricsSink) *Worker {
	w.metrics = sink
	return w
}

// Run processes jobs until ctx is cancelled, then drains what is buffered.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return
		case job := <-w.queue.Channel():
			w.process(ctx, job)
		}
	}
}

// drain uploads remaining buffered jobs after the shutdown signal, using
// a background context since the main one is already cancelled.
func (w *Worker) drain() {
	drainCtx, cancel := context.WithTimeout(context.Background(), DrainTimeout)
	defer cancel()

	count := 0
	for {
		select {
		case <-drainCtx.Done():
			log.Printf("archive: drain timeout, uploaded %d jobs", count)
			return
		case job := <-w.queue.Channel():
			w.process(drainCtx, job)
			count++
		default:
			if count > 0 {
				log.Printf("archive: drain complete, uploaded %d jobs", count)
			}
			return
		}
	}
}

func (w *Worker) process(ctx context.Context, job Job) {
	encoded, err := Encode(job)
	if err != nil {
		log.Printf("archive: delivery=%s encode failed: %v", job.DeliveryID, err)
		w.countError()
		return
	}

	if err := w.uploader.Upload(ctx, job.Key(), encoded); err != nil {
		log.Printf("archive: delivery=%s upload failed: %v", job.DeliveryID, err)
		w.countError()
		return
	}
}

func (w *Worker) countError() {
	if w.metrics != nil {
		w.metrics.ArchiveError()
	}
}

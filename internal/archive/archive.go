// Package archive ships raw webhook payloads to object storage for audit
// and replay. Archiving is fire-and-forget: the pipeline submits a job to
// a bounded queue and moves on; a full queue drops the job and counts it.
package archive

import (
	"fmt"
	"time"
)

// Job is one payload to archive.
type Job struct {
	DeliveryID string
	Event      string
	ReceivedAt time.Time
	Body       []byte // raw request bytes
}

// Key returns the object key for the job, partitioned by receipt date.
func (j Job) Key() string {
	return fmt.Sprintf("deliveries/%s/%s.json.gz",
		j.ReceivedAt.UTC().Format("2006/01/02"), j.DeliveryID)
}

// Queue is a bounded in-memory buffer between the pipeline and the
// archive worker.
type Queue struct {
	ch chan Job
}

func NewQueue(buffer int) *Queue {
	return &Queue{ch: make(chan Job, buffer)}
}

// Submit enqueues a job without blocking. Returns false when the buffer
// is full and the job was dropped.
func (q *Queue) Submit(job Job) bool {
	select {
	case q.ch <- job:
		return true
	default:
		return false
	}
}

// Channel exposes the receive side for the worker.
func (q *Queue) Channel() <-chan Job {
	return q.ch
}

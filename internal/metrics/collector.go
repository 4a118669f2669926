package metrics

import (
	"math"
	"sort"
	"sync"
	"time"
)

// sampleBufferSize bounds the processing-time buffer. Oldest samples are
// evicted first once the buffer is full.
const sampleBufferSize = 1000

// Snapshot is the point-in-time view embedded in each webhook response.
type Snapshot struct {
	TotalRequests int64            `json:"total_requests"`
	TotalErrors   int64            `json:"total_errors"`
	EventCounts   map[string]int64 `json:"event_counts"`
	AvgMs         float64          `json:"avg_processing_time_ms"`
	P95Ms         float64          `json:"p95_processing_time_ms"`
	P99Ms         float64          `json:"p99_processing_time_ms"`
}

// Collector keeps process-wide rolling counters and a FIFO-bounded buffer
// of recent processing times. One instance is constructed at startup and
// shared by every in-flight pipeline; all mutation happens under its lock.
type Collector struct {
	mu            sync.Mutex
	totalRequests int64
	totalErrors   int64
	eventCounts   map[string]int64

	samples []float64 // ring buffer of durations in ms
	head    int       // oldest sample once the buffer is full
}

func NewCollector() *Collector {
	return &Collector{
		eventCounts: make(map[string]int64),
		samples:     make([]float64, 0, sampleBufferSize),
	}
}

// Record counts one completed request for event and pushes its processing
// time into the sample buffer, evicting the oldest sample when full.
func (c *Collector) Record(event string, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalRequests++
	c.eventCounts[event]++

	ms := float64(d) / float64(time.Millisecond)
	if len(c.samples) < sampleBufferSize {
		c.samples = append(c.samples, ms)
		return
	}
	c.samples[c.head] = ms
	c.head = (c.head + 1) % sampleBufferSize
}

// RecordError counts one internal processing failure.
func (c *Collector) RecordError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalErrors++
}

// Snapshot computes the current counters and latency percentiles. The
// percentile is nearest-rank over a sorted copy of the retained samples.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		TotalRequests: c.totalRequests,
		TotalErrors:   c.totalErrors,
		EventCounts:   make(map[string]int64, len(c.eventCounts)),
	}
	for k, v := range c.eventCounts {
		snap.EventCounts[k] = v
	}

	if len(c.samples) == 0 {
		return snap
	}

	sorted := make([]float64, len(c.samples))
	copy(sorted, c.samples)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	snap.AvgMs = sum / float64(len(sorted))
	snap.P95Ms = percentile(sorted, 95)
	snap.P99Ms = percentile(sorted, 99)

	return snap
}

// SampleCount reports how many processing times are currently retained.
func (c *Collector) SampleCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.samples)
}

// percentile takes the ceiling-indexed element: ceil(p/100 * n) - 1.
func percentile(sorted []float64, p float64) float64 {
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

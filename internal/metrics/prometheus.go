package metrics

import (
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink using the Prometheus client library.
// All methods are non-blocking and fire-and-forget.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	requestsTotal     *prometheus.CounterVec
	requestDuration   prometheus.Histogram
	rejectedTotal     *prometheus.CounterVec
	retryAttempts     prometheus.Counter
	exhaustedTotal    prometheus.Counter
	inFlight          prometheus.Gauge
	recorderFailures  prometheus.Counter
	archiveDropped    prometheus.Counter
	archiveErrors     prometheus.Counter
	leaderStatus      prometheus.Gauge
	leaderTransitions *prometheus.CounterVec
}

// NewPrometheusSink creates a new Prometheus metrics sink.
// If registration fails, it logs a warning and returns a functional sink.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{}

	s.requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_requests_total",
		Help: "Total number of completed webhook requests by event type and outcome.",
	}, []string{"event", "outcome"})

	s.requestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "webhook_request_duration_seconds",
		Help:    "End-to-end webhook processing latency in seconds (includes retry backoff).",
		Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 2.5, 5, 10, 30},
	})

	s.rejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_rejected_total",
		Help: "Total number of requests rejected before dispatch.",
	}, []string{"reason"})

	s.retryAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "webhook_retry_attempts_total",
		Help: "Total number of handler retry attempts (excludes first attempt).",
	})

	s.exhaustedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "webhook_handler_exhausted_total",
		Help: "Total number of deliveries whose handler failed all retry attempts.",
	})

	s.inFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "webhook_requests_in_flight",
		Help: "Number of webhook requests currently being processed.",
	})

	s.recorderFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "webhook_recorder_failures_total",
		Help: "Total number of delivery record writes that failed.",
	})

	s.archiveDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "webhook_archive_dropped_total",
		Help: "Total number of payloads dropped because the archive queue was full.",
	})

	s.archiveErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "webhook_archive_errors_total",
		Help: "Total number of payload archive uploads that failed after retries.",
	})

	s.leaderStatus = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "webhook_retention_leader",
		Help: "1 when this instance holds the retention leader lock, 0 otherwise.",
	})

	s.leaderTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_retention_leader_transitions_total",
		Help: "Total number of leadership transitions by kind.",
	}, []string{"kind"})

	s.register(reg, s.requestsTotal, "webhook_requests_total")
	s.register(reg, s.requestDuration, "webhook_request_duration_seconds")
	s.register(reg, s.rejectedTotal, "webhook_rejected_total")
	s.register(reg, s.retryAttempts, "webhook_retry_attempts_total")
	s.register(reg, s.exhaustedTotal, "webhook_handler_exhausted_total")
	s.register(reg, s.inFlight, "webhook_requests_in_flight")
	s.register(reg, s.recorderFailures, "webhook_recorder_failures_total")
	s.register(reg, s.archiveDropped, "webhook_archive_dropped_total")
	s.register(reg, s.archiveErrors, "webhook_archive_errors_total")
	s.register(reg, s.leaderStatus, "webhook_retention_leader")
	s.register(reg, s.leaderTransitions, "webhook_retention_leader_transitions_total")

	return s
}

// register attempts to register a collector, logging any errors without propagating them.
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		log.Printf("metrics: failed to register %s: %v", name, err)
	}
}

func (s *PrometheusSink) RequestCompleted(event string, outcome string, duration time.Duration) {
	s.requestsTotal.WithLabelValues(event, outcome).Inc()
	s.requestDuration.Observe(duration.Seconds())
}

func (s *PrometheusSink) RateLimited() {
	s.rejectedTotal.WithLabelValues("rate_limited").Inc()
}

func (s *PrometheusSink) AuthFailed() {
	s.rejectedTotal.WithLabelValues("unauthorized").Inc()
}

func (s *PrometheusSink) MalformedBody() {
	s.rejectedTotal.WithLabelValues("malformed_body").Inc()
}

func (s *PrometheusSink) ValidationFailed() {
	s.rejectedTotal.WithLabelValues("validation_failed").Inc()
}

func (s *PrometheusSink) RetryAttempt() {
	s.retryAttempts.Inc()
}

func (s *PrometheusSink) HandlerExhausted() {
	s.exhaustedTotal.Inc()
}

func (s *PrometheusSink) InFlightIncr() {
	s.inFlight.Inc()
}

func (s *PrometheusSink) InFlightDecr() {
	s.inFlight.Dec()
}

func (s *PrometheusSink) RecorderFailure() {
	s.recorderFailures.Inc()
}

func (s *PrometheusSink) ArchiveDropped() {
	s.archiveDropped.Inc()
}

func (s *PrometheusSink) ArchiveError() {
	s.archiveErrors.Inc()
}

// LeaderStatusChanged, LeaderAcquired and LeaderLost satisfy the
// leaderelection metrics interface; the sink is shared between the
// pipeline and the retention elector.

func (s *PrometheusSink) LeaderStatusChanged(isLeader bool) {
	if isLeader {
		s.leaderStatus.Set(1)
		return
	}
	s.leaderStatus.Set(0)
}

func (s *PrometheusSink) LeaderAcquired() {
	s.leaderTransitions.WithLabelValues("acquired").Inc()
}

func (s *PrometheusSink) LeaderLost(reason string) {
	s.leaderTransitions.WithLabelValues("lost_" + reason).Inc()
}

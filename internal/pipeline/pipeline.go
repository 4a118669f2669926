// Package pipeline runs one webhook delivery through admission, auth,
// validation, dispatch and recording, and shapes the HTTP-level outcome.
// The orchestrator owns the control flow; the stages it wires together
// own the mechanics.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/cbwinslow/crawl4ai/internal/archive"
	"github.com/cbwinslow/crawl4ai/internal/dispatch"
	"github.com/cbwinslow/crawl4ai/internal/domain"
	"github.com/cbwinslow/crawl4ai/internal/metrics"
	"github.com/cbwinslow/crawl4ai/internal/ratelimit"
	"github.com/cbwinslow/crawl4ai/internal/recorder"
	"github.com/cbwinslow/crawl4ai/internal/retry"
	"github.com/cbwinslow/crawl4ai/internal/signature"
	"github.com/cbwinslow/crawl4ai/internal/validation"
)

// Inbound is one delivery as received at the HTTP edge, already stripped
// of transport details. Body is the raw request bytes; the signature is
// verified against them unmodified.
type Inbound struct {
	DeliveryID string
	Event      string
	Signature  string
	ClientKey  string
	Body       []byte
}

// AckStatus is the status reported in every success response. Any
// well-formed, authenticated, valid delivery is acknowledged as
// processed, whatever happened downstream; the internal outcome is
// carried in Outcome so the sender never redelivers a payload we hold.
const AckStatus = "processed"

// Ack is the success response body. Metrics carries the collector
// snapshot taken after this delivery was counted.
type Ack struct {
	Status           string           `json:"status"`
	Event            string           `json:"event"`
	Delivery         string           `json:"delivery"`
	ProcessingTimeMs int64            `json:"processing_time_ms"`
	Timestamp        string           `json:"timestamp"`
	Outcome          string           `json:"outcome"`
	Error            string           `json:"error,omitempty"`
	Metrics          metrics.Snapshot `json:"metrics"`
}

// Rejection is the error response body for non-200 outcomes.
type Rejection struct {
	Error             string                  `json:"error"`
	Fields            []validation.FieldError `json:"fields,omitempty"`
	RetryAfterSeconds int64                   `json:"retry_after_seconds,omitempty"`
}

// Result is the pipeline outcome, ready for the HTTP layer to encode.
// Exactly one of Ack and Rejection is set, matching Code.
type Result struct {
	Code      int
	Ack       *Ack
	Rejection *Rejection

	// RetryAfter and Remaining feed the rate-limit response headers.
	RetryAfter time.Duration
	Remaining  int
}

// Orchestrator wires the pipeline stages. Construct once at startup with
// New and the With* builders; Process is safe for concurrent use.
type Orchestrator struct {
	secret    string
	limiter   ratelimit.Limiter
	validator *validation.Validator
	registry  *dispatch.Registry
	retrier   *retry.Executor
	recorder  *recorder.Recorder
	collector *metrics.Collector

	sink    metrics.Sink   // optional, nil = disabled
	archive *archive.Queue // optional, nil = disabled
	clock   func() time.Time
}

func New(secret string, limiter ratelimit.Limiter, validator *validation.Validator,
	registry *dispatch.Registry, retrier *retry.Executor, rec *recorder.Recorder,
	collector *metrics.Collector) *Orchestrator {
	return &Orchestrator{
		secret:    secret,
		limiter:   limiter,
		validator: validator,
		registry:  registry,
		retrier:   retrier,
		recorder:  rec,
		collector: collector,
		clock:     time.Now,
	}
}

// WithSink attaches a metrics sink to the orchestrator.
func (o *Orchestrator) WithSink(sink metrics.Sink) *Orchestrator {
	o.sink = sink
	return o
}

// WithArchive attaches a payload archive queue to the orchestrator.
func (o *Orchestrator) WithArchive(q *archive.Queue) *Orchestrator {
	o.archive = q
	return o
}

// WithClock overrides the time source. Only for tests.
func (o *Orchestrator) WithClock(clock func() time.Time) *Orchestrator {
	o.clock = clock
	return o
}

// Process runs one delivery through the pipeline and returns the response
// to send. A handler failure after the retry budget is exhausted is still
// acknowledged with 200: the delivery was accepted and recorded, and a
// non-200 would only make the sender redeliver a payload we already hold.
func (o *Orchestrator) Process(ctx context.Context, in Inbound) Result {
	start := o.clock()

	if o.sink != nil {
		o.sink.InFlightIncr()
		defer o.sink.InFlightDecr()
	}

	// Admission first: blocked clients must not burn signature checks.
	// A limiter backend failure fails open; admission control protects
	// capacity and is not worth refusing traffic over.
	decision, err := o.limiter.Consume(ctx, in.ClientKey)
	if err != nil {
		log.Printf("pipeline: delivery=%s limiter error, failing open: %v", in.DeliveryID, err)
		decision = ratelimit.Decision{Allowed: true}
	}
	if !decision.Allowed {
		o.count(func(s metrics.Sink) { s.RateLimited() })
		o.collector.RecordError()
		return Result{
			Code: http.StatusTooManyRequests,
			Rejection: &Rejection{
				Error:             "rate limit exceeded",
				RetryAfterSeconds: int64(decision.RetryAfter / time.Second),
			},
			RetryAfter: decision.RetryAfter,
			Remaining:  decision.Remaining,
		}
	}

	if !signature.Verify(in.Body, in.Signature, o.secret) {
		o.count(func(s metrics.Sink) { s.AuthFailed() })
		o.collector.RecordError()
		return Result{
			Code:      http.StatusUnauthorized,
			Rejection: &Rejection{Error: "invalid signature"},
			Remaining: decision.Remaining,
		}
	}

	var payload map[string]any
	if err := json.Unmarshal(in.Body, &payload); err != nil {
		o.count(func(s metrics.Sink) { s.MalformedBody() })
		o.collector.RecordError()
		return Result{
			Code:      http.StatusBadRequest,
			Rejection: &Rejection{Error: "malformed JSON payload"},
			Remaining: decision.Remaining,
		}
	}

	event := domain.EventType(in.Event)
	d := buildDelivery(in, event, payload)

	if res := o.validator.Validate(event, payload); !res.Valid {
		o.count(func(s metrics.Sink) { s.ValidationFailed() })
		o.collector.RecordError()
		d.Status = domain.StatusValidationFailed
		o.recorder.Record(ctx, d, fieldSummary(res.Errors))
		return Result{
			Code: http.StatusBadRequest,
			Rejection: &Rejection{
				Error:  "payload validation failed",
				Fields: res.Errors,
			},
			Remaining: decision.Remaining,
		}
	}

	d.Status = domain.StatusReceived
	o.recorder.Record(ctx, d, "")

	status, detail := o.dispatch(ctx, d)
	d.Status = status
	o.recorder.Record(ctx, d, detail)

	now := o.clock()
	elapsed := now.Sub(start)
	o.collector.Record(in.Event, elapsed)
	if status == domain.StatusError {
		o.collector.RecordError()
	}
	o.count(func(s metrics.Sink) {
		s.RequestCompleted(in.Event, outcome(status), elapsed)
	})

	o.submitArchive(in, start)

	return Result{
		Code: http.StatusOK,
		Ack: &Ack{
			Status:           AckStatus,
			Event:            in.Event,
			Delivery:         in.DeliveryID,
			ProcessingTimeMs: elapsed.Milliseconds(),
			Timestamp:        now.UTC().Format(time.RFC3339),
			Outcome:          outcome(status),
			Error:            detail,
			Metrics:          o.collector.Snapshot(),
		},
		Remaining: decision.Remaining,
	}
}

// dispatch routes the delivery through the retry executor and maps the
// result to a terminal status. An unregistered event type is a soft
// outcome and consumes no retry budget.
func (o *Orchestrator) dispatch(ctx context.Context, d domain.Delivery) (domain.DeliveryStatus, string) {
	unhandled := false
	attempts := 0

	err := o.retrier.Run(ctx, func(ctx context.Context) error {
		attempts++
		if attempts > 1 {
			o.count(func(s metrics.Sink) { s.RetryAttempt() })
		}
		err := o.registry.Dispatch(ctx, d)
		if errors.Is(err, dispatch.ErrNoHandler) {
			unhandled = true
			return nil
		}
		return err
	})

	switch {
	case unhandled:
		log.Printf("pipeline: delivery=%s event=%s has no handler, acknowledging as unhandled", d.DeliveryID, d.Event)
		return domain.StatusUnhandled, ""
	case err != nil:
		log.Printf("pipeline: delivery=%s event=%s handler failed after %d attempts: %v", d.DeliveryID, d.Event, attempts, err)
		o.count(func(s metrics.Sink) { s.HandlerExhausted() })
		return domain.StatusError, err.Error()
	default:
		return domain.StatusProcessed, ""
	}
}

func (o *Orchestrator) submitArchive(in Inbound, receivedAt time.Time) {
	if o.archive == nil {
		return
	}
	job := archive.Job{
		DeliveryID: in.DeliveryID,
		Event:      in.Event,
		ReceivedAt: receivedAt.UTC(),
		Body:       in.Body,
	}
	if !o.archive.Submit(job) {
		log.Printf("pipeline: delivery=%s archive queue full, payload dropped", in.DeliveryID)
		o.count(func(s metrics.Sink) { s.ArchiveDropped() })
	}
}

func (o *Orchestrator) count(fn func(metrics.Sink)) {
	if o.sink != nil {
		fn(o.sink)
	}
}

// buildDelivery extracts the indexed columns from the parsed payload.
// Missing fields stay empty; only ids known to arrive as JSON numbers are
// formatted back to strings.
func buildDelivery(in Inbound, event domain.EventType, payload map[string]any) domain.Delivery {
	d := domain.Delivery{
		DeliveryID: in.DeliveryID,
		Event:      event,
		Payload:    in.Body,
	}
	if action, ok := payload["action"].(string); ok {
		d.Action = action
	}
	if repo, ok := payload["repository"].(map[string]any); ok {
		d.RepositoryID = numericID(repo["id"])
		if name, ok := repo["full_name"].(string); ok {
			d.RepositoryName = name
		}
	}
	if sender, ok := payload["sender"].(map[string]any); ok {
		d.SenderID = numericID(sender["id"])
		if login, ok := sender["login"].(string); ok {
			d.SenderLogin = login
		}
	}
	return d
}

func numericID(v any) string {
	switch n := v.(type) {
	case float64:
		return fmt.Sprintf("%.0f", n)
	case string:
		return n
	default:
		return ""
	}
}

func outcome(s domain.DeliveryStatus) string {
	switch s {
	case domain.StatusProcessed:
		return metrics.OutcomeProcessed
	case domain.StatusUnhandled:
		return metrics.OutcomeUnhandled
	default:
		return metrics.OutcomeError
	}
}

func fieldSummary(errs []validation.FieldError) string {
	if len(errs) == 0 {
		return ""
	}
	s := errs[0].Path + ": " + errs[0].Message
	for _, e := range errs[1:] {
		s += "; " + e.Path + ": " + e.Message
	}
	return s
}

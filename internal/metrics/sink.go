package metrics

import "time"

// Sink defines the interface for recording pipeline metrics.
// All methods are fire-and-forget: implementations MUST NOT block or
// propagate errors. If the metrics backend is unavailable, implementations
// log warnings and continue.
type Sink interface {
	// Request lifecycle
	RequestCompleted(event string, outcome string, duration time.Duration)
	RateLimited()
	AuthFailed()
	MalformedBody()
	ValidationFailed()

	// Dispatch
	RetryAttempt()
	HandlerExhausted()
	InFlightIncr()
	InFlightDecr()

	// Side channels
	RecorderFailure()
	ArchiveDropped()
	ArchiveError()
}

// Outcome constants for RequestCompleted.
const (
	OutcomeProcessed = "processed"
	OutcomeError     = "error"
	OutcomeUnhandled = "unhandled"
)

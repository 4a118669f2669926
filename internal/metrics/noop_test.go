package metrics

import (
	"testing"
	"time"
)

// TestNoopSink_ImplementsSink ensures the no-op sink satisfies the full
// interface and that every method is safe to call.
func TestNoopSink_ImplementsSink(t *testing.T) {
	var sink Sink = NewNoopSink()

	sink.RequestCompleted("push", OutcomeProcessed, time.Millisecond)
	sink.RateLimited()
	sink.AuthFailed()
	sink.MalformedBody()
	sink.ValidationFailed()
	sink.RetryAttempt()
	sink.HandlerExhausted()
	sink.InFlightIncr()
	sink.InFlightDecr()
	sink.RecorderFailure()
	sink.ArchiveDropped()
	sink.ArchiveError()
}

package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) RequestCompleted(event string, outcome string, duration time.Duration) {}
func (n *NoopSink) RateLimited()                                                          {}
func (n *NoopSink) AuthFailed()                                                           {}
func (n *NoopSink) MalformedBody()                                                        {}
func (n *NoopSink) ValidationFailed()                                                     {}
func (n *NoopSink) RetryAttempt()                                                         {}
func (n *NoopSink) HandlerExhausted()                                                     {}
func (n *NoopSink) InFlightIncr()                                                         {}
func (n *NoopSink) InFlightDecr()                                                         {}
func (n *NoopSink) RecorderFailure()                                                      {}
func (n *NoopSink) ArchiveDropped()                                                       {}
func (n *NoopSink) ArchiveError()                                                         {}
func (n *NoopSink) LeaderStatusChanged(isLeader bool)                                     {}
func (n *NoopSink) LeaderAcquired()                                                       {}
func (n *NoopSink) LeaderLost(reason string)                                              {}

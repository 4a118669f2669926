package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func newTestSink(t *testing.T) (*PrometheusSink, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	sink := NewPrometheusSink(reg)
	return sink, reg
}

func getCounterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			for _, m := range mf.GetMetric() {
				if m.GetCounter() != nil {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func getGaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			for _, m := range mf.GetMetric() {
				if m.GetGauge() != nil {
					return m.GetGauge().GetValue()
				}
			}
		}
	}
	return 0
}

func getCounterVecValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			for _, m := range mf.GetMetric() {
				if matchLabels(m.GetLabel(), labels) {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func matchLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	if len(pairs) != len(want) {
		return false
	}
	for _, p := range pairs {
		if v, ok := want[p.GetName()]; !ok || v != p.GetValue() {
			return false
		}
	}
	return true
}

func TestPrometheusSink_RequestCompleted(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.RequestCompleted("push", OutcomeProcessed, 15*time.Millisecond)
	sink.RequestCompleted("push", OutcomeProcessed, 25*time.Millisecond)
	sink.RequestCompleted("issues", OutcomeError, 5*time.Millisecond)

	got := getCounterVecValue(t, reg, "webhook_requests_total",
		map[string]string{"event": "push", "outcome": "processed"})
	if got != 2 {
		t.Errorf("expected 2 processed push requests, got %g", got)
	}
	got = getCounterVecValue(t, reg, "webhook_requests_total",
		map[string]string{"event": "issues", "outcome": "error"})
	if got != 1 {
		t.Errorf("expected 1 error issues request, got %g", got)
	}
}

func TestPrometheusSink_RejectionReasons(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.RateLimited()
	sink.RateLimited()
	sink.AuthFailed()
	sink.MalformedBody()
	sink.ValidationFailed()

	cases := map[string]float64{
		"rate_limited":      2,
		"unauthorized":      1,
		"malformed_body":    1,
		"validation_failed": 1,
	}
	for reason, want := range cases {
		got := getCounterVecValue(t, reg, "webhook_rejected_total",
			map[string]string{"reason": reason})
		if got != want {
			t.Errorf("reason %s: expected %g, got %g", reason, want, got)
		}
	}
}

func TestPrometheusSink_InFlight(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.InFlightIncr()
	sink.InFlightIncr()
	sink.InFlightDecr()

	if got := getGaugeValue(t, reg, "webhook_requests_in_flight"); got != 1 {
		t.Errorf("expected 1 in flight, got %g", got)
	}
}

func TestPrometheusSink_SideChannels(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.RetryAttempt()
	sink.RetryAttempt()
	sink.HandlerExhausted()
	sink.RecorderFailure()
	sink.ArchiveDropped()
	sink.ArchiveError()

	if got := getCounterValue(t, reg, "webhook_retry_attempts_total"); got != 2 {
		t.Errorf("expected 2 retry attempts, got %g", got)
	}
	if got := getCounterValue(t, reg, "webhook_handler_exhausted_total"); got != 1 {
		t.Errorf("expected 1 exhausted delivery, got %g", got)
	}
	if got := getCounterValue(t, reg, "webhook_recorder_failures_total"); got != 1 {
		t.Errorf("expected 1 recorder failure, got %g", got)
	}
	if got := getCounterValue(t, reg, "webhook_archive_dropped_total"); got != 1 {
		t.Errorf("expected 1 archive drop, got %g", got)
	}
	if got := getCounterValue(t, reg, "webhook_archive_errors_total"); got != 1 {
		t.Errorf("expected 1 archive error, got %g", got)
	}
}

func TestPrometheusSink_DoubleRegistrationIsNonFatal(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewPrometheusSink(reg)

	// Second sink on the same registry: registration fails internally but
	// the sink stays functional.
	sink := NewPrometheusSink(reg)
	sink.RateLimited()
	sink.InFlightIncr()
}

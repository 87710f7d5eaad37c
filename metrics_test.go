package authflow

import (
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authflow/step"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricAttemptSuccess)

	if got := m.Value(MetricAttemptSuccess); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestMetricsEnabledIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricRateLimited)
	m.Inc(MetricRateLimited)
	m.Inc(MetricRateLimited)

	if got := m.Value(MetricRateLimited); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricStepTransition)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricStepTransition); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})

	observations := []time.Duration{
		10 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		time.Second,
		2500 * time.Millisecond,
		4 * time.Second,
	}
	for _, d := range observations {
		m.Observe(MetricProviderLatency, d)
	}

	buckets := m.Snapshot().Histograms[MetricProviderLatency]
	if len(buckets) != histBucketCount {
		t.Fatalf("expected %d buckets, got %d", histBucketCount, len(buckets))
	}
	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d: expected 1, got %d", i, v)
		}
	}
}

func TestMetricsObserveIgnoresCounters(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	m.Observe(MetricAttemptSuccess, time.Millisecond)

	snap := m.Snapshot()
	if _, ok := snap.Histograms[MetricAttemptSuccess]; ok {
		t.Fatal("counter metric must not appear as histogram")
	}
	if _, ok := snap.Counters[MetricProviderLatency]; ok {
		t.Fatal("histogram metric must not appear as counter")
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.Inc(MetricFlowStarted)
	m.Observe(MetricProviderLatency, time.Second)
	if m.Value(MetricFlowStarted) != 0 || m.Enabled() {
		t.Fatal("nil metrics must read as zero and disabled")
	}
	if snap := m.Snapshot(); len(snap.Counters) != 0 {
		t.Fatal("nil metrics snapshot must be empty")
	}
}

func TestMetricsAttemptCounters(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.IncAttempt(step.OpMFAVerify, OutcomeRejected)
	m.IncAttempt(step.OpMFAVerify, OutcomeRejected)
	m.IncAttempt(step.OpMFAVerify, OutcomeSuccess)
	m.IncAttempt(step.OpNone, OutcomeUnavailable)
	m.IncAttempt(step.Operation("unknown"), OutcomeSuccess)
	m.IncAttempt(step.OpMFAVerify, AttemptOutcome(200))

	if got := m.AttemptValue(step.OpMFAVerify, OutcomeRejected); got != 2 {
		t.Fatalf("expected 2 rejected, got %d", got)
	}
	if got := m.AttemptValue(step.OpNone, OutcomeUnavailable); got != 1 {
		t.Fatalf("expected 1 unavailable, got %d", got)
	}
	if got := m.AttemptValue(step.Operation("unknown"), OutcomeSuccess); got != 0 {
		t.Fatalf("unknown operation must not be counted, got %d", got)
	}

	snap := m.Snapshot()
	want := len(AttemptOperations()) * len(AttemptOutcomes())
	if len(snap.Attempts) != want {
		t.Fatalf("expected %d attempt pairs, got %d", want, len(snap.Attempts))
	}
	if got := snap.Attempts[AttemptKey{Operation: step.OpMFAVerify, Outcome: OutcomeSuccess}]; got != 1 {
		t.Fatalf("expected 1 success in snapshot, got %d", got)
	}
}

func TestMetricsAttemptDisabled(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.IncAttempt(step.OpPasswordVerify, OutcomeLimited)
	if got := m.AttemptValue(step.OpPasswordVerify, OutcomeLimited); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if snap := m.Snapshot(); len(snap.Attempts) != 0 {
		t.Fatal("disabled snapshot must carry no attempt pairs")
	}
}

func TestAttemptOutcomeString(t *testing.T) {
	names := map[AttemptOutcome]string{
		OutcomeSuccess:     "success",
		OutcomeRejected:    "rejected",
		OutcomeUnavailable: "unavailable",
		OutcomeLimited:     "limited",
		AttemptOutcome(9):  "unknown",
	}
	for o, want := range names {
		if got := o.String(); got != want {
			t.Fatalf("%d: expected %q, got %q", o, want, got)
		}
	}
}

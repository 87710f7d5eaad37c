package authflow

import (
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authflow/step"
)

// MetricID identifies one engine counter or histogram.
type MetricID uint16

const (
	MetricFlowStarted MetricID = iota
	MetricFlowResumed
	MetricFlowCompleted
	MetricStepTransition
	MetricBackNavigation
	MetricSmartCheck
	MetricSmartCheckFallback
	MetricVerificationResent
	MetricVerificationResendFailure
	MetricDuplicateUser
	MetricAccountSuspended
	MetricValidationFailure
	MetricAttemptSuccess
	MetricProviderRejected
	MetricProviderUnavailable
	MetricRateLimited
	MetricLimiterDegraded
	MetricUnderAttack
	MetricVerificationPolled
	MetricProviderLatency
	metricIDCount
)

// AttemptOutcome classifies one guarded identity provider call.
type AttemptOutcome uint8

const (
	OutcomeSuccess AttemptOutcome = iota
	// OutcomeRejected is a credential or code the provider refused.
	OutcomeRejected
	// OutcomeUnavailable is a provider transport failure.
	OutcomeUnavailable
	// OutcomeLimited is an attempt the rate limiter denied before any call.
	OutcomeLimited
	outcomeCount
)

var outcomeNames = [outcomeCount]string{"success", "rejected", "unavailable", "limited"}

func (o AttemptOutcome) String() string {
	if o >= outcomeCount {
		return "unknown"
	}
	return outcomeNames[o]
}

// AttemptOutcomes lists every outcome in label order.
func AttemptOutcomes() []AttemptOutcome {
	return []AttemptOutcome{OutcomeSuccess, OutcomeRejected, OutcomeUnavailable, OutcomeLimited}
}

// attemptOperations fixes the counter slot of each operation. OpNone covers
// provider calls outside the rate limiter, such as sign-up and sign-out.
var attemptOperations = [...]step.Operation{
	step.OpNone,
	step.OpEmailCheck,
	step.OpPasswordVerify,
	step.OpMFAVerify,
	step.OpPhoneVerify,
	step.OpEmailVerify,
}

// AttemptOperations lists every operation that has attempt counters.
func AttemptOperations() []step.Operation {
	return append([]step.Operation(nil), attemptOperations[:]...)
}

func operationSlot(op step.Operation) (int, bool) {
	for i, candidate := range attemptOperations {
		if candidate == op {
			return i, true
		}
	}
	return 0, false
}

// AttemptKey addresses one per-operation outcome counter.
type AttemptKey struct {
	Operation step.Operation
	Outcome   AttemptOutcome
}

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free engine counters. A nil or disabled Metrics
// ignores writes.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
	attempts      [len(attemptOperations)][outcomeCount]paddedCounter
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
	// Attempts holds every (operation, outcome) pair, zero or not, while
	// metrics are enabled.
	Attempts map[AttemptKey]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram for id. Only histogram metrics accept
// observations.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if !isHistogram(id) {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// IncAttempt counts one guarded attempt for op. Unknown operations are
// ignored.
func (m *Metrics) IncAttempt(op step.Operation, outcome AttemptOutcome) {
	if m == nil || !m.enabled || outcome >= outcomeCount {
		return
	}
	slot, ok := operationSlot(op)
	if !ok {
		return
	}
	atomic.AddUint64(&m.attempts[slot][outcome].value, 1)
}

// AttemptValue returns the counter for op and outcome.
func (m *Metrics) AttemptValue(op step.Operation, outcome AttemptOutcome) uint64 {
	slot, ok := operationSlot(op)
	if m == nil || !ok || outcome >= outcomeCount {
		return 0
	}
	return atomic.LoadUint64(&m.attempts[slot][outcome].value)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
			Attempts:   map[AttemptKey]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
		Attempts:   make(map[AttemptKey]uint64, len(attemptOperations)*int(outcomeCount)),
	}

	for slot, op := range attemptOperations {
		for o := AttemptOutcome(0); o < outcomeCount; o++ {
			s.Attempts[AttemptKey{Operation: op, Outcome: o}] = atomic.LoadUint64(&m.attempts[slot][o].value)
		}
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if isHistogram(id) {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		for id := MetricID(0); id < metricIDCount; id++ {
			if !isHistogram(id) {
				continue
			}
			buckets := make([]uint64, histBucketCount)
			for i := 0; i < histBucketCount; i++ {
				buckets[i] = atomic.LoadUint64(&m.histograms[id].buckets[i])
			}
			s.Histograms[id] = buckets
		}
	}

	return s
}

func isHistogram(id MetricID) bool {
	return id == MetricProviderLatency
}

// Identity provider calls are network bound, so buckets span 10ms to 2.5s.
func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 10:
		return 0
	case ms <= 50:
		return 1
	case ms <= 100:
		return 2
	case ms <= 250:
		return 3
	case ms <= 500:
		return 4
	case ms <= 1000:
		return 5
	case ms <= 2500:
		return 6
	default:
		return 7
	}
}

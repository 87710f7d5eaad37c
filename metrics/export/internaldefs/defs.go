package internaldefs

import (
	"github.com/MrEthical07/authflow"
	"github.com/MrEthical07/authflow/step"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   authflow.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram for exporters.
type HistogramDef struct {
	ID   authflow.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: authflow.MetricFlowStarted, Name: "authflow_flow_started_total", Help: "Flows started."},
	{ID: authflow.MetricFlowResumed, Name: "authflow_flow_resumed_total", Help: "Flows resumed from a resume token."},
	{ID: authflow.MetricFlowCompleted, Name: "authflow_flow_completed_total", Help: "Flows that reached the complete step."},
	{ID: authflow.MetricStepTransition, Name: "authflow_step_transition_total", Help: "Forward step transitions."},
	{ID: authflow.MetricBackNavigation, Name: "authflow_back_navigation_total", Help: "Accepted back navigations."},
	{ID: authflow.MetricSmartCheck, Name: "authflow_smart_check_total", Help: "Smart recovery directory lookups."},
	{ID: authflow.MetricSmartCheckFallback, Name: "authflow_smart_check_fallback_total", Help: "Smart checks that fell back to email entry because the directory was unreachable."},
	{ID: authflow.MetricVerificationResent, Name: "authflow_verification_resent_total", Help: "Signup verification codes re-sent."},
	{ID: authflow.MetricVerificationResendFailure, Name: "authflow_verification_resend_failure_total", Help: "Failed signup verification re-sends."},
	{ID: authflow.MetricDuplicateUser, Name: "authflow_duplicate_user_total", Help: "Emails matching more than one directory record."},
	{ID: authflow.MetricAccountSuspended, Name: "authflow_account_suspended_total", Help: "Flows stopped for suspended accounts."},
	{ID: authflow.MetricValidationFailure, Name: "authflow_validation_failure_total", Help: "Submissions rejected by input validation."},
	{ID: authflow.MetricAttemptSuccess, Name: "authflow_attempt_success_total", Help: "Successful identity provider calls."},
	{ID: authflow.MetricProviderRejected, Name: "authflow_provider_rejected_total", Help: "Identity provider calls rejected for bad input."},
	{ID: authflow.MetricProviderUnavailable, Name: "authflow_provider_unavailable_total", Help: "Identity provider calls that failed in transport."},
	{ID: authflow.MetricRateLimited, Name: "authflow_rate_limited_total", Help: "Attempts denied by the rate limiter."},
	{ID: authflow.MetricLimiterDegraded, Name: "authflow_limiter_degraded_total", Help: "Rate limiter operations that failed open."},
	{ID: authflow.MetricUnderAttack, Name: "authflow_under_attack_total", Help: "Attempts delayed because the identifier shows an attack pattern."},
	{ID: authflow.MetricVerificationPolled, Name: "authflow_verification_polled_total", Help: "Directory polls made while awaiting out-of-band verification."},
}

// Attempt counters are one family labelled by operation and outcome.
const (
	AttemptFamily = "authflow_attempts_total"
	AttemptHelp   = "Guarded identity provider attempts by operation and outcome."

	AuditDroppedName = "authflow_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."
)

// OperationLabel returns the label value for op. Calls made without a
// limiter policy are labelled "none".
func OperationLabel(op step.Operation) string {
	if op == step.OpNone {
		return "none"
	}
	return string(op)
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: authflow.MetricProviderLatency, Name: "authflow_provider_latency_seconds", Help: "Identity provider call latency."},
}

// HistogramBounds are the upper bucket bounds in seconds, matching the
// engine's millisecond buckets.
var HistogramBounds = []string{
	"0.01",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"2.5",
	"+Inf",
}

// HistogramBoundSuffix gives each bound in a form usable inside a metric name.
var HistogramBoundSuffix = []string{
	"0_01",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"2_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling missing
// buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}

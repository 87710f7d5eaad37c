package flows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/authflow/internal/rate"
	"github.com/MrEthical07/authflow/step"
)

var (
	errLimited  = errors.New("limited")
	errRejected = errors.New("code mismatch")
)

type attemptHarness struct {
	decision  rate.Decision
	checkErr  error
	recordErr error
	calls     []string
	recorded  []bool
	metrics   map[int]int
	outcomes  []int
}

const (
	mRateLimited = iota + 1
	mDegraded
	mSuccess
	mProviderFailure
	mTransportFailure
	oSuccess
	oRejected
	oUnavailable
	oLimited
)

func (h *attemptHarness) deps() AttemptDeps {
	h.metrics = map[int]int{}
	return AttemptDeps{
		ClientTagFromContext: func(context.Context) string { return "tag" },
		IsAttemptAllowed: func(_ context.Context, _ string, _ step.Operation) (rate.Decision, error) {
			h.calls = append(h.calls, "check")
			return h.decision, h.checkErr
		},
		RecordAttempt: func(_ context.Context, _ string, _ step.Operation, success bool, tag string) error {
			h.calls = append(h.calls, "record")
			h.recorded = append(h.recorded, success)
			if tag != "tag" {
				panic("client tag not propagated")
			}
			return h.recordErr
		},
		MetricInc:    func(id int) { h.metrics[id]++ },
		CountOutcome: func(_ step.Operation, id int) { h.outcomes = append(h.outcomes, id) },
		Metrics: AttemptMetrics{
			RateLimited:      mRateLimited,
			LimiterDegraded:  mDegraded,
			AttemptSuccess:   mSuccess,
			ProviderFailure:  mProviderFailure,
			TransportFailure: mTransportFailure,

			OutcomeSuccess:     oSuccess,
			OutcomeRejected:    oRejected,
			OutcomeUnavailable: oUnavailable,
			OutcomeLimited:     oLimited,
		},
		Errors: AttemptErrors{
			EngineNotReady: errNotReady,
			RateLimited: func(step.Operation, rate.Decision) error {
				return errLimited
			},
			MapProviderError: func(err error) (error, bool) {
				return err, errors.Is(err, errRejected)
			},
		},
	}
}

func (h *attemptHarness) call(err error) func(context.Context) error {
	return func(context.Context) error {
		h.calls = append(h.calls, "call")
		return err
	}
}

var passwordReq = AttemptRequest{Identifier: "a@x.com", Operation: step.OpPasswordVerify, Step: step.Password}

func TestGuardedAttemptOrdering(t *testing.T) {
	h := &attemptHarness{decision: rate.Decision{Allowed: true}}
	if err := RunGuardedAttempt(context.Background(), passwordReq, h.call(nil), h.deps()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"check", "call", "record"}
	if len(h.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", h.calls, want)
	}
	for i := range want {
		if h.calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", h.calls, want)
		}
	}
	if !h.recorded[0] || h.metrics[mSuccess] != 1 {
		t.Fatal("expected success to be recorded")
	}
}

func TestGuardedAttemptDeniedSkipsCall(t *testing.T) {
	h := &attemptHarness{decision: rate.Decision{Delay: time.Minute, Reason: rate.ReasonLocked}}
	err := RunGuardedAttempt(context.Background(), passwordReq, h.call(nil), h.deps())
	if !errors.Is(err, errLimited) {
		t.Fatalf("expected rate limited, got %v", err)
	}
	if len(h.calls) != 1 || h.calls[0] != "check" {
		t.Fatalf("provider must not be called when denied: %v", h.calls)
	}
	if h.metrics[mRateLimited] != 1 {
		t.Fatal("expected rate limited metric")
	}
}

func TestGuardedAttemptRecordsProviderRejection(t *testing.T) {
	h := &attemptHarness{decision: rate.Decision{Allowed: true}}
	err := RunGuardedAttempt(context.Background(), passwordReq, h.call(errRejected), h.deps())
	if !errors.Is(err, errRejected) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if len(h.recorded) != 1 || h.recorded[0] {
		t.Fatalf("rejection must be recorded as failure: %v", h.recorded)
	}
	if h.metrics[mProviderFailure] != 1 {
		t.Fatal("expected provider failure metric")
	}
}

func TestGuardedAttemptTransportFailureFailsClosed(t *testing.T) {
	h := &attemptHarness{decision: rate.Decision{Allowed: true}}
	err := RunGuardedAttempt(context.Background(), passwordReq, h.call(errors.New("timeout")), h.deps())
	if err == nil {
		t.Fatal("transport failure must not be treated as success")
	}
	if len(h.recorded) != 1 || h.recorded[0] {
		t.Fatalf("transport failure must be recorded as failure: %v", h.recorded)
	}
	if h.metrics[mTransportFailure] != 1 {
		t.Fatal("expected transport failure metric")
	}
}

func TestGuardedAttemptCountsOutcomes(t *testing.T) {
	cases := []struct {
		name     string
		decision rate.Decision
		err      error
		want     int
	}{
		{"success", rate.Decision{Allowed: true}, nil, oSuccess},
		{"rejected", rate.Decision{Allowed: true}, errRejected, oRejected},
		{"unavailable", rate.Decision{Allowed: true}, errors.New("timeout"), oUnavailable},
		{"limited", rate.Decision{Reason: rate.ReasonBackoff, Delay: time.Second}, nil, oLimited},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := &attemptHarness{decision: tc.decision}
			_ = RunGuardedAttempt(context.Background(), passwordReq, h.call(tc.err), h.deps())
			if len(h.outcomes) != 1 || h.outcomes[0] != tc.want {
				t.Fatalf("outcomes = %v, want [%d]", h.outcomes, tc.want)
			}
		})
	}
}

func TestGuardedAttemptDegradedLimiterStillCalls(t *testing.T) {
	h := &attemptHarness{
		decision:  rate.Decision{Allowed: true, Degraded: true},
		recordErr: rate.ErrStoreUnavailable,
	}
	if err := RunGuardedAttempt(context.Background(), passwordReq, h.call(nil), h.deps()); err != nil {
		t.Fatalf("degraded limiter must fail open: %v", err)
	}
	if h.metrics[mDegraded] != 2 {
		t.Fatalf("expected degraded metric for check and record, got %d", h.metrics[mDegraded])
	}
}

func TestGuardedAttemptWithoutOperationSkipsLimiter(t *testing.T) {
	h := &attemptHarness{}
	req := AttemptRequest{Identifier: "a@x.com", Step: step.PasswordSetup}
	if err := RunGuardedAttempt(context.Background(), req, h.call(nil), h.deps()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.calls) != 1 || h.calls[0] != "call" {
		t.Fatalf("limiter must be skipped: %v", h.calls)
	}
}

func TestGuardedAttemptCheckErrorReturned(t *testing.T) {
	h := &attemptHarness{checkErr: rate.ErrUnknownOperation}
	err := RunGuardedAttempt(context.Background(), passwordReq, h.call(nil), h.deps())
	if !errors.Is(err, rate.ErrUnknownOperation) {
		t.Fatalf("expected unknown operation, got %v", err)
	}
}

func TestGuardedAttemptNotReady(t *testing.T) {
	err := RunGuardedAttempt(context.Background(), passwordReq, func(context.Context) error { return nil }, AttemptDeps{
		Errors: AttemptErrors{EngineNotReady: errNotReady},
	})
	if !errors.Is(err, errNotReady) {
		t.Fatalf("expected not ready, got %v", err)
	}
}

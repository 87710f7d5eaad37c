package flows

import (
	"context"
	"strconv"
	"time"

	"github.com/MrEthical07/authflow/internal/rate"
	"github.com/MrEthical07/authflow/step"
	"go.uber.org/zap"
)

// AttemptRequest identifies one guarded provider call.
type AttemptRequest struct {
	Identifier string
	Operation  step.Operation
	Step       step.AuthStep
	FlowID     string
}

// AttemptMetrics carries metric IDs used by guarded attempts.
type AttemptMetrics struct {
	RateLimited      int
	LimiterDegraded  int
	AttemptSuccess   int
	ProviderFailure  int
	TransportFailure int
	ProviderLatency  int

	// Outcome IDs for CountOutcome.
	OutcomeSuccess     int
	OutcomeRejected    int
	OutcomeUnavailable int
	OutcomeLimited     int
}

// AttemptEvents carries audit event names used by guarded attempts.
type AttemptEvents struct {
	RateLimited     string
	AttemptSuccess  string
	AttemptFailure  string
	LimiterDegraded string
}

// AttemptErrors carries host-level error constructors used by guarded attempts.
type AttemptErrors struct {
	EngineNotReady error
	RateLimited    func(step.Operation, rate.Decision) error
	// MapProviderError normalises a provider error and reports whether the
	// provider rejected the input (true) or could not be reached (false).
	MapProviderError func(error) (mapped error, rejected bool)
}

// AttemptDeps captures the rate-limit and telemetry wiring for a guarded call.
type AttemptDeps struct {
	Now                  func() time.Time
	ClientTagFromContext func(context.Context) string
	Logger               *zap.Logger

	IsAttemptAllowed func(context.Context, string, step.Operation) (rate.Decision, error)
	RecordAttempt    func(context.Context, string, step.Operation, bool, string) error

	MetricInc     func(int)
	ObserveMetric func(int, time.Duration)
	CountOutcome  func(step.Operation, int)
	EmitAudit     func(context.Context, string, bool, AttemptRequest, error, func() map[string]string)

	Metrics AttemptMetrics
	Events  AttemptEvents
	Errors  AttemptErrors
}

func normalizeAttemptDeps(deps *AttemptDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.ClientTagFromContext == nil {
		deps.ClientTagFromContext = func(context.Context) string { return "" }
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.ObserveMetric == nil {
		deps.ObserveMetric = func(int, time.Duration) {}
	}
	if deps.CountOutcome == nil {
		deps.CountOutcome = func(step.Operation, int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, AttemptRequest, error, func() map[string]string) {}
	}
	if deps.Errors.MapProviderError == nil {
		deps.Errors.MapProviderError = func(err error) (error, bool) { return err, false }
	}
}

// RunGuardedAttempt runs call under the limiter for req.Operation: the check
// must allow the attempt before call is issued, and the outcome is recorded
// before RunGuardedAttempt returns. Operations without a policy (OpNone) skip
// the limiter but still classify provider errors.
func RunGuardedAttempt(ctx context.Context, req AttemptRequest, call func(context.Context) error, deps AttemptDeps) error {
	normalizeAttemptDeps(&deps)
	if call == nil {
		return deps.Errors.EngineNotReady
	}
	guarded := req.Operation != step.OpNone
	if guarded && (deps.IsAttemptAllowed == nil || deps.RecordAttempt == nil || deps.Errors.RateLimited == nil) {
		return deps.Errors.EngineNotReady
	}

	if guarded {
		decision, err := deps.IsAttemptAllowed(ctx, req.Identifier, req.Operation)
		if err != nil {
			return err
		}
		if decision.Degraded {
			deps.MetricInc(deps.Metrics.LimiterDegraded)
			deps.EmitAudit(ctx, deps.Events.LimiterDegraded, false, req, nil, nil)
		}
		if !decision.Allowed {
			limited := deps.Errors.RateLimited(req.Operation, decision)
			deps.MetricInc(deps.Metrics.RateLimited)
			deps.CountOutcome(req.Operation, deps.Metrics.OutcomeLimited)
			deps.EmitAudit(ctx, deps.Events.RateLimited, false, req, limited, func() map[string]string {
				return map[string]string{
					"reason":   decision.Reason,
					"delay_ms": formatMillis(decision.Delay),
				}
			})
			return limited
		}
	}

	start := deps.Now()
	callErr := call(ctx)
	deps.ObserveMetric(deps.Metrics.ProviderLatency, deps.Now().Sub(start))

	if guarded {
		if err := deps.RecordAttempt(ctx, req.Identifier, req.Operation, callErr == nil, deps.ClientTagFromContext(ctx)); err != nil {
			deps.MetricInc(deps.Metrics.LimiterDegraded)
			deps.Logger.Warn("recording attempt failed",
				zap.String("flow_id", req.FlowID),
				zap.String("operation", string(req.Operation)),
				zap.Error(err),
			)
		}
	}

	if callErr != nil {
		mapped, rejected := deps.Errors.MapProviderError(callErr)
		if rejected {
			deps.MetricInc(deps.Metrics.ProviderFailure)
			deps.CountOutcome(req.Operation, deps.Metrics.OutcomeRejected)
		} else {
			deps.MetricInc(deps.Metrics.TransportFailure)
			deps.CountOutcome(req.Operation, deps.Metrics.OutcomeUnavailable)
			deps.Logger.Warn("identity provider call failed",
				zap.String("flow_id", req.FlowID),
				zap.Stringer("step", req.Step),
				zap.Error(callErr),
			)
		}
		deps.EmitAudit(ctx, deps.Events.AttemptFailure, false, req, mapped, nil)
		return mapped
	}

	deps.MetricInc(deps.Metrics.AttemptSuccess)
	deps.CountOutcome(req.Operation, deps.Metrics.OutcomeSuccess)
	deps.EmitAudit(ctx, deps.Events.AttemptSuccess, true, req, nil, nil)
	return nil
}

func formatMillis(d time.Duration) string {
	return strconv.FormatInt(d.Milliseconds(), 10)
}

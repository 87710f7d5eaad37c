package authflow

import (
	"context"
	"time"

	internalflows "github.com/MrEthical07/authflow/internal/flows"
	"github.com/MrEthical07/authflow/internal/rate"
	"github.com/MrEthical07/authflow/step"
)

func (e *Engine) flowDeps() internalflows.Deps {
	return internalflows.Deps{
		Attempt:  e.attemptFlowDeps(),
		Recovery: e.recoveryFlowDeps(),
		Progress: e.progressFlowDeps(),
	}
}

func (e *Engine) attemptFlowDeps() internalflows.AttemptDeps {
	deps := internalflows.AttemptDeps{
		Now:                  e.now,
		ClientTagFromContext: clientTagFromContext,
		Logger:               e.logger,
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		ObserveMetric: func(id int, d time.Duration) {
			e.metricObserve(MetricID(id), d)
		},
		CountOutcome: func(op step.Operation, outcome int) {
			e.metrics.IncAttempt(op, AttemptOutcome(outcome))
		},
		EmitAudit: func(ctx context.Context, event string, success bool, req internalflows.AttemptRequest, err error, meta func() map[string]string) {
			e.emitAudit(ctx, event, success, req.FlowID, req.Identifier, req.Step.String(), string(req.Operation), err, meta)
		},
		Metrics: internalflows.AttemptMetrics{
			RateLimited:      int(MetricRateLimited),
			LimiterDegraded:  int(MetricLimiterDegraded),
			AttemptSuccess:   int(MetricAttemptSuccess),
			ProviderFailure:  int(MetricProviderRejected),
			TransportFailure: int(MetricProviderUnavailable),
			ProviderLatency:  int(MetricProviderLatency),

			OutcomeSuccess:     int(OutcomeSuccess),
			OutcomeRejected:    int(OutcomeRejected),
			OutcomeUnavailable: int(OutcomeUnavailable),
			OutcomeLimited:     int(OutcomeLimited),
		},
		Events: internalflows.AttemptEvents{
			RateLimited:     auditEventAttemptRateLimited,
			AttemptSuccess:  auditEventAttemptSuccess,
			AttemptFailure:  auditEventAttemptFailure,
			LimiterDegraded: auditEventLimiterDegraded,
		},
		Errors: internalflows.AttemptErrors{
			EngineNotReady: ErrEngineNotReady,
			RateLimited: func(op step.Operation, d rate.Decision) error {
				if d.Reason == rate.ReasonAttack {
					e.metricInc(MetricUnderAttack)
				}
				return &RateLimitError{Operation: op, Delay: d.Delay, Reason: d.Reason}
			},
			MapProviderError: mapProviderError,
		},
	}
	if e.limiter != nil {
		deps.IsAttemptAllowed = func(ctx context.Context, identifier string, op step.Operation) (rate.Decision, error) {
			d, err := e.limiter.IsAttemptAllowed(ctx, identifier, op)
			return d, mapLimiterError(err)
		}
		deps.RecordAttempt = e.limiter.RecordAttempt
	}
	return deps
}

func (e *Engine) recoveryFlowDeps() internalflows.RecoveryDeps {
	deps := internalflows.RecoveryDeps{
		Logger: e.logger,
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitAudit: func(ctx context.Context, event string, success bool, email string, err error, meta func() map[string]string) {
			e.emitAudit(ctx, event, success, "", email, step.EmailEntry.String(), string(step.OpEmailCheck), err, meta)
		},
		Metrics: internalflows.RecoveryMetrics{
			SmartCheck:    int(MetricSmartCheck),
			Resend:        int(MetricVerificationResent),
			ResendFailure: int(MetricVerificationResendFailure),
			Fallback:      int(MetricSmartCheckFallback),
			DuplicateUser: int(MetricDuplicateUser),
		},
		Events: internalflows.RecoveryEvents{
			SmartCheck:    auditEventSmartCheck,
			DuplicateUser: auditEventDuplicateUser,
			Fallback:      auditEventSmartCheckFallback,
		},
		Errors: internalflows.RecoveryErrors{
			EngineNotReady:   ErrEngineNotReady,
			DuplicateUser:    ErrDuplicateUser,
			AccountSuspended: ErrAccountSuspended,
		},
	}
	if e.directory != nil {
		deps.FindByEmail = func(ctx context.Context, email string) ([]internalflows.RecoveryRecord, error) {
			recs, err := e.directory.FindByEmail(ctx, email)
			if err != nil {
				return nil, err
			}
			out := make([]internalflows.RecoveryRecord, 0, len(recs))
			for _, r := range recs {
				out = append(out, internalflows.RecoveryRecord{UserID: r.UserID, State: r.State})
			}
			return out, nil
		}
	}
	if e.provider != nil {
		deps.ResendSignUpCode = e.provider.ResendSignUpCode
	}
	return deps
}

func (e *Engine) progressFlowDeps() internalflows.ProgressDeps {
	deps := internalflows.ProgressDeps{
		TTL: e.config.Flow.ProgressTTL,
		Now: e.now,
		Errors: internalflows.ProgressErrors{
			EngineNotReady:   ErrEngineNotReady,
			ProgressNotFound: ErrProgressNotFound,
			StoreUnavailable: ErrStoreUnavailable,
		},
	}
	if e.store != nil {
		deps.Get = e.store.Get
		deps.Set = e.store.Set
		deps.Delete = e.store.Delete
	}
	return deps
}

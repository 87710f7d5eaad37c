package authflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/authflow/flowtoken"
	"github.com/MrEthical07/authflow/internal/attack"
	"github.com/MrEthical07/authflow/internal/audit"
	internalflows "github.com/MrEthical07/authflow/internal/flows"
	"github.com/MrEthical07/authflow/internal/rate"
	"github.com/MrEthical07/authflow/step"
	"github.com/MrEthical07/authflow/store"
	"go.uber.org/zap"
)

// AttemptDecision is the limiter's answer for one identifier and operation.
type AttemptDecision = rate.Decision

// LimitRecord is the persisted limiter state for one identifier and
// operation.
type LimitRecord = rate.Record

// Engine orchestrates authentication flows. It owns the rate limiter, the
// attack detector and flow progress persistence, and is safe for concurrent
// use. Build one with [New] and share it.
type Engine struct {
	config    Config
	store     store.Store
	provider  IdentityProvider
	directory UserDirectory

	detector *attack.Detector
	limiter  *rate.Limiter
	tokens   *flowtoken.Manager
	flows    internalflows.Service

	audit   *audit.Dispatcher
	metrics *Metrics
	logger  *zap.Logger
	now     func() time.Time
	newID   func() string
}

// Close flushes the audit dispatcher. Flows created by the engine must not
// be used after Close.
func (e *Engine) Close() {
	if e == nil || e.audit == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped returns the number of audit events dropped because the buffer
// was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
			Attempts:   map[AttemptKey]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, d time.Duration) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(id, d)
}

// SmartCheck resolves where a flow for email should continue, re-sending
// the signup code for pending signups. It does not consume rate-limit budget;
// Flow.SubmitEmail wraps it in the email_check limit.
func (e *Engine) SmartCheck(ctx context.Context, email string) (RecoveryResult, error) {
	if e == nil || !e.flows.Initialized() {
		return RecoveryResult{}, ErrEngineNotReady
	}
	normalized, failure := internalflows.NormalizeEmail(email)
	if !failure.OK() {
		e.metricInc(MetricValidationFailure)
		return RecoveryResult{}, validationError(failure)
	}
	return e.flows.SmartCheck(ctx, normalized)
}

// IsAttemptAllowed reports whether identifier may attempt op now. It never
// changes limiter state. When limiter storage is unreachable the attempt is
// allowed and the decision is marked Degraded.
func (e *Engine) IsAttemptAllowed(ctx context.Context, identifier string, op step.Operation) (AttemptDecision, error) {
	if e == nil || e.limiter == nil {
		return AttemptDecision{}, ErrEngineNotReady
	}
	d, err := e.limiter.IsAttemptAllowed(ctx, normalizeIdentifier(identifier), op)
	if err != nil {
		return AttemptDecision{}, mapLimiterError(err)
	}
	if d.Degraded {
		e.metricInc(MetricLimiterDegraded)
	}
	if d.Reason == rate.ReasonAttack {
		e.metricInc(MetricUnderAttack)
	}
	return d, nil
}

// RecordAttempt records the outcome of an attempt made outside a Flow. The
// client tag attached with WithClientTag is stored with the attempt.
func (e *Engine) RecordAttempt(ctx context.Context, identifier string, op step.Operation, success bool) error {
	if e == nil || e.limiter == nil {
		return ErrEngineNotReady
	}
	return mapLimiterError(e.limiter.RecordAttempt(ctx, normalizeIdentifier(identifier), op, success, clientTagFromContext(ctx)))
}

// IsUnderAttack reports whether the attack detector currently flags
// identifier.
func (e *Engine) IsUnderAttack(ctx context.Context, identifier string) (bool, error) {
	if e == nil || e.limiter == nil {
		return false, ErrEngineNotReady
	}
	under, err := e.limiter.IsUnderAttack(ctx, normalizeIdentifier(identifier))
	if err != nil {
		return false, mapLimiterError(err)
	}
	return under, nil
}

// ResetLimits clears limiter state for identifier. With no operations every
// operation and the attack history are cleared.
func (e *Engine) ResetLimits(ctx context.Context, identifier string, ops ...step.Operation) error {
	if e == nil || e.limiter == nil {
		return ErrEngineNotReady
	}
	if err := e.limiter.Reset(ctx, normalizeIdentifier(identifier), ops...); err != nil {
		return mapLimiterError(err)
	}
	e.emitAudit(ctx, auditEventLimitsReset, true, "", identifier, "", "", nil, nil)
	return nil
}

// LimitSnapshot returns the limiter record for identifier and op as it
// currently reads.
func (e *Engine) LimitSnapshot(ctx context.Context, identifier string, op step.Operation) (LimitRecord, error) {
	if e == nil || e.limiter == nil {
		return LimitRecord{}, ErrEngineNotReady
	}
	rec, err := e.limiter.Snapshot(ctx, normalizeIdentifier(identifier), op)
	if err != nil {
		return LimitRecord{}, mapLimiterError(err)
	}
	return rec, nil
}

func normalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

func mapLimiterError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrInvalidIdentifier), errors.Is(err, attack.ErrInvalidIdentifier):
		return &ValidationError{Field: "identifier", Reason: "empty"}
	case errors.Is(err, rate.ErrUnknownOperation):
		return fmt.Errorf("%w: %v", ErrUnknownOperation, err)
	case errors.Is(err, rate.ErrStoreUnavailable), errors.Is(err, attack.ErrStoreUnavailable):
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	default:
		return err
	}
}

func validationError(f internalflows.InputFailure) error {
	return &ValidationError{Field: f.Field, Reason: f.Reason}
}

// mapProviderError classifies an identity provider error. Rejections keep
// their sentinel; everything else becomes a transport failure that still
// matches the underlying error.
func mapProviderError(err error) (error, bool) {
	switch {
	case err == nil:
		return nil, false
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrCodeMismatch),
		errors.Is(err, ErrCodeExpired),
		errors.Is(err, ErrDuplicateUser),
		errors.Is(err, ErrAccountSuspended),
		errors.Is(err, ErrValidation):
		return err, true
	case errors.Is(err, ErrProviderUnavailable):
		return err, false
	default:
		return fmt.Errorf("%w: %w", ErrProviderUnavailable, err), false
	}
}

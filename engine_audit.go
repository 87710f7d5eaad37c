package authflow

import (
	"context"
	"errors"

	"github.com/MrEthical07/authflow/internal/audit"
	internalflows "github.com/MrEthical07/authflow/internal/flows"
)

const (
	auditEventFlowStarted          = "flow_started"
	auditEventFlowResumed          = "flow_resumed"
	auditEventFlowCompleted        = "flow_completed"
	auditEventStepTransition       = "step_transition"
	auditEventBackNavigation       = "back_navigation"
	auditEventSmartCheck           = "smart_check"
	auditEventSmartCheckFallback   = "smart_check_fallback"
	auditEventDuplicateUser        = "duplicate_user"
	auditEventAttemptSuccess       = "attempt_success"
	auditEventAttemptFailure       = "attempt_failure"
	auditEventAttemptRateLimited   = "attempt_rate_limited"
	auditEventLimiterDegraded      = "limiter_degraded"
	auditEventVerificationDetected = "verification_detected"
	auditEventSignOut              = "sign_out"
	auditEventLimitsReset          = "limits_reset"
)

// AuditEvent is one audit record. Identifier is always masked.
type AuditEvent = audit.Event

// AuditSink receives audit events from the engine's dispatcher.
type AuditSink = audit.Sink

type (
	NoOpSink       = audit.NoOpSink
	ChannelSink    = audit.ChannelSink
	JSONWriterSink = audit.JSONWriterSink
	ZapSink        = audit.ZapSink
)

var (
	NewChannelSink    = audit.NewChannelSink
	NewJSONWriterSink = audit.NewJSONWriterSink
	NewZapSink        = audit.NewZapSink
	FanOutSinks       = audit.FanOut
)

// AuditErrorCode is the stable error label recorded on audit events.
type AuditErrorCode string

const (
	auditErrValidation          AuditErrorCode = "validation"
	auditErrRateLimited         AuditErrorCode = "rate_limited"
	auditErrInvalidCredentials  AuditErrorCode = "invalid_credentials"
	auditErrCodeMismatch        AuditErrorCode = "code_mismatch"
	auditErrCodeExpired         AuditErrorCode = "code_expired"
	auditErrProviderUnavailable AuditErrorCode = "provider_unavailable"
	auditErrDuplicateUser       AuditErrorCode = "duplicate_user"
	auditErrAccountSuspended    AuditErrorCode = "account_suspended"
	auditErrStoreUnavailable    AuditErrorCode = "store_unavailable"
	auditErrTokenInvalid        AuditErrorCode = "token_invalid"
	auditErrInternal            AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	flowID string,
	identifier string,
	stepName string,
	operation string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:  e.now().UTC(),
		EventType:  eventType,
		FlowID:     flowID,
		Identifier: internalflows.MaskEmail(identifier),
		Step:       stepName,
		Operation:  operation,
		IP:         clientIPFromContext(ctx),
		ClientTag:  clientTagFromContext(ctx),
		Success:    success,
		Metadata:   metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrValidation):
		return auditErrValidation
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrCodeMismatch):
		return auditErrCodeMismatch
	case errors.Is(err, ErrCodeExpired):
		return auditErrCodeExpired
	case errors.Is(err, ErrDuplicateUser):
		return auditErrDuplicateUser
	case errors.Is(err, ErrAccountSuspended):
		return auditErrAccountSuspended
	case errors.Is(err, ErrProviderUnavailable):
		return auditErrProviderUnavailable
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrStoreUnavailable
	case errors.Is(err, ErrTokenInvalid):
		return auditErrTokenInvalid
	default:
		return auditErrInternal
	}
}

package flows

import (
	"context"
	"fmt"

	"github.com/MrEthical07/authflow/step"
	"go.uber.org/zap"
)

// RecoveryAction is the side effect chosen by smart recovery.
type RecoveryAction uint8

const (
	RecoveryNone RecoveryAction = iota
	RecoveryResendVerification
	RecoveryResumeAtStep
)

func (a RecoveryAction) String() string {
	switch a {
	case RecoveryNone:
		return "none"
	case RecoveryResendVerification:
		return "resend_verification"
	case RecoveryResumeAtStep:
		return "resume_at_step"
	default:
		return "unknown"
	}
}

// RecoveryRecord is the flow-local view of one directory record.
type RecoveryRecord struct {
	UserID string
	State  step.VerificationState
}

// RecoveryResult is the outcome of [RunSmartCheck].
type RecoveryResult struct {
	NextStep   step.AuthStep
	Action     RecoveryAction
	UserExists bool
	UserID     string
	State      step.VerificationState
	// Degraded is set when the directory could not be reached and the
	// result is the EmailEntry fallback.
	Degraded bool
}

type RecoveryMetrics struct {
	SmartCheck    int
	Resend        int
	ResendFailure int
	Fallback      int
	DuplicateUser int
}

type RecoveryEvents struct {
	SmartCheck    string
	DuplicateUser string
	Fallback      string
}

type RecoveryErrors struct {
	EngineNotReady   error
	DuplicateUser    error
	AccountSuspended error
}

// RecoveryDeps captures directory and provider access for smart recovery.
type RecoveryDeps struct {
	Logger *zap.Logger

	FindByEmail      func(context.Context, string) ([]RecoveryRecord, error)
	ResendSignUpCode func(context.Context, string) error

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, error, func() map[string]string)

	Metrics RecoveryMetrics
	Events  RecoveryEvents
	Errors  RecoveryErrors
}

func normalizeRecoveryDeps(deps *RecoveryDeps) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, error, func() map[string]string) {}
	}
}

// RunSmartCheck resolves where a flow for email should continue. A directory
// transport failure degrades to the EmailEntry step without an error; more
// than one record for the email is surfaced as DuplicateUser.
func RunSmartCheck(ctx context.Context, email string, deps RecoveryDeps) (RecoveryResult, error) {
	normalizeRecoveryDeps(&deps)
	if deps.FindByEmail == nil {
		return RecoveryResult{}, deps.Errors.EngineNotReady
	}
	deps.MetricInc(deps.Metrics.SmartCheck)

	records, err := deps.FindByEmail(ctx, email)
	if err != nil {
		deps.MetricInc(deps.Metrics.Fallback)
		deps.Logger.Warn("directory lookup failed, falling back to email entry",
			zap.String("identifier", MaskEmail(email)),
			zap.Error(err),
		)
		deps.EmitAudit(ctx, deps.Events.Fallback, false, email, err, nil)
		return RecoveryResult{NextStep: step.EmailEntry, Degraded: true}, nil
	}

	switch len(records) {
	case 0:
		deps.EmitAudit(ctx, deps.Events.SmartCheck, true, email, nil, func() map[string]string {
			return map[string]string{"next_step": step.PasswordSetup.String(), "user_exists": "false"}
		})
		return RecoveryResult{NextStep: step.PasswordSetup, Action: RecoveryNone}, nil
	case 1:
	default:
		deps.MetricInc(deps.Metrics.DuplicateUser)
		deps.Logger.Warn("duplicate directory records",
			zap.String("identifier", MaskEmail(email)),
			zap.Int("records", len(records)),
		)
		dupErr := fmt.Errorf("%w: %d records", deps.Errors.DuplicateUser, len(records))
		deps.EmitAudit(ctx, deps.Events.DuplicateUser, false, email, dupErr, nil)
		return RecoveryResult{}, dupErr
	}

	rec := records[0]
	state := rec.State
	state.Exists = true
	result := RecoveryResult{
		UserExists: true,
		UserID:     rec.UserID,
		State:      state,
	}

	if state.Status == step.StatusSuspended {
		deps.EmitAudit(ctx, deps.Events.SmartCheck, false, email, deps.Errors.AccountSuspended, nil)
		return result, deps.Errors.AccountSuspended
	}

	result.NextStep = step.NextStep(state)
	switch {
	case result.NextStep == step.Complete:
		result.Action = RecoveryNone
	case result.NextStep == step.EmailVerify && step.NeedsResend(state):
		result.Action = RecoveryResendVerification
		if deps.ResendSignUpCode != nil {
			if err := deps.ResendSignUpCode(ctx, email); err != nil {
				deps.MetricInc(deps.Metrics.ResendFailure)
				deps.Logger.Warn("verification resend failed",
					zap.String("identifier", MaskEmail(email)),
					zap.Error(err),
				)
				result.Action = RecoveryResumeAtStep
			} else {
				deps.MetricInc(deps.Metrics.Resend)
			}
		} else {
			result.Action = RecoveryResumeAtStep
		}
	default:
		result.Action = RecoveryResumeAtStep
	}

	deps.EmitAudit(ctx, deps.Events.SmartCheck, true, email, nil, func() map[string]string {
		return map[string]string{
			"next_step":   result.NextStep.String(),
			"action":      result.Action.String(),
			"user_exists": "true",
		}
	})
	return result, nil
}

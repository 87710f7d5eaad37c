package authflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	internalflows "github.com/MrEthical07/authflow/internal/flows"
	"github.com/MrEthical07/authflow/step"
	"go.uber.org/zap"
)

// errDirectoryDegraded marks a smart check that fell back to EmailEntry.
var errDirectoryDegraded = errors.New("user directory unreachable")

// Flow is one user's walk through the authentication steps. Its methods are
// serialised: each runs validation, the rate-limit check, the provider call,
// attempt recording and the step transition before the next may start. A
// Flow is safe for concurrent use but is meant for a single user.
//
// Every step owns a context that is cancelled when the flow leaves the step
// or is closed; AwaitVerification watches it.
type Flow struct {
	engine *Engine
	id     string

	mu      sync.Mutex
	closed  bool
	history step.History

	email  string
	userID string
	state  step.VerificationState
	// mfaSetup holds enrollment details issued by the provider at sign-in or
	// BeginMFASetup.
	mfaSetup  *MFASetupDetails
	resetCode string

	rootCtx    context.Context
	rootCancel context.CancelFunc
	stepCtx    context.Context
	stepCancel context.CancelFunc
}

// NewFlow starts an empty flow at EmailEntry.
func (e *Engine) NewFlow(ctx context.Context) (*Flow, error) {
	if e == nil || !e.flows.Initialized() {
		return nil, ErrEngineNotReady
	}
	f := e.newFlow(e.newID())
	e.metricInc(MetricFlowStarted)
	e.emitAudit(ctx, auditEventFlowStarted, true, f.id, "", step.EmailEntry.String(), "", nil, nil)
	return f, nil
}

func (e *Engine) newFlow(id string) *Flow {
	f := &Flow{
		engine:  e,
		id:      id,
		history: step.NewHistory(step.EmailEntry),
	}
	f.rootCtx, f.rootCancel = context.WithCancel(context.Background())
	f.stepCtx, f.stepCancel = context.WithCancel(f.rootCtx)
	return f
}

// Start creates a flow and submits email in one call.
func (e *Engine) Start(ctx context.Context, email string) (*Flow, RecoveryResult, error) {
	f, err := e.NewFlow(ctx)
	if err != nil {
		return nil, RecoveryResult{}, err
	}
	res, err := f.SubmitEmail(ctx, email)
	return f, res, err
}

// Resume reopens a flow from a resume token. The user directory is consulted
// again, so the flow lands on the step the account actually needs rather
// than the step recorded in the token.
func (e *Engine) Resume(ctx context.Context, token string) (*Flow, RecoveryResult, error) {
	if e == nil || !e.flows.Initialized() {
		return nil, RecoveryResult{}, ErrEngineNotReady
	}
	if e.tokens == nil {
		return nil, RecoveryResult{}, ErrResumeUnsupported
	}
	claims, err := e.tokens.Parse(token)
	if err != nil {
		return nil, RecoveryResult{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	progress, err := e.flows.LoadProgress(ctx, claims.Email)
	if err != nil {
		return nil, RecoveryResult{}, err
	}
	if progress.FlowID != claims.FlowID {
		return nil, RecoveryResult{}, ErrProgressNotFound
	}

	f := e.newFlow(claims.FlowID)
	e.metricInc(MetricFlowResumed)
	e.emitAudit(ctx, auditEventFlowResumed, true, f.id, claims.Email, progress.Step.String(), "", nil, nil)

	f.mu.Lock()
	defer f.mu.Unlock()
	res, err := f.resolveLocked(ctx, claims.Email)
	return f, res, err
}

// ID returns the flow identifier carried in resume tokens and audit events.
func (f *Flow) ID() string {
	return f.id
}

// Step returns the current step.
func (f *Flow) Step() step.AuthStep {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, _ := f.history.Current()
	return cur
}

// History returns the visited steps, oldest first.
func (f *Flow) History() []step.AuthStep {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.history.Steps()
}

// Email returns the normalized email once SubmitEmail has succeeded.
func (f *Flow) Email() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.email
}

// State returns the flow's view of the account's verification state.
func (f *Flow) State() step.VerificationState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// MFASetup returns the pending authenticator enrollment, if any.
func (f *Flow) MFASetup() (MFASetupDetails, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mfaSetup == nil {
		return MFASetupDetails{}, false
	}
	return *f.mfaSetup, true
}

// Close cancels the flow's step context. Later calls return ErrFlowClosed.
func (f *Flow) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeLocked()
}

func (f *Flow) closeLocked() {
	if f.closed {
		return
	}
	f.closed = true
	f.rootCancel()
}

func (f *Flow) current() step.AuthStep {
	cur, _ := f.history.Current()
	return cur
}

// enter locks the flow and checks it is open and at one of the given steps.
// The caller must call f.mu.Unlock when enter returns nil.
func (f *Flow) enter(allowed ...step.AuthStep) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrFlowClosed
	}
	cur := f.current()
	for _, s := range allowed {
		if s == cur {
			return nil
		}
	}
	f.mu.Unlock()
	return fmt.Errorf("%w: at %s", ErrStepMismatch, cur)
}

func (f *Flow) transitionLocked(ctx context.Context, next step.AuthStep) {
	e := f.engine
	prev := f.current()

	f.stepCancel()
	f.stepCtx, f.stepCancel = context.WithCancel(f.rootCtx)
	f.history.Push(next)

	e.metricInc(MetricStepTransition)
	e.emitAudit(ctx, auditEventStepTransition, true, f.id, f.email, next.String(), "", nil, func() map[string]string {
		return map[string]string{"from": prev.String()}
	})
	if next == step.Complete {
		e.metricInc(MetricFlowCompleted)
		e.emitAudit(ctx, auditEventFlowCompleted, true, f.id, f.email, next.String(), "", nil, nil)
	}
	f.saveProgressLocked(ctx)
}

// Progress write failures never fail the step: the flow is still usable in
// process, only resumption is lost.
func (f *Flow) saveProgressLocked(ctx context.Context) {
	if f.email == "" {
		return
	}
	err := f.engine.flows.SaveProgress(ctx, internalflows.Progress{
		Email:  f.email,
		Step:   f.current(),
		FlowID: f.id,
	})
	if err != nil {
		f.engine.logger.Warn("saving flow progress failed",
			zap.String("flow_id", f.id),
			zap.String("identifier", internalflows.MaskEmail(f.email)),
			zap.Error(err),
		)
	}
}

func (f *Flow) attempt(ctx context.Context, op step.Operation, call func(context.Context) error) error {
	return f.engine.flows.GuardedAttempt(ctx, internalflows.AttemptRequest{
		Identifier: f.email,
		Operation:  op,
		Step:       f.current(),
		FlowID:     f.id,
	}, call)
}

func (f *Flow) invalid(failure internalflows.InputFailure) error {
	f.engine.metricInc(MetricValidationFailure)
	return validationError(failure)
}

// SubmitEmail runs smart recovery for email under the email_check limit and
// moves to the step the account needs: PasswordSetup for a new user,
// EmailVerify for a pending signup and Password for everyone else. When the
// directory is unreachable the flow stays at EmailEntry and the result is
// marked Degraded.
func (f *Flow) SubmitEmail(ctx context.Context, email string) (RecoveryResult, error) {
	if err := f.enter(step.EmailEntry); err != nil {
		return RecoveryResult{}, err
	}
	defer f.mu.Unlock()

	normalized, failure := internalflows.NormalizeEmail(email)
	if !failure.OK() {
		return RecoveryResult{}, f.invalid(failure)
	}
	return f.resolveLocked(ctx, normalized)
}

func (f *Flow) resolveLocked(ctx context.Context, email string) (RecoveryResult, error) {
	e := f.engine
	f.email = email

	var res RecoveryResult
	err := f.attempt(ctx, step.OpEmailCheck, func(ctx context.Context) error {
		var err error
		res, err = e.flows.SmartCheck(ctx, email)
		if err == nil && res.Degraded {
			// Recorded as a failed email_check; the caller still gets the fallback.
			return errDirectoryDegraded
		}
		return err
	})
	if errors.Is(err, errDirectoryDegraded) {
		return res, nil
	}
	if err != nil {
		if errors.Is(err, ErrAccountSuspended) {
			e.metricInc(MetricAccountSuspended)
		}
		return res, err
	}

	f.userID = res.UserID
	f.state = res.State

	var next step.AuthStep
	switch {
	case !res.UserExists:
		next = step.PasswordSetup
	case res.NextStep == step.EmailVerify:
		next = step.EmailVerify
	default:
		next = step.Password
	}
	f.transitionLocked(ctx, next)
	return res, nil
}

// SetPassword registers a new account with the provider at PasswordSetup and
// moves to EmailVerify. An unconfirmed provider account left behind by an
// earlier failed attempt is reused: the signup code is re-sent and the
// directory record created.
func (f *Flow) SetPassword(ctx context.Context, password string) error {
	if err := f.enter(step.PasswordSetup); err != nil {
		return err
	}
	defer f.mu.Unlock()

	if failure := internalflows.ValidatePassword(password, f.engine.passwordPolicy(), f.email); !failure.OK() {
		return f.invalid(failure)
	}

	e := f.engine
	rec := DirectoryRecord{
		UserID:    e.newID(),
		Email:     f.email,
		State:     step.VerificationState{Exists: true, Status: step.StatusPending},
		UpdatedAt: e.now(),
	}
	err := f.attempt(ctx, step.OpNone, func(ctx context.Context) error {
		err := e.provider.SignUp(ctx, f.email, password)
		if errors.Is(err, ErrDuplicateUser) {
			// An earlier signup reached the provider but not the directory.
			// Resending fails for confirmed accounts, which stay duplicates.
			if e.provider.ResendSignUpCode(ctx, f.email) != nil {
				return err
			}
			e.metricInc(MetricVerificationResent)
		} else if err != nil {
			return err
		}
		return e.directory.Create(ctx, rec)
	})
	if err != nil {
		return err
	}

	f.userID = rec.UserID
	f.state = rec.State
	f.transitionLocked(ctx, step.EmailVerify)
	return nil
}

// ConfirmEmail submits the signup code at EmailVerify under the
// email_verify limit and moves to Signin.
func (f *Flow) ConfirmEmail(ctx context.Context, code string) error {
	if err := f.enter(step.EmailVerify); err != nil {
		return err
	}
	defer f.mu.Unlock()

	if failure := internalflows.ValidateCode(code, f.engine.config.Flow.CodeDigits); !failure.OK() {
		return f.invalid(failure)
	}

	e := f.engine
	err := f.attempt(ctx, step.OpEmailVerify, func(ctx context.Context) error {
		return e.provider.ConfirmSignUp(ctx, f.email, trimCode(code))
	})
	if err != nil {
		return err
	}

	f.state.EmailVerified = true
	f.state.Status = step.StatusActive
	f.updateDirectoryLocked(ctx)
	f.transitionLocked(ctx, step.Signin)
	return nil
}

// ResendEmailCode asks the provider to re-send the signup code. It counts
// against the email_check limit.
func (f *Flow) ResendEmailCode(ctx context.Context) error {
	if err := f.enter(step.EmailVerify); err != nil {
		return err
	}
	defer f.mu.Unlock()

	e := f.engine
	err := f.attempt(ctx, step.OpEmailCheck, func(ctx context.Context) error {
		return e.provider.ResendSignUpCode(ctx, f.email)
	})
	if err == nil {
		e.metricInc(MetricVerificationResent)
	}
	return err
}

// SubmitPassword signs in at Password or Signin under the password_verify
// limit. Depending on the provider the flow moves to MfaVerify, MfaSetup or
// the first step the account still needs.
func (f *Flow) SubmitPassword(ctx context.Context, password string) (step.AuthStep, error) {
	if err := f.enter(step.Password, step.Signin); err != nil {
		return f.stepOrUnknown(), err
	}
	defer f.mu.Unlock()

	if password == "" {
		return f.current(), f.invalid(internalflows.InputFailure{Field: "password", Reason: "empty"})
	}

	e := f.engine
	var res SignInResult
	err := f.attempt(ctx, step.OpPasswordVerify, func(ctx context.Context) error {
		var err error
		res, err = e.provider.SignIn(ctx, f.email, password)
		return err
	})
	if err != nil {
		return f.current(), err
	}

	var next step.AuthStep
	switch res.Outcome {
	case SignInMFAChallenge:
		next = step.MfaVerify
	case SignInMFASetupRequired:
		f.mfaSetup = res.MFASetup
		next = step.MfaSetup
	default:
		next = step.NextStep(f.state)
	}
	f.transitionLocked(ctx, next)
	return next, nil
}

func (f *Flow) stepOrUnknown() step.AuthStep {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current()
}

// SetPhone registers a phone number at PhoneSetup and moves to PhoneVerify.
func (f *Flow) SetPhone(ctx context.Context, phone string) error {
	if err := f.enter(step.PhoneSetup); err != nil {
		return err
	}
	defer f.mu.Unlock()

	normalized, failure := internalflows.NormalizePhone(phone)
	if !failure.OK() {
		return f.invalid(failure)
	}

	e := f.engine
	err := f.attempt(ctx, step.OpNone, func(ctx context.Context) error {
		return e.provider.UpdatePhone(ctx, f.email, normalized)
	})
	if err != nil {
		return err
	}

	f.state.PhoneNumber = normalized
	f.state.PhoneVerified = false
	f.updateDirectoryLocked(ctx)
	f.transitionLocked(ctx, step.PhoneVerify)
	return nil
}

// ConfirmPhone submits the phone code at PhoneVerify under the phone_verify
// limit.
func (f *Flow) ConfirmPhone(ctx context.Context, code string) (step.AuthStep, error) {
	if err := f.enter(step.PhoneVerify); err != nil {
		return f.stepOrUnknown(), err
	}
	defer f.mu.Unlock()

	if failure := internalflows.ValidateCode(code, f.engine.config.Flow.CodeDigits); !failure.OK() {
		return f.current(), f.invalid(failure)
	}

	e := f.engine
	err := f.attempt(ctx, step.OpPhoneVerify, func(ctx context.Context) error {
		return e.provider.ConfirmPhone(ctx, f.email, trimCode(code))
	})
	if err != nil {
		return f.current(), err
	}

	f.state.PhoneVerified = true
	f.updateDirectoryLocked(ctx)
	next := step.NextStep(f.state)
	f.transitionLocked(ctx, next)
	return next, nil
}

// BeginMFASetup returns authenticator enrollment details at MfaSetup,
// requesting them from the provider unless sign-in already supplied them.
func (f *Flow) BeginMFASetup(ctx context.Context) (MFASetupDetails, error) {
	if err := f.enter(step.MfaSetup); err != nil {
		return MFASetupDetails{}, err
	}
	defer f.mu.Unlock()

	if f.mfaSetup != nil {
		return *f.mfaSetup, nil
	}

	e := f.engine
	var details MFASetupDetails
	err := f.attempt(ctx, step.OpNone, func(ctx context.Context) error {
		var err error
		details, err = e.provider.SetupMFA(ctx, f.email)
		return err
	})
	if err != nil {
		return MFASetupDetails{}, err
	}
	f.mfaSetup = &details
	return details, nil
}

// ConfirmMFASetup verifies the first authenticator code at MfaSetup under
// the mfa_verify limit.
func (f *Flow) ConfirmMFASetup(ctx context.Context, code string) (step.AuthStep, error) {
	if err := f.enter(step.MfaSetup); err != nil {
		return f.stepOrUnknown(), err
	}
	defer f.mu.Unlock()

	if f.mfaSetup == nil {
		return f.current(), fmt.Errorf("%w: mfa setup not started", ErrStepMismatch)
	}
	if failure := internalflows.ValidateCode(code, f.engine.config.Flow.CodeDigits); !failure.OK() {
		return f.current(), f.invalid(failure)
	}

	e := f.engine
	err := f.attempt(ctx, step.OpMFAVerify, func(ctx context.Context) error {
		return e.provider.VerifyMFASetup(ctx, f.email, trimCode(code))
	})
	if err != nil {
		return f.current(), err
	}

	f.mfaSetup = nil
	f.state.MFAEnabled = true
	f.state.MFASetupComplete = true
	f.updateDirectoryLocked(ctx)
	next := step.NextStep(f.state)
	f.transitionLocked(ctx, next)
	return next, nil
}

// ConfirmMFA answers the provider's MFA challenge at MfaVerify under the
// mfa_verify limit. A successful challenge proves MFA is set up, so a stale
// directory record is corrected.
func (f *Flow) ConfirmMFA(ctx context.Context, code string) (step.AuthStep, error) {
	if err := f.enter(step.MfaVerify); err != nil {
		return f.stepOrUnknown(), err
	}
	defer f.mu.Unlock()

	if failure := internalflows.ValidateCode(code, f.engine.config.Flow.CodeDigits); !failure.OK() {
		return f.current(), f.invalid(failure)
	}

	e := f.engine
	err := f.attempt(ctx, step.OpMFAVerify, func(ctx context.Context) error {
		ok, err := e.provider.ConfirmSignIn(ctx, f.email, trimCode(code))
		if err != nil {
			return err
		}
		if !ok {
			return ErrCodeMismatch
		}
		return nil
	})
	if err != nil {
		return f.current(), err
	}

	if !f.state.MFAEnabled || !f.state.MFASetupComplete {
		f.state.MFAEnabled = true
		f.state.MFASetupComplete = true
		f.updateDirectoryLocked(ctx)
	}
	next := step.NextStep(f.state)
	f.transitionLocked(ctx, next)
	return next, nil
}

// ForgotPassword leaves Password or Signin for the reset path.
func (f *Flow) ForgotPassword(ctx context.Context) error {
	if err := f.enter(step.Password, step.Signin); err != nil {
		return err
	}
	defer f.mu.Unlock()

	f.transitionLocked(ctx, step.PasswordReset)
	return nil
}

// RequestPasswordReset asks the provider to send a reset code under the
// email_check limit.
func (f *Flow) RequestPasswordReset(ctx context.Context) error {
	if err := f.enter(step.PasswordReset); err != nil {
		return err
	}
	defer f.mu.Unlock()

	e := f.engine
	err := f.attempt(ctx, step.OpEmailCheck, func(ctx context.Context) error {
		return e.provider.ResetPassword(ctx, f.email)
	})
	if err != nil {
		return err
	}
	f.transitionLocked(ctx, step.PasswordResetVerify)
	return nil
}

// SubmitResetCode holds the reset code until the new password is chosen.
// The provider checks both together in ConfirmPasswordReset.
func (f *Flow) SubmitResetCode(ctx context.Context, code string) error {
	if err := f.enter(step.PasswordResetVerify); err != nil {
		return err
	}
	defer f.mu.Unlock()

	if failure := internalflows.ValidateCode(code, f.engine.config.Flow.CodeDigits); !failure.OK() {
		return f.invalid(failure)
	}
	f.resetCode = trimCode(code)
	f.transitionLocked(ctx, step.PasswordResetConfirm)
	return nil
}

// ConfirmPasswordReset sets the new password under the password_verify limit
// and returns to Password.
func (f *Flow) ConfirmPasswordReset(ctx context.Context, newPassword string) error {
	if err := f.enter(step.PasswordResetConfirm); err != nil {
		return err
	}
	defer f.mu.Unlock()

	if failure := internalflows.ValidatePassword(newPassword, f.engine.passwordPolicy(), f.email); !failure.OK() {
		return f.invalid(failure)
	}

	e := f.engine
	err := f.attempt(ctx, step.OpPasswordVerify, func(ctx context.Context) error {
		return e.provider.ConfirmResetPassword(ctx, f.email, f.resetCode, newPassword)
	})
	if err != nil {
		return err
	}
	f.resetCode = ""
	f.transitionLocked(ctx, step.Password)
	return nil
}

// Back returns to the previous step when that step is safe to re-enter.
func (f *Flow) Back(ctx context.Context) (step.AuthStep, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return f.current(), ErrFlowClosed
	}
	if !step.CanNavigateBack(f.history) {
		return f.current(), ErrBackNotAllowed
	}

	from := f.current()
	prev, _ := f.history.Back()
	f.stepCancel()
	f.stepCtx, f.stepCancel = context.WithCancel(f.rootCtx)
	if prev == step.PasswordResetVerify {
		f.resetCode = ""
	}

	e := f.engine
	e.metricInc(MetricBackNavigation)
	e.emitAudit(ctx, auditEventBackNavigation, true, f.id, f.email, prev.String(), "", nil, func() map[string]string {
		return map[string]string{"from": from.String()}
	})
	f.saveProgressLocked(ctx)
	return prev, nil
}

// AwaitVerification polls the user directory until the email (at
// EmailVerify) or phone (at PhoneVerify) is reported verified, for example
// through a link opened on another device, and then advances the flow. It
// returns when verification is detected, when ctx is done, or with
// context.Canceled when the flow leaves the step. interval <= 0 selects
// Config.Flow.PollInterval.
func (f *Flow) AwaitVerification(ctx context.Context, interval time.Duration) (step.AuthStep, error) {
	if err := f.enter(step.EmailVerify, step.PhoneVerify); err != nil {
		return f.stepOrUnknown(), err
	}
	waiting := f.current()
	stepCtx := f.stepCtx
	email := f.email
	f.mu.Unlock()

	e := f.engine
	if interval <= 0 {
		interval = e.config.Flow.PollInterval
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(stepCtx, cancel)
	defer stop()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return f.stepOrUnknown(), ctx.Err()
		case <-ticker.C:
		}

		e.metricInc(MetricVerificationPolled)
		recs, err := e.directory.FindByEmail(ctx, email)
		if err != nil {
			e.logger.Debug("verification poll failed", zap.String("flow_id", f.id), zap.Error(err))
			continue
		}
		if len(recs) != 1 || !verifiedFor(waiting, recs[0].State) {
			continue
		}

		f.mu.Lock()
		if f.closed || f.stepCtx != stepCtx {
			f.mu.Unlock()
			return f.stepOrUnknown(), context.Canceled
		}
		// Leaving the step cancels stepCtx; detach ctx from it first.
		stop()
		f.state = recs[0].State
		f.state.Exists = true
		next := step.Signin
		if waiting == step.PhoneVerify {
			next = step.NextStep(f.state)
		}
		e.emitAudit(ctx, auditEventVerificationDetected, true, f.id, f.email, waiting.String(), "", nil, nil)
		f.transitionLocked(ctx, next)
		f.mu.Unlock()
		return next, nil
	}
}

func trimCode(code string) string {
	return strings.TrimSpace(code)
}

func verifiedFor(s step.AuthStep, v step.VerificationState) bool {
	if s == step.PhoneVerify {
		return v.HasPhone() && v.PhoneVerified
	}
	return v.EmailVerified
}

// ResumeToken returns a signed token that Engine.Resume accepts.
func (f *Flow) ResumeToken() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return "", ErrFlowClosed
	}
	if f.engine.tokens == nil {
		return "", ErrResumeUnsupported
	}
	if f.email == "" {
		return "", fmt.Errorf("%w: no email submitted", ErrStepMismatch)
	}
	return f.engine.tokens.Issue(f.id, f.email, f.current().String())
}

// SignOut signs the user out with the provider after the flow completed and
// closes the flow.
func (f *Flow) SignOut(ctx context.Context) error {
	if err := f.enter(step.Complete); err != nil {
		return err
	}
	defer f.mu.Unlock()

	e := f.engine
	err := f.attempt(ctx, step.OpNone, func(ctx context.Context) error {
		return e.provider.SignOut(ctx, f.email)
	})
	if err != nil {
		return err
	}
	e.emitAudit(ctx, auditEventSignOut, true, f.id, f.email, step.Complete.String(), "", nil, nil)
	f.closeLocked()
	return nil
}

// Directory write failures are logged, not returned: the provider already
// accepted the change and the next smart check re-derives the step.
func (f *Flow) updateDirectoryLocked(ctx context.Context) {
	e := f.engine
	err := e.directory.Update(ctx, DirectoryRecord{
		UserID:    f.userID,
		Email:     f.email,
		State:     f.state,
		UpdatedAt: e.now(),
	})
	if err != nil {
		e.logger.Warn("updating user directory failed",
			zap.String("flow_id", f.id),
			zap.String("identifier", internalflows.MaskEmail(f.email)),
			zap.Error(err),
		)
	}
}

func (e *Engine) passwordPolicy() internalflows.PasswordPolicy {
	return internalflows.PasswordPolicy{
		MinLength: e.config.PasswordPolicy.MinLength,
		MaxLength: e.config.PasswordPolicy.MaxLength,
		MinScore:  e.config.PasswordPolicy.MinScore,
	}
}

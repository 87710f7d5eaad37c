package authflow

import (
	"context"
	"time"

	"github.com/MrEthical07/authflow/internal/flows"
	"github.com/MrEthical07/authflow/step"
)

// DirectoryRecord is one user row as held by the application's user
// directory. State is the directory's view of verification progress.
type DirectoryRecord struct {
	UserID    string
	Email     string
	State     step.VerificationState
	UpdatedAt time.Time
}

// UserDirectory is the application's source of truth for users. FindByEmail
// returns every record matching email (normally zero or one); any error is
// treated as a transport failure.
type UserDirectory interface {
	FindByEmail(ctx context.Context, email string) ([]DirectoryRecord, error)
	Create(ctx context.Context, rec DirectoryRecord) error
	Update(ctx context.Context, rec DirectoryRecord) error
}

// SignInOutcome is the provider's answer to a password sign-in.
type SignInOutcome uint8

const (
	SignInDone SignInOutcome = iota
	SignInMFASetupRequired
	SignInMFAChallenge
)

func (o SignInOutcome) String() string {
	switch o {
	case SignInDone:
		return "done"
	case SignInMFASetupRequired:
		return "mfa_setup_required"
	case SignInMFAChallenge:
		return "mfa_challenge"
	default:
		return "unknown"
	}
}

// MFASetupDetails carries what a client needs to enroll an authenticator.
// Rendering the URI as a QR code is the caller's concern.
type MFASetupDetails struct {
	Secret string
	URI    string
}

// SignInResult is returned by IdentityProvider.SignIn. MFASetup is set only
// for SignInMFASetupRequired.
type SignInResult struct {
	Outcome  SignInOutcome
	MFASetup *MFASetupDetails
}

// IdentityProvider is the external identity service. Rejections of
// credentials or codes must wrap ErrInvalidCredentials, ErrCodeMismatch or
// ErrCodeExpired; any other error is treated as a transport failure.
type IdentityProvider interface {
	SignUp(ctx context.Context, email, password string) error
	ConfirmSignUp(ctx context.Context, email, code string) error
	ResendSignUpCode(ctx context.Context, email string) error

	SignIn(ctx context.Context, email, password string) (SignInResult, error)
	// ConfirmSignIn verifies an MFA challenge code; false means the code was
	// wrong.
	ConfirmSignIn(ctx context.Context, email, code string) (bool, error)
	SignOut(ctx context.Context, email string) error

	ResetPassword(ctx context.Context, email string) error
	ConfirmResetPassword(ctx context.Context, email, code, newPassword string) error

	UpdatePhone(ctx context.Context, email, phone string) error
	ConfirmPhone(ctx context.Context, email, code string) error

	SetupMFA(ctx context.Context, email string) (MFASetupDetails, error)
	VerifyMFASetup(ctx context.Context, email, code string) error
}

// RecoveryAction is the side effect chosen by SmartCheck.
type RecoveryAction = flows.RecoveryAction

const (
	RecoveryNone               = flows.RecoveryNone
	RecoveryResendVerification = flows.RecoveryResendVerification
	RecoveryResumeAtStep       = flows.RecoveryResumeAtStep
)

// RecoveryResult is the outcome of SmartCheck.
type RecoveryResult = flows.RecoveryResult

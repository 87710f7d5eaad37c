package authflow

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authflow/step"
)

var (
	// ErrValidation is matched by every *ValidationError. Validation
	// failures are never counted as attempts.
	ErrValidation = errors.New("validation failed")
	// ErrRateLimited is matched by every *RateLimitError.
	ErrRateLimited = errors.New("rate limited")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrCodeMismatch       = errors.New("verification code mismatch")
	ErrCodeExpired        = errors.New("verification code expired")
	// ErrProviderUnavailable wraps identity provider transport failures.
	ErrProviderUnavailable = errors.New("identity provider unavailable")

	ErrDuplicateUser    = errors.New("duplicate user records")
	ErrAccountSuspended = errors.New("account suspended")

	ErrEngineNotReady    = errors.New("engine not initialized")
	ErrStepMismatch      = errors.New("operation not valid at current step")
	ErrBackNotAllowed    = errors.New("back navigation not allowed")
	ErrProgressNotFound  = errors.New("flow progress not found")
	ErrFlowClosed        = errors.New("flow closed")
	ErrTokenInvalid      = errors.New("resume token invalid")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrUnknownOperation  = errors.New("unknown rate-limited operation")
	ErrResumeUnsupported = errors.New("resume tokens not configured")
)

// ValidationError reports rejected user input. Reason is a short
// machine-readable code such as "malformed" or "too_weak".
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// RateLimitError reports a denied attempt and how long to wait.
type RateLimitError struct {
	Operation step.Operation
	Delay     time.Duration
	// Reason is "locked", "backoff" or "attack".
	Reason string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: %s (%s), retry in %s", e.Operation, e.Reason, e.Delay.Round(time.Second))
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// RetryAfter extracts the wait duration from a rate-limit error.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.Delay, true
	}
	return 0, false
}

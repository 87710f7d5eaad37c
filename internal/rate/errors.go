package rate

import "errors"

var (
	// ErrUnknownOperation is returned for operations outside the policy table.
	ErrUnknownOperation = errors.New("unknown rate limit operation")
	// ErrInvalidIdentifier is returned for empty identifiers.
	ErrInvalidIdentifier = errors.New("invalid rate limit identifier")
	// ErrStoreUnavailable wraps persistence failures.
	ErrStoreUnavailable = errors.New("rate limit store unavailable")
)

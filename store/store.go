package store

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable wraps backend failures so callers can fail open on them.
var ErrUnavailable = errors.New("store unavailable")

// ErrInvalidKey is returned for empty keys.
var ErrInvalidKey = errors.New("invalid store key")

// Store is the persistence port. Implementations must be safe for concurrent
// use. A ttl <= 0 stores the value without expiry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

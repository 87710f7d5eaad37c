package rate

import (
	"context"
	"errors"
	"fmt"
	"hash/maphash"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/MrEthical07/authflow/internal/attack"
	"github.com/MrEthical07/authflow/step"
	"go.uber.org/zap"
)

// Reasons reported on a denied [Decision].
const (
	ReasonLocked  = "locked"
	ReasonBackoff = "backoff"
	ReasonAttack  = "attack"
)

// Store is the subset of the persistence port the limiter needs.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Decision is the outcome of [Limiter.IsAttemptAllowed].
type Decision struct {
	Allowed bool
	Delay   time.Duration
	Reason  string
	// Degraded is set when limiter state could not be read and the attempt
	// was allowed anyway.
	Degraded bool
}

// Options holds limiter hooks. Zero values select the production defaults.
type Options struct {
	Now    func() time.Time
	Jitter func() time.Duration
	Logger *zap.Logger
}

const stripeCount = 64

// Limiter enforces per-identifier, per-operation attempt limits. Each
// read-modify-write is serialised per key inside the process; across
// processes the store is last-write-wins.
type Limiter struct {
	store    Store
	detector *attack.Detector
	now      func() time.Time
	jitter   func() time.Duration
	logger   *zap.Logger
	seed     maphash.Seed
	locks    [stripeCount]sync.Mutex
}

// New creates a [Limiter] persisting records in s and feeding every recorded
// attempt to detector.
func New(s Store, detector *attack.Detector, opts Options) *Limiter {
	l := &Limiter{
		store:    s,
		detector: detector,
		now:      opts.Now,
		jitter:   opts.Jitter,
		logger:   opts.Logger,
		seed:     maphash.MakeSeed(),
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.jitter == nil {
		l.jitter = defaultJitter
	}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	return l
}

func defaultJitter() time.Duration {
	return rand.N(time.Second)
}

func recordKey(identifier string, op step.Operation) string {
	return "rl:" + string(op) + ":" + identifier
}

func (l *Limiter) lock(identifier string, op step.Operation) *sync.Mutex {
	var h maphash.Hash
	h.SetSeed(l.seed)
	h.WriteString(string(op))
	h.WriteByte(0)
	h.WriteString(identifier)
	return &l.locks[h.Sum64()%stripeCount]
}

// IsAttemptAllowed reports whether identifier may attempt op now. It never
// writes to the store.
func (l *Limiter) IsAttemptAllowed(ctx context.Context, identifier string, op step.Operation) (Decision, error) {
	policy, err := validate(identifier, op)
	if err != nil {
		return Decision{}, err
	}
	now := l.now()

	rec, err := l.load(ctx, identifier, op)
	if err != nil {
		l.logger.Warn("rate limit check failed open",
			zap.String("operation", string(op)),
			zap.Error(err),
		)
		return Decision{Allowed: true, Degraded: true}, nil
	}
	rec = rec.settle(now)

	if rec.IsLocked {
		return Decision{Delay: rec.LockoutEndsAt.Sub(now), Reason: ReasonLocked}, nil
	}
	if now.Before(rec.NextAttemptAllowedAt) {
		return Decision{Delay: rec.NextAttemptAllowedAt.Sub(now), Reason: ReasonBackoff}, nil
	}

	pattern, err := l.detector.Pattern(ctx, identifier)
	if err != nil {
		l.logger.Warn("attack pattern check failed open",
			zap.String("operation", string(op)),
			zap.Error(err),
		)
		return Decision{Allowed: true, Degraded: true}, nil
	}
	if pattern.UnderAttack {
		return Decision{Delay: policy.AttackDelay(pattern.LockoutLevel), Reason: ReasonAttack}, nil
	}

	return Decision{Allowed: true}, nil
}

// RecordAttempt feeds the attempt to the attack detector and updates the
// (identifier, op) record: success deletes it, failure increments the
// counter, recomputes the backoff and locks once the policy budget is spent.
// Both updates are attempted even if one of them fails.
func (l *Limiter) RecordAttempt(ctx context.Context, identifier string, op step.Operation, success bool, clientTag string) error {
	policy, err := validate(identifier, op)
	if err != nil {
		return err
	}
	now := l.now()

	_, detectErr := l.detector.Record(ctx, attack.Attempt{
		Timestamp:  now,
		Identifier: identifier,
		Operation:  string(op),
		Success:    success,
		ClientTag:  clientTag,
	})

	return errors.Join(detectErr, l.update(ctx, identifier, op, policy, success, now))
}

func (l *Limiter) update(ctx context.Context, identifier string, op step.Operation, policy Policy, success bool, now time.Time) error {
	key := recordKey(identifier, op)

	mu := l.lock(identifier, op)
	mu.Lock()
	defer mu.Unlock()

	if success {
		if err := l.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return nil
	}

	rec, err := l.load(ctx, identifier, op)
	if err != nil {
		return err
	}
	rec = rec.settle(now)

	rec.TotalFailedAttempts++
	rec.CurrentDelay = min(policy.Backoff(rec.TotalFailedAttempts)+l.jitter(), policy.MaxDelay)
	rec.NextAttemptAllowedAt = now.Add(rec.CurrentDelay)
	if rec.TotalFailedAttempts >= policy.MaxAttempts && !rec.IsLocked {
		rec.IsLocked = true
		rec.LockoutEndsAt = now.Add(policy.LockoutDuration)
		l.logger.Info("rate limit lockout",
			zap.String("operation", string(op)),
			zap.Uint32("failed_attempts", rec.TotalFailedAttempts),
			zap.Time("lockout_ends_at", rec.LockoutEndsAt),
		)
	}
	if rec.IsLocked && rec.NextAttemptAllowedAt.After(rec.LockoutEndsAt) {
		rec.NextAttemptAllowedAt = rec.LockoutEndsAt
	}

	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	if err := l.store.Set(ctx, key, data, policy.ttl()); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// IsUnderAttack reports the attack detector's verdict for identifier.
func (l *Limiter) IsUnderAttack(ctx context.Context, identifier string) (bool, error) {
	if identifier == "" {
		return false, ErrInvalidIdentifier
	}
	return l.detector.IsUnderAttack(ctx, identifier)
}

// Snapshot returns the record for (identifier, op) as it currently reads,
// without writing.
func (l *Limiter) Snapshot(ctx context.Context, identifier string, op step.Operation) (Record, error) {
	if _, err := validate(identifier, op); err != nil {
		return Record{}, err
	}
	rec, err := l.load(ctx, identifier, op)
	if err != nil {
		return Record{}, err
	}
	return rec.settle(l.now()), nil
}

// Reset clears the records for identifier. With no operations given every
// operation is cleared along with the identifier's attack history.
func (l *Limiter) Reset(ctx context.Context, identifier string, ops ...step.Operation) error {
	if identifier == "" {
		return ErrInvalidIdentifier
	}
	all := len(ops) == 0
	if all {
		ops = Operations()
	}
	for _, op := range ops {
		if _, ok := PolicyFor(op); !ok {
			return fmt.Errorf("%w: %q", ErrUnknownOperation, op)
		}
		mu := l.lock(identifier, op)
		mu.Lock()
		err := l.store.Delete(ctx, recordKey(identifier, op))
		mu.Unlock()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	if all {
		return l.detector.Forget(ctx, identifier)
	}
	return nil
}

func (l *Limiter) load(ctx context.Context, identifier string, op step.Operation) (Record, error) {
	data, err := l.store.Get(ctx, recordKey(identifier, op))
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if data == nil {
		return Record{}, nil
	}
	rec, err := decodeRecord(data)
	if err != nil {
		l.logger.Warn("discarding corrupt rate limit record", zap.String("operation", string(op)), zap.Error(err))
		return Record{}, nil
	}
	return rec, nil
}

func validate(identifier string, op step.Operation) (Policy, error) {
	if identifier == "" {
		return Policy{}, ErrInvalidIdentifier
	}
	policy, ok := PolicyFor(op)
	if !ok {
		return Policy{}, fmt.Errorf("%w: %q", ErrUnknownOperation, op)
	}
	return policy, nil
}

package rate

import (
	"time"

	"github.com/MrEthical07/authflow/step"
)

// Policy is the fixed limit configuration for one operation.
type Policy struct {
	MaxAttempts     uint32
	Window          time.Duration
	ExponentialBase uint32
	MaxDelay        time.Duration
	LockoutDuration time.Duration
}

const (
	baseDelay      = time.Second
	maxAttackDelay = 5 * time.Minute
	maxAttackScale = 5
)

var policies = map[step.Operation]Policy{
	step.OpEmailCheck: {
		MaxAttempts:     10,
		Window:          15 * time.Minute,
		ExponentialBase: 2,
		MaxDelay:        30 * time.Second,
		LockoutDuration: 15 * time.Minute,
	},
	step.OpPasswordVerify: {
		MaxAttempts:     5,
		Window:          15 * time.Minute,
		ExponentialBase: 2,
		MaxDelay:        60 * time.Second,
		LockoutDuration: 30 * time.Minute,
	},
	step.OpMFAVerify: {
		MaxAttempts:     3,
		Window:          10 * time.Minute,
		ExponentialBase: 3,
		MaxDelay:        120 * time.Second,
		LockoutDuration: 60 * time.Minute,
	},
	step.OpPhoneVerify: {
		MaxAttempts:     3,
		Window:          10 * time.Minute,
		ExponentialBase: 2,
		MaxDelay:        60 * time.Second,
		LockoutDuration: 30 * time.Minute,
	},
	step.OpEmailVerify: {
		MaxAttempts:     3,
		Window:          10 * time.Minute,
		ExponentialBase: 2,
		MaxDelay:        60 * time.Second,
		LockoutDuration: 30 * time.Minute,
	},
}

// PolicyFor returns the policy for op.
func PolicyFor(op step.Operation) (Policy, bool) {
	p, ok := policies[op]
	return p, ok
}

// Operations lists every rate-limited operation.
func Operations() []step.Operation {
	return []step.Operation{
		step.OpEmailCheck,
		step.OpPasswordVerify,
		step.OpMFAVerify,
		step.OpPhoneVerify,
		step.OpEmailVerify,
	}
}

// Backoff returns the delay after the n-th consecutive failure, before jitter
// is added: baseDelay * base^(n-1), capped at MaxDelay.
func (p Policy) Backoff(n uint32) time.Duration {
	if n == 0 {
		return 0
	}
	d := baseDelay
	for i := uint32(1); i < n; i++ {
		d *= time.Duration(p.ExponentialBase)
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return min(d, p.MaxDelay)
}

// AttackDelay returns the delay applied to an identifier flagged as under
// attack at the given lockout level.
func (p Policy) AttackDelay(level uint32) time.Duration {
	scale := min(level+1, maxAttackScale)
	return min(p.MaxDelay*time.Duration(scale), maxAttackDelay)
}

func (p Policy) ttl() time.Duration {
	return max(p.Window, p.LockoutDuration)
}

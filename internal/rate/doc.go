// Package rate implements the per-(identifier, operation) attempt limiter:
// exponential backoff after each failure, a hard lockout once the operation's
// attempt budget is spent, and an attack-scaled delay whenever
// internal/attack flags the identifier.
//
// # Record semantics
//
// One [Record] per key, created lazily on the first failure and deleted on
// success. Key prefix:
//   - rl:<operation>:<identifier>
//
// The policy window is a cleanup horizon only: records are persisted with a
// TTL of max(window, lockout) from the last write and are never reset early
// by it. An expired lockout reads as the zero record.
//
// # Failure mode
//
// The limiter fails open. If the store cannot be read the attempt is allowed
// and [Decision.Degraded] is set so callers can count it.
//
// # What this package must NOT do
//
//   - Call identity providers or decide flow steps.
//   - Be imported outside the authflow module.
package rate

// Package authflow runs multi-step authentication flows that heal themselves:
// a user who abandons a signup, loses a code or returns with a half-finished
// account is routed to the step the account actually needs instead of the
// step the client happened to remember.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build]. A [Flow] belongs to one user and serialises its own steps.
//
// # Architecture boundaries
//
// authflow is the public surface. It exposes [Engine], [Builder], [Flow],
// [Config] and value types (RecoveryResult, MetricsSnapshot, AuditEvent).
// Identity and account data are reached only through the [IdentityProvider]
// and [UserDirectory] ports. Rate limiting, attack detection, progress
// persistence and audit dispatch live under internal/ and are never exported.
//
// # Step resolution
//
// Every submitted email runs a smart check against the directory. The step
// table in package step decides what comes next: an unverified email before a
// missing phone, a missing phone before MFA enrollment. A directory outage
// keeps the flow at email entry rather than guessing.
//
// # Rate limiting
//
// Each rate-limited step is checked before the provider is called and its
// outcome is recorded afterwards. Failures back off exponentially with jitter
// and lock the identifier once the operation's budget is spent; the attack
// detector adds a delay for identifiers showing attack patterns. Limiter
// storage failures never lock users out: checks fail open and are reported as
// degraded.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores or record encodings in its public API.
//   - Store passwords or codes: they pass through to the identity provider.
//   - Import any sub-package that re-imports authflow (no import cycles).
package authflow

// Package store provides the key/value persistence port used for rate-limit
// records, attack-pattern histories and resumable flow progress.
//
// Two implementations are provided:
//
//   - [Memory] — process-local map with lazy TTL expiry, for tests and
//     single-process deployments.
//   - [Redis] — go-redis backed, shared across processes. Writes are
//     last-write-wins; callers accept eventual consistency across processes.
//
// A missing key is reported as (nil, nil) by Get, never as an error.
//
// # What this package must NOT do
//
//   - Interpret stored bytes; encoding belongs to the owning package.
//   - Retry failed backend calls; callers decide between fail-open and
//     fail-closed.
package store

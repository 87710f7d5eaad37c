// Package internal contains helper utilities private to authflow: secure
// random codes and secrets, and client fingerprint hashing.
//
// # Sub-packages
//
//   - attack: per-identifier attack pattern detection
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: pure-function runners for guarded attempts, smart recovery and
//     flow progress
//   - rate: per-operation attempt limiter with backoff and lockout
//
// # What this package must NOT do
//
//   - Export types that appear in the public authflow API.
//   - Be imported by any package outside the authflow module.
package internal

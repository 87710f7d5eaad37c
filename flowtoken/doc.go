// Package flowtoken signs and parses resume tokens for in-progress
// authentication flows.
//
// A resume token carries the flow ID, the normalized email and the step the
// flow last reached. It lets a client reopen a flow on another request (or
// another process) without a server-side session. The step claim is a hint
// only: the engine always re-runs recovery against the user directory before
// trusting it.
//
// # Signing
//
//   - ed25519 (default): private key signs, public key verifies. Keys may be
//     raw bytes or PEM.
//   - hs256: a single shared secret of at least 32 bytes.
//
// # What this package must NOT do
//
//   - Import authflow or any internal package.
//   - Persist tokens or track revocation.
package flowtoken

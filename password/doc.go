// Package password hashes and verifies credentials with Argon2id for identity
// providers that store passwords themselves. The authflow engine never sees
// a hash: it forwards plaintext to the provider.
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// When a stored hash was produced with weaker parameters,
// [Argon2.NeedsRehash] returns true so the provider can re-hash after the
// next successful sign-in.
//
// # What this package must NOT do
//
//   - Enforce password policy. Length and strength checks belong to the engine.
//   - Log plaintext passwords.
package password

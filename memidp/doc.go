// Package memidp provides an in-memory IdentityProvider and UserDirectory
// for examples, load tests and integration tests.
//
// Codes that a real provider would send by email, SMS or an authenticator
// app are kept in an outbox readable through LastCode, and optionally
// forwarded to an OnCode callback. MFA also accepts a TOTP code for the
// enrolled secret, so a real authenticator app works against the example
// server.
//
// Passwords are stored as Argon2id hashes from package password, using
// password.FastConfig unless Options.Hasher is set.
//
// # What this package must NOT do
//
//   - Be used in production: accounts live in process memory and are lost
//     on restart.
package memidp

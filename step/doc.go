// Package step models the positions of the authentication flow and the pure
// rules that move a user between them.
//
// # Rules
//
//   - [NextStep] maps a [VerificationState] to the first unmet requirement.
//   - [IsStepSafe] classifies steps that may be re-entered by back-navigation.
//   - [History] records visited steps, bounded to [MaxHistory] entries.
//
// Every per-step fact (rate-limit operation, safety, terminal flag) lives in a
// single descriptor table read through [Describe]; callers must not re-derive
// it with their own switch statements.
//
// # What this package must NOT do
//
//   - Perform I/O or read clocks.
//   - Import authflow or any internal package.
package step

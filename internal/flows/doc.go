// Package flows contains pure-function orchestrators for the Engine's flow
// operations.
//
// Each flow function (RunSmartCheck, RunGuardedAttempt, RunSaveProgress, etc.)
// accepts a typed dependency struct and returns results without side-effects
// beyond those dependencies. Identity provider calls, directory lookups and
// limiter access are all injected as function fields, so flows can be tested
// exhaustively with stub dependencies.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the limiter, directory, identity provider,
// audit dispatcher and metrics. They do NOT own any of these resources;
// ownership stays with the Engine. Step transitions are decided by the
// Engine's Flow handle, not here.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import authflow (to avoid import cycles).
//   - Perform I/O directly; all I/O is mediated through dependency functions.
package flows

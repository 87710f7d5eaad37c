// Package middleware exposes HTTP adapters for authflow.Engine.
//
// # Handlers
//
//   - [ClientContext]: attaches the client IP and a client tag to the request
//     context so audit events and the attack detector can see them.
//   - [Guard]: rejects requests for an identifier the limiter currently
//     denies, with 429 and Retry-After.
//   - [ResumeFlow]: reopens a flow from a bearer resume token.
//   - [WriteError]: maps engine errors to HTTP status codes.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. Every decision is
// delegated to the Engine; nothing here records attempts.
//
// # What this package must NOT do
//
//   - Access the store directly.
//   - Parse or create resume tokens (delegates to Engine).
package middleware

// Package deviceauth authenticates API callers across many devices per user
// with signed access tokens, opaque refresh tokens, and immediate revocation.
//
// Every access token names an ephemeral session record (keyed by its jti) in
// Redis, and every device holds one durable refresh token row in the
// [IdentityStore]. Validation checks the token signature, the session record,
// the durable user row and the token version on every request, so a revoked
// or stale credential is rejected on the very next call.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// deviceauth is the public surface. It exposes [Engine], [Builder], [Config],
// and value types ([TokenPair], [Identity], [SessionInfo], etc.). Flow
// orchestration, rate limiting and audit dispatch live under internal/ and
// are never exported. Storage backends live in session/ (ephemeral) and
// store/postgres (durable).
//
// # What this package must NOT do
//
//   - Expose Redis clients or encoding details in its public API.
//   - Perform I/O outside of Engine methods (construction via Builder does no
//     network calls).
//   - Import any sub-package that re-imports deviceauth (no import cycles).
//
// # Revocation contract
//
// Revoking one session or one device never touches another device. Revoking
// all devices bumps the user's token version first; that bump alone rejects
// every older access token, even when ephemeral cleanup fails or is still in
// flight.
package deviceauth

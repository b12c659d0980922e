// Package refresh generates and checks opaque refresh-token secrets.
//
// # Token format
//
// A refresh token is 32 random bytes encoded as base64url without padding.
// It carries no structure and shares nothing with the access token; the
// durable store keeps only its SHA-256 digest and looks tokens up by exact
// match on that digest.
//
// # What this package must NOT do
//
//   - Access Redis, the database or any other I/O.
//   - Implement rotation or revocation policy.
package refresh

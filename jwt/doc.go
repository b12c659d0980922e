// Package jwt signs and verifies HS256 access tokens carrying the
// {id, email, version, jti, iat, exp} claim set.
//
// Verification is strict: the algorithm is pinned, issuer and audience are
// enforced when configured, and expiry is reported separately from every
// other failure so callers can run expired-token cleanup.
package jwt

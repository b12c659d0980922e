// Package middleware exposes net/http adapters over deviceauth.Engine
// validation.
//
// # Guards
//
//   - [Guard] rejects requests without a valid bearer credential.
//   - [Optional] attaches an identity when one is present and valid, and
//     otherwise lets the request through anonymously.
//   - [RequireRoles] and [RequireFresh] run after Guard and enforce
//     authorization on the attached identity.
//
// Each guard reads the Authorization header, calls the engine, and injects
// the validated identity into the request context.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly.
//   - Access Redis or the identity store.
//   - Reveal which validation layer rejected a request.
package middleware

// Package session provides the ephemeral session store used for near-immediate
// revocation of access tokens.
//
// # Key layout
//
// Every issued access token owns one record keyed by its JTI and is a member
// of its owner's session set:
//
//	session:{jti}               binary encoded [Record], TTL = access token lifetime
//	sessions-of-user:{user_id}  set of live JTIs, TTL = access lifetime + buffer
//
// An optional prefix namespaces both keys ("prefix:session:{jti}").
//
// # Binary encoding
//
// Records are stored in a compact versioned binary format. The first byte is
// the format version; decoders reject versions they do not know.
//
// # Architecture boundaries
//
// This package owns the Redis-backed [Store], the in-memory [MemoryStore] and
// the [Record] model. It does NOT parse tokens or compare token versions with
// the durable user record; those decisions belong to the validator.
package session

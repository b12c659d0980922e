// Package password implements password hashing and verification.
//
// # Output format
//
// Argon2id hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Bcrypt hashes use the standard modular crypt format ($2a$, $2b$, $2y$).
//
// [Chain] combines a primary scheme with legacy schemes: new hashes use the
// primary, stored hashes verify with whichever scheme recognises them, and
// [Chain.NeedsRehash] reports true for anything not produced by the primary
// with current parameters.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Enforce password policy beyond byte-length bounds.
//   - Log plaintext passwords.
package password

package refresh

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
)

const secretSize = 32

// ErrMalformed is returned by [Check] for strings that cannot be a token.
var ErrMalformed = errors.New("malformed refresh token")

// NewToken returns a fresh opaque refresh token.
func NewToken() (string, error) {
	var secret [secretSize]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(secret[:]), nil
}

// Check rejects strings that [NewToken] could not have produced, so garbage
// never costs a database round trip.
func Check(token string) error {
	if len(token) != base64.RawURLEncoding.EncodedLen(secretSize) {
		return ErrMalformed
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) != secretSize {
		return ErrMalformed
	}
	return nil
}

// Hash returns the hex SHA-256 digest under which token is stored.
func Hash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

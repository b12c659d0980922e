package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
)

const jtiSize = 16

// NewJTI returns a fresh 128-bit token identifier, base64url without padding.
func NewJTI() (string, error) {
	var raw [jtiSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// ValidJTI reports whether jti has the shape produced by [NewJTI].
func ValidJTI(jti string) error {
	raw, err := base64.RawURLEncoding.DecodeString(jti)
	if err != nil {
		return err
	}
	if len(raw) != jtiSize {
		return errors.New("invalid jti size")
	}
	return nil
}

package password

import "errors"

var (
	// ErrPasswordEmpty is returned when hashing an empty password.
	ErrPasswordEmpty = errors.New("password is empty")
	// ErrPasswordTooLong is returned for passwords longer than 1024 bytes.
	ErrPasswordTooLong = errors.New("password exceeds 1024 bytes")
	// ErrUnknownScheme is returned when no scheme recognises a stored hash.
	ErrUnknownScheme = errors.New("unknown password hash scheme")
)

// Hasher hashes and verifies passwords.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
	NeedsRehash(encodedHash string) bool
}

// Scheme is a Hasher that can recognise its own encoded hashes.
type Scheme interface {
	Hasher
	Identifies(encodedHash string) bool
}

// Chain hashes with a primary scheme and verifies hashes produced by any of
// its schemes. Hashes from a legacy scheme always need a rehash, so users
// migrate to the primary scheme on their next login.
type Chain struct {
	primary Scheme
	legacy  []Scheme
}

// NewChain returns a Chain with primary used for new hashes.
func NewChain(primary Scheme, legacy ...Scheme) *Chain {
	return &Chain{primary: primary, legacy: legacy}
}

func (c *Chain) Hash(password string) (string, error) {
	return c.primary.Hash(password)
}

func (c *Chain) Verify(password, encodedHash string) (bool, error) {
	if c.primary.Identifies(encodedHash) {
		return c.primary.Verify(password, encodedHash)
	}
	for _, s := range c.legacy {
		if s.Identifies(encodedHash) {
			return s.Verify(password, encodedHash)
		}
	}
	return false, ErrUnknownScheme
}

func (c *Chain) NeedsRehash(encodedHash string) bool {
	if c.primary.Identifies(encodedHash) {
		return c.primary.NeedsRehash(encodedHash)
	}
	return true
}

func checkLength(password string) error {
	if password == "" {
		return ErrPasswordEmpty
	}
	if len(password) > maxPassBytes {
		return ErrPasswordTooLong
	}
	return nil
}

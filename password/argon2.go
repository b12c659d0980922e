package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	maxPassBytes          = 1024
	algorithmID           = "argon2id"
)

// Config holds Argon2id cost parameters. Memory is in KiB.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultConfig returns the parameters used when none are configured.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Argon2 hashes passwords with Argon2id and encodes them as PHC strings
// with unpadded base64 salt and key, the form other Argon2id libraries emit.
type Argon2 struct {
	config Config
}

// phc is a decoded Argon2id hash: its cost parameters plus salt and key.
type phc struct {
	Config
	salt []byte
	key  []byte
}

var errInvalidHash = errors.New("invalid argon2id hash")

// NewArgon2 validates cfg against the minimum cost parameters.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := cfg.check(); err != nil {
		return nil, err
	}
	return &Argon2{config: cfg}, nil
}

// Hash returns a PHC encoded Argon2id hash of password with a fresh salt.
// Bytes are hashed as given, without Unicode normalization.
func (a *Argon2) Hash(password string) (string, error) {
	if err := checkLength(password); err != nil {
		return "", err
	}

	h := phc{Config: a.config, salt: make([]byte, a.config.SaltLength)}
	if _, err := io.ReadFull(rand.Reader, h.salt); err != nil {
		return "", err
	}
	h.key = h.derive(password)
	return h.String(), nil
}

// Verify reports whether password matches encodedHash in constant time.
func (a *Argon2) Verify(password string, encodedHash string) (bool, error) {
	if len(password) > maxPassBytes {
		return false, ErrPasswordTooLong
	}
	h, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(h.derive(password), h.key) == 1, nil
}

// NeedsRehash reports whether encodedHash was produced with weaker
// parameters than the configured ones. Unparseable hashes need a rehash.
func (a *Argon2) NeedsRehash(encodedHash string) bool {
	h, err := decodePHC(encodedHash)
	if err != nil {
		return true
	}
	return h.Memory < a.config.Memory ||
		h.Time < a.config.Time ||
		h.Parallelism < a.config.Parallelism ||
		h.KeyLength != a.config.KeyLength
}

// Identifies reports whether encodedHash is an Argon2id PHC string.
func (a *Argon2) Identifies(encodedHash string) bool {
	return strings.HasPrefix(encodedHash, "$"+algorithmID+"$")
}

func (h *phc) derive(password string) []byte {
	return argon2.IDKey([]byte(password), h.salt, h.Time, h.Memory, h.Parallelism, h.KeyLength)
}

func (h *phc) params() string {
	return fmt.Sprintf("m=%d,t=%d,p=%d", h.Memory, h.Time, h.Parallelism)
}

func (h *phc) String() string {
	return fmt.Sprintf("$%s$v=%d$%s$%s$%s",
		algorithmID,
		argon2.Version,
		h.params(),
		base64.RawStdEncoding.EncodeToString(h.salt),
		base64.RawStdEncoding.EncodeToString(h.key),
	)
}

// decodePHC parses $argon2id$v=19$m=..,t=..,p=..$salt$key. The parameter
// segment must be in canonical order with no extra fields.
func decodePHC(encoded string) (*phc, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return nil, errInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, fmt.Errorf("%w: version", errInvalidHash)
	}
	if version != argon2.Version {
		return nil, fmt.Errorf("unsupported argon2 version %d", version)
	}

	var h phc
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &h.Memory, &h.Time, &h.Parallelism); err != nil || h.params() != parts[3] {
		return nil, fmt.Errorf("%w: parameters", errInvalidHash)
	}

	var err error
	if h.salt, err = decodeSegment(parts[4]); err != nil {
		return nil, fmt.Errorf("%w: salt", errInvalidHash)
	}
	if h.key, err = decodeSegment(parts[5]); err != nil {
		return nil, fmt.Errorf("%w: key", errInvalidHash)
	}
	h.SaltLength = uint32(len(h.salt))
	h.KeyLength = uint32(len(h.key))

	if err := h.check(); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidHash, err)
	}
	return &h, nil
}

// decodeSegment accepts unpadded base64 and, for hashes written by older
// releases, the padded form.
func decodeSegment(s string) ([]byte, error) {
	if b, err := base64.RawStdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.StdEncoding.DecodeString(s)
}

func (c Config) check() error {
	switch {
	case c.Memory < minMemoryKB:
		return fmt.Errorf("password memory must be >= %d KB", minMemoryKB)
	case c.Time < minTimeCost:
		return fmt.Errorf("password time must be >= %d", minTimeCost)
	case c.Parallelism < minParallelism:
		return fmt.Errorf("password parallelism must be >= %d", minParallelism)
	case c.SaltLength < minSaltLength:
		return fmt.Errorf("password salt length must be >= %d", minSaltLength)
	case c.KeyLength < minKeyLength:
		return fmt.Errorf("password key length must be >= %d", minKeyLength)
	}
	return nil
}

package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the shortest HMAC secret [NewManager] accepts.
const MinSecretLength = 32

var (
	// ErrInvalid covers bad signatures, malformed tokens and claim failures
	// other than expiry.
	ErrInvalid = errors.New("invalid access token")
	// ErrExpired is returned for a correctly signed token past its exp.
	ErrExpired = errors.New("access token expired")
)

// Config controls token issuance and verification.
type Config struct {
	AccessTTL    time.Duration
	Secret       []byte
	Issuer       string
	Audience     string
	Leeway       time.Duration
	MaxFutureIAT time.Duration

	// KeyID is written to the "kid" header of issued tokens. When VerifyKeys
	// is set, tokens are verified with the secret named by their kid, which
	// allows rotating secrets without invalidating live tokens.
	KeyID      string
	VerifyKeys map[string][]byte

	// Now overrides the clock for issuance and expiry checks.
	Now func() time.Time
}

// Manager issues and parses access tokens. It is safe for concurrent use.
type Manager struct {
	config Config
}

// AccessClaims is the signed claim set. Version is a pointer so tokens
// minted without a version claim can be told apart from version 0.
type AccessClaims struct {
	UserID  string `json:"id"`
	Email   string `json:"email,omitempty"`
	Version *int64 `json:"version,omitempty"`
	jwt.RegisteredClaims
}

// JTI returns the token identifier, or "" for tokens minted without one.
func (c *AccessClaims) JTI() string {
	return c.ID
}

// AccessInput is the data sealed into a new access token.
type AccessInput struct {
	UserID   string
	Email    string
	Version  int64
	JTI      string
	IssuedAt time.Time
}

// NewManager validates cfg and returns a [Manager].
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("hs256 secret must be at least %d bytes", MinSecretLength)
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	for kid, key := range cfg.VerifyKeys {
		if strings.TrimSpace(kid) == "" {
			return nil, errors.New("verify key map contains empty kid")
		}
		if len(key) < MinSecretLength {
			return nil, fmt.Errorf("verify key for kid %q is shorter than %d bytes", kid, MinSecretLength)
		}
	}
	if cfg.KeyID != "" && len(cfg.VerifyKeys) > 0 {
		if _, ok := cfg.VerifyKeys[cfg.KeyID]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Manager{config: cfg}, nil
}

// AccessTTL returns the configured access token lifetime.
func (j *Manager) AccessTTL() time.Duration {
	return j.config.AccessTTL
}

// CreateAccess signs a token for in and returns it with its expiry.
// A zero IssuedAt uses the manager clock.
func (j *Manager) CreateAccess(in AccessInput) (string, time.Time, error) {
	if in.UserID == "" {
		return "", time.Time{}, errors.New("access token requires user id")
	}
	if in.JTI == "" {
		return "", time.Time{}, errors.New("access token requires jti")
	}

	issuedAt := in.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = j.config.Now()
	}
	issuedAt = issuedAt.Truncate(time.Second)
	expiresAt := issuedAt.Add(j.config.AccessTTL)

	version := in.Version
	claims := AccessClaims{
		UserID:  in.UserID,
		Email:   in.Email,
		Version: &version,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        in.JTI,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			Issuer:    j.config.Issuer,
		},
	}
	if j.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{j.config.Audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if j.config.KeyID != "" {
		token.Header["kid"] = j.config.KeyID
	}

	signed, err := token.SignedString(j.config.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ParseAccess verifies tokenStr and returns its claims.
//
// Failures wrap [ErrInvalid] or [ErrExpired]. For [ErrExpired] the claims of
// the signature-checked token are returned alongside the error so the caller
// can locate the session to clean up; they must not be used to authenticate.
func (j *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(j.config.Now),
		jwt.WithExpirationRequired(),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}
	if j.config.Audience != "" {
		options = append(options, jwt.WithAudience(j.config.Audience))
	}

	parser := jwt.NewParser(options...)
	claims := &AccessClaims{}
	token, err := parser.ParseWithClaims(tokenStr, claims, j.keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return claims, fmt.Errorf("%w: %v", ErrExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, jwt.ErrTokenInvalidClaims)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing id claim", ErrInvalid)
	}
	if claims.IssuedAt != nil && j.config.MaxFutureIAT > 0 {
		maxAllowed := j.config.Now().Add(j.config.MaxFutureIAT)
		if claims.IssuedAt.Time.After(maxAllowed) {
			return nil, fmt.Errorf("%w: token iat too far in the future", ErrInvalid)
		}
	}

	return claims, nil
}

func (j *Manager) keyFunc(t *jwt.Token) (interface{}, error) {
	if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}

	if len(j.config.VerifyKeys) > 0 {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		key, ok := j.config.VerifyKeys[kid]
		if !ok {
			return nil, errors.New("unknown kid")
		}
		return key, nil
	}

	if j.config.KeyID != "" {
		kid, _ := t.Header["kid"].(string)
		if kid != j.config.KeyID {
			return nil, errors.New("unknown kid")
		}
	}

	return j.config.Secret, nil
}

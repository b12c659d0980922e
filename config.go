package deviceauth

import (
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/deviceauth/jwt"
	"github.com/MrEthical07/deviceauth/password"
)

// Config holds every engine setting. It is cloned at build time, so later
// mutations by the caller do not affect a running Engine.
type Config struct {
	JWT       JWTConfig
	Session   SessionConfig
	Freshness FreshnessConfig
	Password  PasswordConfig
	RateLimit RateLimitConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures HS256 access tokens and refresh token lifetime.
type JWTConfig struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
	Audience   string
	Leeway     time.Duration
	// KeyID and VerifyKeys enable secret rotation: tokens are signed with
	// Secret under KeyID and verified with VerifyKeys[kid].
	KeyID      string
	VerifyKeys map[string][]byte
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig configures the ephemeral session store.
type SessionConfig struct {
	// KeyPrefix namespaces every key as "<prefix>:session:{jti}".
	KeyPrefix string
	// SetTTLBuffer is added to the access TTL for the per-user session set.
	SetTTLBuffer time.Duration
}

// FreshnessConfig configures CheckFreshness.
type FreshnessConfig struct {
	DefaultMaxAge time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig configures the default Argon2id hasher and password policy.
type PasswordConfig struct {
	Memory             uint32 // in KB
	Time               uint32
	Parallelism        uint8
	SaltLength         uint32
	KeyLength          uint32
	MinLength          int
	UpgradeOnLogin     bool
	AcceptLegacyBcrypt bool
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig configures the Redis fixed-window throttles.
type RateLimitConfig struct {
	Enabled                 bool
	EnableIPThrottle        bool
	EnableRefreshThrottle   bool
	MaxLoginAttempts        int
	LoginCooldownDuration   time.Duration
	MaxRefreshAttempts      int
	RefreshCooldownDuration time.Duration
}

// AuditConfig configures the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles in-process counters and the latency histogram.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns production defaults. JWT.Secret must still be set.
func DefaultConfig() Config {
	pw := password.DefaultConfig()
	return Config{
		JWT: JWTConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 30 * 24 * time.Hour,
			Leeway:     0,
		},
		Session: SessionConfig{
			KeyPrefix:    "",
			SetTTLBuffer: time.Minute,
		},
		Freshness: FreshnessConfig{
			DefaultMaxAge: 5 * time.Minute,
		},
		Password: PasswordConfig{
			Memory:         pw.Memory,
			Time:           pw.Time,
			Parallelism:    pw.Parallelism,
			SaltLength:     pw.SaltLength,
			KeyLength:      pw.KeyLength,
			MinLength:      10,
			UpgradeOnLogin: true,
		},
		RateLimit: RateLimitConfig{
			Enabled:                 true,
			EnableIPThrottle:        false,
			EnableRefreshThrottle:   true,
			MaxLoginAttempts:        5,
			LoginCooldownDuration:   15 * time.Minute,
			MaxRefreshAttempts:      20,
			RefreshCooldownDuration: time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = cloneBytes(cfg.JWT.Secret)
	if cfg.JWT.VerifyKeys != nil {
		out.JWT.VerifyKeys = make(map[string][]byte, len(cfg.JWT.VerifyKeys))
		for kid, key := range cfg.JWT.VerifyKeys {
			out.JWT.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting. Errors wrap ErrInvalidConfig.
func (c *Config) Validate() error {
	// JWT
	if len(c.JWT.Secret) < jwt.MinSecretLength {
		return invalidConfig("JWT Secret must be at least %d bytes", jwt.MinSecretLength)
	}
	if c.JWT.AccessTTL <= 0 {
		return invalidConfig("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return invalidConfig("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return invalidConfig("JWT RefreshTTL must be >= AccessTTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return invalidConfig("JWT Leeway must be between 0 and 2m")
	}
	if c.JWT.Audience != "" && strings.TrimSpace(c.JWT.Audience) == "" {
		return invalidConfig("JWT Audience must not be blank")
	}
	if c.JWT.Issuer != "" && strings.TrimSpace(c.JWT.Issuer) == "" {
		return invalidConfig("JWT Issuer must not be blank")
	}

	// Session
	if c.Session.SetTTLBuffer < 0 {
		return invalidConfig("Session SetTTLBuffer must be >= 0")
	}
	if strings.ContainsAny(c.Session.KeyPrefix, " \t\r\n") {
		return invalidConfig("Session KeyPrefix must not contain whitespace")
	}

	// Freshness
	if c.Freshness.DefaultMaxAge <= 0 {
		return invalidConfig("Freshness DefaultMaxAge must be > 0")
	}

	// Password
	if c.Password.MinLength < 1 || c.Password.MinLength > 1024 {
		return invalidConfig("Password MinLength must be between 1 and 1024")
	}

	// Rate limits
	if c.RateLimit.Enabled {
		if c.RateLimit.MaxLoginAttempts <= 0 {
			return invalidConfig("RateLimit MaxLoginAttempts must be > 0")
		}
		if c.RateLimit.LoginCooldownDuration <= 0 {
			return invalidConfig("RateLimit LoginCooldownDuration must be > 0")
		}
		if c.RateLimit.EnableRefreshThrottle {
			if c.RateLimit.MaxRefreshAttempts <= 0 {
				return invalidConfig("RateLimit MaxRefreshAttempts must be > 0")
			}
			if c.RateLimit.RefreshCooldownDuration <= 0 {
				return invalidConfig("RateLimit RefreshCooldownDuration must be > 0")
			}
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return invalidConfig("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}

func invalidConfig(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

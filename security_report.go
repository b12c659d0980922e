package deviceauth

import "time"

// SecurityReport is a read-only snapshot of the engine's security posture.
type SecurityReport struct {
	SigningAlgorithm      string
	KeyRotationActive     bool
	IssuerBound           bool
	AudienceBound         bool
	AccessTTL             time.Duration
	RefreshTTL            time.Duration
	FreshnessMaxAge       time.Duration
	Argon2                PasswordConfigReport
	MinPasswordLength     int
	LegacyBcryptAccepted  bool
	RefreshRotation       bool
	LoginRateLimitActive  bool
	IPThrottleActive      bool
	RefreshThrottleActive bool
	AuditActive           bool
}

type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	limiter := e.rateLimiter != nil

	return SecurityReport{
		SigningAlgorithm:  "HS256",
		KeyRotationActive: len(e.config.JWT.VerifyKeys) > 0,
		IssuerBound:       e.config.JWT.Issuer != "",
		AudienceBound:     e.config.JWT.Audience != "",
		AccessTTL:         e.config.JWT.AccessTTL,
		RefreshTTL:        e.config.JWT.RefreshTTL,
		FreshnessMaxAge:   e.config.Freshness.DefaultMaxAge,
		Argon2: PasswordConfigReport{
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			SaltLength:  e.config.Password.SaltLength,
			KeyLength:   e.config.Password.KeyLength,
		},
		MinPasswordLength:     e.config.Password.MinLength,
		LegacyBcryptAccepted:  e.config.Password.AcceptLegacyBcrypt,
		RefreshRotation:       false,
		LoginRateLimitActive:  limiter,
		IPThrottleActive:      limiter && e.config.RateLimit.EnableIPThrottle,
		RefreshThrottleActive: limiter && e.config.RateLimit.EnableRefreshThrottle,
		AuditActive:           e.config.Audit.Enabled,
	}
}

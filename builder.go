package deviceauth

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/deviceauth/internal"
	internalaudit "github.com/MrEthical07/deviceauth/internal/audit"
	"github.com/MrEthical07/deviceauth/internal/flows"
	"github.com/MrEthical07/deviceauth/internal/rate"
	"github.com/MrEthical07/deviceauth/jwt"
	"github.com/MrEthical07/deviceauth/password"
	"github.com/MrEthical07/deviceauth/refresh"
	"github.com/MrEthical07/deviceauth/session"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an [Engine]. A Builder is single-use: configure it during
// initialization, call Build once, and discard it.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	sessions SessionStore
	identity IdentityStore
	hasher   PasswordHasher

	logger    *zap.Logger
	auditSink AuditSink
	clock     func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration. The value is cloned.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing the session store and the rate
// limiters. Any go-redis client works, including cluster and ring clients.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithSessionStore overrides the Redis session store. Rate limiting still
// needs WithRedis.
func (b *Builder) WithSessionStore(store SessionStore) *Builder {
	b.sessions = store
	return b
}

// WithIdentityStore sets the durable store of users and refresh tokens.
// It is required.
func (b *Builder) WithIdentityStore(store IdentityStore) *Builder {
	b.identity = store
	return b
}

// WithPasswordHasher overrides the hasher derived from Config.Password.
func (b *Builder) WithPasswordHasher(h PasswordHasher) *Builder {
	b.hasher = h
	return b
}

// WithLogger sets the operational logger. Defaults to zap.NewNop.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets the audit sink. Config.Audit.Enabled must also be set
// for events to be dispatched.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock overrides time.Now for token issuance, expiry and freshness.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
//
// Build fails with an error wrapping [ErrInvalidConfig] for bad settings, and
// with a plain error when a required dependency is missing or the builder was
// already used.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.identity == nil {
		return nil, errors.New("identity store required")
	}
	if b.redis == nil && b.sessions == nil {
		return nil, errors.New("redis client or session store required")
	}

	now := b.clock
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// -------- SESSION STORE --------
	sessions := b.sessions
	if sessions == nil {
		sessions = session.NewStore(b.redis, cfg.Session.KeyPrefix, cfg.Session.SetTTLBuffer,
			session.WithClock(now),
			session.WithLogger(logger.Named("sessions")),
		)
	}

	// -------- PASSWORD HASHER --------
	hasher := b.hasher
	if hasher == nil {
		h, err := newDefaultHasher(cfg.Password)
		if err != nil {
			return nil, err
		}
		hasher = h
	}
	dummyHash, err := hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, err
	}

	// -------- JWT --------
	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:  cfg.JWT.AccessTTL,
		Secret:     cloneBytes(cfg.JWT.Secret),
		Issuer:     cfg.JWT.Issuer,
		Audience:   cfg.JWT.Audience,
		Leeway:     cfg.JWT.Leeway,
		KeyID:      cfg.JWT.KeyID,
		VerifyKeys: cfg.JWT.VerifyKeys,
		Now:        now,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:       cfg,
		sessionStore: sessions,
		identity:     b.identity,
		hasher:       hasher,
		jwtManager:   jm,
		logger:       logger,
		now:          now,
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
			Logger:     logger.Named("audit-dispatch"),
		}, b.auditSink),
		metrics: NewMetrics(cfg.Metrics),
	}

	// -------- RATE LIMITER --------
	if b.redis != nil && cfg.RateLimit.Enabled {
		engine.rateLimiter = rate.New(b.redis, rate.Config{
			KeyPrefix:               cfg.Session.KeyPrefix,
			EnableIPThrottle:        cfg.RateLimit.EnableIPThrottle,
			EnableRefreshThrottle:   cfg.RateLimit.EnableRefreshThrottle,
			MaxLoginAttempts:        cfg.RateLimit.MaxLoginAttempts,
			LoginCooldownDuration:   cfg.RateLimit.LoginCooldownDuration,
			MaxRefreshAttempts:      cfg.RateLimit.MaxRefreshAttempts,
			RefreshCooldownDuration: cfg.RateLimit.RefreshCooldownDuration,
		})
	}

	engine.flows = flows.New(engine.flowDeps(dummyHash))

	b.built = true

	return engine, nil
}

func newDefaultHasher(cfg PasswordConfig) (PasswordHasher, error) {
	primary, err := password.NewArgon2(password.Config{
		Memory:      cfg.Memory,
		Time:        cfg.Time,
		Parallelism: cfg.Parallelism,
		SaltLength:  cfg.SaltLength,
		KeyLength:   cfg.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	if !cfg.AcceptLegacyBcrypt {
		return primary, nil
	}
	legacy, err := password.NewBcrypt(0)
	if err != nil {
		return nil, err
	}
	return password.NewChain(primary, legacy), nil
}

/*
====================================
FLOW WIRING
====================================
*/

func (e *Engine) flowDeps(dummyHash string) flows.Deps {
	store := e.identity
	log := e.logger

	loadUser := func(ctx context.Context, userID string) (flows.User, error) {
		u, err := store.GetUserByID(ctx, userID)
		if err != nil {
			return flows.User{}, err
		}
		return toFlowUser(u), nil
	}
	findRow := func(ctx context.Context, tokenHash string) (flows.RefreshRow, error) {
		rec, err := store.GetRefreshTokenByHash(ctx, tokenHash)
		if err != nil {
			return flows.RefreshRow{}, err
		}
		return toFlowRow(rec), nil
	}

	issue := flows.IssueDeps{
		Now:             e.now,
		NewJTI:          internal.NewJTI,
		NewRefreshToken: refresh.NewToken,
		HashRefresh:     refresh.Hash,
		NewRowID:        uuid.NewString,
		CreateAccess:    e.jwtManager.CreateAccess,
		RefreshTTL:      e.config.JWT.RefreshTTL,
		SessionStore:    e.sessionStore,
		InsertRefresh: func(ctx context.Context, row flows.RefreshRow) error {
			return store.CreateRefreshToken(ctx, fromFlowRow(row))
		},
		Logger: log,
	}

	revoke := flows.RevokeDeps{
		SessionStore:     e.sessionStore,
		HashToken:        refresh.Hash,
		FindRow:          findRow,
		RowNotFound:      ErrRecordNotFound,
		RevokeRow:        store.RevokeRefreshToken,
		RevokeAllRows:    store.RevokeRefreshTokensForUser,
		IncrementVersion: store.IncrementTokenVersion,
		Logger:           log,
	}

	deps := flows.Deps{
		Issue: issue,
		Validate: flows.ValidateDeps{
			ParseAccess:  e.jwtManager.ParseAccess,
			SessionStore: e.sessionStore,
			LoadUser:     loadUser,
			UserNotFound: ErrRecordNotFound,
			Logger:       log,
		},
		Refresh: flows.RefreshDeps{
			Now:          e.now,
			CheckToken:   refresh.Check,
			HashToken:    refresh.Hash,
			FindRow:      findRow,
			RowNotFound:  ErrRecordNotFound,
			RevokeRow:    store.RevokeRefreshToken,
			TouchRow:     store.TouchRefreshToken,
			LoadUser:     loadUser,
			UserNotFound: ErrRecordNotFound,
			Issue:        issue,
			Logger:       log,
		},
		Revoke: revoke,
		Directory: flows.DirectoryDeps{
			Now:          e.now,
			SessionStore: e.sessionStore,
			ListRows: func(ctx context.Context, userID string) ([]flows.RefreshRow, error) {
				recs, err := store.ListRefreshTokens(ctx, userID)
				if err != nil {
					return nil, err
				}
				rows := make([]flows.RefreshRow, 0, len(recs))
				for i := range recs {
					rows = append(rows, toFlowRow(&recs[i]))
				}
				return rows, nil
			},
		},
		Login: flows.LoginDeps{
			NormalizeEmail: rate.NormalizeEmail,
			FindUserByEmail: func(ctx context.Context, email string) (flows.User, error) {
				u, err := store.GetUserByEmail(ctx, email)
				if err != nil {
					return flows.User{}, err
				}
				return toFlowUser(u), nil
			},
			UserNotFound:       ErrRecordNotFound,
			VerifyPassword:     e.hasher.Verify,
			HashPassword:       e.hasher.Hash,
			UpdatePasswordHash: store.UpdatePasswordHash,
			DummyHash:          dummyHash,
			Issue:              issue,
			Logger:             log,
		},
		Register: flows.RegisterDeps{
			NormalizeEmail:    rate.NormalizeEmail,
			MinPasswordLength: e.config.Password.MinLength,
			NewUserID:         uuid.NewString,
			HashPassword:      e.hasher.Hash,
			CreateUser: func(ctx context.Context, nu flows.NewUser) (flows.User, error) {
				u, err := store.CreateUser(ctx, NewUser{
					ID:           nu.ID,
					Email:        nu.Email,
					PasswordHash: nu.PasswordHash,
					Roles:        nu.Roles,
				})
				if err != nil {
					return flows.User{}, err
				}
				return toFlowUser(u), nil
			},
			EmailTaken: ErrEmailTaken,
			Issue:      issue,
		},
		ChangePassword: flows.ChangePasswordDeps{
			LoadUser:           loadUser,
			UserNotFound:       ErrRecordNotFound,
			MinPasswordLength:  e.config.Password.MinLength,
			VerifyPassword:     e.hasher.Verify,
			HashPassword:       e.hasher.Hash,
			UpdatePasswordHash: store.UpdatePasswordHash,
			Revoke:             revoke,
			Issue:              issue,
		},
	}

	if e.config.Password.UpgradeOnLogin {
		deps.Login.NeedsRehash = e.hasher.NeedsRehash
	}
	// A nil *rate.Limiter must not reach the flows as a non-nil interface.
	if e.rateLimiter != nil {
		deps.Login.RateLimiter = e.rateLimiter
		deps.Refresh.RateLimiter = e.rateLimiter
	}

	return deps
}

func toFlowUser(u *User) flows.User {
	if u == nil {
		return flows.User{}
	}
	return flows.User{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Roles:        u.Roles,
		TokenVersion: u.TokenVersion,
		IsActive:     u.IsActive,
	}
}

func toFlowRow(rec *RefreshTokenRecord) flows.RefreshRow {
	if rec == nil {
		return flows.RefreshRow{}
	}
	return flows.RefreshRow{
		ID:         rec.ID,
		UserID:     rec.UserID,
		Version:    rec.Version,
		TokenHash:  rec.TokenHash,
		Device:     rec.Device,
		CreatedAt:  rec.CreatedAt,
		ExpiresAt:  rec.ExpiresAt,
		LastUsedAt: rec.LastUsedAt,
		IsRevoked:  rec.IsRevoked,
	}
}

func fromFlowRow(row flows.RefreshRow) *RefreshTokenRecord {
	return &RefreshTokenRecord{
		ID:         row.ID,
		UserID:     row.UserID,
		TokenHash:  row.TokenHash,
		Version:    row.Version,
		Device:     row.Device,
		CreatedAt:  row.CreatedAt,
		ExpiresAt:  row.ExpiresAt,
		LastUsedAt: row.LastUsedAt,
		IsRevoked:  row.IsRevoked,
	}
}

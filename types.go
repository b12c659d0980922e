package deviceauth

import (
	"context"
	"io"
	"slices"
	"time"

	internalaudit "github.com/MrEthical07/deviceauth/internal/audit"
	"github.com/MrEthical07/deviceauth/password"
	"github.com/MrEthical07/deviceauth/session"
	"go.uber.org/zap"
)

// DeviceInfo describes the client a credential was issued to.
type DeviceInfo = session.Device

// User is the durable identity row.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Roles        []string
	// TokenVersion starts at 1 and only grows. Bumping it invalidates every
	// credential issued before the bump.
	TokenVersion int64
	IsActive     bool
	CreatedAt    time.Time
}

// NewUser is the input to IdentityStore.CreateUser. The store sets
// TokenVersion to 1 and IsActive to true.
type NewUser struct {
	ID           string
	Email        string
	PasswordHash string
	Roles        []string
}

// RefreshTokenRecord is one durable refresh token row, i.e. one device.
// Only the SHA-256 hash of the secret is stored.
type RefreshTokenRecord struct {
	ID         string
	UserID     string
	TokenHash  string
	Version    int64
	Device     DeviceInfo
	CreatedAt  time.Time
	ExpiresAt  time.Time
	LastUsedAt time.Time // zero when never used
	IsRevoked  bool
}

// IdentityStore is the durable store of users and refresh tokens.
//
// Lookups return an error wrapping ErrRecordNotFound for missing rows, and
// CreateUser returns one wrapping ErrEmailTaken for duplicates.
type IdentityStore interface {
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	CreateUser(ctx context.Context, u NewUser) (*User, error)
	UpdatePasswordHash(ctx context.Context, userID, hash string) error
	// IncrementTokenVersion atomically bumps the version and returns the new value.
	IncrementTokenVersion(ctx context.Context, userID string) (int64, error)

	CreateRefreshToken(ctx context.Context, rec *RefreshTokenRecord) error
	GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*RefreshTokenRecord, error)
	TouchRefreshToken(ctx context.Context, id string, at time.Time) error
	// RevokeRefreshToken marks the row revoked when it belongs to userID and
	// reports whether such a row exists.
	RevokeRefreshToken(ctx context.Context, userID, id string) (bool, error)
	RevokeRefreshTokensForUser(ctx context.Context, userID string) (int64, error)
	ListRefreshTokens(ctx context.Context, userID string) ([]RefreshTokenRecord, error)
}

// SessionStore is the ephemeral store of access sessions. Get returns
// session.ErrNotFound for absent or expired records. *session.Store and
// *session.MemoryStore implement it.
type SessionStore interface {
	Save(ctx context.Context, rec *session.Record, ttl time.Duration) error
	Get(ctx context.Context, jti string) (*session.Record, error)
	Delete(ctx context.Context, userID, jti string) error
	DeleteAllForUser(ctx context.Context, userID string) (int, error)
	Members(ctx context.Context, userID string) ([]string, error)
	GetMany(ctx context.Context, jtis []string) ([]*session.Record, error)
	Ping(ctx context.Context) (time.Duration, error)
}

// PasswordHasher hashes and verifies passwords.
type PasswordHasher = password.Hasher

// TokenPair is returned by every operation that signs a device in.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	JTI              string    `json:"jti"`
	RefreshTokenID   string    `json:"refresh_token_id"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// AccessGrant is returned by Refresh. The refresh token is not rotated.
type AccessGrant struct {
	AccessToken    string    `json:"access_token"`
	JTI            string    `json:"jti"`
	ExpiresAt      time.Time `json:"expires_at"`
	RefreshTokenID string    `json:"refresh_token_id"`
}

// Identity is the trusted result of a successful validation.
type Identity struct {
	UserID       string
	Email        string
	Roles        []string
	TokenVersion int64
	JTI          string
	// SessionCreatedAt is zero for legacy tokens without a session record.
	SessionCreatedAt time.Time
	Device           DeviceInfo
	// Legacy marks tokens issued without a jti.
	Legacy bool
}

// HasRole reports whether the identity carries role.
func (i *Identity) HasRole(role string) bool {
	return i != nil && slices.Contains(i.Roles, role)
}

// HasAnyRole reports whether the identity carries at least one of roles.
func (i *Identity) HasAnyRole(roles ...string) bool {
	for _, r := range roles {
		if i.HasRole(r) {
			return true
		}
	}
	return false
}

// SessionInfo is one live access session listed by ListSessions.
type SessionInfo struct {
	JTI       string     `json:"jti"`
	Device    DeviceInfo `json:"device"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	IsCurrent bool       `json:"is_current"`
}

// DeviceSession is one active refresh token listed by ListDevices.
type DeviceSession struct {
	ID         string     `json:"id"`
	Device     DeviceInfo `json:"device"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	LastUsedAt time.Time  `json:"last_used_at,omitempty"`
}

// RegisterInput is the input to Register.
type RegisterInput struct {
	Email    string
	Password string
	Roles    []string
}

// LogoutRequest selects what Logout revokes. JTI wins over RefreshToken;
// when both are empty every device of UserID is revoked.
type LogoutRequest struct {
	UserID       string
	JTI          string
	RefreshToken string
}

// AuditEvent is one security-relevant event.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink = internalaudit.Sink

// AuditStats counts audit delivery outcomes.
type AuditStats = internalaudit.Stats

// NoOpSink discards events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink forwards events to a buffered channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// ZapSink logs events through a zap logger.
type ZapSink = internalaudit.ZapSink

// NewChannelSink returns a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink writing JSON lines to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewZapSink returns a sink logging to logger.
func NewZapSink(logger *zap.Logger) *ZapSink {
	return internalaudit.NewZapSink(logger)
}

package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/deviceauth/jwt"
	"github.com/MrEthical07/deviceauth/session"
	"go.uber.org/zap"
)

// IssueFailureKind identifies the step of an issuance that failed.
type IssueFailureKind int

const (
	IssueFailureNone IssueFailureKind = iota
	IssueFailureGenerateID
	IssueFailureSignAccess
	IssueFailureSaveSession
	IssueFailureGenerateRefresh
	IssueFailurePersistRefresh
)

// IssueSessionStore is the ephemeral store surface needed for issuance.
type IssueSessionStore interface {
	Save(ctx context.Context, rec *session.Record, ttl time.Duration) error
	Delete(ctx context.Context, userID, jti string) error
}

// IssueDeps wires token issuance.
type IssueDeps struct {
	Now             func() time.Time
	NewJTI          func() (string, error)
	NewRefreshToken func() (string, error)
	HashRefresh     func(token string) string
	NewRowID        func() string
	CreateAccess    func(in jwt.AccessInput) (string, time.Time, error)
	RefreshTTL      time.Duration
	SessionStore    IssueSessionStore
	InsertRefresh   func(ctx context.Context, row RefreshRow) error
	Logger          *zap.Logger
}

// IssueResult carries everything produced by one issuance.
type IssueResult struct {
	Failure IssueFailureKind
	Err     error

	AccessToken     string
	AccessExpiresAt time.Time
	Record          *session.Record

	RefreshToken     string
	RefreshRowID     string
	RefreshExpiresAt time.Time
}

// RunIssueAccess mints an access token and stores its ephemeral session.
// The session TTL equals the access token lifetime.
func RunIssueAccess(ctx context.Context, user User, device session.Device, deps IssueDeps) IssueResult {
	now := nowOr(deps.Now)

	jti, err := deps.NewJTI()
	if err != nil {
		return IssueResult{Failure: IssueFailureGenerateID, Err: err}
	}

	token, expiresAt, err := deps.CreateAccess(jwt.AccessInput{
		UserID:   user.ID,
		Email:    user.Email,
		Version:  user.TokenVersion,
		JTI:      jti,
		IssuedAt: now,
	})
	if err != nil {
		return IssueResult{Failure: IssueFailureSignAccess, Err: err}
	}

	rec := &session.Record{
		JTI:          jti,
		UserID:       user.ID,
		TokenVersion: user.TokenVersion,
		Device:       device,
		CreatedAt:    now.Unix(),
		ExpiresAt:    expiresAt.Unix(),
	}
	if err := deps.SessionStore.Save(ctx, rec, expiresAt.Sub(now)); err != nil {
		return IssueResult{Failure: IssueFailureSaveSession, Err: err}
	}

	return IssueResult{
		AccessToken:     token,
		AccessExpiresAt: expiresAt,
		Record:          rec,
	}
}

// RunIssue mints a full token pair: an access token with its session and a
// durable refresh token bound to user's current token version. When the
// durable insert fails the ephemeral session is removed again.
func RunIssue(ctx context.Context, user User, device session.Device, deps IssueDeps) IssueResult {
	res := RunIssueAccess(ctx, user, device, deps)
	if res.Failure != IssueFailureNone {
		return res
	}

	undo := func() {
		if err := deps.SessionStore.Delete(ctx, user.ID, res.Record.JTI); err != nil {
			loggerOrNop(deps.Logger).Warn("issue rollback failed",
				zap.String("user_id", user.ID),
				zap.String("jti", res.Record.JTI),
				zap.Error(err),
			)
		}
	}

	secret, err := deps.NewRefreshToken()
	if err != nil {
		undo()
		return IssueResult{Failure: IssueFailureGenerateRefresh, Err: err}
	}

	now := nowOr(deps.Now)
	row := RefreshRow{
		ID:        deps.NewRowID(),
		UserID:    user.ID,
		Version:   user.TokenVersion,
		TokenHash: deps.HashRefresh(secret),
		Device:    device,
		CreatedAt: now,
		ExpiresAt: now.Add(deps.RefreshTTL),
	}
	if err := deps.InsertRefresh(ctx, row); err != nil {
		undo()
		return IssueResult{Failure: IssueFailurePersistRefresh, Err: err}
	}

	res.RefreshToken = secret
	res.RefreshRowID = row.ID
	res.RefreshExpiresAt = row.ExpiresAt
	return res
}

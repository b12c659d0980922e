package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/deviceauth/session"
	"go.uber.org/zap"
)

// RefreshFailureKind classifies refresh rejections.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureMalformed
	RefreshFailureNotFound
	RefreshFailureRevoked
	RefreshFailureExpired
	RefreshFailureRateLimited
	RefreshFailureUserNotFound
	RefreshFailureAccountInactive
	RefreshFailureVersionMismatch
	RefreshFailureBackend
	RefreshFailureIssue
)

// RefreshRateLimiter throttles refresh attempts per device row.
type RefreshRateLimiter interface {
	CheckRefresh(ctx context.Context, deviceID string) error
}

// RefreshDeps wires the refresh flow.
type RefreshDeps struct {
	Now          func() time.Time
	CheckToken   func(token string) error
	HashToken    func(token string) string
	FindRow      func(ctx context.Context, tokenHash string) (RefreshRow, error)
	RowNotFound  error
	RevokeRow    func(ctx context.Context, userID, id string) (bool, error)
	TouchRow     func(ctx context.Context, id string, at time.Time) error
	LoadUser     func(ctx context.Context, userID string) (User, error)
	UserNotFound error
	RateLimiter  RefreshRateLimiter
	Issue        IssueDeps
	Logger       *zap.Logger
}

// RefreshResult is the outcome of one refresh.
type RefreshResult struct {
	Failure RefreshFailureKind
	Err     error

	UserID   string
	DeviceID string
	Issued   IssueResult
}

// RunRefresh exchanges a durable refresh token for a new access token. The
// refresh token is not rotated; only its last-used time moves.
func RunRefresh(ctx context.Context, token string, device session.Device, deps RefreshDeps) RefreshResult {
	log := loggerOrNop(deps.Logger)

	if err := deps.CheckToken(token); err != nil {
		return RefreshResult{Failure: RefreshFailureMalformed, Err: err}
	}

	row, err := deps.FindRow(ctx, deps.HashToken(token))
	if err != nil {
		if deps.RowNotFound != nil && errors.Is(err, deps.RowNotFound) {
			return RefreshResult{Failure: RefreshFailureNotFound, Err: err}
		}
		return RefreshResult{Failure: RefreshFailureBackend, Err: err}
	}
	res := RefreshResult{UserID: row.UserID, DeviceID: row.ID}

	if row.IsRevoked {
		res.Failure = RefreshFailureRevoked
		return res
	}

	now := nowOr(deps.Now)
	if !row.ExpiresAt.After(now) {
		if _, err := deps.RevokeRow(ctx, row.UserID, row.ID); err != nil {
			log.Warn("revoke expired refresh token failed",
				zap.String("user_id", row.UserID),
				zap.String("device_id", row.ID),
				zap.Error(err),
			)
		}
		res.Failure = RefreshFailureExpired
		return res
	}

	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.CheckRefresh(ctx, row.ID); err != nil {
			res.Failure = RefreshFailureRateLimited
			res.Err = err
			return res
		}
	}

	user, err := deps.LoadUser(ctx, row.UserID)
	if err != nil {
		res.Err = err
		if deps.UserNotFound != nil && errors.Is(err, deps.UserNotFound) {
			res.Failure = RefreshFailureUserNotFound
		} else {
			res.Failure = RefreshFailureBackend
		}
		return res
	}
	if !user.IsActive {
		res.Failure = RefreshFailureAccountInactive
		return res
	}

	// The device was globally invalidated after this row was issued.
	if row.Version != user.TokenVersion {
		if _, err := deps.RevokeRow(ctx, row.UserID, row.ID); err != nil {
			log.Warn("revoke stale refresh token failed",
				zap.String("user_id", row.UserID),
				zap.String("device_id", row.ID),
				zap.Error(err),
			)
		}
		res.Failure = RefreshFailureVersionMismatch
		return res
	}

	if device == (session.Device{}) {
		device = row.Device
	}

	issued := RunIssueAccess(ctx, user, device, deps.Issue)
	if issued.Failure != IssueFailureNone {
		res.Failure = RefreshFailureIssue
		res.Err = issued.Err
		res.Issued = issued
		return res
	}
	res.Issued = issued

	if err := deps.TouchRow(ctx, row.ID, now); err != nil {
		log.Warn("refresh last_used_at update failed",
			zap.String("device_id", row.ID),
			zap.Error(err),
		)
	}
	return res
}

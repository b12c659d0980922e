package flows

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// RevokeFailureKind classifies revocation failures.
type RevokeFailureKind int

const (
	RevokeFailureNone RevokeFailureKind = iota
	RevokeFailureDeviceNotFound
	RevokeFailureDurable
	RevokeFailureEphemeral
)

// RevokeSessionStore is the ephemeral store surface needed for revocation.
type RevokeSessionStore interface {
	Delete(ctx context.Context, userID, jti string) error
	DeleteAllForUser(ctx context.Context, userID string) (int, error)
}

// RevokeDeps wires the revocation flows.
type RevokeDeps struct {
	SessionStore     RevokeSessionStore
	HashToken        func(token string) string
	FindRow          func(ctx context.Context, tokenHash string) (RefreshRow, error)
	RowNotFound      error
	RevokeRow        func(ctx context.Context, userID, id string) (bool, error)
	RevokeAllRows    func(ctx context.Context, userID string) (int64, error)
	IncrementVersion func(ctx context.Context, userID string) (int64, error)
	Logger           *zap.Logger
}

// RevokeResult is the outcome of a single-session or single-device revocation.
type RevokeResult struct {
	Failure  RevokeFailureKind
	Err      error
	DeviceID string
}

// RevokeAllResult is the outcome of a global invalidation.
type RevokeAllResult struct {
	Failure RevokeFailureKind
	Err     error

	Version         int64
	RowsRevoked     int64
	SessionsDeleted int
	// EphemeralErr is logged but not escalated; the version bump already
	// invalidates every outstanding access token.
	EphemeralErr error
}

// RunRevokeSession deletes the session for jti. When refreshToken is set and
// its row belongs to userID, the row is revoked too.
func RunRevokeSession(ctx context.Context, userID, jti, refreshToken string, deps RevokeDeps) RevokeResult {
	if err := deps.SessionStore.Delete(ctx, userID, jti); err != nil {
		return RevokeResult{Failure: RevokeFailureEphemeral, Err: err}
	}
	if refreshToken == "" {
		return RevokeResult{}
	}
	return revokeByToken(ctx, userID, refreshToken, deps)
}

// RunRevokeRefreshToken revokes the row matching refreshToken when userID owns it.
func RunRevokeRefreshToken(ctx context.Context, userID, refreshToken string, deps RevokeDeps) RevokeResult {
	return revokeByToken(ctx, userID, refreshToken, deps)
}

func revokeByToken(ctx context.Context, userID, refreshToken string, deps RevokeDeps) RevokeResult {
	row, err := deps.FindRow(ctx, deps.HashToken(refreshToken))
	if err != nil {
		if deps.RowNotFound != nil && errors.Is(err, deps.RowNotFound) {
			return RevokeResult{}
		}
		return RevokeResult{Failure: RevokeFailureDurable, Err: err}
	}
	if row.UserID != userID {
		loggerOrNop(deps.Logger).Debug("refresh token owned by another user ignored",
			zap.String("user_id", userID),
		)
		return RevokeResult{}
	}
	if row.IsRevoked {
		return RevokeResult{DeviceID: row.ID}
	}
	if _, err := deps.RevokeRow(ctx, userID, row.ID); err != nil {
		return RevokeResult{Failure: RevokeFailureDurable, Err: err, DeviceID: row.ID}
	}
	return RevokeResult{DeviceID: row.ID}
}

// RunRevokeDevice revokes one durable refresh token row. Ephemeral state is
// left to expire on its own.
func RunRevokeDevice(ctx context.Context, userID, deviceID string, deps RevokeDeps) RevokeResult {
	ok, err := deps.RevokeRow(ctx, userID, deviceID)
	if err != nil {
		return RevokeResult{Failure: RevokeFailureDurable, Err: err, DeviceID: deviceID}
	}
	if !ok {
		return RevokeResult{Failure: RevokeFailureDeviceNotFound, DeviceID: deviceID}
	}
	return RevokeResult{DeviceID: deviceID}
}

// RunRevokeAll bumps the durable token version first, then revokes every
// refresh row, then clears ephemeral sessions best-effort.
func RunRevokeAll(ctx context.Context, userID string, deps RevokeDeps) RevokeAllResult {
	version, err := deps.IncrementVersion(ctx, userID)
	if err != nil {
		return RevokeAllResult{Failure: RevokeFailureDurable, Err: err}
	}
	res := RevokeAllResult{Version: version}

	rows, err := deps.RevokeAllRows(ctx, userID)
	if err != nil {
		res.Failure = RevokeFailureDurable
		res.Err = err
		return res
	}
	res.RowsRevoked = rows

	deleted, err := deps.SessionStore.DeleteAllForUser(ctx, userID)
	if err != nil {
		res.EphemeralErr = err
		loggerOrNop(deps.Logger).Warn("ephemeral session purge failed",
			zap.String("user_id", userID),
			zap.Int64("token_version", version),
			zap.Error(err),
		)
	}
	res.SessionsDeleted = deleted
	return res
}

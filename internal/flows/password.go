package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/deviceauth/session"
)

// ChangePasswordFailureKind classifies password change failures.
type ChangePasswordFailureKind int

const (
	ChangePasswordFailureNone ChangePasswordFailureKind = iota
	ChangePasswordFailureUserNotFound
	ChangePasswordFailureInvalidOld
	ChangePasswordFailureInvalidInput
	ChangePasswordFailureHash
	ChangePasswordFailureBackend
	ChangePasswordFailureRevoke
	ChangePasswordFailureIssue
)

// ChangePasswordDeps wires the password change flow.
type ChangePasswordDeps struct {
	LoadUser           func(ctx context.Context, userID string) (User, error)
	UserNotFound       error
	MinPasswordLength  int
	VerifyPassword     func(password, hash string) (bool, error)
	HashPassword       func(password string) (string, error)
	UpdatePasswordHash func(ctx context.Context, userID, hash string) error
	Revoke             RevokeDeps
	Issue              IssueDeps
}

// ChangePasswordResult is the outcome of one password change.
type ChangePasswordResult struct {
	Failure ChangePasswordFailureKind
	Err     error
	Revoked RevokeAllResult
	Issued  IssueResult
}

// RunChangePassword invalidates every device, replaces the password hash and
// signs the calling device back in at the new token version.
func RunChangePassword(ctx context.Context, userID, oldPassword, newPassword string, device session.Device, deps ChangePasswordDeps) ChangePasswordResult {
	user, err := deps.LoadUser(ctx, userID)
	if err != nil {
		if deps.UserNotFound != nil && errors.Is(err, deps.UserNotFound) {
			return ChangePasswordResult{Failure: ChangePasswordFailureUserNotFound, Err: err}
		}
		return ChangePasswordResult{Failure: ChangePasswordFailureBackend, Err: err}
	}

	ok, err := deps.VerifyPassword(oldPassword, user.PasswordHash)
	if err != nil || !ok {
		return ChangePasswordResult{Failure: ChangePasswordFailureInvalidOld, Err: err}
	}
	if err := checkPasswordInput(newPassword, deps.MinPasswordLength); err != nil {
		return ChangePasswordResult{Failure: ChangePasswordFailureInvalidInput, Err: err}
	}

	hash, err := deps.HashPassword(newPassword)
	if err != nil {
		return ChangePasswordResult{Failure: ChangePasswordFailureHash, Err: err}
	}

	// Revoke before the hash moves: a failed write after this point leaves
	// the old password with no live credentials, never the new password
	// with the old ones.
	revoked := RunRevokeAll(ctx, userID, deps.Revoke)
	if revoked.Failure != RevokeFailureNone {
		return ChangePasswordResult{Failure: ChangePasswordFailureRevoke, Err: revoked.Err, Revoked: revoked}
	}
	if err := deps.UpdatePasswordHash(ctx, userID, hash); err != nil {
		return ChangePasswordResult{Failure: ChangePasswordFailureBackend, Err: err, Revoked: revoked}
	}

	user.PasswordHash = hash
	user.TokenVersion = revoked.Version
	issued := RunIssue(ctx, user, device, deps.Issue)
	if issued.Failure != IssueFailureNone {
		return ChangePasswordResult{Failure: ChangePasswordFailureIssue, Err: issued.Err, Revoked: revoked, Issued: issued}
	}
	return ChangePasswordResult{Revoked: revoked, Issued: issued}
}

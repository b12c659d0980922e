package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/deviceauth/session"
	"go.uber.org/zap"
)

// LoginFailureKind classifies login rejections.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureRateLimited
	LoginFailureInvalidCredentials
	LoginFailureAccountInactive
	LoginFailureBackend
	LoginFailureIssue
)

// LoginRateLimiter is the throttle surface used by the login flow.
type LoginRateLimiter interface {
	CheckLogin(ctx context.Context, email, ip string) error
	IncrementLogin(ctx context.Context, email, ip string) error
	ResetLogin(ctx context.Context, email string) error
}

// LoginDeps wires the login flow.
type LoginDeps struct {
	NormalizeEmail     func(email string) string
	FindUserByEmail    func(ctx context.Context, email string) (User, error)
	UserNotFound       error
	VerifyPassword     func(password, hash string) (bool, error)
	NeedsRehash        func(hash string) bool
	HashPassword       func(password string) (string, error)
	UpdatePasswordHash func(ctx context.Context, userID, hash string) error
	// DummyHash is verified against when the email is unknown so both
	// failure paths cost one hash verification.
	DummyHash   string
	RateLimiter LoginRateLimiter
	Issue       IssueDeps
	Logger      *zap.Logger
}

// LoginResult is the outcome of one login.
type LoginResult struct {
	Failure LoginFailureKind
	Err     error
	UserID  string
	Issued  IssueResult
}

// RunLogin verifies credentials and issues a token pair.
func RunLogin(ctx context.Context, email, password string, device session.Device, deps LoginDeps) LoginResult {
	log := loggerOrNop(deps.Logger)
	if deps.NormalizeEmail != nil {
		email = deps.NormalizeEmail(email)
	}

	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.CheckLogin(ctx, email, device.IP); err != nil {
			return LoginResult{Failure: LoginFailureRateLimited, Err: err}
		}
	}

	fail := func(userID string) LoginResult {
		if deps.RateLimiter != nil {
			if err := deps.RateLimiter.IncrementLogin(ctx, email, device.IP); err != nil {
				log.Warn("login attempt counter update failed", zap.Error(err))
			}
		}
		return LoginResult{Failure: LoginFailureInvalidCredentials, UserID: userID}
	}

	user, err := deps.FindUserByEmail(ctx, email)
	if err != nil {
		if deps.UserNotFound != nil && errors.Is(err, deps.UserNotFound) {
			if deps.DummyHash != "" {
				_, _ = deps.VerifyPassword(password, deps.DummyHash)
			}
			return fail("")
		}
		return LoginResult{Failure: LoginFailureBackend, Err: err}
	}

	ok, err := deps.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return fail(user.ID)
	}

	if !user.IsActive {
		return LoginResult{Failure: LoginFailureAccountInactive, UserID: user.ID}
	}

	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.ResetLogin(ctx, email); err != nil {
			log.Warn("login attempt counter reset failed", zap.Error(err))
		}
	}

	if deps.NeedsRehash != nil && deps.NeedsRehash(user.PasswordHash) {
		rehash(ctx, user.ID, password, deps, log)
	}

	issued := RunIssue(ctx, user, device, deps.Issue)
	if issued.Failure != IssueFailureNone {
		return LoginResult{Failure: LoginFailureIssue, Err: issued.Err, UserID: user.ID, Issued: issued}
	}
	return LoginResult{UserID: user.ID, Issued: issued}
}

func rehash(ctx context.Context, userID, password string, deps LoginDeps, log *zap.Logger) {
	hash, err := deps.HashPassword(password)
	if err == nil {
		err = deps.UpdatePasswordHash(ctx, userID, hash)
	}
	if err != nil {
		log.Warn("password rehash failed", zap.String("user_id", userID), zap.Error(err))
	}
}

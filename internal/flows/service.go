package flows

import (
	"context"

	"github.com/MrEthical07/deviceauth/session"
)

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Validate.ParseAccess != nil
}

func (s Service) Issue(ctx context.Context, user User, device session.Device) IssueResult {
	return RunIssue(ctx, user, device, s.deps.Issue)
}

func (s Service) Validate(ctx context.Context, authorization string) ValidateResult {
	return RunValidate(ctx, authorization, s.deps.Validate)
}

func (s Service) ValidateToken(ctx context.Context, token string) ValidateResult {
	return RunValidateToken(ctx, token, s.deps.Validate)
}

func (s Service) Refresh(ctx context.Context, token string, device session.Device) RefreshResult {
	return RunRefresh(ctx, token, device, s.deps.Refresh)
}

func (s Service) RevokeSession(ctx context.Context, userID, jti, refreshToken string) RevokeResult {
	return RunRevokeSession(ctx, userID, jti, refreshToken, s.deps.Revoke)
}

func (s Service) RevokeRefreshToken(ctx context.Context, userID, refreshToken string) RevokeResult {
	return RunRevokeRefreshToken(ctx, userID, refreshToken, s.deps.Revoke)
}

func (s Service) RevokeDevice(ctx context.Context, userID, deviceID string) RevokeResult {
	return RunRevokeDevice(ctx, userID, deviceID, s.deps.Revoke)
}

func (s Service) RevokeAll(ctx context.Context, userID string) RevokeAllResult {
	return RunRevokeAll(ctx, userID, s.deps.Revoke)
}

func (s Service) ListSessions(ctx context.Context, userID, currentJTI string) ([]SessionEntry, error) {
	return RunListSessions(ctx, userID, currentJTI, s.deps.Directory)
}

func (s Service) ListDevices(ctx context.Context, userID string) ([]DeviceEntry, error) {
	return RunListDevices(ctx, userID, s.deps.Directory)
}

func (s Service) Login(ctx context.Context, email, password string, device session.Device) LoginResult {
	return RunLogin(ctx, email, password, device, s.deps.Login)
}

func (s Service) Register(ctx context.Context, email, password string, roles []string, device session.Device) RegisterResult {
	return RunRegister(ctx, email, password, roles, device, s.deps.Register)
}

func (s Service) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string, device session.Device) ChangePasswordResult {
	return RunChangePassword(ctx, userID, oldPassword, newPassword, device, s.deps.ChangePassword)
}

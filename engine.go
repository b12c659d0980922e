package deviceauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	internalaudit "github.com/MrEthical07/deviceauth/internal/audit"
	"github.com/MrEthical07/deviceauth/internal/flows"
	"github.com/MrEthical07/deviceauth/internal/rate"
	"github.com/MrEthical07/deviceauth/jwt"
	"go.uber.org/zap"
)

// Engine is the multi-device authentication core. It is safe for concurrent
// use and holds no lock across requests.
type Engine struct {
	config       Config
	sessionStore SessionStore
	identity     IdentityStore
	rateLimiter  *rate.Limiter
	audit        *internalaudit.Dispatcher
	metrics      *Metrics
	hasher       PasswordHasher
	jwtManager   *jwt.Manager
	logger       *zap.Logger
	now          func() time.Time
	flows        flows.Service
}

// Close stops the audit dispatcher after draining buffered events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// Shutdown is Close bounded by ctx.
func (e *Engine) Shutdown(ctx context.Context) error {
	if e == nil {
		return nil
	}
	return e.audit.Shutdown(ctx)
}

// AuditStats reports delivered, dropped and failed audit events.
func (e *Engine) AuditStats() AuditStats {
	if e == nil {
		return AuditStats{}
	}
	return e.audit.Stats()
}

// AuditDropped returns how many audit events were dropped because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of every counter and histogram.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Ping reports the session store round-trip time.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	d, err := e.sessionStore.Ping(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return d, nil
}

func (e *Engine) ready() error {
	if e == nil || !e.flows.Initialized() {
		return ErrEngineNotReady
	}
	return nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

/*
====================================
ISSUANCE
====================================
*/

// Issue signs user in on device and returns a fresh token pair. It is the
// entry point for callers that authenticate users elsewhere.
func (e *Engine) Issue(ctx context.Context, user *User, device DeviceInfo) (*TokenPair, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if user == nil || strings.TrimSpace(user.ID) == "" {
		return nil, fmt.Errorf("%w: user id required", ErrInvalidInput)
	}
	if !user.IsActive {
		return nil, ErrAccountInactive
	}

	res := e.flows.Issue(ctx, toFlowUser(user), device)
	if res.Failure != flows.IssueFailureNone {
		e.metricInc(MetricIssueFailure)
		e.logger.Error("token issuance failed", zap.String("user_id", user.ID), zap.Error(res.Err))
		return nil, mapIssueFailure(res)
	}

	e.metricInc(MetricIssueSuccess)
	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, auditEventIssue, true, auditTarget{
		userID:   user.ID,
		jti:      res.Record.JTI,
		deviceID: res.RefreshRowID,
		device:   device,
	}, nil, nil)
	return tokenPair(res), nil
}

// Login verifies email and password and issues a token pair for device.
// Unknown emails and wrong passwords both return [ErrInvalidCredentials].
func (e *Engine) Login(ctx context.Context, email, password string, device DeviceInfo) (*TokenPair, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	res := e.flows.Login(ctx, email, password, device)
	target := auditTarget{userID: res.UserID, device: device}

	if res.Failure != flows.LoginFailureNone {
		err := mapLoginFailure(res)
		switch res.Failure {
		case flows.LoginFailureRateLimited:
			e.metricInc(MetricLoginRateLimited)
			e.emitAudit(ctx, auditEventLoginRateLimited, false, target, err, func() map[string]string {
				return map[string]string{"identifier": rate.NormalizeEmail(email)}
			})
		case flows.LoginFailureBackend, flows.LoginFailureIssue:
			e.metricInc(MetricLoginFailure)
			e.logger.Error("login failed", zap.String("user_id", res.UserID), zap.Error(res.Err))
			e.emitAudit(ctx, auditEventLoginFailure, false, target, err, nil)
		default:
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, target, err, func() map[string]string {
				return map[string]string{"identifier": rate.NormalizeEmail(email)}
			})
		}
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.metricInc(MetricSessionCreated)
	target.jti = res.Issued.Record.JTI
	target.deviceID = res.Issued.RefreshRowID
	e.emitAudit(ctx, auditEventLoginSuccess, true, target, nil, nil)
	return tokenPair(res.Issued), nil
}

// Register creates an account and signs it in on device.
func (e *Engine) Register(ctx context.Context, in RegisterInput, device DeviceInfo) (*TokenPair, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	res := e.flows.Register(ctx, in.Email, in.Password, in.Roles, device)
	if res.Failure != flows.RegisterFailureNone {
		err := mapRegisterFailure(res)
		if res.Failure == flows.RegisterFailureDuplicate {
			e.metricInc(MetricRegisterDuplicate)
		}
		if res.Failure == flows.RegisterFailureBackend || res.Failure == flows.RegisterFailureIssue {
			e.logger.Error("registration failed", zap.Error(res.Err))
		}
		e.emitAudit(ctx, auditEventRegisterFailure, false, auditTarget{userID: res.User.ID, device: device}, err, nil)
		return nil, err
	}

	e.metricInc(MetricRegisterSuccess)
	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, auditTarget{
		userID:   res.User.ID,
		jti:      res.Issued.Record.JTI,
		deviceID: res.Issued.RefreshRowID,
		device:   device,
	}, nil, nil)
	return tokenPair(res.Issued), nil
}

/*
====================================
VALIDATION
====================================
*/

// Validate authenticates an Authorization header value of the form
// "Bearer <token>".
//
// Layers run in order: header format, signature and claims, ephemeral
// session, durable user, token version. The first failing layer decides the
// error. Sessions found to be stale are removed on the way out.
func (e *Engine) Validate(ctx context.Context, authorization string) (*Identity, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.finishValidate(ctx, e.trackValidate(func() flows.ValidateResult {
		return e.flows.Validate(ctx, authorization)
	}))
}

// ValidateToken is Validate for a bare token without the Bearer prefix.
func (e *Engine) ValidateToken(ctx context.Context, token string) (*Identity, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.finishValidate(ctx, e.trackValidate(func() flows.ValidateResult {
		return e.flows.ValidateToken(ctx, token)
	}))
}

// ValidateOptional runs the Validate pipeline but never rejects: any
// failure, including an empty header, yields a nil identity. Metrics and
// audit still record the failure.
func (e *Engine) ValidateOptional(ctx context.Context, authorization string) *Identity {
	if strings.TrimSpace(authorization) == "" {
		return nil
	}
	id, err := e.Validate(ctx, authorization)
	if err != nil {
		return nil
	}
	return id
}

func (e *Engine) trackValidate(run func() flows.ValidateResult) flows.ValidateResult {
	if !e.metrics.LatencyEnabled() {
		return run()
	}
	start := time.Now()
	res := run()
	e.metrics.Observe(MetricValidateLatency, time.Since(start))
	return res
}

func (e *Engine) finishValidate(ctx context.Context, res flows.ValidateResult) (*Identity, error) {
	if res.CleanupAttempted {
		e.metricInc(MetricLazyCleanup)
		if res.CleanupErr != nil {
			e.metricInc(MetricCleanupFailure)
		} else {
			e.metricInc(MetricSessionInvalidated)
		}
	}

	if res.Failure != flows.ValidateFailureNone {
		err := mapValidateFailure(res)
		e.metricInc(MetricValidateFailure)
		switch res.Failure {
		case flows.ValidateFailureTokenExpired:
			e.metricInc(MetricTokenExpired)
		case flows.ValidateFailureTokenRevoked:
			e.metricInc(MetricTokenRevoked)
		case flows.ValidateFailureOwnershipMismatch:
			e.metricInc(MetricOwnershipMismatch)
		case flows.ValidateFailureVersionMismatch:
			e.metricInc(MetricVersionMismatch)
		case flows.ValidateFailureBackend:
			e.logger.Error("validation backend failure",
				zap.Stringer("layer", res.Layer),
				zap.Error(res.Err),
			)
		}

		if res.Failure != flows.ValidateFailureAuthenticationRequired {
			target := auditTarget{}
			if res.Claims != nil {
				target.userID = res.Claims.UserID
				target.jti = res.Claims.JTI()
			}
			target.device = DeviceFromContext(ctx)
			e.emitAudit(ctx, auditEventValidateRejected, false, target, err, func() map[string]string {
				return map[string]string{"layer": res.Layer.String()}
			})
		}
		return nil, err
	}

	e.metricInc(MetricValidateSuccess)
	if res.Legacy {
		e.metricInc(MetricValidateLegacyToken)
	}

	id := &Identity{
		UserID:       res.User.ID,
		Email:        res.User.Email,
		Roles:        append([]string(nil), res.User.Roles...),
		TokenVersion: res.User.TokenVersion,
		Legacy:       res.Legacy,
	}
	if res.Claims != nil {
		id.JTI = res.Claims.JTI()
	}
	if res.Record != nil {
		id.SessionCreatedAt = res.Record.Created()
		id.Device = res.Record.Device
	}
	return id, nil
}

// CheckFreshness rejects identities whose session was created more than
// maxAge ago with [ErrStaleSession]. A non-positive maxAge uses
// Config.Freshness.DefaultMaxAge. Legacy identities are never fresh.
func (e *Engine) CheckFreshness(id *Identity, maxAge time.Duration) error {
	if err := e.ready(); err != nil {
		return err
	}
	if id == nil {
		return ErrAuthenticationRequired
	}
	if maxAge <= 0 {
		maxAge = e.config.Freshness.DefaultMaxAge
	}
	if !flows.Fresh(id.SessionCreatedAt, e.now(), maxAge) {
		e.metricInc(MetricFreshnessRejected)
		return ErrStaleSession
	}
	return nil
}

/*
====================================
REFRESH
====================================
*/

// Refresh exchanges a refresh token for a new access token. The refresh
// token is not rotated. An empty device reuses the metadata stored on the
// refresh token row.
func (e *Engine) Refresh(ctx context.Context, refreshToken string, device DeviceInfo) (*AccessGrant, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	res := e.flows.Refresh(ctx, refreshToken, device)
	target := auditTarget{userID: res.UserID, deviceID: res.DeviceID, device: device}

	if res.Failure != flows.RefreshFailureNone {
		err := mapRefreshFailure(res)
		e.metricInc(MetricRefreshFailure)
		event := auditEventRefreshFailure
		switch res.Failure {
		case flows.RefreshFailureExpired:
			e.metricInc(MetricRefreshExpired)
		case flows.RefreshFailureVersionMismatch:
			e.metricInc(MetricVersionMismatch)
			event = auditEventRefreshStaleDevice
		case flows.RefreshFailureBackend, flows.RefreshFailureIssue:
			e.logger.Error("refresh failed", zap.String("device_id", res.DeviceID), zap.Error(res.Err))
		}
		e.emitAudit(ctx, event, false, target, err, nil)
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.metricInc(MetricSessionCreated)
	target.jti = res.Issued.Record.JTI
	e.emitAudit(ctx, auditEventRefreshSuccess, true, target, nil, nil)
	return &AccessGrant{
		AccessToken:    res.Issued.AccessToken,
		JTI:            res.Issued.Record.JTI,
		ExpiresAt:      res.Issued.AccessExpiresAt,
		RefreshTokenID: res.DeviceID,
	}, nil
}

/*
====================================
REVOCATION
====================================
*/

// RevokeSession deletes the access session jti of userID. When refreshToken
// is non-empty the matching refresh token row is revoked too. Other devices
// are untouched. Revoking an absent session is not an error.
func (e *Engine) RevokeSession(ctx context.Context, userID, jti, refreshToken string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if userID == "" || jti == "" {
		return fmt.Errorf("%w: user id and jti required", ErrInvalidInput)
	}

	res := e.flows.RevokeSession(ctx, userID, jti, refreshToken)
	if res.Failure != flows.RevokeFailureNone {
		e.logger.Error("session revocation failed", zap.String("user_id", userID), zap.Error(res.Err))
		return mapRevokeFailure(res.Failure, res.Err)
	}

	e.metricInc(MetricLogoutSession)
	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, auditEventLogoutSession, true, auditTarget{
		userID:   userID,
		jti:      jti,
		deviceID: res.DeviceID,
		device:   DeviceFromContext(ctx),
	}, nil, nil)
	return nil
}

// RevokeDevice revokes the refresh token row deviceID owned by userID. It
// needs no live access token and leaves ephemeral sessions to expire.
func (e *Engine) RevokeDevice(ctx context.Context, userID, deviceID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if userID == "" || deviceID == "" {
		return fmt.Errorf("%w: user id and device id required", ErrInvalidInput)
	}

	res := e.flows.RevokeDevice(ctx, userID, deviceID)
	if res.Failure != flows.RevokeFailureNone {
		err := mapRevokeFailure(res.Failure, res.Err)
		if res.Failure != flows.RevokeFailureDeviceNotFound {
			e.logger.Error("device revocation failed", zap.String("user_id", userID), zap.Error(res.Err))
		}
		return err
	}

	e.metricInc(MetricLogoutDevice)
	e.emitAudit(ctx, auditEventLogoutDevice, true, auditTarget{
		userID:   userID,
		deviceID: deviceID,
		device:   DeviceFromContext(ctx),
	}, nil, nil)
	return nil
}

// RevokeAll bumps the user's token version, revokes every refresh token and
// deletes every ephemeral session. It returns the new token version.
//
// The version bump alone invalidates every access token, so failures while
// clearing ephemeral state are logged and not returned.
func (e *Engine) RevokeAll(ctx context.Context, userID string) (int64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if userID == "" {
		return 0, fmt.Errorf("%w: user id required", ErrInvalidInput)
	}

	res := e.flows.RevokeAll(ctx, userID)
	if res.Failure != flows.RevokeFailureNone {
		e.logger.Error("revoke all failed", zap.String("user_id", userID), zap.Error(res.Err))
		return 0, mapRevokeFailure(res.Failure, res.Err)
	}
	e.recordRevokeAll(ctx, userID, res)
	return res.Version, nil
}

func (e *Engine) recordRevokeAll(ctx context.Context, userID string, res flows.RevokeAllResult) {
	e.metricInc(MetricLogoutAll)
	if res.EphemeralErr != nil {
		e.metricInc(MetricCleanupFailure)
	}
	e.emitAudit(ctx, auditEventLogoutAll, true, auditTarget{
		userID: userID,
		device: DeviceFromContext(ctx),
	}, nil, func() map[string]string {
		return map[string]string{
			"token_version":    fmt.Sprint(res.Version),
			"rows_revoked":     fmt.Sprint(res.RowsRevoked),
			"sessions_deleted": fmt.Sprint(res.SessionsDeleted),
		}
	})
}

// Logout revokes as narrowly as the request allows: the session named by
// JTI (plus RefreshToken when given), else the device owning RefreshToken,
// else every device of UserID.
func (e *Engine) Logout(ctx context.Context, req LogoutRequest) error {
	if err := e.ready(); err != nil {
		return err
	}
	if req.UserID == "" {
		return fmt.Errorf("%w: user id required", ErrInvalidInput)
	}

	switch {
	case req.JTI != "":
		return e.RevokeSession(ctx, req.UserID, req.JTI, req.RefreshToken)
	case req.RefreshToken != "":
		res := e.flows.RevokeRefreshToken(ctx, req.UserID, req.RefreshToken)
		if res.Failure != flows.RevokeFailureNone {
			e.logger.Error("refresh token revocation failed", zap.String("user_id", req.UserID), zap.Error(res.Err))
			return mapRevokeFailure(res.Failure, res.Err)
		}
		e.metricInc(MetricLogoutDevice)
		e.emitAudit(ctx, auditEventLogoutDevice, true, auditTarget{
			userID:   req.UserID,
			deviceID: res.DeviceID,
			device:   DeviceFromContext(ctx),
		}, nil, nil)
		return nil
	default:
		_, err := e.RevokeAll(ctx, req.UserID)
		return err
	}
}

/*
====================================
PASSWORD CHANGE
====================================
*/

// ChangePassword replaces the password of userID, revokes every device and
// signs the caller back in on device with a pair carrying the new version.
func (e *Engine) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string, device DeviceInfo) (*TokenPair, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: user id required", ErrInvalidInput)
	}

	res := e.flows.ChangePassword(ctx, userID, oldPassword, newPassword, device)
	target := auditTarget{userID: userID, device: device}

	if res.Failure != flows.ChangePasswordFailureNone {
		err := mapChangePasswordFailure(res)
		switch res.Failure {
		case flows.ChangePasswordFailureInvalidOld:
			e.metricInc(MetricPasswordChangeInvalidOld)
			e.emitAudit(ctx, auditEventPasswordChangeInvalidOld, false, target, err, nil)
		case flows.ChangePasswordFailureInvalidInput, flows.ChangePasswordFailureUserNotFound:
			e.emitAudit(ctx, auditEventPasswordChangeFailure, false, target, err, nil)
		default:
			e.logger.Error("password change failed", zap.String("user_id", userID), zap.Error(res.Err))
			e.emitAudit(ctx, auditEventPasswordChangeFailure, false, target, err, nil)
		}
		return nil, err
	}

	e.recordRevokeAll(ctx, userID, res.Revoked)
	e.metricInc(MetricPasswordChangeSuccess)
	e.metricInc(MetricSessionCreated)
	target.jti = res.Issued.Record.JTI
	target.deviceID = res.Issued.RefreshRowID
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, target, nil, nil)
	return tokenPair(res.Issued), nil
}

/*
====================================
SESSION DIRECTORY
====================================
*/

// ListSessions returns the live access sessions of userID, newest first.
// The session whose jti equals currentJTI is flagged IsCurrent.
func (e *Engine) ListSessions(ctx context.Context, userID, currentJTI string) ([]SessionInfo, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	entries, err := e.flows.ListSessions(ctx, userID, currentJTI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	out := make([]SessionInfo, 0, len(entries))
	for _, s := range entries {
		out = append(out, SessionInfo{
			JTI:       s.JTI,
			Device:    s.Device,
			CreatedAt: s.CreatedAt,
			ExpiresAt: s.ExpiresAt,
			IsCurrent: s.IsCurrent,
		})
	}
	return out, nil
}

// ListDevices returns the unrevoked, unexpired refresh tokens of userID,
// newest first.
func (e *Engine) ListDevices(ctx context.Context, userID string) ([]DeviceSession, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	entries, err := e.flows.ListDevices(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	out := make([]DeviceSession, 0, len(entries))
	for _, d := range entries {
		out = append(out, DeviceSession{
			ID:         d.ID,
			Device:     d.Device,
			CreatedAt:  d.CreatedAt,
			ExpiresAt:  d.ExpiresAt,
			LastUsedAt: d.LastUsedAt,
		})
	}
	return out, nil
}

/*
====================================
RESULT MAPPING
====================================
*/

func tokenPair(res flows.IssueResult) *TokenPair {
	return &TokenPair{
		AccessToken:      res.AccessToken,
		RefreshToken:     res.RefreshToken,
		JTI:              res.Record.JTI,
		RefreshTokenID:   res.RefreshRowID,
		AccessExpiresAt:  res.AccessExpiresAt,
		RefreshExpiresAt: res.RefreshExpiresAt,
	}
}

func backendErr(err error) error {
	if err == nil {
		return ErrBackendUnavailable
	}
	return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
}

func mapIssueFailure(res flows.IssueResult) error {
	switch res.Failure {
	case flows.IssueFailureSaveSession, flows.IssueFailurePersistRefresh:
		return backendErr(res.Err)
	default:
		return fmt.Errorf("token issuance failed: %w", res.Err)
	}
}

func mapValidateFailure(res flows.ValidateResult) error {
	switch res.Failure {
	case flows.ValidateFailureAuthenticationRequired:
		return ErrAuthenticationRequired
	case flows.ValidateFailureInvalidToken:
		return ErrInvalidToken
	case flows.ValidateFailureTokenExpired:
		return ErrTokenExpired
	case flows.ValidateFailureTokenRevoked:
		return ErrTokenRevoked
	case flows.ValidateFailureOwnershipMismatch:
		return ErrOwnershipMismatch
	case flows.ValidateFailureVersionMismatch:
		return ErrVersionMismatch
	case flows.ValidateFailureUserNotFound:
		return ErrUserNotFound
	case flows.ValidateFailureAccountInactive:
		return ErrAccountInactive
	default:
		return backendErr(res.Err)
	}
}

func mapLoginFailure(res flows.LoginResult) error {
	switch res.Failure {
	case flows.LoginFailureRateLimited:
		if errors.Is(res.Err, rate.ErrRateLimited) {
			return ErrLoginRateLimited
		}
		return backendErr(res.Err)
	case flows.LoginFailureInvalidCredentials:
		return ErrInvalidCredentials
	case flows.LoginFailureAccountInactive:
		return ErrAccountInactive
	case flows.LoginFailureIssue:
		return mapIssueFailure(res.Issued)
	default:
		return backendErr(res.Err)
	}
}

func mapRegisterFailure(res flows.RegisterResult) error {
	switch res.Failure {
	case flows.RegisterFailureInvalidInput:
		return fmt.Errorf("%w: %v", ErrInvalidInput, res.Err)
	case flows.RegisterFailureDuplicate:
		return ErrEmailTaken
	case flows.RegisterFailureHash:
		return fmt.Errorf("%w: %v", ErrInvalidInput, res.Err)
	case flows.RegisterFailureIssue:
		return mapIssueFailure(res.Issued)
	default:
		return backendErr(res.Err)
	}
}

func mapRefreshFailure(res flows.RefreshResult) error {
	switch res.Failure {
	case flows.RefreshFailureMalformed, flows.RefreshFailureNotFound:
		return ErrRefreshInvalid
	case flows.RefreshFailureRevoked:
		return ErrTokenRevoked
	case flows.RefreshFailureExpired:
		return ErrTokenExpired
	case flows.RefreshFailureRateLimited:
		if errors.Is(res.Err, rate.ErrRateLimited) {
			return ErrRefreshRateLimited
		}
		return backendErr(res.Err)
	case flows.RefreshFailureUserNotFound:
		return ErrUserNotFound
	case flows.RefreshFailureAccountInactive:
		return ErrAccountInactive
	case flows.RefreshFailureVersionMismatch:
		return ErrVersionMismatch
	case flows.RefreshFailureIssue:
		return mapIssueFailure(res.Issued)
	default:
		return backendErr(res.Err)
	}
}

func mapRevokeFailure(kind flows.RevokeFailureKind, err error) error {
	switch kind {
	case flows.RevokeFailureDeviceNotFound:
		return ErrDeviceNotFound
	default:
		return backendErr(err)
	}
}

func mapChangePasswordFailure(res flows.ChangePasswordResult) error {
	switch res.Failure {
	case flows.ChangePasswordFailureUserNotFound:
		return ErrUserNotFound
	case flows.ChangePasswordFailureInvalidOld:
		return ErrInvalidCredentials
	case flows.ChangePasswordFailureInvalidInput, flows.ChangePasswordFailureHash:
		return fmt.Errorf("%w: %v", ErrInvalidInput, res.Err)
	case flows.ChangePasswordFailureIssue:
		return mapIssueFailure(res.Issued)
	default:
		return backendErr(res.Err)
	}
}

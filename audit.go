package deviceauth

import (
	"context"
	"errors"
)

const (
	auditEventIssue                    = "issue"
	auditEventLoginSuccess             = "login_success"
	auditEventLoginFailure             = "login_failure"
	auditEventLoginRateLimited         = "login_rate_limited"
	auditEventRegisterSuccess          = "register_success"
	auditEventRegisterFailure          = "register_failure"
	auditEventValidateRejected         = "validate_rejected"
	auditEventRefreshSuccess           = "refresh_success"
	auditEventRefreshFailure           = "refresh_failure"
	auditEventRefreshStaleDevice       = "refresh_stale_device"
	auditEventLogoutSession            = "logout_session"
	auditEventLogoutDevice             = "logout_device"
	auditEventLogoutAll                = "logout_all"
	auditEventPasswordChangeSuccess    = "password_change_success"
	auditEventPasswordChangeInvalidOld = "password_change_invalid_old"
	auditEventPasswordChangeFailure    = "password_change_failure"
)

// AuditErrorCode is the stable error label written to AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrAuthRequired       AuditErrorCode = "authentication_required"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrTokenExpired       AuditErrorCode = "token_expired"
	auditErrTokenRevoked       AuditErrorCode = "token_revoked"
	auditErrOwnershipMismatch  AuditErrorCode = "ownership_mismatch"
	auditErrVersionMismatch    AuditErrorCode = "version_mismatch"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrAccountInactive    AuditErrorCode = "account_inactive"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrRefreshInvalid     AuditErrorCode = "refresh_invalid"
	auditErrDeviceNotFound     AuditErrorCode = "device_not_found"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrInvalidInput       AuditErrorCode = "invalid_input"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

type auditTarget struct {
	userID   string
	jti      string
	deviceID string
	device   DeviceInfo
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	target auditTarget,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    target.userID,
		JTI:       target.jti,
		DeviceID:  target.deviceID,
		IP:        target.device.IP,
		UserAgent: target.device.UserAgent,
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrAuthenticationRequired):
		return auditErrAuthRequired
	case errors.Is(err, ErrInvalidToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrTokenExpired), errors.Is(err, ErrStaleSession):
		return auditErrTokenExpired
	case errors.Is(err, ErrTokenRevoked):
		return auditErrTokenRevoked
	case errors.Is(err, ErrOwnershipMismatch):
		return auditErrOwnershipMismatch
	case errors.Is(err, ErrVersionMismatch):
		return auditErrVersionMismatch
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrAccountInactive):
		return auditErrAccountInactive
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrLoginRateLimited), errors.Is(err, ErrRefreshRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrRefreshInvalid):
		return auditErrRefreshInvalid
	case errors.Is(err, ErrDeviceNotFound):
		return auditErrDeviceNotFound
	case errors.Is(err, ErrEmailTaken):
		return auditErrDuplicate
	case errors.Is(err, ErrInvalidInput):
		return auditErrInvalidInput
	case errors.Is(err, ErrBackendUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}

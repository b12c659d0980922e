package deviceauth

import (
	"errors"
	"net/http"
)

var (
	// ErrAuthenticationRequired is returned when no usable bearer credential was supplied.
	ErrAuthenticationRequired = errors.New("authentication required")
	// ErrInvalidToken is returned for bad signatures and malformed tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned for correctly signed tokens past their expiry,
	// and for expired refresh tokens.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked is returned when the session behind a token no longer exists,
	// or a refresh token was revoked.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrOwnershipMismatch is returned when a session belongs to another user.
	ErrOwnershipMismatch = errors.New("session ownership mismatch")
	// ErrVersionMismatch is returned when a credential predates a global invalidation.
	ErrVersionMismatch = errors.New("token version mismatch")
	// ErrUserNotFound is returned when the token subject no longer exists.
	ErrUserNotFound = errors.New("user not found")
	// ErrForbidden is returned by role checks after successful authentication.
	ErrForbidden = errors.New("forbidden")

	ErrAccountInactive    = errors.New("account inactive")
	ErrStaleSession       = errors.New("session not fresh enough")
	ErrRefreshInvalid     = errors.New("invalid refresh token")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrLoginRateLimited   = errors.New("login rate limited")
	ErrRefreshRateLimited = errors.New("refresh rate limited")
	ErrDeviceNotFound     = errors.New("device not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrBackendUnavailable = errors.New("auth backend unavailable")
	ErrEngineNotReady     = errors.New("engine not initialized")
	ErrInvalidConfig      = errors.New("invalid config")

	// ErrRecordNotFound must be returned by IdentityStore implementations
	// when a user or refresh token row does not exist.
	ErrRecordNotFound = errors.New("record not found")
	// ErrEmailTaken must be returned by IdentityStore.CreateUser on a
	// duplicate email.
	ErrEmailTaken = errors.New("email already registered")
)

// HTTPStatus maps an engine error to the status code an HTTP layer should
// send. Every authentication failure is a 401.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrLoginRateLimited), errors.Is(err, ErrRefreshRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrDeviceNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrEngineNotReady), errors.Is(err, ErrInvalidConfig):
		return http.StatusInternalServerError
	default:
		return http.StatusUnauthorized
	}
}

// PublicMessage returns a stable client-facing message for err. It never
// reveals which validation layer rejected the request.
func PublicMessage(err error) string {
	switch HTTPStatus(err) {
	case http.StatusOK:
		return ""
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusTooManyRequests:
		return "too many requests"
	case http.StatusConflict:
		return "conflict"
	case http.StatusBadRequest:
		return "invalid request"
	case http.StatusNotFound:
		return "not found"
	case http.StatusInternalServerError:
		return "internal error"
	default:
		return "unauthorized"
	}
}

package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/MrEthical07/deviceauth"
)

// Authenticator is the engine surface used by the guards. *deviceauth.Engine
// implements it.
type Authenticator interface {
	Validate(ctx context.Context, authorization string) (*deviceauth.Identity, error)
	CheckFreshness(id *deviceauth.Identity, maxAge time.Duration) error
}

// IdentityFromContext returns the identity attached by [Guard] or [Optional].
func IdentityFromContext(ctx context.Context) (*deviceauth.Identity, bool) {
	return deviceauth.IdentityFromContext(ctx)
}

// Guard rejects the request with 401 unless the Authorization header carries
// a valid credential. The caller's device is attached to the context before
// validation so rejections are audited with it.
func Guard(engine Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				WriteError(w, deviceauth.ErrEngineNotReady)
				return
			}

			ctx := deviceauth.WithDevice(r.Context(), DeviceFromRequest(r))
			id, err := engine.Validate(ctx, r.Header.Get("Authorization"))
			if err != nil {
				WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(deviceauth.WithIdentity(ctx, id)))
		})
	}
}

// Optional attaches an identity when the request carries a valid credential
// and never rejects. Handlers check [IdentityFromContext].
func Optional(engine Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := deviceauth.WithDevice(r.Context(), DeviceFromRequest(r))
			if engine != nil && r.Header.Get("Authorization") != "" {
				if id, err := engine.Validate(ctx, r.Header.Get("Authorization")); err == nil {
					ctx = deviceauth.WithIdentity(ctx, id)
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRoles admits identities holding at least one of roles and answers
// 403 otherwise. It must run after [Guard]; without an identity it answers 401.
func RequireRoles(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				WriteError(w, deviceauth.ErrAuthenticationRequired)
				return
			}
			if !id.HasAnyRole(roles...) {
				WriteError(w, deviceauth.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireFresh admits identities whose session is younger than maxAge. A
// non-positive maxAge uses the engine default. It must run after [Guard].
func RequireFresh(engine Authenticator, maxAge time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				WriteError(w, deviceauth.ErrAuthenticationRequired)
				return
			}
			if err := engine.CheckFreshness(id, maxAge); err != nil {
				WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// WriteError writes the status and generic JSON body for err.
func WriteError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(deviceauth.HTTPStatus(err))
	_ = json.NewEncoder(w).Encode(errorBody{Error: deviceauth.PublicMessage(err)})
}

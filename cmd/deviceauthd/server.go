package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/MrEthical07/deviceauth"
	"github.com/MrEthical07/deviceauth/middleware"
	"go.uber.org/zap"
)

type pinger interface {
	Ping(ctx context.Context) (time.Duration, error)
}

type server struct {
	engine       *deviceauth.Engine
	logger       *zap.Logger
	defaultRoles []string
	freshMaxAge  time.Duration
	checks       map[string]pinger
	metrics      http.Handler
}

func (s *server) routes() http.Handler {
	guard := middleware.Guard(s.engine)
	fresh := middleware.RequireFresh(s.engine, s.freshMaxAge)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/auth/register", s.handleRegister)
	mux.HandleFunc("POST /v1/auth/login", s.handleLogin)
	mux.HandleFunc("POST /v1/auth/refresh", s.handleRefresh)
	mux.Handle("POST /v1/auth/logout", guard(http.HandlerFunc(s.handleLogout)))
	mux.Handle("POST /v1/auth/logout-all", guard(http.HandlerFunc(s.handleLogoutAll)))
	mux.Handle("POST /v1/auth/password", guard(fresh(http.HandlerFunc(s.handleChangePassword))))
	mux.Handle("GET /v1/auth/sessions", guard(http.HandlerFunc(s.handleSessions)))
	mux.Handle("GET /v1/auth/devices", guard(http.HandlerFunc(s.handleDevices)))
	mux.Handle("DELETE /v1/auth/devices/{id}", guard(http.HandlerFunc(s.handleRevokeDevice)))
	mux.Handle("GET /v1/auth/me", guard(http.HandlerFunc(s.handleMe)))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return mux
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type meResponse struct {
	UserID           string                `json:"user_id"`
	Email            string                `json:"email"`
	Roles            []string              `json:"roles"`
	JTI              string                `json:"jti,omitempty"`
	SessionCreatedAt time.Time             `json:"session_created_at,omitzero"`
	Device           deviceauth.DeviceInfo `json:"device"`
}

func (s *server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decode(w, r, &req) {
		return
	}
	pair, err := s.engine.Register(r.Context(), deviceauth.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Roles:    s.defaultRoles,
	}, middleware.DeviceFromRequest(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pair)
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decode(w, r, &req) {
		return
	}
	pair, err := s.engine.Login(r.Context(), req.Email, req.Password, middleware.DeviceFromRequest(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (s *server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decode(w, r, &req) {
		return
	}
	grant, err := s.engine.Refresh(r.Context(), req.RefreshToken, middleware.DeviceFromRequest(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, grant)
}

// handleLogout ends the calling session. A refresh token in the body also
// revokes that device.
func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFromContext(r.Context())

	var req refreshRequest
	if r.ContentLength > 0 && !decode(w, r, &req) {
		return
	}
	if id.JTI == "" && req.RefreshToken == "" {
		s.fail(w, r, deviceauth.ErrInvalidInput)
		return
	}

	var err error
	if id.JTI != "" {
		err = s.engine.RevokeSession(r.Context(), id.UserID, id.JTI, req.RefreshToken)
	} else {
		err = s.engine.Logout(r.Context(), deviceauth.LogoutRequest{UserID: id.UserID, RefreshToken: req.RefreshToken})
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFromContext(r.Context())
	version, err := s.engine.RevokeAll(r.Context(), id.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"token_version": version})
}

func (s *server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFromContext(r.Context())

	var req changePasswordRequest
	if !decode(w, r, &req) {
		return
	}
	pair, err := s.engine.ChangePassword(r.Context(), id.UserID, req.OldPassword, req.NewPassword, middleware.DeviceFromRequest(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (s *server) handleSessions(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFromContext(r.Context())
	sessions, err := s.engine.ListSessions(r.Context(), id.UserID, id.JTI)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []deviceauth.SessionInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *server) handleDevices(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFromContext(r.Context())
	devices, err := s.engine.ListDevices(r.Context(), id.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if devices == nil {
		devices = []deviceauth.DeviceSession{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices})
}

func (s *server) handleRevokeDevice(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFromContext(r.Context())
	if err := s.engine.RevokeDevice(r.Context(), id.UserID, r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleMe(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFromContext(r.Context())
	writeJSON(w, http.StatusOK, meResponse{
		UserID:           id.UserID,
		Email:            id.Email,
		Roles:            id.Roles,
		JTI:              id.JTI,
		SessionCreatedAt: id.SessionCreatedAt,
		Device:           id.Device,
	})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()

	status := http.StatusOK
	report := make(map[string]string, len(s.checks))
	for name, c := range s.checks {
		if _, err := c.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			report[name] = "down"
			s.logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
			continue
		}
		report[name] = "ok"
	}
	writeJSON(w, status, report)
}

// fail writes the public form of err. Backend problems are logged since the
// client only sees a generic status.
func (s *server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, deviceauth.ErrBackendUnavailable) || deviceauth.HTTPStatus(err) == http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	middleware.WriteError(w, err)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		middleware.WriteError(w, deviceauth.ErrInvalidInput)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

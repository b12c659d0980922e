package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrEthical07/deviceauth"
	promexport "github.com/MrEthical07/deviceauth/metrics/export/prometheus"
	"github.com/MrEthical07/deviceauth/store/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testPassword = "correct-password-123"

type testServer struct {
	handler http.Handler
	ids     *memory.Store
	rdb     *redis.Client
	now     time.Time
}

func (ts *testServer) clock() time.Time { return ts.now }

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := &Config{
		App:     App{Name: "deviceauthd"},
		Auth:    Auth{JWTSecret: testSecret, AccessTTL: 15 * time.Minute, RefreshTTL: time.Hour, FreshMaxAge: 5 * time.Minute, PasswordMinLength: 10, RateLimit: true, MaxLoginAttempts: 5, DefaultRoles: []string{"member"}},
		Audit:   Audit{Enabled: false, BufferSize: 16},
		Metrics: Metrics{Enabled: true, Latency: true},
	}
	ec := cfg.engineConfig()
	ec.Password.Memory = 8 * 1024
	ec.Password.Time = 1
	ec.Password.Parallelism = 1

	ts := &testServer{rdb: rdb, now: time.Now().Truncate(time.Second)}
	ts.ids = memory.New(ts.clock)
	engine, err := deviceauth.New().
		WithConfig(ec).
		WithRedis(rdb).
		WithIdentityStore(ts.ids).
		WithClock(ts.clock).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	srv := &server{
		engine:       engine,
		logger:       zap.NewNop(),
		defaultRoles: cfg.Auth.DefaultRoles,
		freshMaxAge:  cfg.Auth.FreshMaxAge,
		checks:       map[string]pinger{"sessions": engine, "db": ts.ids},
		metrics:      promexport.NewExporter(engine).Handler(),
	}
	ts.handler = srv.routes()
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "203.0.113.9:5555"
	req.Header.Set("User-Agent", "server-test")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (ts *testServer) registerAndLogin(t *testing.T, email string) deviceauth.TokenPair {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/v1/auth/register", "", credentialsRequest{Email: email, Password: testPassword})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/v1/auth/login", "", credentialsRequest{Email: email, Password: testPassword})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeBody[deviceauth.TokenPair](t, rec)
}

func TestRegisterLoginMe(t *testing.T) {
	ts := newTestServer(t)
	pair := ts.registerAndLogin(t, "alice@example.com")

	rec := ts.do(t, http.MethodGet, "/v1/auth/me", pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decodeBody[meResponse](t, rec)
	assert.Equal(t, "alice@example.com", me.Email)
	assert.Equal(t, []string{"member"}, me.Roles)
	assert.Equal(t, pair.JTI, me.JTI)
	assert.Equal(t, "203.0.113.9", me.Device.IP)

	rec = ts.do(t, http.MethodGet, "/v1/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/v1/auth/register", "", credentialsRequest{Email: "alice@example.com", Password: testPassword})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/v1/auth/login", "", credentialsRequest{Email: "alice@example.com", Password: "wrong-password-123"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefreshAndLogout(t *testing.T) {
	ts := newTestServer(t)
	pair := ts.registerAndLogin(t, "bob@example.com")

	rec := ts.do(t, http.MethodPost, "/v1/auth/refresh", "", refreshRequest{RefreshToken: pair.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	grant := decodeBody[deviceauth.AccessGrant](t, rec)
	assert.Equal(t, pair.RefreshTokenID, grant.RefreshTokenID)

	rec = ts.do(t, http.MethodPost, "/v1/auth/logout", grant.AccessToken, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodGet, "/v1/auth/me", grant.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodGet, "/v1/auth/me", pair.AccessToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code, "logging out one session leaves the others")
}

func TestSessionsDevicesAndRevokeDevice(t *testing.T) {
	ts := newTestServer(t)
	first := ts.registerAndLogin(t, "carol@example.com")
	rec := ts.do(t, http.MethodPost, "/v1/auth/login", "", credentialsRequest{Email: "carol@example.com", Password: testPassword})
	require.Equal(t, http.StatusOK, rec.Code)
	second := decodeBody[deviceauth.TokenPair](t, rec)

	rec = ts.do(t, http.MethodGet, "/v1/auth/sessions", first.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sessions := decodeBody[struct {
		Sessions []deviceauth.SessionInfo `json:"sessions"`
	}](t, rec)
	assert.Len(t, sessions.Sessions, 3)
	current := 0
	for _, s := range sessions.Sessions {
		if s.IsCurrent {
			current++
			assert.Equal(t, first.JTI, s.JTI)
		}
	}
	assert.Equal(t, 1, current)

	rec = ts.do(t, http.MethodGet, "/v1/auth/devices", first.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	devices := decodeBody[struct {
		Devices []deviceauth.DeviceSession `json:"devices"`
	}](t, rec)
	assert.Len(t, devices.Devices, 3)

	rec = ts.do(t, http.MethodDelete, "/v1/auth/devices/"+second.RefreshTokenID, first.AccessToken, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodPost, "/v1/auth/refresh", "", refreshRequest{RefreshToken: second.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/v1/auth/devices/does-not-exist", first.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLogoutAllAndChangePassword(t *testing.T) {
	ts := newTestServer(t)
	pair := ts.registerAndLogin(t, "dave@example.com")

	rec := ts.do(t, http.MethodPost, "/v1/auth/password", pair.AccessToken, changePasswordRequest{OldPassword: testPassword, NewPassword: "another-password-456"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	next := decodeBody[deviceauth.TokenPair](t, rec)

	rec = ts.do(t, http.MethodGet, "/v1/auth/me", pair.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = ts.do(t, http.MethodGet, "/v1/auth/me", next.AccessToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/v1/auth/logout-all", next.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decodeBody[map[string]int64](t, rec)
	assert.Equal(t, int64(3), out["token_version"])

	rec = ts.do(t, http.MethodGet, "/v1/auth/me", next.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChangePasswordRequiresFreshSession(t *testing.T) {
	ts := newTestServer(t)
	pair := ts.registerAndLogin(t, "erin@example.com")

	ts.now = ts.now.Add(10 * time.Minute)

	rec := ts.do(t, http.MethodGet, "/v1/auth/me", pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, "a stale session still authenticates")

	rec = ts.do(t, http.MethodPost, "/v1/auth/password", pair.AccessToken, changePasswordRequest{OldPassword: testPassword, NewPassword: "another-password-456"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodPost, "/v1/auth/login", "", credentialsRequest{Email: "erin@example.com", Password: testPassword})
	require.Equal(t, http.StatusOK, rec.Code)
	fresh := decodeBody[deviceauth.TokenPair](t, rec)

	rec = ts.do(t, http.MethodPost, "/v1/auth/password", fresh.AccessToken, changePasswordRequest{OldPassword: testPassword, NewPassword: "another-password-456"})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"sessions":"ok","db":"ok"}`, rec.Body.String())

	_ = ts.rdb.Close()
	rec = ts.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"sessions":"down"`)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.registerAndLogin(t, "frank@example.com")

	rec := ts.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "deviceauth_login_success_total 1")
}

type fakePurger struct {
	before time.Time
	n      int64
	err    error
}

func (f *fakePurger) PurgeRefreshTokens(_ context.Context, before time.Time) (int64, error) {
	f.before = before
	return f.n, f.err
}

func TestSweepOnce(t *testing.T) {
	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	p := &fakePurger{n: 4}
	assert.Equal(t, int64(4), sweepOnce(context.Background(), p, cutoff, zap.NewNop()))
	assert.True(t, p.before.Equal(cutoff))

	p = &fakePurger{err: errors.New("db down")}
	assert.Equal(t, int64(0), sweepOnce(context.Background(), p, cutoff, zap.NewNop()))
}

package flows

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/deviceauth/jwt"
	"github.com/MrEthical07/deviceauth/session"
	"go.uber.org/zap"
)

// ValidateFailureKind classifies why a request was rejected.
type ValidateFailureKind int

const (
	ValidateFailureNone ValidateFailureKind = iota
	ValidateFailureAuthenticationRequired
	ValidateFailureInvalidToken
	ValidateFailureTokenExpired
	ValidateFailureTokenRevoked
	ValidateFailureOwnershipMismatch
	ValidateFailureVersionMismatch
	ValidateFailureUserNotFound
	ValidateFailureAccountInactive
	ValidateFailureBackend
)

// ValidateLayer names one step of the validation pipeline.
type ValidateLayer int

const (
	LayerFormat ValidateLayer = iota + 1
	LayerClaims
	LayerSession
	LayerUser
	LayerVersion
)

func (l ValidateLayer) String() string {
	switch l {
	case LayerFormat:
		return "format"
	case LayerClaims:
		return "claims"
	case LayerSession:
		return "session"
	case LayerUser:
		return "user"
	case LayerVersion:
		return "version"
	default:
		return "none"
	}
}

// ValidateSessionStore is the ephemeral store surface needed for validation.
// Get must return session.ErrNotFound for absent or expired records.
type ValidateSessionStore interface {
	Get(ctx context.Context, jti string) (*session.Record, error)
	Delete(ctx context.Context, userID, jti string) error
}

// ValidateDeps wires the validation pipeline.
type ValidateDeps struct {
	ParseAccess  func(token string) (*jwt.AccessClaims, error)
	SessionStore ValidateSessionStore
	LoadUser     func(ctx context.Context, userID string) (User, error)
	UserNotFound error
	Logger       *zap.Logger
}

// ValidateResult is the outcome of one validation.
type ValidateResult struct {
	Failure ValidateFailureKind
	Layer   ValidateLayer
	Err     error

	Claims *jwt.AccessClaims
	Record *session.Record
	User   User

	// Legacy is set for tokens without a jti. Those skip the session layer.
	Legacy bool

	// CleanupAttempted is set when the flow removed the session it rejected.
	CleanupAttempted bool
	CleanupErr       error
}

type validateState struct {
	ctx    context.Context
	deps   *ValidateDeps
	header string
	token  string
	res    ValidateResult
}

type layerCheck struct {
	layer ValidateLayer
	run   func(st *validateState) (ValidateFailureKind, error)
}

// Layers run strictly in order and stop at the first failure.
var validateLayers = [...]layerCheck{
	{LayerFormat, checkFormat},
	{LayerClaims, checkClaims},
	{LayerSession, checkSession},
	{LayerUser, checkUser},
	{LayerVersion, checkVersion},
}

// RunValidate authenticates a raw Authorization header value.
func RunValidate(ctx context.Context, authorization string, deps ValidateDeps) ValidateResult {
	st := &validateState{ctx: ctx, deps: &deps, header: authorization}
	return runLayers(st, validateLayers[:])
}

// RunValidateToken authenticates a bare token, skipping the header format layer.
func RunValidateToken(ctx context.Context, token string, deps ValidateDeps) ValidateResult {
	st := &validateState{ctx: ctx, deps: &deps, token: strings.TrimSpace(token)}
	if st.token == "" {
		return ValidateResult{Failure: ValidateFailureAuthenticationRequired, Layer: LayerFormat}
	}
	return runLayers(st, validateLayers[1:])
}

func runLayers(st *validateState, layers []layerCheck) ValidateResult {
	for _, l := range layers {
		kind, err := l.run(st)
		if kind != ValidateFailureNone {
			st.res.Failure = kind
			st.res.Layer = l.layer
			st.res.Err = err
			return st.res
		}
	}
	return st.res
}

// BearerToken extracts the token from an Authorization header value.
// The scheme is matched case-insensitively.
func BearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", false
	}
	return token, true
}

func checkFormat(st *validateState) (ValidateFailureKind, error) {
	if strings.TrimSpace(st.header) == "" {
		return ValidateFailureAuthenticationRequired, nil
	}
	token, ok := BearerToken(st.header)
	if !ok {
		return ValidateFailureAuthenticationRequired, errors.New("malformed authorization header")
	}
	st.token = token
	return ValidateFailureNone, nil
}

func checkClaims(st *validateState) (ValidateFailureKind, error) {
	claims, err := st.deps.ParseAccess(st.token)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			// Signature held, so the jti is trustworthy enough to clean up.
			if claims != nil {
				st.res.Claims = claims
				st.cleanup()
			}
			return ValidateFailureTokenExpired, err
		}
		return ValidateFailureInvalidToken, err
	}
	st.res.Claims = claims
	return ValidateFailureNone, nil
}

func checkSession(st *validateState) (ValidateFailureKind, error) {
	claims := st.res.Claims
	jti := claims.JTI()
	if jti == "" {
		st.res.Legacy = true
		loggerOrNop(st.deps.Logger).Debug("token without jti skips session layer",
			zap.String("user_id", claims.UserID),
		)
		return ValidateFailureNone, nil
	}

	rec, err := st.deps.SessionStore.Get(st.ctx, jti)
	switch {
	case errors.Is(err, session.ErrNotFound):
		return ValidateFailureTokenRevoked, err
	case errors.Is(err, session.ErrCorruptRecord):
		st.cleanup()
		return ValidateFailureTokenRevoked, err
	case err != nil:
		return ValidateFailureBackend, err
	}

	// A foreign record is never cleaned up from here.
	if rec.UserID != claims.UserID {
		return ValidateFailureOwnershipMismatch, errors.New("session owner differs from token subject")
	}
	if claims.Version != nil && *claims.Version != rec.TokenVersion {
		st.cleanup()
		return ValidateFailureVersionMismatch, errors.New("token version differs from session version")
	}

	st.res.Record = rec
	return ValidateFailureNone, nil
}

func checkUser(st *validateState) (ValidateFailureKind, error) {
	user, err := st.deps.LoadUser(st.ctx, st.res.Claims.UserID)
	if err != nil {
		if st.deps.UserNotFound != nil && errors.Is(err, st.deps.UserNotFound) {
			st.cleanup()
			return ValidateFailureUserNotFound, err
		}
		return ValidateFailureBackend, err
	}
	if !user.IsActive {
		st.cleanup()
		return ValidateFailureAccountInactive, nil
	}
	st.res.User = user
	return ValidateFailureNone, nil
}

func checkVersion(st *validateState) (ValidateFailureKind, error) {
	v := st.res.Claims.Version
	if v == nil {
		st.cleanup()
		return ValidateFailureVersionMismatch, errors.New("token carries no version")
	}
	if *v != st.res.User.TokenVersion {
		st.cleanup()
		return ValidateFailureVersionMismatch, errors.New("token version is stale")
	}
	return ValidateFailureNone, nil
}

// cleanup removes the session named by the token. Failures are logged only.
func (st *validateState) cleanup() {
	claims := st.res.Claims
	if claims == nil || claims.JTI() == "" {
		return
	}
	st.res.CleanupAttempted = true
	if err := st.deps.SessionStore.Delete(st.ctx, claims.UserID, claims.JTI()); err != nil {
		st.res.CleanupErr = err
		loggerOrNop(st.deps.Logger).Warn("lazy session cleanup failed",
			zap.String("user_id", claims.UserID),
			zap.String("jti", claims.JTI()),
			zap.Error(err),
		)
	}
}

// Fresh reports whether a session created at createdAt is younger than
// maxAge. A zero createdAt is never fresh.
func Fresh(createdAt, now time.Time, maxAge time.Duration) bool {
	if createdAt.IsZero() {
		return false
	}
	return now.Sub(createdAt) <= maxAge
}

package flows

import (
	"time"

	"github.com/MrEthical07/deviceauth/session"
	"go.uber.org/zap"
)

// User is the flow-local view of a durable user row.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Roles        []string
	TokenVersion int64
	IsActive     bool
}

// RefreshRow is the flow-local view of a durable refresh token row.
type RefreshRow struct {
	ID         string
	UserID     string
	Version    int64
	TokenHash  string
	Device     session.Device
	CreatedAt  time.Time
	ExpiresAt  time.Time
	LastUsedAt time.Time
	IsRevoked  bool
}

// Deps groups the dependency structs of every flow run by Service.
type Deps struct {
	Issue          IssueDeps
	Validate       ValidateDeps
	Refresh        RefreshDeps
	Revoke         RevokeDeps
	Directory      DirectoryDeps
	Login          LoginDeps
	Register       RegisterDeps
	ChangePassword ChangePasswordDeps
}

func loggerOrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

func nowOr(now func() time.Time) time.Time {
	if now == nil {
		return time.Now()
	}
	return now()
}

package flows

import (
	"context"
	"sort"
	"time"

	"github.com/MrEthical07/deviceauth/session"
)

// DirectorySessionStore is the ephemeral store surface needed for listing.
type DirectorySessionStore interface {
	Members(ctx context.Context, userID string) ([]string, error)
	GetMany(ctx context.Context, jtis []string) ([]*session.Record, error)
}

// DirectoryDeps wires session and device listing.
type DirectoryDeps struct {
	Now          func() time.Time
	SessionStore DirectorySessionStore
	ListRows     func(ctx context.Context, userID string) ([]RefreshRow, error)
}

// SessionEntry is one live access session.
type SessionEntry struct {
	JTI       string
	Device    session.Device
	CreatedAt time.Time
	ExpiresAt time.Time
	IsCurrent bool
}

// DeviceEntry is one live refresh token row.
type DeviceEntry struct {
	ID         string
	Device     session.Device
	CreatedAt  time.Time
	ExpiresAt  time.Time
	LastUsedAt time.Time
}

// RunListSessions lists userID's live sessions, newest first. Set members
// whose record has already expired are skipped.
func RunListSessions(ctx context.Context, userID, currentJTI string, deps DirectoryDeps) ([]SessionEntry, error) {
	jtis, err := deps.SessionStore.Members(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(jtis) == 0 {
		return []SessionEntry{}, nil
	}

	records, err := deps.SessionStore.GetMany(ctx, jtis)
	if err != nil {
		return nil, err
	}

	out := make([]SessionEntry, 0, len(records))
	for _, rec := range records {
		if rec == nil || rec.UserID != userID {
			continue
		}
		out = append(out, SessionEntry{
			JTI:       rec.JTI,
			Device:    rec.Device,
			CreatedAt: rec.Created(),
			ExpiresAt: time.Unix(rec.ExpiresAt, 0),
			IsCurrent: currentJTI != "" && rec.JTI == currentJTI,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].JTI < out[j].JTI
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// RunListDevices lists userID's unrevoked and unexpired refresh rows, newest first.
func RunListDevices(ctx context.Context, userID string, deps DirectoryDeps) ([]DeviceEntry, error) {
	rows, err := deps.ListRows(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := nowOr(deps.Now)
	out := make([]DeviceEntry, 0, len(rows))
	for _, row := range rows {
		if row.IsRevoked || !row.ExpiresAt.After(now) {
			continue
		}
		out = append(out, DeviceEntry{
			ID:         row.ID,
			Device:     row.Device,
			CreatedAt:  row.CreatedAt,
			ExpiresAt:  row.ExpiresAt,
			LastUsedAt: row.LastUsedAt,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

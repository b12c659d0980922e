package flows

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/deviceauth/jwt"
	"github.com/MrEthical07/deviceauth/session"
)

var (
	errUserNotFound = errors.New("user not found")
	errRowNotFound  = errors.New("row not found")
	errEmailTaken   = errors.New("email taken")
)

type spySessions struct {
	*session.MemoryStore
	getErr       error
	deleteErr    error
	deleteAllErr error
	deleted      []string
}

func (s *spySessions) Get(ctx context.Context, jti string) (*session.Record, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.MemoryStore.Get(ctx, jti)
}

func (s *spySessions) Delete(ctx context.Context, userID, jti string) error {
	s.deleted = append(s.deleted, jti)
	if s.deleteErr != nil {
		return s.deleteErr
	}
	return s.MemoryStore.Delete(ctx, userID, jti)
}

func (s *spySessions) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	if s.deleteAllErr != nil {
		return 0, s.deleteAllErr
	}
	return s.MemoryStore.DeleteAllForUser(ctx, userID)
}

type flowHarness struct {
	t         *testing.T
	mu        sync.Mutex
	now       time.Time
	seq       int
	jwt       *jwt.Manager
	sessions  *spySessions
	users     map[string]User
	rows      map[string]RefreshRow
	userLoads int
	insertErr error
}

func newFlowHarness(t *testing.T) *flowHarness {
	t.Helper()
	h := &flowHarness{
		t:     t,
		now:   time.Unix(1_700_000_000, 0),
		users: make(map[string]User),
		rows:  make(map[string]RefreshRow),
	}
	m, err := jwt.NewManager(jwt.Config{
		AccessTTL: time.Minute,
		Secret:    []byte(strings.Repeat("k", jwt.MinSecretLength)),
		Now:       h.clock,
	})
	if err != nil {
		t.Fatalf("new jwt manager: %v", err)
	}
	h.jwt = m
	h.sessions = &spySessions{MemoryStore: session.NewMemoryStore(h.clock)}
	return h
}

func (h *flowHarness) clock() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.now
}

func (h *flowHarness) advance(d time.Duration) {
	h.mu.Lock()
	h.now = h.now.Add(d)
	h.mu.Unlock()
}

func (h *flowHarness) next(prefix string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	return fmt.Sprintf("%s-%d", prefix, h.seq)
}

func (h *flowHarness) addUser(id string, version int64) User {
	u := User{
		ID:           id,
		Email:        id + "@example.com",
		PasswordHash: "h:secret-password",
		Roles:        []string{"member"},
		TokenVersion: version,
		IsActive:     true,
	}
	h.users[id] = u
	return u
}

func (h *flowHarness) loadUser(_ context.Context, id string) (User, error) {
	h.userLoads++
	u, ok := h.users[id]
	if !ok {
		return User{}, fmt.Errorf("load %s: %w", id, errUserNotFound)
	}
	return u, nil
}

func (h *flowHarness) findByEmail(_ context.Context, email string) (User, error) {
	for _, u := range h.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, errUserNotFound
}

func (h *flowHarness) findRow(_ context.Context, hash string) (RefreshRow, error) {
	for _, row := range h.rows {
		if row.TokenHash == hash {
			return row, nil
		}
	}
	return RefreshRow{}, errRowNotFound
}

func (h *flowHarness) revokeRow(_ context.Context, userID, id string) (bool, error) {
	row, ok := h.rows[id]
	if !ok || row.UserID != userID {
		return false, nil
	}
	row.IsRevoked = true
	h.rows[id] = row
	return true, nil
}

func (h *flowHarness) revokeAllRows(_ context.Context, userID string) (int64, error) {
	var n int64
	for id, row := range h.rows {
		if row.UserID == userID && !row.IsRevoked {
			row.IsRevoked = true
			h.rows[id] = row
			n++
		}
	}
	return n, nil
}

func (h *flowHarness) incrementVersion(_ context.Context, userID string) (int64, error) {
	u, ok := h.users[userID]
	if !ok {
		return 0, errUserNotFound
	}
	u.TokenVersion++
	h.users[userID] = u
	return u.TokenVersion, nil
}

func (h *flowHarness) listRows(_ context.Context, userID string) ([]RefreshRow, error) {
	var out []RefreshRow
	for _, row := range h.rows {
		if row.UserID == userID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func fakeHash(password string) (string, error) { return "h:" + password, nil }

func fakeVerify(password, hash string) (bool, error) { return hash == "h:"+password, nil }

func fakeRefreshHash(token string) string { return "sha:" + token }

func (h *flowHarness) issueDeps() IssueDeps {
	return IssueDeps{
		Now:             h.clock,
		NewJTI:          func() (string, error) { return h.next("jti"), nil },
		NewRefreshToken: func() (string, error) { return h.next("rt"), nil },
		HashRefresh:     fakeRefreshHash,
		NewRowID:        func() string { return h.next("row") },
		CreateAccess:    h.jwt.CreateAccess,
		RefreshTTL:      time.Hour,
		SessionStore:    h.sessions,
		InsertRefresh: func(_ context.Context, row RefreshRow) error {
			if h.insertErr != nil {
				return h.insertErr
			}
			h.rows[row.ID] = row
			return nil
		},
	}
}

func (h *flowHarness) validateDeps() ValidateDeps {
	return ValidateDeps{
		ParseAccess:  h.jwt.ParseAccess,
		SessionStore: h.sessions,
		LoadUser:     h.loadUser,
		UserNotFound: errUserNotFound,
	}
}

func (h *flowHarness) refreshDeps() RefreshDeps {
	return RefreshDeps{
		Now:          h.clock,
		CheckToken:   func(string) error { return nil },
		HashToken:    fakeRefreshHash,
		FindRow:      h.findRow,
		RowNotFound:  errRowNotFound,
		RevokeRow:    h.revokeRow,
		TouchRow:     func(_ context.Context, id string, at time.Time) error {
			row := h.rows[id]
			row.LastUsedAt = at
			h.rows[id] = row
			return nil
		},
		LoadUser:     h.loadUser,
		UserNotFound: errUserNotFound,
		Issue:        h.issueDeps(),
	}
}

func (h *flowHarness) revokeDeps() RevokeDeps {
	return RevokeDeps{
		SessionStore:     h.sessions,
		HashToken:        fakeRefreshHash,
		FindRow:          h.findRow,
		RowNotFound:      errRowNotFound,
		RevokeRow:        h.revokeRow,
		RevokeAllRows:    h.revokeAllRows,
		IncrementVersion: h.incrementVersion,
	}
}

func (h *flowHarness) directoryDeps() DirectoryDeps {
	return DirectoryDeps{
		Now:          h.clock,
		SessionStore: h.sessions,
		ListRows:     h.listRows,
	}
}

func (h *flowHarness) issue(user User) IssueResult {
	h.t.Helper()
	res := RunIssue(context.Background(), user, session.Device{IP: "10.0.0.1", UserAgent: "test"}, h.issueDeps())
	if res.Failure != IssueFailureNone {
		h.t.Fatalf("issue failed: %v (%v)", res.Failure, res.Err)
	}
	return res
}

package deviceauth

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// memIdentity is an in-memory IdentityStore for engine tests.
type memIdentity struct {
	mu      sync.Mutex
	now     func() time.Time
	users   map[string]User
	byEmail map[string]string
	tokens  map[string]RefreshTokenRecord
	byHash  map[string]string

	failGetUser       error
	failBumpVersion   error
	failPasswordWrite error
}

func newMemIdentity(now func() time.Time) *memIdentity {
	return &memIdentity{
		now:     now,
		users:   map[string]User{},
		byEmail: map[string]string{},
		tokens:  map[string]RefreshTokenRecord{},
		byHash:  map[string]string{},
	}
}

func (m *memIdentity) GetUserByID(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGetUser != nil {
		return nil, m.failGetUser
	}
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, ErrRecordNotFound)
	}
	u.Roles = slices.Clone(u.Roles)
	return &u, nil
}

func (m *memIdentity) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.Lock()
	id, ok := m.byEmail[email]
	m.mu.Unlock()
	if !ok {
		return nil, ErrRecordNotFound
	}
	return m.GetUserByID(ctx, id)
}

func (m *memIdentity) CreateUser(_ context.Context, in NewUser) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[in.Email]; ok {
		return nil, ErrEmailTaken
	}
	u := User{
		ID:           in.ID,
		Email:        in.Email,
		PasswordHash: in.PasswordHash,
		Roles:        slices.Clone(in.Roles),
		TokenVersion: 1,
		IsActive:     true,
		CreatedAt:    m.now(),
	}
	m.users[u.ID] = u
	m.byEmail[u.Email] = u.ID
	return &u, nil
}

func (m *memIdentity) UpdatePasswordHash(_ context.Context, userID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPasswordWrite != nil {
		return m.failPasswordWrite
	}
	u, ok := m.users[userID]
	if !ok {
		return ErrRecordNotFound
	}
	u.PasswordHash = hash
	m.users[userID] = u
	return nil
}

func (m *memIdentity) IncrementTokenVersion(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failBumpVersion != nil {
		return 0, m.failBumpVersion
	}
	u, ok := m.users[userID]
	if !ok {
		return 0, ErrRecordNotFound
	}
	u.TokenVersion++
	m.users[userID] = u
	return u.TokenVersion, nil
}

func (m *memIdentity) CreateRefreshToken(_ context.Context, rec *RefreshTokenRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[rec.ID] = *rec
	m.byHash[rec.TokenHash] = rec.ID
	return nil
}

func (m *memIdentity) GetRefreshTokenByHash(_ context.Context, tokenHash string) (*RefreshTokenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byHash[tokenHash]
	if !ok {
		return nil, ErrRecordNotFound
	}
	rec := m.tokens[id]
	return &rec, nil
}

func (m *memIdentity) TouchRefreshToken(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tokens[id]
	if !ok {
		return ErrRecordNotFound
	}
	rec.LastUsedAt = at
	m.tokens[id] = rec
	return nil
}

func (m *memIdentity) RevokeRefreshToken(_ context.Context, userID, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tokens[id]
	if !ok || rec.UserID != userID {
		return false, nil
	}
	rec.IsRevoked = true
	m.tokens[id] = rec
	return true, nil
}

func (m *memIdentity) RevokeRefreshTokensForUser(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, rec := range m.tokens {
		if rec.UserID == userID && !rec.IsRevoked {
			rec.IsRevoked = true
			m.tokens[id] = rec
			n++
		}
	}
	return n, nil
}

func (m *memIdentity) ListRefreshTokens(_ context.Context, userID string) ([]RefreshTokenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []RefreshTokenRecord
	for _, rec := range m.tokens {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memIdentity) token(id string) RefreshTokenRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[id]
}

func (m *memIdentity) setActive(userID string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[userID]
	u.IsActive = active
	m.users[userID] = u
}

func (m *memIdentity) deleteUser(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[userID]
	delete(m.byEmail, u.Email)
	delete(m.users, userID)
}

// Package memory is a process-local deviceauth.IdentityStore for tests,
// examples and single-node development. Data does not survive a restart.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/MrEthical07/deviceauth"
)

var _ deviceauth.IdentityStore = (*Store)(nil)

type Store struct {
	mu      sync.RWMutex
	now     func() time.Time
	users   map[string]deviceauth.User
	byEmail map[string]string
	tokens  map[string]deviceauth.RefreshTokenRecord
	byHash  map[string]string
}

// New returns an empty store. A nil clock uses time.Now.
func New(clock func() time.Time) *Store {
	if clock == nil {
		clock = time.Now
	}
	return &Store{
		now:     clock,
		users:   map[string]deviceauth.User{},
		byEmail: map[string]string{},
		tokens:  map[string]deviceauth.RefreshTokenRecord{},
		byHash:  map[string]string{},
	}
}

func (s *Store) GetUserByID(_ context.Context, id string) (*deviceauth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userLocked(id)
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*deviceauth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", email, deviceauth.ErrRecordNotFound)
	}
	return s.userLocked(id)
}

func (s *Store) userLocked(id string) (*deviceauth.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, deviceauth.ErrRecordNotFound)
	}
	u.Roles = slices.Clone(u.Roles)
	return &u, nil
}

func (s *Store) CreateUser(_ context.Context, in deviceauth.NewUser) (*deviceauth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[in.Email]; ok {
		return nil, deviceauth.ErrEmailTaken
	}
	u := deviceauth.User{
		ID:           in.ID,
		Email:        in.Email,
		PasswordHash: in.PasswordHash,
		Roles:        slices.Clone(in.Roles),
		TokenVersion: 1,
		IsActive:     true,
		CreatedAt:    s.now(),
	}
	s.users[u.ID] = u
	s.byEmail[u.Email] = u.ID
	out := u
	out.Roles = slices.Clone(u.Roles)
	return &out, nil
}

func (s *Store) UpdatePasswordHash(_ context.Context, userID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return deviceauth.ErrRecordNotFound
	}
	u.PasswordHash = hash
	s.users[userID] = u
	return nil
}

func (s *Store) IncrementTokenVersion(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return 0, deviceauth.ErrRecordNotFound
	}
	u.TokenVersion++
	s.users[userID] = u
	return u.TokenVersion, nil
}

// SetActive flips the account flag. Inactive accounts fail validation.
func (s *Store) SetActive(userID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return deviceauth.ErrRecordNotFound
	}
	u.IsActive = active
	s.users[userID] = u
	return nil
}

func (s *Store) CreateRefreshToken(_ context.Context, rec *deviceauth.RefreshTokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byHash[rec.TokenHash]; ok {
		return fmt.Errorf("refresh token hash collision")
	}
	s.tokens[rec.ID] = *rec
	s.byHash[rec.TokenHash] = rec.ID
	return nil
}

func (s *Store) GetRefreshTokenByHash(_ context.Context, tokenHash string) (*deviceauth.RefreshTokenRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byHash[tokenHash]
	if !ok {
		return nil, deviceauth.ErrRecordNotFound
	}
	rec := s.tokens[id]
	return &rec, nil
}

func (s *Store) TouchRefreshToken(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tokens[id]
	if !ok {
		return deviceauth.ErrRecordNotFound
	}
	rec.LastUsedAt = at
	s.tokens[id] = rec
	return nil
}

func (s *Store) RevokeRefreshToken(_ context.Context, userID, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tokens[id]
	if !ok || rec.UserID != userID {
		return false, nil
	}
	rec.IsRevoked = true
	s.tokens[id] = rec
	return true, nil
}

func (s *Store) RevokeRefreshTokensForUser(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, rec := range s.tokens {
		if rec.UserID == userID && !rec.IsRevoked {
			rec.IsRevoked = true
			s.tokens[id] = rec
			n++
		}
	}
	return n, nil
}

// ListRefreshTokens returns the user's rows, newest first.
func (s *Store) ListRefreshTokens(_ context.Context, userID string) ([]deviceauth.RefreshTokenRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []deviceauth.RefreshTokenRecord
	for _, rec := range s.tokens {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// PurgeRefreshTokens mirrors the postgres sweep: rows expired before
// before, and revoked rows last touched before before, are deleted.
func (s *Store) PurgeRefreshTokens(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, rec := range s.tokens {
		touched := rec.LastUsedAt
		if touched.IsZero() {
			touched = rec.CreatedAt
		}
		if rec.ExpiresAt.Before(before) || (rec.IsRevoked && touched.Before(before)) {
			delete(s.byHash, rec.TokenHash)
			delete(s.tokens, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) Ping(context.Context) (time.Duration, error) { return 0, nil }

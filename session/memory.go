package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MemoryStore is an in-process store with the same semantics as [Store].
// It is intended for tests and single-node development setups.
type MemoryStore struct {
	mu           sync.Mutex
	now          func() time.Time
	setTTLBuffer time.Duration
	records      map[string]memoryEntry
	sets         map[string]memorySet
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

type memorySet struct {
	members   map[string]struct{}
	expiresAt time.Time
}

// NewMemoryStore creates an empty [MemoryStore]. A nil clock uses time.Now.
func NewMemoryStore(clock func() time.Time) *MemoryStore {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryStore{
		now:          clock,
		setTTLBuffer: DefaultSetTTLBuffer,
		records:      make(map[string]memoryEntry),
		sets:         make(map[string]memorySet),
	}
}

// Save stores the record and its set membership under one lock.
func (m *MemoryStore) Save(_ context.Context, rec *Record, ttl time.Duration) error {
	if rec == nil || rec.JTI == "" {
		return errors.New("session record missing jti")
	}
	if ttl <= 0 {
		return errors.New("session ttl must be > 0")
	}
	data, err := Encode(rec)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.records[rec.JTI] = memoryEntry{data: data, expiresAt: now.Add(ttl)}

	set, ok := m.liveSet(rec.UserID, now)
	if !ok {
		set = memorySet{members: make(map[string]struct{})}
	}
	set.members[rec.JTI] = struct{}{}
	set.expiresAt = now.Add(ttl + m.setTTLBuffer)
	m.sets[rec.UserID] = set
	return nil
}

// Get returns the record for jti or [ErrNotFound].
func (m *MemoryStore) Get(_ context.Context, jti string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLocked(jti, m.now())
}

// Delete removes jti and its set membership. Absent entries are ignored.
func (m *MemoryStore) Delete(_ context.Context, userID, jti string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, jti)
	if set, ok := m.sets[userID]; ok {
		delete(set.members, jti)
	}
	return nil
}

// DeleteAllForUser removes every listed session and the set itself.
func (m *MemoryStore) DeleteAllForUser(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	set, ok := m.liveSet(userID, now)
	delete(m.sets, userID)
	if !ok {
		return 0, nil
	}

	deleted := 0
	for jti := range set.members {
		if entry, exists := m.records[jti]; exists {
			if now.Before(entry.expiresAt) {
				deleted++
			}
			delete(m.records, jti)
		}
	}
	return deleted, nil
}

// Members lists the JTIs in the user's set.
func (m *MemoryStore) Members(_ context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.liveSet(userID, m.now())
	if !ok {
		return []string{}, nil
	}
	out := make([]string, 0, len(set.members))
	for jti := range set.members {
		out = append(out, jti)
	}
	return out, nil
}

// GetMany returns the records that still exist and decode, in input order.
func (m *MemoryStore) GetMany(_ context.Context, jtis []string) ([]*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	out := make([]*Record, 0, len(jtis))
	for _, jti := range jtis {
		rec, err := m.getLocked(jti, now)
		if err != nil {
			if errors.Is(err, ErrNotFound) || errors.Is(err, ErrCorruptRecord) {
				continue
			}
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) (time.Duration, error) {
	return 0, nil
}

// Len reports the number of unexpired records.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := 0
	for _, entry := range m.records {
		if now.Before(entry.expiresAt) {
			n++
		}
	}
	return n
}

func (m *MemoryStore) getLocked(jti string, now time.Time) (*Record, error) {
	entry, ok := m.records[jti]
	if !ok {
		return nil, ErrNotFound
	}
	if !now.Before(entry.expiresAt) {
		delete(m.records, jti)
		return nil, ErrNotFound
	}
	rec, err := Decode(entry.data)
	if err != nil {
		return nil, err
	}
	rec.JTI = jti
	return rec, nil
}

func (m *MemoryStore) liveSet(userID string, now time.Time) (memorySet, bool) {
	set, ok := m.sets[userID]
	if !ok {
		return memorySet{}, false
	}
	if !now.Before(set.expiresAt) {
		delete(m.sets, userID)
		return memorySet{}, false
	}
	return set, true
}

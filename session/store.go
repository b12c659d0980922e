package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrRedisUnavailable wraps every transport or server failure returned by Redis.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrNotFound is returned when no record exists for a JTI.
var ErrNotFound = errors.New("session not found")

// DefaultSetTTLBuffer is added to the access lifetime when refreshing the TTL
// of a user's session set, so the set always outlives its members.
const DefaultSetTTLBuffer = time.Minute

const deleteSessionScript = `
local existed = redis.call("DEL", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
return existed
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// ARGV[1] is the namespaced "session:" key prefix.
const deleteUserSessionsScript = `
local jtis = redis.call("SMEMBERS", KEYS[1])
local deleted = 0
for _, jti in ipairs(jtis) do
  deleted = deleted + redis.call("DEL", ARGV[1] .. jti)
end
redis.call("DEL", KEYS[1])
return deleted
`

var deleteUserSessionsLua = redis.NewScript(deleteUserSessionsScript)

// Store is the Redis-backed session store.
type Store struct {
	redis        redis.UniversalClient
	prefix       string
	setTTLBuffer time.Duration
	now          func() time.Time
	logger       *zap.Logger
}

// StoreOption configures a [Store].
type StoreOption func(*Store)

// WithClock sets the clock used for expiry checks on read.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger used for records skipped by [Store.GetMany].
func WithLogger(logger *zap.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore creates a session [Store] backed by the given Redis client.
// prefix namespaces every key; an empty prefix yields the bare
// "session:{jti}" and "sessions-of-user:{user_id}" layout. A non-positive
// setTTLBuffer falls back to [DefaultSetTTLBuffer].
func NewStore(redis redis.UniversalClient, prefix string, setTTLBuffer time.Duration, opts ...StoreOption) *Store {
	if setTTLBuffer <= 0 {
		setTTLBuffer = DefaultSetTTLBuffer
	}
	s := &Store{
		redis:        redis,
		prefix:       prefix,
		setTTLBuffer: setTTLBuffer,
		now:          time.Now,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(jti string) string {
	return s.namespaced("session:" + jti)
}

func (s *Store) userKey(userID string) string {
	return s.namespaced("sessions-of-user:" + userID)
}

func (s *Store) namespaced(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + ":" + key
}

// Save writes the record, adds its JTI to the owner's set and refreshes the
// set TTL in one MULTI/EXEC batch, so readers never see a set member without
// its record.
//
//	Performance: 1 round trip (SET + SADD + EXPIRE inside MULTI).
func (s *Store) Save(ctx context.Context, rec *Record, ttl time.Duration) error {
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

	sessionKey := s.key(rec.JTI)
	userKey := s.userKey(rec.UserID)

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey, data, ttl)
		pipe.SAdd(ctx, userKey, rec.JTI)
		pipe.Expire(ctx, userKey, ttl+s.setTTLBuffer)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Get loads the record for jti. Absence yields [ErrNotFound].
//
//	Performance: 1 Redis GET.
func (s *Store) Get(ctx context.Context, jti string) (*Record, error) {
	data, err := s.redis.Get(ctx, s.key(jti)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	rec, err := Decode(data)
	if err != nil {
		return nil, err
	}
	rec.JTI = jti
	if rec.Expired(s.now()) {
		return nil, ErrNotFound
	}
	return rec, nil
}

// Delete removes the record for jti and its membership in userID's set.
// Deleting an absent session is a no-op.
//
//	Performance: 1 Lua EVALSHA (DEL + SREM).
func (s *Store) Delete(ctx context.Context, userID, jti string) error {
	_, err := deleteSessionLua.Run(ctx, s.redis, []string{s.key(jti), s.userKey(userID)}, jti).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// DeleteAllForUser removes every session listed in the user's set together
// with the set itself and returns how many records were deleted.
//
//	Performance: 1 Lua EVALSHA (SMEMBERS + DEL per member + DEL set).
func (s *Store) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	n, err := deleteUserSessionsLua.Run(ctx, s.redis, []string{s.userKey(userID)}, s.key("")).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(n), nil
}

// Members returns the JTIs currently listed in the user's set. Members whose
// record already expired are still returned; [Store.GetMany] drops them.
func (s *Store) Members(ctx context.Context, userID string) ([]string, error) {
	jtis, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return jtis, nil
}

// GetMany fetches records for jtis in one pipeline. Missing, expired and
// undecodable records are skipped without error; the result keeps input
// order.
func (s *Store) GetMany(ctx context.Context, jtis []string) ([]*Record, error) {
	if len(jtis) == 0 {
		return []*Record{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(jtis))
	for i, jti := range jtis {
		cmds[i] = pipe.Get(ctx, s.key(jti))
	}

	_, err := pipe.Exec(ctx)
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	records := make([]*Record, 0, len(jtis))
	now := s.now()
	for i, cmd := range cmds {
		data, cmdErr := cmd.Bytes()
		if cmdErr != nil {
			if errors.Is(cmdErr, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, cmdErr)
		}

		rec, decErr := Decode(data)
		if decErr != nil {
			s.logger.Warn("skipping undecodable session record",
				zap.String("jti", jtis[i]),
				zap.Error(decErr),
			)
			continue
		}
		rec.JTI = jtis[i]
		if rec.Expired(now) {
			continue
		}
		records = append(records, rec)
	}

	return records, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

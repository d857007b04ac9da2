// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeBot Contributors

package session

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/codebot/codebot/internal/access"
)

// DefaultRedisPrefix namespaces session keys.
const DefaultRedisPrefix = "session:"

// redisGrace keeps a key alive a little past the idle timeout so Touch can
// report expiry before Redis evicts it.
const redisGrace = time.Minute

// Timestamps are stored as unix microseconds, which Lua numbers hold exactly.
var touchScript = redis.NewScript(`
local last = redis.call('HGET', KEYS[1], 'last_activity')
if not last then
  return {'missing'}
end
local now = tonumber(ARGV[1])
if now - tonumber(last) > tonumber(ARGV[2]) then
  redis.call('DEL', KEYS[1])
  return {'expired'}
end
if now > tonumber(last) then
  redis.call('HSET', KEYS[1], 'last_activity', ARGV[1])
end
redis.call('PEXPIRE', KEYS[1], ARGV[3])
local out = redis.call('HGETALL', KEYS[1])
table.insert(out, 1, 'ok')
return out
`)

var bindCSRFScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return false
end
redis.call('HSETNX', KEYS[1], 'csrf_token', ARGV[1])
return redis.call('HGET', KEYS[1], 'csrf_token')
`)

// RedisStore keeps sessions in Redis hashes keyed by token hash. Idle
// sessions are evicted by key expiry.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	idle   time.Duration
}

// NewRedisStore creates a RedisStore. An empty prefix uses DefaultRedisPrefix
// and a non-positive idle uses IdleTimeout for the initial key expiry.
func NewRedisStore(client redis.UniversalClient, prefix string, idle time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	if idle <= 0 {
		idle = IdleTimeout
	}
	return &RedisStore{client: client, prefix: prefix, idle: idle}
}

func (r *RedisStore) key(tokenHash string) string {
	return r.prefix + tokenHash
}

// Create implements Store.
func (r *RedisStore) Create(ctx context.Context, s *Session) error {
	fields := map[string]any{
		"id":            s.ID.String(),
		"user_id":       s.UserID,
		"username":      s.Username,
		"role":          string(s.Role),
		"created_at":    strconv.FormatInt(s.CreatedAt.UnixMicro(), 10),
		"last_activity": strconv.FormatInt(s.LastActivity.UnixMicro(), 10),
	}
	if s.CSRFToken != "" {
		fields["csrf_token"] = s.CSRFToken
	}

	key := r.key(s.TokenHash)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fields)
		pipe.PExpire(ctx, key, r.idle+redisGrace)
		return nil
	})
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "hset session").
			With("user_id", s.UserID).
			Wrap(err)
	}
	return nil
}

// Touch implements Store with a Lua script so the check and refresh are atomic.
func (r *RedisStore) Touch(ctx context.Context, tokenHash string, now time.Time, idle time.Duration) (*Session, error) {
	ttl := idle + redisGrace
	reply, err := touchScript.Run(ctx, r.client, []string{r.key(tokenHash)},
		now.UnixMicro(), idle.Microseconds(), ttl.Milliseconds()).StringSlice()
	if err != nil {
		return nil, oops.Code("SESSION_TOUCH_FAILED").
			With("operation", "touch session script").
			Wrap(err)
	}
	if len(reply) == 0 {
		return nil, oops.Code("SESSION_TOUCH_FAILED").Errorf("empty script reply")
	}

	switch reply[0] {
	case "missing":
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(ErrNotFound)
	case "expired":
		return nil, oops.Code("SESSION_EXPIRED").Wrap(ErrExpired)
	}

	fields := make(map[string]string, (len(reply)-1)/2)
	for i := 1; i+1 < len(reply); i += 2 {
		fields[reply[i]] = reply[i+1]
	}
	s, err := sessionFromHash(tokenHash, fields)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Delete implements Store.
func (r *RedisStore) Delete(ctx context.Context, tokenHash string) error {
	if err := r.client.Del(ctx, r.key(tokenHash)).Err(); err != nil {
		return oops.Code("SESSION_DELETE_FAILED").
			With("operation", "del session").
			Wrap(err)
	}
	return nil
}

// BindCSRFToken implements Store.
func (r *RedisStore) BindCSRFToken(ctx context.Context, tokenHash, candidate string) (string, error) {
	token, err := bindCSRFScript.Run(ctx, r.client, []string{r.key(tokenHash)}, candidate).Text()
	if errors.Is(err, redis.Nil) {
		return "", oops.Code("SESSION_NOT_FOUND").Wrap(ErrNotFound)
	}
	if err != nil {
		return "", oops.Code("SESSION_BIND_CSRF_FAILED").
			With("operation", "bind csrf script").
			Wrap(err)
	}
	return token, nil
}

// DeleteIdle implements Store. Redis expires idle keys itself, so there is
// nothing to sweep.
func (r *RedisStore) DeleteIdle(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func sessionFromHash(tokenHash string, f map[string]string) (*Session, error) {
	id, err := ulid.Parse(f["id"])
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_ID").With("id", f["id"]).Wrap(err)
	}
	created, err := strconv.ParseInt(f["created_at"], 10, 64)
	if err != nil {
		return nil, oops.Code("SESSION_CORRUPT").With("field", "created_at").Wrap(err)
	}
	last, err := strconv.ParseInt(f["last_activity"], 10, 64)
	if err != nil {
		return nil, oops.Code("SESSION_CORRUPT").With("field", "last_activity").Wrap(err)
	}

	return &Session{
		ID:           id,
		TokenHash:    tokenHash,
		UserID:       f["user_id"],
		Username:     f["username"],
		Role:         access.Role(f["role"]),
		CSRFToken:    f["csrf_token"],
		CreatedAt:    time.UnixMicro(created).UTC(),
		LastActivity: time.UnixMicro(last).UTC(),
	}, nil
}

var _ Store = (*RedisStore)(nil)

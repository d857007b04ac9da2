// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeBot Contributors

package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

// DefaultRedisPrefix namespaces bucket keys.
const DefaultRedisPrefix = "ratelimit:"

// Times are unix milliseconds. Reply is {limited, retry_after_ms}.
var hitScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local period = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local start = redis.call('HGET', KEYS[1], 'start')
if (not start) or now - tonumber(start) >= period then
  redis.call('HSET', KEYS[1], 'start', ARGV[1], 'count', 1)
  redis.call('PEXPIRE', KEYS[1], period)
  return {0, period}
end
local remaining = period - (now - tonumber(start))
local count = tonumber(redis.call('HGET', KEYS[1], 'count'))
if count >= limit then
  return {1, remaining}
end
redis.call('HINCRBY', KEYS[1], 'count', 1)
return {0, remaining}
`)

// RedisStore keeps buckets in Redis hashes that expire with their window.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a RedisStore. An empty prefix uses DefaultRedisPrefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// IsLimited implements BucketStore with a Lua script.
func (r *RedisStore) IsLimited(ctx context.Context, identifier string, now time.Time, limit int, period time.Duration) (Result, error) {
	reply, err := hitScript.Run(ctx, r.client, []string{r.prefix + identifier},
		now.UnixMilli(), period.Milliseconds(), limit).Int64Slice()
	if err != nil {
		return Result{}, oops.In("ratelimit").Code("RATELIMIT_STORE_FAILED").
			With("store", "redis").
			Wrap(err)
	}
	if len(reply) != 2 {
		return Result{}, oops.In("ratelimit").Code("RATELIMIT_STORE_FAILED").
			With("store", "redis").
			Errorf("unexpected script reply length %d", len(reply))
	}
	return Result{
		Limited:    reply[0] == 1,
		RetryAfter: time.Duration(reply[1]) * time.Millisecond,
	}, nil
}

var _ BucketStore = (*RedisStore)(nil)

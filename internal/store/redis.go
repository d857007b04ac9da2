// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeBot Contributors

package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// RedisConfig controls how the Redis client is opened.
type RedisConfig struct {
	URL            string
	Attempts       uint64
	InitialBackoff time.Duration
	Logger         *slog.Logger
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// ConnectRedis opens a client for url and pings it with the same backoff as
// Connect.
func ConnectRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, oops.Code("REDIS_CONFIG_INVALID").Wrap(err)
	}
	client := redis.NewClient(opts)

	ping := pingerFunc(func(ctx context.Context) error { return client.Ping(ctx).Err() })
	backoff := connectBackoff(ConnectConfig{Attempts: cfg.Attempts, InitialBackoff: cfg.InitialBackoff})
	if err := retry.Do(ctx, backoff, pingFunc(ping, cfg.Logger)); err != nil {
		_ = client.Close()
		return nil, oops.Code("REDIS_CONNECT_FAILED").
			With("addr", opts.Addr).
			Wrap(err)
	}
	return client, nil
}

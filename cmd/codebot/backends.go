// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeBot Contributors

package main

import (
	"context"
	"log/slog"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/codebot/codebot/internal/audit"
	"github.com/codebot/codebot/internal/auth/postgres"
	"github.com/codebot/codebot/internal/config"
	"github.com/codebot/codebot/internal/ratelimit"
	"github.com/codebot/codebot/internal/session"
	"github.com/codebot/codebot/internal/store"
)

// openBackends connects to PostgreSQL, and to Redis when a store needs it,
// and builds the stores named by cfg.
func openBackends(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, logger *slog.Logger) (*Backends, error) {
	var closers []func()
	closeAll := func() {
		for _, c := range slices.Backward(closers) {
			c()
		}
	}

	pool, err := store.Connect(ctx, store.ConnectConfig{
		URL:            cfg.Database.URL,
		Attempts:       cfg.Database.ConnectRetries,
		InitialBackoff: cfg.Database.ConnectBackoff.Std(),
		Logger:         logger,
	})
	if err != nil {
		return nil, oops.With("operation", "connect to database").Wrap(err)
	}
	closers = append(closers, pool.Close)
	logger.Info("connected to database")

	var rdb *redis.Client
	if cfg.NeedsRedis() {
		rdb, err = store.ConnectRedis(ctx, store.RedisConfig{
			URL:            cfg.Redis.URL,
			Attempts:       cfg.Database.ConnectRetries,
			InitialBackoff: cfg.Database.ConnectBackoff.Std(),
			Logger:         logger,
		})
		if err != nil {
			closeAll()
			return nil, oops.With("operation", "connect to redis").Wrap(err)
		}
		closers = append(closers, func() {
			if err := rdb.Close(); err != nil {
				logger.Debug("error closing redis client", "error", err)
			}
		})
		logger.Info("connected to redis")
	}

	b := &Backends{Users: postgres.NewUserRepository(pool)}

	switch cfg.Session.Store {
	case config.StoreMemory:
		b.Sessions = session.NewMemoryStore()
	case config.StoreRedis:
		b.Sessions = session.NewRedisStore(rdb, cfg.Redis.Prefix+"session:", cfg.Session.IdleTimeout.Std())
	default:
		b.Sessions = postgres.NewSessionRepository(pool)
	}

	switch cfg.RateLimit.Store {
	case config.StorePostgres:
		b.Buckets = ratelimit.NewPostgresStore(pool)
	case config.StoreRedis:
		b.Buckets = ratelimit.NewRedisStore(rdb, cfg.Redis.Prefix+"ratelimit:")
	default:
		mem := ratelimit.NewMemoryStore(ratelimit.MemoryConfig{
			CleanupInterval: cfg.RateLimit.CleanupInterval.Std(),
			BucketMaxAge:    max(ratelimit.DefaultBucketMaxAge, cfg.RateLimit.Period.Std()),
			Registerer:      reg,
		})
		closers = append(closers, mem.Close)
		b.Buckets = mem
	}

	b.Close = closeAll
	return b, nil
}

// newAuditPublisher publishes to NATS when a URL is configured and to the
// log otherwise. The returned func releases the connection.
func newAuditPublisher(cfg config.AuditConfig, logger *slog.Logger) (audit.Publisher, func(), error) {
	if cfg.NATSURL == "" {
		return audit.NewLogPublisher(logger), func() {}, nil
	}

	conn, err := audit.ConnectNATS(cfg.NATSURL, "codebot")
	if err != nil {
		return nil, nil, err
	}
	logger.Info("publishing auth events to nats", "subject_prefix", cfg.SubjectPrefix)

	return audit.NewNATSPublisher(conn, cfg.SubjectPrefix), func() {
		if err := conn.Drain(); err != nil {
			logger.Debug("error draining nats connection", "error", err)
		}
	}, nil
}

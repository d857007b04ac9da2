// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeBot Contributors

// Package store owns the Postgres connection pool and schema migrations.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Querier is the subset of *pgxpool.Pool that repositories use. It is
// satisfied by pgxmock pools in tests.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ Querier = (*pgxpool.Pool)(nil)

// ConnectConfig controls how the pool is opened.
type ConnectConfig struct {
	URL            string
	MaxConns       int32
	Attempts       uint64
	InitialBackoff time.Duration
	Logger         *slog.Logger
}

// Connect opens a pool and pings it with exponential backoff until it
// answers or the attempts run out.
func Connect(ctx context.Context, cfg ConnectConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").Wrap(err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}

	if err := retry.Do(ctx, connectBackoff(cfg), pingFunc(pool, cfg.Logger)); err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("attempts", cfg.Attempts).
			Wrap(err)
	}
	return pool, nil
}

func connectBackoff(cfg ConnectConfig) retry.Backoff {
	attempts := cfg.Attempts
	if attempts == 0 {
		attempts = 5
	}
	initial := cfg.InitialBackoff
	if initial <= 0 {
		initial = 250 * time.Millisecond
	}
	return retry.WithCappedDuration(5*time.Second,
		retry.WithMaxRetries(attempts-1, retry.NewExponential(initial)))
}

type pinger interface {
	Ping(ctx context.Context) error
}

func pingFunc(p pinger, logger *slog.Logger) retry.RetryFunc {
	if logger == nil {
		logger = slog.Default()
	}
	attempt := 0
	return func(ctx context.Context) error {
		attempt++
		if err := p.Ping(ctx); err != nil {
			logger.WarnContext(ctx, "database not ready", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	}
}

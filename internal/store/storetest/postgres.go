// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeBot Contributors

//go:build integration

// Package storetest starts a migrated Postgres container for integration tests.
package storetest

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/codebot/codebot/internal/store"
)

// Postgres is a running, migrated database.
type Postgres struct {
	URL       string
	Pool      *pgxpool.Pool
	container *postgres.PostgresContainer
}

// StartPostgres runs postgres:16-alpine and applies every migration.
func StartPostgres(ctx context.Context) (*Postgres, error) {
	pg, err := StartEmptyPostgres(ctx)
	if err != nil {
		return nil, err
	}

	migrator, err := store.NewMigrator(pg.URL)
	if err != nil {
		pg.Stop(ctx)
		return nil, err
	}
	upErr := migrator.Up()
	_ = migrator.Close()
	if upErr != nil {
		pg.Stop(ctx)
		return nil, upErr
	}
	return pg, nil
}

// StartEmptyPostgres runs postgres:16-alpine without applying migrations.
func StartEmptyPostgres(ctx context.Context) (*Postgres, error) {
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("codebot_test"),
		postgres.WithUsername("codebot"),
		postgres.WithPassword("codebot"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, err
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}

	pool, err := store.Connect(ctx, store.ConnectConfig{URL: connStr})
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}

	return &Postgres{URL: connStr, Pool: pool, container: container}, nil
}

// TableExists reports whether name is a table in the public schema.
func (p *Postgres) TableExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := p.Pool.QueryRow(ctx, `SELECT to_regclass('public.' || $1) IS NOT NULL`, name).Scan(&exists)
	return exists, err
}

// Truncate empties every auth table.
func (p *Postgres) Truncate(ctx context.Context) error {
	_, err := p.Pool.Exec(ctx, `TRUNCATE sessions, users, rate_limit_buckets`)
	return err
}

// Stop closes the pool and removes the container.
func (p *Postgres) Stop(ctx context.Context) {
	p.Pool.Close()
	_ = p.container.Terminate(ctx)
}

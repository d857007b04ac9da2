// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeBot Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/codebot/codebot/internal/audit"
	"github.com/codebot/codebot/internal/auth"
	"github.com/codebot/codebot/internal/config"
	"github.com/codebot/codebot/internal/observability"
	"github.com/codebot/codebot/internal/ratelimit"
	"github.com/codebot/codebot/internal/session"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// BackendsFactory opens the user, session and bucket stores.
	// Default: openBackends
	BackendsFactory func(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, logger *slog.Logger) (*Backends, error)

	// MigratorFactory creates a migrator for auto-migration on startup.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (AutoMigrator, error)

	// AuditPublisherFactory creates the auth event publisher.
	// Default: NATS when audit.nats_url is set, otherwise the log.
	AuditPublisherFactory func(cfg config.AuditConfig, logger *slog.Logger) (audit.Publisher, func(), error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// HTTPServerFactory creates the API server.
	// Default: web.NewServer
	HTTPServerFactory func(addr string, handler http.Handler) Server
}

// Backends are the storage implementations selected by configuration.
type Backends struct {
	Users    auth.UserRepository
	Sessions session.Store
	Buckets  ratelimit.BucketStore

	// Close releases every connection the backends hold.
	Close func()
}

// AutoMigrator wraps the migrator methods used on startup.
type AutoMigrator interface {
	Up() error
	Close() error
}

// Server wraps the methods used from web.Server.
type Server interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Server
	Metrics() *observability.Metrics
	Registry() prometheus.Registerer
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeBot Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/codebot/codebot/internal/access"
	"github.com/codebot/codebot/internal/auth"
	"github.com/codebot/codebot/internal/config"
	"github.com/codebot/codebot/internal/csrf"
	"github.com/codebot/codebot/internal/logging"
	"github.com/codebot/codebot/internal/observability"
	"github.com/codebot/codebot/internal/ratelimit"
	"github.com/codebot/codebot/internal/session"
	"github.com/codebot/codebot/internal/store"
	"github.com/codebot/codebot/internal/web"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return newServeCmd(nil)
}

func newServeCmd(deps *ServeDeps) *cobra.Command {
	var autoMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP auth server",
		Long: `Start the HTTP server exposing /api/auth. Pending database migrations
are applied first unless --auto-migrate=false is given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, autoMigrate, deps)
		},
	}

	config.BindFlags(cmd.Flags())
	cmd.Flags().BoolVar(&autoMigrate, "auto-migrate", true, "apply pending migrations before serving")

	return cmd
}

// runServeWithDeps runs the server with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, autoMigrate bool, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}

	if deps.BackendsFactory == nil {
		deps.BackendsFactory = openBackends
	}
	if deps.MigratorFactory == nil {
		deps.MigratorFactory = func(url string) (AutoMigrator, error) {
			return store.NewMigrator(url)
		}
	}
	if deps.AuditPublisherFactory == nil {
		deps.AuditPublisherFactory = newAuditPublisher
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if deps.HTTPServerFactory == nil {
		deps.HTTPServerFactory = func(addr string, handler http.Handler) Server {
			return web.NewServer(addr, handler)
		}
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return oops.With("operation", "load config").Wrap(err)
	}

	logger, err := logging.SetDefault(logging.Options{
		Service: "codebot",
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
	})
	if err != nil {
		return oops.With("operation", "set up logging").Wrap(err)
	}

	if cfg.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database.url (or DATABASE_URL) is required")
	}

	logger.Info("starting codebot",
		"addr", cfg.Server.Addr,
		"session_store", cfg.Session.Store,
		"ratelimit_store", cfg.RateLimit.Store,
	)

	if autoMigrate {
		if err := runAutoMigrate(deps.MigratorFactory, cfg.Database.URL, logger); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var ready atomic.Bool

	var (
		obsServer ObservabilityServer
		metrics   *observability.Metrics
		registry  prometheus.Registerer
	)
	if cfg.Server.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Server.MetricsAddr, ready.Load)
		metrics = obsServer.Metrics()
		registry = obsServer.Registry()
	} else {
		reg := prometheus.NewRegistry()
		metrics = observability.NewMetrics(reg)
		registry = reg
	}

	backends, err := deps.BackendsFactory(ctx, cfg, registry, logger)
	if err != nil {
		return err
	}
	defer backends.Close()

	events, closeEvents, err := deps.AuditPublisherFactory(cfg.Audit, logger)
	if err != nil {
		return oops.With("operation", "create audit publisher").Wrap(err)
	}
	defer closeEvents()

	idle := cfg.Session.IdleTimeout.Std()
	sessions := session.NewManager(backends.Sessions,
		session.WithIdleTimeout(idle),
		session.WithLogger(logger),
		session.WithRecorder(metrics),
	)

	svc, err := auth.NewAuthService(backends.Users, sessions, auth.NewArgon2idHasher(), access.NewResolver(),
		auth.WithLogger(logger),
		auth.WithAuditPublisher(events),
		auth.WithMetrics(metrics),
	)
	if err != nil {
		return oops.With("operation", "create auth service").Wrap(err)
	}

	limiter, err := ratelimit.NewLimiter(backends.Buckets,
		ratelimit.WithBudget(cfg.RateLimit.Limit, cfg.RateLimit.Period.Std()),
		ratelimit.WithLogger(logger),
		ratelimit.WithRecorder(metrics),
	)
	if err != nil {
		return oops.With("operation", "create rate limiter").Wrap(err)
	}

	handler := web.NewHandler(svc, csrf.NewIssuer(sessions), web.Config{
		Cookie: session.CookieOptions{
			Name:     cfg.Session.CookieName,
			Secure:   cfg.Session.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		},
		CookieMaxAge:   idle,
		CSRFRequired:   cfg.Session.CSRFRequired,
		TrustedProxies: cfg.Server.TrustedProxies,
	},
		web.WithLogger(logger),
		web.WithRateLimiter(limiter),
		web.WithAuditPublisher(events),
		web.WithMetrics(metrics),
	)

	router, err := web.NewRouter(handler)
	if err != nil {
		return err
	}

	go sessions.RunJanitor(ctx, cfg.Session.PruneInterval.Std())
	go limiter.RunJanitor(ctx, cfg.RateLimit.CleanupInterval.Std())

	httpServer := deps.HTTPServerFactory(cfg.Server.Addr, router)
	httpErrChan, err := httpServer.Start()
	if err != nil {
		return oops.With("operation", "start http server").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, httpErrChan, "http")

	shutdownTimeout := cfg.Server.ShutdownTimeout.Std()

	if obsServer != nil {
		obsErrChan, err := obsServer.Start()
		if err != nil {
			stopServer(httpServer, "http", shutdownTimeout)
			return oops.With("operation", "start observability server").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		slog.Info("observability server started", "addr", obsServer.Addr())
	}

	ready.Store(true)
	cmd.Println("codebot listening on " + httpServer.Addr())
	slog.Info("codebot ready", "addr", httpServer.Addr())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	ready.Store(false)
	slog.Info("shutting down...")

	stopServer(httpServer, "http", shutdownTimeout)
	if obsServer != nil {
		stopServer(obsServer, "observability", shutdownTimeout)
	}

	slog.Info("shutdown complete")
	return nil
}

// runAutoMigrate applies pending migrations and always closes the migrator.
func runAutoMigrate(factory func(string) (AutoMigrator, error), databaseURL string, logger *slog.Logger) error {
	migrator, err := factory(databaseURL)
	if err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Warn("error closing migrator", "error", closeErr)
		}
	}()

	logger.Info("applying database migrations")
	if err := migrator.Up(); err != nil {
		return oops.Code("AUTO_MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}
	return nil
}

func stopServer(s Server, name string, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		slog.Warn("error stopping server", "server", name, "error", err)
	}
}

// monitorServerErrors cancels the context when a server reports an error.
// A closed channel means the server stopped cleanly.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}

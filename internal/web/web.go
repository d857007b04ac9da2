// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeBot Contributors

// Package web exposes the auth core over HTTP with gin.
//
// Routes:
//
//	POST /api/auth                         action-dispatched register, login, logout
//	GET  /api/auth/status                  current session, user and CSRF token
//	GET  /api/auth/permissions/:capability capability check for the session
package web

import (
	"context"
	"log/slog"
	"time"

	"github.com/codebot/codebot/internal/audit"
	"github.com/codebot/codebot/internal/auth"
	"github.com/codebot/codebot/internal/ratelimit"
	"github.com/codebot/codebot/internal/session"
)

// AuthService is the subset of auth.Service the handlers use.
type AuthService interface {
	Register(ctx context.Context, in auth.RegisterInput) (*auth.PublicUser, error)
	Login(ctx context.Context, login, password string) (*auth.LoginResult, error)
	Logout(ctx context.Context, token string) error
	IsAuthenticated(ctx context.Context, token string) bool
	CurrentUser(ctx context.Context, token string) (*auth.PublicUser, bool, error)
	HasPermission(ctx context.Context, token, capability string) bool
}

// CSRFIssuer issues and checks per-session CSRF tokens.
type CSRFIssuer interface {
	Issue(ctx context.Context, sessionToken string) (string, error)
	Verify(ctx context.Context, sessionToken, candidate string) bool
}

// RateLimiter decides whether a client identifier is over budget.
type RateLimiter interface {
	Check(ctx context.Context, identifier string) ratelimit.Result
}

// MetricsRecorder records request outcomes.
type MetricsRecorder interface {
	RecordHTTPRequest(method, route string, status int, d time.Duration)
}

// Config holds HTTP-level settings.
type Config struct {
	Cookie session.CookieOptions
	// CookieMaxAge bounds how long browsers keep the session cookie.
	CookieMaxAge time.Duration
	// CSRFRequired makes logout from a live session present X-CSRF-Token.
	CSRFRequired bool
	// TrustedProxies lists proxies whose forwarding headers set the client IP.
	// Nil trusts none.
	TrustedProxies []string
}

// Handler serves the auth endpoints.
type Handler struct {
	auth    AuthService
	csrf    CSRFIssuer
	limiter RateLimiter
	events  audit.Publisher
	metrics MetricsRecorder
	logger  *slog.Logger
	cfg     Config
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the handler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithRateLimiter enables per-client rate limiting on the auth routes.
func WithRateLimiter(l RateLimiter) Option {
	return func(h *Handler) {
		h.limiter = l
	}
}

// WithAuditPublisher sets where rate-limit events are published.
func WithAuditPublisher(p audit.Publisher) Option {
	return func(h *Handler) {
		if p != nil {
			h.events = p
		}
	}
}

// WithMetrics sets the request recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(h *Handler) {
		if m != nil {
			h.metrics = m
		}
	}
}

// NewHandler creates a Handler.
func NewHandler(svc AuthService, csrf CSRFIssuer, cfg Config, opts ...Option) *Handler {
	if cfg.CookieMaxAge <= 0 {
		cfg.CookieMaxAge = session.IdleTimeout
	}
	h := &Handler{
		auth:    svc,
		csrf:    csrf,
		events:  audit.NopPublisher{},
		metrics: nopMetrics{},
		logger:  slog.Default(),
		cfg:     cfg,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type nopMetrics struct{}

func (nopMetrics) RecordHTTPRequest(string, string, int, time.Duration) {}

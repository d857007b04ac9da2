// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeBot Contributors

package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/codebot/codebot/internal/access"
	"github.com/codebot/codebot/pkg/errutil"
)

// DefaultPruneInterval is used by RunJanitor for a non-positive interval.
const DefaultPruneInterval = 10 * time.Minute

// Recorder counts session lifecycle events.
type Recorder interface {
	RecordSessionEvent(event string)
}

// Manager creates, validates and destroys sessions on top of a Store.
type Manager struct {
	store    Store
	idle     time.Duration
	now      func() time.Time
	logger   *slog.Logger
	recorder Recorder
}

// Option configures a Manager.
type Option func(*Manager)

// WithIdleTimeout overrides IdleTimeout. Non-positive values are ignored.
func WithIdleTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.idle = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets the manager logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithRecorder sets the lifecycle event recorder.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) {
		if r != nil {
			m.recorder = r
		}
	}
}

// NewManager creates a Manager backed by store.
func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		idle:     IdleTimeout,
		now:      time.Now,
		logger:   slog.Default(),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IdleTimeout returns the configured idle timeout.
func (m *Manager) IdleTimeout() time.Duration {
	return m.idle
}

// Create starts a session for the user and returns it with the plaintext
// token. Every call mints a fresh token.
func (m *Manager) Create(ctx context.Context, userID, username string, role access.Role) (*Session, string, error) {
	if userID == "" {
		return nil, "", oops.Code("SESSION_INVALID_USER").Errorf("user id cannot be empty")
	}

	token, hash, err := GenerateToken()
	if err != nil {
		return nil, "", err
	}

	now := m.now().UTC()
	s := &Session{
		ID:           ulid.Make(),
		TokenHash:    hash,
		UserID:       userID,
		Username:     username,
		Role:         role,
		CreatedAt:    now,
		LastActivity: now,
	}
	if err := m.store.Create(ctx, s); err != nil {
		return nil, "", oops.Code("SESSION_CREATE_FAILED").
			With("user_id", userID).
			Wrap(err)
	}

	m.recorder.RecordSessionEvent("created")
	return s, token, nil
}

// Validate checks token and refreshes its activity. It returns ErrNotFound
// for unknown or empty tokens and ErrExpired (after deleting the session) when
// the idle timeout has passed.
func (m *Manager) Validate(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, oops.Code("SESSION_TOKEN_EMPTY").Wrap(ErrNotFound)
	}

	s, err := m.store.Touch(ctx, HashToken(token), m.now().UTC(), m.idle)
	if err != nil {
		if errors.Is(err, ErrExpired) {
			m.recorder.RecordSessionEvent("expired")
		}
		return nil, err
	}
	return s, nil
}

// IsValid reports whether token names a live session, refreshing it.
func (m *Manager) IsValid(ctx context.Context, token string) bool {
	_, err := m.Validate(ctx, token)
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrExpired) {
		errutil.LogErrorContext(ctx, m.logger, "session validity check failed", err)
	}
	return err == nil
}

// Destroy deletes the session behind token. It is idempotent.
func (m *Manager) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := m.store.Delete(ctx, HashToken(token)); err != nil {
		return oops.Code("SESSION_DESTROY_FAILED").Wrap(err)
	}
	m.recorder.RecordSessionEvent("destroyed")
	return nil
}

// BindCSRFToken sets candidate as the session's CSRF token unless one exists
// and returns the token in effect.
func (m *Manager) BindCSRFToken(ctx context.Context, token, candidate string) (string, error) {
	if token == "" {
		return "", oops.Code("SESSION_TOKEN_EMPTY").Wrap(ErrNotFound)
	}
	return m.store.BindCSRFToken(ctx, HashToken(token), candidate)
}

// Prune deletes every session idle for longer than the timeout.
func (m *Manager) Prune(ctx context.Context) (int64, error) {
	n, err := m.store.DeleteIdle(ctx, m.now().UTC().Add(-m.idle))
	if err != nil {
		return 0, oops.Code("SESSION_PRUNE_FAILED").Wrap(err)
	}
	if n > 0 {
		m.recorder.RecordSessionEvent("pruned")
		m.logger.DebugContext(ctx, "pruned idle sessions", "count", n)
	}
	return n, nil
}

// RunJanitor prunes idle sessions every interval until ctx is done.
func (m *Manager) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultPruneInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Prune(ctx); err != nil && ctx.Err() == nil {
				errutil.LogErrorContext(ctx, m.logger, "session janitor failed", err)
			}
		}
	}
}

type nopRecorder struct{}

func (nopRecorder) RecordSessionEvent(string) {}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeBot Contributors

// Package session manages authenticated sessions with a sliding idle timeout.
//
// Clients hold an opaque random token; stores only ever see its SHA-256 hash.
// A session stays valid while no more than the idle timeout has passed since
// its last activity, and every successful validity check refreshes that
// activity. Check and refresh happen in one atomic store operation.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/codebot/codebot/internal/access"
)

// IdleTimeout is the default maximum time between two uses of a session.
const IdleTimeout = 24 * time.Hour

// Sentinel errors returned (wrapped) by stores and the Manager.
var (
	ErrNotFound = errors.New("session not found")
	ErrExpired  = errors.New("session expired")
)

// Session is a server-side login record.
type Session struct {
	ID           ulid.ULID
	TokenHash    string
	UserID       string
	Username     string
	Role         access.Role
	CSRFToken    string
	CreatedAt    time.Time
	LastActivity time.Time
}

// IdleExpired reports whether more than idle has passed since the last activity.
func (s *Session) IdleExpired(now time.Time, idle time.Duration) bool {
	return now.Sub(s.LastActivity) > idle
}

// Store persists sessions keyed by token hash.
type Store interface {
	// Create stores a new session.
	Create(ctx context.Context, s *Session) error

	// Touch atomically checks and refreshes the session. If the session has
	// been idle for more than idle at now, it is deleted and ErrExpired is
	// returned. Otherwise LastActivity is advanced to now and the refreshed
	// session is returned. Unknown hashes return ErrNotFound.
	Touch(ctx context.Context, tokenHash string, now time.Time, idle time.Duration) (*Session, error)

	// Delete removes the session. Deleting a missing session is not an error.
	Delete(ctx context.Context, tokenHash string) error

	// BindCSRFToken stores candidate as the session's CSRF token unless one
	// is already set, and returns the token in effect.
	BindCSRFToken(ctx context.Context, tokenHash, candidate string) (string, error)

	// DeleteIdle removes sessions whose last activity is before cutoff.
	DeleteIdle(ctx context.Context, cutoff time.Time) (int64, error)
}

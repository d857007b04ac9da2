// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeBot Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/codebot/codebot/internal/access"
	"github.com/codebot/codebot/internal/session"
	"github.com/codebot/codebot/internal/store"
)

const sessionColumns = `id, token_hash, user_id, username, role, csrf_token, created_at, last_activity`

// SessionRepository implements session.Store using PostgreSQL.
type SessionRepository struct {
	pool store.Querier
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool store.Querier) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Create stores a new session.
func (r *SessionRepository) Create(ctx context.Context, s *session.Session) error {
	var csrf *string
	if s.CSRFToken != "" {
		csrf = &s.CSRFToken
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		s.ID.String(),
		s.TokenHash,
		s.UserID,
		s.Username,
		string(s.Role),
		csrf,
		s.CreatedAt,
		s.LastActivity,
	)
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert session").
			With("user_id", s.UserID).
			Wrap(err)
	}
	return nil
}

// Touch refreshes a live session in a single UPDATE. When nothing qualifies,
// an idle row is removed so the caller can tell expiry from absence.
func (r *SessionRepository) Touch(ctx context.Context, tokenHash string, now time.Time, idle time.Duration) (*session.Session, error) {
	cutoff := now.Add(-idle)

	row := r.pool.QueryRow(ctx, `
		UPDATE sessions SET last_activity = GREATEST(last_activity, $2)
		WHERE token_hash = $1 AND last_activity >= $3
		RETURNING `+sessionColumns, tokenHash, now, cutoff)

	s, err := scanSession(row)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_TOUCH_FAILED").
			With("operation", "refresh session").
			Wrap(err)
	}

	tag, err := r.pool.Exec(ctx, `
		DELETE FROM sessions WHERE token_hash = $1 AND last_activity < $2
	`, tokenHash, cutoff)
	if err != nil {
		return nil, oops.Code("SESSION_TOUCH_FAILED").
			With("operation", "delete idle session").
			Wrap(err)
	}
	if tag.RowsAffected() > 0 {
		return nil, oops.Code("SESSION_EXPIRED").Wrap(session.ErrExpired)
	}
	return nil, oops.Code("SESSION_NOT_FOUND").Wrap(session.ErrNotFound)
}

// Delete removes a session. Missing sessions are not an error.
func (r *SessionRepository) Delete(ctx context.Context, tokenHash string) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM sessions WHERE token_hash = $1
	`, tokenHash)
	if err != nil {
		return oops.Code("SESSION_DELETE_FAILED").
			With("operation", "delete session").
			Wrap(err)
	}
	return nil
}

// BindCSRFToken sets the session's CSRF token if it has none and returns the
// token in effect.
func (r *SessionRepository) BindCSRFToken(ctx context.Context, tokenHash, candidate string) (string, error) {
	var token string
	err := r.pool.QueryRow(ctx, `
		UPDATE sessions SET csrf_token = COALESCE(csrf_token, $2)
		WHERE token_hash = $1
		RETURNING csrf_token
	`, tokenHash, candidate).Scan(&token)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", oops.Code("SESSION_NOT_FOUND").Wrap(session.ErrNotFound)
	}
	if err != nil {
		return "", oops.Code("SESSION_BIND_CSRF_FAILED").
			With("operation", "bind csrf token").
			Wrap(err)
	}
	return token, nil
}

// DeleteIdle removes sessions whose last activity is before cutoff and
// returns the count.
func (r *SessionRepository) DeleteIdle(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM sessions WHERE last_activity < $1
	`, cutoff)
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_IDLE_FAILED").
			With("operation", "delete idle sessions").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// scanSession scans a single row into a Session.
// Callers are responsible for handling pgx.ErrNoRows.
func scanSession(row pgx.Row) (*session.Session, error) {
	var (
		s     session.Session
		idStr string
		role  string
		csrf  *string
	)
	if err := row.Scan(&idStr, &s.TokenHash, &s.UserID, &s.Username, &role, &csrf, &s.CreatedAt, &s.LastActivity); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with operation context
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_ID").
			With("operation", "parse session id").
			With("id", idStr).
			Wrap(err)
	}
	s.ID = id
	s.Role = access.Role(role)
	if csrf != nil {
		s.CSRFToken = *csrf
	}
	return &s, nil
}

var _ session.Store = (*SessionRepository)(nil)

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeBot Contributors

// Package csrf issues and checks per-session anti-forgery tokens.
package csrf

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"

	"github.com/samber/oops"

	"github.com/codebot/codebot/internal/session"
)

// HeaderName is the request header that carries the token.
const HeaderName = "X-CSRF-Token"

// tokenBytes of randomness, hex-encoded to 64 characters.
const tokenBytes = 32

// SessionBinder is the part of session.Manager the Issuer needs.
type SessionBinder interface {
	Validate(ctx context.Context, token string) (*session.Session, error)
	BindCSRFToken(ctx context.Context, token, candidate string) (string, error)
}

// Issuer binds one CSRF token to each session.
type Issuer struct {
	sessions SessionBinder
}

// NewIssuer creates an Issuer.
func NewIssuer(sessions SessionBinder) *Issuer {
	return &Issuer{sessions: sessions}
}

// Issue returns the session's CSRF token, creating it on first use.
// Concurrent first calls agree on a single token.
func (i *Issuer) Issue(ctx context.Context, sessionToken string) (string, error) {
	s, err := i.sessions.Validate(ctx, sessionToken)
	if err != nil {
		return "", err
	}
	if s.CSRFToken != "" {
		return s.CSRFToken, nil
	}

	candidate, err := newToken()
	if err != nil {
		return "", err
	}
	token, err := i.sessions.BindCSRFToken(ctx, sessionToken, candidate)
	if err != nil {
		return "", oops.In("csrf").Code("CSRF_BIND_FAILED").Wrap(err)
	}
	return token, nil
}

// Verify reports whether candidate matches the session's token. It is false
// for invalid sessions and sessions that were never issued a token.
func (i *Issuer) Verify(ctx context.Context, sessionToken, candidate string) bool {
	if candidate == "" {
		return false
	}
	s, err := i.sessions.Validate(ctx, sessionToken)
	if err != nil || s.CSRFToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(s.CSRFToken), []byte(candidate)) == 1
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", oops.In("csrf").Code("CSRF_RANDOM_FAILED").Wrap(err)
	}
	return hex.EncodeToString(b), nil
}

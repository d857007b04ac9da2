// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeBot Contributors

package session

import (
	"context"
	"sync"
	"time"

	"github.com/samber/oops"
)

// MemoryStore keeps sessions in process memory. Sessions do not survive a
// restart and are not shared between processes.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

// Create implements Store.
func (m *MemoryStore) Create(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[s.TokenHash]; exists {
		return oops.Code("SESSION_DUPLICATE").Errorf("session token hash already exists")
	}
	stored := *s
	m.sessions[s.TokenHash] = &stored
	return nil
}

// Touch implements Store.
func (m *MemoryStore) Touch(_ context.Context, tokenHash string, now time.Time, idle time.Duration) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[tokenHash]
	if !ok {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(ErrNotFound)
	}
	if s.IdleExpired(now, idle) {
		delete(m.sessions, tokenHash)
		return nil, oops.Code("SESSION_EXPIRED").Wrap(ErrExpired)
	}
	if now.After(s.LastActivity) {
		s.LastActivity = now
	}
	out := *s
	return &out, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	delete(m.sessions, tokenHash)
	m.mu.Unlock()
	return nil
}

// BindCSRFToken implements Store.
func (m *MemoryStore) BindCSRFToken(_ context.Context, tokenHash, candidate string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[tokenHash]
	if !ok {
		return "", oops.Code("SESSION_NOT_FOUND").Wrap(ErrNotFound)
	}
	if s.CSRFToken == "" {
		s.CSRFToken = candidate
	}
	return s.CSRFToken, nil
}

// DeleteIdle implements Store.
func (m *MemoryStore) DeleteIdle(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for hash, s := range m.sessions {
		if s.LastActivity.Before(cutoff) {
			delete(m.sessions, hash)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored sessions.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

var _ Store = (*MemoryStore)(nil)

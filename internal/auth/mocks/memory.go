// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeBot Contributors

package mocks

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/codebot/codebot/internal/auth"
)

// MemoryUserRepository is a case-insensitive in-memory auth.UserRepository
// for tests that need real registration and login behavior.
type MemoryUserRepository struct {
	mu    sync.Mutex
	users map[ulid.ULID]*auth.User
}

// NewMemoryUserRepository creates an empty repository.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[ulid.ULID]*auth.User)}
}

func (m *MemoryUserRepository) Create(_ context.Context, u *auth.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if sameFold(existing.Username, u.Username) || sameFold(existing.Email, u.Email) {
			return auth.ErrConflict
		}
	}
	stored := *u
	m.users[u.ID] = &stored
	return nil
}

func (m *MemoryUserRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	out := *u
	return &out, nil
}

func (m *MemoryUserRepository) GetByLogin(_ context.Context, login string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if sameFold(u.Username, login) || sameFold(u.Email, login) {
			out := *u
			return &out, nil
		}
	}
	return nil, auth.ErrNotFound
}

// sameFold compares like the lower() indexes in Postgres.
func sameFold(a, b string) bool {
	return strings.ToLower(a) == strings.ToLower(b)
}

func (m *MemoryUserRepository) update(id ulid.ULID, fn func(*auth.User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	fn(u)
	return nil
}

func (m *MemoryUserRepository) UpdateLastLogin(_ context.Context, id ulid.ULID, at time.Time) error {
	return m.update(id, func(u *auth.User) { u.LastLogin = &at })
}

func (m *MemoryUserRepository) UpdatePassword(_ context.Context, id ulid.ULID, hash string) error {
	return m.update(id, func(u *auth.User) { u.PasswordHash = hash })
}

func (m *MemoryUserRepository) SetActive(_ context.Context, id ulid.ULID, active bool) error {
	return m.update(id, func(u *auth.User) { u.IsActive = active })
}

var _ auth.UserRepository = (*MemoryUserRepository)(nil)

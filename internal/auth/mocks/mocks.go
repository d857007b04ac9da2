// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeBot Contributors

// Package mocks provides testify mocks for the auth service dependencies.
package mocks

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/codebot/codebot/internal/access"
	"github.com/codebot/codebot/internal/auth"
	"github.com/codebot/codebot/internal/session"
)

type testingT interface {
	mock.TestingT
	Cleanup(func())
}

// MockUserRepository is a mock of auth.UserRepository.
type MockUserRepository struct {
	mock.Mock
}

// NewMockUserRepository creates a mock whose expectations are asserted on cleanup.
func NewMockUserRepository(t testingT) *MockUserRepository {
	m := &MockUserRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockUserRepository) Create(ctx context.Context, user *auth.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*auth.User)
	return u, args.Error(1)
}

func (m *MockUserRepository) GetByLogin(ctx context.Context, login string) (*auth.User, error) {
	args := m.Called(ctx, login)
	u, _ := args.Get(0).(*auth.User)
	return u, args.Error(1)
}

func (m *MockUserRepository) UpdateLastLogin(ctx context.Context, id ulid.ULID, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	return m.Called(ctx, id, passwordHash).Error(0)
}

func (m *MockUserRepository) SetActive(ctx context.Context, id ulid.ULID, active bool) error {
	return m.Called(ctx, id, active).Error(0)
}

// MockSessionManager is a mock of auth.SessionManager.
type MockSessionManager struct {
	mock.Mock
}

// NewMockSessionManager creates a mock whose expectations are asserted on cleanup.
func NewMockSessionManager(t testingT) *MockSessionManager {
	m := &MockSessionManager{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockSessionManager) Create(ctx context.Context, userID, username string, role access.Role) (*session.Session, string, error) {
	args := m.Called(ctx, userID, username, role)
	s, _ := args.Get(0).(*session.Session)
	return s, args.String(1), args.Error(2)
}

func (m *MockSessionManager) Validate(ctx context.Context, token string) (*session.Session, error) {
	args := m.Called(ctx, token)
	s, _ := args.Get(0).(*session.Session)
	return s, args.Error(1)
}

func (m *MockSessionManager) Destroy(ctx context.Context, token string) error {
	return m.Called(ctx, token).Error(0)
}

// MockPasswordHasher is a mock of auth.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

// NewMockPasswordHasher creates a mock whose expectations are asserted on cleanup.
func NewMockPasswordHasher(t testingT) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockPasswordHasher) Hash(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

func (m *MockPasswordHasher) Verify(password, digest string) bool {
	return m.Called(password, digest).Bool(0)
}

func (m *MockPasswordHasher) NeedsUpgrade(digest string) bool {
	return m.Called(digest).Bool(0)
}

// MockPermissionChecker is a mock of auth.PermissionChecker.
type MockPermissionChecker struct {
	mock.Mock
}

// NewMockPermissionChecker creates a mock whose expectations are asserted on cleanup.
func NewMockPermissionChecker(t testingT) *MockPermissionChecker {
	m := &MockPermissionChecker{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockPermissionChecker) Can(role, capability string) bool {
	return m.Called(role, capability).Bool(0)
}

var (
	_ auth.UserRepository    = (*MockUserRepository)(nil)
	_ auth.SessionManager    = (*MockSessionManager)(nil)
	_ auth.PasswordHasher    = (*MockPasswordHasher)(nil)
	_ auth.PermissionChecker = (*MockPermissionChecker)(nil)
)

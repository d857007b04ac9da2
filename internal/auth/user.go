// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeBot Contributors

package auth

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/codebot/codebot/internal/access"
)

// User is a registered account. Accounts are deactivated, never deleted.
type User struct {
	ID           ulid.ULID
	Username     string
	Email        string
	PasswordHash string
	FullName     string
	Role         access.Role
	IsActive     bool
	CreatedAt    time.Time
	LastLogin    *time.Time
}

// PublicUser is the view of a User that may leave the process.
type PublicUser struct {
	ID       string      `json:"id"`
	Username string      `json:"username"`
	Email    string      `json:"email"`
	FullName string      `json:"full_name"`
	Role     access.Role `json:"role"`
}

// Public returns the client-safe view of u.
func (u *User) Public() *PublicUser {
	return &PublicUser{
		ID:       u.ID.String(),
		Username: u.Username,
		Email:    u.Email,
		FullName: u.FullName,
		Role:     u.Role,
	}
}

// NewUser creates an active User with a fresh ID. Username and email are
// trimmed; passwordHash must already be a digest.
func NewUser(username, email, passwordHash, fullName string, role access.Role) (*User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("AUTH_INVALID_PASSWORD_HASH").Errorf("password hash cannot be empty")
	}
	if !role.Valid() {
		return nil, oops.Code("AUTH_INVALID_ROLE").With("role", string(role)).Errorf("unknown role")
	}

	return &User{
		ID:           ulid.Make(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		FullName:     strings.TrimSpace(fullName),
		Role:         role,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// UserRepository manages user persistence.
type UserRepository interface {
	// Create stores a new user. Returns ErrConflict if the username or email
	// is already taken (case-insensitive).
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByLogin retrieves a user whose username or email equals login
	// (case-insensitive). Returns ErrNotFound if none matches.
	GetByLogin(ctx context.Context, login string) (*User, error)

	// UpdateLastLogin records a successful login.
	UpdateLastLogin(ctx context.Context, id ulid.ULID, at time.Time) error

	// UpdatePassword replaces the stored password digest.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error

	// SetActive activates or deactivates a user.
	SetActive(ctx context.Context, id ulid.ULID, active bool) error
}

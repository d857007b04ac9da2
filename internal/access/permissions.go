// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeBot Contributors

// Package access resolves what a role may do.
//
// Roles map to capability patterns compiled with gobwas/glob. A role that is
// not in the table has no capabilities.
package access

import "strings"

// Role is an account's authorization level.
type Role string

// Known roles.
const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// Roles lists every known role from least to most privileged.
func Roles() []Role {
	return []Role{RoleUser, RoleModerator, RoleAdmin}
}

// ParseRole maps s to a known role. Matching ignores case and surrounding space.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RoleUser, RoleModerator, RoleAdmin:
		return r, true
	default:
		return "", false
	}
}

func (r Role) String() string {
	return string(r)
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleModerator, RoleAdmin:
		return true
	default:
		return false
	}
}

// Capability is a named permission tag.
type Capability string

// Capability tags.
const (
	CapRead        Capability = "read"
	CapCreate      Capability = "create"
	CapUpdate      Capability = "update"
	CapUpdateOwn   Capability = "update_own"
	CapDelete      Capability = "delete"
	CapDeleteOwn   Capability = "delete_own"
	CapModerate    Capability = "moderate"
	CapManageUsers Capability = "manage_users"
)

// AllCapabilities returns every named capability.
func AllCapabilities() []Capability {
	return []Capability{
		CapRead,
		CapCreate,
		CapUpdate,
		CapUpdateOwn,
		CapDelete,
		CapDeleteOwn,
		CapModerate,
		CapManageUsers,
	}
}

// Permission groups. Roles compose these rather than inheriting.

var memberPowers = []string{
	string(CapRead),
	string(CapCreate),
	string(CapUpdateOwn),
}

var moderatorPowers = []string{
	string(CapModerate),
	string(CapDeleteOwn),
}

var adminPowers = []string{
	"*",
}

// DefaultRoles returns the default role definitions.
func DefaultRoles() map[Role][]string {
	return map[Role][]string{
		RoleUser:      memberPowers,
		RoleModerator: compose(memberPowers, moderatorPowers),
		RoleAdmin:     adminPowers,
	}
}

// compose merges multiple permission slices into one.
func compose(groups ...[]string) []string {
	total := 0
	for _, g := range groups {
		total += len(g)
	}
	result := make([]string, 0, total)
	for _, g := range groups {
		result = append(result, g...)
	}
	return result
}

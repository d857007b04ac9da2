// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeBot Contributors

package access

import (
	"log/slog"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// Resolver answers capability questions from a static role table.
//
// Thread-safety: the table is immutable after construction and requires no
// synchronization.
type Resolver struct {
	roles map[Role][]compiledPermission
}

// compiledPermission holds a permission pattern and its compiled glob.
type compiledPermission struct {
	pattern string
	glob    glob.Glob
}

// NewResolver creates a resolver with the default roles.
//
// Panics if default roles contain invalid permission patterns (configuration bug).
func NewResolver() *Resolver {
	r, err := NewResolverWithRoles(DefaultRoles())
	if err != nil {
		panic("invalid permission pattern in DefaultRoles: " + err.Error())
	}
	return r
}

// NewResolverWithRoles creates a resolver with custom roles.
//
// Returns error if any permission pattern fails to compile (invalid glob syntax).
func NewResolverWithRoles(roles map[Role][]string) (*Resolver, error) {
	compiledRoles := make(map[Role][]compiledPermission, len(roles))
	for role, perms := range roles {
		compiled := make([]compiledPermission, 0, len(perms))
		for _, p := range perms {
			g, err := glob.Compile(p)
			if err != nil {
				return nil, oops.In("access").
					Code("INVALID_PERMISSION_PATTERN").
					With("role", role).
					With("pattern", p).
					Wrap(err)
			}
			compiled = append(compiled, compiledPermission{pattern: p, glob: g})
		}
		compiledRoles[role] = compiled
	}

	return &Resolver{roles: compiledRoles}, nil
}

// Can reports whether role holds capability. Unknown roles are denied. The
// admin wildcard grants every capability string, including the empty one.
func (r *Resolver) Can(role, capability string) bool {
	permissions, ok := r.roles[Role(role)]
	if !ok {
		slog.Debug("permission check for unknown role", "role", role, "capability", capability)
		return false
	}

	for _, perm := range permissions {
		if perm.glob.Match(capability) {
			return true
		}
	}
	return false
}

// Resolve returns the named capabilities held by role. Literal grants keep
// their table order; wildcard grants expand against AllCapabilities. Unknown
// roles resolve to an empty set.
func (r *Resolver) Resolve(role Role) []Capability {
	permissions, ok := r.roles[role]
	if !ok {
		return []Capability{}
	}

	result := make([]Capability, 0, len(permissions))
	seen := make(map[Capability]bool, len(permissions))
	add := func(c Capability) {
		if !seen[c] {
			seen[c] = true
			result = append(result, c)
		}
	}

	for _, perm := range permissions {
		if isLiteral(perm.pattern) {
			add(Capability(perm.pattern))
			continue
		}
		for _, c := range AllCapabilities() {
			if perm.glob.Match(string(c)) {
				add(c)
			}
		}
	}
	return result
}

// HasRole reports whether role appears in the table.
func (r *Resolver) HasRole(role Role) bool {
	_, ok := r.roles[role]
	return ok
}

func isLiteral(pattern string) bool {
	return glob.QuoteMeta(pattern) == pattern
}

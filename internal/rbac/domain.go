// Package rbac authorizes authenticated users by role.
package rbac

import (
	"slices"
	"strings"

	"github.com/tourbook/tourbook/internal/shared"
	"github.com/tourbook/tourbook/internal/users"
)

// RoleSet is the set of roles allowed through a gate.
type RoleSet map[users.Role]struct{}

// Roles builds a RoleSet.
func Roles(roles ...users.Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

// Contains reports whether role is in s.
func (s RoleSet) Contains(role users.Role) bool {
	_, ok := s[role]
	return ok
}

func (s RoleSet) String() string {
	names := make([]string, 0, len(s))
	for r := range s {
		names = append(names, string(r))
	}
	slices.Sort(names)
	return strings.Join(names, ",")
}

// ErrForbidden is returned when the user's role is not allowed.
var ErrForbidden = shared.NewError(shared.ErrForbidden, "You do not have permission to perform this action")

// Authorize returns nil iff u.Role is in allowed. u must be the user
// resolved by the session guard; a nil user panics.
func Authorize(u *users.User, allowed RoleSet) error {
	if u == nil {
		panic("rbac: Authorize called without an authenticated user")
	}
	if allowed.Contains(u.Role) {
		return nil
	}
	return ErrForbidden
}

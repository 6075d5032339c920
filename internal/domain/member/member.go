// Package member describes what the tutoring service needs to know about
// members. Members are owned by the member service; this service only reads
// their existence, role and public profile fields.
package member

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Role is the role a member registered with.
type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleTutor   Role = "TUTOR"
)

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	return r == RoleStudent || r == RoleTutor
}

// CounterpartProfile returns which side-profile to show a viewer with role r:
// tutors look at student profiles, everyone else at tutor profiles.
func (r Role) CounterpartProfile() Role {
	if r == RoleTutor {
		return RoleStudent
	}
	return RoleTutor
}

// ParseRole converts a string to a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.IsValid() {
		return "", fmt.Errorf("invalid member role: %s", s)
	}
	return r, nil
}

// Directory answers identity questions about members.
type Directory interface {
	// Exists reports whether an active (non-deleted) member has the given ID.
	Exists(ctx context.Context, id uuid.UUID) (bool, error)

	// RoleOf returns the member's role, or a NotFound error.
	RoleOf(ctx context.Context, id uuid.UUID) (Role, error)
}

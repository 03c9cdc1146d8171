package rbac

import "callbridge/internal/auth"

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleOperator = auth.RoleOperator
	RoleService  = auth.RoleService
)

// IsServiceRole reports whether role belongs to a machine caller rather than
// a person.
func IsServiceRole(role string) bool { return role == RoleService }

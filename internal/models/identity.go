package models

import "github.com/google/uuid"

// Identity is the caller context resolved from the gateway identity headers.
// It is attached to the request context before any business logic runs.
type Identity struct {
	UserID         uuid.UUID
	OrganizationID uuid.UUID
	Role           Role
}

// IsAdmin reports whether the caller holds the ADMIN role.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

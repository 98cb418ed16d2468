package identity

import "github.com/google/uuid"

// Role is the platform-level role carried in the auth token.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleProvider Role = "provider"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleProvider, RoleAdmin:
		return true
	}
	return false
}

// Actor identifies the authenticated caller of a core operation.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

func (a Actor) Is(r Role) bool { return a.Role == r }

package services

// RoleAdmin grants read access to every invitation for audit.
const RoleAdmin = "admin"

// Actor is the authenticated caller as supplied by the identity provider.
type Actor struct {
	ID          string
	DisplayName string
	Role        string
}

// IsAdmin reports whether the actor may audit invitations it is not party to.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

package auth

import "fmt"

// ForbiddenError indicates the caller lacks the required role.
type ForbiddenError struct {
	Role string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("role %s required", e.Role)
}

// Roles carried by credentials. Admins run batch and directory
// operations; artists only read and answer their own proposals.
const (
	RoleAdmin  = "admin"
	RoleArtist = "artist"
)

func HasRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the actor is an admin, either by credential
// role or by the configured admin list.
func IsAdmin(roles []string, admins []string, actorID string) bool {
	if HasRole(roles, RoleAdmin) {
		return true
	}
	for _, a := range admins {
		if a == actorID {
			return true
		}
	}
	return false
}

func RequireAdmin(roles []string, admins []string, actorID string) error {
	if !IsAdmin(roles, admins, actorID) {
		return ForbiddenError{Role: RoleAdmin}
	}
	return nil
}

package session

import "slices"

// DefaultAdminRoles are the roles treated as privileged when none are configured.
var DefaultAdminRoles = []string{"admin", "superadmin"}

// User is the profile snapshot captured at login time.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
}

// HasRole reports whether the user's role is one of roles.
func (u User) HasRole(roles ...string) bool {
	return slices.Contains(roles, u.Role)
}

package domain

import (
	"bytes"
	"encoding/json"
)

// Role is the name of a portal role as sent by the upstream API.
// The empty Role stands for "no role" and is encoded as JSON null.
type Role string

const (
	RolePracticeUser Role = "Practice User"
	RoleAdmin        Role = "Admin"
	RoleSupport      Role = "Practice by Numbers Support"
)

// Outer routes of the portal.
const (
	PathLanding             = "/"
	PathInbox               = "/inbox"
	PathAdminDashboard      = "/admin-dashboard"
	PathSuperAdminDashboard = "/super-admin-dashboard"
	PathLogout              = "/logout"
)

// ParseRole reports whether s names one of the known roles.
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	return r, r.Known()
}

// Known reports whether r belongs to the closed set of portal roles.
func (r Role) Known() bool {
	switch r {
	case RolePracticeUser, RoleAdmin, RoleSupport:
		return true
	}
	return false
}

// HomePath returns the surface a role lands on after login.
func HomePath(r Role) string {
	switch r {
	case RolePracticeUser:
		return PathInbox
	case RoleAdmin:
		return PathAdminDashboard
	case RoleSupport:
		return PathSuperAdminDashboard
	default:
		return PathLanding
	}
}

func (r Role) MarshalJSON() ([]byte, error) {
	if r == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(r))
}

func (r *Role) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*r = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*r = Role(s)
	return nil
}

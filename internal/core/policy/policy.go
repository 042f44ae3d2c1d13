// Package policy maps a role and a requested path to a routing decision.
//
// The decision is a UX aid only: the upstream API enforces authorization on
// every call regardless of what the portal lets a browser navigate to.
package policy

import "github.com/practicebynumbers/portal/internal/core/domain"

// Kind is the outcome class of a Decision.
type Kind int

const (
	Allow Kind = iota
	RedirectTo
	DenyUnauthenticated
)

func (k Kind) String() string {
	switch k {
	case Allow:
		return "allow"
	case RedirectTo:
		return "redirect"
	case DenyUnauthenticated:
		return "deny_unauthenticated"
	default:
		return "unknown"
	}
}

// Decision is the result of Decide. Target is set only for RedirectTo.
type Decision struct {
	Kind   Kind
	Target string
}

// Location is where the browser must be sent, or "" when access is allowed.
func (d Decision) Location() string {
	switch d.Kind {
	case RedirectTo:
		return d.Target
	case DenyUnauthenticated:
		return domain.PathLanding
	default:
		return ""
	}
}

func redirect(path string) Decision { return Decision{Kind: RedirectTo, Target: path} }

// Decide applies the routing rules in order; the first match wins.
// A role outside the known set is handled like no role at all.
func Decide(role domain.Role, path string) Decision {
	if role == "" || !role.Known() {
		return Decision{Kind: DenyUnauthenticated}
	}

	switch path {
	case domain.PathSuperAdminDashboard:
		if role == domain.RoleSupport {
			break
		}
		if role == domain.RoleAdmin {
			return redirect(domain.PathAdminDashboard)
		}
		return redirect(domain.PathInbox)

	case domain.PathInbox:
		switch role {
		case domain.RoleSupport:
			return redirect(domain.PathSuperAdminDashboard)
		case domain.RoleAdmin:
			return redirect(domain.PathAdminDashboard)
		}

	case domain.PathAdminDashboard:
		if role != domain.RoleAdmin && role != domain.RoleSupport {
			return redirect(domain.PathInbox)
		}
	}

	return Decision{Kind: Allow}
}

// Protected lists the paths that go through the route guard.
func Protected() []string {
	return []string{
		domain.PathInbox,
		domain.PathAdminDashboard,
		domain.PathSuperAdminDashboard,
	}
}

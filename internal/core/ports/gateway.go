package ports

import (
	"context"

	"github.com/practicebynumbers/portal/internal/core/domain"
)

// Credentials is the login payload.
type Credentials struct {
	Username string
	Password string
}

// SignupInput is the self-registration payload. The request lands in the
// pending registration collection upstream.
type SignupInput struct {
	Username          string
	FullName          string
	Email             string
	Password          string
	DesiredPracticeID string
}

// RoleChangeInput asks for a different role for the logged-in user.
type RoleChangeInput struct {
	RequestedRole domain.Role
	Reason        string
}

// Gateway is the upstream REST API as seen by the portal. Failures are
// returned as *domain.GatewayError.
type Gateway interface {
	Login(ctx context.Context, creds Credentials) (*domain.Profile, error)
	Signup(ctx context.Context, in SignupInput) error
	ChangePassword(ctx context.Context, oldPassword, newPassword string) error
	RequestRoleChange(ctx context.Context, in RoleChangeInput) error

	PendingRequests(ctx context.Context) (*domain.PendingSet, error)
	Approve(ctx context.Context, ref domain.RequestRef) error
	Reject(ctx context.Context, ref domain.RequestRef, reason string) error
}

// SessionResetter is implemented by gateways that keep upstream session
// state (cookies) of their own. ResetSession forgets it, durable copies
// included.
type SessionResetter interface {
	ResetSession(ctx context.Context) error
}

package ports

import (
	"context"

	"github.com/practicebynumbers/portal/internal/core/domain"
)

type AuthService interface {
	Login(ctx context.Context, creds Credentials) (domain.Session, string, error)
	Logout(ctx context.Context)
	Signup(ctx context.Context, in SignupInput) error
	ChangePassword(ctx context.Context, oldPassword, newPassword string) error
	RequestRoleChange(ctx context.Context, in RoleChangeInput) error
}

// ApprovalWorkflow drives the pending-request lists of one client scope.
type ApprovalWorkflow interface {
	FetchPending(ctx context.Context) error
	Approve(ctx context.Context, ref domain.RequestRef) error
	Reject(ctx context.Context, ref domain.RequestRef, reason string) error
}

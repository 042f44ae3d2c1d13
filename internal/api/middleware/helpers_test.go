package middleware

import (
	"context"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/practicebynumbers/portal/internal/core/domain"
	"github.com/practicebynumbers/portal/internal/core/ports"
	"github.com/practicebynumbers/portal/internal/core/service"
	"github.com/practicebynumbers/portal/internal/infrastructure/storage/memory"
)

type nopGateway struct{}

func (nopGateway) Login(context.Context, ports.Credentials) (*domain.Profile, error) {
	return nil, nil
}
func (nopGateway) Signup(context.Context, ports.SignupInput) error { return nil }
func (nopGateway) ChangePassword(context.Context, string, string) error { return nil }
func (nopGateway) RequestRoleChange(context.Context, ports.RoleChangeInput) error { return nil }
func (nopGateway) PendingRequests(context.Context) (*domain.PendingSet, error) { return nil, nil }
func (nopGateway) Approve(context.Context, domain.RequestRef) error { return nil }
func (nopGateway) Reject(context.Context, domain.RequestRef, string) error { return nil }

func newRegistry() *service.Workspaces {
	store := memory.New()
	return service.NewWorkspaces(service.WorkspaceConfig{
		NewGateway: func(string, ports.SessionStorage) ports.Gateway { return nopGateway{} },
		NewStorage: func(scope string) ports.SessionStorage { return store.Scoped(scope) },
		SessionKey: service.DefaultSessionKey,
		Log:        zerolog.Nop(),
	})
}

// withRole puts a workspace logged in as role (or logged out for "") into c.
func withRole(t *testing.T, c echo.Context, role domain.Role) {
	t.Helper()
	ws := newRegistry().Get(context.Background(), "scope-1")
	if role != "" {
		ws.Sessions.Set(context.Background(), domain.Profile{ID: "1", FullName: "Test User", Role: role})
	}
	SetWorkspace(c, ws.Scope, ws)
}

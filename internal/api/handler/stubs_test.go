package handler

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/practicebynumbers/portal/internal/api/middleware"
	"github.com/practicebynumbers/portal/internal/core/domain"
	"github.com/practicebynumbers/portal/internal/core/ports"
	"github.com/practicebynumbers/portal/internal/core/service"
	"github.com/practicebynumbers/portal/internal/infrastructure/storage/memory"
)

var errUpstream = &domain.GatewayError{Op: "test", Status: 400, Message: "Upstream says no"}

type stubGateway struct {
	mu sync.Mutex

	loginFn    func(ports.Credentials) (*domain.Profile, error)
	pending    domain.PendingSet
	pendingErr error
	mutateErr  error

	logins    int
	signups   []ports.SignupInput
	passwords int
	approved  []domain.RequestRef
	rejected  []string
}

func (g *stubGateway) Login(_ context.Context, creds ports.Credentials) (*domain.Profile, error) {
	g.mu.Lock()
	g.logins++
	g.mu.Unlock()
	if g.loginFn == nil {
		return nil, errors.New("login not configured")
	}
	return g.loginFn(creds)
}

func (g *stubGateway) Signup(_ context.Context, in ports.SignupInput) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.signups = append(g.signups, in)
	return g.mutateErr
}

func (g *stubGateway) ChangePassword(context.Context, string, string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.passwords++
	return g.mutateErr
}

func (g *stubGateway) RequestRoleChange(context.Context, ports.RoleChangeInput) error {
	return g.mutateErr
}

func (g *stubGateway) PendingRequests(context.Context) (*domain.PendingSet, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pendingErr != nil {
		return nil, g.pendingErr
	}
	return &domain.PendingSet{
		Registrations: append([]domain.PendingRequest{}, g.pending.Registrations...),
		RoleChanges:   append([]domain.PendingRequest{}, g.pending.RoleChanges...),
	}, nil
}

func (g *stubGateway) Approve(_ context.Context, ref domain.RequestRef) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.approved = append(g.approved, ref)
	if g.mutateErr != nil {
		return g.mutateErr
	}
	g.resolve(ref)
	return nil
}

func (g *stubGateway) Reject(_ context.Context, ref domain.RequestRef, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rejected = append(g.rejected, reason)
	if g.mutateErr != nil {
		return g.mutateErr
	}
	g.resolve(ref)
	return nil
}

// resolve must be called with g.mu held.
func (g *stubGateway) resolve(ref domain.RequestRef) {
	keep := func(list []domain.PendingRequest) []domain.PendingRequest {
		out := list[:0:0]
		for _, r := range list {
			if r.ID != ref.ID || r.Kind != ref.Kind {
				out = append(out, r)
			}
		}
		return out
	}
	g.pending.Registrations = keep(g.pending.Registrations)
	g.pending.RoleChanges = keep(g.pending.RoleChanges)
}

func samplePending() domain.PendingSet {
	return domain.PendingSet{
		Registrations: []domain.PendingRequest{
			{ID: "1", Kind: domain.KindRegistration, User: domain.RequestUser{FullName: "Dana"}, RequestedRole: domain.RolePracticeUser},
		},
		RoleChanges: []domain.PendingRequest{
			{ID: "1", Kind: domain.KindRoleChange, User: domain.RequestUser{FullName: "Eli"}, RequestedRole: domain.RoleAdmin, CurrentRole: domain.RolePracticeUser},
		},
	}
}

type dropRecorder struct{ dropped []string }

func (d *dropRecorder) Drop(scope string) { d.dropped = append(d.dropped, scope) }

func newWorkspace(t *testing.T, gw ports.Gateway, role domain.Role) *service.Workspace {
	t.Helper()
	store := memory.New()
	reg := service.NewWorkspaces(service.WorkspaceConfig{
		NewGateway: func(string, ports.SessionStorage) ports.Gateway { return gw },
		NewStorage: func(scope string) ports.SessionStorage { return store.Scoped(scope) },
		SessionKey: service.DefaultSessionKey,
		Log:        zerolog.Nop(),
	})
	ws := reg.Get(context.Background(), "scope-1")
	if role != "" {
		ws.Sessions.Set(context.Background(), domain.Profile{ID: "42", FullName: "Operator", Email: "op@example.com", Role: role})
	}
	return ws
}

// newContext builds a request context bound to ws. asJSON selects a JSON
// API call; otherwise the body is sent as a browser form post.
func newContext(ws *service.Workspace, method, target, body string, asJSON bool) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	e.Validator = NewValidator()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if asJSON {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		req.Header.Set(echo.HeaderAccept, echo.MIMEApplicationJSON)
	} else if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if ws != nil {
		middleware.SetWorkspace(c, ws.Scope, ws)
	}
	return c, rec
}

func testFlash() *Flash {
	return NewFlash([]byte("flash-secret-0123456789abcdef012"), false, zerolog.Nop())
}

func hasNotice(list []service.Notice, level service.NoticeLevel, msg string) bool {
	for _, n := range list {
		if n.Level == level && n.Message == msg {
			return true
		}
	}
	return false
}

package service

import (
	"context"
	"errors"
	"sync"

	"github.com/practicebynumbers/portal/internal/core/domain"
	"github.com/practicebynumbers/portal/internal/core/ports"
)

// ---------------------------------------------------------------------------
// Storage stub
// ---------------------------------------------------------------------------

type stubStorage struct {
	mu      sync.Mutex
	data    map[string][]byte
	saveErr error
	loadErr error
	deletes int
}

func newStubStorage() *stubStorage {
	return &stubStorage{data: make(map[string][]byte)}
}

func (s *stubStorage) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	raw, ok := s.data[key]
	if !ok {
		return nil, domain.ErrSessionNotStored
	}
	return append([]byte(nil), raw...), nil
}

func (s *stubStorage) Save(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.data[key] = append([]byte(nil), data...)
	return nil
}

func (s *stubStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	delete(s.data, key)
	return nil
}

// ---------------------------------------------------------------------------
// Gateway stub: a tiny in-memory upstream that resolves requests on
// approve/reject so refreshes behave like the real API.
// ---------------------------------------------------------------------------

type stubGateway struct {
	mu sync.Mutex

	set        domain.PendingSet
	pendingErr error
	mutateErr  error
	loginErr   error
	profile    *domain.Profile

	// block, when set, holds approve calls until it is closed or ctx ends.
	block chan struct{}

	pendingCalls int
	approveCalls []domain.RequestRef
	rejectCalls  []string
	roleChanges  []ports.RoleChangeInput
	resets       int
}

func (g *stubGateway) Login(_ context.Context, _ ports.Credentials) (*domain.Profile, error) {
	if g.loginErr != nil {
		return nil, g.loginErr
	}
	p := *g.profile
	return &p, nil
}

func (g *stubGateway) Signup(context.Context, ports.SignupInput) error { return g.mutateErr }

func (g *stubGateway) ChangePassword(context.Context, string, string) error { return g.mutateErr }

func (g *stubGateway) RequestRoleChange(_ context.Context, in ports.RoleChangeInput) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.roleChanges = append(g.roleChanges, in)
	return g.mutateErr
}

func (g *stubGateway) PendingRequests(context.Context) (*domain.PendingSet, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pendingCalls++
	if g.pendingErr != nil {
		return nil, g.pendingErr
	}
	out := domain.PendingSet{
		Registrations: append([]domain.PendingRequest(nil), g.set.Registrations...),
		RoleChanges:   append([]domain.PendingRequest(nil), g.set.RoleChanges...),
	}
	return &out, nil
}

func (g *stubGateway) Approve(ctx context.Context, ref domain.RequestRef) error {
	if g.block != nil {
		select {
		case <-g.block:
		case <-ctx.Done():
			return &domain.GatewayError{Op: "approve", Err: ctx.Err()}
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.approveCalls = append(g.approveCalls, ref)
	if g.mutateErr != nil {
		return g.mutateErr
	}
	g.resolve(ref)
	return nil
}

func (g *stubGateway) Reject(_ context.Context, ref domain.RequestRef, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rejectCalls = append(g.rejectCalls, reason)
	if g.mutateErr != nil {
		return g.mutateErr
	}
	g.resolve(ref)
	return nil
}

// resolve must be called with g.mu held.
func (g *stubGateway) resolve(ref domain.RequestRef) {
	drop := func(in []domain.PendingRequest) []domain.PendingRequest {
		out := in[:0]
		for _, r := range in {
			if r.ID != ref.ID {
				out = append(out, r)
			}
		}
		return out
	}
	g.set.Registrations = drop(g.set.Registrations)
	g.set.RoleChanges = drop(g.set.RoleChanges)
}

func (g *stubGateway) ResetSession(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resets++
	return nil
}

func (g *stubGateway) calls() (pending, approve, reject int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pendingCalls, len(g.approveCalls), len(g.rejectCalls)
}

func seededGateway() *stubGateway {
	return &stubGateway{
		set: domain.PendingSet{
			Registrations: []domain.PendingRequest{
				{ID: "11", User: domain.RequestUser{FullName: "Ana Ruiz", Email: "ana@example.com"}, RequestedRole: domain.RolePracticeUser},
				{ID: "12", User: domain.RequestUser{FullName: "Bo Chen", Email: "bo@example.com"}, RequestedRole: domain.RolePracticeUser},
			},
			RoleChanges: []domain.PendingRequest{
				{ID: "21", User: domain.RequestUser{FullName: "Cy Diaz"}, RequestedRole: domain.RoleAdmin, CurrentRole: domain.RolePracticeUser},
			},
		},
	}
}

// ---------------------------------------------------------------------------
// Journal and guard stubs
// ---------------------------------------------------------------------------

type stubJournal struct {
	mu        sync.Mutex
	decisions []domain.Decision
}

func (j *stubJournal) Record(_ context.Context, d domain.Decision) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.decisions = append(j.decisions, d)
	return nil
}

type stubGuard struct {
	held    bool
	err     error
	release int
}

func (g *stubGuard) Acquire(context.Context, domain.RequestRef) (bool, error) {
	if g.err != nil {
		return false, g.err
	}
	return !g.held, nil
}

func (g *stubGuard) Release(context.Context, domain.RequestRef) error {
	g.release++
	return nil
}

var (
	errUpstream = errors.New("connection refused")
	errNoLogin  = &domain.GatewayError{Op: "pending_requests", Status: 403, Message: "Authentication credentials were not provided."}
)

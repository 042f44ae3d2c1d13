package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/practicebynumbers/portal/internal/core/domain"
	"github.com/practicebynumbers/portal/internal/core/ports"
	"github.com/practicebynumbers/portal/internal/infrastructure/gateway"
	"github.com/practicebynumbers/portal/internal/infrastructure/storage/memory"
)

func newRegistry(storage *stubStorage, gateways map[string]int) *Workspaces {
	return NewWorkspaces(WorkspaceConfig{
		NewGateway: func(scope string, _ ports.SessionStorage) ports.Gateway {
			gateways[scope]++
			return seededGateway()
		},
		NewStorage: func(string) ports.SessionStorage { return storage },
		IdleTTL:    time.Minute,
		Log:        zerolog.Nop(),
	})
}

func TestWorkspaces_SameScopeSameWorkspace(t *testing.T) {
	built := map[string]int{}
	reg := newRegistry(newStubStorage(), built)

	a := reg.Get(context.Background(), "scope-a")
	if again := reg.Get(context.Background(), "scope-a"); again != a {
		t.Fatalf("expected the same workspace for one scope")
	}
	if b := reg.Get(context.Background(), "scope-b"); b == a {
		t.Fatalf("different scopes must not share a workspace")
	}
	if built["scope-a"] != 1 || reg.Len() != 2 {
		t.Fatalf("unexpected registry state: built=%v len=%d", built, reg.Len())
	}
}

func TestWorkspaces_RehydratesSession(t *testing.T) {
	storage := newStubStorage()
	reg := newRegistry(storage, map[string]int{})

	ws := reg.Get(context.Background(), "scope-a")
	ws.Sessions.Set(context.Background(), domain.Profile{ID: "4", Email: "ops@example.com", Role: domain.RoleSupport})
	reg.Drop("scope-a")

	fresh := reg.Get(context.Background(), "scope-a")
	if fresh == ws {
		t.Fatalf("expected a rebuilt workspace after Drop")
	}
	if got := fresh.Sessions.Get(); got.Role != domain.RoleSupport {
		t.Fatalf("session not rehydrated: %+v", got)
	}
}

func TestWorkspaces_EvictsIdle(t *testing.T) {
	reg := newRegistry(newStubStorage(), map[string]int{})
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	reg.now = func() time.Time { return now }

	reg.Get(context.Background(), "old")
	now = now.Add(2 * time.Minute)
	reg.Get(context.Background(), "new")

	if reg.Len() != 1 {
		t.Fatalf("idle scope should be evicted, len=%d", reg.Len())
	}
}

// upstreamAPI mimics the session authentication of the upstream API: login
// issues a sessionid, pending requests require a live one.
type upstreamAPI struct {
	mu   sync.Mutex
	live map[string]bool
	next int
}

func (u *upstreamAPI) forget() {
	u.mu.Lock()
	u.live = map[string]bool{}
	u.mu.Unlock()
}

func (u *upstreamAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login/", func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.next++
		id := "s-" + strconv.Itoa(u.next)
		u.live[id] = true
		u.mu.Unlock()
		http.SetCookie(w, &http.Cookie{Name: "sessionid", Value: id, Path: "/"})
		_, _ = w.Write([]byte(`{"id":5,"full_name":"Ana Ruiz","email":"ana@example.com","role":"Admin"}`))
	})
	mux.HandleFunc("/api/auth/pending_request/", func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie("sessionid")
		u.mu.Lock()
		ok := err == nil && u.live[ck.Value]
		u.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"detail":"Authentication credentials were not provided."}`))
			return
		}
		_, _ = w.Write([]byte(`{"registration_requests":[{"id":1,"user":{"full_name":"Dana"}}],"role_change_requests":[]}`))
	})
	return mux
}

func upstreamRegistry(t *testing.T, api *upstreamAPI, store *memory.Storage) *Workspaces {
	t.Helper()
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)

	factory, err := gateway.NewFactory(srv.URL+"/api", time.Second, zerolog.Nop())
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	return NewWorkspaces(WorkspaceConfig{
		NewGateway: func(scope string, storage ports.SessionStorage) ports.Gateway {
			return factory.ForScope(scope, storage)
		},
		NewStorage: func(scope string) ports.SessionStorage { return store.Scoped(scope) },
		IdleTTL:    30 * time.Minute,
		Log:        zerolog.Nop(),
	})
}

func TestWorkspaces_UpstreamSessionSurvivesEviction(t *testing.T) {
	api := &upstreamAPI{live: map[string]bool{}}
	reg := upstreamRegistry(t, api, memory.New())
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	reg.now = func() time.Time { return now }
	ctx := context.Background()

	ws := reg.Get(ctx, "scope-a")
	if _, _, err := ws.Auth.Login(ctx, ports.Credentials{Username: "ana", Password: "pw"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := ws.Approvals.FetchPending(ctx); err != nil {
		t.Fatalf("fetch before eviction: %v", err)
	}

	now = now.Add(31 * time.Minute)
	rebuilt := reg.Get(ctx, "scope-a")
	if rebuilt == ws {
		t.Fatalf("expected the idle workspace to be rebuilt")
	}
	if got := rebuilt.Sessions.Get(); got.EffectiveRole() != domain.RoleAdmin {
		t.Fatalf("session not rehydrated: %+v", got)
	}
	if err := rebuilt.Approvals.FetchPending(ctx); err != nil {
		t.Fatalf("fetch after eviction: %v", err)
	}
	if view := rebuilt.Approvals.Snapshot(); len(view.Registrations) != 1 {
		t.Fatalf("unexpected lists after eviction: %+v", view)
	}
}

func TestWorkspaces_ExpiredUpstreamSessionLogsOut(t *testing.T) {
	api := &upstreamAPI{live: map[string]bool{}}
	store := memory.New()
	reg := upstreamRegistry(t, api, store)
	ctx := context.Background()

	ws := reg.Get(ctx, "scope-a")
	if _, _, err := ws.Auth.Login(ctx, ports.Credentials{Username: "ana", Password: "pw"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	ws.Notices.Drain()
	api.forget()

	err := ws.Approvals.FetchPending(ctx)
	if !errors.Is(err, domain.ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if ws.Sessions.Get().IsAuthenticated {
		t.Fatalf("local session must be cleared once the upstream forgets it")
	}
	if _, err := store.Load(ctx, "scope-a:"+DefaultSessionKey); !errors.Is(err, domain.ErrSessionNotStored) {
		t.Fatalf("expected persisted session removed, got %v", err)
	}
	if _, err := store.Load(ctx, "scope-a:"+gateway.CookieKey); !errors.Is(err, domain.ErrSessionNotStored) {
		t.Fatalf("expected persisted upstream cookies removed, got %v", err)
	}
	if n := ws.Notices.Drain(); len(n) != 1 || n[0].Message != "Your session has expired. Please log in again." {
		t.Fatalf("unexpected notices: %+v", n)
	}
}

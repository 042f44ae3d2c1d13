package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/practicebynumbers/portal/internal/core/ports"
)

const defaultIdleTTL = 2 * time.Hour

// Workspace is everything the portal keeps for one client scope (one
// browser): its session, its pending lists and its queued notices.
type Workspace struct {
	Scope     string
	Sessions  *SessionService
	Auth      ports.AuthService
	Approvals *ApprovalController
	Notices   *NoticeBox
}

// WorkspaceConfig wires a Workspaces registry. NewStorage and NewGateway
// are called once per scope; the gateway gets the scope's storage so it
// can keep its upstream session next to the local one.
type WorkspaceConfig struct {
	NewGateway  func(scope string, storage ports.SessionStorage) ports.Gateway
	NewStorage  func(scope string) ports.SessionStorage
	Guard       ports.InflightGuard
	Journal     ports.DecisionJournal
	SessionKey  string
	CallTimeout time.Duration
	IdleTTL     time.Duration
	Log         zerolog.Logger
}

type workspaceEntry struct {
	once     sync.Once
	ws       *Workspace
	lastSeen time.Time
}

// Workspaces is the in-memory registry of live client scopes. A scope that
// has been idle longer than IdleTTL is dropped; its session survives in
// storage and is rehydrated on the next visit.
type Workspaces struct {
	cfg WorkspaceConfig
	now func() time.Time

	mu    sync.Mutex
	items map[string]*workspaceEntry
}

func NewWorkspaces(cfg WorkspaceConfig) *Workspaces {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = defaultIdleTTL
	}
	return &Workspaces{
		cfg:   cfg,
		now:   time.Now,
		items: make(map[string]*workspaceEntry),
	}
}

// Get returns the workspace for scope, building and rehydrating it on
// first use.
func (w *Workspaces) Get(ctx context.Context, scope string) *Workspace {
	now := w.now()

	w.mu.Lock()
	w.evictIdle(now)
	e, ok := w.items[scope]
	if !ok {
		e = &workspaceEntry{}
		w.items[scope] = e
	}
	e.lastSeen = now
	w.mu.Unlock()

	e.once.Do(func() {
		e.ws = w.build(context.WithoutCancel(ctx), scope)
	})
	return e.ws
}

// Drop forgets a scope's in-memory state.
func (w *Workspaces) Drop(scope string) {
	w.mu.Lock()
	delete(w.items, scope)
	w.mu.Unlock()
}

// Len reports the number of live scopes.
func (w *Workspaces) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.items)
}

// evictIdle must be called with w.mu held.
func (w *Workspaces) evictIdle(now time.Time) {
	for scope, e := range w.items {
		if now.Sub(e.lastSeen) > w.cfg.IdleTTL {
			delete(w.items, scope)
		}
	}
}

func (w *Workspaces) build(ctx context.Context, scope string) *Workspace {
	log := w.cfg.Log.With().Str("scope", scope).Logger()
	storage := w.cfg.NewStorage(scope)
	gateway := w.cfg.NewGateway(scope, storage)
	notices := NewNoticeBox()

	sessions := NewSessionService(storage, w.cfg.SessionKey, log)
	sessions.Initialize(ctx)
	auth := NewAuthService(gateway, sessions, notices, log)

	approvals := NewApprovalController(ApprovalDeps{
		Gateway: gateway,
		Guard:   w.cfg.Guard,
		Journal: w.cfg.Journal,
		Notify:  notices,
		Actor: func() string {
			if u := sessions.Get().User; u != nil {
				if u.Email != "" {
					return u.Email
				}
				return u.Username
			}
			return ""
		},
		OnSessionLost: auth.Expire,
		CallTimeout:   w.cfg.CallTimeout,
		Log:           log,
	})

	return &Workspace{
		Scope:     scope,
		Sessions:  sessions,
		Auth:      auth,
		Approvals: approvals,
		Notices:   notices,
	}
}

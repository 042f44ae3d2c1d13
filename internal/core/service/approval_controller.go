package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/practicebynumbers/portal/internal/core/domain"
	"github.com/practicebynumbers/portal/internal/core/ports"
)

// ListState is the state of one visible pending list.
//
//	idle -> loading -> loaded | load_failed
//	loaded -> mutating -> loaded (refreshed) | mutation_failed (unchanged)
type ListState string

const (
	StateIdle           ListState = "idle"
	StateLoading        ListState = "loading"
	StateLoaded         ListState = "loaded"
	StateLoadFailed     ListState = "load_failed"
	StateMutating       ListState = "mutating"
	StateMutationFailed ListState = "mutation_failed"
)

const defaultCallTimeout = 15 * time.Second

var _ ports.ApprovalWorkflow = (*ApprovalController)(nil)

// ApprovalView is a read-only snapshot for rendering.
type ApprovalView struct {
	Registrations     []domain.PendingRequest `json:"registration_requests"`
	RoleChanges       []domain.PendingRequest `json:"role_change_requests"`
	RegistrationState ListState               `json:"registration_state"`
	RoleChangeState   ListState               `json:"role_change_state"`
	IsLoading         bool                    `json:"is_loading"`
	IsProcessing      bool                    `json:"is_processing"`
	LoadFailed        bool                    `json:"load_failed"`
}

// ApprovalDeps wires an ApprovalController. Guard and Journal are optional.
type ApprovalDeps struct {
	Gateway ports.Gateway
	Guard   ports.InflightGuard
	Journal ports.DecisionJournal
	Notify  ports.Notifier
	// Actor names the operator in decision records.
	Actor func() string
	// OnSessionLost runs when the upstream stops recognizing the scope.
	OnSessionLost func(context.Context)
	CallTimeout   time.Duration
	Log           zerolog.Logger
}

// ApprovalController owns the pending lists of one client scope. Nothing
// else writes them. Updates are pessimistic: a request only leaves a list
// when a refresh after a confirmed mutation no longer returns it.
type ApprovalController struct {
	gateway ports.Gateway
	guard   ports.InflightGuard
	journal ports.DecisionJournal
	notify  ports.Notifier
	actor   func() string
	expire  func(context.Context)
	timeout time.Duration
	log     zerolog.Logger
	now     func() time.Time

	mu         sync.Mutex
	pending    domain.PendingSet
	states     map[domain.RequestKind]ListState
	loading    bool
	processing bool
	loadFailed bool
}

func NewApprovalController(deps ApprovalDeps) *ApprovalController {
	timeout := deps.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	actor := deps.Actor
	if actor == nil {
		actor = func() string { return "" }
	}
	expire := deps.OnSessionLost
	if expire == nil {
		expire = func(context.Context) {}
	}
	return &ApprovalController{
		gateway: deps.Gateway,
		guard:   deps.Guard,
		journal: deps.Journal,
		notify:  deps.Notify,
		actor:   actor,
		expire:  expire,
		timeout: timeout,
		log:     deps.Log,
		now:     func() time.Time { return time.Now().UTC() },
		pending: domain.PendingSet{Registrations: []domain.PendingRequest{}, RoleChanges: []domain.PendingRequest{}},
		states: map[domain.RequestKind]ListState{
			domain.KindRegistration: StateIdle,
			domain.KindRoleChange:   StateIdle,
		},
	}
}

// FetchPending replaces both lists with the upstream snapshot. On failure
// the lists are emptied rather than left stale.
func (c *ApprovalController) FetchPending(ctx context.Context) error {
	c.mu.Lock()
	c.loading = true
	c.setStates(StateLoading)
	c.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	set, err := c.gateway.PendingRequests(callCtx)
	cancel()

	c.mu.Lock()
	c.loading = false
	if err == nil {
		c.pending = normalize(set)
		c.loadFailed = false
		c.setStates(StateLoaded)
		c.mu.Unlock()
		return nil
	}
	c.pending = domain.PendingSet{Registrations: []domain.PendingRequest{}, RoleChanges: []domain.PendingRequest{}}
	c.loadFailed = true
	c.setStates(StateLoadFailed)
	c.mu.Unlock()

	c.log.Warn().Err(err).Msg("fetch pending requests failed")
	if domain.SessionLost(err) {
		c.expire(ctx)
		return fmt.Errorf("fetch pending: %w: %w", domain.ErrSessionExpired, err)
	}
	c.notify.Error("Failed to fetch pending requests")
	return fmt.Errorf("fetch pending: %w", err)
}

// Approve accepts the request identified by ref.
func (c *ApprovalController) Approve(ctx context.Context, ref domain.RequestRef) error {
	return c.mutate(ctx, ref, domain.StatusApproved, "", func(ctx context.Context) error {
		return c.gateway.Approve(ctx, ref)
	})
}

// Reject declines the request identified by ref. A blank reason is refused
// locally and nothing is sent upstream.
func (c *ApprovalController) Reject(ctx context.Context, ref domain.RequestRef, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return domain.ErrEmptyReason
	}
	return c.mutate(ctx, ref, domain.StatusRejected, reason, func(ctx context.Context) error {
		return c.gateway.Reject(ctx, ref, reason)
	})
}

func (c *ApprovalController) mutate(
	ctx context.Context,
	ref domain.RequestRef,
	outcome domain.RequestStatus,
	reason string,
	call func(context.Context) error,
) error {
	if ref.ID == "" {
		return domain.ErrInvalidRequestRef
	}
	if _, err := domain.ParseRequestKind(string(ref.Kind)); err != nil {
		return err
	}

	c.mu.Lock()
	if c.processing {
		c.mu.Unlock()
		return domain.ErrMutationInFlight
	}
	c.processing = true
	prev := c.states[ref.Kind]
	c.states[ref.Kind] = StateMutating
	subject := subjectOf(c.pending, ref)
	c.mu.Unlock()

	err := c.guarded(ctx, ref, call)

	c.mu.Lock()
	c.processing = false
	switch {
	case errors.Is(err, domain.ErrMutationInFlight):
		c.states[ref.Kind] = prev
	case err != nil:
		c.states[ref.Kind] = StateMutationFailed
	}
	c.mu.Unlock()

	verb, fallback := "Approved", "Failed to approve request"
	if outcome == domain.StatusRejected {
		verb, fallback = "Rejected", "Failed to reject request"
	}

	if errors.Is(err, domain.ErrMutationInFlight) {
		c.notify.Error("This request is already being processed")
		return err
	}

	c.record(ctx, ref, outcome, reason, err)

	if err != nil {
		c.log.Warn().Err(err).Str("request_id", string(ref.ID)).Str("kind", string(ref.Kind)).
			Str("outcome", string(outcome)).Msg("request mutation failed")
		if domain.SessionLost(err) {
			c.expire(ctx)
			return fmt.Errorf("%w: %w", domain.ErrSessionExpired, err)
		}
		c.notify.Error(domain.UserMessage(err, fallback))
		return err
	}

	c.notify.Success(fmt.Sprintf("%s %s", verb, subject))
	if ferr := c.FetchPending(ctx); ferr != nil {
		c.log.Warn().Err(ferr).Msg("refresh after mutation failed")
	}
	return nil
}

// guarded runs call while holding the cross-replica lock for ref. A lock
// backend failure does not block the operator; the upstream API remains
// the authority on double decisions.
func (c *ApprovalController) guarded(ctx context.Context, ref domain.RequestRef, call func(context.Context) error) error {
	if c.guard != nil {
		ok, err := c.guard.Acquire(ctx, ref)
		switch {
		case err != nil:
			c.log.Warn().Err(err).Str("request_id", string(ref.ID)).Msg("inflight lock unavailable, proceeding")
		case !ok:
			return domain.ErrMutationInFlight
		default:
			defer func() {
				if rerr := c.guard.Release(context.WithoutCancel(ctx), ref); rerr != nil {
					c.log.Warn().Err(rerr).Str("request_id", string(ref.ID)).Msg("inflight lock release failed")
				}
			}()
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return call(callCtx)
}

func (c *ApprovalController) record(ctx context.Context, ref domain.RequestRef, outcome domain.RequestStatus, reason string, err error) {
	if c.journal == nil {
		return
	}
	d := domain.Decision{
		ID:        uuid.NewString(),
		RequestID: ref.ID,
		Kind:      ref.Kind,
		Outcome:   outcome,
		Reason:    reason,
		Actor:     c.actor(),
		Succeeded: err == nil,
		DecidedAt: c.now(),
	}
	if err != nil {
		d.Error = err.Error()
	}
	if jerr := c.journal.Record(ctx, d); jerr != nil {
		c.log.Warn().Err(jerr).Str("request_id", string(ref.ID)).Msg("decision not journaled")
	}
}

// Snapshot returns a copy of the current lists and flags.
func (c *ApprovalController) Snapshot() ApprovalView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ApprovalView{
		Registrations:     append([]domain.PendingRequest{}, c.pending.Registrations...),
		RoleChanges:       append([]domain.PendingRequest{}, c.pending.RoleChanges...),
		RegistrationState: c.states[domain.KindRegistration],
		RoleChangeState:   c.states[domain.KindRoleChange],
		IsLoading:         c.loading,
		IsProcessing:      c.processing,
		LoadFailed:        c.loadFailed,
	}
}

// Lookup finds a request in the current snapshot.
func (c *ApprovalController) Lookup(ref domain.RequestRef) (domain.PendingRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending.Find(ref)
}

// setStates must be called with c.mu held.
func (c *ApprovalController) setStates(s ListState) {
	c.states[domain.KindRegistration] = s
	c.states[domain.KindRoleChange] = s
}

// normalize copies set, fills missing tags from the collection each request
// came in and replaces nil slices.
func normalize(set *domain.PendingSet) domain.PendingSet {
	out := domain.PendingSet{Registrations: []domain.PendingRequest{}, RoleChanges: []domain.PendingRequest{}}
	if set == nil {
		return out
	}
	for _, r := range set.Registrations {
		if r.Kind == "" {
			r.Kind = domain.KindRegistration
		}
		out.Registrations = append(out.Registrations, r)
	}
	for _, r := range set.RoleChanges {
		if r.Kind == "" {
			r.Kind = domain.KindRoleChange
		}
		out.RoleChanges = append(out.RoleChanges, r)
	}
	return out
}

func subjectOf(set domain.PendingSet, ref domain.RequestRef) string {
	if r, ok := set.Find(ref); ok && r.User.FullName != "" {
		return r.User.FullName + "'s request"
	}
	return "request " + string(ref.ID)
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/practicebynumbers/portal/internal/core/domain"
	"github.com/practicebynumbers/portal/internal/core/service"
	"github.com/practicebynumbers/portal/internal/infrastructure/storage/memory"
)

func withRequestParams(c echo.Context, kind, id string) {
	c.SetParamNames("kind", "id")
	c.SetParamValues(kind, id)
}

func TestApprovalHandler_Pending(t *testing.T) {
	gw := &stubGateway{pending: samplePending()}
	ws := newWorkspace(t, gw, domain.RoleSupport)
	c, rec := newContext(ws, http.MethodGet, "/api/pending", "", true)

	if err := NewApprovalHandler(nil, nil).Pending(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	var resp approvalResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(resp.Registrations) != 1 || len(resp.RoleChanges) != 1 {
		t.Fatalf("unexpected lists: %+v", resp.ApprovalView)
	}
	if resp.RegistrationState != service.StateLoaded || resp.LoadFailed {
		t.Fatalf("unexpected state: %+v", resp.ApprovalView)
	}
}

func TestApprovalHandler_Pending_Failure(t *testing.T) {
	gw := &stubGateway{pendingErr: errUpstream}
	ws := newWorkspace(t, gw, domain.RoleAdmin)
	c, _ := newContext(ws, http.MethodGet, "/api/pending", "", true)

	err := NewApprovalHandler(nil, nil).Pending(c)
	var ge *domain.GatewayError
	if !errors.As(err, &ge) {
		t.Fatalf("expected gateway error, got %v", err)
	}
	if view := ws.Approvals.Snapshot(); !view.LoadFailed || len(view.Registrations) != 0 {
		t.Fatalf("expected emptied lists and load_failed, got %+v", view)
	}
}

func TestApprovalHandler_Approve(t *testing.T) {
	gw := &stubGateway{pending: samplePending()}
	ws := newWorkspace(t, gw, domain.RoleSupport)
	if err := ws.Approvals.FetchPending(context.Background()); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	c, rec := newContext(ws, http.MethodPost, "/api/requests/role_change/1/approve", "", true)
	withRequestParams(c, "role_change", "1")

	if err := NewApprovalHandler(nil, nil).Approve(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if len(gw.approved) != 1 || gw.approved[0] != (domain.RequestRef{ID: "1", Kind: domain.KindRoleChange}) {
		t.Fatalf("unexpected upstream calls: %+v", gw.approved)
	}

	var resp approvalResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(resp.RoleChanges) != 0 || len(resp.Registrations) != 1 {
		t.Fatalf("only the role change with id 1 should be gone: %+v", resp.ApprovalView)
	}
	if !hasNotice(resp.Notices, service.NoticeSuccess, "Approved Eli's request") {
		t.Fatalf("expected approval notice, got %+v", resp.Notices)
	}
}

func TestApprovalHandler_Approve_InvalidKind(t *testing.T) {
	gw := &stubGateway{pending: samplePending()}
	ws := newWorkspace(t, gw, domain.RoleSupport)
	c, _ := newContext(ws, http.MethodPost, "/api/requests/promotion/1/approve", "", true)
	withRequestParams(c, "promotion", "1")

	err := NewApprovalHandler(nil, nil).Approve(c)
	if !errors.Is(err, domain.ErrInvalidRequestKind) {
		t.Fatalf("expected ErrInvalidRequestKind, got %v", err)
	}
	if len(gw.approved) != 0 {
		t.Fatalf("gateway must not be called")
	}
}

func TestApprovalHandler_Reject_BlankReason(t *testing.T) {
	gw := &stubGateway{pending: samplePending()}
	ws := newWorkspace(t, gw, domain.RoleAdmin)
	_ = ws.Approvals.FetchPending(context.Background())

	c, _ := newContext(ws, http.MethodPost, "/api/requests/registration/1/reject", `{"reason":"   "}`, true)
	withRequestParams(c, "registration", "1")

	err := NewApprovalHandler(nil, nil).Reject(c)
	if !errors.Is(err, domain.ErrEmptyReason) {
		t.Fatalf("expected ErrEmptyReason, got %v", err)
	}
	if len(gw.rejected) != 0 {
		t.Fatalf("gateway must not be called")
	}
	if len(ws.Approvals.Snapshot().Registrations) != 1 {
		t.Fatalf("list must be unchanged")
	}
}

func TestApprovalHandler_Reject_Failure(t *testing.T) {
	gw := &stubGateway{pending: samplePending(), mutateErr: errUpstream}
	ws := newWorkspace(t, gw, domain.RoleAdmin)
	_ = ws.Approvals.FetchPending(context.Background())

	c, _ := newContext(ws, http.MethodPost, "/api/requests/registration/1/reject", `{"reason":"duplicate"}`, true)
	withRequestParams(c, "registration", "1")

	if err := NewApprovalHandler(nil, nil).Reject(c); !errors.Is(err, errUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if len(gw.rejected) != 1 || gw.rejected[0] != "duplicate" {
		t.Fatalf("unexpected upstream calls: %+v", gw.rejected)
	}
	view := ws.Approvals.Snapshot()
	if len(view.Registrations) != 1 || view.RegistrationState != service.StateMutationFailed {
		t.Fatalf("expected unchanged list in mutation_failed, got %+v", view)
	}
}

func TestApprovalHandler_Decisions(t *testing.T) {
	log := memory.NewDecisionLog()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []domain.ID{"1", "2", "3"} {
		_ = log.Insert(context.Background(), domain.Decision{
			ID:        string(id),
			RequestID: id,
			Kind:      domain.KindRegistration,
			Outcome:   domain.StatusApproved,
			Succeeded: true,
			DecidedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}

	c, rec := newContext(nil, http.MethodGet, "/api/decisions?limit=2", "", true)
	if err := NewApprovalHandler(nil, log).Decisions(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	var resp decisionsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(resp.Decisions) != 2 || resp.Decisions[0].RequestID != "3" {
		t.Fatalf("expected the two newest decisions, got %+v", resp.Decisions)
	}
}

func TestApprovalHandler_Decisions_BadLimit(t *testing.T) {
	c, _ := newContext(nil, http.MethodGet, "/api/decisions?limit=zero", "", true)
	err := NewApprovalHandler(nil, memory.NewDecisionLog()).Decisions(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestApprovalHandler_Decisions_Disabled(t *testing.T) {
	c, _ := newContext(nil, http.MethodGet, "/api/decisions", "", true)
	err := NewApprovalHandler(nil, nil).Decisions(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestApprovalHandler_Pending_SessionExpired(t *testing.T) {
	gw := &stubGateway{pendingErr: &domain.GatewayError{Op: "pending_requests", Status: http.StatusUnauthorized}}
	ws := newWorkspace(t, gw, domain.RoleSupport)
	c, _ := newContext(ws, http.MethodGet, "/api/pending", "", true)

	err := NewApprovalHandler(nil, nil).Pending(c)
	if !errors.Is(err, domain.ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if ws.Sessions.Get().EffectiveRole() != "" {
		t.Fatalf("expected the session cleared")
	}
	if n := ws.Notices.Drain(); !hasNotice(n, service.NoticeError, "Your session has expired. Please log in again.") {
		t.Fatalf("expected expiry notice, got %+v", n)
	}
}

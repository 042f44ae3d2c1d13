package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/practicebynumbers/portal/internal/api/metrics"
	"github.com/practicebynumbers/portal/internal/core/domain"
	"github.com/practicebynumbers/portal/internal/core/ports"
	"github.com/practicebynumbers/portal/internal/core/service"
)

const (
	defaultDecisionLimit = 50
	maxDecisionLimit     = 200
)

type ApprovalHandler struct {
	flash     *Flash
	decisions ports.DecisionRepository
}

// NewApprovalHandler wires the approval API. decisions may be nil, in which
// case the decision listing answers 404.
func NewApprovalHandler(flash *Flash, decisions ports.DecisionRepository) *ApprovalHandler {
	return &ApprovalHandler{flash: flash, decisions: decisions}
}

type approvalResponse struct {
	service.ApprovalView
	Notices []service.Notice `json:"notices"`
}

type rejectRequest struct {
	Reason string `json:"reason" form:"reason"`
}

type decisionsResponse struct {
	Decisions []domain.Decision `json:"decisions"`
}

// refresh reloads the scope's pending lists and records the outcome.
func refresh(ctx context.Context, ws *service.Workspace) error {
	err := ws.Approvals.FetchPending(ctx)
	if err != nil {
		metrics.PendingFetchTotal.WithLabelValues("error").Inc()
		return err
	}
	metrics.PendingFetchTotal.WithLabelValues("ok").Inc()
	view := ws.Approvals.Snapshot()
	metrics.PendingRequests.WithLabelValues(string(domain.KindRegistration)).Set(float64(len(view.Registrations)))
	metrics.PendingRequests.WithLabelValues(string(domain.KindRoleChange)).Set(float64(len(view.RoleChanges)))
	return nil
}

// Pending refreshes and returns both pending lists.
//
// @Summary      List pending requests
// @Tags         approvals
// @Produce      json
// @Success      200  {object}  approvalResponse
// @Failure      401  {object}  map[string]string  "No session, or the upstream session expired"
// @Failure      403  {object}  map[string]string
// @Failure      502  {object}  map[string]string
// @Router       /api/pending [get]
func (h *ApprovalHandler) Pending(c echo.Context) error {
	ws, err := workspaceOf(c)
	if err != nil {
		return err
	}
	if err := refresh(c.Request().Context(), ws); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, approvalResponse{
		ApprovalView: ws.Approvals.Snapshot(),
		Notices:      notices(c, h.flash, ws),
	})
}

// requestRef reads the :kind and :id path parameters.
func requestRef(c echo.Context) (domain.RequestRef, error) {
	kind, err := domain.ParseRequestKind(c.Param("kind"))
	if err != nil {
		return domain.RequestRef{}, err
	}
	id := c.Param("id")
	if id == "" {
		return domain.RequestRef{}, domain.ErrInvalidRequestRef
	}
	return domain.RequestRef{ID: domain.ID(id), Kind: kind}, nil
}

// Approve accepts a pending request and returns the refreshed lists.
//
// @Summary      Approve a request
// @Tags         approvals
// @Produce      json
// @Param        kind  path      string  true  "registration or role_change"
// @Param        id    path      string  true  "Request id"
// @Success      200   {object}  approvalResponse
// @Failure      400   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Failure      502   {object}  map[string]string
// @Router       /api/requests/{kind}/{id}/approve [post]
func (h *ApprovalHandler) Approve(c echo.Context) error {
	return h.decide(c, "approve", func(ctx context.Context, ws *service.Workspace, ref domain.RequestRef) error {
		return ws.Approvals.Approve(ctx, ref)
	})
}

// Reject declines a pending request. The reason must not be blank.
//
// @Summary      Reject a request
// @Tags         approvals
// @Accept       json
// @Produce      json
// @Param        kind  path      string         true  "registration or role_change"
// @Param        id    path      string         true  "Request id"
// @Param        body  body      rejectRequest  true  "Rejection reason"
// @Success      200   {object}  approvalResponse
// @Failure      400   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Failure      422   {object}  map[string]string
// @Failure      502   {object}  map[string]string
// @Router       /api/requests/{kind}/{id}/reject [post]
func (h *ApprovalHandler) Reject(c echo.Context) error {
	var req rejectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	return h.decide(c, "reject", func(ctx context.Context, ws *service.Workspace, ref domain.RequestRef) error {
		return ws.Approvals.Reject(ctx, ref, req.Reason)
	})
}

func (h *ApprovalHandler) decide(c echo.Context, action string, call func(context.Context, *service.Workspace, domain.RequestRef) error) error {
	ws, err := workspaceOf(c)
	if err != nil {
		return err
	}
	ref, err := requestRef(c)
	if err != nil {
		metrics.DecisionsTotal.WithLabelValues("unknown", action, "invalid").Inc()
		return err
	}

	start := time.Now()
	err = call(c.Request().Context(), ws, ref)
	metrics.DecisionDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())
	metrics.DecisionsTotal.WithLabelValues(string(ref.Kind), action, decisionResult(err)).Inc()
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, approvalResponse{
		ApprovalView: ws.Approvals.Snapshot(),
		Notices:      notices(c, h.flash, ws),
	})
}

func decisionResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrMutationInFlight):
		return "in_flight"
	case errors.Is(err, domain.ErrSessionExpired):
		return "session_expired"
	case errors.Is(err, domain.ErrEmptyReason),
		errors.Is(err, domain.ErrInvalidRequestKind),
		errors.Is(err, domain.ErrInvalidRequestRef):
		return "invalid"
	default:
		return "error"
	}
}

// Decisions lists the most recent journaled decisions, newest first.
//
// @Summary      Recent decisions
// @Tags         approvals
// @Produce      json
// @Param        limit  query     int  false  "Maximum number of records (1-200, default 50)"
// @Success      200    {object}  decisionsResponse
// @Failure      403    {object}  map[string]string
// @Failure      404    {object}  map[string]string
// @Router       /api/decisions [get]
func (h *ApprovalHandler) Decisions(c echo.Context) error {
	if h.decisions == nil {
		return echo.NewHTTPError(http.StatusNotFound, "decision journal disabled")
	}

	limit := defaultDecisionLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = min(n, maxDecisionLimit)
	}

	list, err := h.decisions.Recent(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	if list == nil {
		list = []domain.Decision{}
	}
	return c.JSON(http.StatusOK, decisionsResponse{Decisions: list})
}

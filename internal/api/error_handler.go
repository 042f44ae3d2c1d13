package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/practicebynumbers/portal/internal/api/middleware"
	"github.com/practicebynumbers/portal/internal/core/domain"
	"github.com/practicebynumbers/portal/internal/core/service"
)

// errorResponse is the canonical error envelope for all API errors. Notices
// queued by the failed operation ride along.
type errorResponse struct {
	Error   string           `json:"error"`
	Notices []service.Notice `json:"notices,omitempty"`
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps known domain errors to their appropriate HTTP status codes.
//   - Logs unexpected errors internally without leaking details to the client.
//   - Renders a consistent JSON envelope: {"error": "<message>"}.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, msg := resolveError(err, log, c)
		resp := errorResponse{Error: msg}
		if ws := middleware.WorkspaceFrom(c); ws != nil {
			resp.Notices = ws.Notices.Drain()
		}
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, resp)
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, string) {
	// Echo's own errors (bind failures, 404 from router, etc.)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, fmt.Sprintf("%v", he.Message)
	}

	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid credentials"
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, "not authenticated"
	case errors.Is(err, domain.ErrSessionExpired):
		return http.StatusUnauthorized, "session expired"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "access forbidden"
	case errors.Is(err, domain.ErrMutationInFlight):
		return http.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrEmptyReason),
		errors.Is(err, domain.ErrInvalidRole):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, domain.ErrInvalidRequestKind),
		errors.Is(err, domain.ErrInvalidRequestRef):
		return http.StatusBadRequest, err.Error()
	}

	var ge *domain.GatewayError
	if errors.As(err, &ge) {
		return gatewayStatus(ge, log, c)
	}

	log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Msg("unhandled error")

	return http.StatusInternalServerError, "internal server error"
}

// gatewayStatus passes upstream client errors through and reports
// everything else as a bad or slow gateway.
func gatewayStatus(ge *domain.GatewayError, log zerolog.Logger, c echo.Context) (int, string) {
	if ge.Status >= 400 && ge.Status < 500 {
		return ge.Status, domain.UserMessage(ge, http.StatusText(ge.Status))
	}

	log.Warn().
		Err(ge).
		Str("op", ge.Op).
		Int("upstream_status", ge.Status).
		Str("path", c.Path()).
		Msg("upstream failure")

	if errors.Is(ge, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, "upstream timed out"
	}
	return http.StatusBadGateway, domain.UserMessage(ge, "upstream unavailable")
}

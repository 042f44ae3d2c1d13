package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/practicebynumbers/portal/internal/api/middleware"
	"github.com/practicebynumbers/portal/internal/core/domain"
	"github.com/practicebynumbers/portal/internal/core/service"
)

// workspaceOf returns the scope's workspace injected by the Scope
// middleware. Its absence is a wiring bug, not a client error.
func workspaceOf(c echo.Context) (*service.Workspace, error) {
	ws := middleware.WorkspaceFrom(c)
	if ws == nil {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "client scope not initialised")
	}
	return ws, nil
}

// wantsJSON reports whether the caller is a script rather than a browser
// form post. Browsers get 303 redirects, scripts get the redirect target
// in the body.
func wantsJSON(c echo.Context) bool {
	req := c.Request()
	if strings.Contains(req.Header.Get(echo.HeaderAccept), echo.MIMEApplicationJSON) {
		return true
	}
	return strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON)
}

// notices returns everything the operator has not seen yet: notices carried
// over a redirect first, then the ones queued in this scope.
func notices(c echo.Context, flash *Flash, ws *service.Workspace) []service.Notice {
	out := flash.Take(c)
	out = append(out, ws.Notices.Drain()...)
	if out == nil {
		out = []service.Notice{}
	}
	return out
}

// redirect hands the queued notices to the flash cookie and sends the
// browser to location.
func redirect(c echo.Context, flash *Flash, ws *service.Workspace, location string) error {
	flash.Carry(c, ws.Notices.Drain())
	return c.Redirect(http.StatusSeeOther, location)
}

// fail answers a failed form post with a redirect back to back, or to the
// landing page once the session has expired. Script callers get err,
// rendered by the HTTP error handler.
func fail(c echo.Context, flash *Flash, ws *service.Workspace, err error, back string) error {
	if wantsJSON(c) || back == "" {
		return err
	}
	if errors.Is(err, domain.ErrSessionExpired) {
		back = domain.PathLanding
	}
	return redirect(c, flash, ws, back)
}

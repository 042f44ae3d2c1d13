package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/practicebynumbers/portal/internal/core/domain"
	"github.com/practicebynumbers/portal/internal/core/service"
)

// Page names in view models.
const (
	PageLanding         = "landing"
	PageInbox           = "inbox"
	PageAdminDashboard  = "admin_dashboard"
	PageSuperAdmin      = "super_admin_dashboard"
	PageLogoutConfirmed = "logout"
)

// PageHandler serves the outer routes as JSON view models. Role checks
// happen in the route guard before these run.
type PageHandler struct {
	flash *Flash
}

func NewPageHandler(flash *Flash) *PageHandler {
	return &PageHandler{flash: flash}
}

type listView struct {
	Requests []domain.PendingRequest `json:"requests"`
	State    service.ListState       `json:"state"`
}

type approvalsView struct {
	Registrations *listView `json:"registrations,omitempty"`
	RoleChanges   *listView `json:"role_changes,omitempty"`
	IsLoading     bool      `json:"is_loading"`
	IsProcessing  bool      `json:"is_processing"`
	LoadFailed    bool      `json:"load_failed"`
}

type link struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

type pageResponse struct {
	Page      string           `json:"page"`
	Session   domain.Session   `json:"session"`
	Home      string           `json:"home,omitempty"`
	Approvals *approvalsView   `json:"approvals,omitempty"`
	Links     []link           `json:"links,omitempty"`
	Notices   []service.Notice `json:"notices"`
}

func (h *PageHandler) render(c echo.Context, ws *service.Workspace, page pageResponse) error {
	page.Session = ws.Sessions.Get()
	page.Notices = notices(c, h.flash, ws)
	return c.JSON(http.StatusOK, page)
}

// Landing is the login/signup surface. A logged-in visitor is pointed at
// their home page but not redirected.
//
// @Summary      Landing page
// @Tags         pages
// @Produce      json
// @Success      200  {object}  pageResponse
// @Router       / [get]
func (h *PageHandler) Landing(c echo.Context) error {
	ws, err := workspaceOf(c)
	if err != nil {
		return err
	}
	page := pageResponse{Page: PageLanding}
	if role := ws.Sessions.Get().EffectiveRole(); role != "" {
		page.Home = domain.HomePath(role)
	}
	return h.render(c, ws, page)
}

// Inbox is the practice user's home.
//
// @Summary      Practice user inbox
// @Tags         pages
// @Produce      json
// @Success      200  {object}  pageResponse
// @Success      303  "Redirect chosen by the route guard"
// @Router       /inbox [get]
func (h *PageHandler) Inbox(c echo.Context) error {
	ws, err := workspaceOf(c)
	if err != nil {
		return err
	}
	return h.render(c, ws, pageResponse{Page: PageInbox})
}

// AdminDashboard shows the pending registrations.
//
// @Summary      Admin dashboard
// @Tags         pages
// @Produce      json
// @Success      200  {object}  pageResponse
// @Success      303  "Redirect chosen by the route guard, or to / when the upstream session is gone"
// @Router       /admin-dashboard [get]
func (h *PageHandler) AdminDashboard(c echo.Context) error {
	ws, err := workspaceOf(c)
	if err != nil {
		return err
	}
	// A failed fetch still renders: the lists are empty and load_failed is
	// set. Only a lost upstream session leaves the page.
	if err := refresh(c.Request().Context(), ws); errors.Is(err, domain.ErrSessionExpired) {
		return redirect(c, h.flash, ws, domain.PathLanding)
	}
	view := ws.Approvals.Snapshot()

	return h.render(c, ws, pageResponse{
		Page: PageAdminDashboard,
		Approvals: &approvalsView{
			Registrations: &listView{Requests: view.Registrations, State: view.RegistrationState},
			IsLoading:     view.IsLoading,
			IsProcessing:  view.IsProcessing,
			LoadFailed:    view.LoadFailed,
		},
	})
}

// SuperAdminDashboard shows both pending lists.
//
// @Summary      Support dashboard
// @Tags         pages
// @Produce      json
// @Success      200  {object}  pageResponse
// @Success      303  "Redirect chosen by the route guard, or to / when the upstream session is gone"
// @Router       /super-admin-dashboard [get]
func (h *PageHandler) SuperAdminDashboard(c echo.Context) error {
	ws, err := workspaceOf(c)
	if err != nil {
		return err
	}
	if err := refresh(c.Request().Context(), ws); errors.Is(err, domain.ErrSessionExpired) {
		return redirect(c, h.flash, ws, domain.PathLanding)
	}
	view := ws.Approvals.Snapshot()

	return h.render(c, ws, pageResponse{
		Page: PageSuperAdmin,
		Approvals: &approvalsView{
			Registrations: &listView{Requests: view.Registrations, State: view.RegistrationState},
			RoleChanges:   &listView{Requests: view.RoleChanges, State: view.RoleChangeState},
			IsLoading:     view.IsLoading,
			IsProcessing:  view.IsProcessing,
			LoadFailed:    view.LoadFailed,
		},
	})
}

// LogoutConfirmed is shown after logout and links back to the landing page.
//
// @Summary      Logged out
// @Tags         pages
// @Produce      json
// @Success      200  {object}  pageResponse
// @Router       /logout [get]
func (h *PageHandler) LogoutConfirmed(c echo.Context) error {
	ws, err := workspaceOf(c)
	if err != nil {
		return err
	}
	return h.render(c, ws, pageResponse{
		Page:  PageLogoutConfirmed,
		Links: []link{{Rel: "login", Href: domain.PathLanding}},
	})
}

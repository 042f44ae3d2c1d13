package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/practicebynumbers/portal/internal/api/metrics"
	"github.com/practicebynumbers/portal/internal/core/domain"
	"github.com/practicebynumbers/portal/internal/core/ports"
	"github.com/practicebynumbers/portal/internal/core/service"
)

// ScopeDropper forgets the in-memory state of a client scope.
type ScopeDropper interface {
	Drop(scope string)
}

type AuthHandler struct {
	flash  *Flash
	scopes ScopeDropper
}

func NewAuthHandler(flash *Flash, scopes ScopeDropper) *AuthHandler {
	return &AuthHandler{flash: flash, scopes: scopes}
}

type loginRequest struct {
	Username string `json:"username" form:"username" validate:"required"`
	Password string `json:"password" form:"password" validate:"required"`
}

type signupRequest struct {
	Username          string `json:"username"            form:"username"            validate:"required,max=150"`
	FullName          string `json:"full_name"           form:"full_name"           validate:"required"`
	Email             string `json:"email"               form:"email"               validate:"required,email"`
	Password          string `json:"password"            form:"password"            validate:"required,min=8"`
	DesiredPracticeID string `json:"desired_practice_id" form:"desired_practice_id" validate:"required"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" form:"old_password" validate:"required"`
	NewPassword string `json:"new_password" form:"new_password" validate:"required,min=8,nefield=OldPassword"`
}

type roleChangeRequest struct {
	RequestedRole string `json:"requested_role" form:"requested_role" validate:"required"`
	Reason        string `json:"reason"         form:"reason"`
}

type actionResponse struct {
	Session  *domain.Session  `json:"session,omitempty"`
	Redirect string           `json:"redirect,omitempty"`
	Notices  []service.Notice `json:"notices"`
}

// bindForm binds and validates req. Validation problems become an error
// notice so a redirected browser sees them too.
func bindForm(c echo.Context, ws *service.Workspace, req any) error {
	if err := c.Bind(req); err != nil {
		ws.Notices.Error("Invalid form submission")
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(req); err != nil {
		if he, ok := err.(*echo.HTTPError); ok {
			if msg, ok := he.Message.(string); ok {
				ws.Notices.Error(msg)
			}
		}
		return err
	}
	return nil
}

// Login authenticates against the upstream API and opens the session.
//
// @Summary      Login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Login credentials"
// @Success      200   {object}  actionResponse
// @Success      303   "Redirect to the role's home page (form posts)"
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	ws, err := workspaceOf(c)
	if err != nil {
		return err
	}
	var req loginRequest
	if err := bindForm(c, ws, &req); err != nil {
		return fail(c, h.flash, ws, err, domain.PathLanding)
	}

	sess, home, err := ws.Auth.Login(c.Request().Context(), ports.Credentials{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		metrics.LoginsTotal.WithLabelValues("error", "").Inc()
		return fail(c, h.flash, ws, err, domain.PathLanding)
	}
	metrics.LoginsTotal.WithLabelValues("ok", string(sess.Role)).Inc()

	if !wantsJSON(c) {
		return redirect(c, h.flash, ws, home)
	}
	return c.JSON(http.StatusOK, actionResponse{
		Session:  &sess,
		Redirect: home,
		Notices:  notices(c, h.flash, ws),
	})
}

// Logout closes the session locally and forgets the scope's cached lists.
//
// @Summary      Logout
// @Tags         auth
// @Produce      json
// @Success      200  {object}  actionResponse
// @Success      303  "Redirect to /logout (form posts)"
// @Router       /auth/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	ws, err := workspaceOf(c)
	if err != nil {
		return err
	}
	ws.Auth.Logout(c.Request().Context())
	if h.scopes != nil {
		h.scopes.Drop(ws.Scope)
	}

	if !wantsJSON(c) {
		return redirect(c, h.flash, ws, domain.PathLogout)
	}
	empty := ws.Sessions.Get()
	return c.JSON(http.StatusOK, actionResponse{
		Session:  &empty,
		Redirect: domain.PathLogout,
		Notices:  notices(c, h.flash, ws),
	})
}

// Signup files a registration request upstream.
//
// @Summary      Sign up
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      signupRequest  true  "Registration details"
// @Success      201   {object}  actionResponse
// @Success      303   "Redirect to the login page (form posts)"
// @Failure      400   {object}  map[string]string
// @Failure      502   {object}  map[string]string
// @Router       /auth/signup [post]
func (h *AuthHandler) Signup(c echo.Context) error {
	ws, err := workspaceOf(c)
	if err != nil {
		return err
	}
	var req signupRequest
	if err := bindForm(c, ws, &req); err != nil {
		return fail(c, h.flash, ws, err, domain.PathLanding)
	}

	if err := ws.Auth.Signup(c.Request().Context(), ports.SignupInput{
		Username:          req.Username,
		FullName:          req.FullName,
		Email:             req.Email,
		Password:          req.Password,
		DesiredPracticeID: req.DesiredPracticeID,
	}); err != nil {
		return fail(c, h.flash, ws, err, domain.PathLanding)
	}

	if !wantsJSON(c) {
		return redirect(c, h.flash, ws, domain.PathLanding)
	}
	return c.JSON(http.StatusCreated, actionResponse{
		Redirect: domain.PathLanding,
		Notices:  notices(c, h.flash, ws),
	})
}

// ChangePassword changes the logged-in user's password.
//
// @Summary      Change password
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      changePasswordRequest  true  "Old and new password"
// @Success      200   {object}  actionResponse
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Router       /auth/change-password [post]
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	ws, err := workspaceOf(c)
	if err != nil {
		return err
	}
	back := domain.HomePath(ws.Sessions.Get().EffectiveRole())

	var req changePasswordRequest
	if err := bindForm(c, ws, &req); err != nil {
		return fail(c, h.flash, ws, err, back)
	}
	if err := ws.Auth.ChangePassword(c.Request().Context(), req.OldPassword, req.NewPassword); err != nil {
		return fail(c, h.flash, ws, err, back)
	}

	if !wantsJSON(c) {
		return redirect(c, h.flash, ws, back)
	}
	return c.JSON(http.StatusOK, actionResponse{Notices: notices(c, h.flash, ws)})
}

// RequestRoleChange asks for a different role for the logged-in user.
//
// @Summary      Request a role change
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      roleChangeRequest  true  "Requested role"
// @Success      202   {object}  actionResponse
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      422   {object}  map[string]string
// @Router       /auth/role-change [post]
func (h *AuthHandler) RequestRoleChange(c echo.Context) error {
	ws, err := workspaceOf(c)
	if err != nil {
		return err
	}
	back := domain.HomePath(ws.Sessions.Get().EffectiveRole())

	var req roleChangeRequest
	if err := bindForm(c, ws, &req); err != nil {
		return fail(c, h.flash, ws, err, back)
	}
	if err := ws.Auth.RequestRoleChange(c.Request().Context(), ports.RoleChangeInput{
		RequestedRole: domain.Role(req.RequestedRole),
		Reason:        req.Reason,
	}); err != nil {
		return fail(c, h.flash, ws, err, back)
	}

	if !wantsJSON(c) {
		return redirect(c, h.flash, ws, back)
	}
	return c.JSON(http.StatusAccepted, actionResponse{Notices: notices(c, h.flash, ws)})
}

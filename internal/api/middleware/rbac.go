package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/practicebynumbers/portal/internal/core/domain"
)

// RequireRole guards API routes: 401 without a logged-in session, 403 for a
// role outside allowed.
func RequireRole(allowed ...domain.Role) echo.MiddlewareFunc {
	set := make(map[domain.Role]struct{}, len(allowed))
	for _, r := range allowed {
		set[r] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role := roleOf(c)
			if role == "" || !role.Known() {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
			}
			if _, ok := set[role]; !ok {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden"})
			}
			return next(c)
		}
	}
}

// RequireSession lets any logged-in role through.
func RequireSession() echo.MiddlewareFunc {
	return RequireRole(domain.RolePracticeUser, domain.RoleAdmin, domain.RoleSupport)
}

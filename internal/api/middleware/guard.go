package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/practicebynumbers/portal/internal/api/metrics"
	"github.com/practicebynumbers/portal/internal/core/policy"
)

// Guard applies the role policy to a page route. Anything but Allow is
// answered with 303 See Other, so the denied URL never becomes a history
// entry. The guard never fetches data.
func Guard(log zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Path()
			role := roleOf(c)
			d := policy.Decide(role, path)
			metrics.GuardDecisionsTotal.WithLabelValues(path, d.Kind.String()).Inc()

			if d.Kind == policy.Allow {
				return next(c)
			}

			log.Debug().
				Str("path", path).
				Str("role", string(role)).
				Str("decision", d.Kind.String()).
				Str("location", d.Location()).
				Msg("route guard redirect")
			return c.Redirect(http.StatusSeeOther, d.Location())
		}
	}
}

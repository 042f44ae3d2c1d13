package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/practicebynumbers/portal/internal/api/metrics"
	"github.com/practicebynumbers/portal/internal/core/domain"
	"github.com/practicebynumbers/portal/internal/core/service"
)

const (
	ScopeCookie = "portal_scope"
	scopeIssuer = "practice-portal"

	scopeKey     = "scope"
	workspaceKey = "workspace"

	defaultScopeMaxAge = 365 * 24 * time.Hour
)

// WorkspaceRegistry resolves a client scope to its workspace.
type WorkspaceRegistry interface {
	Get(ctx context.Context, scope string) *service.Workspace
}

type ScopeConfig struct {
	Secret     []byte
	Workspaces WorkspaceRegistry
	// Secure marks the cookie HTTPS-only.
	Secure  bool
	MaxAge  time.Duration
	Skipper echomiddleware.Skipper
	Log     zerolog.Logger
}

// Scope identifies the browser by a signed cookie and injects its
// workspace into the context. A missing or tampered cookie gets a fresh
// scope.
func Scope(cfg ScopeConfig) echo.MiddlewareFunc {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = defaultScopeMaxAge
	}
	if cfg.Skipper == nil {
		cfg.Skipper = echomiddleware.DefaultSkipper
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper(c) {
				return next(c)
			}

			scope, err := readScope(c, cfg.Secret)
			if err != nil {
				if !errors.Is(err, http.ErrNoCookie) {
					cfg.Log.Debug().Err(err).Msg("scope cookie rejected, issuing a new one")
				}
				scope = uuid.NewString()
				signed, err := IssueScope(cfg.Secret, scope, time.Now())
				if err != nil {
					return err
				}
				c.SetCookie(&http.Cookie{
					Name:     ScopeCookie,
					Value:    signed,
					Path:     "/",
					MaxAge:   int(cfg.MaxAge.Seconds()),
					HttpOnly: true,
					Secure:   cfg.Secure,
					SameSite: http.SameSiteLaxMode,
				})
				metrics.ScopesIssuedTotal.Inc()
			}

			SetWorkspace(c, scope, cfg.Workspaces.Get(c.Request().Context(), scope))
			return next(c)
		}
	}
}

// IssueScope signs scope into a cookie value.
func IssueScope(secret []byte, scope string, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:   scopeIssuer,
		Subject:  scope,
		IssuedAt: jwt.NewNumericDate(now),
	})
	return token.SignedString(secret)
}

func readScope(c echo.Context, secret []byte) (string, error) {
	cookie, err := c.Cookie(ScopeCookie)
	if err != nil {
		return "", err
	}

	claims := &jwt.RegisteredClaims{}
	tkn, err := jwt.ParseWithClaims(cookie.Value, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(scopeIssuer),
	)
	if err != nil {
		return "", err
	}
	if !tkn.Valid {
		return "", jwt.ErrTokenSignatureInvalid
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// SetWorkspace binds a client scope and its workspace to the request.
func SetWorkspace(c echo.Context, scope string, ws *service.Workspace) {
	c.Set(scopeKey, scope)
	c.Set(workspaceKey, ws)
}

// WorkspaceFrom returns the workspace injected by Scope, or nil.
func WorkspaceFrom(c echo.Context) *service.Workspace {
	ws, _ := c.Get(workspaceKey).(*service.Workspace)
	return ws
}

// ScopeFrom returns the client scope injected by Scope.
func ScopeFrom(c echo.Context) string {
	s, _ := c.Get(scopeKey).(string)
	return s
}

// roleOf is the routing role of the request: none without a workspace or
// with an inconsistent session.
func roleOf(c echo.Context) domain.Role {
	ws := WorkspaceFrom(c)
	if ws == nil {
		return ""
	}
	return ws.Sessions.Get().EffectiveRole()
}

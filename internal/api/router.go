package api

import (
	"strings"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.mongodb.org/mongo-driver/mongo"

	_ "github.com/practicebynumbers/portal/internal/api/docs" // swagger spec
	"github.com/practicebynumbers/portal/internal/api/handler"
	"github.com/practicebynumbers/portal/internal/api/middleware"
	"github.com/practicebynumbers/portal/internal/core/domain"
	"github.com/practicebynumbers/portal/internal/core/ports"
	"github.com/practicebynumbers/portal/internal/core/service"
)

// RouterDeps is everything NewRouter wires. Mongo, Redis and Decisions are
// optional.
type RouterDeps struct {
	Workspaces    *service.Workspaces
	Decisions     ports.DecisionRepository
	ScopeSecret   []byte
	FlashSecret   []byte
	SecureCookies bool

	Mongo *mongo.Database
	Redis *redis.Client

	// Registerer and Gatherer default to the global Prometheus registry.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer

	Log zerolog.Logger
}

// infraPaths bypass the client scope.
var infraPaths = []string{"/health", "/metrics", "/swagger"}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps RouterDeps) *echo.Echo {
	if deps.Registerer == nil {
		deps.Registerer = prometheus.DefaultRegisterer
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(deps.Log))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace:  "portal",
		Registerer: deps.Registerer,
		Skipper:    isInfraPath,
	}))
	e.Use(middleware.Scope(middleware.ScopeConfig{
		Secret:     deps.ScopeSecret,
		Workspaces: deps.Workspaces,
		Secure:     deps.SecureCookies,
		Skipper:    isInfraPath,
		Log:        deps.Log,
	}))

	// --- Dependencies ---
	flash := handler.NewFlash(deps.FlashSecret, deps.SecureCookies, deps.Log)
	authHandler := handler.NewAuthHandler(flash, deps.Workspaces)
	approvalHandler := handler.NewApprovalHandler(flash, deps.Decisions)
	pageHandler := handler.NewPageHandler(flash)
	guard := middleware.Guard(deps.Log)

	// --- Pages ---
	e.GET(domain.PathLanding, pageHandler.Landing)
	e.GET(domain.PathLogout, pageHandler.LogoutConfirmed)
	e.GET(domain.PathInbox, pageHandler.Inbox, guard)
	e.GET(domain.PathAdminDashboard, pageHandler.AdminDashboard, guard)
	e.GET(domain.PathSuperAdminDashboard, pageHandler.SuperAdminDashboard, guard)

	// --- Auth routes ---
	auth := e.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/logout", authHandler.Logout)
	auth.POST("/signup", authHandler.Signup)
	auth.POST("/change-password", authHandler.ChangePassword, middleware.RequireSession())
	auth.POST("/role-change", authHandler.RequestRoleChange, middleware.RequireSession())

	// --- Approval API ---
	approvals := e.Group("/api", middleware.RequireRole(domain.RoleAdmin, domain.RoleSupport))
	approvals.GET("/pending", approvalHandler.Pending)
	approvals.POST("/requests/:kind/:id/approve", approvalHandler.Approve)
	approvals.POST("/requests/:kind/:id/reject", approvalHandler.Reject)
	approvals.GET("/decisions", approvalHandler.Decisions, middleware.RequireRole(domain.RoleSupport))

	// --- Health probes, metrics and docs (no scope) ---
	healthHandler := handler.NewHealthHandler()
	healthDepsHandler := handler.NewHealthDependenciesHandler(deps.Mongo, deps.Redis)

	e.GET("/health", healthHandler.Liveness)            // liveness  – is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness – are dependencies up?
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: deps.Gatherer}))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}

func isInfraPath(c echo.Context) bool {
	p := c.Request().URL.Path
	for _, prefix := range infraPaths {
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	return false
}

func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		Skipper:      isInfraPath,
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Error != nil {
				ev = log.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}

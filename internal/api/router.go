package api

import (
	"context"
	"net"
	"net/http"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/mailgate/gate-service/internal/api/handler"
	"github.com/mailgate/gate-service/internal/api/middleware"
	"github.com/mailgate/gate-service/internal/core/domain"
	"github.com/mailgate/gate-service/internal/core/ports"
	"github.com/mailgate/gate-service/internal/infrastructure/http/handlers"
)

// RouterDeps carries everything NewRouter wires into routes.
type RouterDeps struct {
	Gateway ports.GatewayService
	Log     zerolog.Logger

	// TrustedProxies are the only peers whose X-Forwarded-For entries are
	// believed. Empty means the TCP peer is the client.
	TrustedProxies []*net.IPNet

	// RegionHeader names the proxy header carrying the client's country code.
	RegionHeader string
	CORSOrigins  []string

	RateLimit middleware.RateLimitConfig

	// Admin routes are registered only when AdminSecret is set. Auth adds
	// operator login and registration.
	AdminSecret string
	Admin       *handler.AdminHandler
	Auth        *handler.AuthHandler

	ReadinessChecks map[string]handlers.Check

	// Registerer and Gatherer default to the prometheus globals.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps RouterDeps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.IPExtractor = clientIPExtractor(deps.TrustedProxies)
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)

	registerer := deps.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	origins := deps.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(middleware.RequestLogger(deps.Log))
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
	}))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace:  "gate",
		Subsystem:  "http",
		Registerer: registerer,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics"
		},
	}))

	// --- Health probes and metrics (no auth required) ---
	e.GET("/health", handlers.NewHealthHandler().Liveness)
	e.GET("/health/ready", handlers.NewHealthDependenciesHandler(deps.ReadinessChecks).Readiness)
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: gatherer}))

	// --- Gate routes ---
	gate := handler.NewGateHandler(deps.Gateway, deps.RegionHeader)
	limit := middleware.RateLimit(deps.RateLimit)
	e.POST("/verify", gate.Verify, limit)
	e.POST("/api/check-email", gate.Verify, limit)
	e.GET("/forward", gate.Forward, limit)
	e.GET("/forward/:token", gate.Forward, limit)

	// --- Admin routes ---
	if deps.AdminSecret != "" && deps.Admin != nil {
		if deps.Auth != nil {
			e.POST("/admin/login", deps.Auth.Login, limit)
		}

		admin := e.Group("/admin", middleware.Auth(deps.AdminSecret))
		admin.GET("/stats", deps.Admin.Stats, middleware.RBAC(domain.RoleAdmin, domain.RoleViewer))
		admin.POST("/allowlist/reload", deps.Admin.ReloadAllowlist, middleware.RBAC(domain.RoleAdmin))
		if deps.Auth != nil {
			admin.POST("/operators", deps.Auth.Register, middleware.RBAC(domain.RoleAdmin))
		}
	}

	return e
}

// clientIPExtractor decides what c.RealIP returns, and with it the key for
// rate limiting, the blocked-address check and the remote IP sent with the
// proof. Forwarding headers are only read from configured proxies.
func clientIPExtractor(trusted []*net.IPNet) echo.IPExtractor {
	if len(trusted) == 0 {
		return echo.ExtractIPDirect()
	}
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, r := range trusted {
		opts = append(opts, echo.TrustIPRange(r))
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}

// AllowlistLoadedCheck reports unhealthy until the allow-list has loaded once.
func AllowlistLoadedCheck(info handler.AllowlistInfo) handlers.Check {
	return func(context.Context) error {
		if info.LoadedAt().IsZero() {
			return domain.ErrAllowlistUnavailable
		}
		return nil
	}
}

// Package api is the HTTP front door: alert submission, history queries,
// health, the dashboard WebSocket, and Prometheus metrics, served on a
// single echo instance.
package api

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/tarsy-bot/tarsy/pkg/alert"
	"github.com/tarsy-bot/tarsy/pkg/config"
	"github.com/tarsy-bot/tarsy/pkg/database"
	"github.com/tarsy-bot/tarsy/pkg/events"
	"github.com/tarsy-bot/tarsy/pkg/mcp"
	"github.com/tarsy-bot/tarsy/pkg/metrics"
	"github.com/tarsy-bot/tarsy/pkg/services"
)

// Deps carries the optional server dependencies. Any of them may be nil;
// the corresponding endpoints degrade instead of failing at startup.
type Deps struct {
	DBClient       *database.Client
	ConnManager    *events.ConnectionManager
	HealthMonitor  *mcp.HealthMonitor
	WarningService *services.SystemWarningsService
}

// Server owns the echo instance and the http.Server wrapping it.
type Server struct {
	cfg      *config.Config
	settings *config.Settings
	alerts   *alert.Service
	history  *services.HistoryService

	dbClient       *database.Client
	connManager    *events.ConnectionManager
	healthMonitor  *mcp.HealthMonitor
	warningService *services.SystemWarningsService

	echo         *echo.Echo
	httpServer   *http.Server
	dashboardDir string
}

// NewServer wires the routes and middleware. Call Start to begin serving.
func NewServer(
	cfg *config.Config,
	settings *config.Settings,
	alerts *alert.Service,
	history *services.HistoryService,
	deps Deps,
) *Server {
	e := echo.New()

	s := &Server{
		cfg:            cfg,
		settings:       settings,
		alerts:         alerts,
		history:        history,
		dbClient:       deps.DBClient,
		connManager:    deps.ConnManager,
		healthMonitor:  deps.HealthMonitor,
		warningService: deps.WarningService,
		echo:           e,
	}

	e.Use(recoverMiddleware())
	e.Use(requestLogger())
	e.Use(corsMiddleware(settings.CORSOrigins))
	e.Use(securityHeaders())

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	e := s.echo

	e.GET("/", s.livenessHandler)
	e.GET("/health", s.healthHandler)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	e.POST("/alerts", s.submitAlertHandler)
	e.GET("/session-id/:alert_id", s.sessionIDHandler)
	e.GET("/alert-types", s.alertTypesHandler)

	e.GET("/api/v1/history/sessions", s.listSessionsHandler)
	e.GET("/api/v1/history/sessions/:id", s.sessionDetailHandler)
	e.GET("/api/v1/history/filter-options", s.filterOptionsHandler)
	e.GET("/api/v1/history/active-sessions", s.activeSessionsHandler)

	e.GET("/api/v1/system/warnings", s.systemWarningsHandler)
	e.GET("/api/v1/system/mcp-servers", s.mcpServersHandler)

	e.GET("/ws/dashboard/:user_id", s.wsHandler)
}

// SetDashboardDir enables serving the built dashboard SPA from dir.
// No-op when dir is empty or has no index.html.
func (s *Server) SetDashboardDir(dir string) {
	s.dashboardDir = dir
	s.setupDashboardRoutes()
}

// setupDashboardRoutes registers static asset serving plus the SPA
// fallback. Registered API routes keep priority over the wildcard.
func (s *Server) setupDashboardRoutes() {
	if s.dashboardDir == "" {
		return
	}
	index := filepath.Join(s.dashboardDir, "index.html")
	if _, err := os.Stat(index); err != nil {
		return
	}

	s.echo.GET("/*", func(c *echo.Context) error {
		reqPath := c.Request().URL.Path

		// Never shadow API or WebSocket paths with the SPA.
		if strings.HasPrefix(reqPath, "/api/") || strings.HasPrefix(reqPath, "/ws/") {
			return echo.NewHTTPError(http.StatusNotFound, "not found")
		}

		// Hashed build assets are immutable; everything else must revalidate
		// so deployments pick up new asset hashes.
		if strings.HasPrefix(reqPath, "/assets/") {
			full := filepath.Join(s.dashboardDir, filepath.Clean(reqPath))
			if info, err := os.Stat(full); err == nil && !info.IsDir() {
				c.Response().Header().Set("Cache-Control", "public, max-age=31536000, immutable")
				return c.File(full)
			}
			return echo.NewHTTPError(http.StatusNotFound, "not found")
		}

		c.Response().Header().Set("Cache-Control", "no-cache")
		full := filepath.Join(s.dashboardDir, filepath.Clean(reqPath))
		if info, err := os.Stat(full); err == nil && !info.IsDir() {
			return c.File(full)
		}
		return c.File(index)
	})
}

// Handler exposes the routed handler for tests that serve over httptest.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start begins serving and blocks until the listener closes.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

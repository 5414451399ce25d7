package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/tarsy-bot/tarsy/pkg/models"
	"github.com/tarsy-bot/tarsy/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"
)

// livenessHandler handles GET /. Always succeeds while the process serves.
func (s *Server) livenessHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"service": version.AppName,
		"version": version.GitCommit,
	})
}

// healthHandler handles GET /health.
// Only tarsy's own components are checked. External dependencies (MCP
// servers, LLM providers) at most degrade the status so an orchestrator
// never restarts tarsy because a third-party service is down.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]HealthCheck)
	status := healthStatusHealthy
	resp := &HealthResponse{
		Version:     version.GitCommit,
		TimestampUs: models.NowUs(),
		Services:    checks,
	}

	if s.history != nil && s.history.Enabled() {
		checks["history"] = HealthCheck{Status: healthStatusHealthy, Message: "enabled"}
		if s.dbClient != nil {
			dbHealth, err := s.dbClient.Health(reqCtx)
			resp.Database = dbHealth
			if err != nil {
				status = healthStatusUnhealthy
				checks["database"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
			} else {
				checks["database"] = HealthCheck{Status: healthStatusHealthy}
			}
		}
	} else {
		// The engine runs without an audit trail; degraded, not broken.
		status = healthStatusDegraded
		checks["history"] = HealthCheck{Status: healthStatusDegraded, Message: "disabled"}
	}

	if s.healthMonitor != nil && !s.healthMonitor.IsHealthy() {
		if status == healthStatusHealthy {
			status = healthStatusDegraded
		}
		checks["mcp_servers"] = HealthCheck{Status: healthStatusDegraded, Message: "one or more MCP servers unhealthy"}
	} else if s.healthMonitor != nil {
		checks["mcp_servers"] = HealthCheck{Status: healthStatusHealthy}
	}

	if s.cfg != nil {
		stats := s.cfg.Stats()
		resp.Configuration = ConfigurationStats{
			Agents:       stats.Agents,
			Chains:       stats.Chains,
			MCPServers:   stats.MCPServers,
			LLMProviders: stats.LLMProviders,
			AlertTypes:   stats.AlertTypes,
		}
	}

	resp.Status = status
	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	return c.JSON(httpStatus, resp)
}

package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/tarsy-bot/tarsy/pkg/models"
)

var validSessionStatuses = map[string]bool{
	string(models.SessionStatusPending):    true,
	string(models.SessionStatusInProgress): true,
	string(models.SessionStatusCompleted):  true,
	string(models.SessionStatusFailed):     true,
}

// listSessionsHandler handles GET /api/v1/history/sessions.
func (s *Server) listSessionsHandler(c *echo.Context) error {
	page := models.PageParams{Page: 1, PageSize: 20}

	if v := c.QueryParam("page"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			page.Page = p
		}
	}
	if v := c.QueryParam("page_size"); v != "" {
		if ps, err := strconv.Atoi(v); err == nil && ps > 0 && ps <= 100 {
			page.PageSize = ps
		}
	}

	var filters models.SessionFilters
	if v := c.QueryParam("status"); v != "" {
		// Validate each comma-separated status.
		for _, st := range strings.Split(v, ",") {
			if !validSessionStatuses[st] {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid status: "+st)
			}
		}
		filters.Status = v
	}
	filters.AlertType = c.QueryParam("alert_type")
	filters.AgentType = c.QueryParam("agent_type")
	if v := c.QueryParam("search"); v != "" {
		if len(v) < 3 {
			return echo.NewHTTPError(http.StatusBadRequest, "search query must be at least 3 characters")
		}
		filters.Search = v
	}

	if v := c.QueryParam("start_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid start_date: must be RFC3339")
		}
		us := t.UnixMicro()
		filters.StartDateUs = &us
	}
	if v := c.QueryParam("end_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid end_date: must be RFC3339")
		}
		us := t.UnixMicro()
		filters.EndDateUs = &us
	}

	result, err := s.history.ListSessions(c.Request().Context(), filters, page)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// sessionDetailHandler handles GET /api/v1/history/sessions/:id, returning
// the session with its full assembled timeline.
func (s *Server) sessionDetailHandler(c *echo.Context) error {
	sessionID := c.Param("id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}

	timeline, err := s.history.GetSessionTimeline(c.Request().Context(), sessionID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, timeline)
}

// filterOptionsHandler handles GET /api/v1/history/filter-options.
func (s *Server) filterOptionsHandler(c *echo.Context) error {
	options, err := s.history.ListFilterOptions(c.Request().Context())
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, options)
}

// activeSessionsHandler handles GET /api/v1/history/active-sessions.
func (s *Server) activeSessionsHandler(c *echo.Context) error {
	sessions, err := s.history.ListActiveSessions(c.Request().Context())
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"sessions": sessions})
}

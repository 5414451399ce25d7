package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v5"

	"github.com/tarsy-bot/tarsy/pkg/agent"
	"github.com/tarsy-bot/tarsy/pkg/models"
)

// submitAlertHandler handles POST /alerts. Validates, sanitizes, and hands
// the alert to the orchestrator; returns immediately with the issued alert
// id and queued/duplicate status.
func (s *Server) submitAlertHandler(c *echo.Context) error {
	req := c.Request()

	if req.ContentLength > agent.MaxAlertDataSize {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("alert payload exceeds maximum size of %d bytes", agent.MaxAlertDataSize))
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Response(), req.Body, agent.MaxAlertDataSize))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
				fmt.Sprintf("alert payload exceeds maximum size of %d bytes", agent.MaxAlertDataSize))
		}
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "Empty request body")
	}

	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "request body is not valid JSON")
	}
	if _, ok := raw.(map[string]any); !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "request body must be a JSON object")
	}

	var sub SubmitAlertRequest
	if err := json.Unmarshal(body, &sub); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return c.JSON(http.StatusUnprocessableEntity, &ValidationErrorResponse{
				Message: "alert validation failed",
				Errors: []FieldError{{
					Field:   typeErr.Field,
					Message: fmt.Sprintf("expected %s, got %s", typeErr.Type, typeErr.Value),
				}},
			})
		}
		return echo.NewHTTPError(http.StatusBadRequest, "request body is not valid JSON")
	}

	if strings.TrimSpace(sub.AlertType) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "alert_type is required")
	}
	if strings.TrimSpace(sub.Runbook) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "runbook is required")
	}
	if sub.Data == nil {
		sub.Data = map[string]any{}
	}

	a := models.Alert{
		AlertType: strings.TrimSpace(sub.AlertType),
		Runbook:   strings.TrimSpace(sub.Runbook),
		Data:      sanitizeAlertData(sub.Data),
		Severity:  strings.TrimSpace(sub.Severity),
		Timestamp: sub.Timestamp,
	}
	if a.Timestamp == 0 {
		a.Timestamp = models.NowUs()
	}

	alertID, status, err := s.alerts.Submit(a)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}

	message := "Alert submitted for processing"
	if status == models.ProcessingStatusDuplicate {
		message = "Identical alert is already being processed"
	}

	return c.JSON(http.StatusOK, &AlertResponse{
		AlertID: alertID,
		Status:  string(status),
		Message: message,
	})
}

// sessionIDHandler handles GET /session-id/:alert_id, mapping an issued
// alert id to the session created for it.
func (s *Server) sessionIDHandler(c *echo.Context) error {
	alertID := c.Param("alert_id")
	if alertID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "alert id is required")
	}

	sessionID, ok := s.alerts.SessionIDForAlert(alertID)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "alert not found")
	}

	return c.JSON(http.StatusOK, &SessionIDResponse{
		AlertID:   alertID,
		SessionID: &sessionID,
	})
}

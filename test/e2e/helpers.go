package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tarsy-bot/tarsy/pkg/models"
)

// AlertResponse mirrors the POST /alerts response body.
type AlertResponse struct {
	AlertID string `json:"alert_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// DefaultAlert is a routable kubernetes alert submission.
func DefaultAlert() map[string]any {
	return map[string]any{
		"alert_type": "kubernetes",
		"runbook":    runbookURL,
		"severity":   "critical",
		"data": map[string]any{
			"alertname": "PodCrashLooping",
			"namespace": "production",
			"pod":       "api-7d4b9c-xk2p1",
		},
	}
}

// SubmitAlert posts the alert and requires HTTP 200.
func (app *TestApp) SubmitAlert(t *testing.T, body map[string]any) AlertResponse {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(app.BaseURL+"/alerts", "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out AlertResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out.AlertID)
	return out
}

// SessionIDForAlert polls GET /session-id until the mapping appears.
func (app *TestApp) SessionIDForAlert(t *testing.T, alertID string) string {
	t.Helper()

	var sessionID string
	require.Eventually(t, func() bool {
		resp, err := http.Get(app.BaseURL + "/session-id/" + alertID)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return false
		}
		var body struct {
			SessionID *string `json:"session_id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.SessionID == nil {
			return false
		}
		sessionID = *body.SessionID
		return true
	}, 10*time.Second, 50*time.Millisecond, "session mapping never appeared for alert %s", alertID)
	return sessionID
}

// WaitForSessionTerminal polls the history API until the session reaches a
// terminal status and returns its timeline.
func (app *TestApp) WaitForSessionTerminal(t *testing.T, sessionID string) *models.SessionTimeline {
	t.Helper()

	var timeline models.SessionTimeline
	require.Eventually(t, func() bool {
		resp, err := http.Get(app.BaseURL + "/api/v1/history/sessions/" + sessionID)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return false
		}
		timeline = models.SessionTimeline{}
		if err := json.NewDecoder(resp.Body).Decode(&timeline); err != nil || timeline.Session == nil {
			return false
		}
		switch timeline.Session.Status {
		case models.SessionStatusCompleted, models.SessionStatusFailed:
			return true
		default:
			return false
		}
	}, 30*time.Second, 100*time.Millisecond, "session %s never reached a terminal status", sessionID)
	return &timeline
}

// ProcessAlert submits the alert and waits for its session to finish.
func (app *TestApp) ProcessAlert(t *testing.T, body map[string]any) *models.SessionTimeline {
	t.Helper()
	submitted := app.SubmitAlert(t, body)
	sessionID := app.SessionIDForAlert(t, submitted.AlertID)
	return app.WaitForSessionTerminal(t, sessionID)
}

// GetJSON fetches path and decodes the response into out, requiring 200.
func (app *TestApp) GetJSON(t *testing.T, path string, out any) {
	t.Helper()

	resp, err := http.Get(app.BaseURL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, "GET %s", path)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

// reactAnswer formats a terminal ReAct response.
func reactAnswer(analysis string) string {
	return fmt.Sprintf("Thought: I have enough evidence.\nFinal Answer: %s", analysis)
}

// reactToolCall formats a ReAct tool invocation.
func reactToolCall(thought, tool, input string) string {
	return fmt.Sprintf("Thought: %s\nAction: %s\nAction Input: %s", thought, tool, input)
}

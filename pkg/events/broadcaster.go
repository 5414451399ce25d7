package events

import (
	"context"
	"encoding/json"

	"github.com/tarsy-bot/tarsy/pkg/hooks"
)

// DashboardBroadcasterName is the hook bus registration name.
const DashboardBroadcasterName = "dashboard"

// Preview limits for interaction content carried over WebSocket. Full
// content stays in the timeline; the live view only needs a teaser.
const (
	llmResponsePreviewLimit = 200
	mcpResultPreviewLimit   = 300
)

// DashboardBroadcaster subscribes to processing hooks and fans each event
// out as WebSocket messages: a compact DashboardUpdate to the dashboard and
// alerts channels, and a SessionUpdate to the event's session channel.
type DashboardBroadcaster struct {
	manager *ConnectionManager
}

// NewDashboardBroadcaster creates the broadcaster over a connection manager.
func NewDashboardBroadcaster(manager *ConnectionManager) *DashboardBroadcaster {
	return &DashboardBroadcaster{manager: manager}
}

// EventNames implements hooks.Subscriber. Pre events for interactions are
// skipped: the dashboard renders an interaction once its outcome is known,
// while stage and session boundaries are interesting as soon as they start.
func (b *DashboardBroadcaster) EventNames() []string {
	return []string{
		hooks.EventLLMPost, hooks.EventLLMError,
		hooks.EventMCPPost, hooks.EventMCPError,
		hooks.EventStagePre, hooks.EventStagePost, hooks.EventStageError,
		hooks.EventSessionPre, hooks.EventSessionPost, hooks.EventSessionError,
	}
}

// Handle implements hooks.Subscriber. Broadcast failures are handled inside
// the connection manager (logged, offending client dropped) and never
// reported back to the bus.
func (b *DashboardBroadcaster) Handle(ctx context.Context, event string, payload *hooks.Payload) error {
	if payload == nil || payload.SessionID == "" {
		return nil
	}

	dashboard, session := translate(event, payload)
	b.manager.BroadcastJSON(DashboardChannel, dashboard)
	b.manager.BroadcastJSON(AlertsChannel, dashboard)
	b.manager.BroadcastJSON(SessionChannel(payload.SessionID), session)
	return nil
}

// translate maps one hook payload to the two broadcast shapes.
func translate(event string, payload *hooks.Payload) (*DashboardUpdate, *SessionUpdate) {
	dashboard := &DashboardUpdate{
		Type:        MessageTypeDashboardUpdate,
		Event:       event,
		SessionID:   payload.SessionID,
		TimestampUs: payload.TimestampUs,
	}
	session := &SessionUpdate{
		Type:             MessageTypeSessionUpdate,
		Event:            event,
		SessionID:        payload.SessionID,
		StageExecutionID: payload.StageExecutionID,
		StepDescription:  payload.StepDescription,
		TimestampUs:      payload.TimestampUs,
	}

	switch {
	case payload.LLM != nil:
		in := payload.LLM
		session.ModelName = in.ModelName
		session.DurationMs = in.DurationMs
		session.Success = boolPtr(in.Success)
		session.ResponsePreview = truncate(llmResponseText(in.ResponseJSON), llmResponsePreviewLimit)
		session.ToolCallCount = len(in.ToolCalls)
		if in.ErrorMessage != nil {
			session.ErrorMessage = *in.ErrorMessage
		}

	case payload.MCP != nil:
		in := payload.MCP
		session.ServerName = in.ServerName
		session.DurationMs = in.DurationMs
		session.Success = boolPtr(in.Success)
		session.ResultPreview = truncate(mcpResultText(in.ToolResult), mcpResultPreviewLimit)
		if in.ToolName != nil {
			session.ToolName = *in.ToolName
		}
		if in.ErrorMessage != nil {
			session.ErrorMessage = *in.ErrorMessage
		}

	case payload.Stage != nil:
		detail := payload.Stage
		dashboard.Status = string(detail.Status)
		dashboard.StageID = detail.StageID
		dashboard.StageName = detail.StageName
		session.Status = string(detail.Status)
		session.StageID = detail.StageID
		session.StageName = detail.StageName
		session.StageIndex = intPtr(detail.StageIndex)
		session.Agent = detail.Agent
		session.ErrorMessage = detail.ErrorMessage

	case payload.Session != nil:
		detail := payload.Session
		dashboard.Status = string(detail.Status)
		dashboard.AlertType = detail.AlertType
		dashboard.ChainID = detail.ChainID
		session.Status = string(detail.Status)
		session.FinalAnalysis = truncate(detail.FinalAnalysis, llmResponsePreviewLimit)
		session.ErrorMessage = detail.ErrorMessage
	}

	return dashboard, session
}

// llmResponseText extracts displayable text from a recorded LLM response.
func llmResponseText(response map[string]any) string {
	if response == nil {
		return ""
	}
	if content, ok := response["content"].(string); ok {
		return content
	}
	raw, err := json.Marshal(response)
	if err != nil {
		return ""
	}
	return string(raw)
}

// mcpResultText extracts displayable text from a recorded tool result.
func mcpResultText(result map[string]any) string {
	if result == nil {
		return ""
	}
	if text, ok := result["result"].(string); ok {
		return text
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return ""
	}
	return string(raw)
}

// truncate cuts s to at most limit runes, marking the cut.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

func boolPtr(b bool) *bool { return &b }

func intPtr(n int) *int { return &n }

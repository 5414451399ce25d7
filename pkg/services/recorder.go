package services

import (
	"context"

	"github.com/tarsy-bot/tarsy/pkg/hooks"
)

// TimelineRecorderName is the hook bus registration name for the recorder.
const TimelineRecorderName = "timeline"

// TimelineRecorder subscribes to interaction hooks and persists them through
// the history service. Stage and session rows are written inline by the
// orchestrator because they gate control flow; interaction rows arrive here,
// off the hot path.
type TimelineRecorder struct {
	history *HistoryService
}

// NewTimelineRecorder creates the recorder over a history service.
func NewTimelineRecorder(history *HistoryService) *TimelineRecorder {
	return &TimelineRecorder{history: history}
}

// EventNames implements hooks.Subscriber. Error events are recorded too:
// a failed LLM call or tool call is part of the audit trail.
func (r *TimelineRecorder) EventNames() []string {
	return []string{
		hooks.EventLLMPost,
		hooks.EventLLMError,
		hooks.EventMCPPost,
		hooks.EventMCPError,
	}
}

// Handle implements hooks.Subscriber.
func (r *TimelineRecorder) Handle(ctx context.Context, event string, payload *hooks.Payload) error {
	switch {
	case payload == nil:
		return nil
	case payload.LLM != nil:
		return r.history.RecordLLMInteraction(ctx, payload.LLM)
	case payload.MCP != nil:
		return r.history.RecordMCPInteraction(ctx, payload.MCP)
	default:
		return nil
	}
}

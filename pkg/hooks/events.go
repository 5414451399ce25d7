// Package hooks implements the in-process event bus that decouples alert
// processing from its observers. Producers (the LLM manager, the tool
// executor, the orchestrator) trigger named events; subscribers (timeline
// recorder, dashboard broadcaster, notifiers) consume them on their own
// goroutines so a slow or failing observer never stalls processing.
package hooks

import (
	"context"

	"github.com/tarsy-bot/tarsy/pkg/models"
)

// Event names triggered by the processing pipeline. The .pre variant fires
// before the operation starts, .post after it succeeds, .error after it
// fails.
const (
	EventLLMPre   = "llm.pre"
	EventLLMPost  = "llm.post"
	EventLLMError = "llm.error"

	EventMCPPre   = "mcp.pre"
	EventMCPPost  = "mcp.post"
	EventMCPError = "mcp.error"

	EventStagePre   = "stage.pre"
	EventStagePost  = "stage.post"
	EventStageError = "stage.error"

	EventSessionPre   = "session.pre"
	EventSessionPost  = "session.post"
	EventSessionError = "session.error"
)

// Payload is the envelope delivered to subscribers. Exactly one of the
// detail fields is set, matching the event family. Payloads are shared
// across subscribers and must not be mutated by handlers.
type Payload struct {
	SessionID        string
	StageExecutionID string
	StepDescription  string
	TimestampUs      int64

	// Detail for llm.* events: the interaction as it will be recorded.
	LLM *models.LLMInteraction

	// Detail for mcp.* events: the interaction as it will be recorded.
	MCP *models.MCPInteraction

	// Detail for stage.* events.
	Stage *StageDetail

	// Detail for session.* events.
	Session *SessionDetail
}

// StageDetail describes a stage lifecycle transition.
type StageDetail struct {
	StageID      string
	StageIndex   int
	StageName    string
	Agent        string
	Status       models.ExecutionStatus
	ErrorMessage string
}

// SessionDetail describes a session lifecycle transition.
type SessionDetail struct {
	AlertID       string
	AlertType     string
	ChainID       string
	Status        models.SessionStatus
	StartedAtUs   int64
	CompletedAtUs int64
	FinalAnalysis string
	ErrorMessage  string
}

// Subscriber consumes events from the bus. Handle is invoked sequentially
// from the subscriber's own dispatch goroutine, in the order events were
// triggered.
type Subscriber interface {
	// EventNames returns the event names this subscriber wants.
	EventNames() []string

	// Handle processes one event. The context carries the per-dispatch
	// timeout. A returned error counts toward auto-disable.
	Handle(ctx context.Context, event string, payload *Payload) error
}

package models

// TokenUsage is the normalized token accounting for one LLM call. Providers
// report usage in different shapes; the LLM manager normalizes them to this
// struct at its boundary.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates another usage record into this one.
func (u *TokenUsage) Add(other TokenUsage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// LLMInteraction is one LLM call recorded in the timeline. Rows are
// append-only and immutable once written.
type LLMInteraction struct {
	InteractionID    string         `json:"interaction_id"`
	SessionID        string         `json:"session_id"`
	StageExecutionID *string        `json:"stage_execution_id,omitempty"`
	TimestampUs      int64          `json:"timestamp_us"`
	DurationMs       int64          `json:"duration_ms"`
	ModelName        string         `json:"model_name"`
	RequestJSON      map[string]any `json:"request_json"`
	ResponseJSON     map[string]any `json:"response_json,omitempty"`
	ToolCalls        []any          `json:"tool_calls,omitempty"`
	ToolResults      []any          `json:"tool_results,omitempty"`
	TokenUsage       *TokenUsage    `json:"token_usage,omitempty"`
	StepDescription  string         `json:"step_description"`
	Success          bool           `json:"success"`
	ErrorMessage     *string        `json:"error_message,omitempty"`
}

// CommunicationType classifies an MCP interaction.
type CommunicationType string

const (
	CommunicationTypeToolList CommunicationType = "tool_list"
	CommunicationTypeToolCall CommunicationType = "tool_call"
	CommunicationTypeResult   CommunicationType = "result"
)

// IsValid reports whether the type is a known communication type.
func (t CommunicationType) IsValid() bool {
	switch t {
	case CommunicationTypeToolList, CommunicationTypeToolCall, CommunicationTypeResult:
		return true
	default:
		return false
	}
}

// MCPInteraction is one tool-server interaction recorded in the timeline.
// Rows are append-only and immutable once written.
type MCPInteraction struct {
	CommunicationID   string            `json:"communication_id"`
	SessionID         string            `json:"session_id"`
	StageExecutionID  *string           `json:"stage_execution_id,omitempty"`
	TimestampUs       int64             `json:"timestamp_us"`
	DurationMs        int64             `json:"duration_ms"`
	ServerName        string            `json:"server_name"`
	CommunicationType CommunicationType `json:"communication_type"`
	ToolName          *string           `json:"tool_name,omitempty"`
	ToolArguments     map[string]any    `json:"tool_arguments,omitempty"`
	ToolResult        map[string]any    `json:"tool_result,omitempty"`
	AvailableTools    []any             `json:"available_tools,omitempty"`
	StepDescription   string            `json:"step_description"`
	Success           bool              `json:"success"`
	ErrorMessage      *string           `json:"error_message,omitempty"`
}

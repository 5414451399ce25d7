package events

// DashboardUpdate is the compact shape sent to the dashboard and alerts
// channels for every observed event. It names the session and what just
// happened; clients needing detail fetch it over REST or subscribe to the
// session channel.
type DashboardUpdate struct {
	Type        string `json:"type"`  // always MessageTypeDashboardUpdate
	Event       string `json:"event"` // source hook event (session.post, stage.pre, llm.post, ...)
	SessionID   string `json:"session_id"`
	AlertType   string `json:"alert_type,omitempty"` // set on session lifecycle events
	ChainID     string `json:"chain_id,omitempty"`   // set on session lifecycle events
	Status      string `json:"status,omitempty"`     // session or stage status when the event carries one
	StageID     string `json:"stage_id,omitempty"`
	StageName   string `json:"stage_name,omitempty"`
	TimestampUs int64  `json:"timestamp_us"`
}

// SessionUpdate is the richer shape sent to session:<id>. Interaction
// content is previewed, not carried in full: the LLM response is truncated
// to 200 characters and the tool result to 300. The session detail view
// pulls complete interactions from the timeline API.
type SessionUpdate struct {
	Type             string `json:"type"`  // always MessageTypeSessionUpdate
	Event            string `json:"event"` // source hook event
	SessionID        string `json:"session_id"`
	StageExecutionID string `json:"stage_execution_id,omitempty"`
	StepDescription  string `json:"step_description,omitempty"`
	TimestampUs      int64  `json:"timestamp_us"`

	// Lifecycle details (session.* and stage.* events).
	Status        string `json:"status,omitempty"`
	StageID       string `json:"stage_id,omitempty"`
	StageName     string `json:"stage_name,omitempty"`
	StageIndex    *int   `json:"stage_index,omitempty"`
	Agent         string `json:"agent,omitempty"`
	FinalAnalysis string `json:"final_analysis,omitempty"`
	ErrorMessage  string `json:"error_message,omitempty"`

	// LLM interaction details (llm.* events).
	ModelName       string `json:"model_name,omitempty"`
	ResponsePreview string `json:"response_preview,omitempty"`
	ToolCallCount   int    `json:"tool_call_count,omitempty"`

	// Tool interaction details (mcp.* events).
	ServerName    string `json:"server_name,omitempty"`
	ToolName      string `json:"tool_name,omitempty"`
	ResultPreview string `json:"result_preview,omitempty"`

	DurationMs int64 `json:"duration_ms,omitempty"`
	Success    *bool `json:"success,omitempty"`
}

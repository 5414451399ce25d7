package models

// StageTimeline is one stage and its interactions in chronological order.
// LLM and MCP interactions are merged and sorted by timestamp_us ascending.
type StageTimeline struct {
	Execution        *StageExecution   `json:"execution"`
	LLMInteractions  []*LLMInteraction `json:"llm_interactions"`
	MCPInteractions  []*MCPInteraction `json:"mcp_interactions"`
	InteractionCount int               `json:"interaction_count"`
}

// SessionTimeline is the fully assembled session view: the session row,
// stages ordered by stage_index, and session-level interactions that are not
// bound to any stage.
type SessionTimeline struct {
	Session               *Session          `json:"session"`
	Stages                []*StageTimeline  `json:"stages"`
	SessionLLMInteraction []*LLMInteraction `json:"session_llm_interactions,omitempty"`
	SessionMCPInteraction []*MCPInteraction `json:"session_mcp_interactions,omitempty"`
	TotalInteractions     int               `json:"total_interactions"`
}

// FilterOptions enumerates the distinct values available for history filters.
type FilterOptions struct {
	AgentTypes []string      `json:"agent_types"`
	AlertTypes []string      `json:"alert_types"`
	Statuses   []string      `json:"statuses"`
	TimeRanges []TimeRange   `json:"time_ranges"`
	Pagination []PageSizeOpt `json:"page_sizes"`
}

// TimeRange is a preset relative range offered by the dashboard.
type TimeRange struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// PageSizeOpt is a preset page size offered by the dashboard.
type PageSizeOpt struct {
	Label string `json:"label"`
	Value int    `json:"value"`
}

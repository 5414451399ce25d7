// Package models defines the persisted entities and request/response shapes
// shared by the timeline store, the orchestrator, and the API layer.
package models

// SessionStatus is the lifecycle state of an alert session.
type SessionStatus string

const (
	SessionStatusPending    SessionStatus = "pending"
	SessionStatusInProgress SessionStatus = "in_progress"
	SessionStatusCompleted  SessionStatus = "completed"
	SessionStatusFailed     SessionStatus = "failed"
)

// IsValid reports whether the status is one of the known session states.
func (s SessionStatus) IsValid() bool {
	switch s {
	case SessionStatusPending, SessionStatusInProgress, SessionStatusCompleted, SessionStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status closes the session.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusFailed
}

// Session is one accepted alert and its processing lifecycle.
// completed_at_us is set iff the status is terminal.
type Session struct {
	SessionID         string         `json:"session_id"`
	AlertID           string         `json:"alert_id"`
	AlertType         string         `json:"alert_type"`
	AlertData         map[string]any `json:"alert_data"`
	AgentType         string         `json:"agent_type"` // "chain:<chain_id>"
	ChainID           string         `json:"chain_id"`
	ChainDefinition   map[string]any `json:"chain_definition,omitempty"` // snapshot at creation
	Status            SessionStatus  `json:"status"`
	StartedAtUs       int64          `json:"started_at_us"`
	CompletedAtUs     *int64         `json:"completed_at_us,omitempty"`
	CurrentStageIndex *int           `json:"current_stage_index,omitempty"`
	CurrentStageID    *string        `json:"current_stage_id,omitempty"`
	FinalAnalysis     *string        `json:"final_analysis,omitempty"`
	ErrorMessage      *string        `json:"error_message,omitempty"`
	SessionMetadata   map[string]any `json:"session_metadata,omitempty"`
}

// ExecutionStatus is the lifecycle state of a stage execution.
// Transitions are monotonic: pending → active → {completed, failed}.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusActive    ExecutionStatus = "active"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// IsValid reports whether the status is one of the known execution states.
func (s ExecutionStatus) IsValid() bool {
	switch s {
	case ExecutionStatusPending, ExecutionStatusActive, ExecutionStatusCompleted, ExecutionStatusFailed:
		return true
	default:
		return false
	}
}

// StageExecution is one stage attempt within a session. stage_index is
// zero-based and dense within the session; stage_id is "<name>_<index>".
type StageExecution struct {
	ExecutionID   string          `json:"execution_id"`
	SessionID     string          `json:"session_id"`
	StageID       string          `json:"stage_id"`
	StageIndex    int             `json:"stage_index"`
	StageName     string          `json:"stage_name"`
	Agent         string          `json:"agent"`
	Status        ExecutionStatus `json:"status"`
	StartedAtUs   *int64          `json:"started_at_us,omitempty"`
	CompletedAtUs *int64          `json:"completed_at_us,omitempty"`
	DurationMs    *int64          `json:"duration_ms,omitempty"`
	StageOutput   map[string]any  `json:"stage_output,omitempty"`
	ErrorMessage  *string         `json:"error_message,omitempty"`
}

// CreateSessionRequest contains fields for creating a new alert session.
type CreateSessionRequest struct {
	SessionID       string         `json:"session_id"`
	AlertID         string         `json:"alert_id"`
	AlertType       string         `json:"alert_type"`
	AlertData       map[string]any `json:"alert_data"`
	AgentType       string         `json:"agent_type"`
	ChainID         string         `json:"chain_id"`
	ChainDefinition map[string]any `json:"chain_definition,omitempty"`
	SessionMetadata map[string]any `json:"session_metadata,omitempty"`
}

// CreateStageExecutionRequest contains fields for creating a stage execution.
type CreateStageExecutionRequest struct {
	ExecutionID string `json:"execution_id"`
	SessionID   string `json:"session_id"`
	StageID     string `json:"stage_id"`
	StageIndex  int    `json:"stage_index"`
	StageName   string `json:"stage_name"`
	Agent       string `json:"agent"`
}

// StageExecutionUpdate is a partial update for a stage execution. Only
// non-nil fields are written; transitions must follow the monotonic order.
type StageExecutionUpdate struct {
	Status        *ExecutionStatus `json:"status,omitempty"`
	StartedAtUs   *int64           `json:"started_at_us,omitempty"`
	CompletedAtUs *int64           `json:"completed_at_us,omitempty"`
	DurationMs    *int64           `json:"duration_ms,omitempty"`
	StageOutput   map[string]any   `json:"stage_output,omitempty"`
	ErrorMessage  *string          `json:"error_message,omitempty"`
}

// SessionFilters contains filtering options for listing sessions. Search is
// a case-insensitive substring match OR-combined over error_message,
// final_analysis, alert_type, agent_type, and selected alert_data /
// session_metadata JSON paths, then AND-ed with the other filters.
type SessionFilters struct {
	Status      string `json:"status,omitempty"`
	AgentType   string `json:"agent_type,omitempty"`
	AlertType   string `json:"alert_type,omitempty"`
	Search      string `json:"search,omitempty"`
	StartDateUs *int64 `json:"start_date_us,omitempty"`
	EndDateUs   *int64 `json:"end_date_us,omitempty"`
}

// PageParams carries pagination inputs; page and page_size are 1-based and
// defaulted by the caller.
type PageParams struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// Offset returns the SQL offset for these parameters.
func (p PageParams) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Pagination is the list-response envelope.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalPages int `json:"total_pages"`
	TotalItems int `json:"total_items"`
}

// NewPagination computes total_pages = ceil(totalItems / pageSize).
func NewPagination(params PageParams, totalItems int) Pagination {
	totalPages := 0
	if params.PageSize > 0 {
		totalPages = (totalItems + params.PageSize - 1) / params.PageSize
	}
	return Pagination{
		Page:       params.Page,
		PageSize:   params.PageSize,
		TotalPages: totalPages,
		TotalItems: totalItems,
	}
}

// SessionList is a paginated page of sessions.
type SessionList struct {
	Sessions   []*Session `json:"sessions"`
	Pagination Pagination `json:"pagination"`
}

// ActiveSession is the compact projection returned for in-flight sessions.
type ActiveSession struct {
	SessionID         string        `json:"session_id"`
	AlertID           string        `json:"alert_id"`
	AlertType         string        `json:"alert_type"`
	ChainID           string        `json:"chain_id"`
	Status            SessionStatus `json:"status"`
	StartedAtUs       int64         `json:"started_at_us"`
	CurrentStageIndex *int          `json:"current_stage_index,omitempty"`
	CurrentStageID    *string       `json:"current_stage_id,omitempty"`
}

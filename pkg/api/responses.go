package api

import (
	"github.com/tarsy-bot/tarsy/pkg/database"
)

// AlertResponse is returned by POST /alerts.
type AlertResponse struct {
	AlertID string `json:"alert_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// SessionIDResponse is returned by GET /session-id/:alert_id.
type SessionIDResponse struct {
	AlertID   string  `json:"alert_id"`
	SessionID *string `json:"session_id"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status        string                 `json:"status"`
	Version       string                 `json:"version"`
	TimestampUs   int64                  `json:"timestamp_us"`
	Services      map[string]HealthCheck `json:"services"`
	Database      *database.HealthStatus `json:"database,omitempty"`
	Configuration ConfigurationStats     `json:"configuration"`
}

// HealthCheck is a single named health probe result.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// ConfigurationStats contains counts of loaded configuration items.
type ConfigurationStats struct {
	Agents       int `json:"agents"`
	Chains       int `json:"chains"`
	MCPServers   int `json:"mcp_servers"`
	LLMProviders int `json:"llm_providers"`
	AlertTypes   int `json:"alert_types"`
}

// FieldError is one entry of a 422 validation response.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrorResponse is the 422 response body.
type ValidationErrorResponse struct {
	Message string       `json:"message"`
	Errors  []FieldError `json:"errors"`
}

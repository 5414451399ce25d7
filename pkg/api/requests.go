package api

// SubmitAlertRequest is the HTTP request body for POST /alerts.
type SubmitAlertRequest struct {
	AlertType string         `json:"alert_type"`
	Runbook   string         `json:"runbook"`
	Data      map[string]any `json:"data"`
	Severity  string         `json:"severity,omitempty"`
	Timestamp int64          `json:"timestamp,omitempty"` // microseconds since epoch
}

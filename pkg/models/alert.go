package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Alert is a validated alert submission. Data is opaque JSON carried through
// to the session and the prompts; the engine never schema-binds it.
type Alert struct {
	AlertType string         `json:"alert_type"`
	Runbook   string         `json:"runbook"`
	Data      map[string]any `json:"data"`
	Severity  string         `json:"severity,omitempty"`
	Timestamp int64          `json:"timestamp,omitempty"` // microseconds, defaulted at submission
}

// AlertKey is the deterministic fingerprint of an alert, used only for
// in-process duplicate suppression. Never persisted.
type AlertKey string

// NewAlertKey derives the fingerprint from (alert_type, canonical(data)).
// encoding/json marshals map keys in sorted order at every nesting level,
// which makes the marshaled bytes canonical for identical payloads.
func NewAlertKey(alertType string, data map[string]any) (AlertKey, error) {
	canonical, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize alert data: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(alertType))
	h.Write([]byte{0})
	h.Write(canonical)
	return AlertKey(alertType + ":" + hex.EncodeToString(h.Sum(nil))[:16]), nil
}

// ProcessingStatus is the submission-side response status.
type ProcessingStatus string

const (
	ProcessingStatusQueued    ProcessingStatus = "queued"
	ProcessingStatusDuplicate ProcessingStatus = "duplicate"
)

// Package events delivers live processing updates to WebSocket clients.
//
// ════════════════════════════════════════════════════════════════
// Broadcast model
// ════════════════════════════════════════════════════════════════
//
// The engine publishes lifecycle events on the in-process hook bus
// (pkg/hooks). The DashboardBroadcaster subscribes there and fans each
// event out to two logical channels:
//
//	dashboard / alerts  - compact DashboardUpdate, enough for list pages
//	                      to refresh row state without a REST roundtrip
//	session:<id>        - richer SessionUpdate with interaction previews,
//	                      consumed by the open session detail view
//
// Because the hook bus delivers events to a subscriber strictly in
// trigger order and the ConnectionManager writes to each socket
// sequentially, a client subscribed to one session observes that
// session's events in producer order. Order across different sessions
// is not guaranteed and not needed.
//
// Delivery is best effort: clients that miss events (reconnects, slow
// consumers dropped by the write timeout) reload state via the history
// REST API. Nothing in this package is a source of truth.
package events

// Channels clients can subscribe to.
const (
	// DashboardChannel carries compact updates for every session.
	DashboardChannel = "dashboard"

	// AlertsChannel mirrors DashboardChannel for the alert submission view.
	AlertsChannel = "alerts"
)

// SessionChannel returns the channel name for a specific session's events.
// Format: "session:{session_id}"
func SessionChannel(sessionID string) string {
	return "session:" + sessionID
}

// Server → client message types.
const (
	MessageTypeConnectionEstablished = "connection.established"
	MessageTypeSubscriptionConfirmed = "subscription.confirmed"
	MessageTypePong                  = "pong"
	MessageTypeError                 = "error"

	MessageTypeDashboardUpdate = "dashboard.update"
	MessageTypeSessionUpdate   = "session.update"
)

// ClientMessage is the JSON structure for client → server WebSocket messages.
type ClientMessage struct {
	Type    string `json:"type"`              // "subscribe", "unsubscribe", "ping"
	Channel string `json:"channel,omitempty"` // Channel name (e.g., "session:abc-123")
}

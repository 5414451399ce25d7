package agent

// MaxAlertDataSize is the maximum accepted alert payload (10 MB).
// Larger submissions are rejected at the API with HTTP 413.
const MaxAlertDataSize = 10 * 1024 * 1024

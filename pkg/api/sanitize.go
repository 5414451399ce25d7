package api

import (
	"regexp"
	"strings"
)

// Alert payloads come from external monitoring systems and are echoed back
// through the dashboard, so submitted values are bounded and scrubbed
// before they enter the engine.
const (
	maxSanitizedArrayLen  = 1000
	maxSanitizedStringLen = 10_000
)

// scriptTagPattern matches <script ...>...</script> blocks and stray
// opening/closing script tags, case-insensitively.
var scriptTagPattern = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>|</?script\b[^>]*>`)

// sanitizeAlertData returns a scrubbed copy of alert data: script tags
// stripped from strings, long strings truncated, oversized arrays capped.
// The input map is not modified.
func sanitizeAlertData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[sanitizeString(k)] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) any {
	switch val := v.(type) {
	case string:
		return sanitizeString(val)
	case map[string]any:
		return sanitizeAlertData(val)
	case []any:
		if len(val) > maxSanitizedArrayLen {
			val = val[:maxSanitizedArrayLen]
		}
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = sanitizeValue(item)
		}
		return out
	default:
		return v
	}
}

func sanitizeString(s string) string {
	s = scriptTagPattern.ReplaceAllString(s, "")
	if len(s) > maxSanitizedStringLen {
		s = truncateUTF8(s, maxSanitizedStringLen)
	}
	return strings.TrimSpace(s)
}

// truncateUTF8 cuts s to at most limit bytes without splitting a rune.
func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut]
}

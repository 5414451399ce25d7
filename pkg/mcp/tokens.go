package mcp

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// charsPerToken approximates tokens from byte length for English text.
// Threshold estimation only, not exact counting.
const charsPerToken = 4

// DefaultStorageMaxTokens caps tool output stored on interaction records.
// Protects the dashboard from rendering massive text blobs.
const DefaultStorageMaxTokens = 8000

// DefaultSummarizationMaxTokens caps tool output fed to the summarization
// LLM so prompt plus output stays inside the model's context window.
const DefaultSummarizationMaxTokens = 100000

// EstimateTokens returns an approximate token count using the ~4 bytes per
// token heuristic. Multi-byte UTF-8 content overestimates, which errs
// toward summarizing early rather than late.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + charsPerToken - 1) / charsPerToken // Round up
}

// truncateAtLineBoundary cuts content at the last newline before maxChars
// bytes so indented JSON, YAML, and log output keep whole lines. The cut
// point backs up first so a multi-byte UTF-8 rune is never split.
func truncateAtLineBoundary(content string, maxChars int, marker string) string {
	if maxChars <= 0 || len(content) <= maxChars {
		return content
	}
	cut := maxChars
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	truncated := content[:cut]
	if idx := strings.LastIndex(truncated, "\n"); idx > 0 {
		truncated = truncated[:idx]
	}
	return truncated + fmt.Sprintf(
		"\n\n[TRUNCATED: %s - original size %s, limit %s]",
		marker, formatSize(len(content)), formatSize(maxChars),
	)
}

// formatSize returns a human-readable size. Values under 1KB stay in bytes
// so small content never reads "0KB".
func formatSize(bytes int) string {
	if bytes < 1024 {
		return fmt.Sprintf("%dB", bytes)
	}
	return fmt.Sprintf("%dKB", bytes/1024)
}

// TruncateForStorage truncates tool output before it lands on interaction
// records and timeline events. Applied to all raw results, whether or not
// summarization triggers.
func TruncateForStorage(content string) string {
	return truncateAtLineBoundary(content, DefaultStorageMaxTokens*charsPerToken,
		"output exceeded storage display limit")
}

// TruncateForSummarization truncates tool output before it is sent to the
// summarization LLM. Larger than the storage limit so the summarizer sees
// as much data as the context window allows.
func TruncateForSummarization(content string) string {
	return truncateAtLineBoundary(content, DefaultSummarizationMaxTokens*charsPerToken,
		"output exceeded summarization input limit")
}

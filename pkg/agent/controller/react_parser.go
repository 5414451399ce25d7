package controller

import "strings"

// ParsedResponse is the structured form of one ReAct text response.
type ParsedResponse struct {
	Thought     string
	Action      string
	ActionInput string
	FinalAnswer string

	// IsComplete is true when the response carried a Final Answer section.
	IsComplete bool
}

// HasAction reports whether the response requested a tool call.
func (p *ParsedResponse) HasAction() bool {
	return p.Action != ""
}

// Section header prefixes, checked in this order. "Action Input:" must come
// before "Action:" or every input header would match the action prefix.
var sectionHeaders = []string{
	"Thought:",
	"Action Input:",
	"Action:",
	"Final Answer:",
}

// ParseReActResponse extracts the ReAct sections from one model response.
//
// Each section starts at the first occurrence of its header prefix; a
// repeated header is treated as content of the section currently open, not
// as a new section. Parsing stops at an "Observation:" line or a line
// starting with "[Based on": everything after is a hallucinated observation
// the model was told not to write.
//
// Parsing is deterministic and idempotent: the same text always yields the
// same ParsedResponse.
func ParseReActResponse(text string) *ParsedResponse {
	parsed := &ParsedResponse{}
	seen := make(map[string]bool, len(sectionHeaders))

	var current string
	var content strings.Builder

	flush := func() {
		if current != "" {
			setSection(parsed, current, content.String())
		}
		content.Reset()
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "Observation:") || strings.HasPrefix(trimmed, "[Based on") {
			break
		}

		header := matchHeader(trimmed)
		if header != "" && !seen[header] {
			flush()
			seen[header] = true
			current = header
			content.WriteString(strings.TrimSpace(strings.TrimPrefix(trimmed, header)))
			continue
		}

		if current != "" {
			if content.Len() > 0 {
				content.WriteString("\n")
			}
			content.WriteString(line)
		}
	}
	flush()

	parsed.IsComplete = seen["Final Answer:"]
	return parsed
}

func matchHeader(line string) string {
	for _, header := range sectionHeaders {
		if strings.HasPrefix(line, header) {
			return header
		}
	}
	return ""
}

func setSection(parsed *ParsedResponse, header, content string) {
	content = strings.TrimSpace(content)
	switch header {
	case "Thought:":
		parsed.Thought = content
	case "Action:":
		parsed.Action = content
	case "Action Input:":
		parsed.ActionInput = content
	case "Final Answer:":
		parsed.FinalAnswer = content
	}
}

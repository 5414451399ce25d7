package prompt

import (
	"fmt"
	"strings"

	"github.com/tarsy-bot/tarsy/pkg/llm"
)

// FormatToolDescriptions renders the allowed tool set, one per line as
// "server.tool: description". The listing is exactly the set the executor
// will accept; nothing is added or hidden.
func FormatToolDescriptions(tools []llm.ToolDefinition) string {
	if len(tools) == 0 {
		return "No tools available."
	}

	var sb strings.Builder
	for i, tool := range tools {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(fmt.Sprintf("%s: %s", tool.Name, tool.Description))
	}
	return sb.String()
}

package prompt

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/tarsy-bot/tarsy/pkg/agent"
)

// FormatContextSection opens the user message with where this stage sits in
// the investigation.
func FormatContextSection(stageCtx *agent.StageContext) string {
	var sb strings.Builder
	sb.WriteString("## Investigation Context\n")
	sb.WriteString(fmt.Sprintf("**Alert Type:** %s\n", stageCtx.Chain.AlertType))
	if stageCtx.Chain.ChainID != "" {
		sb.WriteString(fmt.Sprintf("**Chain:** %s\n", stageCtx.Chain.ChainID))
	}
	sb.WriteString(fmt.Sprintf("**Current Stage:** %s\n", stageCtx.StageName))
	return sb.String()
}

// FormatAlertSection renders the alert payload key by key, keys sorted.
// Nested objects and arrays become fenced JSON, multi-line strings fenced
// code, scalars inline.
func FormatAlertSection(alertType string, alertData map[string]any) string {
	var sb strings.Builder
	sb.WriteString("## Alert Details\n\n")
	if alertType != "" {
		sb.WriteString(fmt.Sprintf("**Alert Type:** %s\n\n", alertType))
	}

	if len(alertData) == 0 {
		sb.WriteString("No additional alert data provided.\n")
		return sb.String()
	}

	keys := make([]string, 0, len(alertData))
	for k := range alertData {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		sb.WriteString(formatAlertValue(key, alertData[key]))
	}
	return sb.String()
}

func formatAlertValue(key string, value any) string {
	switch v := value.(type) {
	case map[string]any, []any:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Sprintf("**%s:** %v\n", key, v)
		}
		return fmt.Sprintf("**%s:**\n```json\n%s\n```\n", key, data)
	case string:
		if strings.Contains(v, "\n") {
			return fmt.Sprintf("**%s:**\n```\n%s\n```\n", key, v)
		}
		return fmt.Sprintf("**%s:** %s\n", key, v)
	case nil:
		return fmt.Sprintf("**%s:** null\n", key)
	default:
		return fmt.Sprintf("**%s:** %v\n", key, v)
	}
}

// FormatRunbookSection renders the fetched runbook, fenced so runbook
// markdown cannot bleed into the message structure.
func FormatRunbookSection(runbookContent string) string {
	if runbookContent == "" {
		return "## Runbook Content\nNo runbook available.\n"
	}

	var sb strings.Builder
	sb.WriteString("## Runbook Content\n")
	sb.WriteString("```markdown\n")
	sb.WriteString("<!-- RUNBOOK START -->\n")
	sb.WriteString(runbookContent)
	sb.WriteString("\n<!-- RUNBOOK END -->\n")
	sb.WriteString("```\n")
	return sb.String()
}

// FormatPriorStages renders completed stage outputs in execution order.
func FormatPriorStages(outputs []agent.StageOutput) string {
	if len(outputs) == 0 {
		return "## Previous Stage Data\nNo previous stage data is available for this alert. This is the first stage of analysis.\n"
	}

	var sb strings.Builder
	sb.WriteString("## Previous Stage Data\n\n")
	for i, entry := range outputs {
		sb.WriteString(fmt.Sprintf("### Stage %d: %s\n\n", i+1, entry.StageName))
		sb.WriteString(renderStageOutput(entry.Output))
		sb.WriteString("\n")
		if i < len(outputs)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// renderStageOutput extracts the useful text from one stage output map.
// Failed stages surface their error so later stages know the gap exists.
func renderStageOutput(output map[string]any) string {
	if output == nil {
		return "(No output recorded)"
	}
	if status, _ := output["status"].(string); status == "failed" {
		msg, _ := output["error"].(string)
		if msg == "" {
			msg = "unknown error"
		}
		return fmt.Sprintf("Stage failed: %s", msg)
	}
	if analysis, _ := output["final_analysis"].(string); analysis != "" {
		return analysis
	}
	if summary, _ := output["result_summary"].(string); summary != "" {
		return summary
	}
	return "(No final analysis produced)"
}

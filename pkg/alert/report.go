package alert

import (
	"fmt"
	"strings"
	"time"

	"github.com/tarsy-bot/tarsy/pkg/agent"
	"github.com/tarsy-bot/tarsy/pkg/models"
)

// extractFinalAnalysis picks the analysis text for the report: the last
// completed stage carrying a final_analysis, else the first completed
// stage's result_summary on a forward pass, else a summary line. Later
// stages see earlier output, so the reverse pass finds the most informed
// analysis; the forward pass salvages intermediate summaries (stage-scoped
// strategies never set final_analysis).
func extractFinalAnalysis(outputs []agent.StageOutput, chainID string) string {
	for i := len(outputs) - 1; i >= 0; i-- {
		if analysis := completedField(outputs[i].Output, "final_analysis"); analysis != "" {
			return analysis
		}
	}
	for _, entry := range outputs {
		if summary := completedField(entry.Output, "result_summary"); summary != "" {
			return summary
		}
	}
	return fmt.Sprintf("Chain %s completed with %d stages.", chainID, len(outputs))
}

func completedField(output map[string]any, key string) string {
	if output == nil {
		return ""
	}
	if status, _ := output["status"].(string); status != string(models.ExecutionStatusCompleted) {
		return ""
	}
	value, _ := output[key].(string)
	return strings.TrimSpace(value)
}

// formatReport renders the markdown report returned to callers and stored
// as the session's final analysis.
func formatReport(a models.Alert, chainID string, stageCount int, analysis string, totalIterations int, timestampUs int64) string {
	var sb strings.Builder

	sb.WriteString("# Alert Analysis Report\n\n")
	sb.WriteString(fmt.Sprintf("**Alert Type:** %s\n", a.AlertType))
	sb.WriteString(fmt.Sprintf("**Processing Chain:** %s\n", chainID))
	sb.WriteString(fmt.Sprintf("**Stages Executed:** %d\n", stageCount))
	sb.WriteString(fmt.Sprintf("**Environment:** %s\n", stringProjection(a.Data, "environment", "unknown")))
	sb.WriteString(fmt.Sprintf("**Severity:** %s\n", severityOrDefault(a.Severity)))
	sb.WriteString(fmt.Sprintf("**Timestamp:** %s\n", models.UsToTime(timestampUs).UTC().Format(time.RFC3339)))
	sb.WriteString("\n## Analysis\n\n")
	sb.WriteString(analysis)
	sb.WriteString("\n\n---\n")
	sb.WriteString(fmt.Sprintf("*Processed with %d total iterations across stages.*\n", totalIterations))

	return sb.String()
}

func stringProjection(data map[string]any, key, fallback string) string {
	if value, ok := data[key].(string); ok && value != "" {
		return value
	}
	return fallback
}

func severityOrDefault(severity string) string {
	if severity == "" {
		return "warning"
	}
	return severity
}

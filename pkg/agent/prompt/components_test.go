package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-bot/tarsy/pkg/agent"
)

func TestFormatAlertSection(t *testing.T) {
	t.Run("scalars render inline with sorted keys", func(t *testing.T) {
		result := FormatAlertSection("kubernetes", map[string]any{
			"severity":  "critical",
			"cluster":   "prod-east",
			"namespace": "payments",
			"replicas":  float64(3),
			"degraded":  true,
		})

		assert.Contains(t, result, "## Alert Details")
		assert.Contains(t, result, "**Alert Type:** kubernetes")
		assert.Contains(t, result, "**cluster:** prod-east\n")
		assert.Contains(t, result, "**replicas:** 3\n")
		assert.Contains(t, result, "**degraded:** true\n")
		sectionOrder(t, result, "**cluster:**", "**degraded:**", "**namespace:**", "**replicas:**", "**severity:**")
	})

	t.Run("nested values render as fenced json", func(t *testing.T) {
		result := FormatAlertSection("kubernetes", map[string]any{
			"labels": map[string]any{"app": "api", "team": "payments"},
			"pods":   []any{"api-0", "api-1"},
		})

		assert.Contains(t, result, "**labels:**\n```json\n{\n  \"app\": \"api\",\n  \"team\": \"payments\"\n}\n```\n")
		assert.Contains(t, result, "**pods:**\n```json\n[\n  \"api-0\",\n  \"api-1\"\n]\n```\n")
	})

	t.Run("multi-line strings render fenced", func(t *testing.T) {
		result := FormatAlertSection("", map[string]any{
			"log_excerpt": "line one\nline two",
		})

		assert.Contains(t, result, "**log_excerpt:**\n```\nline one\nline two\n```\n")
		assert.NotContains(t, result, "**Alert Type:**")
	})

	t.Run("nil values and empty data", func(t *testing.T) {
		assert.Contains(t, FormatAlertSection("k", map[string]any{"note": nil}), "**note:** null")
		assert.Contains(t, FormatAlertSection("k", nil), "No additional alert data provided.")
	})
}

func TestFormatRunbookSection(t *testing.T) {
	t.Run("fences runbook markdown", func(t *testing.T) {
		result := FormatRunbookSection("# Runbook\nStep 1")
		assert.Contains(t, result, "## Runbook Content")
		assert.Contains(t, result, "```markdown")
		assert.Contains(t, result, "<!-- RUNBOOK START -->")
		assert.Contains(t, result, "# Runbook\nStep 1")
		assert.Contains(t, result, "<!-- RUNBOOK END -->")
	})

	t.Run("missing runbook", func(t *testing.T) {
		result := FormatRunbookSection("")
		assert.Contains(t, result, "No runbook available.")
		assert.NotContains(t, result, "```")
	})
}

func TestFormatPriorStages(t *testing.T) {
	t.Run("empty is the first stage", func(t *testing.T) {
		result := FormatPriorStages(nil)
		assert.Contains(t, result, "No previous stage data is available")
		assert.Contains(t, result, "first stage of analysis")
	})

	t.Run("renders stages in execution order", func(t *testing.T) {
		outputs := []agent.StageOutput{
			{StageName: "triage", Output: map[string]any{
				"status":         "completed",
				"result_summary": "Alert is genuine.",
			}},
			{StageName: "collection", Output: map[string]any{
				"status":      "failed",
				"error":       "tool listing failed",
				"recoverable": true,
			}},
			{StageName: "investigation", Output: map[string]any{
				"status":         "completed",
				"final_analysis": "Root cause found.",
				"result_summary": "short version",
			}},
		}

		result := FormatPriorStages(outputs)
		sectionOrder(t, result,
			"### Stage 1: triage",
			"Alert is genuine.",
			"### Stage 2: collection",
			"Stage failed: tool listing failed",
			"### Stage 3: investigation",
			"Root cause found.")
	})

	t.Run("final analysis wins over the summary", func(t *testing.T) {
		result := FormatPriorStages([]agent.StageOutput{
			{StageName: "s", Output: map[string]any{
				"status":         "completed",
				"final_analysis": "full text",
				"result_summary": "short text",
			}},
		})
		assert.Contains(t, result, "full text")
		assert.NotContains(t, result, "short text")
	})

	t.Run("degenerate outputs", func(t *testing.T) {
		result := FormatPriorStages([]agent.StageOutput{
			{StageName: "empty", Output: map[string]any{"status": "completed"}},
			{StageName: "nil-output", Output: nil},
			{StageName: "bare-failure", Output: map[string]any{"status": "failed"}},
		})
		assert.Contains(t, result, "(No final analysis produced)")
		assert.Contains(t, result, "(No output recorded)")
		assert.Contains(t, result, "Stage failed: unknown error")
	})
}

func TestFormatContextSection(t *testing.T) {
	stageCtx := testStageContext()
	result := FormatContextSection(stageCtx)

	assert.Contains(t, result, "## Investigation Context")
	assert.Contains(t, result, "**Alert Type:** kubernetes")
	assert.Contains(t, result, "**Chain:** kubernetes-agent-chain")
	assert.Contains(t, result, "**Current Stage:** investigation")

	stageCtx.Chain.ChainID = ""
	require.NotContains(t, FormatContextSection(stageCtx), "**Chain:**")
}

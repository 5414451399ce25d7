package alert

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tarsy-bot/tarsy/pkg/agent"
	"github.com/tarsy-bot/tarsy/pkg/models"
)

func stageOutputEntry(name, status, analysis string) agent.StageOutput {
	output := map[string]any{"status": status}
	if analysis != "" {
		output["final_analysis"] = analysis
	}
	return agent.StageOutput{StageName: name, Output: output}
}

func TestExtractFinalAnalysis_PrefersLastCompletedAnalysis(t *testing.T) {
	outputs := []agent.StageOutput{
		stageOutputEntry("data-collection", "completed", "first analysis"),
		stageOutputEntry("verification", "failed", ""),
		stageOutputEntry("analysis", "completed", "last analysis"),
	}
	assert.Equal(t, "last analysis", extractFinalAnalysis(outputs, "kubernetes-chain"))
}

func TestExtractFinalAnalysis_SkipsFailedStagesOnReversePass(t *testing.T) {
	outputs := []agent.StageOutput{
		stageOutputEntry("data-collection", "completed", "usable analysis"),
		// A failed stage carrying error text must not win the reverse pass.
		{StageName: "analysis", Output: map[string]any{
			"status":         "failed",
			"final_analysis": "should never be used",
		}},
	}
	assert.Equal(t, "usable analysis", extractFinalAnalysis(outputs, "kubernetes-chain"))
}

func TestExtractFinalAnalysis_ForwardPassSalvagesStageSummary(t *testing.T) {
	// Stage-scoped strategies set result_summary without final_analysis;
	// when no stage produced a final analysis, the forward pass picks up
	// the earliest completed summary.
	outputs := []agent.StageOutput{
		{StageName: "data-collection", Output: map[string]any{
			"status":         "completed",
			"result_summary": "Collected pod state for stuck-ns.",
		}},
		{StageName: "analysis", Output: map[string]any{
			"status": "failed",
			"error":  "provider unreachable",
		}},
	}
	assert.Equal(t, "Collected pod state for stuck-ns.",
		extractFinalAnalysis(outputs, "kubernetes-chain"))
}

func TestExtractFinalAnalysis_SummaryFallback(t *testing.T) {
	outputs := []agent.StageOutput{
		stageOutputEntry("data-collection", "failed", ""),
		stageOutputEntry("verification", "completed", ""),
	}
	assert.Equal(t, "Chain kubernetes-chain completed with 2 stages.",
		extractFinalAnalysis(outputs, "kubernetes-chain"))
}

func TestFormatReport(t *testing.T) {
	a := models.Alert{
		AlertType: "kubernetes",
		Severity:  "critical",
		Data:      map[string]any{"environment": "staging"},
	}
	report := formatReport(a, "kubernetes-chain", 3, "The finalizer is stuck.", 7, models.NowUs())

	assert.Contains(t, report, "# Alert Analysis Report")
	assert.Contains(t, report, "**Alert Type:** kubernetes")
	assert.Contains(t, report, "**Processing Chain:** kubernetes-chain")
	assert.Contains(t, report, "**Stages Executed:** 3")
	assert.Contains(t, report, "**Environment:** staging")
	assert.Contains(t, report, "**Severity:** critical")
	assert.Contains(t, report, "The finalizer is stuck.")
	assert.Contains(t, report, "7 total iterations")
}

func TestFormatReport_Defaults(t *testing.T) {
	a := models.Alert{AlertType: "kubernetes", Data: map[string]any{}}
	report := formatReport(a, "kubernetes-chain", 1, "analysis", 0, models.NowUs())

	assert.Contains(t, report, "**Environment:** unknown")
	assert.Contains(t, report, "**Severity:** warning")
}

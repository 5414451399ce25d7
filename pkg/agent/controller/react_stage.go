package controller

import (
	"context"
	"strings"

	"github.com/tarsy-bot/tarsy/pkg/agent"
)

// Completion patterns recognized in assistant responses when a stage loop
// ends without a Final Answer. A line containing one of these (case
// insensitive) is taken as the stage summary.
var stageCompletionPatterns = []string{
	"data collection complete",
	"collection is complete",
	"investigation complete",
	"verification complete",
	"stage complete",
	"analysis complete",
	"task complete",
}

// Incomplete patterns mark a stage that was visibly still working when the
// iteration limit hit; the matched pattern is reported with an
// iteration-limit qualifier.
var stageIncompletePatterns = []string{
	"still investigating",
	"in progress",
	"need more information",
	"not yet complete",
	"partial data",
}

// ReActStageController runs the ReAct loop with a stage-scoped task block.
// Intermediate stages often report their findings without a formal Final
// Answer, so the iteration-limit fallback scans the transcript for
// completion markers before giving up.
type ReActStageController struct{}

// NewReActStageController creates the stage-scoped ReAct controller.
func NewReActStageController() *ReActStageController {
	return &ReActStageController{}
}

// NeedsTools implements agent.Controller.
func (c *ReActStageController) NeedsTools() bool { return true }

// Execute implements agent.Controller.
func (c *ReActStageController) Execute(ctx context.Context, stageCtx *agent.StageContext) (*agent.ControllerResult, error) {
	messages := stageCtx.Prompt.BuildStageMessages(stageCtx)
	return runReActLoop(ctx, stageCtx, messages, extractStageSummary)
}

// extractStageSummary resolves the stage summary when no Final Answer was
// produced. Preference order: the first transcript line matching a
// completion pattern; the matched incomplete pattern qualified with the
// iteration limit; the default last-thought fallback.
func extractStageSummary(state *reactState) string {
	if line, _ := firstMatchingLine(state.responses, stageCompletionPatterns); line != "" {
		return line
	}
	if _, pattern := firstMatchingLine(state.responses, stageIncompletePatterns); pattern != "" {
		return pattern + " due to iteration limits"
	}
	return ""
}

// firstMatchingLine scans the responses in order and returns the first line
// containing any of the patterns, case-insensitively, along with the
// pattern that matched it.
func firstMatchingLine(responses, patterns []string) (line, matched string) {
	for _, response := range responses {
		for _, l := range strings.Split(response, "\n") {
			lower := strings.ToLower(l)
			for _, pattern := range patterns {
				if strings.Contains(lower, pattern) {
					return strings.TrimSpace(l), pattern
				}
			}
		}
	}
	return "", ""
}

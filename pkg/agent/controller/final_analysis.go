package controller

import (
	"context"
	"fmt"
	"strings"

	"github.com/tarsy-bot/tarsy/pkg/agent"
	"github.com/tarsy-bot/tarsy/pkg/llm"
)

// FinalAnalysisController produces the chain's closing analysis in a single
// LLM call over everything earlier stages gathered. No tools are bound and
// no ReAct grammar is imposed; the response is returned verbatim.
type FinalAnalysisController struct{}

// NewFinalAnalysisController creates the final-analysis controller.
func NewFinalAnalysisController() *FinalAnalysisController {
	return &FinalAnalysisController{}
}

// NeedsTools implements agent.Controller.
func (c *FinalAnalysisController) NeedsTools() bool { return false }

// Execute implements agent.Controller. A failed or empty LLM response fails
// the stage: unlike the iterating strategies there is nothing to fall back
// on.
func (c *FinalAnalysisController) Execute(ctx context.Context, stageCtx *agent.StageContext) (*agent.ControllerResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, stageCtx.Config.IterationTimeout)
	defer cancel()

	resp, err := stageCtx.LLM.Generate(callCtx, &llm.Request{
		SessionID:        stageCtx.SessionID(),
		StageExecutionID: stageCtx.StageExecutionID,
		StepDescription:  "Final analysis",
		Messages:         stageCtx.Prompt.BuildFinalAnalysisMessages(stageCtx),
	})
	if err != nil {
		return nil, fmt.Errorf("final analysis LLM call failed: %w", err)
	}

	analysis := strings.TrimSpace(resp.Content)
	if analysis == "" {
		return nil, fmt.Errorf("final analysis LLM call returned empty content")
	}

	return &agent.ControllerResult{
		Analysis:   analysis,
		Iterations: 1,
		TokensUsed: resp.Usage,
	}, nil
}

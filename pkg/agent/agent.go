// Package agent runs one chain stage: it resolves the stage's configuration,
// prepares its tool executor, and delegates the reasoning loop to an
// iteration controller.
package agent

import (
	"context"

	"github.com/tarsy-bot/tarsy/pkg/config"
	"github.com/tarsy-bot/tarsy/pkg/models"
)

// Controller is the iteration strategy seam. Each controller implements a
// different reasoning pattern over the stage's conversation.
type Controller interface {
	// NeedsTools reports whether the strategy issues tool calls. When false
	// the agent skips tool listing entirely.
	NeedsTools() bool

	// Execute runs the reasoning loop to completion and returns the
	// analysis text. A returned error means the stage failed with no
	// usable analysis.
	Execute(ctx context.Context, stageCtx *StageContext) (*ControllerResult, error)
}

// ControllerResult is what a controller's loop produces.
type ControllerResult struct {
	Analysis   string
	Iterations int
	TokensUsed models.TokenUsage
}

// ControllerFactory creates controllers by iteration strategy.
// Implemented by the controller package to avoid an import cycle.
type ControllerFactory interface {
	CreateController(strategy config.IterationStrategy) (Controller, error)
}

// ToolExecutorFactory creates stage-scoped tool executors. Implemented by
// mcp.ClientFactory; defined as an interface here so pkg/agent never imports
// pkg/mcp.
type ToolExecutorFactory interface {
	// CreateStageExecutor builds an executor restricted to the given
	// servers. The caller owns the executor and must Close it.
	CreateStageExecutor(ctx context.Context, sessionID, stageExecutionID string, serverIDs []string) (ToolExecutor, error)
}

// ExecutionResult is one stage's outcome, stored on the stage execution row
// and appended to the chain context for later stages to read.
type ExecutionResult struct {
	Status           models.ExecutionStatus // completed or failed
	ResultSummary    string
	FinalAnalysis    string
	AgentName        string
	StageName        string
	StageDescription string
	TimestampUs      int64
	Iterations       int
	ErrorMessage     string
	TokensUsed       models.TokenUsage
}

// AsMap renders the result as the stage output map. Failed stages use the
// error shape consumed by the orchestrator's continue-on-failure policy;
// the recoverable flag tells later stages the chain kept going.
func (r *ExecutionResult) AsMap() map[string]any {
	if r.Status == models.ExecutionStatusFailed {
		return map[string]any{
			"status":       string(models.ExecutionStatusFailed),
			"error":        r.ErrorMessage,
			"stage_name":   r.StageName,
			"agent":        r.AgentName,
			"timestamp_us": r.TimestampUs,
			"recoverable":  true,
		}
	}
	out := map[string]any{
		"status":         string(r.Status),
		"result_summary": r.ResultSummary,
		"agent_name":     r.AgentName,
		"timestamp_us":   r.TimestampUs,
		"iterations":     r.Iterations,
	}
	if r.FinalAnalysis != "" {
		out["final_analysis"] = r.FinalAnalysis
	}
	if r.StageDescription != "" {
		out["stage_description"] = r.StageDescription
	}
	return out
}

// FailedStageOutput builds the stage output map for a stage the orchestrator
// could not run at all (agent construction failed, panic recovered). Same
// shape as a failed ExecutionResult.
func FailedStageOutput(stageName, agentName, errMsg string, timestampUs int64) map[string]any {
	return map[string]any{
		"status":       string(models.ExecutionStatusFailed),
		"error":        errMsg,
		"stage_name":   stageName,
		"agent":        agentName,
		"timestamp_us": timestampUs,
		"recoverable":  true,
	}
}

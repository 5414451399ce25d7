package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tarsy-bot/tarsy/pkg/config"
	"github.com/tarsy-bot/tarsy/pkg/models"
)

// BaseAgent runs one stage of a chain. It is created fresh per stage
// execution by the Factory, carrying the stage's identity and its resolved
// configuration.
type BaseAgent struct {
	stageExecutionID string
	stageName        string
	stageIndex       int

	config     *ResolvedAgentConfig
	controller Controller
	llm        LLMClient
	tools      ToolExecutorFactory
	prompt     PromptBuilder
	registry   *config.MCPServerRegistry
}

// Execute runs the stage against the chain context.
//
// Agent-level failures (missing servers, tool listing errors, controller
// errors) come back as a failed ExecutionResult with a nil error, so the
// orchestrator's continue-on-failure policy sees a uniform shape. A non-nil
// error is reserved for programming bugs.
func (a *BaseAgent) Execute(ctx context.Context, chain *ChainContext) (*ExecutionResult, error) {
	if chain == nil {
		return nil, errors.New("chain context must not be nil")
	}

	slog.Info("Stage execution starting",
		"session_id", chain.SessionID,
		"stage", a.stageName,
		"agent", a.config.AgentName,
		"strategy", string(a.config.Strategy))

	stageCtx := &StageContext{
		Chain:            chain,
		StageExecutionID: a.stageExecutionID,
		StageName:        a.stageName,
		StageIndex:       a.stageIndex,
		AgentName:        a.config.AgentName,
		Config:           a.config,
		LLM:              a.llm,
		Prompt:           a.prompt,
	}

	// Declared servers must exist in the registry even for strategies that
	// never call tools; a typo in an agent definition should fail loudly at
	// stage entry, not pass silently.
	if missing := a.missingServers(); len(missing) > 0 {
		return a.failedResult(fmt.Sprintf("MCP servers not configured: %v", missing)), nil
	}

	if a.controller.NeedsTools() {
		executor, err := a.tools.CreateStageExecutor(ctx, chain.SessionID, a.stageExecutionID, a.config.MCPServers)
		if err != nil {
			return a.failedResult(fmt.Sprintf("failed to create tool executor: %v", err)), nil
		}
		defer func() {
			if cerr := executor.Close(); cerr != nil {
				slog.Warn("Tool executor close failed",
					"session_id", chain.SessionID,
					"stage", a.stageName,
					"error", cerr)
			}
		}()
		stageCtx.Tools = executor

		tools, err := executor.ListTools(ctx)
		if err != nil {
			return a.failedResult(fmt.Sprintf("failed to list tools: %v", err)), nil
		}
		stageCtx.AvailableTools = tools
	}

	result, err := a.controller.Execute(ctx, stageCtx)
	if err != nil {
		msg := classifyControllerError(err)
		slog.Warn("Stage execution failed",
			"session_id", chain.SessionID,
			"stage", a.stageName,
			"agent", a.config.AgentName,
			"error", msg)
		return a.failedResult(msg), nil
	}
	if result == nil {
		return a.failedResult("controller returned no result"), nil
	}

	out := &ExecutionResult{
		Status:           models.ExecutionStatusCompleted,
		ResultSummary:    result.Analysis,
		AgentName:        a.config.AgentName,
		StageName:        a.stageName,
		StageDescription: fmt.Sprintf("Stage %d: %s", a.stageIndex+1, a.stageName),
		TimestampUs:      models.NowUs(),
		Iterations:       result.Iterations,
		TokensUsed:       result.TokensUsed,
	}
	// Stage-scoped strategies produce intermediate summaries, not the
	// chain's final analysis; extraction skips them on the reverse pass.
	if a.config.Strategy != config.IterationStrategyReactStage {
		out.FinalAnalysis = result.Analysis
	}

	slog.Info("Stage execution completed",
		"session_id", chain.SessionID,
		"stage", a.stageName,
		"agent", a.config.AgentName,
		"iterations", result.Iterations,
		"total_tokens", result.TokensUsed.TotalTokens)
	return out, nil
}

func (a *BaseAgent) missingServers() []string {
	var missing []string
	for _, serverID := range a.config.MCPServers {
		if !a.registry.Has(serverID) {
			missing = append(missing, serverID)
		}
	}
	return missing
}

func (a *BaseAgent) failedResult(errMsg string) *ExecutionResult {
	return &ExecutionResult{
		Status:       models.ExecutionStatusFailed,
		AgentName:    a.config.AgentName,
		StageName:    a.stageName,
		TimestampUs:  models.NowUs(),
		ErrorMessage: errMsg,
	}
}

// classifyControllerError gives deadline and cancellation failures distinct
// messages so a stage that ran out of time reads differently from one that
// broke.
func classifyControllerError(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("stage timed out: %v", err)
	case errors.Is(err, context.Canceled):
		return fmt.Sprintf("stage cancelled: %v", err)
	default:
		return err.Error()
	}
}

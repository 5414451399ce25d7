package prompt

import (
	"strings"

	"github.com/tarsy-bot/tarsy/pkg/agent"
	"github.com/tarsy-bot/tarsy/pkg/config"
	"github.com/tarsy-bot/tarsy/pkg/llm"
)

// Builder composes the opening conversation for each iteration strategy.
// Stateless and thread-safe; everything comes from the stage context.
//
// User messages follow a fixed section order: investigation context, alert
// details, runbook, prior stage results, available tools, task block.
type Builder struct {
	mcpRegistry *config.MCPServerRegistry
}

// Compile-time check against the agent package's seam.
var _ agent.PromptBuilder = (*Builder)(nil)

// NewBuilder creates a Builder with access to MCP server configs for
// per-server instructions. Panics if mcpRegistry is nil.
func NewBuilder(mcpRegistry *config.MCPServerRegistry) *Builder {
	if mcpRegistry == nil {
		panic("prompt.NewBuilder: mcpRegistry must not be nil")
	}
	return &Builder{mcpRegistry: mcpRegistry}
}

// BuildReActMessages builds the opening conversation for a classic ReAct
// investigation.
func (b *Builder) BuildReActMessages(stageCtx *agent.StageContext) []llm.Message {
	system := b.ComposeInstructions(stageCtx) + "\n\n" + reactFormatInstructions + "\n\n" + taskFocus
	user := b.buildUserMessage(stageCtx, true, analysisTask)
	return []llm.Message{llm.SystemMessage(system), llm.UserMessage(user)}
}

// BuildStageMessages builds the opening conversation for an intermediate
// chain stage. Same grammar as ReAct with a stage-scoped task block.
func (b *Builder) BuildStageMessages(stageCtx *agent.StageContext) []llm.Message {
	system := b.ComposeInstructions(stageCtx) + "\n\n" + reactFormatInstructions + "\n\n" + taskFocus
	user := b.buildUserMessage(stageCtx, true, stageTaskBlock(stageCtx.StageName))
	return []llm.Message{llm.SystemMessage(system), llm.UserMessage(user)}
}

// BuildFinalAnalysisMessages builds the single-call conversation for the
// final analysis. No tool docs and no ReAct grammar; the model answers in
// free form.
func (b *Builder) BuildFinalAnalysisMessages(stageCtx *agent.StageContext) []llm.Message {
	system := b.composeFinalAnalysisInstructions(stageCtx)
	user := b.buildUserMessage(stageCtx, false, finalAnalysisTask)
	return []llm.Message{llm.SystemMessage(system), llm.UserMessage(user)}
}

// BuildNativeThinkingMessages builds the opening conversation for the
// native-thinking strategy. Tools bind natively through the provider, so
// the text carries no tool docs and no ReAct grammar.
func (b *Builder) BuildNativeThinkingMessages(stageCtx *agent.StageContext) []llm.Message {
	system := b.ComposeInstructions(stageCtx) + "\n\n" + taskFocus
	user := b.buildUserMessage(stageCtx, false, analysisTask)
	return []llm.Message{llm.SystemMessage(system), llm.UserMessage(user)}
}

// buildUserMessage assembles the structured user message in the documented
// section order. includeTools controls the textual tool listing; strategies
// with native tool binding leave it out.
func (b *Builder) buildUserMessage(stageCtx *agent.StageContext, includeTools bool, task string) string {
	var sb strings.Builder

	sb.WriteString(FormatContextSection(stageCtx))
	sb.WriteString("\n")

	sb.WriteString(FormatAlertSection(stageCtx.Chain.AlertType, stageCtx.Chain.AlertData))
	sb.WriteString("\n")

	sb.WriteString(FormatRunbookSection(stageCtx.Chain.RunbookContent))
	sb.WriteString("\n")

	sb.WriteString(FormatPriorStages(stageCtx.PriorStages()))
	sb.WriteString("\n")

	if includeTools {
		sb.WriteString("## Available Tools\n")
		sb.WriteString(FormatToolDescriptions(stageCtx.AvailableTools))
		sb.WriteString("\n\n")
	}

	sb.WriteString(task)
	return sb.String()
}

package agent

import (
	"github.com/tarsy-bot/tarsy/pkg/llm"
)

// ChainContext carries the alert-scoped inputs shared by every stage of a
// chain run. The orchestrator builds one per session and threads it through
// the stages; StageOutputs grows as stages finish.
type ChainContext struct {
	SessionID string
	AlertType string

	// AlertData is the normalized alert payload. Opaque to the engine; the
	// prompt builder renders it key by key.
	AlertData map[string]any

	// RunbookContent is the fetched runbook markdown, empty when the alert
	// did not reference one.
	RunbookContent string

	ChainID string

	// CurrentStageName is updated by the orchestrator before each stage runs.
	CurrentStageName string

	// StageOutputs accumulates finished stage results in execution order.
	StageOutputs *StageOutputs
}

// NewChainContext creates a chain context with an empty output list.
func NewChainContext(sessionID, alertType string, alertData map[string]any) *ChainContext {
	return &ChainContext{
		SessionID:    sessionID,
		AlertType:    alertType,
		AlertData:    alertData,
		StageOutputs: NewStageOutputs(),
	}
}

// StageOutput is one finished stage's result as stored in the chain context.
type StageOutput struct {
	StageName string
	Output    map[string]any
}

// StageOutputs holds completed stage results in execution order. Stages run
// sequentially; an entry is appended only after its stage finishes and is
// never mutated afterwards.
type StageOutputs struct {
	entries []StageOutput
}

// NewStageOutputs creates an empty output list.
func NewStageOutputs() *StageOutputs {
	return &StageOutputs{}
}

// Append records a finished stage's output.
func (s *StageOutputs) Append(stageName string, output map[string]any) {
	s.entries = append(s.entries, StageOutput{StageName: stageName, Output: output})
}

// Entries returns the recorded outputs in execution order. The returned
// slice is shared; callers must not modify it.
func (s *StageOutputs) Entries() []StageOutput {
	return s.entries
}

// Len returns the number of recorded outputs.
func (s *StageOutputs) Len() int {
	return len(s.entries)
}

// StageContext is the per-stage view handed to an iteration controller. The
// agent assembles it at stage entry after resolving configuration and
// creating the stage's tool executor.
type StageContext struct {
	Chain *ChainContext

	StageExecutionID string
	StageName        string
	StageIndex       int
	AgentName        string

	// Config is the fully-resolved agent configuration for this stage.
	Config *ResolvedAgentConfig

	// AvailableTools is the stage's tool inventory, listed once before the
	// first iteration. Empty when the strategy takes no tools.
	AvailableTools []llm.ToolDefinition

	LLM    LLMClient
	Tools  ToolExecutor
	Prompt PromptBuilder
}

// SessionID returns the owning session's ID.
func (s *StageContext) SessionID() string {
	return s.Chain.SessionID
}

// PriorStages returns the outputs of stages that ran before this one.
func (s *StageContext) PriorStages() []StageOutput {
	if s.Chain == nil || s.Chain.StageOutputs == nil {
		return nil
	}
	return s.Chain.StageOutputs.Entries()
}

// PromptBuilder builds the initial conversation for each strategy.
// Implemented by prompt.Builder; defined as an interface here to avoid a
// circular import between pkg/agent and pkg/agent/prompt.
type PromptBuilder interface {
	// BuildReActMessages builds the system and user messages opening a
	// classic ReAct conversation.
	BuildReActMessages(stageCtx *StageContext) []llm.Message

	// BuildStageMessages builds the opening messages for a stage-scoped
	// ReAct conversation (stage task block instead of the full analysis
	// task).
	BuildStageMessages(stageCtx *StageContext) []llm.Message

	// BuildFinalAnalysisMessages builds the single-call conversation for
	// the final analysis strategy. No tool documentation is included.
	BuildFinalAnalysisMessages(stageCtx *StageContext) []llm.Message

	// BuildNativeThinkingMessages builds the opening messages for the
	// native-thinking strategy. Tools are bound natively by the provider,
	// so no textual tool docs are included.
	BuildNativeThinkingMessages(stageCtx *StageContext) []llm.Message
}

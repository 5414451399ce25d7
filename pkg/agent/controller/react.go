// Package controller implements the iteration strategies that drive one
// stage to an analysis: the classic ReAct loop, its stage-scoped variant,
// the tool-less final analysis, and provider-native thinking with
// structured tool calls.
package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/tarsy-bot/tarsy/pkg/agent"
	"github.com/tarsy-bot/tarsy/pkg/llm"
	"github.com/tarsy-bot/tarsy/pkg/models"
)

// iterationLimitNote is appended to best-effort analyses produced when the
// loop runs out of iterations before the model gives a Final Answer.
const iterationLimitNote = "Note: the investigation reached its iteration limit before reaching a final answer; the analysis above is based on partial findings."

// reactState is the loop state a partial-analysis extractor can draw from
// when the iteration limit is hit.
type reactState struct {
	// lastThought is the most recent parsed Thought section.
	lastThought string

	// responses holds every assistant response text in order.
	responses []string
}

// partialExtractor produces the best-effort analysis when the loop ends
// without a Final Answer. Returning "" falls through to the default text.
type partialExtractor func(state *reactState) string

// ReActController runs the classic Thought/Action/Action Input/Observation
// loop until the model produces a Final Answer or the iteration limit is
// reached.
type ReActController struct{}

// NewReActController creates the classic ReAct controller.
func NewReActController() *ReActController {
	return &ReActController{}
}

// NeedsTools implements agent.Controller.
func (c *ReActController) NeedsTools() bool { return true }

// Execute implements agent.Controller.
func (c *ReActController) Execute(ctx context.Context, stageCtx *agent.StageContext) (*agent.ControllerResult, error) {
	messages := stageCtx.Prompt.BuildReActMessages(stageCtx)
	return runReActLoop(ctx, stageCtx, messages, nil)
}

// runReActLoop is the loop shared by the classic and stage-scoped ReAct
// controllers. One iteration is one LLM call plus at most one tool call,
// bounded together by the configured iteration timeout. Recoverable
// failures (LLM errors, iteration timeouts, unparseable responses, tool
// failures) become observations and the loop continues; only parent-context
// cancellation aborts it.
func runReActLoop(ctx context.Context, stageCtx *agent.StageContext, messages []llm.Message, extract partialExtractor) (*agent.ControllerResult, error) {
	cfg := stageCtx.Config
	state := &reactState{}
	var tokens models.TokenUsage

	for iteration := 1; iteration <= cfg.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		iterCtx, cancel := context.WithTimeout(ctx, cfg.IterationTimeout)
		resp, err := stageCtx.LLM.Generate(iterCtx, &llm.Request{
			SessionID:        stageCtx.SessionID(),
			StageExecutionID: stageCtx.StageExecutionID,
			StepDescription:  fmt.Sprintf("ReAct iteration %d", iteration),
			Messages:         messages,
		})
		if err != nil {
			cancel()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			messages = append(messages, observationMessage(iterationErrorText("LLM call failed", err)))
			continue
		}
		tokens.Add(resp.Usage)

		messages = append(messages, llm.AssistantMessage(resp.Content))
		state.responses = append(state.responses, resp.Content)

		parsed := ParseReActResponse(resp.Content)
		if parsed.Thought != "" {
			state.lastThought = parsed.Thought
		}

		if parsed.IsComplete {
			cancel()
			return &agent.ControllerResult{
				Analysis:   parsed.FinalAnswer,
				Iterations: iteration,
				TokensUsed: tokens,
			}, nil
		}

		if !parsed.HasAction() {
			cancel()
			messages = append(messages, observationMessage(
				"Error: could not parse an Action from your response. "+
					"Use the exact Thought/Action/Action Input format, or finish with Final Answer."))
			continue
		}

		result, err := stageCtx.Tools.Execute(iterCtx, llm.ToolCall{
			ID:        uuid.NewString(),
			Name:      parsed.Action,
			Arguments: parsed.ActionInput,
		})
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			messages = append(messages, observationMessage(iterationErrorText("Tool execution failed", err)))
			continue
		}
		messages = append(messages, observationMessage(observationText(result)))
	}

	return partialResult(state, extract, cfg.MaxIterations, tokens), nil
}

// partialResult builds the best-effort analysis returned when the loop hit
// its iteration cap without a Final Answer.
func partialResult(state *reactState, extract partialExtractor, iterations int, tokens models.TokenUsage) *agent.ControllerResult {
	var analysis string
	if extract != nil {
		analysis = extract(state)
	}
	if analysis == "" {
		analysis = defaultPartialAnalysis(state)
	}
	return &agent.ControllerResult{
		Analysis:   analysis + "\n\n" + iterationLimitNote,
		Iterations: iterations,
		TokensUsed: tokens,
	}
}

// defaultPartialAnalysis falls back to the last parseable reasoning state.
func defaultPartialAnalysis(state *reactState) string {
	if state.lastThought != "" {
		return "Partial analysis (investigation incomplete):\n\n" + state.lastThought
	}
	if n := len(state.responses); n > 0 {
		return "Partial analysis (investigation incomplete):\n\n" + strings.TrimSpace(state.responses[n-1])
	}
	return "No analysis generated"
}

// observationMessage wraps tool output or an error as the Observation turn
// the model expects next.
func observationMessage(text string) llm.Message {
	return llm.UserMessage("Observation: " + text)
}

// observationText derives the textual observation from a tool result. The
// executor already flattens structured content to pretty-printed JSON or
// raw text.
func observationText(result *agent.ToolResult) string {
	content := strings.TrimSpace(result.Content)
	if content == "" {
		content = "Tool returned no output."
	}
	if result.IsError {
		return "Tool error: " + content
	}
	return content
}

// iterationErrorText classifies a recoverable iteration failure for the
// observation text, distinguishing timeouts from plain errors.
func iterationErrorText(what string, err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("%s: iteration timed out", what)
	}
	return fmt.Sprintf("%s: %v", what, err)
}

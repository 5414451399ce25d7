package controller

import (
	"context"
	"fmt"
	"strings"

	"github.com/tarsy-bot/tarsy/pkg/agent"
	"github.com/tarsy-bot/tarsy/pkg/llm"
	"github.com/tarsy-bot/tarsy/pkg/models"
)

// NativeThinkingController drives the stage with provider-native reasoning
// and structured tool calls instead of the textual ReAct grammar. The
// model's thought signature is threaded between iterations so the provider
// can resume its reasoning chain; a response without tool calls is the
// final analysis.
type NativeThinkingController struct{}

// NewNativeThinkingController creates the native-thinking controller.
func NewNativeThinkingController() *NativeThinkingController {
	return &NativeThinkingController{}
}

// NeedsTools implements agent.Controller.
func (c *NativeThinkingController) NeedsTools() bool { return true }

// Execute implements agent.Controller. Tool calls within one response are
// executed sequentially in the order the model declared them, so the
// result messages line up with the model's tool-call list.
func (c *NativeThinkingController) Execute(ctx context.Context, stageCtx *agent.StageContext) (*agent.ControllerResult, error) {
	cfg := stageCtx.Config
	messages := stageCtx.Prompt.BuildNativeThinkingMessages(stageCtx)

	var tokens models.TokenUsage
	var thoughtSignature string
	var lastContent string

	for iteration := 1; iteration <= cfg.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		iterCtx, cancel := context.WithTimeout(ctx, cfg.IterationTimeout)
		resp, err := stageCtx.LLM.Generate(iterCtx, &llm.Request{
			SessionID:            stageCtx.SessionID(),
			StageExecutionID:     stageCtx.StageExecutionID,
			StepDescription:      fmt.Sprintf("Native thinking iteration %d", iteration),
			Messages:             messages,
			Tools:                stageCtx.AvailableTools,
			ThinkingLevel:        llm.ThinkingHigh,
			PrevThoughtSignature: thoughtSignature,
		})
		if err != nil {
			cancel()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			messages = append(messages, llm.UserMessage(iterationErrorText("Tool Error", err)))
			continue
		}
		tokens.Add(resp.Usage)
		if resp.ThoughtSignature != "" {
			thoughtSignature = resp.ThoughtSignature
		}

		// The provider-shaped conversation keeps the signed thinking
		// blocks intact for the next turn.
		messages = resp.Conversation
		if resp.Content != "" {
			lastContent = resp.Content
		}

		if resp.IsFinal() {
			cancel()
			analysis := strings.TrimSpace(resp.Content)
			if analysis == "" {
				return nil, fmt.Errorf("model finished without content or tool calls")
			}
			return &agent.ControllerResult{
				Analysis:   analysis,
				Iterations: iteration,
				TokensUsed: tokens,
			}, nil
		}

		for _, call := range resp.ToolCalls {
			result, err := stageCtx.Tools.Execute(iterCtx, call)
			if err != nil {
				if ctx.Err() != nil {
					cancel()
					return nil, ctx.Err()
				}
				messages = append(messages, llm.ToolResultMessage(call, iterationErrorText("Tool Error", err), true))
				continue
			}
			messages = append(messages, llm.ToolResultMessage(call, observationText(result), result.IsError))
		}
		cancel()
	}

	analysis := "No analysis generated"
	if lastContent != "" {
		analysis = "Partial analysis (investigation incomplete):\n\n" + strings.TrimSpace(lastContent)
	}
	return &agent.ControllerResult{
		Analysis:   analysis + "\n\n" + iterationLimitNote,
		Iterations: cfg.MaxIterations,
		TokensUsed: tokens,
	}, nil
}

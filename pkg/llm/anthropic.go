package llm

import (
	"context"
	"encoding/json"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/tarsy-bot/tarsy/pkg/config"
)

// messagesClient is the slice of the Anthropic SDK the provider uses. It is
// satisfied by *sdk.MessageService so tests can substitute a stub.
type messagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// anthropicClient implements Client on the Anthropic Messages API, including
// tool use and extended thinking with signature replay.
type anthropicClient struct {
	messages messagesClient
	cfg      *config.LLMProviderConfig
}

func newAnthropicClient(cfg *config.LLMProviderConfig) (*anthropicClient, error) {
	key, err := apiKeyFromEnv(cfg)
	if err != nil {
		return nil, err
	}
	opts := []option.RequestOption{option.WithAPIKey(key)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	ac := sdk.NewClient(opts...)
	return &anthropicClient{messages: &ac.Messages, cfg: cfg}, nil
}

func (c *anthropicClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	params, err := c.prepareParams(req)
	if err != nil {
		return nil, err
	}
	msg, err := c.messages.New(ctx, *params)
	if err != nil {
		return nil, fmt.Errorf("anthropic messages: %w", err)
	}
	return translateAnthropicResponse(req, msg)
}

func (c *anthropicClient) Close() error {
	return nil
}

func (c *anthropicClient) prepareParams(req *Request) (*sdk.MessageNewParams, error) {
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("anthropic: messages are required")
	}
	maxTokens := effectiveMaxTokens(c.cfg)

	conversation, system, err := encodeAnthropicMessages(req)
	if err != nil {
		return nil, err
	}
	params := &sdk.MessageNewParams{
		MaxTokens: int64(maxTokens),
		Messages:  conversation,
		Model:     sdk.Model(c.cfg.Model),
	}
	if len(system) > 0 {
		params.System = system
	}
	tools, err := encodeAnthropicTools(req.Tools)
	if err != nil {
		return nil, err
	}
	if len(tools) > 0 {
		params.Tools = tools
	}

	if req.ThinkingLevel == ThinkingHigh {
		budget := c.cfg.ThinkingBudgetTokens
		if budget <= 0 {
			budget = defaultThinkingBudget
		}
		if budget < 1024 {
			return nil, fmt.Errorf("anthropic: thinking budget %d must be >= 1024", budget)
		}
		if budget >= maxTokens {
			return nil, fmt.Errorf("anthropic: thinking budget %d must be less than max_tokens %d", budget, maxTokens)
		}
		params.Thinking = sdk.ThinkingConfigParamOfEnabled(int64(budget))
	} else if c.cfg.Temperature != nil {
		// Anthropic rejects temperature overrides while thinking is on.
		params.Temperature = sdk.Float(float64(*c.cfg.Temperature))
	}
	return params, nil
}

// encodeAnthropicMessages splits system messages out into the dedicated
// system field and folds the rest into the Messages API shape. Consecutive
// tool messages merge into a single user turn because Anthropic requires all
// tool_result blocks for one assistant turn in the immediately following
// user message.
func encodeAnthropicMessages(req *Request) ([]sdk.MessageParam, []sdk.TextBlockParam, error) {
	conversation := make([]sdk.MessageParam, 0, len(req.Messages))
	var system []sdk.TextBlockParam
	var pendingResults []sdk.ContentBlockParamUnion

	flushResults := func() {
		if len(pendingResults) > 0 {
			conversation = append(conversation, sdk.NewUserMessage(pendingResults...))
			pendingResults = nil
		}
	}

	lastAssistant := lastAssistantIndex(req.Messages)
	for i, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			if m.Content != "" {
				system = append(system, sdk.TextBlockParam{Text: m.Content})
			}
		case RoleUser:
			flushResults()
			conversation = append(conversation, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case RoleAssistant:
			flushResults()
			blocks := make([]sdk.ContentBlockParamUnion, 0, len(m.ToolCalls)+2)
			if m.ThinkingContent != "" {
				signature := m.ThoughtSignature
				if signature == "" && i == lastAssistant {
					signature = req.PrevThoughtSignature
				}
				blocks = append(blocks, sdk.NewThinkingBlock(signature, m.ThinkingContent))
			}
			if m.Content != "" {
				blocks = append(blocks, sdk.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, sdk.NewToolUseBlock(tc.ID, json.RawMessage(tc.Arguments), providerToolName(tc.Name)))
			}
			if len(blocks) == 0 {
				continue
			}
			conversation = append(conversation, sdk.NewAssistantMessage(blocks...))
		case RoleTool:
			pendingResults = append(pendingResults, sdk.NewToolResultBlock(m.ToolCallID, m.Content, m.IsError))
		default:
			return nil, nil, fmt.Errorf("anthropic: unsupported message role %q", m.Role)
		}
	}
	flushResults()
	if len(conversation) == 0 {
		return nil, nil, fmt.Errorf("anthropic: at least one user message is required")
	}
	return conversation, system, nil
}

func lastAssistantIndex(msgs []Message) int {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleAssistant {
			return i
		}
	}
	return -1
}

func encodeAnthropicTools(defs []ToolDefinition) ([]sdk.ToolUnionParam, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	tools := make([]sdk.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		schema, err := anthropicInputSchema(def.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("anthropic: tool %q schema: %w", def.Name, err)
		}
		u := sdk.ToolUnionParamOfTool(schema, providerToolName(def.Name))
		if u.OfTool != nil && def.Description != "" {
			u.OfTool.Description = sdk.String(def.Description)
		}
		tools = append(tools, u)
	}
	return tools, nil
}

func anthropicInputSchema(raw json.RawMessage) (sdk.ToolInputSchemaParam, error) {
	if len(raw) == 0 {
		return sdk.ToolInputSchemaParam{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return sdk.ToolInputSchemaParam{}, err
	}
	return sdk.ToolInputSchemaParam{ExtraFields: m}, nil
}

func translateAnthropicResponse(req *Request, msg *sdk.Message) (*Response, error) {
	if msg == nil {
		return nil, fmt.Errorf("anthropic: response message is nil")
	}
	resp := &Response{StopReason: string(msg.StopReason)}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if resp.Content != "" && block.Text != "" {
				resp.Content += "\n"
			}
			resp.Content += block.Text
		case "thinking":
			resp.ThinkingContent = block.Thinking
			resp.ThoughtSignature = block.Signature
		case "tool_use":
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID:        block.ID,
				Name:      canonicalToolName(block.Name),
				Arguments: string(block.Input),
			})
		}
	}
	resp.Usage.PromptTokens = int(msg.Usage.InputTokens)
	resp.Usage.CompletionTokens = int(msg.Usage.OutputTokens)
	resp.Usage.TotalTokens = int(msg.Usage.InputTokens + msg.Usage.OutputTokens)

	assistant := Message{
		Role:             RoleAssistant,
		Content:          resp.Content,
		ToolCalls:        resp.ToolCalls,
		ThinkingContent:  resp.ThinkingContent,
		ThoughtSignature: resp.ThoughtSignature,
	}
	resp.Conversation = append(append([]Message{}, req.Messages...), assistant)
	return resp, nil
}

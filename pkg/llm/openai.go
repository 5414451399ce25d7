package llm

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/tarsy-bot/tarsy/pkg/config"
)

// chatClient is the slice of go-openai the provider uses, substitutable in
// tests.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// openAIClient implements Client on the OpenAI chat completions API. The
// same client serves xAI Grok through a base_url override since Grok speaks
// the OpenAI protocol. ThinkingLevel is ignored here; reasoning-capable
// models on this protocol reason without an explicit toggle.
type openAIClient struct {
	chat chatClient
	cfg  *config.LLMProviderConfig
}

func newOpenAIClient(cfg *config.LLMProviderConfig) (*openAIClient, error) {
	key, err := apiKeyFromEnv(cfg)
	if err != nil {
		return nil, err
	}
	clientCfg := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &openAIClient{chat: openai.NewClientWithConfig(clientCfg), cfg: cfg}, nil
}

func (c *openAIClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("openai: messages are required")
	}
	chatReq := openai.ChatCompletionRequest{
		Model:     c.cfg.Model,
		Messages:  encodeOpenAIMessages(req.Messages),
		MaxTokens: effectiveMaxTokens(c.cfg),
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = encodeOpenAITools(req.Tools)
	}
	if c.cfg.Temperature != nil {
		chatReq.Temperature = *c.cfg.Temperature
	}

	resp, err := c.chat.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai chat completion: response has no choices")
	}
	return translateOpenAIResponse(req, &resp), nil
}

func (c *openAIClient) Close() error {
	return nil
}

func encodeOpenAIMessages(msgs []Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			result = append(result, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: m.Content,
			})
		case RoleUser:
			result = append(result, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: m.Content,
			})
		case RoleAssistant:
			oaiMsg := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: m.Content,
			}
			for _, tc := range m.ToolCalls {
				oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      providerToolName(tc.Name),
						Arguments: tc.Arguments,
					},
				})
			}
			result = append(result, oaiMsg)
		case RoleTool:
			result = append(result, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    m.Content,
				ToolCallID: m.ToolCallID,
			})
		}
	}
	return result
}

func encodeOpenAITools(defs []ToolDefinition) []openai.Tool {
	result := make([]openai.Tool, len(defs))
	for i, def := range defs {
		var schemaMap map[string]any
		if err := json.Unmarshal(def.InputSchema, &schemaMap); err != nil || schemaMap == nil {
			// A bad or missing schema degrades to an open object so the
			// remaining tools still work.
			schemaMap = map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			}
		}
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        providerToolName(def.Name),
				Description: def.Description,
				Parameters:  schemaMap,
			},
		}
	}
	return result
}

func translateOpenAIResponse(req *Request, resp *openai.ChatCompletionResponse) *Response {
	choice := resp.Choices[0]
	out := &Response{
		Content:    choice.Message.Content,
		StopReason: string(choice.FinishReason),
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      canonicalToolName(tc.Function.Name),
			Arguments: tc.Function.Arguments,
		})
	}
	out.Usage.PromptTokens = resp.Usage.PromptTokens
	out.Usage.CompletionTokens = resp.Usage.CompletionTokens
	out.Usage.TotalTokens = resp.Usage.TotalTokens

	assistant := Message{
		Role:      RoleAssistant,
		Content:   out.Content,
		ToolCalls: out.ToolCalls,
	}
	out.Conversation = append(append([]Message{}, req.Messages...), assistant)
	return out
}

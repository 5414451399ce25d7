package llm

import (
	"encoding/json"

	"github.com/tarsy-bot/tarsy/pkg/models"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn in a conversation. The same shape is used for both
// providers; each provider encodes it into its native wire format.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content,omitempty"`

	// ToolCalls is set on assistant messages that requested tool execution.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID and ToolName are set on tool messages carrying a result
	// back to the model. IsError marks the result as a failure.
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
	IsError    bool   `json:"is_error,omitempty"`

	// ThinkingContent and ThoughtSignature are set on assistant messages
	// produced with extended thinking. Anthropic requires the signed
	// thinking block to be replayed verbatim on the next turn.
	ThinkingContent  string `json:"thinking_content,omitempty"`
	ThoughtSignature string `json:"thought_signature,omitempty"`
}

// ToolCall is one tool invocation requested by the model. Arguments is the
// raw JSON object as emitted by the provider.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition describes one tool advertised to the model. Name uses the
// canonical "server.tool" form; providers sanitize it for their own naming
// rules. InputSchema is the JSON Schema for the arguments object.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// ThinkingLevel selects provider-native reasoning effort. Only anthropic
// acts on it today (extended thinking with the configured token budget);
// reasoning-capable OpenAI-protocol models reason without an explicit knob.
type ThinkingLevel string

const (
	ThinkingOff  ThinkingLevel = ""
	ThinkingHigh ThinkingLevel = "high"
)

// Request is one LLM call. SessionID, StageExecutionID and StepDescription
// are carried through to the interaction record and hook payloads, not sent
// to the provider.
type Request struct {
	SessionID        string
	StageExecutionID string
	StepDescription  string

	Messages []Message
	Tools    []ToolDefinition

	ThinkingLevel ThinkingLevel

	// PrevThoughtSignature threads the signature from the previous
	// assistant turn when the caller rebuilds the conversation without
	// the original signed message.
	PrevThoughtSignature string
}

// Response is the translated provider answer.
type Response struct {
	Content          string
	ToolCalls        []ToolCall
	ThinkingContent  string
	ThoughtSignature string
	Usage            models.TokenUsage
	StopReason       string

	// Conversation is the request messages plus the assistant turn, ready
	// to be extended with tool results and sent back.
	Conversation []Message
}

// IsFinal reports whether the model produced a terminal answer rather than
// tool calls.
func (r *Response) IsFinal() bool {
	return len(r.ToolCalls) == 0
}

// SystemMessage builds a system-role message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a user-role message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant-role message with plain content.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ToolResultMessage builds a tool-role message answering the given call.
func ToolResultMessage(call ToolCall, content string, isErr bool) Message {
	return Message{
		Role:       RoleTool,
		Content:    content,
		ToolCallID: call.ID,
		ToolName:   call.Name,
		IsError:    isErr,
	}
}

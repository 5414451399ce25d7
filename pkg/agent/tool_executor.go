package agent

import (
	"context"
	"fmt"

	"github.com/tarsy-bot/tarsy/pkg/llm"
)

// ToolExecutor abstracts tool execution for iteration controllers. The real
// MCP-backed implementation lives in pkg/mcp; controllers only see this seam.
type ToolExecutor interface {
	// Execute runs a single tool call. Tool failures come back as a result
	// with IsError set; a returned error means the call could not be
	// attempted at all.
	Execute(ctx context.Context, call llm.ToolCall) (*ToolResult, error)

	// ListTools returns the tool definitions available to this stage.
	ListTools(ctx context.Context) ([]llm.ToolDefinition, error)

	// Close releases resources (MCP transports, subprocesses).
	Close() error
}

// ToolResult is the outcome of one tool execution, flattened to text for the
// conversation.
type ToolResult struct {
	CallID  string // matches llm.ToolCall.ID
	Name    string // tool name in server.tool form
	Content string // tool output or error message
	IsError bool
}

// StubToolExecutor returns canned responses for testing.
type StubToolExecutor struct {
	tools []llm.ToolDefinition

	// Responses maps tool name to canned output. Unlisted tools get a
	// generic echo of their arguments.
	Responses map[string]string
}

// NewStubToolExecutor creates a stub executor advertising the given tools.
func NewStubToolExecutor(tools []llm.ToolDefinition) *StubToolExecutor {
	return &StubToolExecutor{tools: tools}
}

func (s *StubToolExecutor) Execute(_ context.Context, call llm.ToolCall) (*ToolResult, error) {
	content, ok := s.Responses[call.Name]
	if !ok {
		content = fmt.Sprintf("[stub] Tool %q called with args: %s", call.Name, call.Arguments)
	}
	return &ToolResult{
		CallID:  call.ID,
		Name:    call.Name,
		Content: content,
	}, nil
}

func (s *StubToolExecutor) ListTools(_ context.Context) ([]llm.ToolDefinition, error) {
	return s.tools, nil
}

func (s *StubToolExecutor) Close() error { return nil }

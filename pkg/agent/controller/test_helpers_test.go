package controller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tarsy-bot/tarsy/pkg/agent"
	"github.com/tarsy-bot/tarsy/pkg/agent/prompt"
	"github.com/tarsy-bot/tarsy/pkg/config"
	"github.com/tarsy-bot/tarsy/pkg/llm"
	"github.com/tarsy-bot/tarsy/pkg/models"
)

// scriptedResponse is one step of a scripted LLM conversation.
type scriptedResponse struct {
	resp *llm.Response
	err  error
}

// scriptedLLM returns canned responses in order and records every request
// for assertions. When the script runs out it repeats the last entry.
type scriptedLLM struct {
	mu       sync.Mutex
	script   []scriptedResponse
	requests []*llm.Request
}

func (s *scriptedLLM) Generate(_ context.Context, req *llm.Request) (*llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
	idx := len(s.requests) - 1
	if idx >= len(s.script) {
		idx = len(s.script) - 1
	}
	step := s.script[idx]
	if step.err != nil {
		return nil, step.err
	}
	resp := *step.resp
	if resp.Conversation == nil {
		resp.Conversation = append(append([]llm.Message{}, req.Messages...), llm.Message{
			Role:             llm.RoleAssistant,
			Content:          resp.Content,
			ToolCalls:        resp.ToolCalls,
			ThoughtSignature: resp.ThoughtSignature,
		})
	}
	return &resp, nil
}

func (s *scriptedLLM) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *scriptedLLM) request(i int) *llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[i]
}

func textResponse(content string) *llm.Response {
	return &llm.Response{
		Content: content,
		Usage:   models.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
}

func toolCallResponse(calls ...llm.ToolCall) *llm.Response {
	return &llm.Response{
		ToolCalls: calls,
		Usage:     models.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
}

// recordingToolExecutor wraps the stub executor and records executed calls.
type recordingToolExecutor struct {
	*agent.StubToolExecutor

	mu    sync.Mutex
	calls []llm.ToolCall
	errs  map[string]error // tool name -> error returned instead of a result
}

func newRecordingToolExecutor(tools []llm.ToolDefinition) *recordingToolExecutor {
	return &recordingToolExecutor{
		StubToolExecutor: agent.NewStubToolExecutor(tools),
		errs:             make(map[string]error),
	}
}

func (r *recordingToolExecutor) Execute(ctx context.Context, call llm.ToolCall) (*agent.ToolResult, error) {
	r.mu.Lock()
	r.calls = append(r.calls, call)
	err := r.errs[call.Name]
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return r.StubToolExecutor.Execute(ctx, call)
}

func (r *recordingToolExecutor) executedCalls() []llm.ToolCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]llm.ToolCall{}, r.calls...)
}

var testTools = []llm.ToolDefinition{
	{Name: "kubernetes-server.kubectl_get", Description: "Get Kubernetes resources"},
	{Name: "kubernetes-server.kubectl_describe", Description: "Describe a Kubernetes resource"},
}

// newStageContext builds a stage context over scripted dependencies, with a
// real prompt builder so the opening conversation matches production.
func newStageContext(t *testing.T, strategy config.IterationStrategy, maxIterations int, client agent.LLMClient, tools agent.ToolExecutor) *agent.StageContext {
	t.Helper()

	chain := agent.NewChainContext("session-1", "kubernetes", map[string]any{
		"namespace": "stuck-ns",
	})
	chain.RunbookContent = "# Namespace stuck in Terminating\n\nCheck finalizers."
	chain.ChainID = "kubernetes-chain"
	chain.CurrentStageName = "data-collection"

	stageCtx := &agent.StageContext{
		Chain:            chain,
		StageExecutionID: "exec-1",
		StageName:        "data-collection",
		StageIndex:       0,
		AgentName:        "KubernetesAgent",
		Config: &agent.ResolvedAgentConfig{
			AgentName:        "KubernetesAgent",
			Strategy:         strategy,
			MaxIterations:    maxIterations,
			IterationTimeout: 5 * time.Second,
			MCPServers:       []string{"kubernetes-server"},
		},
		LLM:    client,
		Tools:  tools,
		Prompt: prompt.NewBuilder(config.NewMCPServerRegistry(nil)),
	}
	if tools != nil {
		stageCtx.AvailableTools = testTools
	}
	return stageCtx
}

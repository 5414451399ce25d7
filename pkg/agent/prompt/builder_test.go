package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-bot/tarsy/pkg/agent"
	"github.com/tarsy-bot/tarsy/pkg/config"
	"github.com/tarsy-bot/tarsy/pkg/llm"
)

func testRegistry() *config.MCPServerRegistry {
	return config.NewMCPServerRegistry(map[string]*config.MCPServerConfig{
		"kubernetes-server": {
			Transport:    config.TransportConfig{Type: config.TransportTypeStdio, Command: "echo"},
			Instructions: "Prefer read-only kubectl operations.",
		},
		"quiet-server": {
			Transport: config.TransportConfig{Type: config.TransportTypeStdio, Command: "echo"},
		},
	})
}

func testStageContext() *agent.StageContext {
	chain := agent.NewChainContext("session-1", "kubernetes", map[string]any{
		"namespace": "production",
		"pod":       "api-58d4f6c9b-x2j7q",
	})
	chain.ChainID = "kubernetes-agent-chain"
	chain.RunbookContent = "# Pod Crash Runbook\n1. Check pod events."
	return &agent.StageContext{
		Chain:     chain,
		StageName: "investigation",
		AgentName: "KubernetesAgent",
		Config: &agent.ResolvedAgentConfig{
			AgentName:          "KubernetesAgent",
			Strategy:           config.IterationStrategyReact,
			MCPServers:         []string{"kubernetes-server"},
			CustomInstructions: "Never suggest deleting namespaces.",
		},
		AvailableTools: []llm.ToolDefinition{
			{Name: "kubernetes-server.get_pods", Description: "List pods in a namespace"},
			{Name: "kubernetes-server.get_events", Description: "List recent events"},
		},
	}
}

// sectionOrder asserts that each marker appears in the given order.
func sectionOrder(t *testing.T, text string, markers ...string) {
	t.Helper()
	last := -1
	for _, marker := range markers {
		idx := strings.Index(text, marker)
		require.GreaterOrEqual(t, idx, 0, "missing section %q", marker)
		require.Greater(t, idx, last, "section %q out of order", marker)
		last = idx
	}
}

func TestBuildReActMessages(t *testing.T) {
	b := NewBuilder(testRegistry())
	messages := b.BuildReActMessages(testStageContext())
	require.Len(t, messages, 2)

	system := messages[0]
	require.Equal(t, llm.RoleSystem, system.Role)
	assert.Contains(t, system.Content, "General SRE Agent Instructions")
	assert.Contains(t, system.Content, "## kubernetes-server Instructions")
	assert.Contains(t, system.Content, "Prefer read-only kubectl operations.")
	assert.Contains(t, system.Content, "## Agent-Specific Instructions")
	assert.Contains(t, system.Content, "Never suggest deleting namespaces.")
	assert.Contains(t, system.Content, "Thought:")
	assert.Contains(t, system.Content, "Action Input:")
	assert.Contains(t, system.Content, "do not write fake Observations")
	assert.Contains(t, system.Content, taskFocus)

	user := messages[1]
	require.Equal(t, llm.RoleUser, user.Role)
	sectionOrder(t, user.Content,
		"## Investigation Context",
		"## Alert Details",
		"## Runbook Content",
		"## Previous Stage Data",
		"## Available Tools",
		"## Your Task")
	assert.Contains(t, user.Content, "kubernetes-server.get_pods: List pods in a namespace")
	assert.Contains(t, user.Content, "**namespace:** production")
	assert.Contains(t, user.Content, "This is the first stage of analysis.")
	assert.Contains(t, user.Content, "Use the available tools to investigate this alert")
}

func TestBuildStageMessages(t *testing.T) {
	b := NewBuilder(testRegistry())
	stageCtx := testStageContext()
	stageCtx.StageName = "data-collection"
	stageCtx.Chain.StageOutputs.Append("triage", map[string]any{
		"status":         "completed",
		"result_summary": "Alert confirmed genuine.",
	})

	messages := b.BuildStageMessages(stageCtx)
	require.Len(t, messages, 2)

	assert.Contains(t, messages[0].Content, "Thought:")

	user := messages[1].Content
	assert.Contains(t, user, `stage "data-collection"`)
	assert.Contains(t, user, "### Stage 1: triage")
	assert.Contains(t, user, "Alert confirmed genuine.")
	assert.Contains(t, user, "## Available Tools")
}

func TestBuildFinalAnalysisMessages(t *testing.T) {
	b := NewBuilder(testRegistry())
	stageCtx := testStageContext()
	stageCtx.AvailableTools = nil
	stageCtx.Chain.StageOutputs.Append("investigation", map[string]any{
		"status":         "completed",
		"final_analysis": "Pods OOM-killed after the memory limit drop.",
	})

	messages := b.BuildFinalAnalysisMessages(stageCtx)
	require.Len(t, messages, 2)

	system := messages[0].Content
	assert.Contains(t, system, "General SRE Analysis Instructions")
	assert.Contains(t, system, "Never suggest deleting namespaces.")
	assert.NotContains(t, system, "Thought:", "final analysis must not carry the ReAct grammar")
	assert.NotContains(t, system, "kubernetes-server Instructions", "no server instructions without tools")

	user := messages[1].Content
	assert.Contains(t, user, "Pods OOM-killed after the memory limit drop.")
	assert.NotContains(t, user, "## Available Tools")
	assert.Contains(t, user, "Do not request further data collection")
}

func TestBuildNativeThinkingMessages(t *testing.T) {
	b := NewBuilder(testRegistry())
	messages := b.BuildNativeThinkingMessages(testStageContext())
	require.Len(t, messages, 2)

	system := messages[0].Content
	assert.Contains(t, system, "General SRE Agent Instructions")
	assert.Contains(t, system, taskFocus)
	assert.NotContains(t, system, "Thought:", "native thinking must not carry the ReAct grammar")

	user := messages[1].Content
	assert.NotContains(t, user, "## Available Tools", "tools bind natively, not as text")
	assert.Contains(t, user, "## Alert Details")
}

func TestBuildReActMessages_NoTools(t *testing.T) {
	b := NewBuilder(testRegistry())
	stageCtx := testStageContext()
	stageCtx.AvailableTools = nil

	messages := b.BuildReActMessages(stageCtx)
	assert.Contains(t, messages[1].Content, "No tools available.")
}

func TestNewBuilder_NilRegistryPanics(t *testing.T) {
	assert.Panics(t, func() { NewBuilder(nil) })
}

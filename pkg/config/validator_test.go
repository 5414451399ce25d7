package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildTestConfig assembles a Config directly from registries, bypassing the
// loader, so validator cases can inject precise misconfigurations.
func buildTestConfig(t *testing.T, agents map[string]*AgentConfig, chains map[string]*ChainConfig,
	servers map[string]*MCPServerConfig, providers map[string]*LLMProviderConfig) *Config {
	t.Helper()

	chainRegistry, err := NewChainRegistry(chains)
	require.NoError(t, err)

	return &Config{
		Defaults:            &Defaults{},
		AgentRegistry:       NewAgentRegistry(agents),
		ChainRegistry:       chainRegistry,
		MCPServerRegistry:   NewMCPServerRegistry(servers),
		LLMProviderRegistry: NewLLMProviderRegistry(providers),
	}
}

func validServers() map[string]*MCPServerConfig {
	return map[string]*MCPServerConfig{
		"server1": {Transport: TransportConfig{Type: TransportTypeStdio, Command: "tool"}},
	}
}

func validProviders() map[string]*LLMProviderConfig {
	return map[string]*LLMProviderConfig{
		"provider1": {Type: LLMProviderTypeAnthropic, Model: "claude-sonnet-4-5"},
	}
}

func TestValidateAllValid(t *testing.T) {
	cfg := buildTestConfig(t,
		map[string]*AgentConfig{
			"Agent1": {MCPServers: []string{"server1"}, IterationStrategy: IterationStrategyReact},
		},
		map[string]*ChainConfig{
			"chain1": {
				AlertTypes: []string{"type1"},
				Stages: []StageConfig{
					{Name: "collect", Agent: "Agent1", IterationStrategy: IterationStrategyReact},
					{Name: "analyze", Agent: "Agent1", IterationStrategy: IterationStrategyReactFinalAnalysis},
				},
			},
		},
		validServers(), validProviders())

	require.NoError(t, NewValidator(cfg).ValidateAll())
}

func TestValidateAgents(t *testing.T) {
	tests := []struct {
		name    string
		agents  map[string]*AgentConfig
		wantErr string
	}{
		{
			name:    "no MCP servers",
			agents:  map[string]*AgentConfig{"Agent1": {}},
			wantErr: "at least one MCP server required",
		},
		{
			name:    "unknown MCP server",
			agents:  map[string]*AgentConfig{"Agent1": {MCPServers: []string{"ghost"}}},
			wantErr: "MCP server 'ghost' not found",
		},
		{
			name: "invalid strategy",
			agents: map[string]*AgentConfig{
				"Agent1": {MCPServers: []string{"server1"}, IterationStrategy: "walk"},
			},
			wantErr: "invalid strategy",
		},
		{
			name: "unknown LLM provider",
			agents: map[string]*AgentConfig{
				"Agent1": {MCPServers: []string{"server1"}, LLMProvider: "ghost"},
			},
			wantErr: "LLM provider 'ghost' not found",
		},
		{
			name: "max iterations below one",
			agents: map[string]*AgentConfig{
				"Agent1": {MCPServers: []string{"server1"}, MaxIterations: IntPtr(0)},
			},
			wantErr: "must be at least 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := buildTestConfig(t, tt.agents, map[string]*ChainConfig{}, validServers(), validProviders())
			err := NewValidator(cfg).ValidateAll()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)

			var vErr *ValidationError
			assert.ErrorAs(t, err, &vErr)
		})
	}
}

func TestValidateChains(t *testing.T) {
	agents := map[string]*AgentConfig{
		"Agent1": {MCPServers: []string{"server1"}},
	}

	tests := []struct {
		name    string
		chain   *ChainConfig
		wantErr string
	}{
		{
			name:    "no alert types",
			chain:   &ChainConfig{Stages: []StageConfig{{Name: "s", Agent: "Agent1"}}},
			wantErr: "at least one alert type required",
		},
		{
			name:    "no stages",
			chain:   &ChainConfig{AlertTypes: []string{"t"}},
			wantErr: "at least one stage required",
		},
		{
			name: "unknown agent",
			chain: &ChainConfig{
				AlertTypes: []string{"t"},
				Stages:     []StageConfig{{Name: "s", Agent: "Ghost"}},
			},
			wantErr: "agent 'Ghost' not found",
		},
		{
			name: "duplicate stage names",
			chain: &ChainConfig{
				AlertTypes: []string{"t"},
				Stages: []StageConfig{
					{Name: "same", Agent: "Agent1"},
					{Name: "same", Agent: "Agent1"},
				},
			},
			wantErr: "duplicate stage name",
		},
		{
			name: "invalid stage strategy",
			chain: &ChainConfig{
				AlertTypes: []string{"t"},
				Stages:     []StageConfig{{Name: "s", Agent: "Agent1", IterationStrategy: "hover"}},
			},
			wantErr: "invalid strategy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := buildTestConfig(t, agents, map[string]*ChainConfig{"chain1": tt.chain}, validServers(), validProviders())
			err := NewValidator(cfg).ValidateAll()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateMCPServers(t *testing.T) {
	tests := []struct {
		name    string
		server  *MCPServerConfig
		wantErr string
	}{
		{
			name:    "invalid transport type",
			server:  &MCPServerConfig{Transport: TransportConfig{Type: "carrier-pigeon"}},
			wantErr: "invalid transport type",
		},
		{
			name:    "stdio without command",
			server:  &MCPServerConfig{Transport: TransportConfig{Type: TransportTypeStdio}},
			wantErr: "required for stdio transport",
		},
		{
			name:    "http without url",
			server:  &MCPServerConfig{Transport: TransportConfig{Type: TransportTypeHTTP}},
			wantErr: "required for http transport",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := buildTestConfig(t, map[string]*AgentConfig{}, map[string]*ChainConfig{},
				map[string]*MCPServerConfig{"bad-server": tt.server}, validProviders())
			err := NewValidator(cfg).ValidateAll()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateLLMProviders(t *testing.T) {
	tests := []struct {
		name     string
		provider *LLMProviderConfig
		wantErr  string
	}{
		{
			name:     "invalid type",
			provider: &LLMProviderConfig{Type: "mystery", Model: "m"},
			wantErr:  "invalid provider type",
		},
		{
			name:     "missing model",
			provider: &LLMProviderConfig{Type: LLMProviderTypeOpenAI},
			wantErr:  "model is required",
		},
		{
			name:     "tool result budget too small",
			provider: &LLMProviderConfig{Type: LLMProviderTypeOpenAI, Model: "m", MaxToolResultTokens: 500},
			wantErr:  "at least 1000",
		},
		{
			name:     "xai without base url",
			provider: &LLMProviderConfig{Type: LLMProviderTypeXAI, Model: "grok-4"},
			wantErr:  "required for xai",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := buildTestConfig(t, map[string]*AgentConfig{}, map[string]*ChainConfig{},
				validServers(), map[string]*LLMProviderConfig{"bad-provider": tt.provider})
			err := NewValidator(cfg).ValidateAll()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateDefaults(t *testing.T) {
	cfg := buildTestConfig(t, map[string]*AgentConfig{}, map[string]*ChainConfig{}, validServers(), validProviders())
	cfg.Defaults = &Defaults{LLMProvider: "ghost"}

	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LLM provider 'ghost' not found")
}

package api

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tarsy-bot/tarsy/pkg/agent"
	"github.com/tarsy-bot/tarsy/pkg/alert"
	"github.com/tarsy-bot/tarsy/pkg/config"
	"github.com/tarsy-bot/tarsy/pkg/models"
	"github.com/tarsy-bot/tarsy/pkg/services"
)

// stubRunner completes every stage immediately.
type stubRunner struct{}

func (stubRunner) Execute(_ context.Context, chain *agent.ChainContext) (*agent.ExecutionResult, error) {
	return &agent.ExecutionResult{
		Status:        models.ExecutionStatusCompleted,
		ResultSummary: "ok",
		FinalAnalysis: "analysis",
		AgentName:     "KubernetesAgent",
		StageName:     chain.CurrentStageName,
		TimestampUs:   models.NowUs(),
		Iterations:    1,
	}, nil
}

type stubAgentFactory struct{}

func (stubAgentFactory) CreateAgent(config.StageConfig, string, int) (alert.StageRunner, error) {
	return stubRunner{}, nil
}

type stubRunbooks struct{}

func (stubRunbooks) Resolve(context.Context, string) (string, error) {
	return "# Runbook", nil
}

func apiTestConfig(t *testing.T) *config.Config {
	t.Helper()

	chains, err := config.NewChainRegistry(map[string]*config.ChainConfig{
		"kubernetes-chain": {
			AlertTypes:  []string{"kubernetes"},
			Description: "Kubernetes troubleshooting",
			Stages: []config.StageConfig{
				{Name: "analysis", Agent: "KubernetesAgent", IterationStrategy: config.IterationStrategyReact},
			},
		},
	})
	require.NoError(t, err)

	return &config.Config{
		Defaults:      &config.Defaults{},
		ChainRegistry: chains,
		AgentRegistry: config.NewAgentRegistry(map[string]*config.AgentConfig{
			"KubernetesAgent": {MCPServers: []string{"kubernetes-server"}},
		}),
		MCPServerRegistry: config.NewMCPServerRegistry(nil),
		LLMProviderRegistry: config.NewLLMProviderRegistry(map[string]*config.LLMProviderConfig{
			"default": {Type: config.LLMProviderTypeAnthropic, Model: "test-model"},
		}),
	}
}

func apiTestSettings() *config.Settings {
	return &config.Settings{
		Host:                   "127.0.0.1",
		Port:                   0,
		CORSOrigins:            []string{"http://localhost:5173"},
		MaxConcurrentAlerts:    5,
		AlertProcessingTimeout: 30_000_000_000,
		LLMIterationTimeout:    5_000_000_000,
		HistoryEnabled:         false,
	}
}

// newTestServer builds a Server over an in-memory alert service with a stub
// agent factory, no database, and no WebSocket manager.
func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := apiTestConfig(t)
	settings := apiTestSettings()
	alerts := alert.NewService(
		cfg,
		settings,
		services.NewDisabledHistoryService(),
		stubRunbooks{},
		stubAgentFactory{},
		nil,
	)
	return NewServer(cfg, settings, alerts, services.NewDisabledHistoryService(), Deps{})
}

package alert

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tarsy-bot/tarsy/pkg/agent"
	"github.com/tarsy-bot/tarsy/pkg/config"
	"github.com/tarsy-bot/tarsy/pkg/models"
	"github.com/tarsy-bot/tarsy/pkg/services"
)

// scriptedRunner returns a canned execution result, optionally blocking
// until released so tests can hold an alert in flight.
type scriptedRunner struct {
	result  *agent.ExecutionResult
	err     error
	block   chan struct{} // when non-nil, Execute waits for close or ctx
	started chan struct{} // closed once Execute is entered, when non-nil
}

func (r *scriptedRunner) Execute(ctx context.Context, _ *agent.ChainContext) (*agent.ExecutionResult, error) {
	if r.started != nil {
		close(r.started)
	}
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return r.result, r.err
}

// scriptedAgentFactory hands out runners per stage name.
type scriptedAgentFactory struct {
	mu      sync.Mutex
	runners map[string]*scriptedRunner // stage name -> runner
	err     error
	created []string
}

func (f *scriptedAgentFactory) CreateAgent(stage config.StageConfig, _ string, _ int) (StageRunner, error) {
	f.mu.Lock()
	f.created = append(f.created, stage.Name)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	runner, ok := f.runners[stage.Name]
	if !ok {
		runner = &scriptedRunner{result: completedResult(stage.Name, "analysis for "+stage.Name)}
	}
	return runner, nil
}

func completedResult(stageName, analysis string) *agent.ExecutionResult {
	return &agent.ExecutionResult{
		Status:        models.ExecutionStatusCompleted,
		ResultSummary: analysis,
		FinalAnalysis: analysis,
		AgentName:     "KubernetesAgent",
		StageName:     stageName,
		TimestampUs:   models.NowUs(),
		Iterations:    2,
	}
}

func failedResult(stageName, errMsg string) *agent.ExecutionResult {
	return &agent.ExecutionResult{
		Status:       models.ExecutionStatusFailed,
		AgentName:    "KubernetesAgent",
		StageName:    stageName,
		TimestampUs:  models.NowUs(),
		ErrorMessage: errMsg,
	}
}

// staticRunbooks resolves every URL to fixed content.
type staticRunbooks struct {
	content string
	err     error
}

func (r staticRunbooks) Resolve(_ context.Context, _ string) (string, error) {
	return r.content, r.err
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	chains, err := config.NewChainRegistry(map[string]*config.ChainConfig{
		"kubernetes-chain": {
			AlertTypes: []string{"kubernetes"},
			Stages: []config.StageConfig{
				{Name: "data-collection", Agent: "KubernetesAgent", IterationStrategy: config.IterationStrategyReact},
				{Name: "verification", Agent: "KubernetesAgent", IterationStrategy: config.IterationStrategyReactStage},
				{Name: "analysis", Agent: "KubernetesAgent", IterationStrategy: config.IterationStrategyReactFinalAnalysis},
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

func testSettings() *config.Settings {
	return &config.Settings{
		MaxConcurrentAlerts:    5,
		AlertProcessingTimeout: 30 * time.Second,
		LLMIterationTimeout:    5 * time.Second,
		HistoryEnabled:         false,
	}
}

func disabledHistory() *services.HistoryService {
	return services.NewDisabledHistoryService()
}

func newTestService(t *testing.T, factory AgentFactory) *Service {
	t.Helper()
	return NewService(
		testConfig(t),
		testSettings(),
		services.NewDisabledHistoryService(),
		staticRunbooks{content: "# Runbook"},
		factory,
		nil,
	)
}

func kubernetesAlert() models.Alert {
	return models.Alert{
		AlertType: "kubernetes",
		Runbook:   "https://example.com/runbooks/stuck-namespace.md",
		Data:      map[string]any{"namespace": "stuck-ns", "environment": "production"},
		Severity:  "critical",
	}
}

package agent

import (
	"fmt"
	"time"

	"github.com/tarsy-bot/tarsy/pkg/config"
)

// LLMForProvider returns the client for a resolved provider name. Wired to
// the llm package's provider pool at startup.
type LLMForProvider func(providerName string) (LLMClient, error)

// Factory creates a fresh agent per stage execution. Agents are never
// shared between stages; all shared state lives in the dependencies the
// factory holds.
type Factory struct {
	cfg              *config.Config
	iterationTimeout time.Duration
	controllers      ControllerFactory
	llmFor           LLMForProvider
	tools            ToolExecutorFactory
	prompt           PromptBuilder
}

// NewFactory creates an agent factory. iterationTimeout bounds each
// controller iteration; zero selects the default.
func NewFactory(
	cfg *config.Config,
	iterationTimeout time.Duration,
	controllers ControllerFactory,
	llmFor LLMForProvider,
	tools ToolExecutorFactory,
	prompt PromptBuilder,
) *Factory {
	return &Factory{
		cfg:              cfg,
		iterationTimeout: iterationTimeout,
		controllers:      controllers,
		llmFor:           llmFor,
		tools:            tools,
		prompt:           prompt,
	}
}

// CreateAgent resolves the stage's configuration and assembles an agent
// ready to execute it. stageExecutionID identifies the stage execution row
// the run will be recorded under.
func (f *Factory) CreateAgent(stage config.StageConfig, stageExecutionID string, stageIndex int) (*BaseAgent, error) {
	resolved, err := ResolveAgentConfig(f.cfg, stage, f.iterationTimeout)
	if err != nil {
		return nil, err
	}

	controller, err := f.controllers.CreateController(resolved.Strategy)
	if err != nil {
		return nil, fmt.Errorf("failed to create controller for strategy %q: %w", resolved.Strategy, err)
	}

	client, err := f.llmFor(resolved.LLMProviderName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve LLM client for provider %q: %w", resolved.LLMProviderName, err)
	}

	return &BaseAgent{
		stageExecutionID: stageExecutionID,
		stageName:        stage.Name,
		stageIndex:       stageIndex,
		config:           resolved,
		controller:       controller,
		llm:              client,
		tools:            f.tools,
		prompt:           f.prompt,
		registry:         f.cfg.MCPServerRegistry,
	}, nil
}

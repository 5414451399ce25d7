package agent

import (
	"fmt"
	"time"

	"github.com/tarsy-bot/tarsy/pkg/config"
)

// DefaultIterationTimeout bounds a single iteration (one LLM call plus its
// tool execution). Each iteration gets its own context.WithTimeout derived
// from the stage context, so one stuck call cannot consume the whole
// session budget.
const DefaultIterationTimeout = 300 * time.Second

// ResolvedAgentConfig is the fully-resolved configuration for one stage
// execution. All hierarchy levels (defaults, agent definition, stage
// override) have been applied.
type ResolvedAgentConfig struct {
	AgentName          string
	Strategy           config.IterationStrategy
	LLMProvider        *config.LLMProviderConfig
	LLMProviderName    string // resolved provider key, for records and logs
	MaxIterations      int
	IterationTimeout   time.Duration
	MCPServers         []string
	CustomInstructions string
}

// ResolveAgentConfig builds the final configuration for a stage by applying
// the hierarchy: defaults, then the agent definition, then the stage's
// strategy override. Later values win. iterationTimeout comes from runtime
// settings; zero selects DefaultIterationTimeout.
func ResolveAgentConfig(cfg *config.Config, stage config.StageConfig, iterationTimeout time.Duration) (*ResolvedAgentConfig, error) {
	if stage.Agent == "" {
		return nil, fmt.Errorf("stage %q has no agent", stage.Name)
	}

	agentDef, err := cfg.GetAgent(stage.Agent)
	if err != nil {
		return nil, fmt.Errorf("agent %q not found: %w", stage.Agent, err)
	}

	defaults := cfg.Defaults
	if defaults == nil {
		defaults = &config.Defaults{}
	}

	strategy := defaults.IterationStrategy
	if agentDef.IterationStrategy != "" {
		strategy = agentDef.IterationStrategy
	}
	if stage.IterationStrategy != "" {
		strategy = stage.IterationStrategy
	}
	if strategy == "" {
		strategy = config.DefaultIterationStrategy
	}
	if !strategy.IsValid() {
		return nil, fmt.Errorf("agent %q resolved to unknown iteration strategy %q", stage.Agent, strategy)
	}

	providerName := defaults.LLMProvider
	if agentDef.LLMProvider != "" {
		providerName = agentDef.LLMProvider
	}
	if providerName == "" {
		providerName = config.DefaultLLMProvider
	}
	provider, err := cfg.GetLLMProvider(providerName)
	if err != nil {
		return nil, fmt.Errorf("LLM provider %q not found: %w", providerName, err)
	}

	maxIter := config.DefaultMaxIterations
	if defaults.MaxIterations != nil {
		maxIter = *defaults.MaxIterations
	}
	if agentDef.MaxIterations != nil {
		maxIter = *agentDef.MaxIterations
	}
	if maxIter < 1 {
		return nil, fmt.Errorf("agent %q resolved to max_iterations %d, must be at least 1", stage.Agent, maxIter)
	}

	if iterationTimeout <= 0 {
		iterationTimeout = DefaultIterationTimeout
	}

	return &ResolvedAgentConfig{
		AgentName:          stage.Agent,
		Strategy:           strategy,
		LLMProvider:        provider,
		LLMProviderName:    providerName,
		MaxIterations:      maxIter,
		IterationTimeout:   iterationTimeout,
		MCPServers:         agentDef.MCPServers,
		CustomInstructions: agentDef.CustomInstructions,
	}, nil
}

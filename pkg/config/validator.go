package config

import "fmt"

// ConfigValidator validates configuration comprehensively with clear error messages
type ConfigValidator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration
func NewValidator(cfg *Config) *ConfigValidator {
	return &ConfigValidator{cfg: cfg}
}

// ValidateAll performs comprehensive validation (fail-fast, stops at first error)
func (v *ConfigValidator) ValidateAll() error {
	// Validate in order: MCP servers → LLM providers → agents → chains.
	// This ensures dependencies are validated before dependents.

	if err := v.validateMCPServers(); err != nil {
		return fmt.Errorf("MCP server validation failed: %w", err)
	}

	if err := v.validateLLMProviders(); err != nil {
		return fmt.Errorf("LLM provider validation failed: %w", err)
	}

	if err := v.validateAgents(); err != nil {
		return fmt.Errorf("agent validation failed: %w", err)
	}

	if err := v.validateChains(); err != nil {
		return fmt.Errorf("chain validation failed: %w", err)
	}

	if err := v.validateDefaults(); err != nil {
		return fmt.Errorf("defaults validation failed: %w", err)
	}

	return nil
}

func (v *ConfigValidator) validateMCPServers() error {
	for serverID, server := range v.cfg.MCPServerRegistry.GetAll() {
		transport := server.Transport

		if !transport.Type.IsValid() {
			return NewValidationError("mcp_server", serverID, "transport.type", fmt.Errorf("invalid transport type: %s", transport.Type))
		}

		switch transport.Type {
		case TransportTypeStdio:
			if transport.Command == "" {
				return NewValidationError("mcp_server", serverID, "transport.command", fmt.Errorf("required for stdio transport"))
			}
		case TransportTypeHTTP, TransportTypeSSE:
			if transport.URL == "" {
				return NewValidationError("mcp_server", serverID, "transport.url", fmt.Errorf("required for %s transport", transport.Type))
			}
		}

		if transport.Timeout < 0 {
			return NewValidationError("mcp_server", serverID, "transport.timeout", fmt.Errorf("must not be negative"))
		}
	}

	return nil
}

func (v *ConfigValidator) validateLLMProviders() error {
	for name, provider := range v.cfg.LLMProviderRegistry.GetAll() {
		if !provider.Type.IsValid() {
			return NewValidationError("llm_provider", name, "type", fmt.Errorf("invalid provider type: %s", provider.Type))
		}

		if provider.Model == "" {
			return NewValidationError("llm_provider", name, "model", fmt.Errorf("model is required"))
		}

		if provider.MaxToolResultTokens != 0 && provider.MaxToolResultTokens < 1000 {
			return NewValidationError("llm_provider", name, "max_tool_result_tokens", fmt.Errorf("must be at least 1000"))
		}

		if provider.Type == LLMProviderTypeXAI && provider.BaseURL == "" {
			return NewValidationError("llm_provider", name, "base_url", fmt.Errorf("required for xai providers"))
		}
	}

	return nil
}

func (v *ConfigValidator) validateAgents() error {
	for name, agent := range v.cfg.AgentRegistry.GetAll() {
		// Every agent needs at least one MCP server, and all must exist
		if len(agent.MCPServers) == 0 {
			return NewValidationError("agent", name, "mcp_servers", fmt.Errorf("at least one MCP server required"))
		}

		for _, serverID := range agent.MCPServers {
			if !v.cfg.MCPServerRegistry.Has(serverID) {
				return NewValidationError("agent", name, "mcp_servers", fmt.Errorf("MCP server '%s' not found", serverID))
			}
		}

		if agent.IterationStrategy != "" && !agent.IterationStrategy.IsValid() {
			return NewValidationError("agent", name, "iteration_strategy", fmt.Errorf("invalid strategy: %s", agent.IterationStrategy))
		}

		if agent.LLMProvider != "" && !v.cfg.LLMProviderRegistry.Has(agent.LLMProvider) {
			return NewValidationError("agent", name, "llm_provider", fmt.Errorf("LLM provider '%s' not found", agent.LLMProvider))
		}

		if agent.MaxIterations != nil && *agent.MaxIterations < 1 {
			return NewValidationError("agent", name, "max_iterations", fmt.Errorf("must be at least 1"))
		}
	}

	return nil
}

func (v *ConfigValidator) validateChains() error {
	for chainID, chain := range v.cfg.ChainRegistry.GetAll() {
		if len(chain.AlertTypes) == 0 {
			return NewValidationError("chain", chainID, "alert_types", fmt.Errorf("at least one alert type required"))
		}

		if len(chain.Stages) == 0 {
			return NewValidationError("chain", chainID, "stages", fmt.Errorf("at least one stage required"))
		}

		seen := make(map[string]bool, len(chain.Stages))
		for i, stage := range chain.Stages {
			if stage.Name == "" {
				return NewValidationError("chain", chainID, fmt.Sprintf("stages[%d].name", i), fmt.Errorf("stage name is required"))
			}
			if seen[stage.Name] {
				return NewValidationError("chain", chainID, fmt.Sprintf("stages[%d].name", i), fmt.Errorf("duplicate stage name '%s'", stage.Name))
			}
			seen[stage.Name] = true

			if stage.Agent == "" {
				return NewValidationError("chain", chainID, fmt.Sprintf("stages[%d].agent", i), fmt.Errorf("agent is required"))
			}
			if !v.cfg.AgentRegistry.Has(stage.Agent) {
				return NewValidationError("chain", chainID, fmt.Sprintf("stages[%d].agent", i), fmt.Errorf("agent '%s' not found", stage.Agent))
			}

			if stage.IterationStrategy != "" && !stage.IterationStrategy.IsValid() {
				return NewValidationError("chain", chainID, fmt.Sprintf("stages[%d].iteration_strategy", i), fmt.Errorf("invalid strategy: %s", stage.IterationStrategy))
			}
		}
	}

	return nil
}

func (v *ConfigValidator) validateDefaults() error {
	defaults := v.cfg.Defaults
	if defaults == nil {
		return nil
	}

	if defaults.LLMProvider != "" && !v.cfg.LLMProviderRegistry.Has(defaults.LLMProvider) {
		return NewValidationError("defaults", "defaults", "llm_provider", fmt.Errorf("LLM provider '%s' not found", defaults.LLMProvider))
	}

	if defaults.IterationStrategy != "" && !defaults.IterationStrategy.IsValid() {
		return NewValidationError("defaults", "defaults", "iteration_strategy", fmt.Errorf("invalid strategy: %s", defaults.IterationStrategy))
	}

	if defaults.MaxIterations != nil && *defaults.MaxIterations < 1 {
		return NewValidationError("defaults", "defaults", "max_iterations", fmt.Errorf("must be at least 1"))
	}

	return nil
}

package config

import "fmt"

// Merge helpers combining built-in and user-defined configurations.
// Agents, MCP servers, and LLM providers follow override semantics: a user
// entry with the same name replaces the built-in one. Chains do not: chain
// IDs are globally unique across both sources and a duplicate is a startup
// error, as is any overlap in claimed alert types (checked by the registry).

func mergeAgents(builtin map[string]AgentConfig, user map[string]AgentConfig) map[string]*AgentConfig {
	merged := make(map[string]*AgentConfig, len(builtin)+len(user))

	for name, cfg := range builtin {
		c := cfg
		merged[name] = &c
	}
	for name, cfg := range user {
		c := cfg
		merged[name] = &c
	}

	return merged
}

func mergeMCPServers(builtin map[string]MCPServerConfig, user map[string]MCPServerConfig) map[string]*MCPServerConfig {
	merged := make(map[string]*MCPServerConfig, len(builtin)+len(user))

	for id, cfg := range builtin {
		c := cfg
		merged[id] = &c
	}
	for id, cfg := range user {
		c := cfg
		merged[id] = &c
	}

	return merged
}

func mergeLLMProviders(builtin map[string]LLMProviderConfig, user map[string]LLMProviderConfig) map[string]*LLMProviderConfig {
	merged := make(map[string]*LLMProviderConfig, len(builtin)+len(user))

	for name, cfg := range builtin {
		c := cfg
		merged[name] = &c
	}
	for name, cfg := range user {
		c := cfg
		merged[name] = &c
	}

	return merged
}

func mergeChains(builtin map[string]ChainConfig, user map[string]ChainConfig) (map[string]*ChainConfig, error) {
	merged := make(map[string]*ChainConfig, len(builtin)+len(user))

	for id, cfg := range builtin {
		c := cfg
		merged[id] = &c
	}
	for id, cfg := range user {
		if _, exists := merged[id]; exists {
			return nil, fmt.Errorf("%w: chain ID '%s' is defined both built-in and in user configuration", ErrChainConflict, id)
		}
		c := cfg
		merged[id] = &c
	}

	return merged, nil
}

// Package llm talks to LLM providers. A provider-neutral conversation model
// (Message, ToolCall, ToolDefinition) is encoded into each provider's native
// API by a Client implementation; the Manager wraps a Client with timeline
// hooks, metrics and timeout classification.
package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/tarsy-bot/tarsy/pkg/config"
)

const (
	// defaultMaxTokens bounds a single completion when the provider config
	// does not set max_tokens.
	defaultMaxTokens = 8192

	// defaultThinkingBudget is the extended-thinking token budget when the
	// provider config does not set thinking_budget_tokens. Anthropic
	// requires at least 1024 and less than max_tokens.
	defaultThinkingBudget = 4096
)

// Client generates completions from one configured provider.
type Client interface {
	// Generate issues one non-streaming completion call.
	Generate(ctx context.Context, req *Request) (*Response, error)

	// Close releases provider resources.
	Close() error
}

// NewClient builds the provider client for the given configuration. The API
// key is read from the environment variable named by APIKeyEnv.
func NewClient(cfg *config.LLMProviderConfig) (Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("llm provider config is nil")
	}
	switch cfg.Type {
	case config.LLMProviderTypeAnthropic:
		return newAnthropicClient(cfg)
	case config.LLMProviderTypeOpenAI:
		return newOpenAIClient(cfg)
	case config.LLMProviderTypeXAI:
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("llm provider type %q requires base_url", cfg.Type)
		}
		return newOpenAIClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported llm provider type %q", cfg.Type)
	}
}

// apiKeyFromEnv resolves the provider API key, failing when the variable is
// unset or empty so misconfiguration surfaces at startup rather than on the
// first alert.
func apiKeyFromEnv(cfg *config.LLMProviderConfig) (string, error) {
	if cfg.APIKeyEnv == "" {
		return "", fmt.Errorf("llm provider type %q has no api_key_env configured", cfg.Type)
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return "", fmt.Errorf("environment variable %s is not set", cfg.APIKeyEnv)
	}
	return key, nil
}

// effectiveMaxTokens applies the configured completion cap or the default.
func effectiveMaxTokens(cfg *config.LLMProviderConfig) int {
	if cfg.MaxTokens > 0 {
		return cfg.MaxTokens
	}
	return defaultMaxTokens
}

// Canonical tool names are "server.tool". Provider tool-name rules disallow
// dots, so tools are advertised as "server__tool" and responses are mapped
// back before anything outside this package sees them.

func providerToolName(name string) string {
	return strings.ReplaceAll(name, ".", "__")
}

func canonicalToolName(name string) string {
	if i := strings.Index(name, "__"); i > 0 {
		return name[:i] + "." + name[i+2:]
	}
	return name
}

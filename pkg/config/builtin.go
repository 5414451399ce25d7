package config

import "sync"

// BuiltinConfig holds all built-in component definitions that ship with the
// binary. User YAML merges on top of these at load time.
type BuiltinConfig struct {
	Agents           map[string]AgentConfig
	MCPServers       map[string]MCPServerConfig
	LLMProviders     map[string]LLMProviderConfig
	ChainDefinitions map[string]ChainConfig
	MaskingPatterns  map[string]MaskingPattern
	PatternGroups    map[string][]string
	CodeMaskers      map[string]string
	DefaultRunbook   string
	DefaultAlertType string
}

var (
	builtinConfig     *BuiltinConfig
	builtinConfigOnce sync.Once
)

// GetBuiltinConfig returns the singleton built-in configuration
func GetBuiltinConfig() *BuiltinConfig {
	builtinConfigOnce.Do(func() {
		builtinConfig = &BuiltinConfig{
			Agents:           initBuiltinAgents(),
			MCPServers:       initBuiltinMCPServers(),
			LLMProviders:     initBuiltinLLMProviders(),
			ChainDefinitions: initBuiltinChains(),
			MaskingPatterns:  initBuiltinMaskingPatterns(),
			PatternGroups:    initBuiltinPatternGroups(),
			CodeMaskers:      initBuiltinCodeMaskers(),
			DefaultRunbook:   defaultRunbookContent,
			DefaultAlertType: "kubernetes",
		}
	})
	return builtinConfig
}

func initBuiltinAgents() map[string]AgentConfig {
	return map[string]AgentConfig{
		"KubernetesAgent": {
			Description: "Kubernetes cluster and workload analysis",
			MCPServers:  []string{"kubernetes-server"},
			CustomInstructions: `For Kubernetes problems, work from the namespace inward: check the
namespace state first, then the workloads it contains, then events and
logs for anything unhealthy. Never suggest destructive operations
(delete, drain, cordon) without flagging them as requiring human
approval. Report resource names exactly as the cluster returns them.`,
		},
	}
}

func initBuiltinMCPServers() map[string]MCPServerConfig {
	return map[string]MCPServerConfig{
		"kubernetes-server": {
			Transport: TransportConfig{
				Type:    TransportTypeStdio,
				Command: "npx",
				Args:    []string{"-y", "kubernetes-mcp-server@latest"},
			},
			Instructions: `Kubernetes cluster inspection tools. Prefer read-only operations
(get, list, describe, logs, events). Resource output is YAML unless a
tool documents otherwise.`,
			DataMasking: &MaskingConfig{
				Enabled:       true,
				PatternGroups: []string{"kubernetes"},
				Patterns:      []string{"certificate", "token"},
			},
		},
	}
}

func initBuiltinLLMProviders() map[string]LLMProviderConfig {
	return map[string]LLMProviderConfig{
		"anthropic-default": {
			Type:                 LLMProviderTypeAnthropic,
			Model:                "claude-sonnet-4-5",
			APIKeyEnv:            "ANTHROPIC_API_KEY",
			MaxToolResultTokens:  250000,
			ThinkingBudgetTokens: 8192,
		},
		"openai-default": {
			Type:                LLMProviderTypeOpenAI,
			Model:               "gpt-5",
			APIKeyEnv:           "OPENAI_API_KEY",
			MaxToolResultTokens: 250000,
		},
		"xai-default": {
			Type:                LLMProviderTypeXAI,
			Model:               "grok-4",
			APIKeyEnv:           "XAI_API_KEY",
			BaseURL:             "https://api.x.ai/v1",
			MaxToolResultTokens: 180000,
		},
	}
}

func initBuiltinChains() map[string]ChainConfig {
	return map[string]ChainConfig{
		"kubernetes-agent-chain": {
			AlertTypes:  []string{"kubernetes", "NamespaceTerminating"},
			Description: "Multi-stage Kubernetes analysis",
			Stages: []StageConfig{
				{
					Name:              "data-collection",
					Agent:             "KubernetesAgent",
					IterationStrategy: IterationStrategyReact,
				},
				{
					Name:              "verification",
					Agent:             "KubernetesAgent",
					IterationStrategy: IterationStrategyReactStage,
				},
				{
					Name:              "analysis",
					Agent:             "KubernetesAgent",
					IterationStrategy: IterationStrategyReactFinalAnalysis,
				},
			},
		},
	}
}

func initBuiltinMaskingPatterns() map[string]MaskingPattern {
	return map[string]MaskingPattern{
		"api_key": {
			Pattern:     `(?i)(?:api[_-]?key|apikey)["']?\s*[:=]\s*["']?([A-Za-z0-9_\-]{20,})["']?`,
			Replacement: `"api_key": "[MASKED_API_KEY]"`,
			Description: "API keys",
		},
		"password": {
			Pattern:     `(?i)(?:password|pwd|pass)["']?\s*[:=]\s*["']?([^"'\s\n]{6,})["']?`,
			Replacement: `"password": "[MASKED_PASSWORD]"`,
			Description: "Passwords",
		},
		"certificate": {
			Pattern:     `(?s)-----BEGIN [A-Z ]+-----.*?-----END [A-Z ]+-----`,
			Replacement: `[MASKED_CERTIFICATE]`,
			Description: "SSL/TLS certificates",
		},
		"certificate_authority_data": {
			Pattern:     `(?i)certificate-authority-data:\s*([A-Za-z0-9+/]{20,}={0,2})`,
			Replacement: `certificate-authority-data: [MASKED_CA_CERTIFICATE]`,
			Description: "K8s CA data",
		},
		"token": {
			Pattern:     `(?i)(?:token|bearer|jwt)["']?\s*[:=]\s*["']?([A-Za-z0-9_\-\.]{20,})["']?`,
			Replacement: `"token": "[MASKED_TOKEN]"`,
			Description: "Access tokens",
		},
		"email": {
			Pattern:     `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9]+(?:[.-][A-Za-z0-9]+)*\.[A-Za-z]{2,63}\b`,
			Replacement: `[MASKED_EMAIL]`,
			Description: "Email addresses",
		},
		"ssh_key": {
			Pattern:     `ssh-(?:rsa|dss|ed25519|ecdsa)\s+[A-Za-z0-9+/=]+`,
			Replacement: `[MASKED_SSH_KEY]`,
			Description: "SSH public keys",
		},
		"private_key": {
			Pattern:     `(?i)(?:private[_-]?key)["']?\s*[:=]\s*["']?([A-Za-z0-9_\-\.]{20,})["']?`,
			Replacement: `"private_key": "[MASKED_PRIVATE_KEY]"`,
			Description: "Private keys",
		},
		"secret_key": {
			Pattern:     `(?i)(?:secret[_-]?key)["']?\s*[:=]\s*["']?([A-Za-z0-9_\-\.]{20,})["']?`,
			Replacement: `"secret_key": "[MASKED_SECRET_KEY]"`,
			Description: "Secret keys",
		},
		"aws_access_key": {
			Pattern:     `(?i)(?:aws[_-]?access[_-]?key[_-]?id)["']?\s*[:=]\s*["']?(AKIA[A-Z0-9]{16})["']?`,
			Replacement: `"aws_access_key_id": "[MASKED_AWS_KEY]"`,
			Description: "AWS access keys",
		},
		"aws_secret_key": {
			Pattern:     `(?i)(?:aws[_-]?secret[_-]?access[_-]?key)["']?\s*[:=]\s*["']?([A-Za-z0-9/+=]{40})["']?`,
			Replacement: `"aws_secret_access_key": "[MASKED_AWS_SECRET]"`,
			Description: "AWS secret keys",
		},
		"github_token": {
			Pattern:     `(?i)(?:github[_-]?token|gh[ps]_[A-Za-z0-9_]{36,255})`,
			Replacement: `[MASKED_GITHUB_TOKEN]`,
			Description: "GitHub tokens",
		},
		"slack_token": {
			Pattern:     `(?i)xox[baprs]-[A-Za-z0-9-]{10,72}`,
			Replacement: `[MASKED_SLACK_TOKEN]`,
			Description: "Slack tokens",
		},
		"base64_secret": {
			Pattern:     `\b([A-Za-z0-9+/]{20,}={0,2})\b`,
			Replacement: `[MASKED_BASE64_VALUE]`,
			Description: "Base64 values (20+ chars)",
		},
		"base64_short": {
			Pattern:     `:\s+([A-Za-z0-9+/]{4,19}={0,2})(?:\s|$)`,
			Replacement: `: [MASKED_SHORT_BASE64]`,
			Description: "Short base64 values",
		},
	}
}

// initBuiltinPatternGroups returns predefined groups of masking patterns.
// Group members reference either MaskingPatterns (regex-based) or
// CodeMaskers (structural parsers, e.g. kubernetes_secret).
func initBuiltinPatternGroups() map[string][]string {
	return map[string][]string{
		"basic":      {"api_key", "password"},
		"secrets":    {"api_key", "password", "token", "private_key", "secret_key"},
		"security":   {"api_key", "password", "token", "certificate", "certificate_authority_data", "email", "ssh_key"},
		"kubernetes": {"kubernetes_secret", "api_key", "password", "certificate_authority_data"},
		"cloud":      {"aws_access_key", "aws_secret_key", "api_key", "token"},
		"all": {
			"base64_secret", "base64_short", "api_key", "password", "certificate",
			"certificate_authority_data", "email", "token", "ssh_key", "private_key",
			"secret_key", "aws_access_key", "aws_secret_key", "github_token", "slack_token",
		},
	}
}

// initBuiltinCodeMaskers returns code-based maskers for masking that needs
// structural parsing rather than a regex. The kubernetes_secret masker
// parses YAML/JSON tool results and masks Secret data values while leaving
// ConfigMaps untouched. Implementations live in pkg/masking.
func initBuiltinCodeMaskers() map[string]string {
	return map[string]string{
		"kubernetes_secret": "masking.KubernetesSecretMasker",
	}
}

const defaultRunbookContent = `# Generic Troubleshooting Guide

## Investigation Steps

1. **Analyze the alert** - Review alert data and identify affected system/service
2. **Gather context** - Use tools to check current state and recent changes
3. **Identify root cause** - Investigate potential causes based on alert type
4. **Assess impact** - Determine scope and severity
5. **Recommend actions** - Suggest safe investigation or remediation steps

## Guidelines

- Verify information before suggesting changes
- Consider dependencies and potential side effects
- Focus on understanding the problem before proposing solutions
- When in doubt, gather more information rather than making assumptions
`

package config

// Defaults contains system-wide default configurations
// These values are used when specific components don't specify their own values
type Defaults struct {
	// LLM provider default for all agents
	LLMProvider string `yaml:"llm_provider,omitempty"`

	// Max iterations default (forces conclusion when reached)
	MaxIterations *int `yaml:"max_iterations,omitempty"`

	// Iteration strategy default for stages that don't pin one
	IterationStrategy IterationStrategy `yaml:"iteration_strategy,omitempty"`

	// Alert data masking configuration, applied before DB storage
	AlertMasking *AlertMaskingDefaults `yaml:"alert_masking,omitempty"`
}

// AlertMaskingDefaults holds alert payload masking settings.
// Applied system-wide to all alert data before DB storage.
type AlertMaskingDefaults struct {
	Enabled      bool   `yaml:"enabled"`
	PatternGroup string `yaml:"pattern_group"`
}

// Built-in fallbacks applied by the loader when neither YAML nor built-in
// component config specifies a value.
const (
	DefaultLLMProvider       = "anthropic-default"
	DefaultMaxIterations     = 10
	DefaultIterationStrategy = IterationStrategyReact
)

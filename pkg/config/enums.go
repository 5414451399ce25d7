package config

// IterationStrategy defines available agent iteration strategies
type IterationStrategy string

const (
	// IterationStrategyReact runs the classic ReAct loop until Final Answer
	IterationStrategyReact IterationStrategy = "react"
	// IterationStrategyReactStage runs ReAct tuned for intermediate chain stages
	IterationStrategyReactStage IterationStrategy = "react-stage"
	// IterationStrategyReactFinalAnalysis produces the final analysis without tool calls
	IterationStrategyReactFinalAnalysis IterationStrategy = "react-final-analysis"
	// IterationStrategyNativeThinking uses provider-native thinking plus structured tool calls
	IterationStrategyNativeThinking IterationStrategy = "native-thinking"
)

// IsValid checks if the iteration strategy is valid
func (s IterationStrategy) IsValid() bool {
	switch s {
	case IterationStrategyReact,
		IterationStrategyReactStage,
		IterationStrategyReactFinalAnalysis,
		IterationStrategyNativeThinking:
		return true
	default:
		return false
	}
}

// UsesTools reports whether the strategy issues tool calls during iteration.
// ReAct final-analysis stages reason over accumulated data only.
func (s IterationStrategy) UsesTools() bool {
	return s != IterationStrategyReactFinalAnalysis
}

// TransportType defines MCP server transport types
type TransportType string

const (
	// TransportTypeStdio uses subprocess communication via stdin/stdout
	TransportTypeStdio TransportType = "stdio"
	// TransportTypeHTTP uses streamable HTTP JSON-RPC
	TransportTypeHTTP TransportType = "http"
	// TransportTypeSSE uses Server-Sent Events
	TransportTypeSSE TransportType = "sse"
)

// IsValid checks if the transport type is valid
func (t TransportType) IsValid() bool {
	return t == TransportTypeStdio || t == TransportTypeHTTP || t == TransportTypeSSE
}

// LLMProviderType defines supported LLM providers
type LLMProviderType string

const (
	// LLMProviderTypeAnthropic is Anthropic Claude API
	LLMProviderTypeAnthropic LLMProviderType = "anthropic"
	// LLMProviderTypeOpenAI is OpenAI API
	LLMProviderTypeOpenAI LLMProviderType = "openai"
	// LLMProviderTypeXAI is xAI Grok API (OpenAI-compatible endpoint)
	LLMProviderTypeXAI LLMProviderType = "xai"
)

// IsValid checks if the LLM provider type is valid
func (t LLMProviderType) IsValid() bool {
	switch t {
	case LLMProviderTypeAnthropic,
		LLMProviderTypeOpenAI,
		LLMProviderTypeXAI:
		return true
	default:
		return false
	}
}

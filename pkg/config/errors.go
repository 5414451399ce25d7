package config

import (
	"errors"
	"fmt"
)

// Sentinel errors for configuration loading and lookups.
// Wrap with fmt.Errorf("%w: detail", Err...) and test with errors.Is.
var (
	ErrConfigNotFound      = errors.New("configuration file not found")
	ErrInvalidYAML         = errors.New("invalid YAML syntax")
	ErrValidationFailed    = errors.New("configuration validation failed")
	ErrAgentNotFound       = errors.New("agent not found")
	ErrChainNotFound       = errors.New("chain not found")
	ErrChainConflict       = errors.New("conflicting chain configuration")
	ErrMCPServerNotFound   = errors.New("MCP server not found")
	ErrLLMProviderNotFound = errors.New("LLM provider not found")
	ErrInvalidValue        = errors.New("invalid configuration value")
)

// ValidationError carries the component, ID, and field that failed validation
type ValidationError struct {
	Component string // "agent", "chain", "mcp_server", "llm_provider"
	ID        string // component identifier
	Field     string // offending field
	Err       error  // underlying cause
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s '%s': field '%s': %v", e.Component, e.ID, e.Field, e.Err)
	}
	return fmt.Sprintf("%s '%s': %v", e.Component, e.ID, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a validation error for a component field
func NewValidationError(component, id, field string, err error) *ValidationError {
	return &ValidationError{
		Component: component,
		ID:        id,
		Field:     field,
		Err:       err,
	}
}

// LoadError wraps errors that occur while reading or parsing a config file
type LoadError struct {
	File string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.File, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// NewLoadError creates a load error for the given file
func NewLoadError(file string, err error) *LoadError {
	return &LoadError{File: file, Err: err}
}

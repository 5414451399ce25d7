package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Settings holds process-level configuration resolved from environment
// variables. Component registries (agents, chains, MCP servers, LLM
// providers) come from YAML; see Initialize.
type Settings struct {
	// HTTP listen address
	Host string
	Port int

	// Allowed CORS origins for the API and dashboard WebSocket
	CORSOrigins []string

	// Directory containing tarsy.yaml and llm-providers.yaml
	ConfigDir string

	// Maximum alerts processed concurrently; further submissions queue
	MaxConcurrentAlerts int

	// End-to-end budget for one alert (chain selection through final analysis)
	AlertProcessingTimeout time.Duration

	// Budget for a single LLM interaction within an iteration
	LLMIterationTimeout time.Duration

	// History persistence toggle; when false the engine runs without audit trail
	HistoryEnabled bool

	// Log level: debug, info, warn, error
	LogLevel string
}

// LoadSettings resolves Settings from environment variables, applying
// defaults for anything unset.
func LoadSettings() (*Settings, error) {
	port, err := strconv.Atoi(getEnvOrDefault("TARSY_PORT", "8000"))
	if err != nil {
		return nil, fmt.Errorf("invalid TARSY_PORT: %w", err)
	}

	maxConcurrent, err := strconv.Atoi(getEnvOrDefault("TARSY_MAX_CONCURRENT_ALERTS", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid TARSY_MAX_CONCURRENT_ALERTS: %w", err)
	}
	if maxConcurrent < 1 {
		return nil, fmt.Errorf("%w: TARSY_MAX_CONCURRENT_ALERTS must be at least 1", ErrInvalidValue)
	}

	processingTimeout, err := getEnvDuration("TARSY_ALERT_PROCESSING_TIMEOUT", 600*time.Second)
	if err != nil {
		return nil, err
	}

	iterationTimeout, err := getEnvDuration("TARSY_LLM_ITERATION_TIMEOUT", 300*time.Second)
	if err != nil {
		return nil, err
	}

	return &Settings{
		Host:                   getEnvOrDefault("TARSY_HOST", "0.0.0.0"),
		Port:                   port,
		CORSOrigins:            getEnvList("TARSY_CORS_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),
		ConfigDir:              getEnvOrDefault("TARSY_CONFIG_DIR", "./config"),
		MaxConcurrentAlerts:    maxConcurrent,
		AlertProcessingTimeout: processingTimeout,
		LLMIterationTimeout:    iterationTimeout,
		HistoryEnabled:         getEnvBool("HISTORY_ENABLED", true),
		LogLevel:               getEnvOrDefault("TARSY_LOG_LEVEL", "info"),
	}, nil
}

// ListenAddr returns the host:port pair for the HTTP server.
func (s *Settings) ListenAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}

func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	// Accept bare seconds for compatibility with numeric-only deployments
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

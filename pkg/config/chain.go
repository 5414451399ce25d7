package config

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ChainConfig defines a multi-stage agent chain configuration
type ChainConfig struct {
	// Alert types this chain handles (required, min 1)
	AlertTypes []string `yaml:"alert_types" json:"alert_types"`

	// Human-readable description
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Stages to execute in order (required, min 1)
	Stages []StageConfig `yaml:"stages" json:"stages"`
}

// StageConfig defines a single stage in a chain
type StageConfig struct {
	// Stage name (required)
	Name string `yaml:"name" json:"name"`

	// Agent executing this stage (required)
	Agent string `yaml:"agent" json:"agent"`

	// Iteration strategy override for this stage
	IterationStrategy IterationStrategy `yaml:"iteration_strategy,omitempty" json:"iteration_strategy,omitempty"`
}

// Snapshot returns a serializable copy of the chain definition, including its
// ID, for persisting on the session row at creation time.
func (c *ChainConfig) Snapshot(chainID string) map[string]any {
	stages := make([]map[string]any, 0, len(c.Stages))
	for _, stage := range c.Stages {
		s := map[string]any{
			"name":  stage.Name,
			"agent": stage.Agent,
		}
		if stage.IterationStrategy != "" {
			s["iteration_strategy"] = string(stage.IterationStrategy)
		}
		stages = append(stages, s)
	}
	return map[string]any{
		"chain_id":    chainID,
		"alert_types": append([]string(nil), c.AlertTypes...),
		"description": c.Description,
		"stages":      stages,
	}
}

// ChainRegistry stores chain configurations and the alert-type inverted index.
// The index is built once at construction; every alert type must map to
// exactly one chain.
type ChainRegistry struct {
	chains      map[string]*ChainConfig
	byAlertType map[string]string // alert type -> chain ID
	mu          sync.RWMutex
}

// NewChainRegistry creates a chain registry and builds the alert-type index.
// Two chains claiming the same alert type is a configuration error.
func NewChainRegistry(chains map[string]*ChainConfig) (*ChainRegistry, error) {
	// Defensive copy to prevent external mutation
	copied := make(map[string]*ChainConfig, len(chains))
	for k, v := range chains {
		copied[k] = v
	}

	index := make(map[string]string)
	// Deterministic iteration so conflict errors are stable
	ids := make([]string, 0, len(copied))
	for id := range copied {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, chainID := range ids {
		for _, alertType := range copied[chainID].AlertTypes {
			if existing, claimed := index[alertType]; claimed {
				return nil, fmt.Errorf("%w: alert type '%s' claimed by both '%s' and '%s'",
					ErrChainConflict, alertType, existing, chainID)
			}
			index[alertType] = chainID
		}
	}

	return &ChainRegistry{
		chains:      copied,
		byAlertType: index,
	}, nil
}

// Get retrieves a chain configuration by ID (thread-safe)
func (r *ChainRegistry) Get(chainID string) (*ChainConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chain, exists := r.chains[chainID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrChainNotFound, chainID)
	}
	return chain, nil
}

// GetChainForAlertType resolves the chain handling the given alert type.
// The error lists the known alert types so callers can surface a useful
// message to alert submitters.
func (r *ChainRegistry) GetChainForAlertType(alertType string) (string, *ChainConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chainID, exists := r.byAlertType[alertType]
	if !exists {
		return "", nil, fmt.Errorf("%w for alert type '%s' (known types: %s)",
			ErrChainNotFound, alertType, strings.Join(r.listAlertTypesLocked(), ", "))
	}
	return chainID, r.chains[chainID], nil
}

// ListAlertTypes returns all alert types with a registered chain, sorted (thread-safe)
func (r *ChainRegistry) ListAlertTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listAlertTypesLocked()
}

// listAlertTypesLocked assumes the lock is held
func (r *ChainRegistry) listAlertTypesLocked() []string {
	types := make([]string, 0, len(r.byAlertType))
	for alertType := range r.byAlertType {
		types = append(types, alertType)
	}
	sort.Strings(types)
	return types
}

// ListChainIDs returns all chain IDs, sorted (thread-safe)
func (r *ChainRegistry) ListChainIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.chains))
	for id := range r.chains {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GetAll returns all chain configurations (thread-safe, returns copy)
func (r *ChainRegistry) GetAll() map[string]*ChainConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Return a copy to prevent external modification
	result := make(map[string]*ChainConfig, len(r.chains))
	for k, v := range r.chains {
		result[k] = v
	}
	return result
}

// Has checks if a chain exists in the registry (thread-safe)
func (r *ChainRegistry) Has(chainID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.chains[chainID]
	return exists
}

// Len returns the number of chains in the registry (thread-safe)
func (r *ChainRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.chains)
}

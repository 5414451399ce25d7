package llm

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tarsy-bot/tarsy/pkg/config"
	"github.com/tarsy-bot/tarsy/pkg/hooks"
)

// Pool builds one Manager per provider on first use and caches it for the
// life of the process. Construction reads the provider's API key from the
// environment, so configured-but-unused providers never block startup.
type Pool struct {
	registry *config.LLMProviderRegistry
	bus      *hooks.Bus

	mu       sync.Mutex
	managers map[string]*Manager
}

// NewPool creates a pool over the configured providers. The bus may be nil
// in tests; hooks are skipped then.
func NewPool(registry *config.LLMProviderRegistry, bus *hooks.Bus) *Pool {
	return &Pool{
		registry: registry,
		bus:      bus,
		managers: make(map[string]*Manager),
	}
}

// ClientFor returns the manager for the named provider, creating it on
// first use.
func (p *Pool) ClientFor(name string) (*Manager, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if m, ok := p.managers[name]; ok {
		return m, nil
	}
	cfg, err := p.registry.Get(name)
	if err != nil {
		return nil, err
	}
	m, err := NewManager(cfg, p.bus)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client for provider %q: %w", name, err)
	}
	p.managers[name] = m
	return m, nil
}

// Close closes every manager created so far.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for name, m := range p.managers {
		if err := m.Close(); err != nil {
			errs = append(errs, fmt.Errorf("provider %q: %w", name, err))
		}
	}
	p.managers = make(map[string]*Manager)
	return errors.Join(errs...)
}

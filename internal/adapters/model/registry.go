// Package model provides the adapter registry, the retry decorator and the
// built-in provider variants (CLI child processes, HTTP endpoints, and a
// deterministic mock).
package model

import (
	"fmt"
	"sync"

	"github.com/hugo-lorenzo-mato/agora-ai/internal/config"
	"github.com/hugo-lorenzo-mato/agora-ai/internal/core"
	"github.com/hugo-lorenzo-mato/agora-ai/internal/logging"
)

// Factory creates an adapter from a participant configuration.
type Factory func(cfg config.ParticipantConfig, logger *logging.Logger) (core.ModelAdapter, error)

// cacheKey identifies a constructed adapter. Adapters are shared across
// rounds and across participants with identical configuration.
type cacheKey struct {
	provider string
	model    string
	endpoint string // HTTP endpoint or CLI path, whichever applies
}

// Registry constructs and caches model adapters. The cache is process-wide:
// construction is serialized under the write lock, reads after first insert
// take the read lock only.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	cache     map[cacheKey]core.ModelAdapter
	logger    *logging.Logger
}

// NewRegistry creates a registry with the built-in provider factories.
func NewRegistry(logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Registry{
		factories: make(map[string]Factory),
		cache:     make(map[cacheKey]core.ModelAdapter),
		logger:    logger,
	}
	r.RegisterFactory("claude", NewClaudeAdapter)
	r.RegisterFactory("codex", NewCodexAdapter)
	r.RegisterFactory("gemini", NewGeminiAdapter)
	r.RegisterFactory("anthropic", NewAnthropicAdapter)
	r.RegisterFactory("openai", NewOpenAIAdapter)
	r.RegisterFactory("mock", NewMockAdapter)
	return r
}

// RegisterFactory registers a factory for a provider key.
func (r *Registry) RegisterFactory(provider string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[provider] = factory
}

// Get returns the adapter for a participant configuration, constructing it
// on first use. Construction failures are non-retryable.
func (r *Registry) Get(cfg config.ParticipantConfig) (core.ModelAdapter, error) {
	key := cacheKey{provider: cfg.Provider, model: cfg.Model, endpoint: endpointOf(cfg)}

	r.mu.RLock()
	adapter, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return adapter, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Another goroutine may have constructed it while we waited.
	if adapter, ok := r.cache[key]; ok {
		return adapter, nil
	}

	factory, ok := r.factories[cfg.Provider]
	if !ok {
		return nil, core.ErrValidation(core.CodeUnknownProvider,
			fmt.Sprintf("unknown provider %q", cfg.Provider))
	}

	adapter, err := factory(cfg, r.logger.With("provider", cfg.Provider, "model", cfg.Model))
	if err != nil {
		return nil, err
	}
	r.cache[key] = adapter
	return adapter, nil
}

// Providers returns the registered provider keys.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.factories))
	for k := range r.factories {
		keys = append(keys, k)
	}
	return keys
}

// Clear drops all cached adapters.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[cacheKey]core.ModelAdapter)
}

func endpointOf(cfg config.ParticipantConfig) string {
	if cfg.Endpoint != "" {
		return cfg.Endpoint
	}
	return cfg.Path
}

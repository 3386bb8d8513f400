// Package provider defines the pluggable LLM provider boundary used by the
// infer and agent verbs (spec §4.5, §4.6). Grounded on the Rust original's
// provider module (the `Provider` trait and `create_provider` factory) and
// shaped after the teacher's runtime/agent/model.Client interface, trimmed
// to the single-turn text completion the infer verb needs; the richer
// multi-turn/tool-calling surface lives in internal/agentloop, which talks
// to the same concrete clients through model.Client directly.
package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/nikahq/nika/internal/nikaerr"
)

// Provider performs a single prompt-in/text-out model call for the infer
// verb. Concrete implementations (anthropic, openai, bedrock, mock) adapt
// this to their respective SDKs.
type Provider interface {
	// Infer sends prompt to model (or the provider's default model when
	// model is empty) and returns the generated text.
	Infer(ctx context.Context, prompt, model string) (string, error)

	// DefaultModel returns the model identifier used when a task and the
	// workflow document both leave model unspecified.
	DefaultModel() string

	// Name identifies this provider for caching and event logging.
	Name() string
}

// Factory constructs a Provider by name. Registered factories back the
// provider cache's get-or-create path.
type Factory func() (Provider, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register installs a Factory under name, overwriting any previous
// registration. Intended to be called from provider subpackage init()
// functions (anthropic, openai, bedrock, mock), mirroring the Rust
// original's static `create_provider` match arms but allowing the set of
// providers to grow without modifying this package.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Create builds a new Provider instance for name via its registered
// Factory. Returns a provider-not-found error if name was never
// registered.
func Create(name string) (Provider, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("provider: no provider registered for %q", name)
	}
	return factory()
}

// Cache is the lock-free-ish get-or-create provider cache described in spec
// §4.5, grounded on the Rust original's `TaskExecutor.provider_cache`
// (a DashMap<String, Arc<dyn Provider>>). Go has no DashMap equivalent in
// the corpus, so a RWMutex-guarded map with double-checked locking gives
// the same compare-and-set-once semantics without pulling in a library
// purely for this.
type Cache struct {
	mu    sync.RWMutex
	cache map[string]Provider
}

// NewCache returns an empty provider cache.
func NewCache() *Cache {
	return &Cache{cache: make(map[string]Provider)}
}

// Get returns the cached Provider for name, constructing and caching it on
// first use. Concurrent callers racing on the same uncached name may both
// construct a Provider, but only one wins the cache slot (exactly-once
// observable construction from any caller's perspective).
func (c *Cache) Get(name string) (Provider, error) {
	c.mu.RLock()
	p, ok := c.cache[name]
	c.mu.RUnlock()
	if ok {
		return p, nil
	}

	built, err := Create(name)
	if err != nil {
		return nil, nikaerr.New(nikaerr.AgentParamInvalid, "provider %q: %v", name, err).Wrap(err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.cache[name]; ok {
		return existing, nil
	}
	c.cache[name] = built
	return built, nil
}

// Package mock provides a deterministic provider.Provider used in tests,
// grounded on the Rust original's
// test-only mock provider (task_executor.rs's `TaskExecutor::new("mock",
// ...)` fixtures): it echoes the prompt rather than calling a network API.
package mock

import (
	"context"
	"fmt"

	"github.com/nikahq/nika/internal/provider"
)

// Provider is a deterministic, network-free provider.Provider.
type Provider struct {
	prefix string
}

// New returns a mock Provider that prefixes every response with prefix
// (default "mock").
func New(prefix string) *Provider {
	if prefix == "" {
		prefix = "mock"
	}
	return &Provider{prefix: prefix}
}

func (p *Provider) Infer(_ context.Context, prompt, model string) (string, error) {
	if model == "" {
		model = p.DefaultModel()
	}
	return fmt.Sprintf("[%s/%s] %s", p.prefix, model, prompt), nil
}

func (p *Provider) DefaultModel() string { return "mock-model" }
func (p *Provider) Name() string         { return "mock" }

func init() {
	provider.Register("mock", func() (provider.Provider, error) {
		return New("mock"), nil
	})
}

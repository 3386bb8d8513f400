package provider_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikahq/nika/internal/provider"
)

type stubProvider struct {
	calls int
	name  string
}

func (s *stubProvider) Infer(_ context.Context, prompt, model string) (string, error) {
	s.calls++
	return "echo:" + prompt, nil
}

func (s *stubProvider) DefaultModel() string { return "stub-model" }
func (s *stubProvider) Name() string         { return s.name }

func TestCacheConstructsOnce(t *testing.T) {
	stub := &stubProvider{name: "stub"}
	built := 0
	provider.Register("stub-once", func() (provider.Provider, error) {
		built++
		return stub, nil
	})

	c := provider.NewCache()
	p1, err := c.Get("stub-once")
	require.NoError(t, err)
	p2, err := c.Get("stub-once")
	require.NoError(t, err)

	assert.Same(t, p1, p2)
	assert.Equal(t, 1, built)
}

func TestCreateUnknownProviderErrors(t *testing.T) {
	_, err := provider.Create("does-not-exist")
	require.Error(t, err)
}

func TestCacheGetUnknownProviderErrors(t *testing.T) {
	c := provider.NewCache()
	_, err := c.Get("also-does-not-exist")
	require.Error(t, err)
}

func TestStubProviderInfer(t *testing.T) {
	stub := &stubProvider{name: "stub"}
	out, err := stub.Infer(context.Background(), "hi", "")
	require.NoError(t, err)
	assert.Equal(t, "echo:hi", out)
}

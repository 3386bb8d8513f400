package mock_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikahq/nika/internal/provider"
	"github.com/nikahq/nika/internal/provider/mock"
)

func TestInferEchoesPrompt(t *testing.T) {
	p := mock.New("")
	out, err := p.Infer(context.Background(), "hello", "")
	require.NoError(t, err)
	assert.Equal(t, "[mock/mock-model] hello", out)
}

func TestInferUsesGivenModel(t *testing.T) {
	p := mock.New("fixture")
	out, err := p.Infer(context.Background(), "hi", "custom-model")
	require.NoError(t, err)
	assert.Equal(t, "[fixture/custom-model] hi", out)
}

func TestRegisteredUnderMockName(t *testing.T) {
	p, err := provider.Create("mock")
	require.NoError(t, err)
	assert.Equal(t, "mock", p.Name())
}

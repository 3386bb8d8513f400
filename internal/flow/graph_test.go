package flow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikahq/nika/internal/flow"
)

func TestDetectCycleSimple(t *testing.T) {
	g := flow.New([]string{"a", "b", "c"}, []flow.Edge{
		{Sources: []string{"a"}, Targets: []string{"b"}},
		{Sources: []string{"b"}, Targets: []string{"c"}},
		{Sources: []string{"c"}, Targets: []string{"a"}},
	})

	err := g.DetectCycles()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NIKA-020")
	assert.Contains(t, err.Error(), "a → b → c → a")
}

func TestNoCycleLinear(t *testing.T) {
	g := flow.New([]string{"a", "b", "c"}, []flow.Edge{
		{Sources: []string{"a"}, Targets: []string{"b"}},
		{Sources: []string{"b"}, Targets: []string{"c"}},
	})
	assert.NoError(t, g.DetectCycles())
}

func TestSelfLoopIsCycle(t *testing.T) {
	g := flow.New([]string{"a"}, []flow.Edge{
		{Sources: []string{"a"}, Targets: []string{"a"}},
	})
	err := g.DetectCycles()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NIKA-020")
}

func TestDiamondNoCycle(t *testing.T) {
	g := flow.New([]string{"a", "b", "c", "d"}, []flow.Edge{
		{Sources: []string{"a"}, Targets: []string{"b", "c"}},
		{Sources: []string{"b", "c"}, Targets: []string{"d"}},
	})
	assert.NoError(t, g.DetectCycles())
	assert.Len(t, g.Terminals(), 1)
	assert.True(t, g.HasPath("a", "d"))
}

func TestDisconnectedNoCycle(t *testing.T) {
	g := flow.New([]string{"a", "b", "c", "d"}, []flow.Edge{
		{Sources: []string{"a"}, Targets: []string{"b"}},
		{Sources: []string{"c"}, Targets: []string{"d"}},
	})
	assert.NoError(t, g.DetectCycles())
	assert.Len(t, g.Terminals(), 2)
}

func TestRootsHaveNoPredecessors(t *testing.T) {
	g := flow.New([]string{"a", "b", "c"}, []flow.Edge{
		{Sources: []string{"a"}, Targets: []string{"b"}},
		{Sources: []string{"b"}, Targets: []string{"c"}},
	})
	assert.Equal(t, []string{"a"}, g.Roots())
}

func TestDependenciesAndSuccessors(t *testing.T) {
	g := flow.New([]string{"a", "b"}, []flow.Edge{
		{Sources: []string{"a"}, Targets: []string{"b"}},
	})
	assert.Equal(t, []string{"a"}, g.Dependencies("b"))
	assert.Equal(t, []string{"b"}, g.Successors("a"))
	assert.Empty(t, g.Dependencies("a"))
}

func TestContains(t *testing.T) {
	g := flow.New([]string{"a"}, nil)
	assert.True(t, g.Contains("a"))
	assert.False(t, g.Contains("z"))
}

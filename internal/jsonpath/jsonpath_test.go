package jsonpath_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nikahq/nika/internal/jsonpath"
)

func TestResolveObjectPath(t *testing.T) {
	root := map[string]any{"summary": "Sunny"}
	v, ok := jsonpath.Resolve(root, "summary")
	assert.True(t, ok)
	assert.Equal(t, "Sunny", v)
}

func TestResolveNestedPath(t *testing.T) {
	root := map[string]any{"cheapest": map[string]any{"price": float64(89)}}
	v, ok := jsonpath.Resolve(root, "cheapest.price")
	assert.True(t, ok)
	assert.Equal(t, float64(89), v)
}

func TestResolveArrayIndexDotForm(t *testing.T) {
	root := map[string]any{"items": []any{"first", "second"}}
	v, ok := jsonpath.Resolve(root, "items.1")
	assert.True(t, ok)
	assert.Equal(t, "second", v)
}

func TestResolveArrayIndexBracketForm(t *testing.T) {
	root := map[string]any{"items": []any{map[string]any{"name": "Alice"}}}
	v, ok := jsonpath.Resolve(root, "items[0].name")
	assert.True(t, ok)
	assert.Equal(t, "Alice", v)
}

func TestResolveLeadingDollarDot(t *testing.T) {
	root := map[string]any{"a": float64(1)}
	v, ok := jsonpath.Resolve(root, "$.a")
	assert.True(t, ok)
	assert.Equal(t, float64(1), v)
}

func TestResolveMissingSegment(t *testing.T) {
	root := map[string]any{"a": float64(1)}
	_, ok := jsonpath.Resolve(root, "b")
	assert.False(t, ok)
}

func TestResolveOutOfBoundsIndex(t *testing.T) {
	root := map[string]any{"items": []any{"only"}}
	_, ok := jsonpath.Resolve(root, "items.5")
	assert.False(t, ok)
}

func TestResolveEmptyPathReturnsRoot(t *testing.T) {
	root := map[string]any{"a": float64(1)}
	v, ok := jsonpath.Resolve(root, "")
	assert.True(t, ok)
	assert.Equal(t, root, v)
}

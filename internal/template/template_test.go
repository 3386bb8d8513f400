package template_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikahq/nika/internal/binding"
	"github.com/nikahq/nika/internal/template"
)

type fakeBindings map[string]any

func (f fakeBindings) Get(alias string) (any, bool) {
	v, ok := f[alias]
	return v, ok
}

func TestResolveSimpleSubstitution(t *testing.T) {
	b := fakeBindings{"name": "world"}
	out, err := template.Resolve("hello {{use.name}}", b)
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
}

func TestResolveNumberSubstitution(t *testing.T) {
	b := fakeBindings{"count": float64(42)}
	out, err := template.Resolve("total: {{use.count}}", b)
	require.NoError(t, err)
	assert.Equal(t, "total: 42", out)
}

func TestResolveNestedPathSubstitution(t *testing.T) {
	b := fakeBindings{"weather": map[string]any{"summary": "Sunny"}}
	out, err := template.Resolve("it is {{use.weather.summary}}", b)
	require.NoError(t, err)
	assert.Equal(t, "it is Sunny", out)
}

func TestResolveArrayIndexSubstitution(t *testing.T) {
	b := fakeBindings{"data": map[string]any{"items": []any{"first", "second"}}}
	out, err := template.Resolve("{{use.data.items.1}}", b)
	require.NoError(t, err)
	assert.Equal(t, "second", out)
}

func TestResolveMultipleSubstitutions(t *testing.T) {
	b := fakeBindings{"x": float64(1), "y": float64(2), "z": float64(3)}
	out, err := template.Resolve("{{use.x}}+{{use.y}}+{{use.z}}", b)
	require.NoError(t, err)
	assert.Equal(t, "1+2+3", out)
}

func TestResolveObjectSerializesToCompactJSON(t *testing.T) {
	b := fakeBindings{"obj": map[string]any{"a": float64(1)}}
	out, err := template.Resolve("{{use.obj}}", b)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, out)
}

func TestResolveNoPlaceholderReturnsOriginal(t *testing.T) {
	input := "no placeholders here"
	out, err := template.Resolve(input, fakeBindings{})
	require.NoError(t, err)
	assert.Equal(t, input, out)
}

func TestResolveUnknownAliasErrors(t *testing.T) {
	_, err := template.Resolve("{{use.missing}}", fakeBindings{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NIKA-071")
}

func TestResolveStrictNullTopLevelErrors(t *testing.T) {
	b := fakeBindings{"v": nil}
	_, err := template.Resolve("{{use.v}}", b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NIKA-072")
}

func TestResolveStrictNullNestedErrors(t *testing.T) {
	b := fakeBindings{"weather": map[string]any{"summary": nil}}
	_, err := template.Resolve("{{use.weather.summary}}", b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NIKA-072")
}

func TestResolveInvalidTraversalIntoStringErrors(t *testing.T) {
	b := fakeBindings{"name": "Alice"}
	_, err := template.Resolve("{{use.name.extra}}", b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NIKA-073")
	assert.Contains(t, err.Error(), "string")
}

func TestResolveInvalidTraversalIntoNumberErrors(t *testing.T) {
	b := fakeBindings{"count": float64(5)}
	_, err := template.Resolve("{{use.count.extra}}", b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NIKA-073")
}

func TestResolveEscapesForJSONContext(t *testing.T) {
	b := fakeBindings{"name": `Say "hi"` + "\n"}
	out, err := template.Resolve(`{"greeting": "{{use.name}}"}`, b)
	require.NoError(t, err)
	assert.Contains(t, out, `\"hi\"`)
	assert.Contains(t, out, `\n`)
}

func TestExtractRefsFindsAllPlaceholders(t *testing.T) {
	refs := template.ExtractRefs("{{use.a}} and {{use.b.c}}")
	require.Len(t, refs, 2)
	assert.Equal(t, "a", refs[0][0])
	assert.Equal(t, "b", refs[1][0])
}

func TestValidateRefsUnknownAlias(t *testing.T) {
	declared := map[string]struct{}{"a": {}}
	err := template.ValidateRefs("{{use.a}} {{use.b}}", declared, "mytask")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NIKA-071")
	assert.Contains(t, err.Error(), "unknown")
}

func TestValidateRefsAllKnown(t *testing.T) {
	declared := map[string]struct{}{"a": {}, "b": {}}
	err := template.ValidateRefs("{{use.a}} {{use.b}}", declared, "mytask")
	assert.NoError(t, err)
}

// realBindingsStore backs a real binding.Bindings against a plain map, so
// the tests below exercise the actual GetResolved-based adapter shape used
// by internal/executor and internal/runner, not just fakeBindings' direct
// map lookup.
type realBindingsStore map[string]any

func (s realBindingsStore) GetOutput(taskID string) (any, bool) {
	v, ok := s[taskID]
	return v, ok
}

type realAdapter struct {
	b     *binding.Bindings
	store binding.DataStore
}

func (a realAdapter) Get(alias string) (any, bool) {
	v, err := a.b.GetResolved(alias, a.store)
	if err != nil {
		return nil, false
	}
	return v, true
}

func TestResolveThroughRealAdapterResolvesLazyBindingAgainstStore(t *testing.T) {
	store := realBindingsStore{}
	spec := binding.WiringSpec{"v": binding.Entry{Path: "missing.field", Lazy: true, Default: ptrAny("fallback")}}
	b, err := binding.FromWiringSpec(spec, store)
	require.NoError(t, err)

	out, err := template.Resolve("{{use.v}}", realAdapter{b, store})
	require.NoError(t, err)
	assert.Equal(t, "fallback", out)
}

func TestResolveThroughRealAdapterResolvesEagerBinding(t *testing.T) {
	store := realBindingsStore{"weather": map[string]any{"summary": "sunny"}}
	spec := binding.WiringSpec{"w": binding.Entry{Path: "weather.summary"}}
	b, err := binding.FromWiringSpec(spec, store)
	require.NoError(t, err)

	out, err := template.Resolve("it is {{use.w}}", realAdapter{b, store})
	require.NoError(t, err)
	assert.Equal(t, "it is sunny", out)
}

func ptrAny(v any) *any { return &v }

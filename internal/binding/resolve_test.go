package binding_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikahq/nika/internal/binding"
)

// fakeStore is a minimal binding.DataStore backed by a plain map, standing
// in for store.Store the way resolve.rs's tests stand in for the real
// datastore.
type fakeStore map[string]any

func (s fakeStore) GetOutput(taskID string) (any, bool) {
	v, ok := s[taskID]
	return v, ok
}

func ptr(v any) *any { return &v }

func TestResolveEntryEagerSimplePath(t *testing.T) {
	store := fakeStore{"weather": map[string]any{"summary": "sunny"}}
	v, err := binding.ResolveEntry(binding.Entry{Path: "weather.summary"}, "w", store)
	require.NoError(t, err)
	assert.Equal(t, "sunny", v)
}

func TestResolveEntryWholeTaskOutput(t *testing.T) {
	store := fakeStore{"weather": "sunny"}
	v, err := binding.ResolveEntry(binding.Entry{Path: "weather"}, "w", store)
	require.NoError(t, err)
	assert.Equal(t, "sunny", v)
}

func TestResolveEntryMissingTaskWithoutDefaultErrors(t *testing.T) {
	store := fakeStore{}
	_, err := binding.ResolveEntry(binding.Entry{Path: "missing.field"}, "m", store)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NIKA-052")
}

func TestResolveEntryMissingTaskWithDefaultFallsBack(t *testing.T) {
	store := fakeStore{}
	v, err := binding.ResolveEntry(binding.Entry{Path: "missing.field", Default: ptr("fallback")}, "m", store)
	require.NoError(t, err)
	assert.Equal(t, "fallback", v)
}

func TestResolveEntryMissingFieldPathWithDefaultFallsBack(t *testing.T) {
	store := fakeStore{"weather": map[string]any{"summary": "sunny"}}
	v, err := binding.ResolveEntry(binding.Entry{Path: "weather.missing", Default: ptr("fallback")}, "w", store)
	require.NoError(t, err)
	assert.Equal(t, "fallback", v)
}

func TestResolveEntryNullValueWithoutDefaultErrors(t *testing.T) {
	store := fakeStore{"weather": map[string]any{"summary": nil}}
	_, err := binding.ResolveEntry(binding.Entry{Path: "weather.summary"}, "w", store)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NIKA-072")
}

func TestResolveEntryNullValueWithDefaultFallsBack(t *testing.T) {
	store := fakeStore{"weather": map[string]any{"summary": nil}}
	v, err := binding.ResolveEntry(binding.Entry{Path: "weather.summary", Default: ptr("fallback")}, "w", store)
	require.NoError(t, err)
	assert.Equal(t, "fallback", v)
}

func TestFromWiringSpecResolvesEagerEntriesImmediately(t *testing.T) {
	store := fakeStore{"weather": map[string]any{"summary": "sunny"}}
	spec := binding.WiringSpec{"w": binding.Entry{Path: "weather.summary"}}
	b, err := binding.FromWiringSpec(spec, store)
	require.NoError(t, err)
	assert.False(t, b.IsLazy("w"))
	v, ok := b.Get("w")
	require.True(t, ok)
	assert.Equal(t, "sunny", v)
}

func TestFromWiringSpecEagerEntryFailsImmediatelyOnMissingPath(t *testing.T) {
	store := fakeStore{}
	spec := binding.WiringSpec{"w": binding.Entry{Path: "missing.field"}}
	_, err := binding.FromWiringSpec(spec, store)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NIKA-052")
}

func TestFromWiringSpecLazyEntryIsPendingNotResolved(t *testing.T) {
	store := fakeStore{}
	spec := binding.WiringSpec{"v": binding.Entry{Path: "missing.field", Lazy: true, Default: ptr("fallback")}}
	b, err := binding.FromWiringSpec(spec, store)
	require.NoError(t, err)
	assert.True(t, b.IsLazy("v"))
	_, ok := b.Get("v")
	assert.False(t, ok, "a pending entry must not resolve through Get")
}

func TestGetResolvedReturnsEagerValueWithoutTouchingStore(t *testing.T) {
	spec := binding.WiringSpec{"w": binding.Entry{Path: "weather.summary"}}
	b, err := binding.FromWiringSpec(spec, fakeStore{"weather": map[string]any{"summary": "sunny"}})
	require.NoError(t, err)

	v, err := b.GetResolved("w", fakeStore{})
	require.NoError(t, err)
	assert.Equal(t, "sunny", v)
}

func TestGetResolvedReResolvesLazyEntryAgainstCurrentStore(t *testing.T) {
	spec := binding.WiringSpec{"v": binding.Entry{Path: "upstream.value", Lazy: true}}
	b, err := binding.FromWiringSpec(spec, fakeStore{})
	require.NoError(t, err)

	// Not yet present and no default: resolution fails with NIKA-052.
	_, err = b.GetResolved("v", fakeStore{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NIKA-052")

	// Store gains the value between reads; GetResolved observes it live,
	// confirming lazy entries are never cached at construction time.
	v, err := b.GetResolved("v", fakeStore{"upstream": map[string]any{"value": "arrived"}})
	require.NoError(t, err)
	assert.Equal(t, "arrived", v)
}

func TestGetResolvedLazyEntryFallsBackToDefaultOnMissingUpstream(t *testing.T) {
	spec := binding.WiringSpec{"v": binding.Entry{Path: "missing.field", Lazy: true, Default: ptr("fallback")}}
	b, err := binding.FromWiringSpec(spec, fakeStore{})
	require.NoError(t, err)

	v, err := b.GetResolved("v", fakeStore{})
	require.NoError(t, err)
	assert.Equal(t, "fallback", v)
}

func TestGetResolvedUndeclaredAliasErrors(t *testing.T) {
	b := binding.NewBindings()
	_, err := b.GetResolved("nope", fakeStore{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NIKA-042")
}

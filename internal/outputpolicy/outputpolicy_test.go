package outputpolicy_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikahq/nika/internal/outputpolicy"
	"github.com/nikahq/nika/internal/store"
)

func TestApplyNilPolicyStoresRawString(t *testing.T) {
	r := outputpolicy.Apply("hello", nil, time.Second)
	assert.True(t, r.IsSuccess())
	assert.Equal(t, "hello", r.Output)
}

func TestApplyTextFormatStoresRawString(t *testing.T) {
	r := outputpolicy.Apply("hello", &outputpolicy.Policy{Format: outputpolicy.FormatText}, time.Second)
	assert.True(t, r.IsSuccess())
	assert.Equal(t, "hello", r.Output)
}

func TestApplyJSONFormatParsesOutput(t *testing.T) {
	r := outputpolicy.Apply(`{"a":1}`, &outputpolicy.Policy{Format: outputpolicy.FormatJSON}, time.Second)
	assert.True(t, r.IsSuccess())
	assert.Equal(t, map[string]any{"a": float64(1)}, r.Output)
}

func TestApplyInvalidJSONFails(t *testing.T) {
	r := outputpolicy.Apply(`not json`, &outputpolicy.Policy{Format: outputpolicy.FormatJSON}, time.Second)
	assert.Equal(t, store.StatusFailed, r.Status)
	assert.Contains(t, r.Err, "NIKA-060")
}

func TestApplyValidatesAgainstSchema(t *testing.T) {
	dir := t.TempDir()
	schemaPath := filepath.Join(dir, "schema.json")
	require.NoError(t, os.WriteFile(schemaPath, []byte(`{
		"type": "object",
		"required": ["name"],
		"properties": {"name": {"type": "string"}}
	}`), 0o644))

	ok := outputpolicy.Apply(`{"name":"nika"}`, &outputpolicy.Policy{Format: outputpolicy.FormatJSON, Schema: schemaPath}, time.Second)
	assert.True(t, ok.IsSuccess())

	bad := outputpolicy.Apply(`{"age":1}`, &outputpolicy.Policy{Format: outputpolicy.FormatJSON, Schema: schemaPath}, time.Second)
	assert.Equal(t, store.StatusFailed, bad.Status)
}

func TestValidateSchemaCachesCompiledSchema(t *testing.T) {
	dir := t.TempDir()
	schemaPath := filepath.Join(dir, "schema.json")
	require.NoError(t, os.WriteFile(schemaPath, []byte(`{"type": "number"}`), 0o644))

	require.NoError(t, outputpolicy.ValidateSchema(float64(1), schemaPath))
	require.NoError(t, os.Remove(schemaPath))
	// Still valid: the compiled schema came from cache, not a re-read.
	require.NoError(t, outputpolicy.ValidateSchema(float64(2), schemaPath))
}

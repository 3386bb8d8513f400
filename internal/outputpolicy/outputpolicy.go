// Package outputpolicy converts a task's raw verb output into a stored
// result according to its `output:` policy (spec §4.5/§5), grounded on the
// Rust original's runtime/output.rs: JSON parsing for `format: json`, then
// optional JSON-Schema validation with a process-wide schema cache keyed by
// file path so repeat validations skip re-reading and re-compiling the
// schema.
package outputpolicy

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/nikahq/nika/internal/nikaerr"
	"github.com/nikahq/nika/internal/store"
)

// Format names the shape applied to a task's raw output.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Policy is the `output: {format, schema?}` declaration for a task.
type Policy struct {
	Format Format
	Schema string
}

var (
	schemaCacheMu sync.RWMutex
	schemaCache   = map[string]*jsonschema.Schema{}
)

// Apply converts raw (the verb's text output) into a store.Result honoring
// policy. A nil policy, or FormatText, stores raw as a plain string result.
// FormatJSON parses raw as JSON (NIKA-060 on failure) and, when policy.Schema
// is set, validates the parsed value against that schema file.
func Apply(raw string, policy *Policy, duration time.Duration) store.Result {
	if policy == nil || policy.Format != FormatJSON {
		return store.SuccessString(raw, duration)
	}

	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return store.Failed(nikaerr.New(nikaerr.InvalidJSONOutput, "invalid JSON output: %v", err).Error(), duration)
	}

	if policy.Schema != "" {
		if err := ValidateSchema(value, policy.Schema); err != nil {
			return store.Failed(err.Error(), duration)
		}
	}

	return store.Success(value, duration)
}

// ValidateSchema validates value against the JSON Schema file at
// schemaPath, compiling and caching the schema on first use.
func ValidateSchema(value any, schemaPath string) error {
	schema, err := loadSchema(schemaPath)
	if err != nil {
		return err
	}
	if err := schema.Validate(value); err != nil {
		return nikaerr.New(nikaerr.InvalidJSONOutput, "schema validation failed for %q: %v", schemaPath, err)
	}
	return nil
}

func loadSchema(schemaPath string) (*jsonschema.Schema, error) {
	schemaCacheMu.RLock()
	cached, ok := schemaCache[schemaPath]
	schemaCacheMu.RUnlock()
	if ok {
		return cached, nil
	}

	data, err := os.ReadFile(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("read schema %q: %w", schemaPath, err)
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid JSON in schema %q: %w", schemaPath, err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaPath, doc); err != nil {
		return nil, fmt.Errorf("add schema resource %q: %w", schemaPath, err)
	}
	schema, err := compiler.Compile(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("compile schema %q: %w", schemaPath, err)
	}

	schemaCacheMu.Lock()
	schemaCache[schemaPath] = schema
	schemaCacheMu.Unlock()

	return schema, nil
}

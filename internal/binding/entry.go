// Package binding implements the data-wiring layer from spec §4.3: parsing
// `use:` entries (eager/lazy, with JSON-literal defaults) and resolving
// them against the result store. Grounded on the Rust original's
// binding/entry.rs (UseEntry, parse_use_entry, find_operator_outside_quotes)
// and binding/resolve.rs (ResolvedBindings, resolve_entry).
package binding

import (
	"encoding/json"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nikahq/nika/internal/nikaerr"
)

// Entry is a single `use:` binding declaration: a path into an upstream
// task's output, an optional default JSON literal, and an eager/lazy flag.
type Entry struct {
	Path    string
	Default *any
	Lazy    bool
}

// TaskID returns the first dotted segment of Path — the task whose output
// this entry reads from.
func (e Entry) TaskID() string {
	if idx := strings.IndexByte(e.Path, '.'); idx >= 0 {
		return e.Path[:idx]
	}
	return e.Path
}

// WiringSpec is the full `use:` block: alias to Entry.
type WiringSpec map[string]Entry

// UnmarshalYAML accepts either the string form ("task.path [?? default]")
// or the object form ({path, lazy?, default?}), mirroring entry.rs's
// custom Deserialize (visit_str / visit_map).
func (e *Entry) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		parsed, err := ParseUseEntry(s)
		if err != nil {
			return err
		}
		*e = parsed
		return nil
	case yaml.MappingNode:
		var raw struct {
			Path    string `yaml:"path"`
			Lazy    bool   `yaml:"lazy"`
			Default *any   `yaml:"default"`
		}
		if err := value.Decode(&raw); err != nil {
			return err
		}
		if raw.Path == "" {
			return nikaerr.New(nikaerr.InvalidDefault, "use entry object form requires a non-empty 'path'")
		}
		*e = Entry{Path: raw.Path, Lazy: raw.Lazy, Default: raw.Default}
		return nil
	default:
		return nikaerr.New(nikaerr.InvalidDefault, "use entry must be a string or an object with 'path'")
	}
}

// ParseUseEntry parses the string form "task.path [?? default]". The
// default literal, if present, must be valid JSON (strings must be
// quoted); the "??" separator is located outside quoted substrings via
// FindOperatorOutsideQuotes so a default like "What?? Really??" does not
// get mistaken for the separator.
func ParseUseEntry(s string) (Entry, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Entry{}, nikaerr.New(nikaerr.InvalidDefault, "use entry must not be empty")
	}

	idx, found := FindOperatorOutsideQuotes(trimmed, "??")
	if !found {
		return Entry{Path: trimmed}, nil
	}

	path := strings.TrimSpace(trimmed[:idx])
	defaultLiteral := strings.TrimSpace(trimmed[idx+2:])
	if path == "" {
		return Entry{}, nikaerr.New(nikaerr.InvalidDefault, "use entry has an empty path before '??'")
	}
	if defaultLiteral == "" {
		return Entry{}, nikaerr.New(nikaerr.InvalidDefault, "use entry '??' has no default literal")
	}

	var def any
	if err := json.Unmarshal([]byte(defaultLiteral), &def); err != nil {
		return Entry{}, nikaerr.New(nikaerr.InvalidDefault, "invalid default JSON literal %q: %v", defaultLiteral, err)
	}

	return Entry{Path: path, Default: &def}, nil
}

// FindOperatorOutsideQuotes returns the byte index of the first occurrence
// of op in s that is not inside a quoted substring, tracking an
// escape-next flag so that an escaped quote does not toggle quote state.
// Mirrors entry.rs's find_operator_outside_quotes byte-position scan.
func FindOperatorOutsideQuotes(s, op string) (int, bool) {
	inQuotes := false
	escapeNext := false
	opBytes := []byte(op)

	for i := 0; i < len(s); i++ {
		c := s[i]
		if escapeNext {
			escapeNext = false
			continue
		}
		switch c {
		case '\\':
			escapeNext = true
			continue
		case '"':
			inQuotes = !inQuotes
			continue
		}
		if inQuotes {
			continue
		}
		if c == opBytes[0] && i+len(opBytes) <= len(s) && s[i:i+len(opBytes)] == op {
			return i, true
		}
	}
	return 0, false
}

package binding

import (
	"strings"

	"github.com/nikahq/nika/internal/jsonpath"
	"github.com/nikahq/nika/internal/nikaerr"
)

// DataStore is the subset of store.Store that binding resolution needs;
// declared locally to avoid an import cycle with the store package.
type DataStore interface {
	GetOutput(taskID string) (any, bool)
}

// lazyState tags whether a Binding holds a final value or is still pending
// resolution against the store, mirroring resolve.rs's LazyBinding enum.
type lazyState int

const (
	resolved lazyState = iota
	pending
)

// Binding is one resolved (or pending) alias entry.
type Binding struct {
	state   lazyState
	value   any
	path    string
	defaultVal *any
}

// IsPending reports whether this binding still needs to be resolved
// against the store.
func (b Binding) IsPending() bool { return b.state == pending }

// Bindings is the alias -> Binding map built from a task's WiringSpec.
// Eager entries are resolved immediately; lazy entries are resolved lazily
// on every read via GetResolved, so a changing store is observed rather
// than cached — matching resolve.rs's "not cached, by design" comment.
type Bindings struct {
	entries map[string]Binding
}

// NewBindings returns an empty binding map (a task with no use: block).
func NewBindings() *Bindings {
	return &Bindings{entries: make(map[string]Binding)}
}

// FromWiringSpec resolves every eager entry immediately against store and
// records every lazy entry as pending. Returns on the first eager
// resolution failure.
func FromWiringSpec(spec WiringSpec, store DataStore) (*Bindings, error) {
	b := NewBindings()
	if spec == nil {
		return b, nil
	}
	for alias, entry := range spec {
		if entry.Lazy {
			b.entries[alias] = Binding{state: pending, path: entry.Path, defaultVal: entry.Default}
			continue
		}
		value, err := ResolveEntry(entry, alias, store)
		if err != nil {
			return nil, err
		}
		b.entries[alias] = Binding{state: resolved, value: value}
	}
	return b, nil
}

// Set records alias as an already-resolved eager value (used for
// synthetic bindings, e.g. agent-loop injected context).
func (b *Bindings) Set(alias string, value any) {
	b.entries[alias] = Binding{state: resolved, value: value}
}

// Get returns the value for alias only if it is already resolved; lazy
// bindings return ok=false until read via GetResolved.
func (b *Bindings) Get(alias string) (any, bool) {
	entry, ok := b.entries[alias]
	if !ok || entry.state == pending {
		return nil, false
	}
	return entry.value, true
}

// GetResolved resolves alias against store, re-resolving lazy bindings on
// every call so later reads observe the current store contents.
func (b *Bindings) GetResolved(alias string, store DataStore) (any, error) {
	entry, ok := b.entries[alias]
	if !ok {
		return nil, nikaerr.New(nikaerr.BindingNotFound, "no binding declared for alias %q", alias)
	}
	if entry.state == resolved {
		return entry.value, nil
	}
	return ResolveEntry(Entry{Path: entry.path, Default: entry.defaultVal}, alias, store)
}

// IsLazy reports whether alias was declared lazy.
func (b *Bindings) IsLazy(alias string) bool {
	entry, ok := b.entries[alias]
	return ok && entry.state == pending
}

// IsEmpty reports whether no aliases are declared.
func (b *Bindings) IsEmpty() bool {
	return len(b.entries) == 0
}

// Aliases returns the set of declared alias names.
func (b *Bindings) Aliases() []string {
	out := make([]string, 0, len(b.entries))
	for alias := range b.entries {
		out = append(out, alias)
	}
	return out
}

// ToValue serializes the bindings to a JSON-ready map for the
// TaskStarted.inputs event payload (spec §4.7). Pending bindings are
// represented as {"__lazy__": true, "path": path} since their value is not
// yet known.
func (b *Bindings) ToValue() map[string]any {
	out := make(map[string]any, len(b.entries))
	for alias, entry := range b.entries {
		if entry.state == pending {
			out[alias] = map[string]any{"__lazy__": true, "path": entry.path}
			continue
		}
		out[alias] = entry.value
	}
	return out
}

// ResolveEntry implements the four-step resolution policy of spec §4.3:
// split the path into task id + field path, look up the task's output,
// traverse the field path if any, then apply the null/default policy.
func ResolveEntry(entry Entry, alias string, store DataStore) (any, error) {
	taskID, fieldPath, hasFieldPath := splitPath(entry.Path)

	output, ok := store.GetOutput(taskID)
	if !ok {
		if entry.Default != nil {
			return *entry.Default, nil
		}
		return nil, nikaerr.New(nikaerr.PathNotFound, "path not found: %q", entry.Path).WithTask(taskID)
	}

	value := output
	if hasFieldPath {
		resolved, found := jsonpath.Resolve(output, fieldPath)
		if !found {
			if entry.Default != nil {
				return *entry.Default, nil
			}
			return nil, nikaerr.New(nikaerr.PathNotFound, "path not found: %q", entry.Path).WithTask(taskID)
		}
		value = resolved
	}

	if value == nil {
		if entry.Default != nil {
			return *entry.Default, nil
		}
		return nil, nikaerr.New(nikaerr.NullValue, "null value at %q for alias %q", entry.Path, alias).WithTask(taskID)
	}

	return value, nil
}

// splitPath returns (task_id, field_path, hasFieldPath) by splitting path
// at its first '.'.
func splitPath(path string) (taskID, fieldPath string, hasFieldPath bool) {
	idx := strings.IndexByte(path, '.')
	if idx < 0 {
		return path, "", false
	}
	return path[:idx], path[idx+1:], true
}

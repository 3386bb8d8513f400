// Package jsonpath implements the small dot-path traversal used to resolve
// "task.path" segments against a JSON value, shared by the result store and
// the binding resolver so that path semantics never drift between the two.
package jsonpath

import (
	"strconv"
	"strings"
)

// Resolve walks path (dot-separated segments, optionally written with
// bracket indices such as "items[0].name" or a leading "$.") against root
// and returns the value found. A segment that parses as an unsigned
// integer indexes into an array; any other segment is an object key.
// A missing segment returns (nil, false) rather than an error — absence
// is distinct from JSON null and is reported to the caller to apply
// whatever default/error policy fits the context.
func Resolve(root any, path string) (any, bool) {
	segments := Split(path)
	current := root
	for _, seg := range segments {
		next, ok := step(current, seg)
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

// Split normalizes path into plain dot segments: a leading "$." is
// stripped and bracket indices ("items[0]") are rewritten as additional
// dot segments ("items.0").
func Split(path string) []string {
	path = strings.TrimPrefix(path, "$.")
	path = strings.TrimPrefix(path, "$")
	normalized := strings.Builder{}
	for _, r := range path {
		switch r {
		case '[':
			normalized.WriteByte('.')
		case ']':
			// drop
		default:
			normalized.WriteRune(r)
		}
	}
	raw := strings.Split(normalized.String(), ".")
	segments := make([]string, 0, len(raw))
	for _, s := range raw {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}

func step(current any, seg string) (any, bool) {
	if idx, err := strconv.ParseUint(seg, 10, 64); err == nil {
		arr, ok := current.([]any)
		if !ok || idx >= uint64(len(arr)) {
			return nil, false
		}
		return arr[idx], true
	}
	obj, ok := current.(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := obj[seg]
	return v, ok
}

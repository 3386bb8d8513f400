// Package template implements the `{{use.alias[.path]}}` substitution
// resolver from spec §4.3, grounded on the Rust original's
// binding/template.rs: a single compiled regex sweep with a zero-allocation
// fast path for templates containing no placeholder, zero-copy traversal
// by reference until the final stringify, and JSON-string-context escaping
// when the substitution site sits inside a quoted string literal.
package template

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/nikahq/nika/internal/nikaerr"
)

// useRe matches "{{ use.alias[.field...] }}" capturing the dotted path
// after "use.". Compiled once at package init, mirroring template.rs's
// lazily-initialized static regex.
var useRe = regexp.MustCompile(`\{\{\s*use\.(\w+(?:\.\w+)*)\s*\}\}`)

// Bindings is the subset of binding.Bindings that template resolution
// needs; declared locally to avoid an import cycle.
type Bindings interface {
	Get(alias string) (any, bool)
}

// Resolve substitutes every `{{use.alias[.path]}}` placeholder in tmpl. If
// tmpl contains no "{{use." substring at all, the original string is
// returned unchanged with no allocation (the zero-allocation fast path
// spec §8 requires). Otherwise a single pass builds the result, tracking
// every alias that fails to resolve so all failures are reported together
// rather than failing on the first one.
func Resolve(tmpl string, bindings Bindings) (string, error) {
	if !strings.Contains(tmpl, "{{use.") {
		return tmpl, nil
	}

	var out strings.Builder
	out.Grow(len(tmpl))

	var unresolved []string
	lastEnd := 0

	matches := useRe.FindAllStringSubmatchIndex(tmpl, -1)
	for _, m := range matches {
		matchStart, matchEnd := m[0], m[1]
		pathStart, pathEnd := m[2], m[3]

		out.WriteString(tmpl[lastEnd:matchStart])

		fullPath := tmpl[pathStart:pathEnd]
		alias, segments := splitAliasPath(fullPath)

		value, ok := bindings.Get(alias)
		if !ok {
			unresolved = append(unresolved, alias)
			lastEnd = matchEnd
			continue
		}

		resolved, traversalErr := traverse(value, segments, alias)
		if traversalErr != nil {
			return "", traversalErr
		}

		text, valueErr := valueToString(resolved, alias, fullPath)
		if valueErr != nil {
			return "", valueErr
		}

		if isInJSONContext(tmpl, matchStart) {
			text = escapeForJSON(text)
		}

		out.WriteString(text)
		lastEnd = matchEnd
	}
	out.WriteString(tmpl[lastEnd:])

	if len(unresolved) > 0 {
		return "", nikaerr.New(nikaerr.UnknownAlias,
			"Alias(es) not resolved: %s. Did you declare them in 'use:'?", strings.Join(unresolved, ", "))
	}

	return out.String(), nil
}

func splitAliasPath(fullPath string) (alias string, segments []string) {
	parts := strings.Split(fullPath, ".")
	return parts[0], parts[1:]
}

// traverse walks segments against value by reference, never cloning until
// the caller converts the final result to a string.
func traverse(value any, segments []string, alias string) (any, error) {
	current := value
	traversed := []string{alias}

	for _, seg := range segments {
		next, ok := step(current, seg)
		if ok {
			current = next
			traversed = append(traversed, seg)
			continue
		}

		switch current.(type) {
		case map[string]any, []any:
			return nil, nikaerr.New(nikaerr.PathNotFound, "path not found: %q", strings.Join(traversed, ".")+"."+seg)
		default:
			return nil, nikaerr.New(nikaerr.InvalidTraversal,
				"cannot traverse into %s at %q: attempted segment %q", valueTypeName(current), strings.Join(traversed, "."), seg)
		}
	}
	return current, nil
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
	v, present := obj[seg]
	return v, present
}

func valueTypeName(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case float64, int:
		return "number"
	case bool:
		return "bool"
	case nil:
		return "null"
	default:
		return "value"
	}
}

// valueToString converts the final traversed value to its template text
// per spec §4.3's conversion rules: strings pass through raw, numbers and
// booleans use their canonical text, objects/arrays serialize to compact
// JSON, and null is always an error (there is no default at substitution
// time — defaults belong to binding resolution, not templating).
func valueToString(v any, alias, fullPath string) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nikaerr.New(nikaerr.NullValue, "null value for %q (alias %q)", fullPath, alias)
	case string:
		return val, nil
	case bool:
		return strconv.FormatBool(val), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}

// isInJSONContext performs a naive scan of the characters preceding pos in
// s, tracking quote/escape state, to decide whether pos sits inside a JSON
// string literal. Mirrors template.rs's is_in_json_context.
func isInJSONContext(s string, pos int) bool {
	inString := false
	escaped := false
	for i := 0; i < pos && i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		}
	}
	return inString
}

// escapeForJSON escapes s for embedding inside a JSON string literal.
func escapeForJSON(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 {
				b.WriteString(`\u`)
				hex := strconv.FormatInt(int64(r), 16)
				for len(hex) < 4 {
					hex = "0" + hex
				}
				b.WriteString(hex)
			} else {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}

// ExtractRefs returns every (alias, fullPath) pair referenced by tmpl,
// without resolving them, for static validation.
func ExtractRefs(tmpl string) [][2]string {
	matches := useRe.FindAllStringSubmatch(tmpl, -1)
	out := make([][2]string, 0, len(matches))
	for _, m := range matches {
		fullPath := m[1]
		alias, _ := splitAliasPath(fullPath)
		out = append(out, [2]string{alias, fullPath})
	}
	return out
}

// ValidateRefs checks that every alias referenced by tmpl appears in
// declaredAliases, returning a NIKA-071 error naming the first unknown
// alias found and the task it belongs to.
func ValidateRefs(tmpl string, declaredAliases map[string]struct{}, taskID string) error {
	for _, ref := range ExtractRefs(tmpl) {
		alias := ref[0]
		if _, ok := declaredAliases[alias]; !ok {
			return nikaerr.New(nikaerr.UnknownAlias, "unknown alias %q referenced in task %q", alias, taskID)
		}
	}
	return nil
}

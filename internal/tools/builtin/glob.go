package builtin

import (
	"context"
	"encoding/json"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/nikahq/nika/internal/nikaerr"
)

// MaxGlobResults bounds how many matches Glob returns, preventing an
// unbounded pattern from building an enormous result set.
const MaxGlobResults = 10000

// GlobParams are the JSON parameters for a Glob tool call.
type GlobParams struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path,omitempty"`
}

// GlobResult is the JSON result of a Glob tool call.
type GlobResult struct {
	Matches  []string `json:"matches"`
	Count    int      `json:"count"`
	BasePath string   `json:"base_path"`
}

// GlobTool finds files under the working directory matching a `**`-aware
// glob pattern, sorted by modification time for a deterministic result
// order. No gitignore-aware walking library is available in this module's
// dependency set (see DESIGN.md), so this walks the full tree via
// path/filepath.
type GlobTool struct {
	ctx *Context
}

// NewGlobTool returns a Glob tool bound to ctx.
func NewGlobTool(ctx *Context) *GlobTool {
	return &GlobTool{ctx: ctx}
}

func (t *GlobTool) Name() string { return "glob" }

func (t *GlobTool) Description() string {
	return "Find files matching a glob pattern (supports **/*.ext recursive patterns). " +
		"Results are sorted by modification time. Searches the working directory by default."
}

func (t *GlobTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"pattern": map[string]any{
				"type":        "string",
				"description": "Glob pattern, e.g. **/*.go or src/**/*.ts",
			},
			"path": map[string]any{
				"type":        "string",
				"description": "Base path to search in (default: working directory)",
			},
		},
		"required": []string{"pattern"},
	}
}

func (t *GlobTool) Call(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var params GlobParams
	if err := json.Unmarshal(payload, &params); err != nil {
		return nil, nikaerr.New(nikaerr.ToolInvalidGlobPattern, "invalid parameters: %v", err)
	}
	result, err := t.Execute(params)
	if err != nil {
		return nil, err
	}
	return json.Marshal(result)
}

// Execute walks basePath (params.Path, or the working directory) and
// returns every regular file whose path relative to basePath matches
// params.Pattern.
func (t *GlobTool) Execute(params GlobParams) (GlobResult, error) {
	if err := t.ctx.CheckPermission(OpSearch); err != nil {
		return GlobResult{}, err
	}

	basePath := t.ctx.WorkingDir()
	if params.Path != "" {
		validated, err := t.ctx.ValidatePath(params.Path)
		if err != nil {
			return GlobResult{}, err
		}
		basePath = validated
	}

	patSegs := strings.Split(params.Pattern, "/")

	type match struct {
		path     string
		modified time.Time
	}
	var matches []match

	err := filepath.WalkDir(basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(basePath, path)
		if err != nil {
			rel = path
		}
		relSegs := strings.Split(filepath.ToSlash(rel), "/")
		if !matchGlobSegments(patSegs, relSegs) {
			return nil
		}
		info, err := d.Info()
		modified := time.Unix(0, 0)
		if err == nil {
			modified = info.ModTime()
		}
		matches = append(matches, match{path: path, modified: modified})
		return nil
	})
	if err != nil {
		return GlobResult{}, nikaerr.New(nikaerr.ToolReadFailed, "glob search failed: %v", err)
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].modified.After(matches[j].modified)
	})
	if len(matches) > MaxGlobResults {
		matches = matches[:MaxGlobResults]
	}

	paths := make([]string, len(matches))
	for i, m := range matches {
		paths[i] = m.path
	}

	t.ctx.emit("glob_search", map[string]any{
		"pattern":   params.Pattern,
		"matches":   len(paths),
		"base_path": basePath,
	})

	return GlobResult{
		Matches:  paths,
		Count:    len(paths),
		BasePath: basePath,
	}, nil
}

// matchGlobSegments matches a slash-split glob pattern (where "**" matches
// zero or more path segments) against a slash-split relative path.
func matchGlobSegments(pattern, path []string) bool {
	if len(pattern) == 0 {
		return len(path) == 0
	}
	if pattern[0] == "**" {
		if matchGlobSegments(pattern[1:], path) {
			return true
		}
		if len(path) > 0 {
			return matchGlobSegments(pattern, path[1:])
		}
		return false
	}
	if len(path) == 0 {
		return false
	}
	ok, err := filepath.Match(pattern[0], path[0])
	if err != nil || !ok {
		return false
	}
	return matchGlobSegments(pattern[1:], path[1:])
}

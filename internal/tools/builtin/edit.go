package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/nikahq/nika/internal/nikaerr"
)

// EditParams are the JSON parameters for an Edit tool call.
type EditParams struct {
	FilePath   string `json:"file_path"`
	OldString  string `json:"old_string"`
	NewString  string `json:"new_string"`
	ReplaceAll bool   `json:"replace_all,omitempty"`
}

// EditResult is the JSON result of an Edit tool call.
type EditResult struct {
	Path         string `json:"path"`
	Replacements int    `json:"replacements"`
	DiffPreview  string `json:"diff_preview"`
}

// EditTool replaces text in an existing file, requiring the file to have
// been read first (via ReadTool, which shares this tool's *Context) and
// old_string to be unique unless ReplaceAll is set.
type EditTool struct {
	ctx *Context
}

// NewEditTool returns an Edit tool bound to ctx.
func NewEditTool(ctx *Context) *EditTool {
	return &EditTool{ctx: ctx}
}

func (t *EditTool) Name() string { return "edit" }

func (t *EditTool) Description() string {
	return "Edit an existing file by replacing text. IMPORTANT: You must read the file first using " +
		"the Read tool before editing. The old_string must be unique in the file unless " +
		"replace_all is true. Preserves exact indentation and whitespace."
}

func (t *EditTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_path": map[string]any{
				"type":        "string",
				"description": "Absolute path to the file to edit",
			},
			"old_string": map[string]any{
				"type":        "string",
				"description": "Text to find and replace",
			},
			"new_string": map[string]any{
				"type":        "string",
				"description": "Replacement text",
			},
			"replace_all": map[string]any{
				"type":        "boolean",
				"description": "Replace all occurrences (default: false)",
			},
		},
		"required": []string{"file_path", "old_string", "new_string"},
	}
}

func (t *EditTool) Call(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var params EditParams
	if err := json.Unmarshal(payload, &params); err != nil {
		return nil, nikaerr.New(nikaerr.ToolEditFailed, "invalid parameters: %v", err)
	}
	result, err := t.Execute(params)
	if err != nil {
		return nil, err
	}
	return json.Marshal(result)
}

// Execute performs the replacement described by params via a
// temp-file-then-rename write.
func (t *EditTool) Execute(params EditParams) (EditResult, error) {
	path, err := t.ctx.ValidatePath(params.FilePath)
	if err != nil {
		return EditResult{}, err
	}
	if err := t.ctx.CheckPermission(OpEdit); err != nil {
		return EditResult{}, err
	}
	if err := t.ctx.ValidateReadBeforeEdit(path); err != nil {
		return EditResult{}, err
	}

	if _, err := os.Lstat(path); os.IsNotExist(err) {
		return EditResult{}, nikaerr.New(nikaerr.ToolFileNotFound, "file not found: %s", params.FilePath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return EditResult{}, nikaerr.New(nikaerr.ToolEditFailed, "failed to read file: %v", err)
	}
	content := string(data)

	occurrences := strings.Count(content, params.OldString)
	if occurrences == 0 {
		return EditResult{}, nikaerr.New(nikaerr.ToolEditFailed,
			"old_string not found in file. Make sure the string matches exactly, including whitespace and indentation.")
	}
	if occurrences > 1 && !params.ReplaceAll {
		return EditResult{}, nikaerr.New(nikaerr.ToolOldStringNotUnique,
			"old_string appears %d times in file. Use replace_all: true to replace all occurrences, "+
				"or provide a more specific string that appears only once.", occurrences)
	}

	var newContent string
	var replacements int
	if params.ReplaceAll {
		newContent = strings.ReplaceAll(content, params.OldString, params.NewString)
		replacements = occurrences
	} else {
		newContent = strings.Replace(content, params.OldString, params.NewString, 1)
		replacements = 1
	}

	diffPreview := generateDiff(content, newContent, params.FilePath)

	tempPath := path + ".tmp.nika.edit"
	if err := os.WriteFile(tempPath, []byte(newContent), 0o644); err != nil {
		return EditResult{}, nikaerr.New(nikaerr.ToolEditFailed, "failed to write content: %v", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return EditResult{}, nikaerr.New(nikaerr.ToolEditFailed, "failed to finalize edit: %v", err)
	}

	t.ctx.emit("file_edited", map[string]any{
		"path":         params.FilePath,
		"replacements": replacements,
	})

	return EditResult{
		Path:         params.FilePath,
		Replacements: replacements,
		DiffPreview:  diffPreview,
	}, nil
}

// generateDiff produces a minimal unified-diff-style preview of the
// changed line ranges between old and new. Grounded on edit.rs's
// generate_diff: not a general diff algorithm, just enough to surface
// what changed for the tool caller.
func generateDiff(oldText, newText, filePath string) string {
	oldLines := splitLines(oldText)
	newLines := splitLines(newText)

	header := fmt.Sprintf("--- %s\n+++ %s\n", filePath, filePath)
	var b strings.Builder
	b.WriteString(header)

	i, j := 0, 0
	for i < len(oldLines) || j < len(newLines) {
		if i < len(oldLines) && j < len(newLines) && oldLines[i] == newLines[j] {
			i++
			j++
			continue
		}
		startI, startJ := i, j
		for i < len(oldLines) && !containsLine(newLines[startJ:], oldLines[i]) {
			i++
		}
		for j < len(newLines) && (i >= len(oldLines) || newLines[j] != oldLines[i]) {
			j++
		}
		fmt.Fprintf(&b, "@@ -%d,%d +%d,%d @@\n", startI+1, i-startI, startJ+1, j-startJ)
		for _, line := range oldLines[startI:i] {
			fmt.Fprintf(&b, "-%s\n", line)
		}
		for _, line := range newLines[startJ:j] {
			fmt.Fprintf(&b, "+%s\n", line)
		}
	}

	if b.String() == header {
		return "No changes"
	}
	return b.String()
}

func containsLine(lines []string, target string) bool {
	for _, l := range lines {
		if l == target {
			return true
		}
	}
	return false
}

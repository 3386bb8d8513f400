package builtin

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/nikahq/nika/internal/nikaerr"
)

// WriteParams are the JSON parameters for a Write tool call.
type WriteParams struct {
	FilePath string `json:"file_path"`
	Content  string `json:"content"`
}

// WriteResult is the JSON result of a Write tool call.
type WriteResult struct {
	Path         string `json:"path"`
	BytesWritten int    `json:"bytes_written"`
	LinesWritten int    `json:"lines_written"`
}

// WriteTool creates a new file, failing if one already exists at the
// target path (use EditTool to modify existing files).
type WriteTool struct {
	ctx *Context
}

// NewWriteTool returns a Write tool bound to ctx.
func NewWriteTool(ctx *Context) *WriteTool {
	return &WriteTool{ctx: ctx}
}

func (t *WriteTool) Name() string { return "write" }

func (t *WriteTool) Description() string {
	return "Create a new file with the specified content. Fails if the file already exists " +
		"(use Edit for modifications). Creates parent directories if needed. " +
		"Must use absolute paths within the working directory."
}

func (t *WriteTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_path": map[string]any{
				"type":        "string",
				"description": "Absolute path for the new file",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Content to write to the file",
			},
		},
		"required": []string{"file_path", "content"},
	}
}

func (t *WriteTool) Call(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var params WriteParams
	if err := json.Unmarshal(payload, &params); err != nil {
		return nil, nikaerr.New(nikaerr.ToolWriteFailed, "invalid parameters: %v", err)
	}
	result, err := t.Execute(params)
	if err != nil {
		return nil, err
	}
	return json.Marshal(result)
}

// Execute creates the file described by params via a temp-file-then-rename
// write, so a crash mid-write never leaves a partially written file at the
// final path.
func (t *WriteTool) Execute(params WriteParams) (WriteResult, error) {
	path, err := t.ctx.ValidatePath(params.FilePath)
	if err != nil {
		return WriteResult{}, err
	}
	if err := t.ctx.CheckPermission(OpWrite); err != nil {
		return WriteResult{}, err
	}

	if _, err := os.Lstat(path); err == nil {
		return WriteResult{}, nikaerr.New(nikaerr.ToolFileAlreadyExists, "file already exists: %s. Use the Edit tool to modify existing files.", params.FilePath)
	}

	if parent := filepath.Dir(path); parent != "" {
		if _, err := os.Stat(parent); os.IsNotExist(err) {
			if err := os.MkdirAll(parent, 0o755); err != nil {
				return WriteResult{}, nikaerr.New(nikaerr.ToolWriteFailed, "failed to create parent directories: %v", err)
			}
		}
	}

	tempPath := path + ".tmp.nika"
	if err := os.WriteFile(tempPath, []byte(params.Content), 0o644); err != nil {
		return WriteResult{}, nikaerr.New(nikaerr.ToolWriteFailed, "failed to write content: %v", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return WriteResult{}, nikaerr.New(nikaerr.ToolWriteFailed, "failed to finalize file: %v", err)
	}

	bytesWritten := len(params.Content)
	linesWritten := strings.Count(params.Content, "\n")
	if bytesWritten > 0 && !strings.HasSuffix(params.Content, "\n") {
		linesWritten++
	}

	t.ctx.emit("file_written", map[string]any{
		"path":  params.FilePath,
		"bytes": bytesWritten,
	})

	return WriteResult{
		Path:         params.FilePath,
		BytesWritten: bytesWritten,
		LinesWritten: linesWritten,
	}, nil
}

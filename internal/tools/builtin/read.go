package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/nikahq/nika/internal/nikaerr"
)

// DefaultReadLimit is the number of lines returned when a Read call omits
// limit.
const DefaultReadLimit = 2000

// MaxLineLength truncates any single returned line past this many
// characters.
const MaxLineLength = 2000

// ReadParams are the JSON parameters for a Read tool call.
type ReadParams struct {
	FilePath string `json:"file_path"`
	Offset   int    `json:"offset,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// ReadResult is the JSON result of a Read tool call.
type ReadResult struct {
	Content       string `json:"content"`
	TotalLines    int    `json:"total_lines"`
	LinesReturned int    `json:"lines_returned"`
	Truncated     bool   `json:"truncated"`
}

// ReadTool reads a file with cat -n-style line numbers and records the
// path as read, satisfying EditTool's read-before-edit requirement.
type ReadTool struct {
	ctx *Context
}

// NewReadTool returns a Read tool bound to ctx.
func NewReadTool(ctx *Context) *ReadTool {
	return &ReadTool{ctx: ctx}
}

func (t *ReadTool) Name() string { return "read" }

func (t *ReadTool) Description() string {
	return "Read a file from the filesystem. Returns content with line numbers. " +
		"Use offset and limit for large files. Must use absolute paths within " +
		"the working directory."
}

func (t *ReadTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_path": map[string]any{
				"type":        "string",
				"description": "Absolute path to the file to read",
			},
			"offset": map[string]any{
				"type":        "integer",
				"description": "Line number to start reading from (1-indexed)",
				"minimum":     1,
			},
			"limit": map[string]any{
				"type":        "integer",
				"description": "Maximum number of lines to read (default: 2000)",
				"minimum":     1,
				"maximum":     10000,
			},
		},
		"required": []string{"file_path"},
	}
}

func (t *ReadTool) Call(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var params ReadParams
	if err := json.Unmarshal(payload, &params); err != nil {
		return nil, nikaerr.New(nikaerr.ToolReadFailed, "invalid parameters: %v", err)
	}
	result, err := t.Execute(params)
	if err != nil {
		return nil, err
	}
	return json.Marshal(result)
}

// Execute reads the file described by params, applying offset/limit and
// marking it as read.
func (t *ReadTool) Execute(params ReadParams) (ReadResult, error) {
	path, err := t.ctx.ValidatePath(params.FilePath)
	if err != nil {
		return ReadResult{}, err
	}

	if t.ctx.PermissionMode() == Deny {
		return ReadResult{}, nikaerr.New(nikaerr.ToolPermissionDenied, "read operations are denied in current permission mode")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ReadResult{}, nikaerr.New(nikaerr.ToolFileNotFound, "file not found: %s", params.FilePath)
		}
		return ReadResult{}, nikaerr.New(nikaerr.ToolReadFailed, "failed to read file: %v", err)
	}

	allLines := splitLines(string(data))
	totalLines := len(allLines)

	offset := params.Offset
	if offset > 0 {
		offset--
	}
	if offset < 0 {
		offset = 0
	}
	limit := params.Limit
	if limit <= 0 {
		limit = DefaultReadLimit
	}

	end := offset + limit
	if end > totalLines {
		end = totalLines
	}
	var selected []string
	if offset < totalLines {
		selected = allLines[offset:end]
	}
	linesReturned := len(selected)
	truncated := offset+linesReturned < totalLines

	var b strings.Builder
	for i, line := range selected {
		lineNum := offset + i + 1
		if len(line) > MaxLineLength {
			line = line[:MaxLineLength] + "..."
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%6d\t%s", lineNum, line)
	}

	t.ctx.MarkAsRead(path)
	t.ctx.emit("file_read", map[string]any{
		"path":      params.FilePath,
		"lines":     linesReturned,
		"truncated": truncated,
	})

	return ReadResult{
		Content:       b.String(),
		TotalLines:    totalLines,
		LinesReturned: linesReturned,
		Truncated:     truncated,
	}, nil
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}

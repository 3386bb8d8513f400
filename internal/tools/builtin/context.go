// Package builtin implements the filesystem tools an agent task can use
// without an MCP round-trip: read/write/edit/glob, bounded to a workspace
// root. Grounded on the Rust original's tools/nika/src/tools/{context,
// read,write,edit,glob}.rs. Context carries the security boundary
// (working directory), the read-before-edit tracking set, and the
// permission mode every call is checked against; the individual tools in
// this package hold a *Context and never touch the filesystem outside the
// checks it performs.
package builtin

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/nikahq/nika/internal/eventlog"
	"github.com/nikahq/nika/internal/nikaerr"
)

// PermissionMode gates which operations a tool call may perform, mirrored
// from the original's Deny/Plan/AcceptEdits/YoloMode levels.
type PermissionMode int

const (
	// Deny blocks every file operation.
	Deny PermissionMode = iota
	// Plan asks before each operation; tool calls are rejected until a
	// caller explicitly switches to a more permissive mode.
	Plan
	// AcceptEdits auto-approves Edit but still asks for Write/create.
	AcceptEdits
	// YoloMode auto-approves every operation.
	YoloMode
)

func (m PermissionMode) String() string {
	switch m {
	case Deny:
		return "Deny"
	case Plan:
		return "Plan"
	case AcceptEdits:
		return "AcceptEdits"
	case YoloMode:
		return "YoloMode"
	default:
		return "Unknown"
	}
}

// Operation names the kind of file access a tool call performs.
type Operation int

const (
	OpRead Operation = iota
	OpWrite
	OpEdit
	OpSearch
)

// Allows reports whether mode permits op.
func (m PermissionMode) Allows(op Operation) bool {
	switch m {
	case Deny:
		return false
	case Plan:
		return false
	case AcceptEdits:
		return op == OpEdit
	case YoloMode:
		return true
	default:
		return false
	}
}

// Context is the shared state for every built-in tool: the workspace
// boundary, read-before-edit tracking, and permission mode. Safe for
// concurrent use.
type Context struct {
	workingDir string

	mu        sync.RWMutex
	readFiles map[string]struct{}

	permMu     sync.RWMutex
	permission PermissionMode

	events *eventlog.Log
	taskID string
}

// NewContext returns a Context bounded to workingDir, canonicalized up
// front so later comparisons in ValidatePath are exact.
func NewContext(workingDir string, mode PermissionMode) (*Context, error) {
	abs, err := filepath.Abs(workingDir)
	if err != nil {
		return nil, fmt.Errorf("builtin: resolve working dir %q: %w", workingDir, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return &Context{
		workingDir: abs,
		readFiles:  make(map[string]struct{}),
		permission: mode,
	}, nil
}

// WithEvents returns ctx configured to emit eventlog.KindToolInvoked events
// scoped to taskID. Mirrors the original's with_events builder.
func (c *Context) WithEvents(events *eventlog.Log, taskID string) *Context {
	c.events = events
	c.taskID = taskID
	return c
}

// WorkingDir returns the canonicalized workspace root.
func (c *Context) WorkingDir() string {
	return c.workingDir
}

// PermissionMode returns the current permission level.
func (c *Context) PermissionMode() PermissionMode {
	c.permMu.RLock()
	defer c.permMu.RUnlock()
	return c.permission
}

// SetPermissionMode changes the current permission level.
func (c *Context) SetPermissionMode(mode PermissionMode) {
	c.permMu.Lock()
	defer c.permMu.Unlock()
	c.permission = mode
}

// ValidatePath checks that filePath is absolute and resolves within the
// working directory, returning the canonicalized path. Non-existent paths
// are resolved by canonicalizing the first existing ancestor and
// reattaching the remaining components, since the file may not exist yet
// (e.g. a Write target).
func (c *Context) ValidatePath(filePath string) (string, error) {
	if !filepath.IsAbs(filePath) {
		return "", nikaerr.New(nikaerr.ToolRelativePath, "path must be absolute: %s", filePath)
	}

	resolved := c.resolve(filePath)

	if !withinDir(resolved, c.workingDir) {
		return "", nikaerr.New(nikaerr.ToolPathOutOfBounds, "path %q is outside working directory %q", filePath, c.workingDir)
	}
	return resolved, nil
}

func (c *Context) resolve(path string) string {
	if _, err := os.Lstat(path); err == nil {
		if real, err := filepath.EvalSymlinks(path); err == nil {
			return real
		}
		return filepath.Clean(path)
	}
	return c.resolveAncestors(path)
}

// resolveAncestors walks up from path until it finds an existing
// ancestor, canonicalizes that ancestor, then reattaches the missing
// components. Grounded on canonicalize_with_ancestors in context.rs,
// which exists to handle symlinked prefixes (e.g. /var -> /private/var on
// macOS) for paths that don't exist yet.
func (c *Context) resolveAncestors(path string) string {
	clean := filepath.Clean(path)
	var missing []string
	current := clean
	for {
		if _, err := os.Lstat(current); err == nil {
			break
		}
		parent := filepath.Dir(current)
		if parent == current {
			return clean
		}
		missing = append(missing, filepath.Base(current))
		current = parent
	}

	base := current
	if real, err := filepath.EvalSymlinks(current); err == nil {
		base = real
	}
	for i := len(missing) - 1; i >= 0; i-- {
		base = filepath.Join(base, missing[i])
	}
	return base
}

func withinDir(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && rel != "..")
}

// CheckPermission returns a NIKA-130 error if op is not allowed under the
// current permission mode.
func (c *Context) CheckPermission(op Operation) error {
	mode := c.PermissionMode()
	if mode.Allows(op) {
		return nil
	}
	return nikaerr.New(nikaerr.ToolPermissionDenied, "operation not allowed in %s mode", mode)
}

// MarkAsRead records path as having been read, satisfying the
// read-before-edit invariant for a later Edit call.
func (c *Context) MarkAsRead(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readFiles[path] = struct{}{}
}

// WasRead reports whether path has been read in this context's lifetime.
func (c *Context) WasRead(path string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.readFiles[path]
	return ok
}

// ValidateReadBeforeEdit returns a NIKA-137 error unless path was
// previously read via MarkAsRead.
func (c *Context) ValidateReadBeforeEdit(path string) error {
	if !c.WasRead(path) {
		return nikaerr.New(nikaerr.ToolMustReadFirst, "must read file before editing: %s", path)
	}
	return nil
}

// ClearReadTracking forgets every recorded read, used by tests and by a
// fresh agent session sharing a reused Context.
func (c *Context) ClearReadTracking() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readFiles = make(map[string]struct{})
}

func (c *Context) emit(op string, payload map[string]any) {
	if c.events == nil {
		return
	}
	full := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		full[k] = v
	}
	full["task_id"] = c.taskID
	full["op"] = op
	c.events.Emit(eventlog.KindToolInvoked, full)
}

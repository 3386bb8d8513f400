package builtin

import (
	"context"
	"encoding/json"
)

// Tool is a built-in, workspace-bounded filesystem tool exposed to the
// agent loop alongside MCP-exposed tools.
type Tool interface {
	Name() string
	Description() string
	Schema() map[string]any
	Call(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)
}

// Registry holds the built-in tools available to an agent task, each
// sharing the same *Context (and so the same read-before-edit tracking
// and permission mode).
type Registry struct {
	ctx   *Context
	tools map[string]Tool
}

// NewRegistry returns a Registry populated with read/write/edit/glob,
// all bound to ctx.
func NewRegistry(ctx *Context) *Registry {
	r := &Registry{ctx: ctx, tools: make(map[string]Tool, 4)}
	for _, t := range []Tool{
		NewReadTool(ctx),
		NewWriteTool(ctx),
		NewEditTool(ctx),
		NewGlobTool(ctx),
	} {
		r.tools[t.Name()] = t
	}
	return r
}

// Get returns the named tool, if registered.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns every registered tool name.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	return out
}

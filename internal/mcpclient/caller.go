// Package mcpclient implements the MCP (Model Context Protocol) stdio
// transport used by the invoke and agent verbs (spec §4.5/§4.6). Grounded
// on the teacher's runtime/mcp and features/mcp/runtime packages: the
// Caller interface and stdio JSON-RPC transport are kept close to verbatim
// (they are already transport-only, with no Goa-DSL dependency); the HTTP
// toolset-registration runtime (runtime.go's goahttp wiring) and the SSE
// caller are dropped since spec.md's invoke verb only ever issues a single
// tools/call per task, never registers a toolset — see DESIGN.md.
package mcpclient

import (
	"context"
	"encoding/json"
)

// Caller invokes a single MCP tool. Implemented by transport-specific
// clients (currently stdio; HTTP can be added the same way).
type Caller interface {
	CallTool(ctx context.Context, req CallRequest) (CallResponse, error)
	Close() error
}

// Error represents a JSON-RPC error returned by the MCP server.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// CallRequest describes a single tool invocation.
type CallRequest struct {
	// Tool is the MCP-local tool identifier.
	Tool string
	// Payload is the JSON-encoded tool arguments.
	Payload json.RawMessage
}

// CallResponse captures the MCP tool result.
type CallResponse struct {
	// Result is the JSON payload returned by the MCP server.
	Result json.RawMessage
	// Structured carries the same payload pre-validated as JSON, when the
	// server declared it structured (mimeType application/json).
	Structured json.RawMessage
}

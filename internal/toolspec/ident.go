// Package toolspec holds the small set of tool-identity types shared by the
// agent loop, built-in tools, and MCP-exposed tools. Grounded on the
// teacher's runtime/agent/tools package, trimmed to the Ident type: the rest
// of that package (ToolSpec, ServerData, Confirmation, Paging, idempotency
// tags) models Goa DSL codegen metadata that has no equivalent in a
// YAML-driven workflow engine with no code generation step; see DESIGN.md.
package toolspec

// Ident is the fully qualified identifier for a tool available to an agent
// task, e.g. "builtin.read" or "weather.get_forecast" for an MCP tool.
type Ident string

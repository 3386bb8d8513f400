// Package agentloop implements the agent verb's multi-turn, tool-calling
// execution (spec §4.6), grounded on the Rust original's
// tools/nika/src/runtime/rig_agent_loop.rs (RigAgentLoop: build tools from
// connected MCP clients, run a provider-driven loop emitting AgentTurn
// events, stop on a stop condition / max turns / natural completion) and
// its companion tests chat_continuation_test.rs (history management,
// chat_continue) and reasoning_capture_test.rs (ThinkingPart capture,
// NIKA-116/117).
package agentloop

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/nikahq/nika/internal/eventlog"
	"github.com/nikahq/nika/internal/mcpclient"
	"github.com/nikahq/nika/internal/modelapi"
	"github.com/nikahq/nika/internal/nikaerr"
	"github.com/nikahq/nika/internal/tools/builtin"
	"github.com/nikahq/nika/internal/toolspec"
	"github.com/nikahq/nika/internal/workflow"
)

// DefaultMaxTurns is used when a workflow task omits max_turns.
const DefaultMaxTurns = 10

// MaxTurnsCeiling is the highest max_turns a task may declare.
const MaxTurnsCeiling = 100

// Status is the terminal state of an agent run.
type Status string

const (
	StatusNaturalCompletion  Status = "natural_completion"
	StatusStopConditionMet   Status = "stop_condition_met"
	StatusMaxTurnsReached    Status = "max_turns_reached"
	StatusTokenBudgetReached Status = "token_budget_exceeded"
	StatusFailed             Status = "failed"
)

// Result is the outcome of a Run or ChatContinue call.
type Result struct {
	Status      Status
	Turns       int
	FinalOutput string
	TotalTokens int
}

// mcpToolBinding pairs a tool definition with the caller that serves it.
type mcpToolBinding struct {
	def    modelapi.ToolDefinition
	server string
	caller mcpclient.Caller
}

// Session is one agent task's execution state: its parameters, resolved
// MCP tools, and conversation history, mirroring RigAgentLoop's fields
// plus the v0.6 chat-continuation additions (history/with_history/
// add_to_history/push_message/clear_history/chat_continue).
type Session struct {
	taskID  string
	params  workflow.AgentParams
	events  *eventlog.Log
	client  modelapi.Client
	tools   []mcpToolBinding
	history []*modelapi.Message
}

// New validates params and builds a Session. mcpServers resolves the
// `mcp:` names listed in params.MCP against the workflow's configured MCP
// caches; a task-declared server with no corresponding entry is a
// configuration error, not a runtime one, so it fails here rather than
// mid-run. builtinTools resolves the `tools:` names listed in params.Tools
// against the built-in read/write/edit/glob set; it may be nil when no
// builtin tool registry is configured for this workflow run.
func New(ctx context.Context, taskID string, params workflow.AgentParams, events *eventlog.Log, client modelapi.Client, mcpServers map[string]*mcpclient.Cache, builtinTools *builtin.Registry) (*Session, error) {
	if params.Prompt == "" {
		return nil, nikaerr.New(nikaerr.AgentParamInvalid, "agent prompt cannot be empty (task: %s)", taskID).WithTask(taskID)
	}
	if params.MaxTurns != nil {
		if *params.MaxTurns <= 0 {
			return nil, nikaerr.New(nikaerr.AgentParamInvalid, "max_turns must be at least 1 (task: %s)", taskID).WithTask(taskID)
		}
		if *params.MaxTurns > MaxTurnsCeiling {
			return nil, nikaerr.New(nikaerr.AgentParamInvalid, "max_turns cannot exceed %d (task: %s)", MaxTurnsCeiling, taskID).WithTask(taskID)
		}
	}

	tools, err := buildTools(ctx, params.MCP, mcpServers)
	if err != nil {
		return nil, err
	}
	builtinBindings, err := buildBuiltinTools(params.Tools, builtinTools)
	if err != nil {
		return nil, err
	}
	tools = append(tools, builtinBindings...)

	return &Session{
		taskID: taskID,
		params: params,
		events: events,
		client: client,
		tools:  tools,
	}, nil
}

func buildTools(ctx context.Context, mcpNames []string, mcpServers map[string]*mcpclient.Cache) ([]mcpToolBinding, error) {
	var tools []mcpToolBinding
	for _, name := range mcpNames {
		cache, ok := mcpServers[name]
		if !ok {
			return nil, nikaerr.New(nikaerr.AgentParamInvalid, "mcp server %q is not configured", name)
		}
		caller, err := cache.Get(ctx, mcpclient.ServerSpec{Name: name})
		if err != nil {
			return nil, nikaerr.New(nikaerr.AgentParamInvalid, "mcp server %q: %v", name, err)
		}
		tools = append(tools, mcpToolBinding{
			def:    modelapi.ToolDefinition{Name: toolspec.Ident(name), Description: "MCP server " + name},
			server: name,
			caller: caller,
		})
	}
	return tools, nil
}

// builtinCaller adapts a builtin.Tool to mcpclient.Caller so it can share
// serveToolCalls with MCP-backed tools without a second dispatch path.
type builtinCaller struct {
	tool builtin.Tool
}

func (b builtinCaller) CallTool(ctx context.Context, req mcpclient.CallRequest) (mcpclient.CallResponse, error) {
	raw, err := b.tool.Call(ctx, req.Payload)
	if err != nil {
		return mcpclient.CallResponse{}, err
	}
	return mcpclient.CallResponse{Result: raw}, nil
}

func (b builtinCaller) Close() error { return nil }

func buildBuiltinTools(names []string, registry *builtin.Registry) ([]mcpToolBinding, error) {
	var tools []mcpToolBinding
	for _, name := range names {
		if registry == nil {
			return nil, nikaerr.New(nikaerr.AgentParamInvalid, "builtin tool %q requested but no tool registry is configured", name)
		}
		tool, ok := registry.Get(name)
		if !ok {
			return nil, nikaerr.New(nikaerr.AgentParamInvalid, "builtin tool %q is not registered", name)
		}
		tools = append(tools, mcpToolBinding{
			def: modelapi.ToolDefinition{
				Name:        toolspec.Ident("builtin." + name),
				Description: tool.Description(),
				InputSchema: tool.Schema(),
			},
			server: "builtin",
			caller: builtinCaller{tool: tool},
		})
	}
	return tools, nil
}

// ToolCount reports how many tools (MCP and builtin) this session exposes
// to the model.
func (s *Session) ToolCount() int { return len(s.tools) }

// History returns the current conversation history; callers must not
// mutate the returned slice.
func (s *Session) History() []*modelapi.Message { return s.history }

// HistoryLen reports the number of messages in history.
func (s *Session) HistoryLen() int { return len(s.history) }

// WithHistory seeds the session with pre-existing history and returns the
// session for chaining, mirroring RigAgentLoop::with_history.
func (s *Session) WithHistory(history []*modelapi.Message) *Session {
	s.history = append([]*modelapi.Message(nil), history...)
	return s
}

// AddToHistory appends one user/assistant turn.
func (s *Session) AddToHistory(userText, assistantText string) {
	s.PushMessage(&modelapi.Message{Role: modelapi.ConversationRoleUser, Parts: []modelapi.Part{modelapi.TextPart{Text: userText}}})
	s.PushMessage(&modelapi.Message{Role: modelapi.ConversationRoleAssistant, Parts: []modelapi.Part{modelapi.TextPart{Text: assistantText}}})
}

// PushMessage appends a single message to history in any role order.
func (s *Session) PushMessage(msg *modelapi.Message) {
	s.history = append(s.history, msg)
}

// ClearHistory removes every message from history.
func (s *Session) ClearHistory() {
	s.history = nil
}

// RunMock simulates a single-turn natural completion without calling any
// provider, for tests, mirroring
// RigAgentLoop::run_mock.
func (s *Session) RunMock() *Result {
	s.emitTurn(1, "started", 0)
	output := `{"response":"Mock response from agent loop","completed":true}`

	status := StatusNaturalCompletion
	if s.checkStopConditions(output) {
		status = StatusStopConditionMet
	}
	s.emitTurn(1, string(status), 100)

	return &Result{Status: status, Turns: 1, FinalOutput: output, TotalTokens: 100}
}

// Run executes the agent loop: each turn calls the model with the
// accumulated history, serves any requested tool calls against the
// session's MCP tools, and stops on natural completion, a matched stop
// condition, or max_turns.
func (s *Session) Run(ctx context.Context) (*Result, error) {
	maxTurns := DefaultMaxTurns
	if s.params.MaxTurns != nil {
		maxTurns = *s.params.MaxTurns
	}

	if len(s.history) == 0 {
		s.history = append(s.history, &modelapi.Message{
			Role:  modelapi.ConversationRoleUser,
			Parts: []modelapi.Part{modelapi.TextPart{Text: s.params.Prompt}},
		})
	}

	s.emitTurn(0, "started", 0)

	totalTokens := 0
	var lastText string

	for turn := 1; turn <= maxTurns; turn++ {
		req := &modelapi.Request{
			Model:    s.params.Model,
			Messages: s.withPreamble(),
			Tools:    s.toolDefs(),
		}
		if s.params.ExtendedThinking {
			req.Thinking = &modelapi.ThinkingOptions{Enable: true}
		}

		resp, err := s.client.Complete(ctx, req)
		if err != nil {
			s.emitTurn(turn, "failed", totalTokens)
			return &Result{Status: StatusFailed, Turns: turn, TotalTokens: totalTokens}, err
		}
		totalTokens += resp.Usage.TotalTokens

		if err := s.captureThinking(resp); err != nil {
			return &Result{Status: StatusFailed, Turns: turn, TotalTokens: totalTokens}, err
		}

		if len(resp.ToolCalls) > 0 {
			if err := s.serveToolCalls(ctx, resp); err != nil {
				return &Result{Status: StatusFailed, Turns: turn, TotalTokens: totalTokens}, err
			}
			s.emitTurn(turn, "tool_call", totalTokens)
			continue
		}

		if len(resp.Content) > 0 {
			lastText = resp.Content[0].TextContent()
			s.history = append(s.history, &resp.Content[0])
		}

		if s.checkStopConditions(lastText) {
			s.emitTurn(turn, string(StatusStopConditionMet), totalTokens)
			return &Result{Status: StatusStopConditionMet, Turns: turn, FinalOutput: lastText, TotalTokens: totalTokens}, nil
		}

		s.emitTurn(turn, string(StatusNaturalCompletion), totalTokens)
		return &Result{Status: StatusNaturalCompletion, Turns: turn, FinalOutput: lastText, TotalTokens: totalTokens}, nil
	}

	s.emitTurn(maxTurns, string(StatusMaxTurnsReached), totalTokens)
	return &Result{Status: StatusMaxTurnsReached, Turns: maxTurns, FinalOutput: lastText, TotalTokens: totalTokens}, nil
}

// ChatContinue appends followUp as a user turn and runs one more
// completion against the accumulated history, for the agent-as-chat usage
// named in spec §4.6 (distinct from Run's full multi-turn loop).
func (s *Session) ChatContinue(ctx context.Context, followUp string) (*Result, error) {
	if s.client == nil {
		return nil, nikaerr.New(nikaerr.AgentParamInvalid, "chat_continue requires a configured model client (task: %s)", s.taskID).WithTask(s.taskID)
	}
	s.PushMessage(&modelapi.Message{Role: modelapi.ConversationRoleUser, Parts: []modelapi.Part{modelapi.TextPart{Text: followUp}}})

	req := &modelapi.Request{Model: s.params.Model, Messages: s.withPreamble(), Tools: s.toolDefs()}
	resp, err := s.client.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.captureThinking(resp); err != nil {
		return nil, err
	}

	var text string
	if len(resp.Content) > 0 {
		text = resp.Content[0].TextContent()
		s.history = append(s.history, &resp.Content[0])
	}

	status := StatusNaturalCompletion
	if s.checkStopConditions(text) {
		status = StatusStopConditionMet
	}
	s.emitTurn(len(s.history)/2, string(status), resp.Usage.TotalTokens)

	return &Result{Status: status, Turns: 1, FinalOutput: text, TotalTokens: resp.Usage.TotalTokens}, nil
}

// withPreamble prepends the task's system prompt to the conversation
// history sent to the model.
func (s *Session) withPreamble() []*modelapi.Message {
	preamble := &modelapi.Message{Role: modelapi.ConversationRoleSystem, Parts: []modelapi.Part{modelapi.TextPart{Text: s.params.Prompt}}}
	return append([]*modelapi.Message{preamble}, s.history...)
}

func (s *Session) toolDefs() []*modelapi.ToolDefinition {
	if len(s.tools) == 0 {
		return nil
	}
	defs := make([]*modelapi.ToolDefinition, 0, len(s.tools))
	for _, t := range s.tools {
		def := t.def
		defs = append(defs, &def)
	}
	return defs
}

func (s *Session) findTool(name toolspec.Ident) (mcpToolBinding, bool) {
	for _, t := range s.tools {
		if t.def.Name == name {
			return t, true
		}
	}
	return mcpToolBinding{}, false
}

// serveToolCalls executes every requested tool call against its MCP
// caller and appends a ToolResultPart message per call so the next turn's
// request carries the results back to the model.
func (s *Session) serveToolCalls(ctx context.Context, resp *modelapi.Response) error {
	for _, call := range resp.ToolCalls {
		binding, ok := s.findTool(call.Name)
		if !ok {
			return nikaerr.New(nikaerr.AgentParamInvalid, "model requested unknown tool %q (task: %s)", call.Name, s.taskID).WithTask(s.taskID)
		}
		result, err := binding.caller.CallTool(ctx, mcpclient.CallRequest{Tool: string(call.Name), Payload: call.Payload})
		part := modelapi.ToolResultPart{ToolUseID: call.ID}
		if err != nil {
			part.IsError = true
			part.Content = err.Error()
		} else {
			var decoded any
			if jsonErr := json.Unmarshal(result.Result, &decoded); jsonErr == nil {
				part.Content = decoded
			} else {
				part.Content = string(result.Result)
			}
		}
		s.history = append(s.history, &modelapi.Message{Role: modelapi.ConversationRoleUser, Parts: []modelapi.Part{part}})
	}
	return nil
}

// captureThinking checks the ThinkingParts the model returned on this
// turn, without storing or emitting their content, surfacing a NIKA-117 error when extended thinking was requested
// but the provider returned nothing, and a NIKA-116 error if a thinking
// block is malformed (no text and no redacted payload).
func (s *Session) captureThinking(resp *modelapi.Response) error {
	var found bool
	for _, msg := range resp.Content {
		for _, p := range msg.Parts {
			thinking, ok := p.(modelapi.ThinkingPart)
			if !ok {
				continue
			}
			found = true
			if thinking.Text == "" && len(thinking.Redacted) == 0 {
				return nikaerr.New(nikaerr.ReasoningCapture, "thinking block on task %q carried neither text nor redacted content", s.taskID).WithTask(s.taskID)
			}
		}
	}
	if s.params.ExtendedThinking && !found {
		return nikaerr.New(nikaerr.ReasoningUnsupported, "extended_thinking requested on task %q but provider returned no thinking content", s.taskID).WithTask(s.taskID)
	}
	return nil
}

// checkStopConditions reports whether any configured stop condition
// appears verbatim in output.
func (s *Session) checkStopConditions(output string) bool {
	for _, cond := range s.params.StopConditions {
		if strings.Contains(output, cond) {
			return true
		}
	}
	return false
}

func (s *Session) emitTurn(turnIndex int, kind string, tokens int) {
	s.events.Emit(eventlog.KindAgentTurn, map[string]any{
		"task_id":    s.taskID,
		"turn_index": turnIndex,
		"kind":       kind,
		"tokens":     tokens,
	})
}

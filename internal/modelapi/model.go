// Package modelapi defines the provider-agnostic message and streaming
// types shared by the agent loop and every provider adapter. Adapted from
// the teacher's runtime/agent/model package: the Part marker-interface
// pattern and Client/Streamer contract are kept verbatim in shape; the
// multimodal parts (images, documents, citations) are dropped since spec
// §4.6's agent verb only exchanges text and tool calls, and the task-level
// multimodal bindings spec.md describes nowhere.
package modelapi

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/nikahq/nika/internal/toolspec"
)

// ConversationRole is the role for a message in a conversation.
type ConversationRole string

const (
	ConversationRoleSystem    ConversationRole = "system"
	ConversationRoleUser      ConversationRole = "user"
	ConversationRoleAssistant ConversationRole = "assistant"
)

type (
	// Part is a marker interface implemented by every message content
	// block. Concrete implementations capture plain text, provider
	// reasoning, and tool call/result content in a strongly typed form.
	Part interface {
		isPart()
	}

	// TextPart is a plain text content block in a message.
	TextPart struct {
		Text string
	}

	// ThinkingPart represents provider-issued reasoning content captured
	// by the agent loop's reasoning-capture feature (spec §6, NIKA-116/117).
	ThinkingPart struct {
		// Text is the provider-visible reasoning text when available.
		Text string

		// Signature is the provider-issued signature for Text when present.
		Signature string

		// Redacted carries provider-issued reasoning content in redacted
		// form when plaintext Text is not available.
		Redacted []byte

		// Final reports whether this is the last reasoning block for the
		// current turn.
		Final bool
	}

	// ToolUsePart declares a tool invocation requested by the model.
	ToolUsePart struct {
		ID    string
		Name  toolspec.Ident
		Input json.RawMessage
	}

	// ToolResultPart carries a tool result supplied back to the model.
	ToolResultPart struct {
		ToolUseID string
		Content   any
		IsError   bool
	}

	// Message is a single chat message: an ordered list of parts attached
	// to a role.
	Message struct {
		Role  ConversationRole
		Parts []Part
	}

	// ToolDefinition describes a tool exposed to the model for a given
	// request.
	ToolDefinition struct {
		Name        toolspec.Ident
		Description string
		InputSchema any
	}

	// ToolCall is a requested tool invocation from the model.
	ToolCall struct {
		ID      string
		Name    toolspec.Ident
		Payload json.RawMessage
	}

	// TokenUsage tracks token counts for a model call.
	TokenUsage struct {
		InputTokens  int
		OutputTokens int
		TotalTokens  int
	}

	// ThinkingOptions configures provider reasoning behavior.
	ThinkingOptions struct {
		Enable       bool
		BudgetTokens int
	}

	// Request captures inputs for a single model invocation.
	Request struct {
		Model       string
		Messages    []*Message
		Temperature float32
		Tools       []*ToolDefinition
		MaxTokens   int
		Thinking    *ThinkingOptions
	}

	// Response is the result of a non-streaming invocation.
	Response struct {
		Content   []Message
		ToolCalls []ToolCall
		Usage     TokenUsage
		StopReason string
	}

	// Chunk is a single streaming event from the model.
	Chunk struct {
		Type       string
		Message    *Message
		ToolCall   *ToolCall
		UsageDelta *TokenUsage
		StopReason string
	}

	// Client is the provider-agnostic model client every provider adapter
	// implements.
	Client interface {
		// Complete performs a non-streaming model invocation.
		Complete(ctx context.Context, req *Request) (*Response, error)

		// Stream performs a streaming model invocation when supported.
		Stream(ctx context.Context, req *Request) (Streamer, error)
	}

	// Streamer delivers incremental model output. Callers must drain Recv
	// until io.EOF (or another terminal error) and then Close.
	Streamer interface {
		Recv() (Chunk, error)
		Close() error
	}
)

const (
	ChunkTypeText     = "text"
	ChunkTypeToolCall = "tool_call"
	ChunkTypeThinking = "thinking"
	ChunkTypeUsage    = "usage"
	ChunkTypeStop     = "stop"
)

// ErrStreamingUnsupported indicates the provider does not support streaming.
var ErrStreamingUnsupported = errors.New("modelapi: streaming not supported")

// ErrRateLimited indicates the provider rejected the request due to rate
// limiting after exhausting any configured retries.
var ErrRateLimited = errors.New("modelapi: rate limited")

func (TextPart) isPart()       {}
func (ThinkingPart) isPart()   {}
func (ToolUsePart) isPart()    {}
func (ToolResultPart) isPart() {}

// TextContent concatenates every TextPart in msg, ignoring other part
// kinds. Convenience used by the infer verb and by providers that collapse
// a Response into a single string.
func (m Message) TextContent() string {
	var out string
	for _, p := range m.Parts {
		if t, ok := p.(TextPart); ok {
			out += t.Text
		}
	}
	return out
}

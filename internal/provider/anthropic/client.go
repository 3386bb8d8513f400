// Package anthropic adapts the Anthropic Claude Messages API to
// modelapi.Client and wraps that client in a provider.Provider for the
// infer verb. Grounded on the teacher's features/model/anthropic package
// (request/response translation shape) and the original_source's
// provider/openai.rs pattern of resolve-model -> call -> adapt-response.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"os"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/nikahq/nika/internal/modelapi"
	"github.com/nikahq/nika/internal/provider"
)

// MessagesClient captures the subset of the Anthropic SDK used by Client,
// satisfied by *sdk.MessageService in production and a fake in tests.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Client implements modelapi.Client on top of Anthropic Messages.
type Client struct {
	msg          MessagesClient
	defaultModel string
	maxTokens    int
}

// New builds an Anthropic-backed model client.
func New(msg MessagesClient, defaultModel string, maxTokens int) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	if defaultModel == "" {
		return nil, errors.New("anthropic: default model is required")
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Client{msg: msg, defaultModel: defaultModel, maxTokens: maxTokens}, nil
}

// NewFromAPIKey constructs a Client from an API key using the default
// Anthropic HTTP transport.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	c := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&c.Messages, defaultModel, 4096)
}

// Complete issues a non-streaming Messages.New call.
func (c *Client) Complete(ctx context.Context, req *modelapi.Request) (*modelapi.Response, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("anthropic: messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	var system []sdk.TextBlockParam
	messages := make([]sdk.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m == nil {
			continue
		}
		if m.Role == modelapi.ConversationRoleSystem {
			system = append(system, sdk.TextBlockParam{Text: m.TextContent()})
			continue
		}
		role := sdk.MessageParamRoleUser
		if m.Role == modelapi.ConversationRoleAssistant {
			role = sdk.MessageParamRoleAssistant
		}
		messages = append(messages, sdk.MessageParam{
			Role:    role,
			Content: []sdk.ContentBlockParamUnion{sdk.NewTextBlock(m.TextContent())},
		})
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(modelID),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
	}
	if len(system) > 0 {
		params.System = system
	}

	msg, err := c.msg.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic messages.new: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return &modelapi.Response{
		Content: []modelapi.Message{{
			Role:  modelapi.ConversationRoleAssistant,
			Parts: []modelapi.Part{modelapi.TextPart{Text: text}},
		}},
		Usage: modelapi.TokenUsage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
			TotalTokens:  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
		StopReason: string(msg.StopReason),
	}, nil
}

// Stream is not implemented for the infer verb's single-shot use; the
// agent loop drives streaming through a richer client when needed.
func (c *Client) Stream(context.Context, *modelapi.Request) (modelapi.Streamer, error) {
	return nil, modelapi.ErrStreamingUnsupported
}

// Provider adapts Client to the provider.Provider interface used by the
// infer verb (single prompt in, text out).
type Provider struct {
	client       *Client
	defaultModel string
}

// NewProvider wraps client in a provider.Provider.
func NewProvider(client *Client, defaultModel string) *Provider {
	return &Provider{client: client, defaultModel: defaultModel}
}

func (p *Provider) Infer(ctx context.Context, prompt, model string) (string, error) {
	resp, err := p.client.Complete(ctx, &modelapi.Request{
		Model: model,
		Messages: []*modelapi.Message{{
			Role:  modelapi.ConversationRoleUser,
			Parts: []modelapi.Part{modelapi.TextPart{Text: prompt}},
		}},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Content) == 0 {
		return "", nil
	}
	return resp.Content[0].TextContent(), nil
}

func (p *Provider) DefaultModel() string { return p.defaultModel }
func (p *Provider) Name() string         { return "anthropic" }

func init() {
	provider.Register("anthropic", func() (provider.Provider, error) {
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		model := os.Getenv("NIKA_ANTHROPIC_MODEL")
		if model == "" {
			model = "claude-sonnet-4-5-20250929"
		}
		client, err := NewFromAPIKey(apiKey, model)
		if err != nil {
			return nil, err
		}
		return NewProvider(client, model), nil
	})
}

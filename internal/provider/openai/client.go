// Package openai adapts the OpenAI Chat Completions API to modelapi.Client
// via github.com/openai/openai-go, and wraps it in a provider.Provider for
// the infer verb. Grounded on the teacher's features/model/openai package's
// request/response translation shape, retargeted from the teacher's
// go-openai dependency to the official openai-go SDK named in SPEC_FULL.md.
package openai

import (
	"context"
	"errors"
	"fmt"
	"os"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/nikahq/nika/internal/modelapi"
	"github.com/nikahq/nika/internal/provider"
)

// ChatClient captures the subset of the SDK used by Client, satisfied by
// *oai.ChatCompletionService in production and a fake in tests.
type ChatClient interface {
	New(ctx context.Context, body oai.ChatCompletionNewParams, opts ...option.RequestOption) (*oai.ChatCompletion, error)
}

// Client implements modelapi.Client on top of OpenAI Chat Completions.
type Client struct {
	chat         ChatClient
	defaultModel string
}

// New builds an OpenAI-backed model client.
func New(chat ChatClient, defaultModel string) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai: chat client is required")
	}
	if defaultModel == "" {
		return nil, errors.New("openai: default model is required")
	}
	return &Client{chat: chat, defaultModel: defaultModel}, nil
}

// NewFromAPIKey constructs a Client from an API key using the SDK's
// default HTTP transport.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	c := oai.NewClient(option.WithAPIKey(apiKey))
	return New(&c.Chat.Completions, defaultModel)
}

// Complete issues a non-streaming chat completion call.
func (c *Client) Complete(ctx context.Context, req *modelapi.Request) (*modelapi.Response, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("openai: messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}

	messages := make([]oai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m == nil {
			continue
		}
		text := m.TextContent()
		switch m.Role {
		case modelapi.ConversationRoleSystem:
			messages = append(messages, oai.SystemMessage(text))
		case modelapi.ConversationRoleAssistant:
			messages = append(messages, oai.AssistantMessage(text))
		default:
			messages = append(messages, oai.UserMessage(text))
		}
	}

	params := oai.ChatCompletionNewParams{
		Model:    oai.ChatModel(modelID),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = oai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = oai.Float(float64(req.Temperature))
	}

	resp, err := c.chat.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai chat.completions.new: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: response has no choices")
	}

	return &modelapi.Response{
		Content: []modelapi.Message{{
			Role:  modelapi.ConversationRoleAssistant,
			Parts: []modelapi.Part{modelapi.TextPart{Text: resp.Choices[0].Message.Content}},
		}},
		Usage: modelapi.TokenUsage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		},
		StopReason: string(resp.Choices[0].FinishReason),
	}, nil
}

// Stream is unsupported; the agent loop uses a richer client when
// incremental delivery matters.
func (c *Client) Stream(context.Context, *modelapi.Request) (modelapi.Streamer, error) {
	return nil, modelapi.ErrStreamingUnsupported
}

// Provider adapts Client to provider.Provider.
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
func (p *Provider) Name() string         { return "openai" }

func init() {
	provider.Register("openai", func() (provider.Provider, error) {
		apiKey := os.Getenv("OPENAI_API_KEY")
		model := os.Getenv("NIKA_OPENAI_MODEL")
		if model == "" {
			model = "gpt-4o"
		}
		client, err := NewFromAPIKey(apiKey, model)
		if err != nil {
			return nil, err
		}
		return NewProvider(client, model), nil
	})
}

// Package bedrock adapts the AWS Bedrock Converse API to modelapi.Client
// and wraps it in a provider.Provider for the infer verb. Grounded on the
// teacher's features/model/bedrock package, trimmed to the single-turn text
// path: split system vs. conversational messages, call Converse, extract
// the first text block from the output message.
package bedrock

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/nikahq/nika/internal/modelapi"
	"github.com/nikahq/nika/internal/provider"
)

// RuntimeClient mirrors the subset of the Bedrock runtime client the
// adapter calls, satisfied by *bedrockruntime.Client in production.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Client implements modelapi.Client on top of Bedrock Converse.
type Client struct {
	runtime      RuntimeClient
	defaultModel string
}

// New builds a Bedrock-backed model client.
func New(runtime RuntimeClient, defaultModel string) (*Client, error) {
	if runtime == nil {
		return nil, errors.New("bedrock: runtime client is required")
	}
	if defaultModel == "" {
		return nil, errors.New("bedrock: default model is required")
	}
	return &Client{runtime: runtime, defaultModel: defaultModel}, nil
}

// NewFromEnv constructs a Client using the default AWS SDK credential
// chain and region resolution.
func NewFromEnv(ctx context.Context, defaultModel string) (*Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("bedrock: load aws config: %w", err)
	}
	return New(bedrockruntime.NewFromConfig(cfg), defaultModel)
}

// Complete issues a non-streaming Converse call.
func (c *Client) Complete(ctx context.Context, req *modelapi.Request) (*modelapi.Response, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("bedrock: messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}

	var system []brtypes.SystemContentBlock
	messages := make([]brtypes.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m == nil {
			continue
		}
		text := m.TextContent()
		if m.Role == modelapi.ConversationRoleSystem {
			system = append(system, &brtypes.SystemContentBlockMemberText{Value: text})
			continue
		}
		role := brtypes.ConversationRoleUser
		if m.Role == modelapi.ConversationRoleAssistant {
			role = brtypes.ConversationRoleAssistant
		}
		messages = append(messages, brtypes.Message{
			Role:    role,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: text}},
		})
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(modelID),
		Messages: messages,
	}
	if len(system) > 0 {
		input.System = system
	}
	if req.MaxTokens > 0 {
		input.InferenceConfig = &brtypes.InferenceConfiguration{MaxTokens: aws.Int32(int32(req.MaxTokens))}
	}

	out, err := c.runtime.Converse(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("bedrock converse: %w", err)
	}

	outputMsg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return nil, errors.New("bedrock: converse returned no message output")
	}

	var text string
	for _, block := range outputMsg.Value.Content {
		if tb, ok := block.(*brtypes.ContentBlockMemberText); ok {
			text += tb.Value
		}
	}

	usage := modelapi.TokenUsage{}
	if out.Usage != nil {
		usage.InputTokens = int(aws.ToInt32(out.Usage.InputTokens))
		usage.OutputTokens = int(aws.ToInt32(out.Usage.OutputTokens))
		usage.TotalTokens = int(aws.ToInt32(out.Usage.TotalTokens))
	}

	return &modelapi.Response{
		Content: []modelapi.Message{{
			Role:  modelapi.ConversationRoleAssistant,
			Parts: []modelapi.Part{modelapi.TextPart{Text: text}},
		}},
		Usage:      usage,
		StopReason: string(out.StopReason),
	}, nil
}

// Stream is unsupported by this trimmed adapter.
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
func (p *Provider) Name() string         { return "bedrock" }

func init() {
	provider.Register("bedrock", func() (provider.Provider, error) {
		model := "anthropic.claude-3-5-sonnet-20241022-v2:0"
		client, err := NewFromEnv(context.Background(), model)
		if err != nil {
			return nil, err
		}
		return NewProvider(client, model), nil
	})
}

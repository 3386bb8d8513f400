package bedrock_test

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikahq/nika/internal/provider/bedrock"
)

type fakeRuntime struct {
	out *bedrockruntime.ConverseOutput
	err error
}

func (f *fakeRuntime) Converse(_ context.Context, _ *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.out, nil
}

func TestNewRejectsEmptyModel(t *testing.T) {
	_, err := bedrock.New(&fakeRuntime{}, "")
	require.Error(t, err)
}

func TestCompleteExtractsText(t *testing.T) {
	fake := &fakeRuntime{
		out: &bedrockruntime.ConverseOutput{
			Output: &brtypes.ConverseOutputMemberMessage{
				Value: brtypes.Message{
					Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: "hi from bedrock"}},
				},
			},
			Usage: &brtypes.TokenUsage{
				InputTokens:  aws.Int32(4),
				OutputTokens: aws.Int32(6),
				TotalTokens:  aws.Int32(10),
			},
		},
	}
	client, err := bedrock.New(fake, "claude-3")
	require.NoError(t, err)

	p := bedrock.NewProvider(client, "claude-3")
	out, err := p.Infer(context.Background(), "hi", "")
	require.NoError(t, err)
	assert.Equal(t, "hi from bedrock", out)
}

func TestCompleteNoMessageOutputErrors(t *testing.T) {
	client, err := bedrock.New(&fakeRuntime{out: &bedrockruntime.ConverseOutput{}}, "claude-3")
	require.NoError(t, err)
	p := bedrock.NewProvider(client, "claude-3")
	_, err = p.Infer(context.Background(), "hi", "")
	require.Error(t, err)
}

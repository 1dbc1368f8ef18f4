package bedrock

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/decisioncore/modelclient"
)

type mockRuntime struct {
	lastInput *bedrockruntime.ConverseInput
	output    *bedrockruntime.ConverseOutput
	err       error
}

func (m *mockRuntime) Converse(_ context.Context, params *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	m.lastInput = params
	return m.output, m.err
}

func (m *mockRuntime) ConverseStream(context.Context, *bedrockruntime.ConverseStreamInput, ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error) {
	return nil, nil
}

func TestCompleteTranslatesTextAndUsage(t *testing.T) {
	mock := &mockRuntime{
		output: &bedrockruntime.ConverseOutput{
			Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
				Role: brtypes.ConversationRoleAssistant,
				Content: []brtypes.ContentBlock{
					&brtypes.ContentBlockMemberText{Value: "hello"},
				},
			}},
			Usage: &brtypes.TokenUsage{
				InputTokens:  aws.Int32(100),
				OutputTokens: aws.Int32(20),
				TotalTokens:  aws.Int32(120),
			},
			StopReason: brtypes.StopReasonEndTurn,
		},
	}
	client, err := New(Options{Runtime: mock, DefaultModel: "anthropic.claude-3"})
	require.NoError(t, err)

	resp, err := client.Complete(context.Background(), modelclient.Request{
		Messages: []modelclient.Message{
			{Role: modelclient.RoleSystem, Text: "You are smart."},
			{Role: modelclient.RoleUser, Text: "hi"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "hello", resp.Text)
	require.Equal(t, 100, resp.Usage.InputTokens)
	require.Equal(t, 20, resp.Usage.OutputTokens)
	require.Equal(t, string(brtypes.StopReasonEndTurn), resp.StopReason)
	require.Len(t, mock.lastInput.System, 1)
	require.Len(t, mock.lastInput.Messages, 1)
}

func TestCompleteResolvesModelClass(t *testing.T) {
	mock := &mockRuntime{output: &bedrockruntime.ConverseOutput{Output: &brtypes.ConverseOutputMemberMessage{}}}
	client, err := New(Options{Runtime: mock, DefaultModel: "default-model", FastModel: "fast-model"})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), modelclient.Request{
		ModelClass: modelclient.ModelClassFast,
		Messages:   []modelclient.Message{{Role: modelclient.RoleUser, Text: "hi"}},
	})
	require.NoError(t, err)
	require.Equal(t, "fast-model", aws.ToString(mock.lastInput.ModelId))
}

func TestCompleteRejectsEmptyMessages(t *testing.T) {
	client, err := New(Options{Runtime: &mockRuntime{}, DefaultModel: "m"})
	require.NoError(t, err)
	_, err = client.Complete(context.Background(), modelclient.Request{})
	require.Error(t, err)
}

func TestNewRequiresRuntimeAndModel(t *testing.T) {
	_, err := New(Options{DefaultModel: "m"})
	require.Error(t, err)
	_, err = New(Options{Runtime: &mockRuntime{}})
	require.Error(t, err)
}

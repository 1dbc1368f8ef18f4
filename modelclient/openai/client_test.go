package openai

import (
	"context"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/decisioncore/modelclient"
)

type stubChatClient struct {
	lastReq openai.ChatCompletionRequest
	resp    openai.ChatCompletionResponse
	err     error
}

func (s *stubChatClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.lastReq = req
	return s.resp, s.err
}

func (s *stubChatClient) CreateChatCompletionStream(context.Context, openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error) {
	return nil, nil
}

func TestCompleteTranslatesTextAndUsage(t *testing.T) {
	stub := &stubChatClient{
		resp: openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: "hello"}, FinishReason: "stop"},
			},
			Usage: openai.Usage{PromptTokens: 5, CompletionTokens: 3, TotalTokens: 8},
		},
	}
	c, err := New(Options{Client: stub, DefaultModel: "gpt-4o"})
	require.NoError(t, err)

	resp, err := c.Complete(context.Background(), modelclient.Request{
		Messages: []modelclient.Message{{Role: modelclient.RoleUser, Text: "hi"}},
	})
	require.NoError(t, err)
	require.Equal(t, "hello", resp.Text)
	require.Equal(t, "stop", resp.StopReason)
	require.Equal(t, 5, resp.Usage.InputTokens)
	require.Equal(t, 3, resp.Usage.OutputTokens)
	require.Equal(t, "gpt-4o", stub.lastReq.Model)
}

func TestCompleteResolvesModelClass(t *testing.T) {
	stub := &stubChatClient{}
	c, err := New(Options{Client: stub, DefaultModel: "gpt-4o", FastModel: "gpt-4o-mini"})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), modelclient.Request{
		ModelClass: modelclient.ModelClassFast,
		Messages:   []modelclient.Message{{Role: modelclient.RoleUser, Text: "hi"}},
	})
	require.NoError(t, err)
	require.Equal(t, "gpt-4o-mini", stub.lastReq.Model)
}

func TestCompleteRejectsEmptyMessages(t *testing.T) {
	c, err := New(Options{Client: &stubChatClient{}, DefaultModel: "gpt-4o"})
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), modelclient.Request{})
	require.Error(t, err)
}

func TestNewRequiresClientAndModel(t *testing.T) {
	_, err := New(Options{DefaultModel: "gpt-4o"})
	require.Error(t, err)
	_, err = New(Options{Client: &stubChatClient{}})
	require.Error(t, err)
}

// Package openai provides a modelclient.Client backed by the OpenAI Chat
// Completions API (github.com/sashabaranov/go-openai). Like the anthropic
// adapter, it flattens the response's message content into plain text;
// the tool-invocation grammar (spec §4.2) rides inside that text.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/agentcore/decisioncore/modelclient"
)

type (
	// ChatClient captures the subset of the go-openai client the adapter
	// needs, so callers can substitute a mock in tests.
	ChatClient interface {
		CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
		CreateChatCompletionStream(ctx context.Context, request openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error)
	}

	// Options configures default model selection.
	Options struct {
		Client       ChatClient
		DefaultModel string
		FastModel    string
		SlowModel    string
		MaxTokens    int
		Temperature  float32
	}

	// Client implements modelclient.Client via OpenAI Chat Completions.
	Client struct {
		chat         ChatClient
		defaultModel string
		fastModel    string
		slowModel    string
		maxTokens    int
		temperature  float32
	}
)

// New builds an adapter from a configured go-openai client.
func New(opts Options) (*Client, error) {
	if opts.Client == nil {
		return nil, errors.New("openai: chat client is required")
	}
	modelID := strings.TrimSpace(opts.DefaultModel)
	if modelID == "" {
		return nil, errors.New("openai: default model is required")
	}
	return &Client{
		chat:         opts.Client,
		defaultModel: modelID,
		fastModel:    opts.FastModel,
		slowModel:    opts.SlowModel,
		maxTokens:    opts.MaxTokens,
		temperature:  opts.Temperature,
	}, nil
}

// NewFromAPIKey constructs a client using go-openai's default HTTP client.
func NewFromAPIKey(apiKey string, opts Options) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("openai: api key is required")
	}
	opts.Client = openai.NewClient(apiKey)
	return New(opts)
}

// Complete issues a non-streaming chat completion and flattens the reply
// into a single modelclient.Response.
func (c *Client) Complete(ctx context.Context, req modelclient.Request) (modelclient.Response, error) {
	request, err := c.prepareRequest(req)
	if err != nil {
		return modelclient.Response{}, err
	}
	resp, err := c.chat.CreateChatCompletion(ctx, request)
	if err != nil {
		if isRateLimited(err) {
			return modelclient.Response{}, fmt.Errorf("%w: %w", modelclient.ErrRateLimited, err)
		}
		return modelclient.Response{}, fmt.Errorf("openai: create chat completion: %w", err)
	}
	return translateResponse(resp), nil
}

// Stream issues a streaming chat completion and adapts incremental deltas
// into modelclient.Chunks.
func (c *Client) Stream(ctx context.Context, req modelclient.Request) (modelclient.Streamer, error) {
	request, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	stream, err := c.chat.CreateChatCompletionStream(ctx, request)
	if err != nil {
		if isRateLimited(err) {
			return nil, fmt.Errorf("%w: %w", modelclient.ErrRateLimited, err)
		}
		return nil, fmt.Errorf("openai: create chat completion stream: %w", err)
	}
	return newStreamer(ctx, stream), nil
}

func (c *Client) prepareRequest(req modelclient.Request) (openai.ChatCompletionRequest, error) {
	if len(req.Messages) == 0 {
		return openai.ChatCompletionRequest{}, errors.New("openai: messages are required")
	}
	modelID := c.resolveModelID(req)
	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{
			Role:    translateRole(m.Role),
			Content: m.Text,
		}
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	temp := req.Temperature
	if temp <= 0 {
		temp = c.temperature
	}
	return openai.ChatCompletionRequest{
		Model:       modelID,
		Messages:    messages,
		Temperature: temp,
		MaxTokens:   maxTokens,
	}, nil
}

func (c *Client) resolveModelID(req modelclient.Request) string {
	if req.Model != "" {
		return req.Model
	}
	switch req.ModelClass {
	case modelclient.ModelClassFast:
		if c.fastModel != "" {
			return c.fastModel
		}
	case modelclient.ModelClassSlow:
		if c.slowModel != "" {
			return c.slowModel
		}
	}
	return c.defaultModel
}

func translateRole(r modelclient.Role) string {
	switch r {
	case modelclient.RoleSystem:
		return openai.ChatMessageRoleSystem
	case modelclient.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}

func translateResponse(resp openai.ChatCompletionResponse) modelclient.Response {
	var sb strings.Builder
	for _, choice := range resp.Choices {
		sb.WriteString(choice.Message.Content)
	}
	stop := ""
	if len(resp.Choices) > 0 {
		stop = string(resp.Choices[0].FinishReason)
	}
	return modelclient.Response{
		Text: sb.String(),
		Usage: modelclient.TokenUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
		StopReason: stop,
	}
}

func isRateLimited(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429
	}
	return false
}

// Package anthropic provides a modelclient.Client backed by the Anthropic
// Claude Messages API (github.com/anthropics/anthropic-sdk-go). It
// flattens the provider's content-block response into the plain text
// modelclient.Response expects: the tool-invocation grammar (spec §4.2)
// rides inside that text rather than a provider tool-call structure, so
// no tool/tool_choice wiring is needed here.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/agentcore/decisioncore/modelclient"
)

type (
	// MessagesClient captures the subset of the Anthropic SDK client the
	// adapter needs, so callers can substitute a mock in tests. It is
	// satisfied by *sdk.MessageService.
	MessagesClient interface {
		New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
		NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
	}

	// Options configures default model selection and sampling.
	Options struct {
		DefaultModel string
		FastModel    string
		SlowModel    string
		MaxTokens    int
		Temperature  float64
	}

	// Client implements modelclient.Client on top of Anthropic Messages.
	Client struct {
		msg          MessagesClient
		defaultModel string
		fastModel    string
		slowModel    string
		maxTokens    int
		temperature  float64
	}
)

// New builds an adapter from a configured Anthropic Messages client.
func New(msg MessagesClient, opts Options) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("anthropic: default model identifier is required")
	}
	return &Client{
		msg:          msg,
		defaultModel: opts.DefaultModel,
		fastModel:    opts.FastModel,
		slowModel:    opts.SlowModel,
		maxTokens:    opts.MaxTokens,
		temperature:  opts.Temperature,
	}, nil
}

// NewFromAPIKey constructs a client using the SDK's default HTTP
// transport and the given API key; an empty key is rejected.
func NewFromAPIKey(apiKey string, opts Options) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&ac.Messages, opts)
}

// Complete issues a non-streaming Messages.New call and flattens the
// response's text blocks into a single modelclient.Response.
func (c *Client) Complete(ctx context.Context, req modelclient.Request) (modelclient.Response, error) {
	params, err := c.prepareParams(req)
	if err != nil {
		return modelclient.Response{}, err
	}
	msg, err := c.msg.New(ctx, *params)
	if err != nil {
		if isRateLimited(err) {
			return modelclient.Response{}, fmt.Errorf("%w: %w", modelclient.ErrRateLimited, err)
		}
		return modelclient.Response{}, fmt.Errorf("anthropic: messages.new: %w", err)
	}
	return translateMessage(msg), nil
}

// Stream issues a streaming Messages.New call and adapts incremental
// text-delta events into modelclient.Chunks.
func (c *Client) Stream(ctx context.Context, req modelclient.Request) (modelclient.Streamer, error) {
	params, err := c.prepareParams(req)
	if err != nil {
		return nil, err
	}
	stream := c.msg.NewStreaming(ctx, *params)
	if err := stream.Err(); err != nil {
		if isRateLimited(err) {
			return nil, fmt.Errorf("%w: %w", modelclient.ErrRateLimited, err)
		}
		return nil, fmt.Errorf("anthropic: messages.new stream: %w", err)
	}
	return newStreamer(ctx, stream), nil
}

func (c *Client) prepareParams(req modelclient.Request) (*sdk.MessageNewParams, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("anthropic: messages are required")
	}
	modelID := c.resolveModelID(req)
	if modelID == "" {
		return nil, errors.New("anthropic: model identifier is required")
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	if maxTokens <= 0 {
		return nil, errors.New("anthropic: max_tokens must be positive")
	}

	var system []sdk.TextBlockParam
	msgs := make([]sdk.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case modelclient.RoleSystem:
			system = append(system, sdk.TextBlockParam{Text: m.Text})
		case modelclient.RoleAssistant:
			msgs = append(msgs, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Text)))
		default:
			msgs = append(msgs, sdk.NewUserMessage(sdk.NewTextBlock(m.Text)))
		}
	}

	params := &sdk.MessageNewParams{
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
		Model:     sdk.Model(modelID),
	}
	if len(system) > 0 {
		params.System = system
	}
	temp := float64(req.Temperature)
	if temp <= 0 {
		temp = c.temperature
	}
	if temp > 0 {
		params.Temperature = sdk.Float(temp)
	}
	return params, nil
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

func translateMessage(msg *sdk.Message) modelclient.Response {
	var sb strings.Builder
	for _, block := range msg.Content {
		if text := block.Text; text != "" {
			sb.WriteString(text)
		}
	}
	return modelclient.Response{
		Text: sb.String(),
		Usage: modelclient.TokenUsage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
			TotalTokens:  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
		StopReason: string(msg.StopReason),
	}
}

func isRateLimited(err error) bool {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

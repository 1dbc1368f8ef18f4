// Package bedrock provides a modelclient.Client backed by the AWS Bedrock
// Converse API (github.com/aws/aws-sdk-go-v2/service/bedrockruntime). Like
// the other provider adapters, it carries only plain-text messages: no
// ToolConfiguration, document blocks, or reasoning/thinking wiring, since
// the tool-invocation grammar (spec §4.2) lives in assistant text rather
// than Bedrock's native tool_use content blocks.
package bedrock

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/agentcore/decisioncore/modelclient"
)

type (
	// RuntimeClient captures the subset of the Bedrock runtime client the
	// adapter needs. It is satisfied by *bedrockruntime.Client.
	RuntimeClient interface {
		Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
		ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
	}

	// Options configures the Bedrock adapter.
	Options struct {
		Runtime      RuntimeClient
		DefaultModel string
		FastModel    string
		SlowModel    string
		MaxTokens    int
		Temperature  float32
	}

	// Client implements modelclient.Client on top of Bedrock Converse.
	Client struct {
		runtime      RuntimeClient
		defaultModel string
		fastModel    string
		slowModel    string
		maxTokens    int
		temperature  float32
	}
)

// New builds an adapter from a configured Bedrock runtime client.
func New(opts Options) (*Client, error) {
	if opts.Runtime == nil {
		return nil, errors.New("bedrock: runtime client is required")
	}
	if strings.TrimSpace(opts.DefaultModel) == "" {
		return nil, errors.New("bedrock: default model is required")
	}
	return &Client{
		runtime:      opts.Runtime,
		defaultModel: opts.DefaultModel,
		fastModel:    opts.FastModel,
		slowModel:    opts.SlowModel,
		maxTokens:    opts.MaxTokens,
		temperature:  opts.Temperature,
	}, nil
}

// Complete issues a non-streaming Converse call and flattens the output's
// text blocks into a single modelclient.Response.
func (c *Client) Complete(ctx context.Context, req modelclient.Request) (modelclient.Response, error) {
	input, err := c.buildInput(req)
	if err != nil {
		return modelclient.Response{}, err
	}
	output, err := c.runtime.Converse(ctx, input)
	if err != nil {
		if isRateLimited(err) {
			return modelclient.Response{}, fmt.Errorf("%w: %w", modelclient.ErrRateLimited, err)
		}
		return modelclient.Response{}, fmt.Errorf("bedrock: converse: %w", err)
	}
	return translateOutput(output), nil
}

// Stream issues a ConverseStream call and adapts incremental events into
// modelclient.Chunks.
func (c *Client) Stream(ctx context.Context, req modelclient.Request) (modelclient.Streamer, error) {
	input, err := c.buildInput(req)
	if err != nil {
		return nil, err
	}
	streamInput := &bedrockruntime.ConverseStreamInput{
		ModelId:         input.ModelId,
		Messages:        input.Messages,
		System:          input.System,
		InferenceConfig: input.InferenceConfig,
	}
	out, err := c.runtime.ConverseStream(ctx, streamInput)
	if err != nil {
		if isRateLimited(err) {
			return nil, fmt.Errorf("%w: %w", modelclient.ErrRateLimited, err)
		}
		return nil, fmt.Errorf("bedrock: converse stream: %w", err)
	}
	stream := out.GetStream()
	if stream == nil {
		return nil, errors.New("bedrock: stream output missing event stream")
	}
	return newStreamer(ctx, stream), nil
}

func (c *Client) buildInput(req modelclient.Request) (*bedrockruntime.ConverseInput, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("bedrock: messages are required")
	}
	modelID := c.resolveModelID(req)
	messages, system := encodeMessages(req.Messages)
	if len(messages) == 0 {
		return nil, errors.New("bedrock: at least one conversational message is required")
	}
	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(modelID),
		Messages: messages,
	}
	if len(system) > 0 {
		input.System = system
	}
	if cfg := c.inferenceConfig(req.MaxTokens, req.Temperature); cfg != nil {
		input.InferenceConfig = cfg
	}
	return input, nil
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

func (c *Client) inferenceConfig(maxTokens int, temp float32) *brtypes.InferenceConfiguration {
	var cfg brtypes.InferenceConfiguration
	tokens := maxTokens
	if tokens <= 0 {
		tokens = c.maxTokens
	}
	if tokens > 0 {
		cfg.MaxTokens = aws.Int32(int32(tokens))
	}
	t := temp
	if t <= 0 {
		t = c.temperature
	}
	if t > 0 {
		cfg.Temperature = aws.Float32(t)
	}
	if cfg.MaxTokens == nil && cfg.Temperature == nil {
		return nil
	}
	return &cfg
}

func encodeMessages(msgs []modelclient.Message) ([]brtypes.Message, []brtypes.SystemContentBlock) {
	var system []brtypes.SystemContentBlock
	converse := make([]brtypes.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == modelclient.RoleSystem {
			system = append(system, &brtypes.SystemContentBlockMemberText{Value: m.Text})
			continue
		}
		role := brtypes.ConversationRoleUser
		if m.Role == modelclient.RoleAssistant {
			role = brtypes.ConversationRoleAssistant
		}
		converse = append(converse, brtypes.Message{
			Role:    role,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.Text}},
		})
	}
	return converse, system
}

func translateOutput(output *bedrockruntime.ConverseOutput) modelclient.Response {
	var sb strings.Builder
	if msg, ok := output.Output.(*brtypes.ConverseOutputMemberMessage); ok {
		for _, block := range msg.Value.Content {
			if tb, ok := block.(*brtypes.ContentBlockMemberText); ok {
				sb.WriteString(tb.Value)
			}
		}
	}
	var usage modelclient.TokenUsage
	if output.Usage != nil {
		usage = modelclient.TokenUsage{
			InputTokens:  int(ptrValue(output.Usage.InputTokens)),
			OutputTokens: int(ptrValue(output.Usage.OutputTokens)),
			TotalTokens:  int(ptrValue(output.Usage.TotalTokens)),
		}
	}
	return modelclient.Response{
		Text:       sb.String(),
		Usage:      usage,
		StopReason: string(output.StopReason),
	}
}

func ptrValue[T ~int32 | ~int64](ptr *T) T {
	if ptr == nil {
		return 0
	}
	return *ptr
}

func isRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			return true
		}
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == 429 {
		return true
	}
	return false
}

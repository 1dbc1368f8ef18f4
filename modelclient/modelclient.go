// Package modelclient defines the provider-agnostic interface the Agent
// Loop uses to drive a turn: send a transcript, get back a freeform
// assistant reply that package tools.Parse then scans for an embedded
// tool-invocation tag (spec §4.2, §6). Concrete adapters
// (modelclient/anthropic, modelclient/openai, modelclient/bedrock)
// translate this narrow contract onto each provider's native API.
package modelclient

import (
	"context"
	"errors"
)

type (
	// Role is the role of a Message in a transcript.
	Role string

	// Message is one transcript turn sent to the model. Unlike the
	// teacher's multi-part Message, a decision-core Message carries plain
	// text: the tool-invocation grammar is embedded directly in assistant
	// text rather than expressed as a provider tool-call structure, so
	// the wire format stays a flat string.
	Message struct {
		Role Role
		Text string
	}

	// ModelClass selects a model family when Model is left empty, letting
	// callers ask for "the fast one" or "the high-reasoning one" without
	// hardcoding a provider-specific identifier (spec §3,
	// Session.ModelConfig Fast/Slow).
	ModelClass string

	// TokenUsage reports token consumption for a call.
	TokenUsage struct {
		InputTokens  int
		OutputTokens int
		TotalTokens  int
	}

	// Request captures inputs to a single model turn.
	Request struct {
		Model       string
		ModelClass  ModelClass
		Messages    []Message
		Temperature float32
		MaxTokens   int
		Stream      bool
	}

	// Response is a non-streaming model turn result.
	Response struct {
		Text       string
		Usage      TokenUsage
		StopReason string
	}

	// ChunkType classifies a streaming Chunk.
	ChunkType string

	// Chunk is one streaming event.
	Chunk struct {
		Type       ChunkType
		TextDelta  string
		UsageDelta *TokenUsage
		StopReason string
	}

	// Streamer yields Chunks from an in-flight streaming call. Recv
	// returns (Chunk{}, io.EOF)-equivalent via ErrStreamDone when
	// exhausted.
	Streamer interface {
		Recv(ctx context.Context) (Chunk, error)
		Close() error
	}

	// Client is the provider-agnostic model client the Agent Loop and
	// valuefn/model depend on.
	Client interface {
		Complete(ctx context.Context, req Request) (Response, error)
		Stream(ctx context.Context, req Request) (Streamer, error)
	}
)

const (
	ModelClassFast ModelClass = "fast"
	ModelClassSlow ModelClass = "slow"

	ChunkTypeTextDelta ChunkType = "text_delta"
	ChunkTypeUsage     ChunkType = "usage"
	ChunkTypeStop      ChunkType = "stop"

	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ErrRateLimited indicates the provider rejected the request due to rate
// limiting; callers can retry with backoff.
var ErrRateLimited = errors.New("modelclient: rate limited")

// ErrStreamDone indicates a Streamer has delivered its final Chunk.
var ErrStreamDone = errors.New("modelclient: stream done")

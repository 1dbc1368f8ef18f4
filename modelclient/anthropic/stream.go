package anthropic

import (
	"context"
	"errors"
	"io"
	"sync"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/agentcore/decisioncore/modelclient"
)

// streamer adapts an Anthropic Messages streaming response to
// modelclient.Streamer, emitting one Chunk per text delta.
type streamer struct {
	ctx    context.Context
	cancel context.CancelFunc
	stream *ssestream.Stream[sdk.MessageStreamEventUnion]

	chunks chan modelclient.Chunk

	mu       sync.Mutex
	finalErr error
}

func newStreamer(ctx context.Context, stream *ssestream.Stream[sdk.MessageStreamEventUnion]) *streamer {
	cctx, cancel := context.WithCancel(ctx)
	s := &streamer{
		ctx:    cctx,
		cancel: cancel,
		stream: stream,
		chunks: make(chan modelclient.Chunk, 32),
	}
	go s.run()
	return s
}

func (s *streamer) Recv(ctx context.Context) (modelclient.Chunk, error) {
	select {
	case chunk, ok := <-s.chunks:
		if ok {
			return chunk, nil
		}
		if err := s.err(); err != nil {
			return modelclient.Chunk{}, err
		}
		return modelclient.Chunk{}, modelclient.ErrStreamDone
	case <-ctx.Done():
		return modelclient.Chunk{}, ctx.Err()
	}
}

func (s *streamer) Close() error {
	s.cancel()
	if s.stream == nil {
		return nil
	}
	return s.stream.Close()
}

func (s *streamer) run() {
	defer close(s.chunks)
	defer func() {
		if s.stream != nil {
			_ = s.stream.Close()
		}
	}()

	var usage modelclient.TokenUsage
	for {
		select {
		case <-s.ctx.Done():
			s.setErr(s.ctx.Err())
			return
		default:
		}
		if !s.stream.Next() {
			if err := s.stream.Err(); err != nil && !errors.Is(err, io.EOF) {
				s.setErr(err)
			}
			return
		}
		event := s.stream.Current()
		switch ev := event.AsAny().(type) {
		case sdk.ContentBlockDeltaEvent:
			if delta, ok := ev.Delta.AsAny().(sdk.TextDelta); ok && delta.Text != "" {
				if !s.emit(modelclient.Chunk{Type: modelclient.ChunkTypeTextDelta, TextDelta: delta.Text}) {
					return
				}
			}
		case sdk.MessageDeltaEvent:
			usage.OutputTokens += int(ev.Usage.OutputTokens)
			usage.TotalTokens = usage.InputTokens + usage.OutputTokens
			if ev.Delta.StopReason != "" {
				if !s.emit(modelclient.Chunk{
					Type:       modelclient.ChunkTypeStop,
					StopReason: string(ev.Delta.StopReason),
					UsageDelta: &usage,
				}) {
					return
				}
			}
		case sdk.MessageStartEvent:
			usage.InputTokens = int(ev.Message.Usage.InputTokens)
		}
	}
}

func (s *streamer) emit(c modelclient.Chunk) bool {
	select {
	case s.chunks <- c:
		return true
	case <-s.ctx.Done():
		s.setErr(s.ctx.Err())
		return false
	}
}

func (s *streamer) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalErr == nil {
		s.finalErr = err
	}
}

func (s *streamer) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalErr
}

package openai

import (
	"context"
	"errors"
	"io"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/agentcore/decisioncore/modelclient"
)

// streamer adapts a go-openai ChatCompletionStream to modelclient.Streamer.
type streamer struct {
	ctx    context.Context
	cancel context.CancelFunc
	stream *openai.ChatCompletionStream

	chunks chan modelclient.Chunk

	mu       sync.Mutex
	finalErr error
}

func newStreamer(ctx context.Context, stream *openai.ChatCompletionStream) *streamer {
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
	defer s.stream.Close()

	for {
		select {
		case <-s.ctx.Done():
			s.setErr(s.ctx.Err())
			return
		default:
		}
		resp, err := s.stream.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.setErr(err)
			}
			return
		}
		for _, choice := range resp.Choices {
			if choice.Delta.Content != "" {
				if !s.emit(modelclient.Chunk{Type: modelclient.ChunkTypeTextDelta, TextDelta: choice.Delta.Content}) {
					return
				}
			}
			if choice.FinishReason != "" {
				if !s.emit(modelclient.Chunk{Type: modelclient.ChunkTypeStop, StopReason: string(choice.FinishReason)}) {
					return
				}
			}
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

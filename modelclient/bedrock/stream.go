package bedrock

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/agentcore/decisioncore/modelclient"
)

// streamer adapts a Bedrock ConverseStream event stream to
// modelclient.Streamer, emitting one Chunk per text delta, usage report,
// or stop event.
type streamer struct {
	ctx    context.Context
	cancel context.CancelFunc
	stream *bedrockruntime.ConverseStreamEventStream

	chunks chan modelclient.Chunk

	mu       sync.Mutex
	finalErr error
}

func newStreamer(ctx context.Context, stream *bedrockruntime.ConverseStreamEventStream) *streamer {
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

	events := s.stream.Events()
	for {
		select {
		case <-s.ctx.Done():
			s.setErr(s.ctx.Err())
			return
		case event, ok := <-events:
			if !ok {
				if err := s.stream.Err(); err != nil {
					s.setErr(err)
				}
				return
			}
			if !s.handle(event) {
				return
			}
		}
	}
}

func (s *streamer) handle(event any) bool {
	switch ev := event.(type) {
	case *brtypes.ConverseStreamOutputMemberContentBlockDelta:
		delta, ok := ev.Value.Delta.(*brtypes.ContentBlockDeltaMemberText)
		if !ok || delta.Value == "" {
			return true
		}
		return s.emit(modelclient.Chunk{Type: modelclient.ChunkTypeTextDelta, TextDelta: delta.Value})
	case *brtypes.ConverseStreamOutputMemberMessageStop:
		return s.emit(modelclient.Chunk{Type: modelclient.ChunkTypeStop, StopReason: string(ev.Value.StopReason)})
	case *brtypes.ConverseStreamOutputMemberMetadata:
		if ev.Value.Usage == nil {
			return true
		}
		usage := modelclient.TokenUsage{
			InputTokens:  int(ptrValue(ev.Value.Usage.InputTokens)),
			OutputTokens: int(ptrValue(ev.Value.Usage.OutputTokens)),
			TotalTokens:  int(ptrValue(ev.Value.Usage.TotalTokens)),
		}
		return s.emit(modelclient.Chunk{Type: modelclient.ChunkTypeUsage, UsageDelta: &usage})
	}
	return true
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

package anthropic

import (
	"context"
	"encoding/json"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/decisioncore/modelclient"
)

// testDecoder feeds a fixed sequence of events to the ssestream.Stream.
type testDecoder struct {
	events []ssestream.Event
	i      int
}

func (d *testDecoder) Event() ssestream.Event { return d.events[d.i-1] }

func (d *testDecoder) Next() bool {
	if d.i >= len(d.events) {
		return false
	}
	d.i++
	return true
}

func (d *testDecoder) Close() error { return nil }
func (d *testDecoder) Err() error   { return nil }

func TestStreamerEmitsTextAndStopChunks(t *testing.T) {
	start := unmarshalEvent(t, `{"type":"message_start","message":{"usage":{"input_tokens":7}}}`)
	textDelta := unmarshalEvent(t, `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"hi"}}`)
	msgDelta := unmarshalEvent(t, `{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":3}}`)

	events := []ssestream.Event{
		{Type: "message_start", Data: mustJSON(start)},
		{Type: "content_block_delta", Data: mustJSON(textDelta)},
		{Type: "message_delta", Data: mustJSON(msgDelta)},
	}
	dec := &testDecoder{events: events}
	stream := ssestream.NewStream[sdk.MessageStreamEventUnion](dec, nil)

	s := newStreamer(context.Background(), stream)
	defer s.Close()

	var chunks []modelclient.Chunk
	for {
		ch, err := s.Recv(context.Background())
		if err != nil {
			break
		}
		chunks = append(chunks, ch)
	}

	var sawText, sawStop bool
	for _, ch := range chunks {
		switch ch.Type {
		case modelclient.ChunkTypeTextDelta:
			sawText = true
			require.Equal(t, "hi", ch.TextDelta)
		case modelclient.ChunkTypeStop:
			sawStop = true
			require.Equal(t, "end_turn", ch.StopReason)
			require.NotNil(t, ch.UsageDelta)
			require.Equal(t, 7, ch.UsageDelta.InputTokens)
			require.Equal(t, 3, ch.UsageDelta.OutputTokens)
		}
	}
	require.True(t, sawText, "expected a text delta chunk")
	require.True(t, sawStop, "expected a stop chunk")
}

func unmarshalEvent(t *testing.T, raw string) sdk.MessageStreamEventUnion {
	t.Helper()
	var ev sdk.MessageStreamEventUnion
	require.NoError(t, json.Unmarshal([]byte(raw), &ev))
	return ev
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

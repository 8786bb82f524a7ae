package anthropic

import (
	"context"
	"encoding/json"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/stretchr/testify/require"

	"github.com/codeagent/runtime/internal/modelprovider"
)

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

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestStreamerEmitsTextThenCompletion(t *testing.T) {
	textDelta := sdk.MessageStreamEventUnion{}
	require.NoError(t, json.Unmarshal([]byte(`{
		"type": "content_block_delta",
		"index": 0,
		"delta": { "type": "text_delta", "text": "hello" }
	}`), &textDelta))

	msgDelta := sdk.MessageStreamEventUnion{}
	require.NoError(t, json.Unmarshal([]byte(`{
		"type": "message_delta",
		"delta": { "stop_reason": "end_turn" }
	}`), &msgDelta))

	stop := sdk.MessageStreamEventUnion{}
	require.NoError(t, json.Unmarshal([]byte(`{"type": "message_stop"}`), &stop))

	events := []ssestream.Event{
		{Type: "content_block_delta", Data: mustJSON(t, textDelta)},
		{Type: "message_delta", Data: mustJSON(t, msgDelta)},
		{Type: "message_stop", Data: mustJSON(t, stop)},
	}

	dec := &testDecoder{events: events}
	stream := ssestream.NewStream[sdk.MessageStreamEventUnion](dec, nil)

	s := newStreamer(context.Background(), stream)
	defer func() { _ = s.Close() }()

	var chunks []modelprovider.Chunk
	for {
		ch, err := s.Next(context.Background())
		if err != nil {
			break
		}
		chunks = append(chunks, ch)
		if ch.IsComplete {
			break
		}
	}

	require.Len(t, chunks, 2)
	require.Equal(t, "hello", chunks[0].Delta)
	require.True(t, chunks[1].IsComplete)
	require.Equal(t, modelprovider.FinishStop, chunks[1].FinishReason)
}

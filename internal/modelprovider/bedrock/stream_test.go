package bedrock

import (
	"context"
	"testing"

	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/require"

	"github.com/codeagent/runtime/internal/modelprovider"
)

// newTestStreamer builds a streamer with no backing AWS stream, so handle
// can be exercised directly against synthetic events, mirroring the
// teacher's stream_usage_test.go which calls its chunk processor's Handle
// directly instead of faking the SDK's event-stream transport.
func newTestStreamer() *streamer {
	ctx, cancel := context.WithCancel(context.Background())
	return &streamer{
		ctx:    ctx,
		cancel: cancel,
		chunks: make(chan modelprovider.Chunk, 8),
	}
}

func TestHandleEmitsTextDelta(t *testing.T) {
	s := newTestStreamer()
	defer s.cancel()

	event := &brtypes.ConverseStreamOutputMemberContentBlockDelta{
		Value: brtypes.ContentBlockDeltaEvent{
			Delta: &brtypes.ContentBlockDeltaMemberText{Value: "hello"},
		},
	}

	require.True(t, s.handle(event))

	select {
	case chunk := <-s.chunks:
		require.Equal(t, "hello", chunk.Delta)
		require.False(t, chunk.IsComplete)
	default:
		t.Fatal("expected a chunk to be emitted")
	}
}

func TestHandleIgnoresEmptyTextDelta(t *testing.T) {
	s := newTestStreamer()
	defer s.cancel()

	event := &brtypes.ConverseStreamOutputMemberContentBlockDelta{
		Value: brtypes.ContentBlockDeltaEvent{
			Delta: &brtypes.ContentBlockDeltaMemberText{Value: ""},
		},
	}

	require.True(t, s.handle(event))
	require.Empty(t, s.chunks)
}

func TestHandleEmitsTerminalChunkOnMessageStop(t *testing.T) {
	s := newTestStreamer()
	defer s.cancel()

	event := &brtypes.ConverseStreamOutputMemberMessageStop{
		Value: brtypes.MessageStopEvent{StopReason: brtypes.StopReasonEndTurn},
	}

	require.False(t, s.handle(event))

	select {
	case chunk := <-s.chunks:
		require.True(t, chunk.IsComplete)
		require.Equal(t, modelprovider.FinishStop, chunk.FinishReason)
	default:
		t.Fatal("expected a terminal chunk to be emitted")
	}
}

func TestHandleStopReasonMaxTokensTranslatesToLength(t *testing.T) {
	s := newTestStreamer()
	defer s.cancel()

	event := &brtypes.ConverseStreamOutputMemberMessageStop{
		Value: brtypes.MessageStopEvent{StopReason: brtypes.StopReasonMaxTokens},
	}

	s.handle(event)
	chunk := <-s.chunks
	require.Equal(t, modelprovider.FinishLength, chunk.FinishReason)
}

func TestNextReturnsContextErrorWhenCancelled(t *testing.T) {
	s := newTestStreamer()
	s.cancel()

	_, err := s.Next(context.Background())
	require.Error(t, err)
}

package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codeagent/runtime/internal/agentcore"
	"github.com/codeagent/runtime/internal/modelprovider"
)

func drainStream(t *testing.T, ch <-chan Chunk) []Chunk {
	t.Helper()
	var chunks []Chunk
	for {
		select {
		case c, ok := <-ch:
			if !ok {
				return chunks
			}
			chunks = append(chunks, c)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for stream chunk")
		}
	}
}

func TestStreamPromptEmitsFullSequenceThenCompletion(t *testing.T) {
	d, store := newTestDispatcher(t, agentcore.KindPrompt, stubModel{response: modelprovider.Response{Content: "streamed answer"}})
	sessionID := newSession(t, store)

	chunks := drainStream(t, d.Stream(context.Background(), agentcore.Request{
		Input:   "tell me something",
		Context: agentcore.RequestContext{SessionID: sessionID},
	}))

	require.NotEmpty(t, chunks)
	require.Equal(t, ChunkClassificationStart, chunks[0].Kind)
	require.Equal(t, ChunkClassificationEnd, chunks[1].Kind)
	require.Equal(t, ChunkProcessingStart, chunks[2].Kind)

	last := chunks[len(chunks)-1]
	require.Equal(t, ChunkCompletion, last.Kind)
	require.Equal(t, "streamed answer", last.Response.Content)
}

func TestStreamBuiltinCommandSkipsClassificationChunks(t *testing.T) {
	d, store := newTestDispatcher(t, agentcore.KindWorkflow, nil)
	sessionID := newSession(t, store)

	chunks := drainStream(t, d.Stream(context.Background(), agentcore.Request{
		Input:   "/status",
		Context: agentcore.RequestContext{SessionID: sessionID},
	}))

	for _, c := range chunks {
		require.NotEqual(t, ChunkClassificationStart, c.Kind)
		require.NotEqual(t, ChunkClassificationEnd, c.Kind)
	}
	require.Equal(t, ChunkCompletion, chunks[len(chunks)-1].Kind)
}

func TestStreamEndsWithSingleErrorChunkOnFailure(t *testing.T) {
	d, store := newTestDispatcher(t, agentcore.KindPrompt, stubModel{err: context.DeadlineExceeded})
	sessionID := newSession(t, store)

	chunks := drainStream(t, d.Stream(context.Background(), agentcore.Request{
		Input:   "this will fail",
		Context: agentcore.RequestContext{SessionID: sessionID},
	}))

	last := chunks[len(chunks)-1]
	require.Equal(t, ChunkError, last.Kind)
	require.Error(t, last.Err)
	for _, c := range chunks {
		require.NotEqual(t, ChunkCompletion, c.Kind)
	}
}

func TestStreamRejectsRequestWithoutSessionID(t *testing.T) {
	d, _ := newTestDispatcher(t, agentcore.KindPrompt, stubModel{})
	chunks := drainStream(t, d.Stream(context.Background(), agentcore.Request{Input: "hi"}))
	require.Len(t, chunks, 1)
	require.Equal(t, ChunkError, chunks[0].Kind)
}

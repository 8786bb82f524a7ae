package bedrock

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/codeagent/runtime/internal/modelprovider"
)

// streamer adapts a Bedrock ConverseStream event stream to
// modelprovider.Streamer, grounded on the teacher's bedrockStreamer
// (features/model/bedrock/stream.go): a background goroutine drains
// stream.Events() into a buffered channel. Tool-use, reasoning and citation
// event handling is dropped along with the rest of the tool-calling surface
// this adapter does not carry.
type streamer struct {
	ctx    context.Context
	cancel context.CancelFunc
	stream *bedrockruntime.ConverseStreamEventStream

	chunks chan modelprovider.Chunk

	mu       sync.Mutex
	finalErr error
}

func newStreamer(ctx context.Context, stream *bedrockruntime.ConverseStreamEventStream) *streamer {
	cctx, cancel := context.WithCancel(ctx)
	s := &streamer{
		ctx:    cctx,
		cancel: cancel,
		stream: stream,
		chunks: make(chan modelprovider.Chunk, 32),
	}
	go s.run()
	return s
}

func (s *streamer) Next(ctx context.Context) (modelprovider.Chunk, error) {
	select {
	case chunk, ok := <-s.chunks:
		if ok {
			return chunk, nil
		}
		if err := s.err(); err != nil {
			return modelprovider.Chunk{}, err
		}
		return modelprovider.Chunk{}, io.EOF
	case <-ctx.Done():
		return modelprovider.Chunk{}, ctx.Err()
	case <-s.ctx.Done():
		return modelprovider.Chunk{}, s.ctx.Err()
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
				s.setErr(s.stream.Err())
				return
			}
			if !s.handle(event) {
				return
			}
		}
	}
}

func (s *streamer) handle(event brtypes.ConverseStreamOutput) bool {
	switch ev := event.(type) {
	case *brtypes.ConverseStreamOutputMemberContentBlockDelta:
		if delta, ok := ev.Value.Delta.(*brtypes.ContentBlockDeltaMemberText); ok && delta.Value != "" {
			return s.emit(modelprovider.Chunk{Delta: delta.Value})
		}
	case *brtypes.ConverseStreamOutputMemberMessageStop:
		s.emit(modelprovider.Chunk{
			IsComplete:   true,
			FinishReason: translateStopReason(ev.Value.StopReason),
		})
		return false
	}
	return true
}

func (s *streamer) emit(c modelprovider.Chunk) bool {
	select {
	case s.chunks <- c:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *streamer) setErr(err error) {
	if err != nil && errors.Is(err, context.Canceled) {
		return
	}
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

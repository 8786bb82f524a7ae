package anthropic

import (
	"context"
	"errors"
	"io"
	"sync"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/codeagent/runtime/internal/modelprovider"
)

// streamer adapts an Anthropic Messages SSE stream to modelprovider.Streamer,
// grounded on the teacher's anthropicStreamer (features/model/anthropic/
// stream.go): a background goroutine pumps stream.Next()/Current() into a
// buffered channel, Recv drains it. Tool-use and thinking event handling is
// dropped along with the rest of the tool-calling surface this adapter does
// not carry.
type streamer struct {
	ctx    context.Context
	cancel context.CancelFunc
	stream *ssestream.Stream[sdk.MessageStreamEventUnion]
	chunks chan modelprovider.Chunk

	mu       sync.Mutex
	finalErr error
}

func newStreamer(ctx context.Context, stream *ssestream.Stream[sdk.MessageStreamEventUnion]) *streamer {
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

	var stopReason string
	for {
		select {
		case <-s.ctx.Done():
			s.setErr(s.ctx.Err())
			return
		default:
		}
		if !s.stream.Next() {
			s.setErr(s.stream.Err())
			return
		}
		event := s.stream.Current()
		switch ev := event.AsAny().(type) {
		case sdk.ContentBlockDeltaEvent:
			if text, ok := ev.Delta.AsAny().(sdk.TextDelta); ok && text.Text != "" {
				if !s.emit(modelprovider.Chunk{Delta: text.Text}) {
					return
				}
			}
		case sdk.MessageDeltaEvent:
			stopReason = string(ev.Delta.StopReason)
		case sdk.MessageStopEvent:
			usage := modelprovider.Usage{}
			if !s.emit(modelprovider.Chunk{
				IsComplete:   true,
				FinishReason: translateStopReason(stopReason),
				Usage:        usage,
			}) {
				return
			}
		}
	}
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

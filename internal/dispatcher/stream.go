package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/codeagent/runtime/internal/agentcore"
)

// ChunkKind names one stage of a streamed dispatch, per spec.md §4.13's
// "classification-start, classification-end, processing-start, one or more
// processing chunks, completion" sequence.
type ChunkKind string

const (
	ChunkClassificationStart ChunkKind = "classification-start"
	ChunkClassificationEnd   ChunkKind = "classification-end"
	ChunkProcessingStart     ChunkKind = "processing-start"
	ChunkProcessing          ChunkKind = "processing"
	ChunkCompletion          ChunkKind = "completion"
	ChunkError               ChunkKind = "error"
)

// Chunk is one unit streamed back by Stream.
type Chunk struct {
	Kind           ChunkKind
	Classification *agentcore.ClassificationResult
	Delta          string
	Response       *agentcore.Response
	Err            error
}

// Stream runs req exactly like Process but yields progress chunks as the
// request moves through classification and its matched handler. On error
// the stream ends with a single ChunkError chunk and no ChunkCompletion
// chunk, per spec.md §4.13. Cancelling ctx propagates to the classifier,
// the command/model/workflow handler, and (for a workflow request) every
// node of the underlying engine.Stream iteration.
func (d *Dispatcher) Stream(ctx context.Context, req agentcore.Request) <-chan Chunk {
	out := make(chan Chunk)
	go func() {
		defer close(out)

		start := time.Now()
		sessionID := req.Context.SessionID
		if sessionID == "" {
			emitChunk(ctx, out, Chunk{Kind: ChunkError, Err: fmt.Errorf("dispatcher: request is missing a session id")})
			return
		}
		if d.cfg.Store == nil || d.cfg.Classifier == nil {
			emitChunk(ctx, out, Chunk{Kind: ChunkError, Err: fmt.Errorf("dispatcher: missing a required component")})
			return
		}

		if _, err := d.cfg.Store.AppendTurn(sessionID, agentcore.Turn{
			TurnID: newTurnID(), Timestamp: start, Role: agentcore.RoleUser, Content: req.Input,
		}); err != nil {
			emitChunk(ctx, out, Chunk{Kind: ChunkError, Err: err})
			return
		}

		if cmd, ok := d.cfg.Commands.Parse(req.Input); ok && builtinStateCommands[cmd.Name] {
			classification := agentcore.ClassificationResult{Kind: agentcore.KindCommand, Confidence: 1.0, Method: "builtin"}
			if !emitChunk(ctx, out, Chunk{Kind: ChunkProcessingStart}) {
				return
			}
			resp, err := d.runCommand(ctx, sessionID, cmd, classification, 0)
			d.finishStream(ctx, out, sessionID, start, resp, err)
			return
		}

		if !emitChunk(ctx, out, Chunk{Kind: ChunkClassificationStart}) {
			return
		}
		var method agentcore.ClassifierMethod
		if req.Options != nil {
			method = agentcore.ClassifierMethod(req.Options.Method)
		}
		classifyStart := time.Now()
		classifyCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeouts.Classification)
		classification, err := d.cfg.Classifier.Classify(classifyCtx, req.Input, method, map[string]any{"sessionId": sessionID})
		cancel()
		classificationTimeMs := time.Since(classifyStart).Milliseconds()
		if err != nil {
			emitChunk(ctx, out, Chunk{Kind: ChunkError, Err: fmt.Errorf("dispatcher: classify: %w", err)})
			return
		}
		if !emitChunk(ctx, out, Chunk{Kind: ChunkClassificationEnd, Classification: &classification}) {
			return
		}
		if !emitChunk(ctx, out, Chunk{Kind: ChunkProcessingStart}) {
			return
		}

		switch classification.Kind {
		case agentcore.KindCommand:
			cmd, ok := d.cfg.Commands.Parse(req.Input)
			if !ok {
				emitChunk(ctx, out, Chunk{Kind: ChunkError, Err: fmt.Errorf("dispatcher: classified as command but input does not parse as one")})
				return
			}
			resp, err := d.runCommand(ctx, sessionID, cmd, classification, classificationTimeMs)
			d.finishStream(ctx, out, sessionID, start, resp, err)
		case agentcore.KindWorkflow:
			d.streamWorkflow(ctx, out, req, sessionID, start, classification, classificationTimeMs)
		default:
			resp, err := d.runPrompt(ctx, req, sessionID, classification, classificationTimeMs)
			d.finishStream(ctx, out, sessionID, start, resp, err)
		}
	}()
	return out
}

// streamWorkflow extracts a WorkflowSpec and, on success, forwards the
// engine's own per-node Stream as a sequence of ChunkProcessing chunks
// before finishing with a completion chunk built from the final state.
// A failed extraction downgrades to a single-shot prompt, matching Process.
func (d *Dispatcher) streamWorkflow(ctx context.Context, out chan<- Chunk, req agentcore.Request, sessionID string, start time.Time, classification agentcore.ClassificationResult, classificationTimeMs int64) {
	if d.cfg.Extractor == nil || d.cfg.Engine == nil {
		emitChunk(ctx, out, Chunk{Kind: ChunkError, Err: fmt.Errorf("dispatcher: workflow extractor or engine is not configured")})
		return
	}

	handlerStart := time.Now()
	workflowCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeouts.WorkflowExecution)
	defer cancel()

	extraction := d.cfg.Extractor.ExtractWorkflow(workflowCtx, req.Input, d.cfg.ExtractionMethod)
	if !extraction.Success {
		resp, err := d.runPrompt(ctx, req, sessionID, classification, classificationTimeMs)
		if err == nil {
			resp.MergeMetadata(map[string]any{"downgradedFrom": agentcore.KindWorkflow, "extractionError": extraction.Error})
		}
		d.finishStream(ctx, out, sessionID, start, resp, err)
		return
	}

	pattern := extraction.WorkflowSpec.Pattern
	wf, ok := d.cfg.Engine.GetCompiled(pattern)
	if !ok {
		var err error
		wf, err = d.cfg.Engine.CreateWorkflow(pattern)
		if err != nil {
			emitChunk(ctx, out, Chunk{Kind: ChunkError, Err: fmt.Errorf("dispatcher: compile workflow %q: %w", pattern, err)})
			return
		}
	}

	workflowID := sessionID + ":" + string(pattern)
	state := agentcore.WorkflowState{
		Input:   req.Input,
		Context: map[string]any{"sessionId": sessionID, "workflowId": workflowID},
	}

	var final agentcore.WorkflowState
	var executionPath []string
	for chunk := range d.cfg.Engine.Stream(workflowCtx, wf, state) {
		if chunk.Err != nil {
			emitChunk(ctx, out, Chunk{Kind: ChunkError, Err: fmt.Errorf("dispatcher: workflow node %q: %w", chunk.NodeID, chunk.Err)})
			return
		}
		final = chunk.State
		executionPath = append(executionPath, chunk.NodeID)
		if !emitChunk(ctx, out, Chunk{Kind: ChunkProcessing, Delta: chunk.State.Output}) {
			return
		}
	}

	toolsUsed := make([]string, 0, len(final.ToolResults))
	for _, tr := range final.ToolResults {
		toolsUsed = append(toolsUsed, tr.ToolName)
	}
	resp := agentcore.NewResponse(agentcore.KindWorkflow)
	resp.Success = true
	resp.Content = final.Output
	resp.ToolsUsed = toolsUsed
	resp.Confidence = classification.Confidence
	resp.MergeMetadata(map[string]any{
		"classification":       classification,
		"pattern":              pattern,
		"workflowId":           workflowID,
		"executionPath":        executionPath,
		"nodeCount":            len(executionPath),
		"extractionMethod":     extraction.ExtractionMethod,
		"classificationTimeMs": classificationTimeMs,
		"handlerTimeMs":        time.Since(handlerStart).Milliseconds(),
	})
	d.finishStream(ctx, out, sessionID, start, resp, nil)
}

// finishStream appends the assistant turn and processing event (mirroring
// Process) and emits the terminal chunk: ChunkCompletion on success,
// ChunkError (with no completion chunk) on failure.
func (d *Dispatcher) finishStream(ctx context.Context, out chan<- Chunk, sessionID string, start time.Time, resp *agentcore.Response, err error) {
	if err != nil {
		emitChunk(ctx, out, Chunk{Kind: ChunkError, Err: err})
		return
	}
	finalizeMetadata(resp, start)
	if _, err := d.cfg.Store.AppendTurn(sessionID, agentcore.Turn{
		TurnID: newTurnID(), Timestamp: time.Now(), Role: agentcore.RoleAssistant, Content: resp.Content, Metadata: resp.Metadata,
	}); err != nil {
		emitChunk(ctx, out, Chunk{Kind: ChunkError, Err: err})
		return
	}
	if err := d.cfg.Store.AddProcessingEvent(agentcore.ProcessingEvent{
		SessionID: sessionID, Timestamp: time.Now(), Kind: processingEventKind(resp.Kind), Data: resp.Metadata,
	}); err != nil {
		emitChunk(ctx, out, Chunk{Kind: ChunkError, Err: err})
		return
	}
	emitChunk(ctx, out, Chunk{Kind: ChunkCompletion, Response: resp})
}

// emitChunk sends chunk on out, honoring ctx cancellation so a slow
// consumer never blocks the producing goroutine indefinitely (pull-based
// backpressure, per spec.md §5). Returns false when ctx was cancelled
// before the send, signalling the caller to stop producing further chunks.
func emitChunk(ctx context.Context, out chan<- Chunk, chunk Chunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

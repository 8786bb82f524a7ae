package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/codeagent/runtime/internal/agentcore"
)

// Checkpointer persists a workflow's furthest-along state; satisfied by
// *memory.Store. The engine calls only SaveConversationState: it has no
// resume operation, and nothing in this package reloads a checkpoint.
type Checkpointer interface {
	SaveConversationState(state agentcore.ConversationState) error
	GetConversationState(sessionID string) (agentcore.ConversationState, error)
}

// ExecutableWorkflow is a compiled, ready-to-run graph for one pattern.
type ExecutableWorkflow struct {
	Spec  agentcore.WorkflowSpec
	order []string // topologically sorted node IDs
}

// Config configures an Engine.
type Config struct {
	// Factory supplies the NodeHandler for every canonical and
	// pattern-specific stage a compiled graph may reference.
	Factory NodeFactory
	// Checkpointer persists state after every node when non-nil.
	Checkpointer Checkpointer
}

// Engine is the Workflow Engine (C11): compiles patterns into DAGs,
// executes or streams them, and maintains a precompiled-graph cache keyed
// by pattern name, per spec.md §4.11.
type Engine struct {
	cfg      Config
	compiled map[agentcore.Pattern]ExecutableWorkflow
}

// New builds an Engine. factory must cover every stage canonicalStageOrder
// and patternInserts may reference, for every pattern the caller intends to
// compile.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg, compiled: map[agentcore.Pattern]ExecutableWorkflow{}}
}

// CreateWorkflow compiles pattern (applying customizations, if any) into an
// ExecutableWorkflow, per spec.md §4.11. It does not consult or populate the
// precompiled cache; callers that want caching should use Precompile plus
// GetCompiled, or check GetCompiled first.
func (e *Engine) CreateWorkflow(pattern agentcore.Pattern, customizations ...Customization) (ExecutableWorkflow, error) {
	spec, err := compile(pattern, e.cfg.Factory, customizations)
	if err != nil {
		return ExecutableWorkflow{}, err
	}
	order, err := topoOrder(spec)
	if err != nil {
		return ExecutableWorkflow{}, err
	}
	return ExecutableWorkflow{Spec: spec, order: order}, nil
}

// Precompile compiles and caches the uncustomized graph for each pattern in
// patterns, so GetCompiled can return it without recompiling.
func (e *Engine) Precompile(patterns []agentcore.Pattern) error {
	for _, p := range patterns {
		wf, err := e.CreateWorkflow(p)
		if err != nil {
			return fmt.Errorf("engine: precompile %q: %w", p, err)
		}
		e.compiled[p] = wf
	}
	return nil
}

// GetCompiled returns the cached uncustomized graph for patternName, if
// Precompile has already built one.
func (e *Engine) GetCompiled(patternName agentcore.Pattern) (ExecutableWorkflow, bool) {
	wf, ok := e.compiled[patternName]
	return wf, ok
}

// sessionIDOf extracts the owning session from state.Context, if the caller
// stashed one there; checkpoints for workflows run outside a session
// (tests, standalone tool runs) simply carry an empty SessionID.
func sessionIDOf(state agentcore.WorkflowState) string {
	if state.Context == nil {
		return ""
	}
	if id, ok := state.Context["sessionId"].(string); ok {
		return id
	}
	return ""
}

// checkpointID names the conversation-state record a workflow run's
// checkpoints share across steps.
func checkpointID(wf ExecutableWorkflow, state agentcore.WorkflowState) string {
	if state.Context != nil {
		if id, ok := state.Context["workflowId"].(string); ok && id != "" {
			return id
		}
	}
	return string(wf.Spec.Pattern)
}

// Execute runs wf to completion in topological order, applying the
// WorkflowState.Merge reducer after every node and checkpointing (if
// configured) after every node. Each checkpoint carries
// CheckpointKey{workflowId, stepIndex}, but *memory.Store keeps one
// checkpoint per session, so each step's save replaces the previous one.
func (e *Engine) Execute(ctx context.Context, wf ExecutableWorkflow, state agentcore.WorkflowState) (agentcore.WorkflowResult, error) {
	state.PatternName = wf.Spec.Pattern
	nodesByID := make(map[string]agentcore.WorkflowNode, len(wf.Spec.Nodes))
	for _, n := range wf.Spec.Nodes {
		nodesByID[n.ID] = n
	}

	wfID := checkpointID(wf, state)
	path := make([]string, 0, len(wf.order))
	for step, id := range wf.order {
		if err := ctx.Err(); err != nil {
			return agentcore.WorkflowResult{}, fmt.Errorf("engine: execute cancelled at node %q: %w", id, err)
		}
		node, ok := nodesByID[id]
		if !ok {
			return agentcore.WorkflowResult{}, fmt.Errorf("engine: unknown node %q in execution order", id)
		}
		patch, err := node.Handler(ctx, state)
		if err != nil {
			return agentcore.WorkflowResult{}, fmt.Errorf("engine: node %q failed: %w", id, err)
		}
		state = state.Merge(patch)
		path = append(path, id)

		if e.cfg.Checkpointer != nil {
			if err := e.cfg.Checkpointer.SaveConversationState(agentcore.ConversationState{
				SessionID:  sessionIDOf(state),
				Checkpoint: agentcore.CheckpointKey{WorkflowID: wfID, StepIndex: step},
				State:      state,
				UpdatedAt:  time.Now(),
			}); err != nil {
				return agentcore.WorkflowResult{}, fmt.Errorf("engine: checkpoint after node %q: %w", id, err)
			}
		}
	}

	return agentcore.WorkflowResult{
		FinalState:    state,
		ExecutionPath: path,
		NodeCount:     len(wf.Spec.Nodes),
	}, nil
}

// Stream runs wf exactly like Execute but yields one agentcore.WorkflowChunk
// per node completion over the returned channel, closing it after a
// terminal chunk. A node error is delivered as a single terminal chunk
// carrying Err and the stream ends; no further nodes run.
func (e *Engine) Stream(ctx context.Context, wf ExecutableWorkflow, state agentcore.WorkflowState) <-chan agentcore.WorkflowChunk {
	out := make(chan agentcore.WorkflowChunk)
	go func() {
		defer close(out)

		state.PatternName = wf.Spec.Pattern
		nodesByID := make(map[string]agentcore.WorkflowNode, len(wf.Spec.Nodes))
		for _, n := range wf.Spec.Nodes {
			nodesByID[n.ID] = n
		}
		wfID := checkpointID(wf, state)

		for step, id := range wf.order {
			if err := ctx.Err(); err != nil {
				emit(ctx, out, agentcore.WorkflowChunk{NodeID: id, State: state, IsComplete: true, Err: err})
				return
			}
			node, ok := nodesByID[id]
			if !ok {
				emit(ctx, out, agentcore.WorkflowChunk{NodeID: id, State: state, IsComplete: true, Err: fmt.Errorf("engine: unknown node %q", id)})
				return
			}
			patch, err := node.Handler(ctx, state)
			if err != nil {
				emit(ctx, out, agentcore.WorkflowChunk{NodeID: id, State: state, IsComplete: true, Err: fmt.Errorf("engine: node %q failed: %w", id, err)})
				return
			}
			state = state.Merge(patch)

			if e.cfg.Checkpointer != nil {
				if cpErr := e.cfg.Checkpointer.SaveConversationState(agentcore.ConversationState{
					SessionID:  sessionIDOf(state),
					Checkpoint: agentcore.CheckpointKey{WorkflowID: wfID, StepIndex: step},
					State:      state,
					UpdatedAt:  time.Now(),
				}); cpErr != nil {
					emit(ctx, out, agentcore.WorkflowChunk{NodeID: id, State: state, IsComplete: true, Err: fmt.Errorf("engine: checkpoint after node %q: %w", id, cpErr)})
					return
				}
			}

			isLast := step == len(wf.order)-1
			if !emit(ctx, out, agentcore.WorkflowChunk{NodeID: id, State: state, IsComplete: isLast}) {
				return
			}
		}
	}()
	return out
}

// emit sends chunk on out, honoring ctx cancellation so a slow consumer
// never blocks a node's own execution indefinitely (pull-based backpressure,
// per spec.md §5). Returns false when ctx was cancelled before the send.
func emit(ctx context.Context, out chan<- agentcore.WorkflowChunk, chunk agentcore.WorkflowChunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

package agentcore

import (
	"context"
	"time"
)

// Pattern names a cognitive/workflow strategy (§ Glossary).
type Pattern string

const (
	PatternAnalytical    Pattern = "analytical"
	PatternCreative      Pattern = "creative"
	PatternProblemSolve  Pattern = "problem-solving"
	PatternInformational Pattern = "informational"
	PatternConversation  Pattern = "conversational"
	PatternReAct         Pattern = "react"
	PatternReWOO         Pattern = "rewoo"
	PatternADaPT         Pattern = "adapt"
)

// AcyclicPatterns lists the patterns whose compiled graph must be acyclic.
// ReAct and ADaPT are the only patterns permitted cyclic back-edges.
var AcyclicPatterns = map[Pattern]bool{
	PatternReWOO:         true,
	PatternAnalytical:    true,
	PatternCreative:      true,
	PatternProblemSolve:  true,
	PatternInformational: true,
	PatternConversation:  true,
}

// NodeKind tags the role a WorkflowNode plays in the compiled graph.
type NodeKind string

const (
	NodeInput      NodeKind = "input"
	NodeProcessing NodeKind = "processing"
	NodeTool       NodeKind = "tool"
	NodeReasoning  NodeKind = "reasoning"
	NodeOutput     NodeKind = "output"
	NodeDecompose  NodeKind = "decomposition"
)

// NodeHandler executes one WorkflowNode against the current state and
// returns a state patch to be merged by the engine's reducer.
type NodeHandler func(ctx context.Context, state WorkflowState) (WorkflowState, error)

// WorkflowNode is one vertex of a compiled workflow graph.
type WorkflowNode struct {
	ID      string
	Kind    NodeKind
	Handler NodeHandler
}

// WorkflowEdge connects two nodes, optionally guarded by a condition
// evaluated against the current WorkflowState.
type WorkflowEdge struct {
	From      string
	To        string
	Condition func(state WorkflowState) bool
}

// WorkflowSpec describes a compiled-but-not-yet-executing workflow: its
// pattern, node/edge graph, parameters, and the tools it requires.
//
// Invariant: exactly one node is declared the entry point; the graph is
// acyclic unless Pattern is react or adapt.
type WorkflowSpec struct {
	ID            string
	Pattern       Pattern
	Nodes         []WorkflowNode
	Edges         []WorkflowEdge
	Params        map[string]any
	RequiredTools []string
	EntryNodeID   string
}

// WorkflowMeta carries bookkeeping fields threaded through a running
// workflow: start time, current stage, step log, and merged performance
// counters.
type WorkflowMeta struct {
	StartMs int64
	Stage   string
	Steps   []string
	Perf    map[string]float64
}

// WorkflowState is the value threaded through every node of a running
// workflow. ToolResults and Steps are append-only; Perf merges by key; all
// other fields overwrite on merge (see Merge).
type WorkflowState struct {
	Input       string
	PatternName Pattern
	Domain      string
	Context     map[string]any
	ToolResults []ToolResult
	Reasoning   string
	Output      string
	Meta        WorkflowMeta
}

// Merge applies a node's returned patch onto the receiver per the reducer
// rule from spec.md §3: ToolResults and Steps append, Perf merges by key,
// everything else overwrites when non-zero.
func (s WorkflowState) Merge(patch WorkflowState) WorkflowState {
	out := s
	if patch.Input != "" {
		out.Input = patch.Input
	}
	if patch.PatternName != "" {
		out.PatternName = patch.PatternName
	}
	if patch.Domain != "" {
		out.Domain = patch.Domain
	}
	if patch.Context != nil {
		if out.Context == nil {
			out.Context = map[string]any{}
		}
		for k, v := range patch.Context {
			out.Context[k] = v
		}
	}
	out.ToolResults = append(append([]ToolResult{}, out.ToolResults...), patch.ToolResults...)
	if patch.Reasoning != "" {
		out.Reasoning = patch.Reasoning
	}
	if patch.Output != "" {
		out.Output = patch.Output
	}
	out.Meta.Steps = append(append([]string{}, out.Meta.Steps...), patch.Meta.Steps...)
	if patch.Meta.Stage != "" {
		out.Meta.Stage = patch.Meta.Stage
	}
	if patch.Meta.StartMs != 0 {
		out.Meta.StartMs = patch.Meta.StartMs
	}
	if len(patch.Meta.Perf) > 0 {
		if out.Meta.Perf == nil {
			out.Meta.Perf = map[string]float64{}
		}
		for k, v := range patch.Meta.Perf {
			out.Meta.Perf[k] += v
		}
	}
	return out
}

// WorkflowChunk is one unit streamed back by the engine: a node's completion
// (or the terminal error chunk).
type WorkflowChunk struct {
	NodeID     string
	State      WorkflowState
	IsComplete bool
	Err        error
}

// WorkflowResult is the outcome of a full (non-streamed) workflow execution.
type WorkflowResult struct {
	FinalState    WorkflowState
	ExecutionPath []string
	NodeCount     int
}

// CheckpointKey identifies one persisted checkpoint of a running workflow.
type CheckpointKey struct {
	WorkflowID string
	StepIndex  int
}

// ConversationState is the Memory Store's record of a session's
// furthest-along workflow checkpoint, persisted under the "conversations/"
// tree in file/hybrid mode (§6). It is distinct from Session.History: the
// session carries the turn-by-turn transcript, this carries the in-flight
// WorkflowState needed to resume a checkpointed workflow.
type ConversationState struct {
	SessionID  string
	Checkpoint CheckpointKey
	State      WorkflowState
	UpdatedAt  time.Time
}

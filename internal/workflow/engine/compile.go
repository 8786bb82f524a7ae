// Package engine implements the Workflow Engine (C11): compiles a pattern
// name into a node/edge DAG, executes it to a WorkflowResult, or streams one
// chunk per node completion, per spec.md §4.11.
//
// Grounded on the teacher's workflow_loop.go loop-context idiom (a small
// struct owning immutable run context plus a mutable state pointer, stepped
// by a run() method) and workflow_state.go's explicit state-struct
// discipline — reimplemented here as an in-process compiled DAG rather than
// a Temporal workflow, since durable multi-node clustering is out of scope.
// The append-only toolResults/steps + merge-by-key perf reducer comes
// directly from agentcore.WorkflowState.Merge.
package engine

import (
	"fmt"

	"github.com/codeagent/runtime/internal/agentcore"
)

// canonicalStageOrder lists the shared stages every pattern's compiled graph
// passes through, per spec.md §4.11. patternInsert names where the
// pattern-specific node lands.
var canonicalStageOrder = []string{
	"processInput",
	"enrichContext",
	"patternInsert",
	"executeTools",
	"reasoning",
	"synthesize",
	"formatOutput",
}

// patternInserts names the pattern-specific node inserted between
// enrichContext and executeTools for patterns that need one; patterns
// absent from this map skip the insert.
var patternInserts = map[agentcore.Pattern]string{
	agentcore.PatternAnalytical:   "sequentialThinking",
	agentcore.PatternCreative:     "ideation",
	agentcore.PatternProblemSolve: "diagnostics",
	agentcore.PatternReWOO:        "planner",
	agentcore.PatternADaPT:        "decompose",
}

// Customization appends or inserts a node into a compiled graph. Insert
// positions the new node's single inbound edge after AfterNodeID; when
// AfterNodeID is empty the node is appended before the terminal node.
type Customization struct {
	Node        agentcore.WorkflowNode
	AfterNodeID string
}

// NodeFactory builds the handler for one canonical or pattern-specific
// stage of pattern. It is pattern-aware because the same stage name means
// different things per pattern — "reasoning" is a single model call for
// most patterns but the entire think/act/observe/decide loop for react, or
// the solver phase for rewoo. Patterns register their stage handlers
// through a NodeFactory rather than this package hardcoding them, so
// internal/workflow/patterns owns its own think/act/observe/plan/decompose
// logic.
type NodeFactory func(pattern agentcore.Pattern, stage string) (agentcore.NodeHandler, bool)

// compile assembles the canonical node set for pattern, wiring edges into a
// DAG with entry=processInput and terminal=formatOutput, then applies
// customizations. The resulting graph must remain connected and
// terminating, per spec.md §4.11.
func compile(pattern agentcore.Pattern, factory NodeFactory, customizations []Customization) (agentcore.WorkflowSpec, error) {
	stages := make([]string, 0, len(canonicalStageOrder))
	insert, hasInsert := patternInserts[pattern]
	for _, stage := range canonicalStageOrder {
		if stage == "patternInsert" {
			if hasInsert {
				stages = append(stages, insert)
			}
			continue
		}
		stages = append(stages, stage)
	}

	nodes := make([]agentcore.WorkflowNode, 0, len(stages))
	edges := make([]agentcore.WorkflowEdge, 0, len(stages))
	for i, stage := range stages {
		handler, ok := factory(pattern, stage)
		if !ok {
			return agentcore.WorkflowSpec{}, fmt.Errorf("engine: no handler registered for stage %q of pattern %q", stage, pattern)
		}
		nodes = append(nodes, agentcore.WorkflowNode{ID: stage, Kind: kindFor(stage), Handler: handler})
		if i > 0 {
			edges = append(edges, agentcore.WorkflowEdge{From: stages[i-1], To: stage})
		}
	}

	spec := agentcore.WorkflowSpec{
		Pattern:       pattern,
		Nodes:         nodes,
		Edges:         edges,
		EntryNodeID:   stages[0],
		RequiredTools: nil,
	}
	spec, err := applyCustomizations(spec, customizations)
	if err != nil {
		return agentcore.WorkflowSpec{}, err
	}
	if err := validateGraph(spec, pattern); err != nil {
		return agentcore.WorkflowSpec{}, err
	}
	return spec, nil
}

func kindFor(stage string) agentcore.NodeKind {
	switch stage {
	case "processInput":
		return agentcore.NodeInput
	case "executeTools":
		return agentcore.NodeTool
	case "reasoning", "sequentialThinking", "ideation", "diagnostics":
		return agentcore.NodeReasoning
	case "formatOutput":
		return agentcore.NodeOutput
	default:
		return agentcore.NodeProcessing
	}
}

// applyCustomizations appends each customization's node, wiring it in after
// AfterNodeID (or before the terminal node when AfterNodeID is empty) and
// re-pointing the edge that used to run from AfterNodeID directly to its
// successor so the new node splices into the existing chain rather than
// forking it.
func applyCustomizations(spec agentcore.WorkflowSpec, customizations []Customization) (agentcore.WorkflowSpec, error) {
	for _, c := range customizations {
		afterID := c.AfterNodeID
		if afterID == "" {
			if len(spec.Nodes) == 0 {
				return spec, fmt.Errorf("engine: cannot customize an empty graph")
			}
			hasOut := map[string]bool{}
			for _, e := range spec.Edges {
				hasOut[e.From] = true
			}
			for _, e := range spec.Edges {
				if !hasOut[e.To] {
					afterID = e.From // before terminal
					break
				}
			}
		}
		successorIdx := -1
		for i, e := range spec.Edges {
			if e.From == afterID {
				successorIdx = i
				break
			}
		}
		spec.Nodes = append(spec.Nodes, c.Node)
		if successorIdx >= 0 {
			successor := spec.Edges[successorIdx].To
			spec.Edges[successorIdx].To = c.Node.ID
			spec.Edges = append(spec.Edges, agentcore.WorkflowEdge{From: c.Node.ID, To: successor})
		} else {
			spec.Edges = append(spec.Edges, agentcore.WorkflowEdge{From: afterID, To: c.Node.ID})
		}
	}
	return spec, nil
}

// validateGraph rejects a disconnected or (for non-cyclic patterns)
// non-terminating graph, per spec.md §4.11's compilation invariant.
func validateGraph(spec agentcore.WorkflowSpec, pattern agentcore.Pattern) error {
	if len(spec.Nodes) == 0 {
		return fmt.Errorf("engine: compiled graph for %q has no nodes", pattern)
	}
	reachable := map[string]bool{spec.EntryNodeID: true}
	changed := true
	for changed {
		changed = false
		for _, e := range spec.Edges {
			if reachable[e.From] && !reachable[e.To] {
				reachable[e.To] = true
				changed = true
			}
		}
	}
	for _, n := range spec.Nodes {
		if !reachable[n.ID] {
			return fmt.Errorf("engine: node %q is not reachable from entry %q", n.ID, spec.EntryNodeID)
		}
	}
	if agentcore.AcyclicPatterns[pattern] {
		if err := checkAcyclic(spec); err != nil {
			return err
		}
	}
	return nil
}

func checkAcyclic(spec agentcore.WorkflowSpec) error {
	adj := map[string][]string{}
	for _, e := range spec.Edges {
		adj[e.From] = append(adj[e.From], e.To)
	}
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[string]int{}
	var visit func(id string) error
	visit = func(id string) error {
		color[id] = gray
		for _, next := range adj[id] {
			switch color[next] {
			case gray:
				return fmt.Errorf("engine: compiled graph has a cycle through %q", next)
			case white:
				if err := visit(next); err != nil {
					return err
				}
			}
		}
		color[id] = black
		return nil
	}
	for _, n := range spec.Nodes {
		if color[n.ID] == white {
			if err := visit(n.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// topoOrder returns spec.Nodes' IDs in dependency order. Compile already
// validated reachability/acyclicity for non-cyclic patterns; cyclic
// patterns (react, adapt) drive their own internal looping inside a single
// node's handler rather than relying on graph-level cycles, so a simple
// Kahn's-algorithm pass over the declared edges is sufficient here.
func topoOrder(spec agentcore.WorkflowSpec) ([]string, error) {
	indegree := map[string]int{}
	adj := map[string][]string{}
	for _, n := range spec.Nodes {
		indegree[n.ID] = 0
	}
	for _, e := range spec.Edges {
		indegree[e.To]++
		adj[e.From] = append(adj[e.From], e.To)
	}
	var queue, order []string
	for _, n := range spec.Nodes {
		if indegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, next := range adj[id] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if len(order) != len(spec.Nodes) {
		return nil, fmt.Errorf("engine: graph has a cycle; topological execution order is undefined")
	}
	return order, nil
}

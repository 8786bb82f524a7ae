package patterns

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeagent/runtime/internal/agentcore"
)

type fixedPlanner struct {
	steps []PlanStep
	err    error
}

func (f fixedPlanner) Plan(context.Context, string) ([]PlanStep, error) {
	return f.steps, f.err
}

type fixedSolver struct {
	output string
}

func (f fixedSolver) Solve(context.Context, string, []Evidence) (string, error) {
	return f.output, nil
}

type byNameExecutor struct {
	outputs map[string]any
	fail    map[string]bool
}

func (e byNameExecutor) Execute(_ context.Context, call agentcore.ToolCall) agentcore.ToolResult {
	if e.fail[call.CallID] {
		return agentcore.ToolResult{CallID: call.CallID, ToolName: call.ToolName, Success: false, Error: errors.New("step failed")}
	}
	return agentcore.ToolResult{CallID: call.CallID, ToolName: call.ToolName, Success: true, Output: e.outputs[call.CallID]}
}

func TestReWOOPlannerHandlerValidatesAndStoresPlan(t *testing.T) {
	planner := fixedPlanner{steps: []PlanStep{{ID: "1", Action: "search"}, {ID: "2", Action: "summarize", Dependencies: []string{"1"}}}}
	w := NewReWOO(planner, nil, nil, nil)

	state, err := w.PlannerHandler(context.Background(), agentcore.WorkflowState{Input: "task"})
	require.NoError(t, err)
	plan, ok := state.Context["rewooPlan"].([]PlanStep)
	require.True(t, ok)
	require.Len(t, plan, 2)
}

func TestReWOOPlannerHandlerRejectsDuplicateIDs(t *testing.T) {
	planner := fixedPlanner{steps: []PlanStep{{ID: "1"}, {ID: "1"}}}
	w := NewReWOO(planner, nil, nil, nil)
	_, err := w.PlannerHandler(context.Background(), agentcore.WorkflowState{})
	require.Error(t, err)
}

func TestReWOOPlannerHandlerRejectsDependencyCycle(t *testing.T) {
	planner := fixedPlanner{steps: []PlanStep{
		{ID: "1", Dependencies: []string{"2"}},
		{ID: "2", Dependencies: []string{"1"}},
	}}
	w := NewReWOO(planner, nil, nil, nil)
	_, err := w.PlannerHandler(context.Background(), agentcore.WorkflowState{})
	require.Error(t, err)
}

func TestReWOOWorkerHandlerExecutesInDependencyWaves(t *testing.T) {
	steps := []PlanStep{
		{ID: "1", Action: "fetch"},
		{ID: "2", Action: "transform", Dependencies: []string{"1"}, Input: map[string]any{"source": "#1"}},
	}
	exec := byNameExecutor{outputs: map[string]any{"1": "raw-data"}}
	w := NewReWOO(fixedPlanner{}, exec, nil, nil)

	state, err := w.WorkerHandler(context.Background(), agentcore.WorkflowState{Context: map[string]any{"rewooPlan": steps}})
	require.NoError(t, err)
	evidence, ok := state.Context["rewooEvidence"].([]Evidence)
	require.True(t, ok)
	require.Len(t, evidence, 2)
	require.Len(t, state.ToolResults, 2)
}

func TestReWOOWorkerHandlerContinuesDependentsAfterFailure(t *testing.T) {
	steps := []PlanStep{
		{ID: "1", Action: "fetch"},
		{ID: "2", Action: "transform", Dependencies: []string{"1"}, Input: map[string]any{"source": "#1"}},
	}
	exec := byNameExecutor{fail: map[string]bool{"1": true}}
	w := NewReWOO(fixedPlanner{}, exec, nil, nil)

	state, err := w.WorkerHandler(context.Background(), agentcore.WorkflowState{Context: map[string]any{"rewooPlan": steps}})
	require.NoError(t, err)
	evidence := state.Context["rewooEvidence"].([]Evidence)
	require.Len(t, evidence, 2)
	require.False(t, evidence[0].Success)
	require.True(t, evidence[1].Success)
}

func TestReWOOSolverHandlerSynthesizesFromEvidence(t *testing.T) {
	w := NewReWOO(nil, nil, nil, fixedSolver{output: "final answer"})
	state, err := w.SolverHandler(context.Background(), agentcore.WorkflowState{Context: map[string]any{"rewooEvidence": []Evidence{{StepID: "1", Success: true}}}})
	require.NoError(t, err)
	require.Equal(t, "final answer", state.Reasoning)
}

func TestResolveInputSubstitutesFailedStepPlaceholder(t *testing.T) {
	resolved := resolveInput(map[string]any{"source": "#1"}, map[string]any{}, map[string]bool{"1": true})
	require.Equal(t, "[Error:1]", resolved["source"])
}

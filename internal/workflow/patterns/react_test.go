package patterns

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeagent/runtime/internal/agentcore"
)

type scriptedReasoner struct {
	decisions []ReActDecision
	calls     int
}

func (s *scriptedReasoner) NextStep(context.Context, string, []ReActStep) (ReActDecision, error) {
	i := s.calls
	s.calls++
	if i >= len(s.decisions) {
		return ReActDecision{IsComplete: true, FinalText: "out of script"}, nil
	}
	return s.decisions[i], nil
}

type stubToolExecutor struct {
	result agentcore.ToolResult
	calls  int
}

func (s *stubToolExecutor) Execute(context.Context, agentcore.ToolCall) agentcore.ToolResult {
	s.calls++
	return s.result
}

func TestReActCompletesAfterDecisionSignalsDone(t *testing.T) {
	reasoner := &scriptedReasoner{decisions: []ReActDecision{
		{Thought: "just answer directly", IsComplete: true, FinalText: "the answer"},
	}}
	exec := &stubToolExecutor{}
	r := NewReAct(reasoner, exec, 5)

	state, err := r.Handler(context.Background(), agentcore.WorkflowState{Input: "what is 2+2"})
	require.NoError(t, err)
	require.Equal(t, "the answer", state.Reasoning)
	require.Equal(t, 0, exec.calls)
}

func TestReActExecutesActionAndRecordsObservation(t *testing.T) {
	reasoner := &scriptedReasoner{decisions: []ReActDecision{
		{Thought: "need to look something up", Action: "lookup", Input: map[string]any{"q": "go"}},
		{Thought: "now I know", IsComplete: true, FinalText: "go is a language"},
	}}
	exec := &stubToolExecutor{result: agentcore.ToolResult{Success: true, Output: "a language"}}
	r := NewReAct(reasoner, exec, 5)

	state, err := r.Handler(context.Background(), agentcore.WorkflowState{Input: "what is go"})
	require.NoError(t, err)
	require.Equal(t, 1, exec.calls)
	require.Equal(t, "go is a language", state.Reasoning)
	require.Len(t, state.ToolResults, 1)
}

func TestReActStopsAtMaxStepsWithoutCompletion(t *testing.T) {
	reasoner := &scriptedReasoner{decisions: []ReActDecision{
		{Thought: "keep going", Action: "noop"},
		{Thought: "keep going", Action: "noop"},
		{Thought: "keep going", Action: "noop"},
	}}
	exec := &stubToolExecutor{result: agentcore.ToolResult{Success: true, Output: "obs"}}
	r := NewReAct(reasoner, exec, 3)

	state, err := r.Handler(context.Background(), agentcore.WorkflowState{Input: "loop forever"})
	require.NoError(t, err)
	require.Equal(t, 3, exec.calls)
	require.NotEmpty(t, state.Reasoning)
}

func TestReActPropagatesReasonerError(t *testing.T) {
	reasoner := &erroringReasoner{err: errors.New("model down")}
	r := NewReAct(reasoner, &stubToolExecutor{}, 5)

	_, err := r.Handler(context.Background(), agentcore.WorkflowState{Input: "anything"})
	require.Error(t, err)
}

type erroringReasoner struct{ err error }

func (e *erroringReasoner) NextStep(context.Context, string, []ReActStep) (ReActDecision, error) {
	return ReActDecision{}, e.err
}

func TestReActDefaultsMaxStepsWhenNonPositive(t *testing.T) {
	r := NewReAct(&scriptedReasoner{}, &stubToolExecutor{}, 0)
	require.Equal(t, DefaultMaxSteps, r.maxSteps)
}

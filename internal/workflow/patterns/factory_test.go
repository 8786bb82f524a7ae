package patterns

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeagent/runtime/internal/agentcore"
)

type echoReasoner struct{ lastUserPrompt string }

func (e *echoReasoner) Complete(_ context.Context, _ string, userPrompt string) (string, error) {
	e.lastUserPrompt = userPrompt
	return "reasoned: " + userPrompt, nil
}

func TestFactoryRoutesReActReasoningToReActHandler(t *testing.T) {
	reasoner := &scriptedReasoner{decisions: []ReActDecision{{IsComplete: true, FinalText: "done"}}}
	react := NewReAct(reasoner, &stubToolExecutor{}, 5)
	factory := Factory(Config{React: react})

	handler, ok := factory(agentcore.PatternReAct, "reasoning")
	require.True(t, ok)
	state, err := handler(context.Background(), agentcore.WorkflowState{Input: "x"})
	require.NoError(t, err)
	require.Equal(t, "done", state.Reasoning)
}

func TestFactoryRoutesReWOOStagesToReWOOHandlers(t *testing.T) {
	rewoo := NewReWOO(fixedPlanner{steps: []PlanStep{{ID: "1", Action: "noop"}}}, byNameExecutor{outputs: map[string]any{"1": "ok"}}, nil, fixedSolver{output: "solved"})
	factory := Factory(Config{ReWOO: rewoo})

	for _, stage := range []string{"planner", "executeTools", "reasoning"} {
		_, ok := factory(agentcore.PatternReWOO, stage)
		require.True(t, ok, "expected a handler for stage %q", stage)
	}
	_, ok := factory(agentcore.PatternReWOO, "sequentialThinking")
	require.False(t, ok)
}

func TestFactoryRoutesADaPTDecomposeAndPassesThroughOtherStages(t *testing.T) {
	adapt := NewADaPT(scriptedDecomposer{}, scriptedRunner{outputByID: map[string]string{"root": "done"}}, 3)
	factory := Factory(Config{ADaPT: adapt})

	_, ok := factory(agentcore.PatternADaPT, "decompose")
	require.True(t, ok)

	handler, ok := factory(agentcore.PatternADaPT, "executeTools")
	require.True(t, ok)
	state, err := handler(context.Background(), agentcore.WorkflowState{})
	require.NoError(t, err)
	require.Equal(t, agentcore.WorkflowState{}, state)
}

func TestFactoryUsesGenericReasonerForPlainPatterns(t *testing.T) {
	reasoner := &echoReasoner{}
	factory := Factory(Config{Generic: reasoner})

	handler, ok := factory(agentcore.PatternInformational, "reasoning")
	require.True(t, ok)
	_, err := handler(context.Background(), agentcore.WorkflowState{Input: "what is go"})
	require.NoError(t, err)
	require.Contains(t, reasoner.lastUserPrompt, "what is go")
}

func TestFactoryUsesPatternSpecificPromptForAnalyticalInsert(t *testing.T) {
	reasoner := &echoReasoner{}
	factory := Factory(Config{Generic: reasoner})

	handler, ok := factory(agentcore.PatternAnalytical, "sequentialThinking")
	require.True(t, ok)
	_, err := handler(context.Background(), agentcore.WorkflowState{Input: "compare trends"})
	require.NoError(t, err)
}

func TestFactorySynthesizeFallsBackToReasoningWithoutReasoner(t *testing.T) {
	factory := Factory(Config{})
	handler, ok := factory(agentcore.PatternInformational, "synthesize")
	require.True(t, ok)
	state, err := handler(context.Background(), agentcore.WorkflowState{Reasoning: "the reasoning text"})
	require.NoError(t, err)
	require.Equal(t, "the reasoning text", state.Output)
}

func TestFactoryFormatOutputPrefersExistingOutput(t *testing.T) {
	factory := Factory(Config{})
	handler, _ := factory(agentcore.PatternInformational, "formatOutput")
	state, err := handler(context.Background(), agentcore.WorkflowState{Output: "already set", Reasoning: "ignored"})
	require.NoError(t, err)
	require.Equal(t, agentcore.WorkflowState{}, state)
}

package methods

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeagent/runtime/internal/agentcore"
)

func testRule() *Rule {
	return NewRule(RuleConfig{
		PromptIndicators:   []string{"what is", "explain"},
		WorkflowIndicators: []string{"refactor", "build"},
	})
}

func TestRuleClassifiesCommand(t *testing.T) {
	r := testRule()
	result, err := r.Classify(context.Background(), "/status --verbose", nil)
	require.NoError(t, err)
	require.Equal(t, agentcore.KindCommand, result.Kind)
	require.Equal(t, 1.0, result.Confidence)
	require.Equal(t, "status", result.Extracted["name"])
	require.Equal(t, []string{"--verbose"}, result.Extracted["args"])
}

func TestRuleClassifiesWorkflow(t *testing.T) {
	r := testRule()
	result, err := r.Classify(context.Background(), "please refactor the auth package", nil)
	require.NoError(t, err)
	require.Equal(t, agentcore.KindWorkflow, result.Kind)
	require.InDelta(t, 0.7, result.Confidence, 0.0001)
}

func TestRuleClassifiesPrompt(t *testing.T) {
	r := testRule()
	result, err := r.Classify(context.Background(), "explain how channels work", nil)
	require.NoError(t, err)
	require.Equal(t, agentcore.KindPrompt, result.Kind)
	require.InDelta(t, 0.8, result.Confidence, 0.0001)
}

func TestRuleTieBreaksTowardHigherConfidence(t *testing.T) {
	r := testRule()
	result, err := r.Classify(context.Background(), "explain how to refactor this build", nil)
	require.NoError(t, err)
	// Both a prompt indicator ("explain") and a workflow indicator
	// ("refactor"/"build") match; prompt's default 0.8 beats workflow's 0.7.
	require.Equal(t, agentcore.KindPrompt, result.Kind)
}

func TestRuleDefaultsToPromptWhenNothingMatches(t *testing.T) {
	r := testRule()
	result, err := r.Classify(context.Background(), "hello there", nil)
	require.NoError(t, err)
	require.Equal(t, agentcore.KindPrompt, result.Kind)
	require.InDelta(t, 0.5, result.Confidence, 0.0001)
}

func TestRuleCustomCommandPrefix(t *testing.T) {
	r := NewRule(RuleConfig{CommandPrefix: "!"})
	result, err := r.Classify(context.Background(), "!help", nil)
	require.NoError(t, err)
	require.Equal(t, agentcore.KindCommand, result.Kind)
	require.Equal(t, "help", result.Extracted["name"])
}

package methods

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeagent/runtime/internal/agentcore"
)

func TestHybridShortCircuitsOnConfidentRule(t *testing.T) {
	rule := NewRule(RuleConfig{})
	client := &scriptedClient{replies: []string{`{"kind":"prompt","confidence":0.5,"reasoning":"should not be called"}`}}
	llm := NewLLM(LLMConfig{Client: client, ModelID: "test-model"})
	hybrid := NewHybrid(HybridConfig{Rule: rule, LLM: llm})

	result, err := hybrid.Classify(context.Background(), "/status", nil)
	require.NoError(t, err)
	require.Equal(t, agentcore.KindCommand, result.Kind)
	require.Equal(t, agentcore.MethodHybrid, result.Method)
	require.Equal(t, 0, client.calls)
}

func TestHybridFallsThroughToLLMWhenRuleUnsure(t *testing.T) {
	rule := NewRule(RuleConfig{})
	client := &scriptedClient{replies: []string{`{"kind":"workflow","confidence":0.9,"reasoning":"multi-step"}`}}
	llm := NewLLM(LLMConfig{Client: client, ModelID: "test-model"})
	hybrid := NewHybrid(HybridConfig{Rule: rule, LLM: llm})

	result, err := hybrid.Classify(context.Background(), "do something complicated", nil)
	require.NoError(t, err)
	require.Equal(t, agentcore.KindWorkflow, result.Kind)
	require.Equal(t, agentcore.MethodHybrid, result.Method)
	require.Equal(t, 1, client.calls)
	// blended confidence is max(rule=0.5 default-prompt, llm=0.9) = 0.9
	require.InDelta(t, 0.9, result.Confidence, 0.0001)
}

func TestHybridRespectsCustomThreshold(t *testing.T) {
	rule := NewRule(RuleConfig{PromptIndicators: []string{"explain"}, PromptConfidence: 0.6})
	client := &scriptedClient{replies: []string{`{"kind":"prompt","confidence":0.65,"reasoning":"ok"}`}}
	llm := NewLLM(LLMConfig{Client: client, ModelID: "test-model"})
	hybrid := NewHybrid(HybridConfig{Rule: rule, LLM: llm, ConfidenceThreshold: 0.9})

	result, err := hybrid.Classify(context.Background(), "explain this", nil)
	require.NoError(t, err)
	require.Equal(t, 1, client.calls)
	require.InDelta(t, 0.65, result.Confidence, 0.0001)
	_ = result
}

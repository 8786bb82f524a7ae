package classifier

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeagent/runtime/internal/agentcore"
	"github.com/codeagent/runtime/internal/classifier/methods"
)

type stubMethod struct {
	name     agentcore.ClassifierMethod
	result   agentcore.ClassificationResult
	err      error
	accuracy float64
	latency  int64
}

func (s stubMethod) Classify(context.Context, string, map[string]any) (agentcore.ClassificationResult, error) {
	return s.result, s.err
}
func (s stubMethod) Name() agentcore.ClassifierMethod { return s.name }
func (s stubMethod) ExpectedAccuracy() float64        { return s.accuracy }
func (s stubMethod) AverageLatencyMs() int64          { return s.latency }

func TestClassifyUsesDefaultMethod(t *testing.T) {
	c := New(Config{
		Methods: map[agentcore.ClassifierMethod]methods.Method{
			agentcore.MethodHybrid: stubMethod{name: agentcore.MethodHybrid, result: agentcore.ClassificationResult{
				Kind: agentcore.KindPrompt, Confidence: 0.9, Method: agentcore.MethodHybrid,
			}},
		},
	})

	result, err := c.Classify(context.Background(), "hello", "", nil)
	require.NoError(t, err)
	require.Equal(t, agentcore.KindPrompt, result.Kind)
	require.Equal(t, agentcore.MethodHybrid, result.Method)
}

func TestClassifyHonorsRequestedMethod(t *testing.T) {
	c := New(Config{
		Methods: map[agentcore.ClassifierMethod]methods.Method{
			agentcore.MethodHybrid: stubMethod{name: agentcore.MethodHybrid, result: agentcore.ClassificationResult{Kind: agentcore.KindPrompt, Confidence: 0.9}},
			agentcore.MethodLLM:    stubMethod{name: agentcore.MethodLLM, result: agentcore.ClassificationResult{Kind: agentcore.KindWorkflow, Confidence: 0.95}},
		},
	})

	result, err := c.Classify(context.Background(), "hello", agentcore.MethodLLM, nil)
	require.NoError(t, err)
	require.Equal(t, agentcore.KindWorkflow, result.Kind)
}

func TestClassifyFallsBackOnPrimaryFailure(t *testing.T) {
	c := New(Config{
		Methods: map[agentcore.ClassifierMethod]methods.Method{
			agentcore.MethodHybrid: stubMethod{name: agentcore.MethodHybrid, err: errors.New("provider down")},
			agentcore.MethodRule: stubMethod{name: agentcore.MethodRule, result: agentcore.ClassificationResult{
				Kind: agentcore.KindCommand, Confidence: 0.9, Method: agentcore.MethodRule, Reasoning: "matched prefix",
			}},
		},
	})

	result, err := c.Classify(context.Background(), "/status", "", nil)
	require.NoError(t, err)
	require.Equal(t, agentcore.KindCommand, result.Kind)
	require.InDelta(t, 0.7, result.Confidence, 0.0001)
	require.Contains(t, result.Reasoning, "provider down")
}

func TestClassifyFallbackConfidenceNeverGoesBelowPointOne(t *testing.T) {
	c := New(Config{
		Methods: map[agentcore.ClassifierMethod]methods.Method{
			agentcore.MethodHybrid: stubMethod{name: agentcore.MethodHybrid, err: errors.New("down")},
			agentcore.MethodRule:   stubMethod{name: agentcore.MethodRule, result: agentcore.ClassificationResult{Kind: agentcore.KindPrompt, Confidence: 0.15}},
		},
	})

	result, err := c.Classify(context.Background(), "hi", "", nil)
	require.NoError(t, err)
	require.InDelta(t, 0.1, result.Confidence, 0.0001)
}

func TestClassifyReturnsSafeDefaultWhenBothMethodsFail(t *testing.T) {
	c := New(Config{
		Methods: map[agentcore.ClassifierMethod]methods.Method{
			agentcore.MethodHybrid: stubMethod{name: agentcore.MethodHybrid, err: errors.New("primary down")},
			agentcore.MethodRule:   stubMethod{name: agentcore.MethodRule, err: errors.New("fallback down")},
		},
	})

	result, err := c.Classify(context.Background(), "/status", "", nil)
	require.NoError(t, err)
	require.Equal(t, agentcore.KindCommand, result.Kind)
	require.InDelta(t, 0.1, result.Confidence, 0.0001)

	result, err = c.Classify(context.Background(), "hello there", "", nil)
	require.NoError(t, err)
	require.Equal(t, agentcore.KindPrompt, result.Kind)
	require.InDelta(t, 0.1, result.Confidence, 0.0001)
}

func TestClassifyEscalatesUncertainResultToEnsemble(t *testing.T) {
	c := New(Config{
		EnsembleForUncertain: true,
		ConfidenceThreshold:  0.6,
		Methods: map[agentcore.ClassifierMethod]methods.Method{
			agentcore.MethodHybrid: stubMethod{name: agentcore.MethodHybrid, result: agentcore.ClassificationResult{
				Kind: agentcore.KindWorkflow, Confidence: 0.4, Method: agentcore.MethodHybrid,
			}},
			agentcore.MethodEnsemble: stubMethod{name: agentcore.MethodEnsemble, result: agentcore.ClassificationResult{
				Kind: agentcore.KindWorkflow, Confidence: 0.85, Method: agentcore.MethodEnsemble,
			}},
		},
	})

	result, err := c.Classify(context.Background(), "ambiguous", "", nil)
	require.NoError(t, err)
	require.Equal(t, agentcore.MethodEnsemble, result.Method)
	require.InDelta(t, 0.85, result.Confidence, 0.0001)
	require.Equal(t, "hybrid", result.Metadata["escalated_from"])
	require.InDelta(t, 0.4, result.Metadata["original_confidence"].(float64), 0.0001)
}

func TestClassifyDoesNotEscalateWhenConfidenceIsSufficient(t *testing.T) {
	c := New(Config{
		EnsembleForUncertain: true,
		Methods: map[agentcore.ClassifierMethod]methods.Method{
			agentcore.MethodHybrid: stubMethod{name: agentcore.MethodHybrid, result: agentcore.ClassificationResult{
				Kind: agentcore.KindWorkflow, Confidence: 0.95, Method: agentcore.MethodHybrid,
			}},
			agentcore.MethodEnsemble: stubMethod{name: agentcore.MethodEnsemble, err: errors.New("should not be called")},
		},
	})

	result, err := c.Classify(context.Background(), "clear workflow request", "", nil)
	require.NoError(t, err)
	require.Equal(t, agentcore.MethodHybrid, result.Method)
}

func TestClassifyFallsBackToOriginalWhenEscalationFails(t *testing.T) {
	c := New(Config{
		EnsembleForUncertain: true,
		ConfidenceThreshold:  0.6,
		Methods: map[agentcore.ClassifierMethod]methods.Method{
			agentcore.MethodHybrid: stubMethod{name: agentcore.MethodHybrid, result: agentcore.ClassificationResult{
				Kind: agentcore.KindPrompt, Confidence: 0.3, Method: agentcore.MethodHybrid,
			}},
			agentcore.MethodEnsemble: stubMethod{name: agentcore.MethodEnsemble, err: errors.New("down")},
		},
	})

	result, err := c.Classify(context.Background(), "unclear", "", nil)
	require.NoError(t, err)
	require.Equal(t, agentcore.MethodHybrid, result.Method)
	require.InDelta(t, 0.3, result.Confidence, 0.0001)
}

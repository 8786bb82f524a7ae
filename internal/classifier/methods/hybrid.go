package methods

import (
	"context"

	"github.com/codeagent/runtime/internal/agentcore"
)

// HybridConfig configures the Hybrid method.
type HybridConfig struct {
	Rule                *Rule
	LLM                 *LLM
	ConfidenceThreshold float64 // defaults to 0.8
}

// Hybrid runs Rule first; if Rule's confidence clears ConfidenceThreshold it
// returns that result outright (cheap, no model call). Otherwise it falls
// through to LLM and returns the LLM result with confidence blended to
// max(rule, llm), per spec.md §4.7.
type Hybrid struct {
	rule      *Rule
	llm       *LLM
	threshold float64
}

// NewHybrid builds a Hybrid method from cfg.
func NewHybrid(cfg HybridConfig) *Hybrid {
	threshold := cfg.ConfidenceThreshold
	if threshold == 0 {
		threshold = 0.8
	}
	return &Hybrid{rule: cfg.Rule, llm: cfg.LLM, threshold: threshold}
}

func (h *Hybrid) Name() agentcore.ClassifierMethod { return agentcore.MethodHybrid }
func (h *Hybrid) ExpectedAccuracy() float64        { return 0.88 }
func (h *Hybrid) AverageLatencyMs() int64          { return 200 }

func (h *Hybrid) Classify(ctx context.Context, text string, reqCtx map[string]any) (agentcore.ClassificationResult, error) {
	ruleResult, err := h.rule.Classify(ctx, text, reqCtx)
	if err != nil {
		return agentcore.ClassificationResult{}, err
	}
	if ruleResult.Confidence >= h.threshold {
		ruleResult.Method = agentcore.MethodHybrid
		return ruleResult, nil
	}

	llmResult, err := h.llm.Classify(ctx, text, reqCtx)
	if err != nil {
		return agentcore.ClassificationResult{}, err
	}
	llmResult.Method = agentcore.MethodHybrid
	llmResult.Confidence = agentcore.ClampConfidence(max(ruleResult.Confidence, llmResult.Confidence))
	return llmResult, nil
}

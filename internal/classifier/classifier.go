// Package classifier implements the Input Classifier (C8): it selects a
// classification Method (C7) to run, falls back to a second method on
// failure, and escalates to Ensemble when the chosen method is uncertain.
//
// Grounded on the teacher's planner retry/fallback discipline
// (runtime/agent/planner.Planner and retryhint_provider.go: a primary
// strategy is attempted first, a secondary strategy absorbs its failure,
// and the caller is always left with a usable result rather than a bare
// error) and features/policy/basic/engine.go's declarative Config+defaults
// idiom, reused throughout C7.
package classifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/codeagent/runtime/internal/agentcore"
	"github.com/codeagent/runtime/internal/classifier/methods"
)

// Config configures the Classifier, per spec.md §4.8.
type Config struct {
	// Methods maps a classifier method name to its implementation. Must
	// include at least DefaultMethod and FallbackMethod.
	Methods map[agentcore.ClassifierMethod]methods.Method

	// DefaultMethod is used when a Classify call doesn't request one;
	// defaults to MethodHybrid.
	DefaultMethod agentcore.ClassifierMethod
	// FallbackMethod is tried when DefaultMethod (or a requested method)
	// fails; defaults to MethodRule.
	FallbackMethod agentcore.ClassifierMethod

	// CommandPrefix is used by the safe-default path when both the primary
	// and fallback methods fail; defaults to "/".
	CommandPrefix string

	// EnsembleForUncertain, when true, re-runs classification with
	// MethodEnsemble whenever the chosen non-ensemble method's confidence
	// falls below ConfidenceThreshold.
	EnsembleForUncertain bool
	// ConfidenceThreshold gates escalation; defaults to 0.6.
	ConfidenceThreshold float64
}

func (c Config) withDefaults() Config {
	if c.DefaultMethod == "" {
		c.DefaultMethod = agentcore.MethodHybrid
	}
	if c.FallbackMethod == "" {
		c.FallbackMethod = agentcore.MethodRule
	}
	if c.CommandPrefix == "" {
		c.CommandPrefix = "/"
	}
	if c.ConfidenceThreshold == 0 {
		c.ConfidenceThreshold = 0.6
	}
	return c
}

// Classifier is the Input Classifier component (C8).
type Classifier struct {
	cfg Config
}

// New builds a Classifier from cfg, applying spec.md §4.8 defaults.
func New(cfg Config) *Classifier {
	return &Classifier{cfg: cfg.withDefaults()}
}

// Classify selects requestedMethod (or the configured default), falls back
// on failure, and escalates to ensemble when the result is uncertain.
func (c *Classifier) Classify(ctx context.Context, text string, requestedMethod agentcore.ClassifierMethod, reqCtx map[string]any) (agentcore.ClassificationResult, error) {
	primary := requestedMethod
	if primary == "" {
		primary = c.cfg.DefaultMethod
	}

	result, err := c.run(ctx, primary, text, reqCtx)
	if err != nil {
		fallbackResult, fallbackErr := c.run(ctx, c.cfg.FallbackMethod, text, reqCtx)
		if fallbackErr != nil {
			return c.safeDefault(text, err, fallbackErr), nil
		}
		fallbackResult.Confidence = agentcore.ClampConfidence(max(0.1, fallbackResult.Confidence-0.2))
		fallbackResult.Reasoning = fmt.Sprintf("%s failed (%v); used %s as fallback: %s", primary, err, c.cfg.FallbackMethod, fallbackResult.Reasoning)
		result = fallbackResult
	}

	if c.cfg.EnsembleForUncertain && result.Method != agentcore.MethodEnsemble && result.Confidence < c.cfg.ConfidenceThreshold {
		return c.escalate(ctx, text, reqCtx, result)
	}

	return result, nil
}

func (c *Classifier) run(ctx context.Context, name agentcore.ClassifierMethod, text string, reqCtx map[string]any) (agentcore.ClassificationResult, error) {
	method, ok := c.cfg.Methods[name]
	if !ok {
		return agentcore.ClassificationResult{}, fmt.Errorf("classifier: method %q is not registered", name)
	}
	return method.Classify(ctx, text, reqCtx)
}

// safeDefault is returned when both the primary and fallback methods fail:
// a command prefix match yields KindCommand, everything else yields
// KindPrompt, both at confidence 0.1, per spec.md §4.8.
func (c *Classifier) safeDefault(text string, primaryErr, fallbackErr error) agentcore.ClassificationResult {
	kind := agentcore.KindPrompt
	if strings.HasPrefix(strings.TrimSpace(text), c.cfg.CommandPrefix) {
		kind = agentcore.KindCommand
	}
	return agentcore.ClassificationResult{
		Kind:       kind,
		Confidence: 0.1,
		Method:     c.cfg.FallbackMethod,
		Reasoning:  fmt.Sprintf("all classification methods failed (primary: %v, fallback: %v); used safe default", primaryErr, fallbackErr),
	}
}

// escalate re-runs classification with the ensemble method and annotates the
// result with escalation provenance, per spec.md §4.8.
func (c *Classifier) escalate(ctx context.Context, text string, reqCtx map[string]any, original agentcore.ClassificationResult) (agentcore.ClassificationResult, error) {
	escalated, err := c.run(ctx, agentcore.MethodEnsemble, text, reqCtx)
	if err != nil {
		// The ensemble escalation itself failed; the original (uncertain)
		// result is still the best answer available.
		return original, nil
	}
	if escalated.Metadata == nil {
		escalated.Metadata = map[string]any{}
	}
	escalated.Metadata["escalated_from"] = string(original.Method)
	escalated.Metadata["original_confidence"] = original.Confidence
	return escalated, nil
}

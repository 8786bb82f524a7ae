// Package methods implements the pluggable classification strategies (C7)
// that back the Input Classifier (C8): Rule, LLM, Hybrid, and Ensemble.
//
// Grounded on the teacher's planner.Planner contract (structured,
// provider-backed decisions with a retry-on-parse-failure discipline, see
// LLM below) and on features/policy/basic's declarative options+engine
// shape (Rule's configurable indicator lists).
package methods

import (
	"context"

	"github.com/codeagent/runtime/internal/agentcore"
)

// Method is a pluggable classification strategy, per spec.md §4.7. Every
// method exposes static metadata (Name/ExpectedAccuracy/AverageLatencyMs)
// alongside the classification operation itself.
type Method interface {
	Classify(ctx context.Context, text string, reqCtx map[string]any) (agentcore.ClassificationResult, error)
	Name() agentcore.ClassifierMethod
	ExpectedAccuracy() float64
	AverageLatencyMs() int64
}

package methods

import (
	"context"
	"strings"

	"github.com/codeagent/runtime/internal/agentcore"
)

// RuleConfig configures the deterministic Rule method, per spec.md §4.7.
type RuleConfig struct {
	// CommandPrefix marks command input; defaults to "/".
	CommandPrefix string
	// PromptIndicators are case-insensitive keywords that favor KindPrompt.
	PromptIndicators []string
	// WorkflowIndicators are case-insensitive keywords that favor KindWorkflow.
	WorkflowIndicators []string
	// CommandConfidence is returned for a recognized command; defaults to 1.0.
	CommandConfidence float64
	// PromptConfidence is returned when a prompt indicator matches; defaults to 0.8.
	PromptConfidence float64
	// WorkflowConfidence is returned when a workflow indicator matches; defaults to 0.7.
	WorkflowConfidence float64
}

func (c RuleConfig) withDefaults() RuleConfig {
	if c.CommandPrefix == "" {
		c.CommandPrefix = "/"
	}
	if c.CommandConfidence == 0 {
		c.CommandConfidence = 1.0
	}
	if c.PromptConfidence == 0 {
		c.PromptConfidence = 0.8
	}
	if c.WorkflowConfidence == 0 {
		c.WorkflowConfidence = 0.7
	}
	return c
}

// Rule is the deterministic classifier method: no model calls, a command
// prefix check followed by keyword matching against configurable indicator
// lists. Ties between a matching prompt indicator and a matching workflow
// indicator break toward whichever kind has the higher configured
// confidence threshold (command > prompt > workflow by default).
type Rule struct {
	cfg RuleConfig
}

// NewRule builds a Rule method from cfg, applying spec.md §4.7 defaults for
// any zero-valued field.
func NewRule(cfg RuleConfig) *Rule {
	return &Rule{cfg: cfg.withDefaults()}
}

func (r *Rule) Name() agentcore.ClassifierMethod { return agentcore.MethodRule }
func (r *Rule) ExpectedAccuracy() float64        { return 0.75 }
func (r *Rule) AverageLatencyMs() int64          { return 1 }

// Classify never returns an error: the rule method has no external
// dependency that can fail.
func (r *Rule) Classify(_ context.Context, text string, _ map[string]any) (agentcore.ClassificationResult, error) {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, r.cfg.CommandPrefix) {
		name, args := parseCommandHead(trimmed, r.cfg.CommandPrefix)
		return agentcore.ClassificationResult{
			Kind:       agentcore.KindCommand,
			Confidence: agentcore.ClampConfidence(r.cfg.CommandConfidence),
			Method:     agentcore.MethodRule,
			Reasoning:  "input begins with the command prefix",
			Extracted:  map[string]any{"name": name, "args": args},
		}, nil
	}

	lower := strings.ToLower(trimmed)
	matchedWorkflow := matchesAny(lower, r.cfg.WorkflowIndicators)
	matchedPrompt := matchesAny(lower, r.cfg.PromptIndicators)

	switch {
	case matchedWorkflow && matchedPrompt:
		// Tie: the higher confidence threshold wins, per spec.md §4.7.
		if r.cfg.PromptConfidence >= r.cfg.WorkflowConfidence {
			return ruleResult(agentcore.KindPrompt, r.cfg.PromptConfidence, "prompt and workflow indicators both matched; prompt threshold is higher"), nil
		}
		return ruleResult(agentcore.KindWorkflow, r.cfg.WorkflowConfidence, "prompt and workflow indicators both matched; workflow threshold is higher"), nil
	case matchedWorkflow:
		return ruleResult(agentcore.KindWorkflow, r.cfg.WorkflowConfidence, "matched a workflow indicator keyword"), nil
	case matchedPrompt:
		return ruleResult(agentcore.KindPrompt, r.cfg.PromptConfidence, "matched a prompt indicator keyword"), nil
	default:
		return ruleResult(agentcore.KindPrompt, 0.5, "no indicator matched; defaulting to prompt"), nil
	}
}

func ruleResult(kind agentcore.HandlerKind, confidence float64, reasoning string) agentcore.ClassificationResult {
	return agentcore.ClassificationResult{
		Kind:       kind,
		Confidence: agentcore.ClampConfidence(confidence),
		Method:     agentcore.MethodRule,
		Reasoning:  reasoning,
	}
}

func matchesAny(lower string, indicators []string) bool {
	for _, ind := range indicators {
		if ind == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(ind)) {
			return true
		}
	}
	return false
}

// parseCommandHead splits "/<name>( <token>)*" into a name and a positional
// argument list, mirroring the tokenization the Command Handler (C9) applies
// to the same input shape.
func parseCommandHead(trimmed, prefix string) (string, []string) {
	body := strings.TrimPrefix(trimmed, prefix)
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], fields[1:]
}

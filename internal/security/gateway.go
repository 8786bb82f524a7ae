package security

import (
	"fmt"
	"time"

	"github.com/codeagent/runtime/internal/agentcore"
	"github.com/codeagent/runtime/internal/result"
)

// ToolCategory maps a tool name to the rate-limit policy category that
// governs it. Unmapped tools fall back to the "default" category.
type ToolCategory func(toolName string) string

// Gateway composes the Security Gateway's three stages — rate limiting,
// input sanitisation, output filtering — applied in that order on every
// tool call per spec.md §4.3, recording a Violation for any stage that
// blocks or mutates the call.
type Gateway struct {
	limiter    *RateLimiter
	sanitizer  *Sanitizer
	filter     *OutputFilter
	violations *ViolationStore
	category   ToolCategory
	now        func() time.Time
}

// GatewayOption customizes a Gateway at construction time.
type GatewayOption func(*Gateway)

// WithToolCategory overrides the default "every tool maps to 'default'"
// categorisation.
func WithToolCategory(fn ToolCategory) GatewayOption {
	return func(g *Gateway) { g.category = fn }
}

// WithViolationCapacity overrides the default 10,000-entry violation
// history bound.
func WithViolationCapacity(n int) GatewayOption {
	return func(g *Gateway) { g.violations = NewViolationStore(n) }
}

// NewGateway constructs a Gateway over the given rate-limit policies.
func NewGateway(policies map[string]Policy, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		limiter:    NewRateLimiter(policies),
		sanitizer:  NewSanitizer(),
		filter:     NewOutputFilter(),
		violations: NewViolationStore(0),
		category:   func(string) string { return "default" },
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CheckInput runs rate limiting then input sanitisation for a pending
// ToolCall. On success it returns the (possibly sanitized) input text to
// execute with; on failure the call must not be dispatched to the tool.
func (g *Gateway) CheckInput(call agentcore.ToolCall, rawInput string) (string, error) {
	category := g.category(call.ToolName)
	if err := g.limiter.Allow(call.Context.SessionID, call.ToolName, category); err != nil {
		g.recordLimitViolation(call, err)
		return "", err
	}

	res := g.sanitizer.Sanitize(rawInput)
	if res.Blocked {
		g.record(call, "input_blocked", agentcore.ViolationHigh,
			fmt.Sprintf("blocked by rule %q", res.RuleName), rawInput)
		return "", result.New(result.CategoryBusiness, result.CodeInputBlocked,
			fmt.Sprintf("input blocked by rule %q", res.RuleName)).
			WithContext("rule", res.RuleName)
	}
	if res.Sanitized {
		g.record(call, "input_sanitized", agentcore.ViolationLow,
			fmt.Sprintf("rules fired: %v", res.FiredRules), rawInput)
	}
	return res.Output, nil
}

// CheckOutput runs output filtering on a tool's result text before it is
// returned to the caller.
func (g *Gateway) CheckOutput(call agentcore.ToolCall, rawOutput string) (string, error) {
	res := g.filter.Filter(rawOutput)
	if res.Blocked {
		g.record(call, "output_blocked", agentcore.ViolationCritical,
			fmt.Sprintf("blocked by rule %q", res.RuleName), rawOutput)
		return "", result.New(result.CategoryBusiness, result.CodeOutputBlocked,
			fmt.Sprintf("output blocked by rule %q", res.RuleName)).
			WithContext("rule", res.RuleName)
	}
	if res.Redacted {
		g.record(call, "output_redacted", agentcore.ViolationMedium,
			fmt.Sprintf("rules fired: %v", res.FiredRules), rawOutput)
	}
	return res.Output, nil
}

// Violations exposes the gateway's recorded violation history.
func (g *Gateway) Violations() *ViolationStore {
	return g.violations
}

func (g *Gateway) recordLimitViolation(call agentcore.ToolCall, err error) {
	level := agentcore.ViolationMedium
	typ := "rate_limit_exceeded"
	if rerr, ok := result.As(err); ok && rerr.Code == result.CodeRateLimitBlocked {
		typ = "rate_limit_blocked"
		level = agentcore.ViolationLow
	}
	g.record(call, typ, level, err.Error(), "")
}

func (g *Gateway) record(call agentcore.ToolCall, typ string, level agentcore.ViolationLevel, description, input string) {
	g.violations.Record(agentcore.Violation{
		Timestamp:   g.now(),
		SessionID:   call.Context.SessionID,
		ToolName:    call.ToolName,
		Type:        typ,
		Level:       level,
		Description: description,
		Input:       input,
	})
}

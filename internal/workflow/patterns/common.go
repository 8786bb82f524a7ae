// Package patterns implements the Pattern Runners (C12): ReAct, ReWOO, and
// ADaPT, plus a generic single-call reasoning path shared by the five
// patterns spec.md names no dedicated runner for (analytical, creative,
// problem-solving, informational, conversational). Factory wires all eight
// into a single engine.NodeFactory so internal/workflow/engine never needs
// to know any pattern's internals.
//
// Grounded on the teacher's runtime/agent/runtime package: workflow_loop.go's
// step-bound retry loop for ReAct, execute_tool_calls_* wave/dependency
// batching for ReWOO's worker phase, and child_tracker.go's discovered-set
// bookkeeping generalized into ADaPT's task tree.
package patterns

import (
	"context"
	"fmt"

	"github.com/codeagent/runtime/internal/agentcore"
)

// ToolExecutor runs a single ToolCall; satisfied by *executor.Executor. Kept
// narrow so this package never imports internal/executor directly.
type ToolExecutor interface {
	Execute(ctx context.Context, call agentcore.ToolCall) agentcore.ToolResult
}

// Reasoner produces a short text completion from a prompt; the generic
// reasoning/synthesize stages and every pattern-specific runner in this
// package delegate their model calls through it rather than importing
// modelprovider directly, mirroring C9/C10's AgentStatus/LLMExtractor
// decoupling.
type Reasoner interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// toolResultText renders a ToolResult as the short text a reasoner prompt or
// a ReAct observation needs, favoring Output when present.
func toolResultText(res agentcore.ToolResult) string {
	if !res.Success {
		if res.Error != nil {
			return "error: " + res.Error.Error()
		}
		return "error: tool call failed"
	}
	switch v := res.Output.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

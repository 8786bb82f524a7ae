package patterns

import (
	"context"
	"fmt"

	"github.com/codeagent/runtime/internal/agentcore"
)

// genericPrompts names the system prompt framing for each pattern's
// "reasoning" stage, for patterns with no dedicated runner (informational,
// conversational) or only a differently-framed single reasoning call
// (analytical, creative, problem-solving via their patternInsert stage).
var genericPrompts = map[string]string{
	"reasoning":          "Reason step by step over the input and any tool results, then state your conclusion.",
	"sequentialThinking": "Work through this analytically: break the question into sub-questions, reason over each, then combine.",
	"ideation":           "Generate several creative options before settling on the strongest one.",
	"diagnostics":        "Diagnose the underlying cause before proposing a fix.",
}

// Config wires every pattern runner's dependencies plus the generic
// Reasoner used by patterns with no dedicated runner.
type Config struct {
	Generic  Reasoner
	Executor ToolExecutor
	React    *ReAct
	ReWOO    *ReWOO
	ADaPT    *ADaPT
}

// Factory returns a function matching internal/workflow/engine's
// NodeFactory signature (func(pattern, stage) (agentcore.NodeHandler, bool))
// without this package importing internal/workflow/engine, avoiding a
// needless dependency in either direction. cmd/agent's buildApp assigns the
// result directly to engine.Config.Factory.
func Factory(cfg Config) func(agentcore.Pattern, string) (agentcore.NodeHandler, bool) {
	return func(pattern agentcore.Pattern, stage string) (agentcore.NodeHandler, bool) {
		if handler, ok := patternSpecificHandler(cfg, pattern, stage); ok {
			return handler, true
		}
		return genericHandler(cfg, stage)
	}
}

func patternSpecificHandler(cfg Config, pattern agentcore.Pattern, stage string) (agentcore.NodeHandler, bool) {
	switch pattern {
	case agentcore.PatternReAct:
		if stage == "reasoning" && cfg.React != nil {
			return cfg.React.Handler, true
		}
	case agentcore.PatternReWOO:
		switch stage {
		case "planner":
			if cfg.ReWOO != nil {
				return cfg.ReWOO.PlannerHandler, true
			}
		case "executeTools":
			if cfg.ReWOO != nil {
				return cfg.ReWOO.WorkerHandler, true
			}
		case "reasoning":
			if cfg.ReWOO != nil {
				return cfg.ReWOO.SolverHandler, true
			}
		}
	case agentcore.PatternADaPT:
		switch stage {
		case "decompose":
			if cfg.ADaPT != nil {
				return cfg.ADaPT.Handler, true
			}
		case "executeTools", "reasoning":
			// ADaPT's Handler already executed every leaf task recursively;
			// these canonical stages pass the accumulated state through.
			return passthrough, true
		}
	}
	return nil, false
}

func genericHandler(cfg Config, stage string) (agentcore.NodeHandler, bool) {
	switch stage {
	case "processInput":
		return passthrough, true
	case "enrichContext":
		return passthrough, true
	case "executeTools":
		return executeRequestedTools(cfg.Executor), true
	case "synthesize":
		return synthesizeOutput(cfg.Generic), true
	case "formatOutput":
		return formatOutput, true
	}
	if prompt, ok := genericPrompts[stage]; ok && cfg.Generic != nil {
		return genericReasoning(cfg.Generic, prompt), true
	}
	return nil, false
}

// passthrough is the no-op handler for stages a pattern doesn't need to
// alter the state at (processInput/enrichContext parsing already happened
// upstream of the engine; ADaPT's Handler already did its own tool work).
func passthrough(_ context.Context, _ agentcore.WorkflowState) (agentcore.WorkflowState, error) {
	return agentcore.WorkflowState{}, nil
}

// executeRequestedTools runs any ToolCalls a caller staged in
// state.Context["requestedToolCalls"] ahead of the workflow, for every
// pattern whose executeTools stage has no dedicated handler (all but rewoo
// and adapt); react also invokes tools from inside its reasoning loop.
func executeRequestedTools(exec ToolExecutor) agentcore.NodeHandler {
	return func(ctx context.Context, state agentcore.WorkflowState) (agentcore.WorkflowState, error) {
		calls, _ := state.Context["requestedToolCalls"].([]agentcore.ToolCall)
		if len(calls) == 0 {
			return agentcore.WorkflowState{}, nil
		}
		if exec == nil {
			return agentcore.WorkflowState{}, fmt.Errorf("patterns: requested tool calls but no executor configured")
		}
		results := make([]agentcore.ToolResult, 0, len(calls))
		for _, call := range calls {
			results = append(results, exec.Execute(ctx, call))
		}
		return agentcore.WorkflowState{ToolResults: results}, nil
	}
}

func genericReasoning(reasoner Reasoner, systemPrompt string) agentcore.NodeHandler {
	return func(ctx context.Context, state agentcore.WorkflowState) (agentcore.WorkflowState, error) {
		text, err := reasoner.Complete(ctx, systemPrompt, userPromptFor(state))
		if err != nil {
			return agentcore.WorkflowState{}, fmt.Errorf("patterns: reasoning: %w", err)
		}
		return agentcore.WorkflowState{Reasoning: text}, nil
	}
}

func synthesizeOutput(reasoner Reasoner) agentcore.NodeHandler {
	return func(ctx context.Context, state agentcore.WorkflowState) (agentcore.WorkflowState, error) {
		if state.Reasoning != "" && reasoner == nil {
			return agentcore.WorkflowState{Output: state.Reasoning}, nil
		}
		if reasoner == nil {
			return agentcore.WorkflowState{}, fmt.Errorf("patterns: synthesize: no reasoner configured")
		}
		text, err := reasoner.Complete(ctx, "Write the final answer for the user from the reasoning above.", state.Reasoning)
		if err != nil {
			return agentcore.WorkflowState{}, fmt.Errorf("patterns: synthesize: %w", err)
		}
		return agentcore.WorkflowState{Output: text}, nil
	}
}

func formatOutput(_ context.Context, state agentcore.WorkflowState) (agentcore.WorkflowState, error) {
	if state.Output != "" {
		return agentcore.WorkflowState{}, nil
	}
	return agentcore.WorkflowState{Output: state.Reasoning}, nil
}

func userPromptFor(state agentcore.WorkflowState) string {
	if len(state.ToolResults) == 0 {
		return state.Input
	}
	prompt := state.Input + "\n\nTool results:"
	for _, r := range state.ToolResults {
		prompt += "\n- " + r.ToolName + ": " + toolResultText(r)
	}
	return prompt
}

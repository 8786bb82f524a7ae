package patterns

import (
	"context"
	"fmt"
	"strings"

	"github.com/codeagent/runtime/internal/agentcore"
)

// DefaultMaxSteps bounds a ReAct loop absent an explicit override, per
// spec.md §4.12.
const DefaultMaxSteps = 10

// ReActStep is one think/act/observe/decide iteration, appended to the
// running history a ReActReasoner sees on its next call.
type ReActStep struct {
	Thought     string
	Action      string
	Input       string
	Observation string
}

// ReActDecision is what a ReActReasoner returns for one iteration: a
// thought, an optional tool Action/Input (Action empty means "no tool call
// this step"), and whether the loop should stop after this step.
type ReActDecision struct {
	Thought    string
	Action     string
	Input      map[string]any
	IsComplete bool
	FinalText  string
}

// ReActReasoner decides the next think/act/decide step given the running
// history; kept narrow so this package stays decoupled from modelprovider.
type ReActReasoner interface {
	NextStep(ctx context.Context, task string, history []ReActStep) (ReActDecision, error)
}

// ReAct runs the think->act->observe->decide loop bounded by maxSteps,
// grounded on the teacher's workflow_loop.go: a plain Go for loop over named
// phases rather than a graph with cycles, even where the engine would allow
// one (agentcore.AcyclicPatterns excludes react). Completion happens when
// the reasoner sets IsComplete or the step budget is exhausted, per
// spec.md §4.12.
type ReAct struct {
	reasoner ReActReasoner
	executor ToolExecutor
	maxSteps int
}

// NewReAct builds a ReAct runner. maxSteps<=0 defaults to DefaultMaxSteps.
func NewReAct(reasoner ReActReasoner, executor ToolExecutor, maxSteps int) *ReAct {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	return &ReAct{reasoner: reasoner, executor: executor, maxSteps: maxSteps}
}

// Handler is the engine.NodeHandler for the "reasoning" stage of
// agentcore.PatternReAct; it runs the full bounded loop in one node.
func (r *ReAct) Handler(ctx context.Context, state agentcore.WorkflowState) (agentcore.WorkflowState, error) {
	var (
		history     []ReActStep
		toolResults []agentcore.ToolResult
		steps       []string
		finalText   string
	)

	for i := 0; i < r.maxSteps; i++ {
		if err := ctx.Err(); err != nil {
			return agentcore.WorkflowState{}, fmt.Errorf("react: cancelled at step %d: %w", i, err)
		}
		decision, err := r.reasoner.NextStep(ctx, state.Input, history)
		if err != nil {
			return agentcore.WorkflowState{}, fmt.Errorf("react: step %d: next step: %w", i, err)
		}
		steps = append(steps, fmt.Sprintf("react:think:%d", i))

		if decision.IsComplete {
			finalText = decision.FinalText
			steps = append(steps, fmt.Sprintf("react:decide:%d:complete", i))
			break
		}

		step := ReActStep{Thought: decision.Thought}
		if decision.Action != "" {
			call := agentcore.ToolCall{
				CallID:   fmt.Sprintf("react-%d", i),
				ToolName: decision.Action,
				Input:    decision.Input,
				Context:  requestContextOf(state),
			}
			result := r.executor.Execute(ctx, call)
			toolResults = append(toolResults, result)
			step.Action = decision.Action
			step.Input = fmt.Sprint(decision.Input)
			step.Observation = toolResultText(result)
			steps = append(steps, fmt.Sprintf("react:act:%d:%s", i, decision.Action))
		}
		history = append(history, step)
	}

	if finalText == "" {
		finalText = summarizeHistory(history)
	}

	return agentcore.WorkflowState{
		ToolResults: toolResults,
		Reasoning:   finalText,
		Meta:        agentcore.WorkflowMeta{Steps: steps},
	}, nil
}

func summarizeHistory(history []ReActStep) string {
	if len(history) == 0 {
		return ""
	}
	var b strings.Builder
	for _, step := range history {
		if step.Observation != "" {
			b.WriteString(step.Observation)
			b.WriteString(" ")
		}
	}
	return strings.TrimSpace(b.String())
}

func requestContextOf(state agentcore.WorkflowState) agentcore.RequestContext {
	if sessionID, ok := state.Context["sessionId"].(string); ok {
		return agentcore.RequestContext{SessionID: sessionID}
	}
	return agentcore.RequestContext{}
}

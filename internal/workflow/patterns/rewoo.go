package patterns

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/codeagent/runtime/internal/agentcore"
)

// PlanStep is one unit of work a ReWOOPlanner produces. ID must be unique
// within a plan; cycles among Dependencies are forbidden, per spec.md §4.12.
type PlanStep struct {
	ID           string
	Action       string
	Input        map[string]any
	Description  string
	Dependencies []string
}

// ReWOOPlanner produces the step list for the planner phase.
type ReWOOPlanner interface {
	Plan(ctx context.Context, task string) ([]PlanStep, error)
}

// Evidence is the worker phase's record for one executed PlanStep.
type Evidence struct {
	StepID  string
	Action  string
	Success bool
	Output  any
	Error   string
}

// ReWOOSolver synthesizes the final output from the worker phase's evidence.
type ReWOOSolver interface {
	Solve(ctx context.Context, task string, evidence []Evidence) (string, error)
}

// ConcurrencySafety reports whether a tool is safe to invoke concurrently
// with itself; satisfied by cmd/agent's registrySafety adapter over
// *registry.Registry (whose PartitionByConcurrency answers the same question
// for a batch, but ReWOO needs it per-tool as
// waves are computed dynamically from dependency completion, not known
// up front). Optional: a nil ConcurrencySafety treats every tool as unsafe
// and runs waves sequentially.
type ConcurrencySafety interface {
	IsConcurrencySafe(toolName string) bool
}

// ReWOO runs the planner -> worker -> solver pipeline, per spec.md §4.12.
type ReWOO struct {
	planner  ReWOOPlanner
	executor ToolExecutor
	safety   ConcurrencySafety
	solver   ReWOOSolver
}

// NewReWOO builds a ReWOO runner. safety may be nil.
func NewReWOO(planner ReWOOPlanner, executor ToolExecutor, safety ConcurrencySafety, solver ReWOOSolver) *ReWOO {
	return &ReWOO{planner: planner, executor: executor, safety: safety, solver: solver}
}

// PlannerHandler is the engine.NodeHandler for ReWOO's "planner" insert
// stage: it asks the planner for the step list and validates it (unique
// IDs, no dependency cycles) before stashing it in state.Context for the
// worker phase.
func (w *ReWOO) PlannerHandler(ctx context.Context, state agentcore.WorkflowState) (agentcore.WorkflowState, error) {
	steps, err := w.planner.Plan(ctx, state.Input)
	if err != nil {
		return agentcore.WorkflowState{}, fmt.Errorf("rewoo: plan: %w", err)
	}
	if err := validatePlan(steps); err != nil {
		return agentcore.WorkflowState{}, fmt.Errorf("rewoo: %w", err)
	}
	return agentcore.WorkflowState{
		Context: map[string]any{"rewooPlan": steps},
		Meta:    agentcore.WorkflowMeta{Steps: []string{"rewoo:plan"}},
	}, nil
}

// WorkerHandler is the engine.NodeHandler for ReWOO's "executeTools" stage:
// it executes ready steps (all dependencies completed) in waves,
// parallelising concurrent-safe tool calls within a wave. A step's failure
// records evidence with Success=false; dependents still execute, reading
// "[Error:stepId]" wherever their Input referenced the failed step's output.
func (w *ReWOO) WorkerHandler(ctx context.Context, state agentcore.WorkflowState) (agentcore.WorkflowState, error) {
	steps, ok := state.Context["rewooPlan"].([]PlanStep)
	if !ok {
		return agentcore.WorkflowState{}, fmt.Errorf("rewoo: worker stage ran without a planner stage having populated rewooPlan")
	}

	byID := make(map[string]PlanStep, len(steps))
	for _, s := range steps {
		byID[s.ID] = s
	}

	done := map[string]bool{}
	outputs := map[string]any{}
	failed := map[string]bool{}
	var evidence []Evidence
	var evidenceMu sync.Mutex
	var toolResults []agentcore.ToolResult
	var stepLog []string

	remaining := len(steps)
	for remaining > 0 {
		ready := readySteps(steps, done)
		if len(ready) == 0 {
			return agentcore.WorkflowState{}, fmt.Errorf("rewoo: no ready steps but %d remain; dependency graph is unsatisfiable", remaining)
		}

		var wg sync.WaitGroup
		for _, step := range ready {
			step := step
			run := func() {
				defer wg.Done()
				evidenceMu.Lock()
				resolved := resolveInput(step.Input, outputs, failed)
				evidenceMu.Unlock()

				call := agentcore.ToolCall{CallID: step.ID, ToolName: step.Action, Input: resolved}
				result := w.executor.Execute(ctx, call)

				evidenceMu.Lock()
				toolResults = append(toolResults, result)
				evidence = append(evidence, Evidence{
					StepID:  step.ID,
					Action:  step.Action,
					Success: result.Success,
					Output:  result.Output,
					Error:   errText(result.Error),
				})
				stepLog = append(stepLog, fmt.Sprintf("rewoo:work:%s", step.ID))
				// outputs/failed are read by resolveInput above and must stay
				// under the same lock as every other access: two
				// concurrency-safe steps in one wave read/write these maps
				// concurrently otherwise, which panics ("concurrent map
				// read and map write" / "concurrent map writes").
				if result.Success {
					outputs[step.ID] = result.Output
				} else {
					failed[step.ID] = true
				}
				evidenceMu.Unlock()
			}
			if w.safety != nil && w.safety.IsConcurrencySafe(step.Action) {
				wg.Add(1)
				go run()
			} else {
				wg.Add(1)
				run()
			}
		}
		wg.Wait()

		for _, step := range ready {
			done[step.ID] = true
		}
		remaining -= len(ready)
	}

	return agentcore.WorkflowState{
		ToolResults: toolResults,
		Context:     map[string]any{"rewooEvidence": evidence},
		Meta:        agentcore.WorkflowMeta{Steps: stepLog},
	}, nil
}

// SolverHandler is the engine.NodeHandler for ReWOO's "reasoning" stage: it
// synthesizes the worker phase's evidence into a final answer.
func (w *ReWOO) SolverHandler(ctx context.Context, state agentcore.WorkflowState) (agentcore.WorkflowState, error) {
	evidence, _ := state.Context["rewooEvidence"].([]Evidence)
	output, err := w.solver.Solve(ctx, state.Input, evidence)
	if err != nil {
		return agentcore.WorkflowState{}, fmt.Errorf("rewoo: solve: %w", err)
	}
	return agentcore.WorkflowState{
		Reasoning: output,
		Meta:      agentcore.WorkflowMeta{Steps: []string{"rewoo:solve"}},
	}, nil
}

func validatePlan(steps []PlanStep) error {
	seen := map[string]bool{}
	for _, s := range steps {
		if s.ID == "" {
			return fmt.Errorf("plan step has an empty id")
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate plan step id %q", s.ID)
		}
		seen[s.ID] = true
	}
	for _, s := range steps {
		for _, dep := range s.Dependencies {
			if !seen[dep] {
				return fmt.Errorf("step %q depends on unknown step %q", s.ID, dep)
			}
		}
	}
	return detectCycle(steps)
}

func detectCycle(steps []PlanStep) error {
	adj := map[string][]string{}
	for _, s := range steps {
		adj[s.ID] = s.Dependencies
	}
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[string]int{}
	var visit func(id string) error
	visit = func(id string) error {
		color[id] = gray
		for _, dep := range adj[id] {
			switch color[dep] {
			case gray:
				return fmt.Errorf("dependency cycle through step %q", dep)
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		color[id] = black
		return nil
	}
	for _, s := range steps {
		if color[s.ID] == white {
			if err := visit(s.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// readySteps returns the not-yet-done steps whose dependencies are all done.
func readySteps(steps []PlanStep, done map[string]bool) []PlanStep {
	var ready []PlanStep
	for _, s := range steps {
		if done[s.ID] {
			continue
		}
		allDepsDone := true
		for _, dep := range s.Dependencies {
			if !done[dep] {
				allDepsDone = false
				break
			}
		}
		if allDepsDone {
			ready = append(ready, s)
		}
	}
	return ready
}

// resolveInput substitutes "#stepId" tokens in a string input value with
// that step's recorded output, or "[Error:stepId]" if the referenced step
// failed, per spec.md §4.12's "their inputs may reference [Error:stepId]".
func resolveInput(input map[string]any, outputs map[string]any, failed map[string]bool) map[string]any {
	resolved := make(map[string]any, len(input))
	for k, v := range input {
		s, ok := v.(string)
		if !ok {
			resolved[k] = v
			continue
		}
		for stepID := range outputs {
			s = strings.ReplaceAll(s, "#"+stepID, fmt.Sprint(outputs[stepID]))
		}
		for stepID := range failed {
			s = strings.ReplaceAll(s, "#"+stepID, "[Error:"+stepID+"]")
		}
		resolved[k] = s
	}
	return resolved
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

package patterns

import (
	"context"
	"fmt"
	"strings"

	"github.com/codeagent/runtime/internal/agentcore"
)

// Complexity classifies how much a Task needs breaking down further, per
// spec.md §4.12.
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

// TaskStatus is a Task's lifecycle state. Transitions are strictly
// pending -> (executing | decomposed); executing -> (completed | failed).
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskExecuting  TaskStatus = "executing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskDecomposed TaskStatus = "decomposed"
)

// LogicalOperator binds a Task's children together when combining their
// outcomes into the parent's own completion.
type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "and"
	LogicalOr  LogicalOperator = "or"
)

// Task is one node of the ADaPT decomposition tree, generalized from the
// teacher's childTracker discovered-set bookkeeping
// (runtime/agent/runtime/child_tracker.go) into a tree of *Task nodes
// linked through Children, with status/complexity/operator fields.
type Task struct {
	ID                 string
	Description        string
	Complexity         Complexity
	Status             TaskStatus
	LogicalOperator    LogicalOperator
	DecompositionLevel int
	Children           []*Task
	Output             string
}

// Decomposer splits a complex task into subtasks and the operator combining
// them, or classifies a task's complexity/executability when asked to.
type Decomposer interface {
	Decompose(ctx context.Context, task *Task) (children []*Task, operator LogicalOperator, err error)
	Classify(ctx context.Context, task *Task) (Complexity, error)
}

// TaskRunner executes a leaf (simple, or at the decomposition ceiling) task.
type TaskRunner interface {
	Execute(ctx context.Context, task *Task) (output string, err error)
}

// ADaPT runs the recursive decomposition described in spec.md §4.12.
type ADaPT struct {
	decomposer          Decomposer
	runner              TaskRunner
	maxDecompositionLvl int
}

// DefaultMaxDecompositionLevel bounds recursion depth absent an override.
const DefaultMaxDecompositionLevel = 3

// NewADaPT builds an ADaPT runner. maxLevel<=0 defaults to
// DefaultMaxDecompositionLevel.
func NewADaPT(decomposer Decomposer, runner TaskRunner, maxLevel int) *ADaPT {
	if maxLevel <= 0 {
		maxLevel = DefaultMaxDecompositionLevel
	}
	return &ADaPT{decomposer: decomposer, runner: runner, maxDecompositionLvl: maxLevel}
}

// Handler is the engine.NodeHandler for ADaPT's "decompose" insert stage: it
// builds and fully executes the task tree rooted at the input, then stashes
// a flattened summary into the returned patch.
func (a *ADaPT) Handler(ctx context.Context, state agentcore.WorkflowState) (agentcore.WorkflowState, error) {
	root := &Task{ID: "root", Description: state.Input, DecompositionLevel: 0}
	if err := a.process(ctx, root); err != nil {
		return agentcore.WorkflowState{}, fmt.Errorf("adapt: %w", err)
	}

	return agentcore.WorkflowState{
		Reasoning: root.Output,
		Context:   map[string]any{"adaptTree": root},
		Meta:      agentcore.WorkflowMeta{Steps: []string{fmt.Sprintf("adapt:root:%s", root.Status)}},
	}, nil
}

// process drives one Task through classify -> decompose-or-execute ->
// combine, recursing into children before computing this task's own
// outcome. Rule: decompose when complexity=complex and
// level<maxDecompositionLevel; execute when complexity=simple or
// level=maxDecompositionLevel, per spec.md §4.12.
func (a *ADaPT) process(ctx context.Context, task *Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	complexity, err := a.decomposer.Classify(ctx, task)
	if err != nil {
		return fmt.Errorf("classify task %q: %w", task.ID, err)
	}
	task.Complexity = complexity

	atCeiling := task.DecompositionLevel >= a.maxDecompositionLvl
	if complexity == ComplexitySimple || atCeiling {
		task.Status = TaskExecuting
		output, err := a.runner.Execute(ctx, task)
		if err != nil {
			task.Status = TaskFailed
			task.Output = "error: " + err.Error()
			return nil //nolint:nilerr // a leaf failure is recorded on the task and combined by the parent, not propagated
		}
		task.Status = TaskCompleted
		task.Output = output
		return nil
	}

	children, operator, err := a.decomposer.Decompose(ctx, task)
	if err != nil {
		return fmt.Errorf("decompose task %q: %w", task.ID, err)
	}
	task.LogicalOperator = operator
	task.Status = TaskDecomposed
	task.Children = children

	for _, child := range children {
		child.DecompositionLevel = task.DecompositionLevel + 1
		if err := a.process(ctx, child); err != nil {
			return err
		}
	}
	combine(task)
	return nil
}

// combine sets task's own completion and Output from its children per
// task.LogicalOperator: And completes only when every child completed; Or
// completes as soon as one child completes, per spec.md §4.12.
func combine(task *Task) {
	var outputs []string
	succeeded := 0
	for _, c := range task.Children {
		if c.Status == TaskCompleted {
			succeeded++
			if c.Output != "" {
				outputs = append(outputs, c.Output)
			}
		}
	}

	switch task.LogicalOperator {
	case LogicalOr:
		if succeeded > 0 {
			task.Status = TaskCompleted
		} else {
			task.Status = TaskFailed
		}
	default: // LogicalAnd, or unset
		if succeeded == len(task.Children) {
			task.Status = TaskCompleted
		} else {
			task.Status = TaskFailed
		}
	}
	task.Output = strings.Join(outputs, "\n")
}

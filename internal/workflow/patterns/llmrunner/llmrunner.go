// Package llmrunner implements every narrow reasoning interface the pattern
// runners in internal/workflow/patterns declare (Reasoner, ReActReasoner,
// ReWOOPlanner, ReWOOSolver, Decomposer, TaskRunner) against a single
// modelprovider.Client, so cmd/agent can wire one concrete backend into all
// eight patterns instead of hand-rolling one adapter per pattern.
//
// Grounded on internal/classifier/methods/llm.go's JSON-reply-with-one-retry
// discipline (itself grounded on the teacher's planner retry-once-on-
// malformed-output flow): every structured call here builds a short system
// prompt, asks for a single JSON object, and retries once on a parse
// failure before giving up.
package llmrunner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/codeagent/runtime/internal/modelprovider"
	"github.com/codeagent/runtime/internal/workflow/patterns"
)

// Backend is a model-provider-backed implementation of every reasoning
// interface the pattern runners need.
type Backend struct {
	client      modelprovider.Client
	modelID     string
	temperature float64
}

// New builds a Backend. temperature is used for every call; callers wanting
// per-pattern temperatures should construct one Backend per temperature.
func New(client modelprovider.Client, modelID string, temperature float64) *Backend {
	return &Backend{client: client, modelID: modelID, temperature: temperature}
}

func (b *Backend) invoke(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	req := modelprovider.Request{
		Messages: []modelprovider.Message{
			{Role: modelprovider.RoleSystem, Content: systemPrompt},
			{Role: modelprovider.RoleUser, Content: userPrompt},
		},
		Config: modelprovider.Configuration{
			ModelID:     b.modelID,
			Temperature: b.temperature,
			MaxTokens:   1024,
		},
	}
	resp, err := b.client.Invoke(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// invokeJSON retries once on a parse failure, matching methods.LLM's
// retry-once-on-malformed-output discipline.
func (b *Backend) invokeJSON(ctx context.Context, systemPrompt, userPrompt string, parse func(string) error) error {
	content, err := b.invoke(ctx, systemPrompt, userPrompt)
	if err != nil {
		return fmt.Errorf("llmrunner: invoke: %w", err)
	}
	if parseErr := parse(extractJSONObject(content)); parseErr == nil {
		return nil
	}
	content, err = b.invoke(ctx, systemPrompt, userPrompt)
	if err != nil {
		return fmt.Errorf("llmrunner: invoke retry: %w", err)
	}
	if parseErr := parse(extractJSONObject(content)); parseErr != nil {
		return fmt.Errorf("llmrunner: parse reply after retry: %w", parseErr)
	}
	return nil
}

// Complete implements patterns.Reasoner for the five generic single-call
// patterns (informational, analytical, creative, conversational,
// problem-solving).
func (b *Backend) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return b.invoke(ctx, systemPrompt, userPrompt)
}

const reactSystemPrompt = `You are driving a think-act-observe loop to complete a task using tools.
Given the task and the steps taken so far, decide the single next step.
Reply with one JSON object and nothing else:
{"thought":"<reasoning>","action":"<tool name, empty if none>","input":{<tool input object>},"isComplete":<bool>,"finalText":"<final answer, only when isComplete>"}`

type reactReply struct {
	Thought    string         `json:"thought"`
	Action     string         `json:"action"`
	Input      map[string]any `json:"input"`
	IsComplete bool           `json:"isComplete"`
	FinalText  string         `json:"finalText"`
}

// NextStep implements patterns.ReActReasoner.
func (b *Backend) NextStep(ctx context.Context, task string, history []patterns.ReActStep) (patterns.ReActDecision, error) {
	var decision patterns.ReActDecision
	err := b.invokeJSON(ctx, reactSystemPrompt, renderReActPrompt(task, history), func(raw string) error {
		var reply reactReply
		if err := json.Unmarshal([]byte(raw), &reply); err != nil {
			return err
		}
		decision = patterns.ReActDecision{
			Thought:    reply.Thought,
			Action:     reply.Action,
			Input:      reply.Input,
			IsComplete: reply.IsComplete,
			FinalText:  reply.FinalText,
		}
		return nil
	})
	return decision, err
}

func renderReActPrompt(task string, history []patterns.ReActStep) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n", task)
	if len(history) == 0 {
		b.WriteString("No steps taken yet.\n")
	}
	for i, step := range history {
		fmt.Fprintf(&b, "Step %d thought: %s\n", i+1, step.Thought)
		if step.Action != "" {
			fmt.Fprintf(&b, "Step %d action: %s(%s) -> %s\n", i+1, step.Action, step.Input, step.Observation)
		}
	}
	return b.String()
}

const rewooPlanSystemPrompt = `You plan a sequence of tool calls to complete a task, without executing them.
Reply with one JSON object and nothing else:
{"steps":[{"id":"<unique id>","action":"<tool name>","input":{<tool input object>},"description":"<short description>","dependencies":["<step id>", ...]}]}`

type planReply struct {
	Steps []patterns.PlanStep `json:"steps"`
}

// Plan implements patterns.ReWOOPlanner.
func (b *Backend) Plan(ctx context.Context, task string) ([]patterns.PlanStep, error) {
	var steps []patterns.PlanStep
	err := b.invokeJSON(ctx, rewooPlanSystemPrompt, task, func(raw string) error {
		var reply planReply
		if err := json.Unmarshal([]byte(raw), &reply); err != nil {
			return err
		}
		if len(reply.Steps) == 0 {
			return fmt.Errorf("llmrunner: plan reply has no steps")
		}
		steps = reply.Steps
		return nil
	})
	return steps, err
}

const rewooSolveSystemPrompt = `You synthesize a final answer to a task from the evidence gathered by a set of already-executed tool calls.
Reply with the final answer as plain text, no JSON, no preamble.`

// Solve implements patterns.ReWOOSolver.
func (b *Backend) Solve(ctx context.Context, task string, evidence []patterns.Evidence) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Task: %s\n\nEvidence:\n", task)
	for _, e := range evidence {
		if e.Success {
			fmt.Fprintf(&sb, "- %s (%s): %v\n", e.StepID, e.Action, e.Output)
		} else {
			fmt.Fprintf(&sb, "- %s (%s): failed: %s\n", e.StepID, e.Action, e.Error)
		}
	}
	return b.invoke(ctx, rewooSolveSystemPrompt, sb.String())
}

const decomposeSystemPrompt = `You decompose a complex task into smaller subtasks for an ADaPT-style planner.
Reply with one JSON object and nothing else:
{"operator":"and|or","children":[{"id":"<unique id>","description":"<subtask>"}]}`

type decomposeReply struct {
	Operator string `json:"operator"`
	Children []struct {
		ID          string `json:"id"`
		Description string `json:"description"`
	} `json:"children"`
}

// Decompose implements patterns.Decomposer.
func (b *Backend) Decompose(ctx context.Context, task *patterns.Task) ([]*patterns.Task, patterns.LogicalOperator, error) {
	var children []*patterns.Task
	var operator patterns.LogicalOperator
	err := b.invokeJSON(ctx, decomposeSystemPrompt, task.Description, func(raw string) error {
		var reply decomposeReply
		if err := json.Unmarshal([]byte(raw), &reply); err != nil {
			return err
		}
		if len(reply.Children) == 0 {
			return fmt.Errorf("llmrunner: decompose reply has no children")
		}
		operator = patterns.LogicalOperator(strings.ToLower(reply.Operator))
		if operator != patterns.LogicalOr {
			operator = patterns.LogicalAnd
		}
		for _, c := range reply.Children {
			children = append(children, &patterns.Task{
				ID:          c.ID,
				Description: c.Description,
				Status:      patterns.TaskPending,
			})
		}
		return nil
	})
	return children, operator, err
}

const classifySystemPrompt = `You classify how complex a task is for an ADaPT-style planner.
Reply with one JSON object and nothing else: {"complexity":"simple|medium|complex"}`

type classifyReply struct {
	Complexity string `json:"complexity"`
}

// Classify implements patterns.Decomposer.
func (b *Backend) Classify(ctx context.Context, task *patterns.Task) (patterns.Complexity, error) {
	var complexity patterns.Complexity
	err := b.invokeJSON(ctx, classifySystemPrompt, task.Description, func(raw string) error {
		var reply classifyReply
		if err := json.Unmarshal([]byte(raw), &reply); err != nil {
			return err
		}
		switch patterns.Complexity(strings.ToLower(reply.Complexity)) {
		case patterns.ComplexitySimple, patterns.ComplexityMedium, patterns.ComplexityComplex:
			complexity = patterns.Complexity(strings.ToLower(reply.Complexity))
		default:
			return fmt.Errorf("llmrunner: unrecognized complexity %q", reply.Complexity)
		}
		return nil
	})
	return complexity, err
}

const executeTaskSystemPrompt = `You execute one leaf task directly and return its result.
Reply with the result as plain text, no JSON, no preamble.`

// Execute implements patterns.TaskRunner.
func (b *Backend) Execute(ctx context.Context, task *patterns.Task) (string, error) {
	return b.invoke(ctx, executeTaskSystemPrompt, task.Description)
}

// extractJSONObject trims any leading/trailing prose a model may add around
// the JSON object it was asked to reply with, matching
// internal/classifier/methods/llm.go's helper of the same name.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < 0 || end < start {
		return s
	}
	return s[start : end+1]
}

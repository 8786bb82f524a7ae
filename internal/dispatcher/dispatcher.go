// Package dispatcher implements the Agent Dispatcher (C13): the top-level
// request orchestrator that appends conversation turns to the Memory Store,
// classifies input (C8), routes to the Command Handler (C9), the Model
// Provider directly (C6, for prompts), or the Workflow Extractor/Engine
// (C10 -> C11 -> C12, for workflows), and merges handler metadata into a
// unified Response, per spec.md §4.13.
//
// Grounded on the teacher's runtime.Runtime: a central struct holding
// concrete references to every subsystem it orchestrates (engine, memory,
// policy, stream) rather than hiding them behind narrow interfaces, because
// at this top layer the orchestrator is expected to know concretely what it
// is wiring together. The per-phase bounded dispatch itself mirrors
// runtime/agent/runtime/workflow_loop.go's step-bound retry discipline,
// generalized from "retry this step" to "run this phase under its own
// timeout and surface a result.Error on overrun".
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/codeagent/runtime/internal/agentcore"
	"github.com/codeagent/runtime/internal/classifier"
	"github.com/codeagent/runtime/internal/command"
	"github.com/codeagent/runtime/internal/memory"
	"github.com/codeagent/runtime/internal/modelprovider"
	"github.com/codeagent/runtime/internal/result"
	"github.com/codeagent/runtime/internal/telemetry"
	"github.com/codeagent/runtime/internal/workflow/engine"
	"github.com/codeagent/runtime/internal/workflow/extractor"
)

// Timeouts bounds each dispatch phase, per spec.md §4.13.
type Timeouts struct {
	Classification    time.Duration
	CommandExecution  time.Duration
	PromptProcessing  time.Duration
	WorkflowExecution time.Duration
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Classification == 0 {
		t.Classification = 5 * time.Second
	}
	if t.CommandExecution == 0 {
		t.CommandExecution = 30 * time.Second
	}
	if t.PromptProcessing == 0 {
		t.PromptProcessing = 120 * time.Second
	}
	if t.WorkflowExecution == 0 {
		t.WorkflowExecution = 600 * time.Second
	}
	return t
}

// builtinStateCommands names the five state commands that bypass
// classification entirely, per spec.md §4.13 step 2.
var builtinStateCommands = map[string]bool{
	"status":  true,
	"model":   true,
	"config":  true,
	"mode":    true,
	"session": true,
}

// Config wires every collaborator the Dispatcher orchestrates.
type Config struct {
	Store      *memory.Store
	Classifier *classifier.Classifier
	Commands   *command.Handler
	Model      modelprovider.Client
	// ModelConfig is the Configuration used for direct prompt-path
	// invocations of Model (the generic reasoning patterns configure their
	// own model calls independently, inside internal/workflow/patterns).
	ModelConfig modelprovider.Configuration
	Extractor   *extractor.Extractor
	// ExtractionMethod selects which C10 strategy ExtractWorkflow uses;
	// defaults to extractor.MethodHybrid.
	ExtractionMethod extractor.Method
	Engine           *engine.Engine

	Timeouts       Timeouts
	MaxHistorySize int

	Logger  telemetry.Logger
	Tracer  telemetry.Tracer
	Metrics telemetry.Metrics

	// AvailableMethods lists the classifier method names reported by the
	// "status"/"config" built-ins; purely informational.
	AvailableMethods []string
}

// Dispatcher is the Agent Dispatcher (C13).
type Dispatcher struct {
	cfg Config

	modeMu  chan struct{} // 1-buffered channel used as a mutex guarding mode
	model   string
	mode    string
	methods []string
}

// New builds a Dispatcher. cfg.Commands, if supplied without a Status, is
// NOT auto-wired with this Dispatcher — callers must construct
// command.Handler with Status: d after calling New, since the handler needs
// a reference to the dispatcher it's built for (see cmd/agent's wiring).
func New(cfg Config) *Dispatcher {
	cfg.Timeouts = cfg.Timeouts.withDefaults()
	d := &Dispatcher{
		cfg:     cfg,
		modeMu:  make(chan struct{}, 1),
		model:   cfg.ModelConfig.ModelID,
		mode:    "ready",
		methods: cfg.AvailableMethods,
	}
	d.modeMu <- struct{}{}
	return d
}

// SetCommands wires the Command Handler after construction, breaking the
// New(cfg)/command.New(cfg) construction cycle: command.Config.Status must
// reference this Dispatcher (so its AgentStatus built-ins work), but this
// Dispatcher's Config.Commands must reference that same Handler.
func (d *Dispatcher) SetCommands(h *command.Handler) { d.cfg.Commands = h }

// validModes are the interaction modes settable via "/mode", per spec.md §6.
var validModes = map[string]bool{
	"ready":     true,
	"planning":  true,
	"editing":   true,
	"executing": true,
	"error":     true,
}

// CurrentModel, AvailableMethods, Mode, and SetMode satisfy command.AgentStatus.

func (d *Dispatcher) CurrentModel() string { return d.model }

func (d *Dispatcher) AvailableMethods() []string { return d.methods }

func (d *Dispatcher) Mode() string {
	<-d.modeMu
	defer func() { d.modeMu <- struct{}{} }()
	return d.mode
}

func (d *Dispatcher) SetMode(mode string) error {
	if !validModes[mode] {
		return result.New(result.CategoryValidation, result.CodeValidation, fmt.Sprintf("unknown mode %q", mode))
	}
	<-d.modeMu
	d.mode = mode
	d.modeMu <- struct{}{}
	return nil
}

// finalizeMetadata stamps ExecutionTimeMs and merges agentProcessingTime,
// per spec.md §4.13 step 5's "merge handler metadata with
// {classification, agentProcessingTime}" — classification itself is merged
// by the handler that produced resp, so this only needs to add the total
// elapsed time shared by both Process and Stream's finishStream.
func finalizeMetadata(resp *agentcore.Response, start time.Time) {
	resp.WithTiming(start)
	resp.MergeMetadata(map[string]any{"agentProcessingTime": resp.ExecutionTimeMs})
}

// Process runs req through classification and dispatch to completion,
// returning a unified Response, per spec.md §4.13.
func (d *Dispatcher) Process(ctx context.Context, req agentcore.Request) (*agentcore.Response, error) {
	start := time.Now()
	sessionID := req.Context.SessionID
	if sessionID == "" {
		return nil, result.New(result.CategoryValidation, result.CodeValidation, "request is missing a session id")
	}
	if d.cfg.Store == nil || d.cfg.Classifier == nil {
		return nil, result.New(result.CategoryConfiguration, result.CodeValidation, "dispatcher is missing a required component")
	}

	if _, err := d.cfg.Store.AppendTurn(sessionID, agentcore.Turn{
		TurnID:    newTurnID(),
		Timestamp: start,
		Role:      agentcore.RoleUser,
		Content:   req.Input,
	}); err != nil {
		return nil, err
	}

	resp, procErr := d.route(ctx, req, sessionID, start)
	if procErr != nil {
		return nil, procErr
	}

	finalizeMetadata(resp, start)
	if _, err := d.cfg.Store.AppendTurn(sessionID, agentcore.Turn{
		TurnID:    newTurnID(),
		Timestamp: time.Now(),
		Role:      agentcore.RoleAssistant,
		Content:   resp.Content,
		Metadata:  resp.Metadata,
	}); err != nil {
		return nil, err
	}
	if err := d.cfg.Store.AddProcessingEvent(agentcore.ProcessingEvent{
		SessionID: sessionID,
		Timestamp: time.Now(),
		Kind:      processingEventKind(resp.Kind),
		Data:      resp.Metadata,
	}); err != nil {
		return nil, err
	}

	return resp, nil
}

// route detects a fast-path built-in state command, else classifies and
// dispatches to the matching handler under its phase timeout.
// classificationTimeMs is 0 for the built-in fast path, since it bypasses
// the classifier entirely (spec.md §4.13 step 2).
func (d *Dispatcher) route(ctx context.Context, req agentcore.Request, sessionID string, start time.Time) (*agentcore.Response, error) {
	if cmd, ok := d.cfg.Commands.Parse(req.Input); ok && builtinStateCommands[cmd.Name] {
		return d.runCommand(ctx, sessionID, cmd, agentcore.ClassificationResult{
			Kind:       agentcore.KindCommand,
			Confidence: 1.0,
			Method:     "builtin",
			Reasoning:  "built-in state command detected without classification",
		}, 0)
	}

	var method agentcore.ClassifierMethod
	if req.Options != nil {
		method = agentcore.ClassifierMethod(req.Options.Method)
	}

	classifyStart := time.Now()
	classifyCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeouts.Classification)
	classification, err := d.cfg.Classifier.Classify(classifyCtx, req.Input, method, map[string]any{"sessionId": sessionID})
	cancel()
	classificationTimeMs := time.Since(classifyStart).Milliseconds()
	if err != nil {
		return nil, fmt.Errorf("dispatcher: classify: %w", err)
	}

	switch classification.Kind {
	case agentcore.KindCommand:
		cmd, ok := d.cfg.Commands.Parse(req.Input)
		if !ok {
			return nil, result.New(result.CategoryValidation, result.CodeValidation, "classified as command but input does not parse as one")
		}
		return d.runCommand(ctx, sessionID, cmd, classification, classificationTimeMs)
	case agentcore.KindWorkflow:
		return d.runWorkflow(ctx, req, sessionID, classification, classificationTimeMs)
	default:
		return d.runPrompt(ctx, req, sessionID, classification, classificationTimeMs)
	}
}

func (d *Dispatcher) runCommand(ctx context.Context, sessionID string, cmd command.ParsedCommand, classification agentcore.ClassificationResult, classificationTimeMs int64) (*agentcore.Response, error) {
	if d.cfg.Commands == nil {
		return nil, result.New(result.CategoryConfiguration, result.CodeValidation, "command handler is not configured")
	}
	handlerStart := time.Now()
	cmdCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeouts.CommandExecution)
	defer cancel()

	cmdResult, err := d.cfg.Commands.Execute(cmdCtx, sessionID, cmd)
	if err != nil {
		if cmdResult.Content == "" {
			return nil, err
		}
	}

	resp := agentcore.NewResponse(agentcore.KindCommand)
	resp.Success = cmdResult.Status == command.StatusSuccess
	resp.Content = cmdResult.Content
	resp.Confidence = classification.Confidence
	resp.MergeMetadata(cmdResult.Metadata)
	resp.MergeMetadata(map[string]any{
		"classification":       classification,
		"commandName":          cmdResult.CommandName,
		"classificationTimeMs": classificationTimeMs,
		"handlerTimeMs":        time.Since(handlerStart).Milliseconds(),
	})
	return resp, nil
}

func (d *Dispatcher) runPrompt(ctx context.Context, req agentcore.Request, sessionID string, classification agentcore.ClassificationResult, classificationTimeMs int64) (*agentcore.Response, error) {
	if d.cfg.Model == nil {
		return nil, result.New(result.CategoryConfiguration, result.CodeValidation, "model provider is not configured")
	}
	handlerStart := time.Now()
	promptCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeouts.PromptProcessing)
	defer cancel()

	history, err := d.cfg.Store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	modelReq := modelprovider.Request{
		Messages: historyToMessages(history.History, req.Input),
		Config:   d.cfg.ModelConfig,
		Context:  map[string]any{"sessionId": sessionID},
	}

	out, err := d.cfg.Model.Invoke(promptCtx, modelReq)
	if err != nil {
		return nil, fmt.Errorf("dispatcher: prompt: %w", err)
	}

	resp := agentcore.NewResponse(agentcore.KindPrompt)
	resp.Success = true
	resp.Content = out.Content
	resp.Confidence = classification.Confidence
	resp.MergeMetadata(map[string]any{
		"classification":       classification,
		"finishReason":         out.FinishReason,
		"usage":                out.Usage,
		"classificationTimeMs": classificationTimeMs,
		"handlerTimeMs":        time.Since(handlerStart).Milliseconds(),
	})
	return resp, nil
}

func (d *Dispatcher) runWorkflow(ctx context.Context, req agentcore.Request, sessionID string, classification agentcore.ClassificationResult, classificationTimeMs int64) (*agentcore.Response, error) {
	if d.cfg.Extractor == nil || d.cfg.Engine == nil {
		return nil, result.New(result.CategoryConfiguration, result.CodeValidation, "workflow extractor or engine is not configured")
	}
	handlerStart := time.Now()
	workflowCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeouts.WorkflowExecution)
	defer cancel()

	extraction := d.cfg.Extractor.ExtractWorkflow(workflowCtx, req.Input, d.cfg.ExtractionMethod)
	if !extraction.Success {
		// spec.md §4.10: a failed extraction carries pattern=conversational
		// so the dispatcher downgrades to a prompt instead of failing outright.
		resp, err := d.runPrompt(ctx, req, sessionID, classification, classificationTimeMs)
		if err != nil {
			return nil, err
		}
		resp.MergeMetadata(map[string]any{"downgradedFrom": agentcore.KindWorkflow, "extractionError": extraction.Error})
		return resp, nil
	}

	pattern := extraction.WorkflowSpec.Pattern
	wf, ok := d.cfg.Engine.GetCompiled(pattern)
	if !ok {
		var err error
		wf, err = d.cfg.Engine.CreateWorkflow(pattern)
		if err != nil {
			return nil, fmt.Errorf("dispatcher: compile workflow %q: %w", pattern, err)
		}
	}

	workflowID := sessionID + ":" + string(pattern)
	state := agentcore.WorkflowState{
		Input: req.Input,
		Context: map[string]any{
			"sessionId":  sessionID,
			"workflowId": workflowID,
		},
	}
	workflowResult, err := d.cfg.Engine.Execute(workflowCtx, wf, state)
	if err != nil {
		return nil, fmt.Errorf("dispatcher: execute workflow %q: %w", pattern, err)
	}

	toolsUsed := make([]string, 0, len(workflowResult.FinalState.ToolResults))
	for _, tr := range workflowResult.FinalState.ToolResults {
		toolsUsed = append(toolsUsed, tr.ToolName)
	}

	resp := agentcore.NewResponse(agentcore.KindWorkflow)
	resp.Success = true
	resp.Content = workflowResult.FinalState.Output
	resp.ToolsUsed = toolsUsed
	resp.Confidence = classification.Confidence
	resp.MergeMetadata(map[string]any{
		"classification":       classification,
		"pattern":              pattern,
		"workflowId":           workflowID,
		"executionPath":        workflowResult.ExecutionPath,
		"nodeCount":            workflowResult.NodeCount,
		"extractionMethod":     extraction.ExtractionMethod,
		"classificationTimeMs": classificationTimeMs,
		"handlerTimeMs":        time.Since(handlerStart).Milliseconds(),
	})
	return resp, nil
}

func processingEventKind(kind agentcore.HandlerKind) string {
	switch kind {
	case agentcore.KindWorkflow:
		return "workflow_execution"
	case agentcore.KindCommand:
		return "command"
	default:
		return "prompt"
	}
}

func historyToMessages(history []agentcore.Turn, latestInput string) []modelprovider.Message {
	messages := make([]modelprovider.Message, 0, len(history)+1)
	for _, t := range history {
		role := modelprovider.RoleUser
		if t.Role == agentcore.RoleAssistant {
			role = modelprovider.RoleAssistant
		} else if t.Role == agentcore.RoleSystem {
			role = modelprovider.RoleSystem
		}
		messages = append(messages, modelprovider.Message{Role: role, Content: t.Content})
	}
	if len(messages) == 0 || messages[len(messages)-1].Content != latestInput {
		messages = append(messages, modelprovider.Message{Role: modelprovider.RoleUser, Content: latestInput})
	}
	return messages
}

// Package executor implements the Tool Executor (C4): schema validation,
// permission checks, timeout-bounded execution, and metrics capture for a
// single ToolCall, plus a concurrency-aware batch runner.
//
// Grounded on the teacher's runtime/toolregistry/executor.Executor — the
// same Option-constructor shape, telemetry span/log wiring, and structured
// result decoding — adapted from routing calls over Pulse result streams to
// a direct in-process registry.Get + tool.Execute invocation, since
// cross-process tool dispatch is out of scope for this runtime.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/codeagent/runtime/internal/agentcore"
	"github.com/codeagent/runtime/internal/result"
	"github.com/codeagent/runtime/internal/security"
	"github.com/codeagent/runtime/internal/telemetry"
)

const (
	// DefaultTimeout bounds a single tool.Execute call absent an override.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxConcurrentTools bounds the batch executor's parallel fan-out.
	DefaultMaxConcurrentTools = 5
)

type (
	// Lookup resolves registered tools and partitions them by concurrency
	// safety; satisfied by *registry.Registry.
	Lookup interface {
		Get(name string) (agentcore.Tool, bool)
		PartitionByConcurrency(names []string) (safe map[string]bool, sequential []string)
	}

	// Executor runs individual and batched ToolCalls against a registry,
	// enforcing the Security Gateway and per-call timeout.
	Executor struct {
		registry           Lookup
		gateway            *security.Gateway
		timeout            time.Duration
		maxConcurrentTools int
		logger             telemetry.Logger
		tracer             telemetry.Tracer
	}

	// Option configures an Executor at construction time.
	Option func(*Executor)
)

// WithTimeout overrides DefaultTimeout for every call this executor runs.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) { e.timeout = d }
}

// WithMaxConcurrentTools overrides DefaultMaxConcurrentTools for batch runs.
func WithMaxConcurrentTools(n int) Option {
	return func(e *Executor) { e.maxConcurrentTools = n }
}

// WithLogger configures the executor's logger; defaults to a noop logger.
func WithLogger(logger telemetry.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// WithTracer configures the executor's tracer; defaults to a noop tracer.
func WithTracer(tracer telemetry.Tracer) Option {
	return func(e *Executor) { e.tracer = tracer }
}

// New constructs an Executor over the given tool lookup and security
// gateway.
func New(reg Lookup, gateway *security.Gateway, opts ...Option) *Executor {
	e := &Executor{
		registry:           reg,
		gateway:            gateway,
		timeout:            DefaultTimeout,
		maxConcurrentTools: DefaultMaxConcurrentTools,
		logger:             telemetry.NewNoopLogger(),
		tracer:             telemetry.NewNoopTracer(),
	}
	for _, o := range opts {
		if o != nil {
			o(e)
		}
	}
	return e
}

// Execute validates, authorizes, and runs a single ToolCall, enforcing
// e.timeout and cooperative cancellation per spec.md §4.4.
func (e *Executor) Execute(ctx context.Context, call agentcore.ToolCall) agentcore.ToolResult {
	ctx, span := e.tracer.Start(ctx, "executor.execute",
		trace.WithAttributes(
			attribute.String("executor.tool", call.ToolName),
			attribute.String("executor.call_id", call.CallID),
			attribute.String("executor.session_id", call.Context.SessionID),
		))
	defer span.End()

	start := time.Now()
	res := e.run(ctx, call)
	res.Metrics = agentcore.ToolMetrics{
		StartMs: start.UnixMilli(),
		EndMs:   time.Now().UnixMilli(),
	}
	if !res.Success {
		span.RecordError(res.Error)
		span.SetStatus(codes.Error, "tool execution failed")
		e.logger.Error(ctx, "tool execution failed",
			"tool", call.ToolName, "call_id", call.CallID, "session_id", call.Context.SessionID, "err", res.Error)
	} else {
		span.SetStatus(codes.Ok, "ok")
	}
	return res
}

func (e *Executor) run(ctx context.Context, call agentcore.ToolCall) agentcore.ToolResult {
	tool, ok := e.registry.Get(call.ToolName)
	if !ok {
		return failure(call, result.New(result.CategoryValidation, result.CodeValidation,
			fmt.Sprintf("unknown tool %q", call.ToolName)))
	}

	if err := validateInput(tool, call.Input); err != nil {
		return failure(call, err)
	}

	if e.gateway != nil {
		if _, err := e.gateway.CheckInput(call, fmt.Sprint(call.Input)); err != nil {
			return failure(call, err)
		}
	}

	if err := tool.CheckPermissions(ctx, call.Input); err != nil {
		return failure(call, result.Wrap(result.CategoryBusiness, result.CodeUnauthorized,
			fmt.Sprintf("permission denied for tool %q", call.ToolName), err))
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type outcome struct {
		output any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		output, err := tool.Execute(callCtx, call.Input)
		done <- outcome{output: output, err: err}
	}()

	select {
	case <-callCtx.Done():
		if ctx.Err() != nil && ctx.Err() != context.DeadlineExceeded {
			return failure(call, result.Cancelled(fmt.Sprintf("tool %q cancelled", call.ToolName)))
		}
		return failure(call, result.Timeout(fmt.Sprintf("tool %q exceeded %s timeout", call.ToolName, e.timeout)))
	case out := <-done:
		if out.err != nil {
			switch {
			case errors.Is(out.err, context.DeadlineExceeded):
				return failure(call, result.Timeout(fmt.Sprintf("tool %q exceeded %s timeout", call.ToolName, e.timeout)))
			case errors.Is(out.err, context.Canceled):
				return failure(call, result.Cancelled(fmt.Sprintf("tool %q cancelled", call.ToolName)))
			}
			return failure(call, result.Wrap(result.CategorySystem, "TOOL_EXECUTION_FAILED",
				fmt.Sprintf("tool %q failed", call.ToolName), out.err))
		}
		outputText := fmt.Sprint(out.output)
		if e.gateway != nil {
			filtered, err := e.gateway.CheckOutput(call, outputText)
			if err != nil {
				return failure(call, err)
			}
			if filtered != outputText {
				out.output = filtered
			}
		}
		return agentcore.ToolResult{
			CallID:   call.CallID,
			ToolName: call.ToolName,
			Success:  true,
			Output:   out.output,
		}
	}
}

func failure(call agentcore.ToolCall, err error) agentcore.ToolResult {
	return agentcore.ToolResult{
		CallID:   call.CallID,
		ToolName: call.ToolName,
		Success:  false,
		Error:    err,
	}
}

// validateInput compiles the tool's declared JSON schema and validates the
// call input against it, mirroring the teacher's
// registry/service.validatePayloadJSONAgainstSchema.
func validateInput(tool agentcore.Tool, input map[string]any) error {
	schemaBytes := tool.InputSchema()
	if len(schemaBytes) == 0 {
		return nil
	}
	var schemaDoc any
	if err := json.Unmarshal(schemaBytes, &schemaDoc); err != nil {
		return result.Wrap(result.CategoryConfiguration, result.CodeValidation, "unmarshal tool input schema", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", schemaDoc); err != nil {
		return result.Wrap(result.CategoryConfiguration, result.CodeValidation, "add schema resource", err)
	}
	schema, err := c.Compile("schema.json")
	if err != nil {
		return result.Wrap(result.CategoryConfiguration, result.CodeValidation, "compile tool input schema", err)
	}
	if err := schema.Validate(input); err != nil {
		return result.Wrap(result.CategoryValidation, result.CodeValidation,
			fmt.Sprintf("input does not satisfy %q schema", tool.Name()), err)
	}
	return nil
}

// ExecuteBatch partitions calls by concurrency-safety via
// registry.PartitionByConcurrency: concurrent-safe calls run in parallel up
// to e.maxConcurrentTools, the rest run sequentially in caller order. The
// batch fails fast on the first error, returning results gathered so far.
func (e *Executor) ExecuteBatch(ctx context.Context, calls []agentcore.ToolCall) ([]agentcore.ToolResult, error) {
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.ToolName
	}
	safe, _ := e.registry.PartitionByConcurrency(names)

	results := make([]agentcore.ToolResult, len(calls))
	var firstErr error
	var mu sync.Mutex
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	recordFailure := func(i int, res agentcore.ToolResult) {
		mu.Lock()
		defer mu.Unlock()
		results[i] = res
		if !res.Success && firstErr == nil {
			firstErr = res.Error
			cancel()
		}
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, max(1, e.maxConcurrentTools))
	for i, call := range calls {
		if !safe[call.ToolName] {
			continue
		}
		wg.Add(1)
		go func(i int, call agentcore.ToolCall) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			if ctx.Err() != nil {
				return
			}
			recordFailure(i, e.Execute(ctx, call))
		}(i, call)
	}
	wg.Wait()

	for i, call := range calls {
		if safe[call.ToolName] {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		recordFailure(i, e.Execute(ctx, call))
	}

	if firstErr != nil {
		return results, firstErr
	}
	return results, nil
}

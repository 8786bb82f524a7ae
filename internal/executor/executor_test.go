package executor_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codeagent/runtime/internal/agentcore"
	"github.com/codeagent/runtime/internal/executor"
	"github.com/codeagent/runtime/internal/registry"
	"github.com/codeagent/runtime/internal/result"
	"github.com/codeagent/runtime/internal/security"
)

type stubTool struct {
	name        string
	schema      []byte
	concurrent  bool
	execute     func(ctx context.Context, input map[string]any) (any, error)
	permissions func(ctx context.Context, input map[string]any) error
}

func (t *stubTool) Name() string             { return t.name }
func (t *stubTool) Version() string          { return "1.0.0" }
func (t *stubTool) Description() string      { return "stub " + t.name }
func (t *stubTool) InputSchema() []byte      { return t.schema }
func (t *stubTool) IsReadOnly() bool         { return true }
func (t *stubTool) IsConcurrencySafe() bool  { return t.concurrent }
func (t *stubTool) Execute(ctx context.Context, input map[string]any) (any, error) {
	return t.execute(ctx, input)
}
func (t *stubTool) CheckPermissions(ctx context.Context, input map[string]any) error {
	if t.permissions != nil {
		return t.permissions(ctx, input)
	}
	return nil
}

func newRegistryWith(t *testing.T, tools ...agentcore.Tool) *registry.Registry {
	t.Helper()
	r := registry.New()
	for _, tool := range tools {
		require.NoError(t, r.Register(tool, registry.Metadata{}, registry.RegisterOptions{}))
	}
	return r
}

func TestExecuteUnknownToolReturnsValidationError(t *testing.T) {
	r := registry.New()
	ex := executor.New(r, nil)
	res := ex.Execute(context.Background(), agentcore.ToolCall{ToolName: "missing"})
	require.False(t, res.Success)
	rerr, ok := result.As(res.Error)
	require.True(t, ok)
	require.Equal(t, result.CodeValidation, rerr.Code)
}

func TestExecuteRejectsInputFailingSchema(t *testing.T) {
	tool := &stubTool{
		name:   "echo",
		schema: []byte(`{"type":"object","required":["text"],"properties":{"text":{"type":"string"}}}`),
		execute: func(ctx context.Context, input map[string]any) (any, error) {
			return input["text"], nil
		},
	}
	r := newRegistryWith(t, tool)
	ex := executor.New(r, nil)

	res := ex.Execute(context.Background(), agentcore.ToolCall{ToolName: "echo", Input: map[string]any{}})
	require.False(t, res.Success)
	rerr, ok := result.As(res.Error)
	require.True(t, ok)
	require.Equal(t, result.CodeValidation, rerr.Code)
}

func TestExecuteDeniesUnauthorizedCall(t *testing.T) {
	tool := &stubTool{
		name: "rm",
		permissions: func(ctx context.Context, input map[string]any) error {
			return errors.New("not allowed")
		},
		execute: func(ctx context.Context, input map[string]any) (any, error) { return "ok", nil },
	}
	r := newRegistryWith(t, tool)
	ex := executor.New(r, nil)

	res := ex.Execute(context.Background(), agentcore.ToolCall{ToolName: "rm", Input: map[string]any{}})
	require.False(t, res.Success)
	rerr, ok := result.As(res.Error)
	require.True(t, ok)
	require.Equal(t, result.CodeUnauthorized, rerr.Code)
}

func TestExecuteTimesOutSlowTool(t *testing.T) {
	tool := &stubTool{
		name: "slow",
		execute: func(ctx context.Context, input map[string]any) (any, error) {
			select {
			case <-time.After(200 * time.Millisecond):
				return "done", nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
	r := newRegistryWith(t, tool)
	ex := executor.New(r, nil, executor.WithTimeout(20*time.Millisecond))

	res := ex.Execute(context.Background(), agentcore.ToolCall{ToolName: "slow", Input: map[string]any{}})
	require.False(t, res.Success)
	rerr, ok := result.As(res.Error)
	require.True(t, ok)
	require.Equal(t, result.CodeOperationTimeout, rerr.Code)
}

func TestExecuteRedactsSecretOutputViaGateway(t *testing.T) {
	tool := &stubTool{
		name: "http.get",
		execute: func(ctx context.Context, input map[string]any) (any, error) {
			return "Authorization: Bearer sk-abcdef1234567890", nil
		},
	}
	r := newRegistryWith(t, tool)
	gw := security.NewGateway(security.DefaultPolicies())
	ex := executor.New(r, gw)

	res := ex.Execute(context.Background(), agentcore.ToolCall{ToolName: "http.get", Input: map[string]any{}})
	require.True(t, res.Success)
	require.Contains(t, res.Output, "[REDACTED]")
}

func TestExecuteBatchFailsFastAndReturnsPartialResults(t *testing.T) {
	ok := &stubTool{name: "ok", concurrent: false, execute: func(ctx context.Context, input map[string]any) (any, error) {
		return "fine", nil
	}}
	bad := &stubTool{name: "bad", concurrent: false, execute: func(ctx context.Context, input map[string]any) (any, error) {
		return nil, errors.New("boom")
	}}
	r := newRegistryWith(t, ok, bad)
	ex := executor.New(r, nil)

	calls := []agentcore.ToolCall{
		{ToolName: "ok", Input: map[string]any{}},
		{ToolName: "bad", Input: map[string]any{}},
	}
	results, err := ex.ExecuteBatch(context.Background(), calls)
	require.Error(t, err)
	require.Len(t, results, 2)
	require.True(t, results[0].Success)
	require.False(t, results[1].Success)
}

func TestExecuteBatchRunsConcurrentSafeCallsInParallel(t *testing.T) {
	a := &stubTool{name: "a", concurrent: true, execute: func(ctx context.Context, input map[string]any) (any, error) {
		return "a", nil
	}}
	b := &stubTool{name: "b", concurrent: true, execute: func(ctx context.Context, input map[string]any) (any, error) {
		return "b", nil
	}}
	r := newRegistryWith(t, a, b)
	ex := executor.New(r, nil)

	calls := []agentcore.ToolCall{
		{ToolName: "a", Input: map[string]any{}},
		{ToolName: "b", Input: map[string]any{}},
	}
	results, err := ex.ExecuteBatch(context.Background(), calls)
	require.NoError(t, err)
	require.True(t, results[0].Success)
	require.True(t, results[1].Success)
}

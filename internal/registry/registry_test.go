package registry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeagent/runtime/internal/registry"
)

type fakeTool struct {
	name           string
	concurrentSafe bool
	cleaned        bool
	cleanupErr     error
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Version() string     { return "1.0.0" }
func (f *fakeTool) Description() string { return "fake tool " + f.name }
func (f *fakeTool) InputSchema() []byte { return []byte(`{"type":"object"}`) }
func (f *fakeTool) IsReadOnly() bool    { return true }
func (f *fakeTool) IsConcurrencySafe() bool {
	return f.concurrentSafe
}
func (f *fakeTool) Execute(ctx context.Context, input map[string]any) (any, error) { return nil, nil }
func (f *fakeTool) CheckPermissions(ctx context.Context, input map[string]any) error { return nil }
func (f *fakeTool) Cleanup(ctx context.Context) error {
	f.cleaned = true
	return f.cleanupErr
}

func TestRegisterDuplicateRejectedWithoutOverride(t *testing.T) {
	r := registry.New()
	tool := &fakeTool{name: "grep"}
	require.NoError(t, r.Register(tool, registry.Metadata{}, registry.RegisterOptions{}))
	err := r.Register(tool, registry.Metadata{}, registry.RegisterOptions{})
	require.Error(t, err)

	require.NoError(t, r.Register(tool, registry.Metadata{}, registry.RegisterOptions{Override: true}))
}

func TestUnregisterRunsCleanupBeforeRemoving(t *testing.T) {
	r := registry.New()
	tool := &fakeTool{name: "git", cleanupErr: assertErr}
	require.NoError(t, r.Register(tool, registry.Metadata{}, registry.RegisterOptions{}))

	err := r.Unregister(context.Background(), "git")
	require.Error(t, err)
	require.True(t, r.Has("git"), "entry must survive a failed cleanup")

	tool.cleanupErr = nil
	require.NoError(t, r.Unregister(context.Background(), "git"))
	require.False(t, r.Has("git"))
	require.True(t, tool.cleaned)
}

func TestPartitionByConcurrency(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.Register(&fakeTool{name: "grep", concurrentSafe: true}, registry.Metadata{}, registry.RegisterOptions{}))
	require.NoError(t, r.Register(&fakeTool{name: "write", concurrentSafe: false}, registry.Metadata{}, registry.RegisterOptions{}))

	safe, sequential := r.PartitionByConcurrency([]string{"grep", "write"})
	require.True(t, safe["grep"])
	require.Equal(t, []string{"write"}, sequential)
}

func TestOnChangeListenerFailureDoesNotCorruptRegistry(t *testing.T) {
	r := registry.New()
	unsubscribe := r.OnChange(func(registry.ChangeEvent) { panic("boom") })
	defer unsubscribe()

	require.NoError(t, r.Register(&fakeTool{name: "ls"}, registry.Metadata{}, registry.RegisterOptions{}))
	require.True(t, r.Has("ls"))
}

var assertErr = errCleanup{}

type errCleanup struct{}

func (errCleanup) Error() string { return "cleanup failed" }

package dispatcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeagent/runtime/internal/agentcore"
	"github.com/codeagent/runtime/internal/classifier"
	"github.com/codeagent/runtime/internal/classifier/methods"
	"github.com/codeagent/runtime/internal/command"
	"github.com/codeagent/runtime/internal/memory"
	"github.com/codeagent/runtime/internal/modelprovider"
	"github.com/codeagent/runtime/internal/workflow/engine"
	"github.com/codeagent/runtime/internal/workflow/extractor"
)

type stubClassifyMethod struct {
	name   agentcore.ClassifierMethod
	result agentcore.ClassificationResult
	err    error
}

func (s stubClassifyMethod) Classify(context.Context, string, map[string]any) (agentcore.ClassificationResult, error) {
	return s.result, s.err
}
func (s stubClassifyMethod) Name() agentcore.ClassifierMethod { return s.name }
func (s stubClassifyMethod) ExpectedAccuracy() float64        { return 0.9 }
func (s stubClassifyMethod) AverageLatencyMs() int64          { return 1 }

type stubModel struct {
	response modelprovider.Response
	err      error
}

func (m stubModel) Invoke(context.Context, modelprovider.Request) (modelprovider.Response, error) {
	return m.response, m.err
}
func (m stubModel) Stream(context.Context, modelprovider.Request) (modelprovider.Streamer, error) {
	return nil, modelprovider.ErrStreamingUnsupported
}

func newTestStore(t *testing.T) *memory.Store {
	t.Helper()
	store, err := memory.New(memory.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Shutdown() })
	return store
}

func newTestClassifier(kind agentcore.HandlerKind) *classifier.Classifier {
	result := agentcore.ClassificationResult{Kind: kind, Confidence: 0.95, Method: agentcore.MethodRule}
	return classifier.New(classifier.Config{
		Methods: map[agentcore.ClassifierMethod]methods.Method{
			agentcore.MethodHybrid: stubClassifyMethod{name: agentcore.MethodHybrid, result: result},
			agentcore.MethodRule:   stubClassifyMethod{name: agentcore.MethodRule, result: result},
		},
	})
}

func newTestDispatcher(t *testing.T, kind agentcore.HandlerKind, model modelprovider.Client) (*Dispatcher, *memory.Store) {
	t.Helper()
	store := newTestStore(t)
	d := New(Config{
		Store:      store,
		Classifier: newTestClassifier(kind),
		Model:      model,
	})
	cmds := command.New(command.Config{Store: store, Status: d})
	d.SetCommands(cmds)
	return d, store
}

func newSession(t *testing.T, store *memory.Store) string {
	t.Helper()
	sess, err := store.CreateSession("test", nil)
	require.NoError(t, err)
	return sess.SessionID
}

func TestProcessBuiltinStateCommandBypassesClassification(t *testing.T) {
	d, store := newTestDispatcher(t, agentcore.KindWorkflow, nil) // classifier would pick workflow if consulted
	sessionID := newSession(t, store)

	resp, err := d.Process(context.Background(), agentcore.Request{
		Input:   "/status",
		Context: agentcore.RequestContext{SessionID: sessionID},
	})
	require.NoError(t, err)
	require.Equal(t, agentcore.KindCommand, resp.Kind)
	require.True(t, resp.Success)

	classification, ok := resp.Metadata["classification"].(agentcore.ClassificationResult)
	require.True(t, ok)
	require.Equal(t, agentcore.ClassifierMethod("builtin"), classification.Method)
}

func TestProcessRoutesPromptThroughModel(t *testing.T) {
	d, store := newTestDispatcher(t, agentcore.KindPrompt, stubModel{response: modelprovider.Response{Content: "hi there", FinishReason: modelprovider.FinishCompleted}})
	sessionID := newSession(t, store)

	resp, err := d.Process(context.Background(), agentcore.Request{
		Input:   "hello",
		Context: agentcore.RequestContext{SessionID: sessionID},
	})
	require.NoError(t, err)
	require.Equal(t, agentcore.KindPrompt, resp.Kind)
	require.Equal(t, "hi there", resp.Content)

	sess, err := store.GetSession(sessionID)
	require.NoError(t, err)
	require.Len(t, sess.History, 2)
	require.Equal(t, agentcore.RoleUser, sess.History[0].Role)
	require.Equal(t, agentcore.RoleAssistant, sess.History[1].Role)
}

func TestProcessRejectsRequestWithoutSessionID(t *testing.T) {
	d, _ := newTestDispatcher(t, agentcore.KindPrompt, stubModel{})
	_, err := d.Process(context.Background(), agentcore.Request{Input: "hi"})
	require.Error(t, err)
}

func TestProcessDowngradesWorkflowToPromptWhenExtractionFails(t *testing.T) {
	store := newTestStore(t)
	d := New(Config{
		Store:      store,
		Classifier: newTestClassifier(agentcore.KindWorkflow),
		Model:      stubModel{response: modelprovider.Response{Content: "fallback answer"}},
		Extractor:  extractor.New(extractor.Config{Modes: map[string]extractor.ModeDefinition{}}, nil),
		Engine:     engine.New(engine.Config{}),
	})
	cmds := command.New(command.Config{Store: store, Status: d})
	d.SetCommands(cmds)
	sessionID := newSession(t, store)

	resp, err := d.Process(context.Background(), agentcore.Request{
		Input:   "gibberish that matches no mode",
		Context: agentcore.RequestContext{SessionID: sessionID},
	})
	require.NoError(t, err)
	require.Equal(t, agentcore.KindPrompt, resp.Kind)
	require.Equal(t, "fallback answer", resp.Content)
	require.Equal(t, agentcore.KindWorkflow, resp.Metadata["downgradedFrom"])
}

func TestSetModeRejectsUnknownMode(t *testing.T) {
	d, _ := newTestDispatcher(t, agentcore.KindPrompt, stubModel{})
	require.Error(t, d.SetMode("not-a-real-mode"))
	require.NoError(t, d.SetMode("planning"))
	require.Equal(t, "planning", d.Mode())
}

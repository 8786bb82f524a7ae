package methods

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeagent/runtime/internal/agentcore"
	"github.com/codeagent/runtime/internal/modelprovider"
)

// scriptedClient returns the next reply from replies on every Invoke call,
// repeating the last entry once exhausted.
type scriptedClient struct {
	replies []string
	errs    []error
	calls   int
}

func (s *scriptedClient) Invoke(context.Context, modelprovider.Request) (modelprovider.Response, error) {
	i := s.calls
	if i >= len(s.replies) {
		i = len(s.replies) - 1
	}
	s.calls++
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return modelprovider.Response{Content: s.replies[i]}, err
}

func (s *scriptedClient) Stream(context.Context, modelprovider.Request) (modelprovider.Streamer, error) {
	return nil, modelprovider.ErrStreamingUnsupported
}

func TestLLMClassifyParsesWellFormedReply(t *testing.T) {
	client := &scriptedClient{replies: []string{`{"kind":"workflow","confidence":0.92,"reasoning":"multi-step task"}`}}
	llm := NewLLM(LLMConfig{Client: client, ModelID: "test-model"})

	result, err := llm.Classify(context.Background(), "refactor everything", nil)
	require.NoError(t, err)
	require.Equal(t, agentcore.KindWorkflow, result.Kind)
	require.InDelta(t, 0.92, result.Confidence, 0.0001)
	require.Equal(t, agentcore.MethodLLM, result.Method)
	require.Equal(t, 1, client.calls)
}

func TestLLMClassifyToleratesSurroundingProse(t *testing.T) {
	client := &scriptedClient{replies: []string{"Sure, here is my answer: {\"kind\":\"prompt\",\"confidence\":0.6,\"reasoning\":\"ok\"} Hope that helps!"}}
	llm := NewLLM(LLMConfig{Client: client, ModelID: "test-model"})

	result, err := llm.Classify(context.Background(), "what's the weather", nil)
	require.NoError(t, err)
	require.Equal(t, agentcore.KindPrompt, result.Kind)
}

func TestLLMClassifyRetriesOnceOnMalformedReply(t *testing.T) {
	client := &scriptedClient{replies: []string{
		"not json at all",
		`{"kind":"command","confidence":0.7,"reasoning":"recovered"}`,
	}}
	llm := NewLLM(LLMConfig{Client: client, ModelID: "test-model"})

	result, err := llm.Classify(context.Background(), "/status", nil)
	require.NoError(t, err)
	require.Equal(t, agentcore.KindCommand, result.Kind)
	require.Equal(t, 2, client.calls)
}

func TestLLMClassifyFailsAfterRetryExhausted(t *testing.T) {
	client := &scriptedClient{replies: []string{"garbage", "still garbage"}}
	llm := NewLLM(LLMConfig{Client: client, ModelID: "test-model"})

	_, err := llm.Classify(context.Background(), "anything", nil)
	require.Error(t, err)
	require.Equal(t, 2, client.calls)
}

func TestLLMClassifyPropagatesInvokeError(t *testing.T) {
	client := &scriptedClient{replies: []string{""}, errs: []error{errors.New("provider down")}}
	llm := NewLLM(LLMConfig{Client: client, ModelID: "test-model"})

	_, err := llm.Classify(context.Background(), "anything", nil)
	require.Error(t, err)
	require.Equal(t, 1, client.calls)
}

func TestLLMClassifyRejectsUnrecognizedKind(t *testing.T) {
	client := &scriptedClient{replies: []string{
		`{"kind":"unknown","confidence":0.5,"reasoning":"?"}`,
		`{"kind":"unknown","confidence":0.5,"reasoning":"?"}`,
	}}
	llm := NewLLM(LLMConfig{Client: client, ModelID: "test-model"})

	_, err := llm.Classify(context.Background(), "anything", nil)
	require.Error(t, err)
}

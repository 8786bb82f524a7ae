package extractor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeagent/runtime/internal/modelprovider"
)

// scriptedClient returns the next reply from replies on every Invoke call,
// repeating the last entry once exhausted, mirroring methods.scriptedClient.
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

func TestModelExtractorParsesWellFormedReply(t *testing.T) {
	client := &scriptedClient{replies: []string{`{"mode":"creative","params":{"tone":"playful"},"confidence":0.8,"reasoning":"brainstorm request"}`}}
	me, err := NewModelExtractor(client, "test-model")
	require.NoError(t, err)

	mode, params, confidence, err := me.Extract(context.Background(), "let's brainstorm", DefaultModes)
	require.NoError(t, err)
	require.Equal(t, "creative", mode)
	require.Equal(t, "playful", params["tone"])
	require.InDelta(t, 0.8, confidence, 0.0001)
}

func TestModelExtractorToleratesSurroundingProse(t *testing.T) {
	client := &scriptedClient{replies: []string{"Sure: {\"mode\":\"informational\",\"confidence\":0.5} thanks!"}}
	me, err := NewModelExtractor(client, "test-model")
	require.NoError(t, err)

	mode, _, _, err := me.Extract(context.Background(), "what is go", DefaultModes)
	require.NoError(t, err)
	require.Equal(t, "informational", mode)
}

func TestModelExtractorRejectsReplyMissingRequiredField(t *testing.T) {
	client := &scriptedClient{replies: []string{`{"mode":"creative"}`}}
	me, err := NewModelExtractor(client, "test-model")
	require.NoError(t, err)

	_, _, _, err = me.Extract(context.Background(), "anything", DefaultModes)
	require.Error(t, err)
}

func TestModelExtractorRejectsConfidenceOutOfRange(t *testing.T) {
	client := &scriptedClient{replies: []string{`{"mode":"creative","confidence":1.5}`}}
	me, err := NewModelExtractor(client, "test-model")
	require.NoError(t, err)

	_, _, _, err = me.Extract(context.Background(), "anything", DefaultModes)
	require.Error(t, err)
}

func TestModelExtractorRejectsUnrecognizedMode(t *testing.T) {
	client := &scriptedClient{replies: []string{`{"mode":"nonexistent","confidence":0.5}`}}
	me, err := NewModelExtractor(client, "test-model")
	require.NoError(t, err)

	_, _, _, err = me.Extract(context.Background(), "anything", DefaultModes)
	require.Error(t, err)
}

func TestModelExtractorPropagatesInvokeError(t *testing.T) {
	client := &scriptedClient{replies: []string{""}, errs: []error{errors.New("provider down")}}
	me, err := NewModelExtractor(client, "test-model")
	require.NoError(t, err)

	_, _, _, err = me.Extract(context.Background(), "anything", DefaultModes)
	require.Error(t, err)
}

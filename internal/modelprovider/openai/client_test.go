package openai_test

import (
	"context"
	"testing"

	sdkopenai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"github.com/codeagent/runtime/internal/modelprovider"
	openaiprovider "github.com/codeagent/runtime/internal/modelprovider/openai"
)

type mockChatClient struct {
	response sdkopenai.ChatCompletionResponse
	err      error
	captured sdkopenai.ChatCompletionRequest
}

func (m *mockChatClient) CreateChatCompletion(_ context.Context, request sdkopenai.ChatCompletionRequest) (sdkopenai.ChatCompletionResponse, error) {
	m.captured = request
	return m.response, m.err
}

func TestInvokeTranslatesRequestAndResponse(t *testing.T) {
	mock := &mockChatClient{
		response: sdkopenai.ChatCompletionResponse{
			Choices: []sdkopenai.ChatCompletionChoice{
				{FinishReason: sdkopenai.FinishReasonStop, Message: sdkopenai.ChatCompletionMessage{Role: "assistant", Content: "hi there"}},
			},
			Usage: sdkopenai.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		},
	}
	client, err := openaiprovider.New(mock, "gpt-4o")
	require.NoError(t, err)

	resp, err := client.Invoke(context.Background(), modelprovider.Request{
		Messages: []modelprovider.Message{{Role: modelprovider.RoleUser, Content: "ping"}},
		Config:   modelprovider.Configuration{MaxTokens: 256},
	})
	require.NoError(t, err)
	require.Equal(t, "hi there", resp.Content)
	require.Equal(t, modelprovider.FinishStop, resp.FinishReason)
	require.Equal(t, 15, resp.Usage.TotalTokens)

	require.Equal(t, "gpt-4o", mock.captured.Model)
	require.Len(t, mock.captured.Messages, 1)
	require.Equal(t, "ping", mock.captured.Messages[0].Content)
}

func TestInvokeUsesRequestModelOverDefault(t *testing.T) {
	mock := &mockChatClient{}
	client, err := openaiprovider.New(mock, "gpt-4o")
	require.NoError(t, err)

	_, err = client.Invoke(context.Background(), modelprovider.Request{
		Messages: []modelprovider.Message{{Role: modelprovider.RoleUser, Content: "ping"}},
		Config:   modelprovider.Configuration{ModelID: "gpt-4o-mini"},
	})
	require.NoError(t, err)
	require.Equal(t, "gpt-4o-mini", mock.captured.Model)
}

func TestInvokeTranslatesRateLimitError(t *testing.T) {
	mock := &mockChatClient{err: &sdkopenai.APIError{HTTPStatusCode: 429}}
	client, err := openaiprovider.New(mock, "gpt-4o")
	require.NoError(t, err)

	_, err = client.Invoke(context.Background(), modelprovider.Request{
		Messages: []modelprovider.Message{{Role: modelprovider.RoleUser, Content: "ping"}},
	})
	require.ErrorIs(t, err, modelprovider.ErrRateLimited)
}

func TestInvokeRequiresMessages(t *testing.T) {
	client, err := openaiprovider.New(&mockChatClient{}, "gpt-4o")
	require.NoError(t, err)
	_, err = client.Invoke(context.Background(), modelprovider.Request{})
	require.Error(t, err)
}

func TestStreamReportsUnsupported(t *testing.T) {
	client, err := openaiprovider.New(&mockChatClient{}, "gpt-4o")
	require.NoError(t, err)
	_, err = client.Stream(context.Background(), modelprovider.Request{
		Messages: []modelprovider.Message{{Role: modelprovider.RoleUser, Content: "ping"}},
	})
	require.ErrorIs(t, err, modelprovider.ErrStreamingUnsupported)
}

func TestNewRequiresDefaultModel(t *testing.T) {
	_, err := openaiprovider.New(&mockChatClient{}, "")
	require.Error(t, err)
}

// Package openai adapts modelprovider.Client onto the OpenAI Chat
// Completions API.
//
// Grounded on the teacher's features/model/openai/client.go: the same
// ChatClient seam, New/NewFromAPIKey constructor split, and the decision to
// report ErrStreamingUnsupported from Stream rather than fake it, since
// go-openai's ChatCompletion endpoint used here has no streaming method on
// the ChatClient interface this adapter depends on.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/codeagent/runtime/internal/modelprovider"
)

// ChatClient captures the subset of the go-openai client used by the
// adapter; satisfied by *openai.Client or a test double.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client implements modelprovider.Client via OpenAI Chat Completions.
type Client struct {
	chat         ChatClient
	defaultModel string
}

// New builds an OpenAI-backed client from a ChatClient and a default model
// identifier used when Request.Config.ModelID is empty.
func New(chat ChatClient, defaultModel string) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai: chat client is required")
	}
	defaultModel = strings.TrimSpace(defaultModel)
	if defaultModel == "" {
		return nil, errors.New("openai: default model is required")
	}
	return &Client{chat: chat, defaultModel: defaultModel}, nil
}

// NewFromAPIKey constructs a client using the default go-openai HTTP client.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("openai: api key is required")
	}
	return New(openai.NewClient(apiKey), defaultModel)
}

// Invoke renders a chat completion using the configured OpenAI client.
func (c *Client) Invoke(ctx context.Context, req modelprovider.Request) (modelprovider.Response, error) {
	if len(req.Messages) == 0 {
		return modelprovider.Response{}, errors.New("openai: messages are required")
	}
	modelID := strings.TrimSpace(req.Config.ModelID)
	if modelID == "" {
		modelID = c.defaultModel
	}
	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{
			Role:    translateRole(m.Role),
			Content: m.Content,
		}
	}
	request := openai.ChatCompletionRequest{
		Model:       modelID,
		Messages:    messages,
		Temperature: float32(req.Config.Temperature),
		MaxTokens:   req.Config.MaxTokens,
		Stop:        req.Config.StopSequences,
	}
	resp, err := c.chat.CreateChatCompletion(ctx, request)
	if err != nil {
		return modelprovider.Response{}, translateErr(err)
	}
	return translateResponse(resp), nil
}

// Stream reports that OpenAI Chat Completions streaming is not supported by
// this adapter. Callers should fall back to Invoke.
func (c *Client) Stream(context.Context, modelprovider.Request) (modelprovider.Streamer, error) {
	return nil, modelprovider.ErrStreamingUnsupported
}

func translateRole(r modelprovider.Role) string {
	switch r {
	case modelprovider.RoleSystem:
		return openai.ChatMessageRoleSystem
	case modelprovider.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}

func translateErr(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == 429 {
		return fmt.Errorf("%w: %w", modelprovider.ErrRateLimited, err)
	}
	return fmt.Errorf("openai: %w", err)
}

func translateResponse(resp openai.ChatCompletionResponse) modelprovider.Response {
	var content string
	var finish modelprovider.FinishReason
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
		finish = translateFinishReason(resp.Choices[0].FinishReason)
	}
	return modelprovider.Response{
		Content:      content,
		FinishReason: finish,
		Usage: modelprovider.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
}

func translateFinishReason(r openai.FinishReason) modelprovider.FinishReason {
	switch r {
	case openai.FinishReasonStop:
		return modelprovider.FinishStop
	case openai.FinishReasonLength:
		return modelprovider.FinishLength
	case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		return modelprovider.FinishToolCall
	default:
		return modelprovider.FinishCompleted
	}
}

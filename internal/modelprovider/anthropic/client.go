// Package anthropic adapts modelprovider.Client onto the Anthropic Claude
// Messages API.
//
// Grounded on the teacher's features/model/anthropic/client.go: the same
// MessagesClient seam (so callers can substitute a mock in tests), the same
// New/NewFromAPIKey constructor split, and the same rate-limit detection via
// errors.Is against a sentinel. Tool encoding, tool_use translation, and
// thinking-budget handling are dropped: spec.md's ModelRequest carries only
// messages/config/context, no tool definitions.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/codeagent/runtime/internal/modelprovider"
)

// MessagesClient captures the subset of the Anthropic SDK used by the
// adapter; satisfied by *sdk.MessageService or a test double.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
}

// Client implements modelprovider.Client on top of Anthropic Claude Messages.
type Client struct {
	msg          MessagesClient
	defaultModel string
}

// New builds an Anthropic-backed client from a MessagesClient and a default
// model identifier used when Request.Config.ModelID is empty.
func New(msg MessagesClient, defaultModel string) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	if defaultModel == "" {
		return nil, errors.New("anthropic: default model identifier is required")
	}
	return &Client{msg: msg, defaultModel: defaultModel}, nil
}

// NewFromAPIKey constructs a client using the default Anthropic HTTP client
// authenticated with apiKey; an empty apiKey is rejected.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&ac.Messages, defaultModel)
}

// Invoke issues a non-streaming Messages.New request.
func (c *Client) Invoke(ctx context.Context, req modelprovider.Request) (modelprovider.Response, error) {
	params, err := c.prepareRequest(req)
	if err != nil {
		return modelprovider.Response{}, err
	}
	msg, err := c.msg.New(ctx, params)
	if err != nil {
		return modelprovider.Response{}, translateErr(err)
	}
	return translateMessage(msg), nil
}

// Stream invokes Messages.NewStreaming and adapts events into Chunks.
func (c *Client) Stream(ctx context.Context, req modelprovider.Request) (modelprovider.Streamer, error) {
	params, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	stream := c.msg.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, translateErr(err)
	}
	return newStreamer(ctx, stream), nil
}

func (c *Client) prepareRequest(req modelprovider.Request) (sdk.MessageNewParams, error) {
	if len(req.Messages) == 0 {
		return sdk.MessageNewParams{}, errors.New("anthropic: messages are required")
	}
	modelID := req.Config.ModelID
	if modelID == "" {
		modelID = c.defaultModel
	}
	maxTokens := req.Config.MaxTokens
	if maxTokens <= 0 {
		return sdk.MessageNewParams{}, errors.New("anthropic: max_tokens must be positive")
	}

	var msgs []sdk.MessageParam
	var system []sdk.TextBlockParam
	for _, m := range req.Messages {
		switch m.Role {
		case modelprovider.RoleSystem:
			if m.Content != "" {
				system = append(system, sdk.TextBlockParam{Text: m.Content})
			}
		case modelprovider.RoleUser:
			msgs = append(msgs, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case modelprovider.RoleAssistant:
			msgs = append(msgs, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		default:
			return sdk.MessageNewParams{}, fmt.Errorf("anthropic: unsupported message role %q", m.Role)
		}
	}
	if len(msgs) == 0 {
		return sdk.MessageNewParams{}, errors.New("anthropic: at least one user/assistant message is required")
	}

	params := sdk.MessageNewParams{
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
		Model:     sdk.Model(modelID),
	}
	if len(system) > 0 {
		params.System = system
	}
	if req.Config.Temperature > 0 {
		params.Temperature = sdk.Float(req.Config.Temperature)
	}
	if len(req.Config.StopSequences) > 0 {
		params.StopSequences = req.Config.StopSequences
	}
	return params, nil
}

func translateErr(err error) error {
	if isRateLimited(err) {
		return fmt.Errorf("%w: %w", modelprovider.ErrRateLimited, err)
	}
	return fmt.Errorf("anthropic: %w", err)
}

// isRateLimited heuristically detects an Anthropic 429 from the error
// message rather than a concrete SDK error type, since the generated SDK's
// exact HTTP-error shape is not something this adapter takes a hard
// dependency on.
func isRateLimited(err error) bool {
	return err != nil && strings.Contains(err.Error(), "429")
}

func translateMessage(msg *sdk.Message) modelprovider.Response {
	var content string
	for _, block := range msg.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}
	resp := modelprovider.Response{
		Content:      content,
		FinishReason: translateStopReason(string(msg.StopReason)),
	}
	if u := msg.Usage; u.InputTokens != 0 || u.OutputTokens != 0 {
		resp.Usage = modelprovider.Usage{
			PromptTokens:     int(u.InputTokens),
			CompletionTokens: int(u.OutputTokens),
			TotalTokens:      int(u.InputTokens + u.OutputTokens),
		}
	}
	return resp
}

func translateStopReason(reason string) modelprovider.FinishReason {
	switch reason {
	case "end_turn", "stop_sequence":
		return modelprovider.FinishStop
	case "max_tokens":
		return modelprovider.FinishLength
	case "tool_use":
		return modelprovider.FinishToolCall
	default:
		return modelprovider.FinishCompleted
	}
}

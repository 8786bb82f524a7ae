// Package bedrock adapts modelprovider.Client onto the AWS Bedrock Converse
// API.
//
// Grounded on the teacher's features/model/bedrock/client.go: the
// RuntimeClient seam over *bedrockruntime.Client, the Options/New
// constructor shape, text/system message encoding into
// brtypes.ContentBlock/SystemContentBlock, and 429/ThrottlingException
// rate-limit detection via smithy.APIError. Tool-use blocks, reasoning
// (thinking) blocks, cache checkpoints, citations and the ledgerSource
// rehydration hook are all dropped: spec.md's ModelRequest carries neither
// tool definitions nor a run ledger, and has no thinking-budget concept.
package bedrock

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/codeagent/runtime/internal/modelprovider"
)

// RuntimeClient mirrors the subset of the AWS Bedrock runtime client used by
// the adapter; satisfied by *bedrockruntime.Client or a test double.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// Client implements modelprovider.Client on top of AWS Bedrock Converse.
type Client struct {
	runtime      RuntimeClient
	defaultModel string
}

// New builds a Bedrock-backed client from a RuntimeClient and a default
// model identifier used when Request.Config.ModelID is empty.
func New(runtime RuntimeClient, defaultModel string) (*Client, error) {
	if runtime == nil {
		return nil, errors.New("bedrock: runtime client is required")
	}
	defaultModel = strings.TrimSpace(defaultModel)
	if defaultModel == "" {
		return nil, errors.New("bedrock: default model identifier is required")
	}
	return &Client{runtime: runtime, defaultModel: defaultModel}, nil
}

// NewFromClient constructs a client from a concrete *bedrockruntime.Client.
func NewFromClient(raw *bedrockruntime.Client, defaultModel string) (*Client, error) {
	if raw == nil {
		return nil, errors.New("bedrock: runtime client is required")
	}
	return New(raw, defaultModel)
}

// Invoke issues a non-streaming Converse request.
func (c *Client) Invoke(ctx context.Context, req modelprovider.Request) (modelprovider.Response, error) {
	parts, err := prepareRequest(req, c.defaultModel)
	if err != nil {
		return modelprovider.Response{}, err
	}
	output, err := c.runtime.Converse(ctx, buildConverseInput(parts))
	if err != nil {
		return modelprovider.Response{}, translateErr(err)
	}
	return translateResponse(output)
}

// Stream invokes ConverseStream and adapts incremental events into Chunks.
func (c *Client) Stream(ctx context.Context, req modelprovider.Request) (modelprovider.Streamer, error) {
	parts, err := prepareRequest(req, c.defaultModel)
	if err != nil {
		return nil, err
	}
	out, err := c.runtime.ConverseStream(ctx, buildConverseStreamInput(parts))
	if err != nil {
		return nil, translateErr(err)
	}
	stream := out.GetStream()
	if stream == nil {
		return nil, errors.New("bedrock: stream output missing event stream")
	}
	return newStreamer(ctx, stream), nil
}

type requestParts struct {
	modelID     string
	messages    []brtypes.Message
	system      []brtypes.SystemContentBlock
	maxTokens   int
	temperature float64
}

func prepareRequest(req modelprovider.Request, defaultModel string) (*requestParts, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("bedrock: messages are required")
	}
	modelID := strings.TrimSpace(req.Config.ModelID)
	if modelID == "" {
		modelID = defaultModel
	}
	messages, system, err := encodeMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	return &requestParts{
		modelID:     modelID,
		messages:    messages,
		system:      system,
		maxTokens:   req.Config.MaxTokens,
		temperature: req.Config.Temperature,
	}, nil
}

func encodeMessages(msgs []modelprovider.Message) ([]brtypes.Message, []brtypes.SystemContentBlock, error) {
	conversation := make([]brtypes.Message, 0, len(msgs))
	var system []brtypes.SystemContentBlock
	for _, m := range msgs {
		if m.Content == "" {
			continue
		}
		switch m.Role {
		case modelprovider.RoleSystem:
			system = append(system, &brtypes.SystemContentBlockMemberText{Value: m.Content})
		case modelprovider.RoleUser:
			conversation = append(conversation, brtypes.Message{
				Role:    brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.Content}},
			})
		case modelprovider.RoleAssistant:
			conversation = append(conversation, brtypes.Message{
				Role:    brtypes.ConversationRoleAssistant,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.Content}},
			})
		default:
			return nil, nil, fmt.Errorf("bedrock: unsupported message role %q", m.Role)
		}
	}
	if len(conversation) == 0 {
		return nil, nil, errors.New("bedrock: at least one user/assistant message is required")
	}
	return conversation, system, nil
}

func buildConverseInput(parts *requestParts) *bedrockruntime.ConverseInput {
	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(parts.modelID),
		Messages: parts.messages,
	}
	if len(parts.system) > 0 {
		input.System = parts.system
	}
	if cfg := inferenceConfig(parts); cfg != nil {
		input.InferenceConfig = cfg
	}
	return input
}

func buildConverseStreamInput(parts *requestParts) *bedrockruntime.ConverseStreamInput {
	input := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(parts.modelID),
		Messages: parts.messages,
	}
	if len(parts.system) > 0 {
		input.System = parts.system
	}
	if cfg := inferenceConfig(parts); cfg != nil {
		input.InferenceConfig = cfg
	}
	return input
}

func inferenceConfig(parts *requestParts) *brtypes.InferenceConfiguration {
	var cfg brtypes.InferenceConfiguration
	if parts.maxTokens > 0 {
		cfg.MaxTokens = aws.Int32(int32(parts.maxTokens)) //nolint:gosec // bounded by caller config
	}
	if parts.temperature > 0 {
		cfg.Temperature = aws.Float32(float32(parts.temperature))
	}
	if cfg.MaxTokens == nil && cfg.Temperature == nil {
		return nil
	}
	return &cfg
}

func translateErr(err error) error {
	if isRateLimited(err) {
		return fmt.Errorf("%w: %w", modelprovider.ErrRateLimited, err)
	}
	return fmt.Errorf("bedrock: %w", err)
}

// isRateLimited treats both HTTP 429 responses and provider throttling error
// codes as rate-limited signals.
func isRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			return true
		}
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == 429 {
		return true
	}
	return false
}

func translateResponse(output *bedrockruntime.ConverseOutput) (modelprovider.Response, error) {
	if output == nil {
		return modelprovider.Response{}, errors.New("bedrock: response is nil")
	}
	var content string
	if msg, ok := output.Output.(*brtypes.ConverseOutputMemberMessage); ok {
		for _, block := range msg.Value.Content {
			if tb, ok := block.(*brtypes.ContentBlockMemberText); ok {
				content += tb.Value
			}
		}
	}
	resp := modelprovider.Response{
		Content:      content,
		FinishReason: translateStopReason(output.StopReason),
	}
	if usage := output.Usage; usage != nil {
		resp.Usage = modelprovider.Usage{
			PromptTokens:     int(ptrValue(usage.InputTokens)),
			CompletionTokens: int(ptrValue(usage.OutputTokens)),
			TotalTokens:      int(ptrValue(usage.TotalTokens)),
		}
	}
	return resp, nil
}

func translateStopReason(reason brtypes.StopReason) modelprovider.FinishReason {
	switch reason {
	case brtypes.StopReasonEndTurn, brtypes.StopReasonStopSequence:
		return modelprovider.FinishStop
	case brtypes.StopReasonMaxTokens:
		return modelprovider.FinishLength
	case brtypes.StopReasonToolUse:
		return modelprovider.FinishToolCall
	default:
		return modelprovider.FinishCompleted
	}
}

func ptrValue(p *int32) int32 {
	if p == nil {
		return 0
	}
	return *p
}

package methods

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/codeagent/runtime/internal/agentcore"
	"github.com/codeagent/runtime/internal/modelprovider"
)

const defaultClassificationSystemPrompt = `You classify a coding assistant's user input into exactly one of three kinds:
- "command": the user is invoking a built-in slash command.
- "prompt": the user wants a direct conversational answer.
- "workflow": the user wants a multi-step, tool-using task performed.
Reply with a single JSON object and nothing else: {"kind":"command|prompt|workflow","confidence":<0..1>,"reasoning":"<short reason>"}.`

// LLMConfig configures the LLM classifier method.
type LLMConfig struct {
	Client       modelprovider.Client
	ModelID      string
	Temperature  float64
	SystemPrompt string
}

// LLM calls the model provider with a classification prompt and parses a
// structured `{kind, confidence, reasoning}` reply, per spec.md §4.7.
// Retries once on parse failure (a second Invoke with the same input),
// grounded on the teacher's planner retry-once-on-malformed-output
// discipline (runtime/agent/planner's ToolError/RetryHint flow).
type LLM struct {
	client       modelprovider.Client
	modelID      string
	temperature  float64
	systemPrompt string
}

// NewLLM builds an LLM method from cfg.
func NewLLM(cfg LLMConfig) *LLM {
	prompt := cfg.SystemPrompt
	if prompt == "" {
		prompt = defaultClassificationSystemPrompt
	}
	return &LLM{
		client:       cfg.Client,
		modelID:      cfg.ModelID,
		temperature:  cfg.Temperature,
		systemPrompt: prompt,
	}
}

func (l *LLM) Name() agentcore.ClassifierMethod { return agentcore.MethodLLM }
func (l *LLM) ExpectedAccuracy() float64        { return 0.9 }
func (l *LLM) AverageLatencyMs() int64          { return 400 }

func (l *LLM) Classify(ctx context.Context, text string, _ map[string]any) (agentcore.ClassificationResult, error) {
	req := l.buildRequest(text)
	resp, err := l.client.Invoke(ctx, req)
	if err != nil {
		return agentcore.ClassificationResult{}, fmt.Errorf("classifier llm: invoke: %w", err)
	}
	result, parseErr := parseClassification(resp.Content)
	if parseErr == nil {
		return result, nil
	}

	// Retry once on a malformed reply before giving up.
	resp, err = l.client.Invoke(ctx, req)
	if err != nil {
		return agentcore.ClassificationResult{}, fmt.Errorf("classifier llm: invoke retry: %w", err)
	}
	result, parseErr = parseClassification(resp.Content)
	if parseErr != nil {
		return agentcore.ClassificationResult{}, fmt.Errorf("classifier llm: parse reply after retry: %w", parseErr)
	}
	return result, nil
}

func (l *LLM) buildRequest(text string) modelprovider.Request {
	return modelprovider.Request{
		Messages: []modelprovider.Message{
			{Role: modelprovider.RoleSystem, Content: l.systemPrompt},
			{Role: modelprovider.RoleUser, Content: text},
		},
		Config: modelprovider.Configuration{
			ModelID:     l.modelID,
			Temperature: l.temperature,
			MaxTokens:   256,
		},
	}
}

type classificationReply struct {
	Kind       string  `json:"kind"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

func parseClassification(content string) (agentcore.ClassificationResult, error) {
	content = extractJSONObject(content)
	var reply classificationReply
	if err := json.Unmarshal([]byte(content), &reply); err != nil {
		return agentcore.ClassificationResult{}, err
	}
	kind, ok := parseKind(reply.Kind)
	if !ok {
		return agentcore.ClassificationResult{}, fmt.Errorf("classifier llm: unrecognized kind %q", reply.Kind)
	}
	return agentcore.ClassificationResult{
		Kind:       kind,
		Confidence: agentcore.ClampConfidence(reply.Confidence),
		Method:     agentcore.MethodLLM,
		Reasoning:  reply.Reasoning,
	}, nil
}

func parseKind(s string) (agentcore.HandlerKind, bool) {
	switch agentcore.HandlerKind(strings.ToLower(strings.TrimSpace(s))) {
	case agentcore.KindCommand:
		return agentcore.KindCommand, true
	case agentcore.KindPrompt:
		return agentcore.KindPrompt, true
	case agentcore.KindWorkflow:
		return agentcore.KindWorkflow, true
	default:
		return "", false
	}
}

// extractJSONObject trims any leading/trailing prose a model may add around
// the JSON object it was asked to reply with.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < 0 || end < start {
		return s
	}
	return s[start : end+1]
}

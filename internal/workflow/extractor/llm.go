package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/codeagent/runtime/internal/modelprovider"
)

const specSystemPromptTemplate = `You turn a user's request into a workflow specification.
Choose exactly one mode from this list: %s.
Reply with a single JSON object and nothing else:
{"mode":"<one of the modes above>","params":{},"confidence":<0..1>,"reasoning":"<short reason>"}`

// workflowSpecSchemaJSON validates an LLM's structured workflow-spec reply,
// mirroring the teacher's compiled-schema validation style reused from
// executor.validateInput (C4) — the same library, the same
// compile-then-Validate call shape, applied to a model reply instead of a
// tool call's input.
const workflowSpecSchemaJSON = `{
	"type": "object",
	"required": ["mode", "confidence"],
	"properties": {
		"mode": {"type": "string", "minLength": 1},
		"params": {"type": "object"},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1},
		"reasoning": {"type": "string"}
	}
}`

// ModelExtractor is the production LLMExtractor: it asks a model provider
// for a structured workflow spec and validates the reply against
// workflowSpecSchemaJSON before accepting it.
type ModelExtractor struct {
	client  modelprovider.Client
	modelID string
	schema  *jsonschema.Schema
}

// NewModelExtractor builds a ModelExtractor, compiling workflowSpecSchemaJSON
// once at construction.
func NewModelExtractor(client modelprovider.Client, modelID string) (*ModelExtractor, error) {
	var doc any
	if err := json.Unmarshal([]byte(workflowSpecSchemaJSON), &doc); err != nil {
		return nil, fmt.Errorf("extractor: unmarshal workflow spec schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("workflow_spec.json", doc); err != nil {
		return nil, fmt.Errorf("extractor: add workflow spec schema resource: %w", err)
	}
	schema, err := c.Compile("workflow_spec.json")
	if err != nil {
		return nil, fmt.Errorf("extractor: compile workflow spec schema: %w", err)
	}
	return &ModelExtractor{client: client, modelID: modelID, schema: schema}, nil
}

// Extract implements LLMExtractor.
func (m *ModelExtractor) Extract(ctx context.Context, text string, modes map[string]ModeDefinition) (string, map[string]any, float64, error) {
	req := modelprovider.Request{
		Messages: []modelprovider.Message{
			{Role: modelprovider.RoleSystem, Content: fmt.Sprintf(specSystemPromptTemplate, modeNames(modes))},
			{Role: modelprovider.RoleUser, Content: text},
		},
		Config: modelprovider.Configuration{ModelID: m.modelID, MaxTokens: 256},
	}

	resp, err := m.client.Invoke(ctx, req)
	if err != nil {
		return "", nil, 0, fmt.Errorf("extractor: invoke: %w", err)
	}

	var doc any
	raw := extractJSONObject(resp.Content)
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return "", nil, 0, fmt.Errorf("extractor: reply is not valid JSON: %w", err)
	}
	if err := m.schema.Validate(doc); err != nil {
		return "", nil, 0, fmt.Errorf("extractor: reply failed schema validation: %w", err)
	}

	var reply struct {
		Mode       string         `json:"mode"`
		Params     map[string]any `json:"params"`
		Confidence float64        `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return "", nil, 0, fmt.Errorf("extractor: decode reply: %w", err)
	}
	if _, ok := modes[reply.Mode]; !ok {
		return "", nil, 0, fmt.Errorf("extractor: model selected unrecognized mode %q", reply.Mode)
	}
	return reply.Mode, reply.Params, reply.Confidence, nil
}

func modeNames(modes map[string]ModeDefinition) string {
	names := make([]string, 0, len(modes))
	for name := range modes {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// extractJSONObject trims any leading/trailing prose around the JSON object
// a model was asked to reply with, mirroring methods.extractJSONObject (C7).
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < 0 || end < start {
		return s
	}
	return s[start : end+1]
}

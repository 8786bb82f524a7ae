package agentcore

import "time"

// HandlerKind tags which of the three handlers produced a Response.
type HandlerKind string

const (
	KindCommand  HandlerKind = "command"
	KindPrompt   HandlerKind = "prompt"
	KindWorkflow HandlerKind = "workflow"
)

// Response is the unified shape returned by every handler. Metadata always
// carries at least a "classification" entry and per-phase timings; workflow
// responses additionally carry workflowId/executionPath/nodeCount.
type Response struct {
	Success         bool
	Content         string
	Kind            HandlerKind
	Confidence      float64
	ExecutionTimeMs int64
	ToolsUsed       []string
	Metadata        map[string]any
	Error           string
}

// NewResponse builds a Response with an initialized Metadata map so callers
// never need to nil-check before writing into it.
func NewResponse(kind HandlerKind) *Response {
	return &Response{
		Kind:     kind,
		Metadata: map[string]any{},
	}
}

// WithTiming stamps ExecutionTimeMs from the supplied start time.
func (r *Response) WithTiming(start time.Time) *Response {
	r.ExecutionTimeMs = time.Since(start).Milliseconds()
	return r
}

// MergeMetadata copies entries from extra into the response metadata,
// overwriting on key collision. Nil-safe on both sides.
func (r *Response) MergeMetadata(extra map[string]any) {
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}
	for k, v := range extra {
		r.Metadata[k] = v
	}
}

// Package extractor implements the Workflow Extractor (C10): turns free
// text into a WorkflowSpec the engine (C11) can compile and run, per
// spec.md §4.10.
//
// Grounded on the teacher's structured-decision parsing discipline
// (runtime/agent/planner.Planner, reused from C7's LLM method) for the LLM
// extraction method, and features/policy/basic/engine.go's deterministic
// keyword-scoring style (reused from C7's Rule method) for the Template
// method.
package extractor

import (
	"context"
	"fmt"
	"strings"

	"github.com/codeagent/runtime/internal/agentcore"
)

// Method names an extraction strategy, per spec.md §4.10.
type Method string

const (
	MethodTemplate Method = "template"
	MethodLLM      Method = "llm"
	MethodHybrid   Method = "hybrid"
)

// ModeDefinition binds a named mode to the engine Pattern it compiles to and
// the keywords a Template match scores against.
type ModeDefinition struct {
	Pattern  agentcore.Pattern
	Keywords []string
}

// DefaultModes covers every engine pattern with an identically-named mode,
// per spec.md §4.10's "mode -> pattern map"; callers may override or extend
// this set via Config.Modes.
var DefaultModes = map[string]ModeDefinition{
	"analytical": {
		Pattern:  agentcore.PatternAnalytical,
		Keywords: []string{"analyze", "compare", "evaluate", "why", "trend", "data"},
	},
	"creative": {
		Pattern:  agentcore.PatternCreative,
		Keywords: []string{"brainstorm", "design", "imagine", "creative", "idea", "write a story"},
	},
	"problem-solving": {
		Pattern:  agentcore.PatternProblemSolve,
		Keywords: []string{"fix", "debug", "troubleshoot", "diagnose", "broken", "error"},
	},
	"informational": {
		Pattern:  agentcore.PatternInformational,
		Keywords: []string{"what is", "explain", "tell me about", "define"},
	},
	"conversational": {
		Pattern:  agentcore.PatternConversation,
		Keywords: []string{"hi", "hello", "thanks", "chat"},
	},
	"react": {
		Pattern:  agentcore.PatternReAct,
		Keywords: []string{"investigate", "look up then", "step by step", "explore"},
	},
	"rewoo": {
		Pattern:  agentcore.PatternReWOO,
		Keywords: []string{"plan and execute", "multiple steps", "in parallel", "pipeline"},
	},
	"adapt": {
		Pattern:  agentcore.PatternADaPT,
		Keywords: []string{"break down", "decompose", "subtasks", "complex project"},
	},
}

// Result is the outcome of ExtractWorkflow, per spec.md §4.10.
type Result struct {
	Success         bool
	WorkflowSpec     agentcore.WorkflowSpec
	Confidence       float64
	ExtractionMethod Method
	Error            string
}

// Config configures an Extractor.
type Config struct {
	Modes map[string]ModeDefinition // defaults to DefaultModes when nil
	// HybridScoreThreshold is the Template confidence below which Hybrid
	// refines with LLM; defaults to 0.5.
	HybridScoreThreshold float64
}

func (c Config) withDefaults() Config {
	if c.Modes == nil {
		c.Modes = DefaultModes
	}
	if c.HybridScoreThreshold == 0 {
		c.HybridScoreThreshold = 0.5
	}
	return c
}

// LLMExtractor is implemented by an LLM-backed extraction strategy; kept as
// a narrow interface so package extractor never imports modelprovider
// directly — mirrors C9's AgentStatus decoupling.
type LLMExtractor interface {
	Extract(ctx context.Context, text string, modes map[string]ModeDefinition) (modeName string, params map[string]any, confidence float64, err error)
}

// Extractor is the Workflow Extractor (C10).
type Extractor struct {
	cfg Config
	llm LLMExtractor
}

// New builds an Extractor. llm may be nil, in which case only MethodTemplate
// is available and a request for MethodLLM/MethodHybrid degrades to
// MethodTemplate.
func New(cfg Config, llm LLMExtractor) *Extractor {
	return &Extractor{cfg: cfg.withDefaults(), llm: llm}
}

// ExtractWorkflow selects method (defaulting to MethodHybrid) and produces a
// WorkflowSpec, per spec.md §4.10.
func (e *Extractor) ExtractWorkflow(ctx context.Context, text string, method Method) Result {
	if method == "" {
		method = MethodHybrid
	}

	switch method {
	case MethodTemplate:
		return e.template(text)
	case MethodLLM:
		if e.llm == nil {
			return e.template(text)
		}
		return e.llmExtract(ctx, text)
	case MethodHybrid:
		return e.hybrid(ctx, text)
	default:
		return e.fallback("unrecognized extraction method %q", string(method))
	}
}

func (e *Extractor) template(text string) Result {
	modeName, score, ok := scoreModes(text, e.cfg.Modes)
	if !ok {
		return e.fallback("no configured mode matched any keyword in the input")
	}
	def := e.cfg.Modes[modeName]
	return Result{
		Success:          true,
		WorkflowSpec:      specFor(def, modeName),
		Confidence:        score,
		ExtractionMethod:  MethodTemplate,
	}
}

func (e *Extractor) llmExtract(ctx context.Context, text string) Result {
	if e.llm == nil {
		return e.fallback("no LLM extractor configured")
	}
	modeName, params, confidence, err := e.llm.Extract(ctx, text, e.cfg.Modes)
	if err != nil {
		return e.fallback("llm extraction failed: %v", err)
	}
	def, ok := e.cfg.Modes[modeName]
	if !ok {
		return e.fallback("llm selected unrecognized mode %q", modeName)
	}
	spec := specFor(def, modeName)
	spec.Params = mergeParams(spec.Params, params)
	return Result{
		Success:          true,
		WorkflowSpec:      spec,
		Confidence:        agentcore.ClampConfidence(confidence),
		ExtractionMethod:  MethodLLM,
	}
}

// hybrid starts with Template; if its score is below the configured
// threshold it refines with LLM and keeps whichever result has the higher
// confidence, comparing the LLM's reported confidence with the Template
// keyword score (a tie goes to the LLM result), per spec.md §4.10.
func (e *Extractor) hybrid(ctx context.Context, text string) Result {
	templateResult := e.template(text)
	if templateResult.Success && templateResult.Confidence >= e.cfg.HybridScoreThreshold {
		templateResult.ExtractionMethod = MethodHybrid
		return templateResult
	}
	if e.llm == nil {
		if templateResult.Success {
			templateResult.ExtractionMethod = MethodHybrid
			return templateResult
		}
		return templateResult
	}

	llmResult := e.llmExtract(ctx, text)
	if !llmResult.Success {
		if templateResult.Success {
			templateResult.ExtractionMethod = MethodHybrid
			return templateResult
		}
		return llmResult
	}
	if !templateResult.Success || llmResult.Confidence >= templateResult.Confidence {
		llmResult.ExtractionMethod = MethodHybrid
		return llmResult
	}
	templateResult.ExtractionMethod = MethodHybrid
	return templateResult
}

// fallback builds the Non-goal-compliant failure shape: success=false with
// pattern=conversational so the dispatcher can downgrade to a prompt, per
// spec.md §4.10.
func (e *Extractor) fallback(format string, args ...any) Result {
	return Result{
		Success: false,
		WorkflowSpec: agentcore.WorkflowSpec{
			Pattern: agentcore.PatternConversation,
		},
		Error: fmt.Sprintf(format, args...),
	}
}

func scoreModes(text string, modes map[string]ModeDefinition) (string, float64, bool) {
	lower := strings.ToLower(text)
	bestMode := ""
	bestScore := -1.0
	for name, def := range modes {
		if len(def.Keywords) == 0 {
			continue
		}
		matches := 0
		for _, kw := range def.Keywords {
			if kw == "" {
				continue
			}
			if strings.Contains(lower, strings.ToLower(kw)) {
				matches++
			}
		}
		if matches == 0 {
			continue
		}
		score := float64(matches) / float64(len(def.Keywords))
		if score > bestScore {
			bestScore = score
			bestMode = name
		}
	}
	if bestMode == "" {
		return "", 0, false
	}
	return bestMode, agentcore.ClampConfidence(bestScore), true
}

func specFor(def ModeDefinition, modeName string) agentcore.WorkflowSpec {
	return agentcore.WorkflowSpec{
		Pattern: def.Pattern,
		Params:  map[string]any{"mode": modeName},
	}
}

func mergeParams(base, extra map[string]any) map[string]any {
	if base == nil {
		base = map[string]any{}
	}
	for k, v := range extra {
		base[k] = v
	}
	return base
}

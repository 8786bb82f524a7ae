package methods

import (
	"context"
	"fmt"
	"sync"

	"github.com/codeagent/runtime/internal/agentcore"
	"github.com/codeagent/runtime/internal/modelprovider"
)

// EnsembleConfig configures the Ensemble method.
type EnsembleConfig struct {
	Client  modelprovider.Client
	ModelID string
	// MinimumAgreement is the agreement ratio at or above which the final
	// confidence gets a small bonus; defaults to 0.6.
	MinimumAgreement float64
	// SystemPrompt overrides the default classification prompt.
	SystemPrompt string
}

type variant struct {
	temperature float64
	weight      float64
}

// defaultVariants implements spec.md §4.7's three LLM variants at
// temperatures {0.1, 0.3, 0.5}; weights favor the lower-temperature (more
// deterministic) variant slightly, matching how ensembles are commonly
// weighted toward the most conservative sampling setting.
var defaultVariants = []variant{
	{temperature: 0.1, weight: 1.2},
	{temperature: 0.3, weight: 1.0},
	{temperature: 0.5, weight: 0.8},
}

// Ensemble runs three LLM variants concurrently at different temperatures
// and votes by weighted count per kind, per spec.md §4.7.
type Ensemble struct {
	variants         []*LLM
	weights          []float64
	minimumAgreement float64
}

// NewEnsemble builds an Ensemble method from cfg.
func NewEnsemble(cfg EnsembleConfig) *Ensemble {
	minAgreement := cfg.MinimumAgreement
	if minAgreement == 0 {
		minAgreement = 0.6
	}
	variants := make([]*LLM, len(defaultVariants))
	weights := make([]float64, len(defaultVariants))
	for i, v := range defaultVariants {
		variants[i] = NewLLM(LLMConfig{
			Client:       cfg.Client,
			ModelID:      cfg.ModelID,
			Temperature:  v.temperature,
			SystemPrompt: cfg.SystemPrompt,
		})
		weights[i] = v.weight
	}
	return &Ensemble{variants: variants, weights: weights, minimumAgreement: minAgreement}
}

func (e *Ensemble) Name() agentcore.ClassifierMethod { return agentcore.MethodEnsemble }
func (e *Ensemble) ExpectedAccuracy() float64        { return 0.93 }
func (e *Ensemble) AverageLatencyMs() int64          { return 600 }

type ensembleOutcome struct {
	result agentcore.ClassificationResult
	weight float64
	err    error
}

func (e *Ensemble) Classify(ctx context.Context, text string, reqCtx map[string]any) (agentcore.ClassificationResult, error) {
	outcomes := make([]ensembleOutcome, len(e.variants))
	var wg sync.WaitGroup
	for i, v := range e.variants {
		wg.Add(1)
		go func(i int, v *LLM) {
			defer wg.Done()
			result, err := v.Classify(ctx, text, reqCtx)
			outcomes[i] = ensembleOutcome{result: result, weight: e.weights[i], err: err}
		}(i, v)
	}
	wg.Wait()

	votes := make(map[agentcore.HandlerKind]float64)
	confidenceSum := make(map[agentcore.HandlerKind]float64)
	var succeeded int
	for _, o := range outcomes {
		if o.err != nil {
			continue
		}
		succeeded++
		votes[o.result.Kind] += o.weight
		confidenceSum[o.result.Kind] += o.result.Confidence
	}
	if succeeded == 0 {
		return agentcore.ClassificationResult{}, fmt.Errorf("classifier ensemble: all %d variants failed", len(e.variants))
	}

	winner, bestScore := agentcore.HandlerKind(""), -1.0
	for kind, weight := range votes {
		mean := confidenceSum[kind] / weightedCount(outcomes, kind)
		score := weight * mean
		if score > bestScore {
			bestScore = score
			winner = kind
		}
	}

	agreementRatio := votes[winner] / totalWeight(outcomes)
	meanConfidence := confidenceSum[winner] / weightedCount(outcomes, winner)
	confidence := meanConfidence * agreementRatio
	if agreementRatio >= e.minimumAgreement {
		confidence += 0.1
	}
	confidence = agentcore.ClampConfidence(min(0.99, confidence))

	return agentcore.ClassificationResult{
		Kind:       winner,
		Confidence: confidence,
		Method:     agentcore.MethodEnsemble,
		Reasoning:  fmt.Sprintf("%d/%d variants voted %s", int(weightedCount(outcomes, winner)), succeeded, winner),
		Metadata: map[string]any{
			"agreement_score": agreementRatio,
		},
	}, nil
}

func weightedCount(outcomes []ensembleOutcome, kind agentcore.HandlerKind) float64 {
	var n float64
	for _, o := range outcomes {
		if o.err == nil && o.result.Kind == kind {
			n++
		}
	}
	if n == 0 {
		return 1
	}
	return n
}

func totalWeight(outcomes []ensembleOutcome) float64 {
	var total float64
	for _, o := range outcomes {
		if o.err == nil {
			total += o.weight
		}
	}
	if total == 0 {
		return 1
	}
	return total
}


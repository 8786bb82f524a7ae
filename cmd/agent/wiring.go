// wiring.go assembles every component (C1-C13) into a single Dispatcher
// from a config.Config, mirroring the teacher's cmd/demo/main.go shape: one
// function that builds every collaborator bottom-up and wires it into the
// next, with zero hidden globals.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/codeagent/runtime/internal/agentcore"
	"github.com/codeagent/runtime/internal/classifier"
	"github.com/codeagent/runtime/internal/classifier/methods"
	"github.com/codeagent/runtime/internal/command"
	"github.com/codeagent/runtime/internal/config"
	"github.com/codeagent/runtime/internal/dispatcher"
	"github.com/codeagent/runtime/internal/executor"
	"github.com/codeagent/runtime/internal/memory"
	"github.com/codeagent/runtime/internal/modelprovider"
	"github.com/codeagent/runtime/internal/modelprovider/anthropic"
	"github.com/codeagent/runtime/internal/modelprovider/openai"
	"github.com/codeagent/runtime/internal/registry"
	"github.com/codeagent/runtime/internal/result"
	"github.com/codeagent/runtime/internal/security"
	"github.com/codeagent/runtime/internal/telemetry"
	"github.com/codeagent/runtime/internal/workflow/engine"
	"github.com/codeagent/runtime/internal/workflow/extractor"
	"github.com/codeagent/runtime/internal/workflow/patterns"
	"github.com/codeagent/runtime/internal/workflow/patterns/llmrunner"
)

// app holds every long-lived component the CLI subcommands touch, so
// "agent health" can introspect the registry/store/model without going
// through the dispatcher.
type app struct {
	cfg        config.Config
	store      *memory.Store
	registry   *registry.Registry
	model      modelprovider.Client
	dispatcher *dispatcher.Dispatcher
}

// registrySafety adapts *registry.Registry's batch-oriented
// PartitionByConcurrency onto patterns.ConcurrencySafety's per-tool query,
// which ReWOO needs since it computes waves dynamically as dependencies
// complete rather than all at once.
type registrySafety struct{ reg *registry.Registry }

func (r registrySafety) IsConcurrencySafe(toolName string) bool {
	tool, ok := r.reg.Get(toolName)
	if !ok {
		return false
	}
	return tool.IsConcurrencySafe()
}

func buildModel(cfg config.ProviderConfig) (modelprovider.Client, error) {
	apiKey := os.Getenv(cfg.APIKeyEnv)
	switch strings.ToLower(cfg.Name) {
	case "anthropic":
		if apiKey == "" {
			return nil, result.New(result.CategoryConfiguration, result.CodeValidation, fmt.Sprintf("%s is not set", cfg.APIKeyEnv))
		}
		return anthropic.NewFromAPIKey(apiKey, cfg.ModelID)
	case "openai":
		if apiKey == "" {
			return nil, result.New(result.CategoryConfiguration, result.CodeValidation, fmt.Sprintf("%s is not set", cfg.APIKeyEnv))
		}
		return openai.NewFromAPIKey(apiKey, cfg.ModelID)
	case "bedrock":
		// Bedrock's RuntimeClient needs an AWS config (region, credential
		// chain) the rest of this CLI has no flags for yet; wiring it
		// needs --aws-region plumbed through first.
		return nil, result.New(result.CategoryConfiguration, result.CodeValidation, "bedrock provider requires AWS credentials wiring not yet exposed by this CLI")
	default:
		return nil, result.New(result.CategoryConfiguration, result.CodeValidation, fmt.Sprintf("unknown provider %q", cfg.Name))
	}
}

func buildClassifierMethod(name string, model modelprovider.Client, modelID string, rule *methods.Rule) (methods.Method, error) {
	switch strings.ToLower(name) {
	case "rule":
		return rule, nil
	case "llm":
		return methods.NewLLM(methods.LLMConfig{Client: model, ModelID: modelID}), nil
	case "hybrid":
		return methods.NewHybrid(methods.HybridConfig{Rule: rule, LLM: methods.NewLLM(methods.LLMConfig{Client: model, ModelID: modelID})}), nil
	case "ensemble":
		return methods.NewEnsemble(methods.EnsembleConfig{Client: model, ModelID: modelID}), nil
	default:
		return nil, result.New(result.CategoryConfiguration, result.CodeValidation, fmt.Sprintf("unknown classifier method %q", name))
	}
}

// buildApp assembles the full component graph from cfg. It returns
// buildModel's error when the configured provider cannot be built, so every
// model-dependent subsystem always receives a non-nil model.
func buildApp(cfg config.Config) (*app, error) {
	model, err := buildModel(cfg.Provider)
	if err != nil {
		return nil, err
	}

	store, err := memory.New(memory.Config{
		Mode:                memory.Mode(cfg.Memory.Mode),
		RootDir:             cfg.Memory.RootDir,
		MaxHistorySize:      cfg.Memory.MaxHistorySize,
		MaxEventsPerSession: cfg.Memory.MaxEventsPerSession,
		MaxSessions:         cfg.Memory.MaxSessions,
		SessionTTL:          cfg.Memory.SessionTTL,
		CleanupInterval:     cfg.Memory.CleanupInterval,
	})
	if err != nil {
		return nil, err
	}

	reg := registry.New()

	policies := security.DefaultPolicies()
	if len(cfg.Security.RateLimits) > 0 {
		policies = map[string]security.Policy{}
		for name, p := range cfg.Security.RateLimits {
			policies[name] = security.Policy{
				WindowMs:        p.WindowMs,
				MaxRequests:     p.MaxRequests,
				BurstLimit:      p.BurstLimit,
				BlockDurationMs: p.BlockDurationMs,
			}
		}
	}
	gateway := security.NewGateway(policies)
	toolExecutor := executor.New(reg, gateway)

	rule := methods.NewRule(methods.RuleConfig{})
	defaultMethod, err := buildClassifierMethod(cfg.Classifier.DefaultMethod, model, cfg.Provider.ModelID, rule)
	if err != nil {
		return nil, err
	}
	fallbackMethod, err := buildClassifierMethod(cfg.Classifier.FallbackMethod, model, cfg.Provider.ModelID, rule)
	if err != nil {
		return nil, err
	}
	methodSet := map[agentcore.ClassifierMethod]methods.Method{
		defaultMethod.Name():  defaultMethod,
		fallbackMethod.Name(): fallbackMethod,
	}
	classify := classifier.New(classifier.Config{
		Methods:              methodSet,
		DefaultMethod:        defaultMethod.Name(),
		FallbackMethod:       fallbackMethod.Name(),
		EnsembleForUncertain: cfg.Classifier.EnsembleForUncertain,
		ConfidenceThreshold:  cfg.Classifier.ConfidenceThreshold,
	})

	modelExtractor, err := extractor.NewModelExtractor(model, cfg.Provider.ModelID)
	if err != nil {
		return nil, err
	}
	extract := extractor.New(extractor.Config{}, modelExtractor)

	backend := llmrunner.New(model, cfg.Provider.ModelID, cfg.Provider.Temperature)
	patternsFactory := patterns.Factory(patterns.Config{
		Generic:  backend,
		Executor: toolExecutor,
		React:    patterns.NewReAct(backend, toolExecutor, patterns.DefaultMaxSteps),
		ReWOO:    patterns.NewReWOO(backend, toolExecutor, registrySafety{reg}, backend),
		ADaPT:    patterns.NewADaPT(backend, backend, patterns.DefaultMaxDecompositionLevel),
	})
	eng := engine.New(engine.Config{Factory: patternsFactory})

	logger := buildLogger(cfg.Logging)

	d := dispatcher.New(dispatcher.Config{
		Store:      store,
		Classifier: classify,
		Model:      model,
		ModelConfig: modelprovider.Configuration{
			ModelID:     cfg.Provider.ModelID,
			Temperature: cfg.Provider.Temperature,
			MaxTokens:   2048,
		},
		Extractor:        extract,
		ExtractionMethod: extractor.MethodHybrid,
		Engine:           eng,
		Timeouts: dispatcher.Timeouts{
			Classification:    cfg.Timeouts.Classification,
			CommandExecution:  cfg.Timeouts.CommandExecution,
			PromptProcessing:  cfg.Timeouts.PromptProcessing,
			WorkflowExecution: cfg.Timeouts.WorkflowExecution,
		},
		MaxHistorySize:   cfg.Memory.MaxHistorySize,
		Logger:           logger,
		AvailableMethods: []string{string(defaultMethod.Name()), string(fallbackMethod.Name())},
	})
	cmds := command.New(command.Config{Store: store, Status: d})
	d.SetCommands(cmds)

	return &app{cfg: cfg, store: store, registry: reg, model: model, dispatcher: d}, nil
}

func buildLogger(cfg config.LoggingConfig) telemetry.Logger {
	if cfg.Format == "" && !cfg.Debug {
		return telemetry.NewNoopLogger()
	}
	return telemetry.NewClueLogger()
}

// checkModelReachable issues a minimal Invoke to confirm the configured
// model provider actually answers, for "agent health".
func checkModelReachable(ctx context.Context, model modelprovider.Client, modelID string) error {
	_, err := model.Invoke(ctx, modelprovider.Request{
		Messages: []modelprovider.Message{{Role: modelprovider.RoleUser, Content: "ping"}},
		Config:   modelprovider.Configuration{ModelID: modelID, MaxTokens: 1},
	})
	return err
}

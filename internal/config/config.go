// Package config assembles the explicit struct the process boundary
// (cmd/agent) builds from a YAML file plus environment variable overrides,
// per spec.md §6's "configuration... CLI argument parsing" boundary note.
//
// Grounded on the haasonsaas-nexus example repo's internal/config package
// (config.go/loader.go):
// a single yaml-tagged Config struct, os.ExpandEnv applied to the raw file
// before unmarshalling so `${ANTHROPIC_API_KEY}`-style references resolve,
// and a withDefaults() pass rather than hidden package-level globals. The
// teacher's `$include` directive merging is not carried: this runtime has a
// single flat config, not a multi-channel gateway composing many files.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration assembled at the process boundary.
type Config struct {
	Provider   ProviderConfig   `yaml:"provider"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Memory     MemoryConfig     `yaml:"memory"`
	Timeouts   TimeoutsConfig   `yaml:"timeouts"`
	Security   SecurityConfig   `yaml:"security"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ProviderConfig selects and configures the Model Provider (C6).
type ProviderConfig struct {
	// Name is one of "anthropic", "openai", "bedrock".
	Name string `yaml:"name"`
	// ModelID is the default model identifier used for requests that don't
	// override it.
	ModelID string `yaml:"modelId"`
	// APIKeyEnv names the environment variable holding the provider API key
	// (unused for bedrock, which cmd/agent rejects with a configuration error).
	APIKeyEnv   string  `yaml:"apiKeyEnv"`
	Temperature float64 `yaml:"temperature"`
}

// ClassifierConfig configures the Input Classifier (C8).
type ClassifierConfig struct {
	// DefaultMethod/FallbackMethod are one of "rule", "llm", "hybrid", "ensemble".
	DefaultMethod        string  `yaml:"defaultMethod"`
	FallbackMethod       string  `yaml:"fallbackMethod"`
	EnsembleForUncertain bool    `yaml:"ensembleForUncertain"`
	ConfidenceThreshold  float64 `yaml:"confidenceThreshold"`
}

// MemoryConfig configures the Memory Store (C5).
type MemoryConfig struct {
	// Mode is one of "memory", "file", "hybrid".
	Mode                string        `yaml:"mode"`
	RootDir             string        `yaml:"rootDir"`
	MaxHistorySize      int           `yaml:"maxHistorySize"`
	MaxEventsPerSession int           `yaml:"maxEventsPerSession"`
	MaxSessions         int           `yaml:"maxSessions"`
	SessionTTL          time.Duration `yaml:"sessionTtl"`
	CleanupInterval     time.Duration `yaml:"cleanupInterval"`
}

// TimeoutsConfig configures the Agent Dispatcher's (C13) per-phase bounds.
type TimeoutsConfig struct {
	Classification    time.Duration `yaml:"classification"`
	CommandExecution  time.Duration `yaml:"commandExecution"`
	PromptProcessing  time.Duration `yaml:"promptProcessing"`
	WorkflowExecution time.Duration `yaml:"workflowExecution"`
}

// SecurityConfig configures the Security Gateway's (C3) rate-limit
// categories; a nil/empty map falls back to security.DefaultPolicies().
type SecurityConfig struct {
	RateLimits map[string]RateLimitPolicy `yaml:"rateLimits"`
}

// RateLimitPolicy mirrors internal/security.Policy with YAML tags.
type RateLimitPolicy struct {
	WindowMs        int64 `yaml:"windowMs"`
	MaxRequests     int   `yaml:"maxRequests"`
	BurstLimit      int   `yaml:"burstLimit"`
	BlockDurationMs int64 `yaml:"blockDurationMs"`
}

// LoggingConfig configures the ambient telemetry stack.
type LoggingConfig struct {
	// Format names the log format, "json" or "terminal". cmd/agent only
	// checks whether it is set: with Format empty and Debug false logging is
	// disabled; otherwise a clue logger is used, and the value itself is not
	// passed to it.
	Format string `yaml:"format"`
	Debug  bool   `yaml:"debug"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		Provider: ProviderConfig{
			Name:        "anthropic",
			ModelID:     "claude-3-5-sonnet-latest",
			APIKeyEnv:   "ANTHROPIC_API_KEY",
			Temperature: 0.2,
		},
		Classifier: ClassifierConfig{
			DefaultMethod:       "hybrid",
			FallbackMethod:      "rule",
			ConfidenceThreshold: 0.6,
		},
		Memory: MemoryConfig{
			Mode:                "memory",
			MaxHistorySize:      50,
			MaxEventsPerSession: 200,
			MaxSessions:         1000,
			SessionTTL:          24 * time.Hour,
			CleanupInterval:     10 * time.Minute,
		},
		Timeouts: TimeoutsConfig{
			Classification:    5 * time.Second,
			CommandExecution:  30 * time.Second,
			PromptProcessing:  120 * time.Second,
			WorkflowExecution: 600 * time.Second,
		},
		Logging: LoggingConfig{Format: ""},
	}
}

// Load reads path, expands ${ENV_VAR} references against the process
// environment, and unmarshals onto Default()'s values so unset fields keep
// their defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

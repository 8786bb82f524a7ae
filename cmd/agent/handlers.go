package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/codeagent/runtime/internal/agentcore"
	"github.com/codeagent/runtime/internal/config"
	"github.com/codeagent/runtime/internal/dispatcher"
)

// readInput joins positional args with spaces, or reads stdin when none are
// given, matching "agent run (reads a single request from stdin or args)".
func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(bufio.NewReader(cmd.InOrStdin()))
	if err != nil {
		return "", fmt.Errorf("agent: read stdin: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func resolveSession(a *app, sessionID string) (string, error) {
	if sessionID != "" {
		return sessionID, nil
	}
	sess, err := a.store.CreateSession("cli", nil)
	if err != nil {
		return "", err
	}
	return sess.SessionID, nil
}

func buildRequest(sessionID, input string) agentcore.Request {
	return agentcore.Request{
		Input: input,
		Context: agentcore.RequestContext{
			SessionID: sessionID,
			Source:    "cli",
			Timestamp: time.Now(),
		},
	}
}

func runRun(cmd *cobra.Command, configPath, sessionID string, args []string) error {
	input, err := readInput(cmd, args)
	if err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	sessionID, err = resolveSession(a, sessionID)
	if err != nil {
		return err
	}

	resp, err := a.dispatcher.Process(cmd.Context(), buildRequest(sessionID, input))
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		SessionID string             `json:"sessionId"`
		Response  *agentcore.Response `json:"response"`
	}{SessionID: sessionID, Response: resp})
}

// chunkJSON is dispatcher.Chunk's wire shape: Err doesn't marshal as an
// error interface, and Response/Classification are only present on the
// chunks that actually carry them.
type chunkJSON struct {
	Kind           dispatcher.ChunkKind           `json:"kind"`
	Classification *agentcore.ClassificationResult `json:"classification,omitempty"`
	Delta          string                          `json:"delta,omitempty"`
	Response       *agentcore.Response             `json:"response,omitempty"`
	Error          string                          `json:"error,omitempty"`
}

func toChunkJSON(c dispatcher.Chunk) chunkJSON {
	out := chunkJSON{Kind: c.Kind, Classification: c.Classification, Delta: c.Delta, Response: c.Response}
	if c.Err != nil {
		out.Error = c.Err.Error()
	}
	return out
}

func runStream(cmd *cobra.Command, configPath, sessionID string, args []string) error {
	input, err := readInput(cmd, args)
	if err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	sessionID, err = resolveSession(a, sessionID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	enc := json.NewEncoder(out)
	var streamErr error
	for chunk := range a.dispatcher.Stream(cmd.Context(), buildRequest(sessionID, input)) {
		if err := enc.Encode(toChunkJSON(chunk)); err != nil {
			return fmt.Errorf("agent: encode chunk: %w", err)
		}
		if chunk.Kind == dispatcher.ChunkError {
			streamErr = chunk.Err
		}
	}
	return streamErr
}

// healthReport is the JSON shape "agent health" prints, per SPEC_FULL.md's
// health-surface supplement: Tool Registry population, Memory Store
// population, and Model Provider reachability.
type healthReport struct {
	Registry struct {
		Total        int `json:"total"`
		ReadOnly     int `json:"readOnly"`
		ConcurrentOK int `json:"concurrentOk"`
	} `json:"registry"`
	Memory struct {
		Mode          string `json:"mode"`
		TotalSessions int    `json:"totalSessions"`
		TotalEvents   int    `json:"totalEvents"`
	} `json:"memory"`
	Model struct {
		Provider  string `json:"provider"`
		ModelID   string `json:"modelId"`
		Reachable bool   `json:"reachable"`
		Error     string `json:"error,omitempty"`
	} `json:"model"`
}

func runHealth(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	a, err := buildApp(cfg)
	if err != nil {
		return err
	}

	var report healthReport
	stats := a.registry.Stats()
	report.Registry.Total = stats.Total
	report.Registry.ReadOnly = stats.ReadOnly
	report.Registry.ConcurrentOK = stats.ConcurrentOK

	memStats, err := a.store.Statistics()
	if err != nil {
		return err
	}
	report.Memory.Mode = string(memStats.Mode)
	report.Memory.TotalSessions = memStats.TotalSessions
	report.Memory.TotalEvents = memStats.TotalEvents

	report.Model.Provider = cfg.Provider.Name
	report.Model.ModelID = cfg.Provider.ModelID
	if err := checkModelReachable(cmd.Context(), a.model, cfg.Provider.ModelID); err != nil {
		report.Model.Reachable = false
		report.Model.Error = err.Error()
	} else {
		report.Model.Reachable = true
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

package command

import (
	"context"
	"fmt"

	"github.com/codeagent/runtime/internal/memory"
	"github.com/codeagent/runtime/internal/result"
)

// Status reports the outcome of a built-in command execution.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Result is the outcome of executeCommand, per spec.md §4.9.
type Result struct {
	CommandName string
	Status      Status
	Content     string
	Metadata    map[string]any
}

// Builtin is a registered command implementation. Builtins receive the
// parsed args and the invoking session id and may only read/write the
// Memory Store and the AgentStatus surface; they must never invoke tools.
type Builtin func(ctx context.Context, h *Handler, sessionID string, cmd ParsedCommand) (Result, error)

// AgentStatus exposes the read-only subset of dispatcher/classifier state
// the status/model/mode built-ins report on, kept as a narrow interface so
// this package never imports the dispatcher (C13) or classifier (C8)
// packages directly.
type AgentStatus interface {
	// CurrentModel returns the model id the prompt/workflow handlers invoke.
	CurrentModel() string
	// AvailableMethods lists the classifier methods registered with C8.
	AvailableMethods() []string
	// Mode returns the current interaction mode label (e.g. "ready", "planning").
	Mode() string
	// SetMode updates the interaction mode; returns an error if unrecognized.
	SetMode(mode string) error
}

// Handler is the Command Handler (C9): a slash-command parser bound to a
// dispatch table of built-ins, per spec.md §4.9.
type Handler struct {
	prefix   string
	store    *memory.Store
	status   AgentStatus
	builtins map[string]Builtin
}

// Config configures a Handler.
type Config struct {
	// Prefix marks command input; defaults to "/".
	Prefix string
	Store  *memory.Store
	Status AgentStatus
}

// New builds a Handler with the standard built-in set registered
// (status, model, config, mode, session), per spec.md §4.9.
func New(cfg Config) *Handler {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "/"
	}
	h := &Handler{prefix: prefix, store: cfg.Store, status: cfg.Status, builtins: map[string]Builtin{}}
	h.Register("status", builtinStatus)
	h.Register("model", builtinModel)
	h.Register("config", builtinConfig)
	h.Register("mode", builtinMode)
	h.Register("session", builtinSession)
	return h
}

// Register adds or replaces a built-in by name.
func (h *Handler) Register(name string, fn Builtin) {
	h.builtins[name] = fn
}

// Prefix returns the configured command prefix.
func (h *Handler) Prefix() string { return h.prefix }

// Parse delegates to the package-level Parse using the handler's prefix.
func (h *Handler) Parse(input string) (ParsedCommand, bool) {
	return Parse(input, h.prefix)
}

// Execute dispatches a parsed command to its registered built-in.
func (h *Handler) Execute(ctx context.Context, sessionID string, cmd ParsedCommand) (Result, error) {
	fn, ok := h.builtins[cmd.Name]
	if !ok {
		return Result{
			CommandName: cmd.Name,
			Status:      StatusError,
			Content:     fmt.Sprintf("unknown command %q", cmd.Name),
		}, result.New(result.CategoryValidation, result.CodeValidation, fmt.Sprintf("unknown command %q", cmd.Name))
	}
	return fn(ctx, h, sessionID, cmd)
}

func builtinStatus(_ context.Context, h *Handler, sessionID string, cmd ParsedCommand) (Result, error) {
	content := "agent is ready"
	metadata := map[string]any{}
	if h.status != nil {
		metadata["model"] = h.status.CurrentModel()
		metadata["mode"] = h.status.Mode()
		metadata["methods"] = h.status.AvailableMethods()
	}
	if h.store != nil && sessionID != "" {
		if sess, err := h.store.GetSession(sessionID); err == nil {
			metadata["turns"] = len(sess.History)
		}
	}
	return Result{CommandName: "status", Status: StatusSuccess, Content: content, Metadata: metadata}, nil
}

func builtinModel(_ context.Context, h *Handler, _ string, cmd ParsedCommand) (Result, error) {
	if h.status == nil {
		return errResult("model", "agent status is unavailable"), nil
	}
	model := h.status.CurrentModel()
	return Result{
		CommandName: "model",
		Status:      StatusSuccess,
		Content:     fmt.Sprintf("current model: %s", model),
		Metadata:    map[string]any{"model": model},
	}, nil
}

func builtinConfig(_ context.Context, h *Handler, _ string, cmd ParsedCommand) (Result, error) {
	metadata := map[string]any{"prefix": h.prefix}
	if h.status != nil {
		metadata["model"] = h.status.CurrentModel()
		metadata["mode"] = h.status.Mode()
		metadata["methods"] = h.status.AvailableMethods()
	}
	return Result{CommandName: "config", Status: StatusSuccess, Content: "current configuration", Metadata: metadata}, nil
}

func builtinMode(_ context.Context, h *Handler, _ string, cmd ParsedCommand) (Result, error) {
	if h.status == nil {
		return errResult("mode", "agent status is unavailable"), nil
	}
	if len(cmd.Positional) == 0 {
		return Result{
			CommandName: "mode",
			Status:      StatusSuccess,
			Content:     fmt.Sprintf("current mode: %s", h.status.Mode()),
			Metadata:    map[string]any{"mode": h.status.Mode()},
		}, nil
	}
	requested := cmd.Positional[0]
	if err := h.status.SetMode(requested); err != nil {
		return errResult("mode", err.Error()), nil
	}
	return Result{
		CommandName: "mode",
		Status:      StatusSuccess,
		Content:     fmt.Sprintf("mode set to %s", requested),
		Metadata:    map[string]any{"mode": requested},
	}, nil
}

func builtinSession(_ context.Context, h *Handler, sessionID string, cmd ParsedCommand) (Result, error) {
	if h.store == nil {
		return errResult("session", "memory store is unavailable"), nil
	}
	sess, err := h.store.GetSession(sessionID)
	if err != nil {
		return errResult("session", err.Error()), nil
	}
	return Result{
		CommandName: "session",
		Status:      StatusSuccess,
		Content:     fmt.Sprintf("session %s has %d turns", sess.SessionID, len(sess.History)),
		Metadata: map[string]any{
			"sessionId":      sess.SessionID,
			"turns":          len(sess.History),
			"createdAt":      sess.CreatedAt,
			"lastAccessedAt": sess.LastAccessedAt,
		},
	}, nil
}

func errResult(name, message string) Result {
	return Result{CommandName: name, Status: StatusError, Content: message}
}

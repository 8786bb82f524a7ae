// Package registry implements the Tool Registry (C2): a process-wide,
// concurrency-safe catalogue of registered tools. Reads (Get/Has/Discover/
// ListByCategory/ListByTag/Stats) may proceed concurrently; mutations
// (Register/Unregister/Clear) are exclusive, matching spec.md §5's locking
// model.
//
// Grounded on the teacher's runtime/agent/tools.ToolSpec/Ident vocabulary and
// the registry-backed executor in runtime/toolregistry.
package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/codeagent/runtime/internal/agentcore"
	"github.com/codeagent/runtime/internal/result"
)

type (
	// Metadata carries registration-time annotations used by discovery and
	// policy layers without forcing a Tool implementation to expose them.
	Metadata struct {
		Category string
		Tags     []string
	}

	// RegisterOptions governs how Register handles conflicts and validation.
	RegisterOptions struct {
		// Override allows replacing an existing registration of the same name.
		Override bool
		// ValidateOnRegistration rejects a tool missing required capabilities.
		ValidateOnRegistration bool
	}

	// ChangeEvent is delivered to listeners registered via OnChange.
	ChangeEvent struct {
		Kind string // "registered" | "unregistered" | "cleared"
		Name string
	}

	entry struct {
		tool     agentcore.Tool
		metadata Metadata
	}

	listener struct {
		id string
		fn func(ChangeEvent)
	}

	// Stats summarizes the current registry population.
	Stats struct {
		Total         int
		ReadOnly      int
		ConcurrentOK  int
		ByCategory    map[string]int
	}

	// Registry is the concrete Tool Registry implementation.
	Registry struct {
		mu        sync.RWMutex
		entries   map[string]entry
		listeners []listener
	}
)

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{entries: map[string]entry{}}
}

// Register adds a tool under its declared Name(). Register rejects a
// duplicate name unless opts.Override is set; with ValidateOnRegistration it
// also rejects a tool whose declared capabilities are internally
// inconsistent (empty name/version/schema).
func (r *Registry) Register(tool agentcore.Tool, meta Metadata, opts RegisterOptions) error {
	if tool == nil {
		return result.New(result.CategoryValidation, result.CodeValidation, "tool must not be nil")
	}
	name := tool.Name()
	if opts.ValidateOnRegistration {
		if err := validate(tool); err != nil {
			return err
		}
	}

	r.mu.Lock()
	if _, exists := r.entries[name]; exists && !opts.Override {
		r.mu.Unlock()
		return result.New(result.CategoryValidation, result.CodeValidation,
			fmt.Sprintf("tool %q already registered", name))
	}
	r.entries[name] = entry{tool: tool, metadata: meta}
	r.mu.Unlock()

	r.notify(ChangeEvent{Kind: "registered", Name: name})
	return nil
}

func validate(tool agentcore.Tool) error {
	if tool.Name() == "" {
		return result.New(result.CategoryValidation, result.CodeValidation, "tool name is required")
	}
	if tool.Version() == "" {
		return result.New(result.CategoryValidation, result.CodeValidation, "tool version is required")
	}
	if len(tool.InputSchema()) == 0 {
		return result.New(result.CategoryValidation, result.CodeValidation, "tool input schema is required")
	}
	return nil
}

// Unregister removes a tool by name, invoking its Cleanup (if implemented)
// first. If cleanup fails the entry is left in place so the caller can
// retry.
func (r *Registry) Unregister(ctx context.Context, name string) error {
	r.mu.RLock()
	e, exists := r.entries[name]
	r.mu.RUnlock()
	if !exists {
		return result.New(result.CategoryValidation, result.CodeValidation,
			fmt.Sprintf("tool %q is not registered", name))
	}

	if cleanup, ok := e.tool.(agentcore.CleanupTool); ok {
		if err := cleanup.Cleanup(ctx); err != nil {
			return result.Wrap(result.CategorySystem, "CLEANUP_FAILED",
				fmt.Sprintf("cleanup failed for tool %q", name), err)
		}
	}

	r.mu.Lock()
	delete(r.entries, name)
	r.mu.Unlock()

	r.notify(ChangeEvent{Kind: "unregistered", Name: name})
	return nil
}

// Get returns the tool registered under name, if any.
func (r *Registry) Get(name string) (agentcore.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.tool, true
}

// Has reports whether a tool is registered under name.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Discover returns tools whose name or description contains query
// (case-sensitive substring match, kept simple and dependency-free since the
// spec does not require fuzzy search).
func (r *Registry) Discover(query string) []agentcore.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []agentcore.Tool
	for _, e := range r.entries {
		if query == "" || strings.Contains(e.tool.Name(), query) || strings.Contains(e.tool.Description(), query) {
			out = append(out, e.tool)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// ListByCategory returns every tool registered under the given category.
func (r *Registry) ListByCategory(category string) []agentcore.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []agentcore.Tool
	for _, e := range r.entries {
		if e.metadata.Category == category {
			out = append(out, e.tool)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// ListByTag returns every tool annotated with the given tag.
func (r *Registry) ListByTag(tag string) []agentcore.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []agentcore.Tool
	for _, e := range r.entries {
		for _, t := range e.metadata.Tags {
			if t == tag {
				out = append(out, e.tool)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Stats summarizes the current registry population.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Stats{ByCategory: map[string]int{}}
	for _, e := range r.entries {
		s.Total++
		if e.tool.IsReadOnly() {
			s.ReadOnly++
		}
		if e.tool.IsConcurrencySafe() {
			s.ConcurrentOK++
		}
		if e.metadata.Category != "" {
			s.ByCategory[e.metadata.Category]++
		}
	}
	return s
}

// Clear removes every registration without invoking cleanup; intended for
// test teardown, not production shutdown (use Unregister per-tool there).
func (r *Registry) Clear() {
	r.mu.Lock()
	r.entries = map[string]entry{}
	r.mu.Unlock()
	r.notify(ChangeEvent{Kind: "cleared"})
}

// OnChange registers a best-effort listener for registered/unregistered/
// cleared events. Returns an unsubscribe function. A panicking listener is
// recovered so it can never corrupt registry state or break other
// listeners.
func (r *Registry) OnChange(fn func(ChangeEvent)) (unsubscribe func()) {
	id := uuid.NewString()
	r.mu.Lock()
	r.listeners = append(r.listeners, listener{id: id, fn: fn})
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, l := range r.listeners {
			if l.id == id {
				r.listeners = append(r.listeners[:i], r.listeners[i+1:]...)
				return
			}
		}
	}
}

func (r *Registry) notify(evt ChangeEvent) {
	r.mu.RLock()
	ls := append([]listener{}, r.listeners...)
	r.mu.RUnlock()
	for _, l := range ls {
		func() {
			defer func() { _ = recover() }()
			l.fn(evt)
		}()
	}
}

// PartitionByConcurrency splits names into a concurrency-safe set and a
// sequential (order-preserving) list, used by the Tool Executor's batch
// runner (C4) to decide what may be parallelised.
func (r *Registry) PartitionByConcurrency(names []string) (safe map[string]bool, sequential []string) {
	safe = map[string]bool{}
	for _, name := range names {
		tool, ok := r.Get(name)
		if ok && tool.IsConcurrencySafe() {
			safe[name] = true
			continue
		}
		sequential = append(sequential, name)
	}
	return safe, sequential
}

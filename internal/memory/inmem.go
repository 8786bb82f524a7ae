package memory

import (
	"sync"
	"time"

	"github.com/codeagent/runtime/internal/agentcore"
	"github.com/codeagent/runtime/internal/result"
)

// memoryBackend is the pure in-memory backend, grounded on
// runtime/agent/session/inmem.Store: a mutex-guarded map with
// clone-on-read/write so callers never alias internal state.
type memoryBackend struct {
	mu            sync.RWMutex
	sessions      map[string]agentcore.Session
	conversations map[string]agentcore.ConversationState
	events        map[string][]agentcore.ProcessingEvent
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{
		sessions:      make(map[string]agentcore.Session),
		conversations: make(map[string]agentcore.ConversationState),
		events:        make(map[string][]agentcore.ProcessingEvent),
	}
}

func notFound(id string) error {
	return result.New(result.CategoryValidation, result.CodeNotFound, "session not found").
		WithContext("sessionId", id)
}

func (b *memoryBackend) createSession(domain string, metadata map[string]any, now time.Time) (agentcore.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := agentcore.Session{
		SessionID:      newSessionID(),
		CreatedAt:      now,
		LastAccessedAt: now,
		Domain:         domain,
		Metadata:       cloneMap(metadata),
	}
	b.sessions[s.SessionID] = s
	return cloneSession(s), nil
}

func (b *memoryBackend) getSession(id string, now time.Time) (agentcore.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[id]
	if !ok {
		return agentcore.Session{}, notFound(id)
	}
	s.LastAccessedAt = now
	b.sessions[id] = s
	return cloneSession(s), nil
}

// insertSession stores an already-constructed session verbatim, used by
// layeredBackend when the session id is minted outside the cache.
func (b *memoryBackend) insertSession(s agentcore.Session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions[s.SessionID] = cloneSession(s)
}

func (b *memoryBackend) putSession(s agentcore.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.sessions[s.SessionID]; !ok {
		return notFound(s.SessionID)
	}
	b.sessions[s.SessionID] = cloneSession(s)
	return nil
}

func (b *memoryBackend) deleteSession(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.sessions[id]; !ok {
		return notFound(id)
	}
	delete(b.sessions, id)
	delete(b.conversations, id)
	delete(b.events, id)
	return nil
}

func (b *memoryBackend) listSessions() ([]agentcore.Session, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]agentcore.Session, 0, len(b.sessions))
	for _, s := range b.sessions {
		out = append(out, cloneSession(s))
	}
	return out, nil
}

func (b *memoryBackend) saveConversationState(state agentcore.ConversationState) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conversations[state.SessionID] = state
	return nil
}

func (b *memoryBackend) getConversationState(sessionID string) (agentcore.ConversationState, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	state, ok := b.conversations[sessionID]
	if !ok {
		return agentcore.ConversationState{}, notFound(sessionID)
	}
	return state, nil
}

func (b *memoryBackend) deleteConversationState(sessionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conversations, sessionID)
	return nil
}

func (b *memoryBackend) addProcessingEvent(e agentcore.ProcessingEvent, maxEvents int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	events := append(b.events[e.SessionID], e)
	if maxEvents > 0 && len(events) > maxEvents {
		events = events[len(events)-maxEvents:]
	}
	b.events[e.SessionID] = events
	return nil
}

func (b *memoryBackend) getProcessingHistory(sessionID string, limit int) ([]agentcore.ProcessingEvent, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	events := b.events[sessionID]
	if limit > 0 && limit < len(events) {
		events = events[len(events)-limit:]
	}
	out := make([]agentcore.ProcessingEvent, len(events))
	copy(out, events)
	return out, nil
}

func (b *memoryBackend) deleteProcessingHistory(sessionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.events, sessionID)
	return nil
}

func cloneSession(in agentcore.Session) agentcore.Session {
	out := in
	out.Metadata = cloneMap(in.Metadata)
	out.History = append([]agentcore.Turn{}, in.History...)
	return out
}

func cloneMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

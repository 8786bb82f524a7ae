package memory

import (
	"sync"
	"time"

	"github.com/codeagent/runtime/internal/agentcore"
)

// layeredBackend combines an in-memory cache with a durable diskBackend.
// In file mode (synchronous=true) every mutation is written to disk before
// the call returns, satisfying spec.md §4.5's "durable before the
// operation returns". In hybrid mode (synchronous=false) the disk write is
// dispatched in the background; any operation that next touches the same
// sessionId first waits for that write to finish, giving read-your-writes
// without paying the disk latency on every call.
type layeredBackend struct {
	cache       *memoryBackend
	disk        *diskBackend
	synchronous bool

	mu      sync.Mutex
	pending map[string]*sync.WaitGroup
	lastErr map[string]error
}

func newLayeredBackend(disk *diskBackend, synchronous bool) *layeredBackend {
	return &layeredBackend{
		cache:       newMemoryBackend(),
		disk:        disk,
		synchronous: synchronous,
		pending:     make(map[string]*sync.WaitGroup),
		lastErr:     make(map[string]error),
	}
}

// await blocks until any in-flight async write for sessionID completes and
// surfaces its error, if any, exactly once.
func (b *layeredBackend) await(sessionID string) error {
	b.mu.Lock()
	wg := b.pending[sessionID]
	b.mu.Unlock()
	if wg != nil {
		wg.Wait()
	}
	b.mu.Lock()
	err := b.lastErr[sessionID]
	delete(b.lastErr, sessionID)
	b.mu.Unlock()
	return err
}

// commit runs fn against disk: synchronously in file mode, or in the
// background (tracked per sessionID) in hybrid mode.
func (b *layeredBackend) commit(sessionID string, fn func() error) error {
	if b.synchronous {
		return fn()
	}
	wg := &sync.WaitGroup{}
	b.mu.Lock()
	b.pending[sessionID] = wg
	b.mu.Unlock()
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := fn(); err != nil {
			b.mu.Lock()
			b.lastErr[sessionID] = err
			b.mu.Unlock()
		}
	}()
	return nil
}

func (b *layeredBackend) createSession(domain string, metadata map[string]any, now time.Time) (agentcore.Session, error) {
	s := agentcore.Session{
		SessionID:      newSessionID(),
		CreatedAt:      now,
		LastAccessedAt: now,
		Domain:         domain,
		Metadata:       cloneMap(metadata),
	}
	b.cache.insertSession(s)
	if err := b.commit(s.SessionID, func() error { return writeTempThenRename(b.disk.sessionPath(s.SessionID), s) }); err != nil {
		return agentcore.Session{}, err
	}
	return s, nil
}

func (b *layeredBackend) getSession(id string, now time.Time) (agentcore.Session, error) {
	if err := b.await(id); err != nil {
		return agentcore.Session{}, err
	}
	if s, err := b.cache.getSession(id, now); err == nil {
		if err := b.commit(id, func() error { return writeTempThenRename(b.disk.sessionPath(id), s) }); err != nil {
			return agentcore.Session{}, err
		}
		return s, nil
	}
	s, err := b.disk.getSession(id, now)
	if err != nil {
		return agentcore.Session{}, err
	}
	b.cache.insertSession(s)
	return s, nil
}

func (b *layeredBackend) putSession(s agentcore.Session) error {
	if err := b.await(s.SessionID); err != nil {
		return err
	}
	if err := b.cache.putSession(s); err != nil {
		return err
	}
	return b.commit(s.SessionID, func() error { return writeTempThenRename(b.disk.sessionPath(s.SessionID), s) })
}

func (b *layeredBackend) deleteSession(id string) error {
	if err := b.await(id); err != nil {
		return err
	}
	if err := b.cache.deleteSession(id); err != nil {
		return err
	}
	return b.commit(id, func() error { return b.disk.deleteSession(id) })
}

func (b *layeredBackend) listSessions() ([]agentcore.Session, error) {
	diskSessions, err := b.disk.listSessions()
	if err != nil {
		return nil, err
	}
	for _, s := range diskSessions {
		b.cache.insertSession(s)
	}
	return b.cache.listSessions()
}

func (b *layeredBackend) saveConversationState(state agentcore.ConversationState) error {
	if err := b.await(state.SessionID); err != nil {
		return err
	}
	_ = b.cache.saveConversationState(state)
	return b.commit(state.SessionID, func() error { return b.disk.saveConversationState(state) })
}

func (b *layeredBackend) getConversationState(sessionID string) (agentcore.ConversationState, error) {
	if err := b.await(sessionID); err != nil {
		return agentcore.ConversationState{}, err
	}
	if state, err := b.cache.getConversationState(sessionID); err == nil {
		return state, nil
	}
	state, err := b.disk.getConversationState(sessionID)
	if err != nil {
		return agentcore.ConversationState{}, err
	}
	_ = b.cache.saveConversationState(state)
	return state, nil
}

func (b *layeredBackend) deleteConversationState(sessionID string) error {
	if err := b.await(sessionID); err != nil {
		return err
	}
	_ = b.cache.deleteConversationState(sessionID)
	return b.commit(sessionID, func() error { return b.disk.deleteConversationState(sessionID) })
}

func (b *layeredBackend) addProcessingEvent(e agentcore.ProcessingEvent, maxEvents int) error {
	if err := b.await(e.SessionID); err != nil {
		return err
	}
	_ = b.cache.addProcessingEvent(e, maxEvents)
	return b.commit(e.SessionID, func() error { return b.disk.addProcessingEvent(e, maxEvents) })
}

func (b *layeredBackend) getProcessingHistory(sessionID string, limit int) ([]agentcore.ProcessingEvent, error) {
	if err := b.await(sessionID); err != nil {
		return nil, err
	}
	events, _ := b.cache.getProcessingHistory(sessionID, 0)
	if len(events) > 0 {
		if limit > 0 && limit < len(events) {
			events = events[len(events)-limit:]
		}
		return events, nil
	}
	diskEvents, err := b.disk.getProcessingHistory(sessionID, limit)
	if err != nil {
		return nil, err
	}
	return diskEvents, nil
}

func (b *layeredBackend) deleteProcessingHistory(sessionID string) error {
	if err := b.await(sessionID); err != nil {
		return err
	}
	_ = b.cache.deleteProcessingHistory(sessionID)
	return b.commit(sessionID, func() error { return b.disk.deleteProcessingHistory(sessionID) })
}

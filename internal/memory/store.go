package memory

import (
	"fmt"
	"sync"
	"time"

	"github.com/codeagent/runtime/internal/agentcore"
	"github.com/codeagent/runtime/internal/result"
)

// Store is the Memory Store (C5) facade: session CRUD, conversation
// checkpoints, and a per-session processing event log, over a pluggable
// backend (memory/file/hybrid). Per spec.md §5, writes are serialised per
// sessionId; Store holds one mutex per session rather than one global lock
// so independent sessions never contend.
type Store struct {
	cfg     Config
	backend backend

	locks sync.Map // sessionID -> *sync.Mutex

	stopCleanup chan struct{}
	cleanupDone chan struct{}

	mu              sync.Mutex
	lastCleanupAt   time.Time
	evictedSessions int64
}

// New constructs a Store in the mode named by cfg.Mode and starts its
// background cleanup sweep. Callers must call Shutdown when done.
func New(cfg Config) (*Store, error) {
	cfg = cfg.withDefaults()

	var b backend
	switch cfg.Mode {
	case ModeMemory, "":
		cfg.Mode = ModeMemory
		b = newMemoryBackend()
	case ModeFile:
		disk, err := newDiskBackend(cfg.RootDir)
		if err != nil {
			return nil, err
		}
		b = newLayeredBackend(disk, true)
	case ModeHybrid:
		disk, err := newDiskBackend(cfg.RootDir)
		if err != nil {
			return nil, err
		}
		b = newLayeredBackend(disk, false)
	default:
		return nil, result.New(result.CategoryValidation, result.CodeValidation,
			fmt.Sprintf("unknown memory store mode %q", cfg.Mode))
	}

	s := &Store{
		cfg:         cfg,
		backend:     b,
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
	go s.cleanupLoop()
	return s, nil
}

func (s *Store) lockFor(sessionID string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(sessionID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// CreateSession creates a new session in the given domain with arbitrary
// metadata and returns it.
func (s *Store) CreateSession(domain string, metadata map[string]any) (agentcore.Session, error) {
	return s.backend.createSession(domain, metadata, s.cfg.Now())
}

// GetSession loads a session by id, refreshing LastAccessedAt.
func (s *Store) GetSession(id string) (agentcore.Session, error) {
	if id == "" {
		return agentcore.Session{}, result.New(result.CategoryValidation, result.CodeValidation, "session id is required")
	}
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()
	return s.backend.getSession(id, s.cfg.Now())
}

// UpdateSession merges metadata into an existing session and refreshes
// LastAccessedAt.
func (s *Store) UpdateSession(id string, metadata map[string]any) (agentcore.Session, error) {
	if id == "" {
		return agentcore.Session{}, result.New(result.CategoryValidation, result.CodeValidation, "session id is required")
	}
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	now := s.cfg.Now()
	existing, err := s.backend.getSession(id, now)
	if err != nil {
		return agentcore.Session{}, err
	}
	if existing.Metadata == nil {
		existing.Metadata = map[string]any{}
	}
	for k, v := range metadata {
		existing.Metadata[k] = v
	}
	existing.LastAccessedAt = now
	if err := s.backend.putSession(existing); err != nil {
		return agentcore.Session{}, err
	}
	return existing, nil
}

// DeleteSession removes a session along with its conversation state and
// processing history.
func (s *Store) DeleteSession(id string) error {
	if id == "" {
		return result.New(result.CategoryValidation, result.CodeValidation, "session id is required")
	}
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()
	return s.backend.deleteSession(id)
}

// AppendTurn loads the session, appends a turn bounded by maxHistorySize,
// and persists it, refreshing LastAccessedAt.
func (s *Store) AppendTurn(sessionID string, turn agentcore.Turn) (agentcore.Session, error) {
	if sessionID == "" {
		return agentcore.Session{}, result.New(result.CategoryValidation, result.CodeValidation, "session id is required")
	}
	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	now := s.cfg.Now()
	existing, err := s.backend.getSession(sessionID, now)
	if err != nil {
		return agentcore.Session{}, err
	}
	existing.AppendTurn(turn, s.cfg.MaxHistorySize)
	existing.LastAccessedAt = now
	if err := s.backend.putSession(existing); err != nil {
		return agentcore.Session{}, err
	}
	return existing, nil
}

// SaveConversationState persists the session's latest workflow checkpoint.
func (s *Store) SaveConversationState(state agentcore.ConversationState) error {
	if state.SessionID == "" {
		return result.New(result.CategoryValidation, result.CodeValidation, "session id is required")
	}
	lock := s.lockFor(state.SessionID)
	lock.Lock()
	defer lock.Unlock()
	state.UpdatedAt = s.cfg.Now()
	return s.backend.saveConversationState(state)
}

// GetConversationState loads a session's latest workflow checkpoint.
func (s *Store) GetConversationState(sessionID string) (agentcore.ConversationState, error) {
	if sessionID == "" {
		return agentcore.ConversationState{}, result.New(result.CategoryValidation, result.CodeValidation, "session id is required")
	}
	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()
	return s.backend.getConversationState(sessionID)
}

// AddProcessingEvent appends an audit record to the session's processing
// history, bounded by MaxEventsPerSession. EventID is minted if empty.
func (s *Store) AddProcessingEvent(e agentcore.ProcessingEvent) error {
	if e.SessionID == "" {
		return result.New(result.CategoryValidation, result.CodeValidation, "session id is required")
	}
	if e.EventID == "" {
		e.EventID = newEventID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.cfg.Now()
	}
	lock := s.lockFor(e.SessionID)
	lock.Lock()
	defer lock.Unlock()
	return s.backend.addProcessingEvent(e, s.cfg.MaxEventsPerSession)
}

// GetProcessingHistory returns up to limit of the most recent processing
// events for a session (all of them when limit <= 0).
func (s *Store) GetProcessingHistory(sessionID string, limit int) ([]agentcore.ProcessingEvent, error) {
	if sessionID == "" {
		return nil, result.New(result.CategoryValidation, result.CodeValidation, "session id is required")
	}
	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()
	return s.backend.getProcessingHistory(sessionID, limit)
}

// Cleanup evicts sessions older than SessionTTL by LastAccessedAt and, when
// the population exceeds MaxSessions, evicts the oldest-accessed sessions
// first until the store is back at capacity.
func (s *Store) Cleanup() error {
	sessions, err := s.backend.listSessions()
	if err != nil {
		return err
	}

	now := s.cfg.Now()
	var evicted int64
	kept := sessions[:0:0]
	for _, sess := range sessions {
		if now.Sub(sess.LastAccessedAt) >= s.cfg.SessionTTL {
			if err := s.evict(sess.SessionID); err != nil {
				return err
			}
			evicted++
			continue
		}
		kept = append(kept, sess)
	}

	if over := len(kept) - s.cfg.MaxSessions; over > 0 {
		sortByLastAccessedAsc(kept)
		for _, sess := range kept[:over] {
			if err := s.evict(sess.SessionID); err != nil {
				return err
			}
			evicted++
		}
	}

	s.mu.Lock()
	s.lastCleanupAt = now
	s.evictedSessions += evicted
	s.mu.Unlock()
	return nil
}

func (s *Store) evict(sessionID string) error {
	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()
	if err := s.backend.deleteSession(sessionID); err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

func sortByLastAccessedAsc(sessions []agentcore.Session) {
	for i := 1; i < len(sessions); i++ {
		for j := i; j > 0 && sessions[j].LastAccessedAt.Before(sessions[j-1].LastAccessedAt); j-- {
			sessions[j], sessions[j-1] = sessions[j-1], sessions[j]
		}
	}
}

func isNotFound(err error) bool {
	rerr, ok := result.As(err)
	return ok && rerr.Code == result.CodeNotFound
}

func (s *Store) cleanupLoop() {
	defer close(s.cleanupDone)
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = s.Cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

// Shutdown stops the background cleanup sweep. It does not delete any
// persisted state.
func (s *Store) Shutdown() error {
	close(s.stopCleanup)
	<-s.cleanupDone
	return nil
}

// Statistics reports the store's current population and cleanup history.
func (s *Store) Statistics() (Statistics, error) {
	sessions, err := s.backend.listSessions()
	if err != nil {
		return Statistics{}, err
	}
	total := 0
	for _, sess := range sessions {
		events, err := s.backend.getProcessingHistory(sess.SessionID, 0)
		if err != nil {
			return Statistics{}, err
		}
		total += len(events)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return Statistics{
		Mode:            s.cfg.Mode,
		TotalSessions:   len(sessions),
		TotalEvents:     total,
		LastCleanupAt:   s.lastCleanupAt,
		EvictedSessions: s.evictedSessions,
	}, nil
}

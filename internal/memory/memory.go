// Package memory implements the Memory Store (C5): sessions, conversation
// checkpoints, and per-session processing event logs, behind three modes
// (memory/file/hybrid) per spec.md §4.5 and §6.
//
// Grounded on the teacher's runtime/agent/session.Store contract
// (CreateSession/LoadSession/EndSession, ErrSessionNotFound/ErrSessionEnded)
// and its runtime/agent/session/inmem.Store implementation (mutex-guarded
// maps, clone-on-read). The durable file layout and write-temp-then-rename
// crash safety have no teacher analogue — the teacher's durable store is
// features/session/mongo, which this runtime deliberately does not depend
// on (no MongoDB, per spec.md's Non-goals) — so file mode is new code
// written in the teacher's defensive-copy, sentinel-error idiom.
package memory

import (
	"time"

	"github.com/codeagent/runtime/internal/agentcore"
)

// Mode selects the Memory Store's durability strategy.
type Mode string

const (
	ModeMemory Mode = "memory"
	ModeFile   Mode = "file"
	ModeHybrid Mode = "hybrid"
)

const (
	// DefaultMaxHistorySize bounds Session.History per spec.md §3.
	DefaultMaxHistorySize = 50
	// DefaultMaxEventsPerSession bounds the per-session ProcessingEvent log.
	DefaultMaxEventsPerSession = 1000
	// DefaultSessionTTL is the age (by LastAccessedAt) cleanup() evicts at.
	DefaultSessionTTL = 24 * time.Hour
	// DefaultMaxSessions bounds the store; over-capacity evicts oldest
	// LastAccessedAt first.
	DefaultMaxSessions = 1000
	// DefaultCleanupInterval is how often the background sweep runs.
	DefaultCleanupInterval = time.Hour
)

// Config governs a Store's durability mode and eviction policy.
type Config struct {
	Mode Mode
	// RootDir holds the three persisted subtrees (sessions/, conversations/,
	// events/) in file/hybrid mode; unused in memory mode.
	RootDir             string
	MaxHistorySize      int
	MaxEventsPerSession int
	SessionTTL          time.Duration
	MaxSessions         int
	CleanupInterval     time.Duration
	// Now overrides time.Now for tests; defaults to time.Now.
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.MaxHistorySize <= 0 {
		c.MaxHistorySize = DefaultMaxHistorySize
	}
	if c.MaxEventsPerSession <= 0 {
		c.MaxEventsPerSession = DefaultMaxEventsPerSession
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = DefaultSessionTTL
	}
	if c.MaxSessions <= 0 {
		c.MaxSessions = DefaultMaxSessions
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = DefaultCleanupInterval
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Statistics summarizes the Store's current population, returned by
// statistics().
type Statistics struct {
	Mode            Mode
	TotalSessions   int
	TotalEvents     int
	LastCleanupAt   time.Time
	EvictedSessions int64
}

// backend is the durability-specific half of Store: plain CRUD with no
// eviction/locking policy attached. memoryBackend and diskBackend both
// satisfy it; layeredBackend composes the two for file and hybrid modes.
type backend interface {
	createSession(domain string, metadata map[string]any, now time.Time) (agentcore.Session, error)
	getSession(id string, now time.Time) (agentcore.Session, error)
	putSession(s agentcore.Session) error
	deleteSession(id string) error
	listSessions() ([]agentcore.Session, error)

	saveConversationState(state agentcore.ConversationState) error
	getConversationState(sessionID string) (agentcore.ConversationState, error)
	deleteConversationState(sessionID string) error

	addProcessingEvent(e agentcore.ProcessingEvent, maxEvents int) error
	getProcessingHistory(sessionID string, limit int) ([]agentcore.ProcessingEvent, error)
	deleteProcessingHistory(sessionID string) error
}

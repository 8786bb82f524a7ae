package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/codeagent/runtime/internal/agentcore"
	"github.com/codeagent/runtime/internal/result"
)

// diskBackend persists every record as one JSON file per sessionId under
// three subdirectories (sessions/, conversations/, events/), per spec.md
// §6's persisted-state layout. Every write goes through writeTempThenRename
// so a crash mid-write leaves the previous file intact, per §7.
type diskBackend struct {
	root string
}

func newDiskBackend(root string) (*diskBackend, error) {
	for _, sub := range []string{"sessions", "conversations", "events"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, result.Wrap(result.CategorySystem, "MEMORY_STORE_INIT_FAILED",
				fmt.Sprintf("create %s directory", sub), err)
		}
	}
	return &diskBackend{root: root}, nil
}

func (b *diskBackend) sessionPath(id string) string      { return filepath.Join(b.root, "sessions", id+".json") }
func (b *diskBackend) conversationPath(id string) string { return filepath.Join(b.root, "conversations", id+".json") }
func (b *diskBackend) eventsPath(id string) string       { return filepath.Join(b.root, "events", id+".json") }

// writeTempThenRename marshals v, writes it to a temp file in the same
// directory as path, then renames it into place. Rename is atomic on a
// single filesystem, so a crash mid-write never corrupts the prior file.
func writeTempThenRename(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return result.Wrap(result.CategorySystem, "MEMORY_STORE_ENCODE_FAILED", "marshal record", err)
	}
	tmp := path + ".tmp-" + newSessionID()
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return result.Wrap(result.CategorySystem, "MEMORY_STORE_WRITE_FAILED", "write temp file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return result.Wrap(result.CategorySystem, "MEMORY_STORE_WRITE_FAILED", "rename temp file", err)
	}
	return nil
}

func readJSON[T any](path string) (T, bool, error) {
	var out T
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return out, false, nil
		}
		return out, false, result.Wrap(result.CategorySystem, "MEMORY_STORE_READ_FAILED", "read file", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, false, result.Wrap(result.CategorySystem, "MEMORY_STORE_DECODE_FAILED", "unmarshal record", err)
	}
	return out, true, nil
}

func (b *diskBackend) createSession(domain string, metadata map[string]any, now time.Time) (agentcore.Session, error) {
	s := agentcore.Session{
		SessionID:      newSessionID(),
		CreatedAt:      now,
		LastAccessedAt: now,
		Domain:         domain,
		Metadata:       cloneMap(metadata),
	}
	if err := writeTempThenRename(b.sessionPath(s.SessionID), s); err != nil {
		return agentcore.Session{}, err
	}
	return s, nil
}

func (b *diskBackend) getSession(id string, now time.Time) (agentcore.Session, error) {
	s, ok, err := readJSON[agentcore.Session](b.sessionPath(id))
	if err != nil {
		return agentcore.Session{}, err
	}
	if !ok {
		return agentcore.Session{}, notFound(id)
	}
	s.LastAccessedAt = now
	if err := writeTempThenRename(b.sessionPath(id), s); err != nil {
		return agentcore.Session{}, err
	}
	return s, nil
}

func (b *diskBackend) putSession(s agentcore.Session) error {
	if _, ok, err := readJSON[agentcore.Session](b.sessionPath(s.SessionID)); err != nil {
		return err
	} else if !ok {
		return notFound(s.SessionID)
	}
	return writeTempThenRename(b.sessionPath(s.SessionID), s)
}

func (b *diskBackend) deleteSession(id string) error {
	if _, ok, err := readJSON[agentcore.Session](b.sessionPath(id)); err != nil {
		return err
	} else if !ok {
		return notFound(id)
	}
	for _, p := range []string{b.sessionPath(id), b.conversationPath(id), b.eventsPath(id)} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return result.Wrap(result.CategorySystem, "MEMORY_STORE_DELETE_FAILED", "remove file", err)
		}
	}
	return nil
}

func (b *diskBackend) listSessions() ([]agentcore.Session, error) {
	entries, err := os.ReadDir(filepath.Join(b.root, "sessions"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, result.Wrap(result.CategorySystem, "MEMORY_STORE_READ_FAILED", "list sessions directory", err)
	}
	out := make([]agentcore.Session, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		id := e.Name()[:len(e.Name())-len(filepath.Ext(e.Name()))]
		s, ok, err := readJSON[agentcore.Session](b.sessionPath(id))
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (b *diskBackend) saveConversationState(state agentcore.ConversationState) error {
	return writeTempThenRename(b.conversationPath(state.SessionID), state)
}

func (b *diskBackend) getConversationState(sessionID string) (agentcore.ConversationState, error) {
	state, ok, err := readJSON[agentcore.ConversationState](b.conversationPath(sessionID))
	if err != nil {
		return agentcore.ConversationState{}, err
	}
	if !ok {
		return agentcore.ConversationState{}, notFound(sessionID)
	}
	return state, nil
}

func (b *diskBackend) deleteConversationState(sessionID string) error {
	if err := os.Remove(b.conversationPath(sessionID)); err != nil && !os.IsNotExist(err) {
		return result.Wrap(result.CategorySystem, "MEMORY_STORE_DELETE_FAILED", "remove conversation file", err)
	}
	return nil
}

func (b *diskBackend) addProcessingEvent(e agentcore.ProcessingEvent, maxEvents int) error {
	events, _, err := readJSON[[]agentcore.ProcessingEvent](b.eventsPath(e.SessionID))
	if err != nil {
		return err
	}
	events = append(events, e)
	if maxEvents > 0 && len(events) > maxEvents {
		events = events[len(events)-maxEvents:]
	}
	return writeTempThenRename(b.eventsPath(e.SessionID), events)
}

func (b *diskBackend) getProcessingHistory(sessionID string, limit int) ([]agentcore.ProcessingEvent, error) {
	events, _, err := readJSON[[]agentcore.ProcessingEvent](b.eventsPath(sessionID))
	if err != nil {
		return nil, err
	}
	if limit > 0 && limit < len(events) {
		events = events[len(events)-limit:]
	}
	return events, nil
}

func (b *diskBackend) deleteProcessingHistory(sessionID string) error {
	if err := os.Remove(b.eventsPath(sessionID)); err != nil && !os.IsNotExist(err) {
		return result.Wrap(result.CategorySystem, "MEMORY_STORE_DELETE_FAILED", "remove events file", err)
	}
	return nil
}

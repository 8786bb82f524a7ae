package agentcore

import "time"

// TurnRole identifies who authored a conversation Turn.
type TurnRole string

const (
	RoleUser      TurnRole = "user"
	RoleAssistant TurnRole = "assistant"
	RoleSystem    TurnRole = "system"
)

// Turn is one message in a Session's conversation history.
type Turn struct {
	TurnID    string
	Timestamp time.Time
	Role      TurnRole
	Content   string
	Metadata  map[string]any
}

// Session is the durable conversational container bounded by
// maxHistorySize; overflow drops the oldest turn first.
type Session struct {
	SessionID      string
	CreatedAt      time.Time
	LastAccessedAt time.Time
	Domain         string
	Metadata       map[string]any
	History        []Turn
}

// AppendTurn appends a turn and trims the oldest entries so History never
// exceeds maxHistorySize.
func (s *Session) AppendTurn(t Turn, maxHistorySize int) {
	s.History = append(s.History, t)
	if maxHistorySize > 0 && len(s.History) > maxHistorySize {
		overflow := len(s.History) - maxHistorySize
		s.History = s.History[overflow:]
	}
}

// ProcessingEvent is an append-only, per-session audit record capped at
// maxEventsPerSession (newest retained, oldest trimmed first).
type ProcessingEvent struct {
	EventID   string
	SessionID string
	Timestamp time.Time
	Kind      string
	Data      map[string]any
}

// ViolationLevel grades the severity of a security Violation.
type ViolationLevel string

const (
	ViolationLow      ViolationLevel = "low"
	ViolationMedium   ViolationLevel = "medium"
	ViolationHigh     ViolationLevel = "high"
	ViolationCritical ViolationLevel = "critical"
)

// Violation is a single security event recorded by the gateway.
type Violation struct {
	Timestamp   time.Time
	SessionID   string
	ToolName    string
	Type        string
	Level       ViolationLevel
	Description string
	Input       string
	Metadata    map[string]any
}

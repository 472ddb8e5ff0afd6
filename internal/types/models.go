// internal/types/models.go
package types

import (
	"encoding/json"
	"time"
)

// Event types recorded in a session log.
const (
	EventUserMessage = "user_message"
	EventStageOutput = "stage_output"
	EventStageError  = "stage_error"
	EventEscalation  = "escalation"
	EventLoopState   = "loop_state"
)

// Event is one immutable entry of a session's log. Author names the stage
// (or "user") that produced it.
type Event struct {
	ID       EventID         `json:"id"`
	Session  SessionKey      `json:"session"`
	RunID    RunID           `json:"run_id,omitempty"`
	Seq      int64           `json:"seq"`
	Type     string          `json:"type"`
	Author   string          `json:"author"`
	Text     string          `json:"text,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Escalate bool            `json:"escalate,omitempty"`
	At       time.Time       `json:"at"`
}

// IsFailure reports whether the event records a failed stage call.
func (e *Event) IsFailure() bool {
	return e.Type == EventStageError
}

type SessionInfo struct {
	SessionID  string     `json:"session_id"`
	UserID     string     `json:"user_id"`
	SessionKey SessionKey `json:"session_key"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	EventCount int64      `json:"event_count"`
	LastRunID  RunID      `json:"last_run_id,omitempty"`
}

type ArtifactMeta struct {
	ID        ArtifactID `json:"id"`
	Session   SessionKey `json:"session"`
	RunID     RunID      `json:"run_id"`
	Stage     string     `json:"stage"`
	CreatedAt time.Time  `json:"created_at"`
	MimeType  string     `json:"mime_type,omitempty"`
}

// InboundEvent is a user message arriving from any front door.
type InboundEvent struct {
	Source    string          `json:"source"`
	UserID    string          `json:"user_id"`
	SessionID string          `json:"session_id"`
	Text      string          `json:"text"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

// Key returns the session key the event belongs to.
func (e *InboundEvent) Key() SessionKey {
	return UserSessionKey(e.UserID, e.SessionID)
}

// Record is one line of the orchestrator's progress stream.
type Record struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

const (
	RecordProgress = "progress"
	RecordResult   = "result"
)

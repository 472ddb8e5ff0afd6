// internal/types/ids.go
package types

import (
	"strings"

	"github.com/google/uuid"
)

type SessionKey string
type RunID string
type EventID string
type ArtifactID string

// Defaults applied when a chat request omits its identity.
const (
	DefaultUserID    = "test_user"
	DefaultSessionID = "test_session"
)

func NewRunID() RunID {
	return RunID(uuid.New().String())
}

func NewEventID() EventID {
	return EventID(uuid.New().String())
}

func NewArtifactID() ArtifactID {
	return ArtifactID(uuid.New().String())
}

var keyPartEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

// NewSessionKey joins the identity parts of a session. Chat requests use
// (user_id, session_id); other front doors may prefix a source. Each part
// is escaped so distinct part lists never produce the same key.
func NewSessionKey(parts ...string) SessionKey {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = keyPartEscaper.Replace(p)
	}
	return SessionKey(strings.Join(escaped, ":"))
}

// UserSessionKey is the key for a (user_id, session_id) pair, with the
// chat defaults filled in for blank values.
func UserSessionKey(userID, sessionID string) SessionKey {
	if userID == "" {
		userID = DefaultUserID
	}
	if sessionID == "" {
		sessionID = DefaultSessionID
	}
	return NewSessionKey(userID, sessionID)
}

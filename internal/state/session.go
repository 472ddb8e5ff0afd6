// internal/state/session.go
package state

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/user/charterd/internal/types"
)

// Session owns the ordered event log and the state store for one
// (user_id, session_id) pair. Runs within a session are serialized by the
// gateway queue; the mutex only guards readers such as the debug API.
type Session struct {
	Key       types.SessionKey
	UserID    string
	ID        string
	CreatedAt time.Time
	State     *Store

	mu        sync.RWMutex
	events    []*types.Event
	updatedAt time.Time
	lastRunID types.RunID
	journal   types.EventJournal
}

func newSession(userID, sessionID string, journal types.EventJournal) *Session {
	now := time.Now()
	return &Session{
		Key:       types.UserSessionKey(userID, sessionID),
		UserID:    userID,
		ID:        sessionID,
		CreatedAt: now,
		State:     NewStore(),
		updatedAt: now,
		journal:   journal,
	}
}

// Append adds an event to the log, filling in its ID, sequence number,
// session and timestamp. The in-memory append always happens; an error is
// returned only when mirroring to the journal fails.
func (s *Session) Append(ctx context.Context, event *types.Event) error {
	s.mu.Lock()
	if event.ID == "" {
		event.ID = types.NewEventID()
	}
	if event.At.IsZero() {
		event.At = time.Now()
	}
	event.Session = s.Key
	event.Seq = int64(len(s.events)) + 1
	s.events = append(s.events, event)
	s.updatedAt = event.At
	if event.RunID != "" {
		s.lastRunID = event.RunID
	}
	s.mu.Unlock()

	if s.journal == nil {
		return nil
	}
	if err := s.journal.Append(ctx, event); err != nil {
		return fmt.Errorf("journal event: %w", err)
	}
	return nil
}

// Events returns a copy of the log.
func (s *Session) Events() []*types.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.Event, len(s.events))
	copy(out, s.events)
	return out
}

// EventsSince returns the events with a sequence number greater than seq.
func (s *Session) EventsSince(seq int64) []*types.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if seq < 0 {
		seq = 0
	}
	if seq >= int64(len(s.events)) {
		return nil
	}
	out := make([]*types.Event, int64(len(s.events))-seq)
	copy(out, s.events[seq:])
	return out
}

// Len returns the number of events in the log.
func (s *Session) Len() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.events))
}

// LastByAuthor scans backward for the newest event written by author.
func (s *Session) LastByAuthor(author string) *types.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].Author == author {
			return s.events[i]
		}
	}
	return nil
}

// LatestText scans backward for the newest event carrying text, whoever
// wrote it. Stage calls send this as their message.
func (s *Session) LatestText() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].Text != "" {
			return s.events[i].Text
		}
	}
	return ""
}

// Info summarizes the session for listings.
func (s *Session) Info() types.SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return types.SessionInfo{
		SessionID:  s.ID,
		UserID:     s.UserID,
		SessionKey: s.Key,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.updatedAt,
		EventCount: int64(len(s.events)),
		LastRunID:  s.lastRunID,
	}
}

// SessionStore keeps every session in memory for the process lifetime.
// When a journal is set, each session mirrors its events into it.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[types.SessionKey]*Session
	journal  types.EventJournal
}

// NewSessionStore creates an in-memory SessionStore. journal may be nil.
func NewSessionStore(journal types.EventJournal) *SessionStore {
	return &SessionStore{
		sessions: make(map[types.SessionKey]*Session),
		journal:  journal,
	}
}

// ResolveOrCreate returns the session for the pair, creating it on first
// use. created reports whether a new session was made.
func (s *SessionStore) ResolveOrCreate(_ context.Context, userID, sessionID string) (sess *Session, created bool) {
	if userID == "" {
		userID = types.DefaultUserID
	}
	if sessionID == "" {
		sessionID = types.DefaultSessionID
	}
	key := types.UserSessionKey(userID, sessionID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[key]; ok {
		return existing, false
	}
	sess = newSession(userID, sessionID, s.journal)
	s.sessions[key] = sess
	return sess, true
}

// Get returns the session for key.
func (s *SessionStore) Get(key types.SessionKey) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[key]
	return sess, ok
}

// List returns a summary of every session, most recently updated first.
func (s *SessionStore) List() []types.SessionInfo {
	s.mu.RLock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.RUnlock()

	out := make([]types.SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess.Info())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

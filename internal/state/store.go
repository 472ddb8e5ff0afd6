// internal/state/store.go
package state

import (
	"sort"
	"sync"
)

// Well-known state keys written by the pipeline stages.
const (
	KeyResearchFindings = "research_findings"
	KeyJudgeFeedback    = "judge_feedback"
	KeyContentOutput    = "content_output"
)

// Store is the key/value blackboard shared by the stages of one session.
// Set overwrites in place; only the latest value of a key is kept.
type Store struct {
	mu     sync.RWMutex
	values map[string]Value
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{values: make(map[string]Value)}
}

// Set overwrites key with v. Setting an absent value deletes the key.
func (s *Store) Set(key string, v Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.IsAbsent() {
		delete(s.values, key)
		return
	}
	s.values[key] = v
}

// Get returns the value at key, or Absent.
func (s *Store) Get(key string) Value {
	return s.GetOr(key, Absent())
}

// GetOr returns the value at key, or def when the key was never written.
func (s *Store) GetOr(key string, def Value) Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.values[key]; ok {
		return v
	}
	return def
}

// Keys returns the written keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns a JSON-serializable copy of every key.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v.Interface()
	}
	return out
}

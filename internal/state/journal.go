// internal/state/journal.go
package state

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/user/charterd/internal/types"
)

// maxJournalLine bounds a single JSONL record; stage outputs can be large.
const maxJournalLine = 4 * 1024 * 1024

// Journal is a JSONL-backed append-only mirror of session events.
// Events are stored per session in sessions/<key>/events.jsonl.
type Journal struct {
	root  string
	mu    sync.Mutex
	locks map[types.SessionKey]*sync.Mutex
}

// NewJournal creates a file-backed Journal rooted at the given directory.
func NewJournal(root string) *Journal {
	return &Journal{
		root:  root,
		locks: make(map[types.SessionKey]*sync.Mutex),
	}
}

// getLock returns the per-session mutex, creating one if it doesn't exist.
func (j *Journal) getLock(key types.SessionKey) *sync.Mutex {
	j.mu.Lock()
	defer j.mu.Unlock()

	if lock, ok := j.locks[key]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	j.locks[key] = lock
	return lock
}

func (j *Journal) sessionsDir() string {
	return filepath.Join(j.root, "sessions")
}

func (j *Journal) eventsPath(key types.SessionKey) string {
	return filepath.Join(j.sessionsDir(), url.PathEscape(string(key)), "events.jsonl")
}

// Append writes the event as one JSON line. The event must already carry
// its session key and sequence number.
func (j *Journal) Append(_ context.Context, event *types.Event) error {
	if event.Session == "" {
		return fmt.Errorf("journal event %s: missing session", event.ID)
	}
	lock := j.getLock(event.Session)
	lock.Lock()
	defer lock.Unlock()

	path := j.eventsPath(event.Session)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open events file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// read decodes every event of a session. Caller must hold the session lock.
func (j *Journal) read(key types.SessionKey) ([]*types.Event, error) {
	f, err := os.Open(j.eventsPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open events file: %w", err)
	}
	defer f.Close()

	var events []*types.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxJournalLine)
	for scanner.Scan() {
		var event types.Event
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			return nil, fmt.Errorf("unmarshal event: %w", err)
		}
		events = append(events, &event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan events file: %w", err)
	}
	return events, nil
}

// Tail returns the last limit events for the given session.
func (j *Journal) Tail(_ context.Context, key types.SessionKey, limit int) ([]*types.Event, error) {
	lock := j.getLock(key)
	lock.Lock()
	defer lock.Unlock()

	events, err := j.read(key)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}

// Count returns the number of journaled events for the given session.
func (j *Journal) Count(ctx context.Context, key types.SessionKey) (int64, error) {
	events, err := j.Tail(ctx, key, 0)
	if err != nil {
		return 0, err
	}
	return int64(len(events)), nil
}

// Sessions lists the keys of every journaled session.
func (j *Journal) Sessions(_ context.Context) ([]types.SessionKey, error) {
	entries, err := os.ReadDir(j.sessionsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read sessions dir: %w", err)
	}

	keys := make([]types.SessionKey, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name, err := url.PathUnescape(entry.Name())
		if err != nil {
			continue
		}
		keys = append(keys, types.SessionKey(name))
	}
	sort.Slice(keys, func(a, b int) bool { return keys[a] < keys[b] })
	return keys, nil
}

// Remove deletes the journal of one session.
func (j *Journal) Remove(key types.SessionKey) error {
	lock := j.getLock(key)
	lock.Lock()
	defer lock.Unlock()
	return os.RemoveAll(filepath.Dir(j.eventsPath(key)))
}

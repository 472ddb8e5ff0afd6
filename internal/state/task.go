// internal/state/task.go
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/user/charterd/internal/types"
)

// ErrTaskNotFound is returned when no task has the requested name.
var ErrTaskNotFound = errors.New("task not found")

// Task is a named pipeline request that can be fired by a cron schedule or
// a webhook. Results are handed to the delivery target, if any.
type Task struct {
	Name      string `json:"name"`
	Message   string `json:"message"`
	Schedule  string `json:"schedule,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	DeliverTo string `json:"deliver_to,omitempty"`
	Enabled   bool   `json:"enabled"`
}

// Inbound builds the pipeline request for a firing of the task. A non-empty
// message replaces the task's own.
func (t *Task) Inbound(source, message string) *types.InboundEvent {
	if message == "" {
		message = t.Message
	}
	return &types.InboundEvent{
		Source:    source,
		UserID:    t.UserID,
		SessionID: t.SessionID,
		Text:      message,
	}
}

// TaskStore is a JSON-file-backed store for tasks.
type TaskStore struct {
	path string
	mu   sync.RWMutex
}

// NewTaskStore creates a new file-backed TaskStore at the given file path.
func NewTaskStore(path string) *TaskStore {
	return &TaskStore{path: path}
}

// Path returns the file path used by this store.
func (s *TaskStore) Path() string {
	return s.path
}

// List returns all tasks. Returns an empty slice if the file doesn't exist.
func (s *TaskStore) List() ([]*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks, err := s.load()
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		return []*Task{}, nil
	}
	return tasks, nil
}

// Get finds a task by name.
func (s *TaskStore) Get(name string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks, err := s.load()
	if err != nil {
		return nil, err
	}
	if i := indexOf(tasks, name); i >= 0 {
		return tasks[i], nil
	}
	return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, name)
}

// Add appends a task. Names are unique.
func (s *TaskStore) Add(task *Task) error {
	if task.Name == "" {
		return fmt.Errorf("task name is required")
	}
	return s.mutate(func(tasks []*Task) ([]*Task, error) {
		if indexOf(tasks, task.Name) >= 0 {
			return nil, fmt.Errorf("task already exists: %s", task.Name)
		}
		return append(tasks, task), nil
	})
}

// Remove deletes a task by name.
func (s *TaskStore) Remove(name string) error {
	return s.mutate(func(tasks []*Task) ([]*Task, error) {
		i := indexOf(tasks, name)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, name)
		}
		return append(tasks[:i], tasks[i+1:]...), nil
	})
}

// SetEnabled toggles the enabled flag for a task.
func (s *TaskStore) SetEnabled(name string, enabled bool) error {
	return s.mutate(func(tasks []*Task) ([]*Task, error) {
		i := indexOf(tasks, name)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, name)
		}
		tasks[i].Enabled = enabled
		return tasks, nil
	})
}

func indexOf(tasks []*Task, name string) int {
	for i, task := range tasks {
		if task.Name == name {
			return i
		}
	}
	return -1
}

// mutate loads the task list, applies fn and saves the result under the
// write lock.
func (s *TaskStore) mutate(fn func([]*Task) ([]*Task, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := s.load()
	if err != nil {
		return err
	}
	tasks, err = fn(tasks)
	if err != nil {
		return err
	}
	return s.save(tasks)
}

// load reads the JSON file. Returns nil if the file doesn't exist.
func (s *TaskStore) load() ([]*Task, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read tasks file: %w", err)
	}

	var tasks []*Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("unmarshal tasks: %w", err)
	}
	return tasks, nil
}

// save writes the task list with a temp file + rename.
func (s *TaskStore) save(tasks []*Task) error {
	if tasks == nil {
		tasks = []*Task{}
	}
	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tasks: %w", err)
	}
	return writeFileAtomic(s.path, data)
}

// writeFileAtomic writes data to path via a temp file and rename, creating
// the parent directory.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

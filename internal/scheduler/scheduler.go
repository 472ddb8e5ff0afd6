// internal/scheduler/scheduler.go
package scheduler

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/user/charterd/internal/state"
)

// Handler is invoked each time a scheduled task fires. It runs on the cron
// goroutine; the next firing of the same task waits for it to return.
type Handler func(task *state.Task)

// Scheduler evaluates cron expressions from the task store and fires
// pipeline runs through a handler callback.
type Scheduler struct {
	store   *state.TaskStore
	handler Handler

	mu        sync.Mutex
	cron      *cron.Cron
	scheduled []string
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Validate reports whether expr is a schedule the scheduler accepts.
func Validate(expr string) error {
	_, err := cronParser.Parse(expr)
	return err
}

// New creates a Scheduler backed by the given task store.
func New(store *state.TaskStore, handler Handler) *Scheduler {
	return &Scheduler{
		store:   store,
		handler: handler,
		cron:    newCron(),
	}
}

func newCron() *cron.Cron {
	return cron.New(
		cron.WithParser(cronParser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
}

// Start loads tasks from the store, registers enabled tasks that have a
// schedule, and starts the cron ticker. Tasks with a bad schedule are
// logged and skipped.
func (s *Scheduler) Start() error {
	tasks, err := s.store.List()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled = s.scheduled[:0]
	for _, task := range tasks {
		if task.Schedule == "" || !task.Enabled {
			continue
		}

		_, err := s.cron.AddFunc(task.Schedule, func() {
			slog.Info("cron firing task", "name", task.Name, "user_id", task.UserID, "session_id", task.SessionID)
			s.handler(task)
		})
		if err != nil {
			slog.Error("invalid cron schedule", "name", task.Name, "schedule", task.Schedule, "error", err)
			continue
		}
		s.scheduled = append(s.scheduled, task.Name)
		slog.Info("scheduled task", "name", task.Name, "schedule", task.Schedule)
	}
	sort.Strings(s.scheduled)

	s.cron.Start()
	return nil
}

// Scheduled returns the names of the tasks registered by the last Start.
func (s *Scheduler) Scheduled() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.scheduled))
	copy(out, s.scheduled)
	return out
}

// Reload stops the existing cron, creates a new one, and starts again from
// the current task store contents.
func (s *Scheduler) Reload() error {
	s.mu.Lock()
	<-s.cron.Stop().Done()
	s.cron = newCron()
	s.mu.Unlock()
	return s.Start()
}

// Stop stops the cron ticker and waits for running handlers to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.mu.Unlock()
	<-c.Stop().Done()
}

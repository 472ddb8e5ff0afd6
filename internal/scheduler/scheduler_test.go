// internal/scheduler/scheduler_test.go
package scheduler

import (
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/user/charterd/internal/state"
)

func newStore(t *testing.T, tasks ...*state.Task) *state.TaskStore {
	t.Helper()
	store := state.NewTaskStore(filepath.Join(t.TempDir(), "tasks.json"))
	for _, task := range tasks {
		if err := store.Add(task); err != nil {
			t.Fatal(err)
		}
	}
	return store
}

func TestSchedulerFiresTask(t *testing.T) {
	store := newStore(t, &state.Task{
		Name:      "every-second",
		Message:   "A customer support bot",
		Schedule:  "* * * * * *",
		UserID:    "ops",
		SessionID: "nightly",
		Enabled:   true,
	})

	var fires atomic.Int32
	var gotMessage atomic.Value
	sched := New(store, func(task *state.Task) {
		gotMessage.Store(task.Message)
		fires.Add(1)
	})
	if err := sched.Start(); err != nil {
		t.Fatal(err)
	}
	defer sched.Stop()

	// Wait up to 2.5 seconds for at least one fire
	deadline := time.After(2500 * time.Millisecond)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			t.Fatalf("handler did not fire within 2.5s, fires=%d", fires.Load())
		case <-ticker.C:
			if fires.Load() > 0 {
				if msg, _ := gotMessage.Load().(string); msg != "A customer support bot" {
					t.Errorf("unexpected task message %q", msg)
				}
				return
			}
		}
	}
}

func TestSchedulerSkipsDisabledAndUnscheduled(t *testing.T) {
	store := newStore(t,
		&state.Task{Name: "disabled-task", Message: "x", Schedule: "* * * * * *", Enabled: false},
		&state.Task{Name: "no-schedule", Message: "webhook only", Enabled: true},
		&state.Task{Name: "bad-schedule", Message: "x", Schedule: "not a cron", Enabled: true},
	)

	var fires atomic.Int32
	sched := New(store, func(*state.Task) { fires.Add(1) })
	if err := sched.Start(); err != nil {
		t.Fatal(err)
	}
	defer sched.Stop()

	if names := sched.Scheduled(); len(names) != 0 {
		t.Errorf("expected nothing scheduled, got %v", names)
	}

	time.Sleep(1500 * time.Millisecond)

	if n := fires.Load(); n != 0 {
		t.Errorf("expected 0 fires, got %d", n)
	}
}

func TestSchedulerReload(t *testing.T) {
	store := newStore(t)
	sched := New(store, func(*state.Task) {})
	if err := sched.Start(); err != nil {
		t.Fatal(err)
	}
	defer sched.Stop()

	if err := store.Add(&state.Task{Name: "weekly", Message: "x", Schedule: "0 9 * * 1", Enabled: true}); err != nil {
		t.Fatal(err)
	}
	if err := sched.Reload(); err != nil {
		t.Fatal(err)
	}

	names := sched.Scheduled()
	if len(names) != 1 || names[0] != "weekly" {
		t.Errorf("expected weekly to be scheduled, got %v", names)
	}
}

func TestValidate(t *testing.T) {
	for _, expr := range []string{"0 9 * * 1", "*/5 * * * * *", "@daily"} {
		if err := Validate(expr); err != nil {
			t.Errorf("Validate(%q): %v", expr, err)
		}
	}
	if err := Validate("every tuesday"); err == nil {
		t.Error("expected error for invalid expression")
	}
}

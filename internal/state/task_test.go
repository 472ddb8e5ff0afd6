// internal/state/task_test.go
package state

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestTaskStore_ListEmpty(t *testing.T) {
	store := NewTaskStore(filepath.Join(t.TempDir(), "tasks.json"))

	tasks, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 0 {
		t.Errorf("expected empty list, got %d tasks", len(tasks))
	}
}

func TestTaskStore_AddAndGet(t *testing.T) {
	store := NewTaskStore(filepath.Join(t.TempDir(), "tasks.json"))

	task := &Task{
		Name:      "medical-bot",
		Message:   "A medical diagnosis assistant",
		Schedule:  "0 9 * * 1",
		UserID:    "ops",
		SessionID: "weekly",
		DeliverTo: "telegram:42",
		Enabled:   true,
	}
	if err := store.Add(task); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get("medical-bot")
	if err != nil {
		t.Fatal(err)
	}
	if got.Message != task.Message {
		t.Errorf("expected message %q, got %q", task.Message, got.Message)
	}
	if got.DeliverTo != "telegram:42" {
		t.Errorf("expected deliver_to telegram:42, got %q", got.DeliverTo)
	}
	if !got.Enabled {
		t.Error("expected task to be enabled")
	}
}

func TestTaskStore_AddDuplicate(t *testing.T) {
	store := NewTaskStore(filepath.Join(t.TempDir(), "tasks.json"))
	if err := store.Add(&Task{Name: "a", Message: "x"}); err != nil {
		t.Fatal(err)
	}
	if err := store.Add(&Task{Name: "a", Message: "y"}); err == nil {
		t.Fatal("expected duplicate name error")
	}
}

func TestTaskStore_AddRequiresName(t *testing.T) {
	store := NewTaskStore(filepath.Join(t.TempDir(), "tasks.json"))
	if err := store.Add(&Task{Message: "x"}); err == nil {
		t.Fatal("expected error for unnamed task")
	}
}

func TestTaskStore_Remove(t *testing.T) {
	store := NewTaskStore(filepath.Join(t.TempDir(), "tasks.json"))
	for _, name := range []string{"a", "b", "c"} {
		if err := store.Add(&Task{Name: name, Message: name}); err != nil {
			t.Fatal(err)
		}
	}

	if err := store.Remove("b"); err != nil {
		t.Fatal(err)
	}
	tasks, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 2 || tasks[0].Name != "a" || tasks[1].Name != "c" {
		t.Errorf("unexpected tasks after remove: %+v", tasks)
	}

	if err := store.Remove("missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestTaskStore_SetEnabled(t *testing.T) {
	store := NewTaskStore(filepath.Join(t.TempDir(), "tasks.json"))
	if err := store.Add(&Task{Name: "a", Message: "x", Enabled: true}); err != nil {
		t.Fatal(err)
	}

	if err := store.SetEnabled("a", false); err != nil {
		t.Fatal(err)
	}
	got, err := store.Get("a")
	if err != nil {
		t.Fatal(err)
	}
	if got.Enabled {
		t.Error("expected task to be disabled")
	}

	if err := store.SetEnabled("missing", true); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestTaskStore_GetNotFound(t *testing.T) {
	store := NewTaskStore(filepath.Join(t.TempDir(), "tasks.json"))
	if _, err := store.Get("nope"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

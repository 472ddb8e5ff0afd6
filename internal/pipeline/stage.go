// Package pipeline runs the orchestrated stages: a bounded research and
// review loop closed by an escalation gate, followed by a single drafting
// stage. Stages share one session; their outputs meet in its state store.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/user/charterd/internal/remote"
	"github.com/user/charterd/internal/state"
	"github.com/user/charterd/internal/types"
)

// Stage is one step of the pipeline. Run appends the stage's events to the
// invocation's session. A stage failure is recorded as an event; Run only
// returns an error when the run itself must stop.
type Stage interface {
	Name() string
	Run(ctx context.Context, inv *Invocation) error
}

// Invocation carries one run through the stages.
type Invocation struct {
	Session    *state.Session
	RunID      types.RunID
	OnProgress func(types.Record)
}

// Emit appends ev to the session on behalf of the run. The in-memory log
// always receives the event; journal errors are logged and do not stop
// the run.
func (inv *Invocation) Emit(ctx context.Context, ev *types.Event) *types.Event {
	ev.RunID = inv.RunID
	if err := inv.Session.Append(ctx, ev); err != nil {
		slog.Error("journal append failed",
			"session_id", string(inv.Session.Key),
			"run_id", string(inv.RunID),
			"event", ev.Type,
			"error", err)
	}
	return ev
}

// Progress sends a progress record to the run's listener.
func (inv *Invocation) Progress(text string) {
	if text == "" || inv.OnProgress == nil {
		return
	}
	inv.OnProgress(types.Record{Type: types.RecordProgress, Text: text})
}

// RunEvents returns the session events written by this run, oldest first.
func (inv *Invocation) RunEvents() []*types.Event {
	var out []*types.Event
	for _, ev := range inv.Session.Events() {
		if ev.RunID == inv.RunID {
			out = append(out, ev)
		}
	}
	return out
}

// StageOutput is a successful stage response as seen by post-stage hooks.
type StageOutput struct {
	Stage  string
	Event  *types.Event
	Output remote.Output
}

// Hook runs synchronously after a remote stage produced output.
type Hook interface {
	OnStageComplete(store *state.Store, out StageOutput)
}

// HookFunc adapts a function to the Hook interface.
type HookFunc func(store *state.Store, out StageOutput)

func (f HookFunc) OnStageComplete(store *state.Store, out StageOutput) { f(store, out) }

// SaveOutput stores each stage output under key, replacing what was there.
func SaveOutput(key string) Hook {
	return HookFunc(func(store *state.Store, out StageOutput) {
		if out.Output.Value.IsAbsent() {
			return
		}
		store.Set(key, out.Output.Value)
		slog.Debug("saved stage output", "stage", out.Stage, "key", key, "kind", out.Output.Value.Kind().String())
	})
}

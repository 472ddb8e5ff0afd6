package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/user/charterd/internal/prompt"
	"github.com/user/charterd/internal/remote"
	"github.com/user/charterd/internal/types"
)

// InputFunc builds the message a stage sends for the current invocation.
type InputFunc func(inv *Invocation) (string, error)

// LatestInput sends the newest text in the session, whoever wrote it,
// trimmed to the composer's budget.
func LatestInput(c *prompt.Composer) InputFunc {
	return func(inv *Invocation) (string, error) {
		text, trimmed := c.Fit(inv.Session.LatestText())
		if trimmed {
			slog.Warn("stage input trimmed to token budget", "session_id", string(inv.Session.Key))
		}
		return text, nil
	}
}

// SnapshotInput sends the whole state store as a JSON object.
func SnapshotInput(c *prompt.Composer) InputFunc {
	return func(inv *Invocation) (string, error) {
		return c.DraftInput(inv.Session.State.Snapshot())
	}
}

// RemoteStage calls a stage service and records what it answered.
type RemoteStage struct {
	name     string
	caller   remote.Caller
	input    InputFunc
	timeout  time.Duration
	progress string
	hooks    []Hook
}

// StageOption configures a RemoteStage.
type StageOption func(*RemoteStage)

// WithInput replaces the default LatestInput(nil) message builder.
func WithInput(fn InputFunc) StageOption {
	return func(s *RemoteStage) { s.input = fn }
}

// WithTimeout bounds each call; zero keeps remote.DefaultTimeout.
func WithTimeout(d time.Duration) StageOption {
	return func(s *RemoteStage) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithProgress sets the progress text reported for each event of the stage.
func WithProgress(text string) StageOption {
	return func(s *RemoteStage) { s.progress = text }
}

// WithHooks appends post-stage hooks.
func WithHooks(hooks ...Hook) StageOption {
	return func(s *RemoteStage) { s.hooks = append(s.hooks, hooks...) }
}

// NewRemoteStage creates a stage named name backed by caller.
func NewRemoteStage(name string, caller remote.Caller, opts ...StageOption) *RemoteStage {
	s := &RemoteStage{
		name:    name,
		caller:  caller,
		input:   LatestInput(nil),
		timeout: remote.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RemoteStage) Name() string { return s.name }

// Run sends the stage its input and records the answer. Transport errors
// become a stage_error event; the state key is left as it was.
func (s *RemoteStage) Run(ctx context.Context, inv *Invocation) error {
	log := slog.With("stage", s.name, "session_id", string(inv.Session.Key), "run_id", string(inv.RunID))

	message, err := s.input(inv)
	if err != nil {
		return s.fail(ctx, inv, log, fmt.Errorf("compose input: %w", err))
	}
	if message == "" {
		log.Warn("no message to send to stage")
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	resp, err := s.caller.Call(callCtx, remote.Request{
		Stage:     s.name,
		Message:   message,
		UserID:    inv.Session.UserID,
		SessionID: inv.Session.ID,
	})
	cancel()
	if err != nil {
		return s.fail(ctx, inv, log, err)
	}

	out := remote.Normalize(resp)
	if out.Value.IsAbsent() {
		log.Warn("received empty response from stage")
		return nil
	}
	if out.Malformed {
		log.Warn("stage output looked like JSON but failed to parse; keeping raw text")
	}

	ev := inv.Emit(ctx, &types.Event{
		Type:   types.EventStageOutput,
		Author: s.name,
		Text:   out.Text,
	})
	inv.Progress(s.progress)
	log.Info("stage completed", "kind", out.Value.Kind().String())

	for _, h := range s.hooks {
		h.OnStageComplete(inv.Session.State, StageOutput{Stage: s.name, Event: ev, Output: out})
	}
	return nil
}

func (s *RemoteStage) fail(ctx context.Context, inv *Invocation, log *slog.Logger, err error) error {
	log.Error("error communicating with stage", "error", err)
	inv.Emit(ctx, &types.Event{
		Type:   types.EventStageError,
		Author: s.name,
		Text:   fmt.Sprintf("Error: Could not contact %s. %v", s.name, err),
	})
	inv.Progress(s.progress)
	return ctx.Err()
}

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/user/charterd/internal/gateway"
	"github.com/user/charterd/internal/state"
	"github.com/user/charterd/internal/types"
)

// UserAuthor is the author of user_message events.
const UserAuthor = "user"

// Result is the outcome of one run.
type Result struct {
	RunID      types.RunID
	Session    types.SessionKey
	Text       string
	ArtifactID types.ArtifactID
}

// Runner executes the pipeline for inbound messages.
type Runner struct {
	sessions   *state.SessionStore
	artifacts  types.ArtifactStore
	root       Stage
	contentKey string
	draftStage string
}

// NewRunner creates a Runner executing root. artifacts may be nil, in
// which case results are not persisted.
func NewRunner(sessions *state.SessionStore, artifacts types.ArtifactStore, root Stage, contentKey, draftStage string) *Runner {
	return &Runner{
		sessions:   sessions,
		artifacts:  artifacts,
		root:       root,
		contentKey: contentKey,
		draftStage: draftStage,
	}
}

// ProcessRun executes the pipeline for a queued run and delivers the
// result. This is the function passed to Queue.SetProcessor.
func (r *Runner) ProcessRun(run *gateway.Run) error {
	ctx := run.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	res, err := r.Execute(ctx, run.ID, run.Event, run.Progress)
	if err != nil {
		return err
	}
	run.Complete(res.Text)
	return nil
}

// Execute records the user's message, runs the pipeline, and resolves the
// final text. It fails only for an empty message or a cancelled context.
func (r *Runner) Execute(ctx context.Context, runID types.RunID, event *types.InboundEvent, onProgress func(types.Record)) (*Result, error) {
	if strings.TrimSpace(event.Text) == "" {
		return nil, fmt.Errorf("empty message")
	}
	if runID == "" {
		runID = types.NewRunID()
	}

	sess, created := r.sessions.ResolveOrCreate(ctx, event.UserID, event.SessionID)
	log := slog.With("session_id", string(sess.Key), "run_id", string(runID))
	if created {
		log.Info("session created", "source", event.Source)
	}

	inv := &Invocation{Session: sess, RunID: runID, OnProgress: onProgress}
	inv.Emit(ctx, &types.Event{
		Type:   types.EventUserMessage,
		Author: UserAuthor,
		Text:   event.Text,
	})

	log.Info("run started", "pipeline", r.root.Name())
	if err := r.root.Run(ctx, inv); err != nil {
		return nil, fmt.Errorf("run pipeline: %w", err)
	}

	res := &Result{
		RunID:   runID,
		Session: sess.Key,
		Text:    ResolveResult(sess.State, r.contentKey, r.draftStage, inv.RunEvents()),
	}

	if r.artifacts != nil {
		id, err := r.artifacts.Put(ctx, sess.Key, runID, r.draftStage, res.Text)
		if err != nil {
			log.Error("store result artifact", "error", err)
		} else {
			res.ArtifactID = id
		}
	}

	log.Info("run complete", "result_len", len(res.Text), "artifact_id", string(res.ArtifactID))
	return res, nil
}

package gateway

import (
	"context"
	"time"

	"github.com/user/charterd/internal/types"
)

// RunStatus represents the lifecycle state of a Run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run tracks a single pipeline execution of an inbound message against a
// session.
type Run struct {
	ID        types.RunID
	Session   types.SessionKey
	Event     *types.InboundEvent
	Status    RunStatus
	Sequence  int
	CreatedAt time.Time
	StartedAt *time.Time
	EndedAt   *time.Time
	Error     error

	// Ctx is set by the queue before the run is processed.
	Ctx context.Context

	OnProgress func(rec types.Record)
	OnComplete func(response string)
}

// NewRun creates a Run in the Queued state for the event's session.
func NewRun(event *types.InboundEvent) *Run {
	return &Run{
		ID:        types.NewRunID(),
		Session:   event.Key(),
		Event:     event,
		Status:    RunStatusQueued,
		CreatedAt: time.Now(),
	}
}

// Progress forwards a progress record to the run's listener, if any.
func (r *Run) Progress(rec types.Record) {
	if r.OnProgress != nil {
		r.OnProgress(rec)
	}
}

// Complete delivers the final response to the run's listener, if any.
func (r *Run) Complete(response string) {
	if r.OnComplete != nil {
		r.OnComplete(response)
	}
}

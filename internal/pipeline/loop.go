package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/user/charterd/internal/types"
)

// DefaultMaxIterations is the loop ceiling when none is configured.
const DefaultMaxIterations = 3

// LoopStatus is the state of a bounded loop.
type LoopStatus string

const (
	LoopRunning   LoopStatus = "running"
	LoopEscalated LoopStatus = "escalated"
	LoopExhausted LoopStatus = "exhausted"
)

// LoopState is the loop's status and the number of completed laps.
type LoopState struct {
	Status    LoopStatus `json:"status"`
	Iteration int        `json:"iteration"`
}

// Loop runs its stages in order, lap after lap, until a stage escalates or
// the iteration ceiling is reached. Either way the pipeline continues.
type Loop struct {
	name          string
	stages        []Stage
	maxIterations int
}

// NewLoop creates a loop over stages. maxIterations <= 0 uses
// DefaultMaxIterations.
func NewLoop(name string, maxIterations int, stages ...Stage) *Loop {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	return &Loop{name: name, stages: stages, maxIterations: maxIterations}
}

func (l *Loop) Name() string { return l.name }

// Run executes the loop and records its terminal state as a loop_state
// event.
func (l *Loop) Run(ctx context.Context, inv *Invocation) error {
	_, err := l.Execute(ctx, inv)
	return err
}

// Execute runs laps until the loop reaches a terminal state and returns it.
func (l *Loop) Execute(ctx context.Context, inv *Invocation) (LoopState, error) {
	log := slog.With("stage", l.name, "session_id", string(inv.Session.Key), "run_id", string(inv.RunID))
	st := LoopState{Status: LoopRunning}

	for st.Status == LoopRunning {
		lap := st.Iteration + 1
		log.Info("loop lap started", "lap", lap)

		escalated, err := l.lap(ctx, inv)
		if err != nil {
			return st, err
		}
		if escalated {
			st.Status = LoopEscalated
			log.Info("loop escalated", "lap", lap)
			break
		}
		st.Iteration++
		if st.Iteration >= l.maxIterations {
			st.Status = LoopExhausted
			log.Warn("loop exhausted without approval; continuing", "lap", lap, "max_iterations", l.maxIterations)
		}
	}

	payload, _ := json.Marshal(st)
	inv.Emit(ctx, &types.Event{
		Type:    types.EventLoopState,
		Author:  l.name,
		Payload: payload,
	})
	return st, nil
}

// lap runs each stage once, stopping early when a stage escalates.
func (l *Loop) lap(ctx context.Context, inv *Invocation) (bool, error) {
	for _, stage := range l.stages {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		before := inv.Session.Len()
		if err := stage.Run(ctx, inv); err != nil {
			return false, err
		}
		for _, ev := range inv.Session.EventsSince(before) {
			if ev.Escalate {
				return true, nil
			}
		}
	}
	return false, nil
}

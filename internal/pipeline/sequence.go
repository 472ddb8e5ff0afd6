package pipeline

import (
	"context"
	"log/slog"
)

// Sequence runs its stages once each, in order. Escalation inside a nested
// loop ends that loop only.
type Sequence struct {
	name   string
	stages []Stage
}

// NewSequence creates a sequence over stages.
func NewSequence(name string, stages ...Stage) *Sequence {
	return &Sequence{name: name, stages: stages}
}

func (s *Sequence) Name() string { return s.name }

func (s *Sequence) Run(ctx context.Context, inv *Invocation) error {
	for _, stage := range s.stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		slog.Debug("running stage", "pipeline", s.name, "stage", stage.Name(), "run_id", string(inv.RunID))
		if err := stage.Run(ctx, inv); err != nil {
			return err
		}
	}
	return nil
}

package pipeline

import (
	"time"

	"github.com/user/charterd/internal/prompt"
	"github.com/user/charterd/internal/remote"
	"github.com/user/charterd/internal/state"
)

// Stage names of the built-in pipeline.
const (
	StageResearcher     = "researcher"
	StageJudge          = "judge"
	StageContentBuilder = "content_builder"
	LoopName            = "governance_loop"
	PipelineName        = "constitution_pipeline"
)

// StageSpec describes one remote stage of the built-in pipeline.
type StageSpec struct {
	Caller   remote.Caller
	StateKey string
	Progress string
}

// Options assembles the built-in pipeline.
type Options struct {
	Researcher     StageSpec
	Judge          StageSpec
	ContentBuilder StageSpec
	MaxIterations  int
	StageTimeout   time.Duration
	Composer       *prompt.Composer
}

// Build returns the pipeline
// [loop(researcher, judge, gate) x max_iterations] -> content_builder.
func Build(opts Options) *Sequence {
	researcher := NewRemoteStage(StageResearcher, opts.Researcher.Caller,
		WithInput(LatestInput(opts.Composer)),
		WithTimeout(opts.StageTimeout),
		WithProgress(opts.Researcher.Progress),
		WithHooks(SaveOutput(keyOr(opts.Researcher.StateKey, state.KeyResearchFindings))),
	)
	judgeKey := keyOr(opts.Judge.StateKey, state.KeyJudgeFeedback)
	judge := NewRemoteStage(StageJudge, opts.Judge.Caller,
		WithInput(LatestInput(opts.Composer)),
		WithTimeout(opts.StageTimeout),
		WithProgress(opts.Judge.Progress),
		WithHooks(SaveOutput(judgeKey)),
	)
	builder := NewRemoteStage(StageContentBuilder, opts.ContentBuilder.Caller,
		WithInput(SnapshotInput(opts.Composer)),
		WithTimeout(opts.StageTimeout),
		WithProgress(opts.ContentBuilder.Progress),
		WithHooks(SaveOutput(keyOr(opts.ContentBuilder.StateKey, state.KeyContentOutput))),
	)

	loop := NewLoop(LoopName, opts.MaxIterations, researcher, judge, NewGate(judgeKey))
	return NewSequence(PipelineName, loop, builder)
}

// ContentKey returns the state key the drafting stage writes under opts.
func (opts Options) ContentKey() string {
	return keyOr(opts.ContentBuilder.StateKey, state.KeyContentOutput)
}

func keyOr(key, def string) string {
	if key == "" {
		return def
	}
	return key
}

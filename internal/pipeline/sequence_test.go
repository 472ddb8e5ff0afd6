package pipeline

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/user/charterd/internal/remote"
	"github.com/user/charterd/internal/state"
	"github.com/user/charterd/internal/types"
)

type pipelineFakes struct {
	researcher *fakeCaller
	judge      remote.Caller
	builder    *fakeCaller
}

func runPipeline(t *testing.T, fakes pipelineFakes, timeout time.Duration) (*Result, *state.SessionStore) {
	t.Helper()
	sessions := state.NewSessionStore(nil)
	opts := Options{
		Researcher:     StageSpec{Caller: fakes.researcher, Progress: "researching"},
		Judge:          StageSpec{Caller: fakes.judge, Progress: "judging"},
		ContentBuilder: StageSpec{Caller: fakes.builder, Progress: "drafting"},
		MaxIterations:  3,
		StageTimeout:   timeout,
	}
	runner := NewRunner(sessions, nil, Build(opts), opts.ContentKey(), StageContentBuilder)
	res, err := runner.Execute(context.Background(), "", &types.InboundEvent{Text: "A military drone"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return res, sessions
}

func TestPipelinePassOnFirstLap(t *testing.T) {
	researcher := textCaller(`{"proposed_principles": []}`)
	judge := textCaller(`{"overall_status": "pass", "verdicts": []}`)
	builder := textCaller(`{"constitution": "TEXT"}`)

	res, _ := runPipeline(t, pipelineFakes{researcher, judge, builder}, 0)

	if researcher.count() != 1 || judge.count() != 1 {
		t.Errorf("expected one lap, got researcher=%d judge=%d", researcher.count(), judge.count())
	}
	if builder.count() != 1 {
		t.Errorf("expected drafting once, got %d", builder.count())
	}
	if res.Text != "TEXT" {
		t.Errorf("expected extracted constitution, got %q", res.Text)
	}
}

func TestPipelineAlwaysFailRunsThreeLaps(t *testing.T) {
	researcher := textCaller("findings")
	judge := textCaller(`{"overall_status": "fail"}`)
	builder := textCaller("Article I")

	res, _ := runPipeline(t, pipelineFakes{researcher, judge, builder}, 0)

	if judge.count() != 3 {
		t.Errorf("expected 3 laps, got %d", judge.count())
	}
	if builder.count() != 1 {
		t.Errorf("expected drafting once after exhaustion, got %d", builder.count())
	}
	if res.Text != "Article I" {
		t.Errorf("unexpected result %q", res.Text)
	}
}

func TestPipelineJudgeTimesOut(t *testing.T) {
	researcher := textCaller("findings")
	judge := remote.CallerFunc(func(ctx context.Context, req remote.Request) (*remote.Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	builder := failingCaller("connection refused")

	res, sessions := runPipeline(t, pipelineFakes{researcher, judge, builder}, 10*time.Millisecond)

	sess, _ := sessions.Get(res.Session)
	evs := sess.Events()
	var judgeFailures int
	for _, ev := range evs {
		if ev.Author == StageJudge && ev.IsFailure() {
			judgeFailures++
		}
	}
	if judgeFailures != 3 {
		t.Errorf("expected a failure event per lap, got %d", judgeFailures)
	}
	if researcher.count() != 3 {
		t.Errorf("expected loop to exhaust at 3 laps, got %d", researcher.count())
	}
	if builder.count() != 1 {
		t.Errorf("expected drafting to still run once, got %d", builder.count())
	}
	// The researcher's text is the only successful output of the run.
	if res.Text != "findings\nfindings\nfindings" {
		t.Errorf("unexpected result %q", res.Text)
	}
}

func TestPipelineNothingProduced(t *testing.T) {
	res, _ := runPipeline(t, pipelineFakes{
		researcher: failingCaller("down"),
		judge:      failingCaller("down"),
		builder:    failingCaller("down"),
	}, 0)
	if res.Text != NoContent {
		t.Errorf("expected %q, got %q", NoContent, res.Text)
	}
}

func TestPipelineDraftingSeesState(t *testing.T) {
	builder := textCaller("done")
	runPipeline(t, pipelineFakes{
		researcher: textCaller("notes"),
		judge:      textCaller(`{"overall_status": "pass"}`),
		builder:    builder,
	}, 0)

	msg := builder.messages[0]
	for _, key := range []string{state.KeyResearchFindings, state.KeyJudgeFeedback} {
		if !strings.Contains(msg, key) {
			t.Errorf("expected drafting input to include %s, got %s", key, msg)
		}
	}
}

func TestPipelineProgressRecords(t *testing.T) {
	sessions := state.NewSessionStore(nil)
	opts := Options{
		Researcher:     StageSpec{Caller: textCaller("r"), Progress: "researching"},
		Judge:          StageSpec{Caller: textCaller(`{"overall_status": "pass"}`), Progress: "judging"},
		ContentBuilder: StageSpec{Caller: textCaller("d"), Progress: "drafting"},
	}
	runner := NewRunner(sessions, nil, Build(opts), opts.ContentKey(), StageContentBuilder)

	var got []string
	_, err := runner.Execute(context.Background(), "", &types.InboundEvent{Text: "x"}, func(rec types.Record) {
		got = append(got, rec.Text)
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"researching", "judging", "drafting"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("record %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

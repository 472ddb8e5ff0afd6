package pipeline

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/user/charterd/internal/state"
	"github.com/user/charterd/internal/types"
)

func newTestLoop(researcher, judge *fakeCaller, max int) *Loop {
	return NewLoop(LoopName, max,
		NewRemoteStage(StageResearcher, researcher, WithHooks(SaveOutput(state.KeyResearchFindings))),
		NewRemoteStage(StageJudge, judge, WithHooks(SaveOutput(state.KeyJudgeFeedback))),
		NewGate(state.KeyJudgeFeedback),
	)
}

func TestLoopEscalatesOnFirstLap(t *testing.T) {
	inv := newInvocation(t)
	researcher := textCaller(`{"proposed_principles": []}`)
	judge := textCaller(`{"overall_status": "pass", "verdicts": []}`)

	st, err := newTestLoop(researcher, judge, 3).Execute(context.Background(), inv)
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != LoopEscalated || st.Iteration != 0 {
		t.Errorf("unexpected state %+v", st)
	}
	if researcher.count() != 1 || judge.count() != 1 {
		t.Errorf("expected one lap, got researcher=%d judge=%d", researcher.count(), judge.count())
	}
}

func TestLoopExhaustsAtCeiling(t *testing.T) {
	inv := newInvocation(t)
	researcher := textCaller("findings")
	judge := textCaller(`{"overall_status": "fail"}`)

	st, err := newTestLoop(researcher, judge, 3).Execute(context.Background(), inv)
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != LoopExhausted || st.Iteration != 3 {
		t.Errorf("unexpected state %+v", st)
	}
	if researcher.count() != 3 || judge.count() != 3 {
		t.Errorf("expected three laps, got researcher=%d judge=%d", researcher.count(), judge.count())
	}

	gates := eventsOfType(inv.Session.Events(), types.EventEscalation)
	if len(gates) != 3 {
		t.Errorf("expected 3 gate events, got %d", len(gates))
	}
}

func TestLoopLapCounts(t *testing.T) {
	for _, max := range []int{1, 2, 3, 5} {
		inv := newInvocation(t)
		judge := textCaller(`{"overall_status": "fail"}`)
		st, err := newTestLoop(textCaller("r"), judge, max).Execute(context.Background(), inv)
		if err != nil {
			t.Fatal(err)
		}
		if judge.count() != max || st.Iteration != max {
			t.Errorf("max %d: judge called %d times, iteration %d", max, judge.count(), st.Iteration)
		}
	}
}

func TestLoopDefaultCeiling(t *testing.T) {
	loop := NewLoop("l", 0)
	if loop.maxIterations != DefaultMaxIterations {
		t.Errorf("expected default ceiling %d, got %d", DefaultMaxIterations, loop.maxIterations)
	}
}

func TestLoopEscalatesOnLaterLap(t *testing.T) {
	inv := newInvocation(t)
	calls := 0
	judge := NewRemoteStage(StageJudge, callerFunc(func() string {
		calls++
		if calls == 2 {
			return `{"status": "pass"}`
		}
		return `{"status": "fail"}`
	}), WithHooks(SaveOutput(state.KeyJudgeFeedback)))

	loop := NewLoop(LoopName, 3, NewRemoteStage(StageResearcher, textCaller("r")), judge, NewGate(state.KeyJudgeFeedback))
	st, err := loop.Execute(context.Background(), inv)
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != LoopEscalated || st.Iteration != 1 || calls != 2 {
		t.Errorf("unexpected state %+v after %d judge calls", st, calls)
	}
}

func TestLoopRecordsState(t *testing.T) {
	inv := newInvocation(t)
	if err := newTestLoop(textCaller("r"), textCaller("no"), 2).Run(context.Background(), inv); err != nil {
		t.Fatal(err)
	}
	ev := inv.Session.LastByAuthor(LoopName)
	if ev == nil || ev.Type != types.EventLoopState {
		t.Fatalf("expected loop_state event, got %+v", ev)
	}
	var st LoopState
	if err := json.Unmarshal(ev.Payload, &st); err != nil {
		t.Fatal(err)
	}
	if st.Status != LoopExhausted || st.Iteration != 2 {
		t.Errorf("unexpected recorded state %+v", st)
	}
}

func TestLoopStopsOnCancel(t *testing.T) {
	inv := newInvocation(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newTestLoop(textCaller("r"), textCaller("j"), 3).Execute(ctx, inv); err == nil {
		t.Error("expected cancelled loop to return an error")
	}
}

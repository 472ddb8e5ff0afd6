package pipeline

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/user/charterd/internal/state"
	"github.com/user/charterd/internal/types"
)

func TestShouldEscalate(t *testing.T) {
	tests := []struct {
		name     string
		feedback state.Value
		want     bool
	}{
		{"structured pass", state.Structured(map[string]any{"overall_status": "pass", "verdicts": []any{}}), true},
		{"structured legacy pass", state.Structured(map[string]any{"status": "pass"}), true},
		{"structured fail", state.Structured(map[string]any{"overall_status": "fail"}), false},
		{"structured other value", state.Structured(map[string]any{"overall_status": "PASS"}), false},
		{"structured non-string", state.Structured(map[string]any{"overall_status": true}), false},
		{"structured fail with legacy pass", state.Structured(map[string]any{"overall_status": "fail", "status": "pass"}), true},
		{"structured no status", state.Structured(map[string]any{"verdicts": []any{}}), false},
		{"raw pass", state.Raw(`Verdict: {"overall_status": "pass"`), true},
		{"raw legacy pass", state.Raw(`{"status": "pass", oops`), true},
		{"raw compact pass", state.Raw(`{"overall_status":"pass"}`), false},
		{"raw fail", state.Raw(`{"overall_status": "fail"}`), false},
		{"raw prose", state.Raw("I think this should pass"), false},
		{"absent", state.Absent(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldEscalate(tt.feedback); got != tt.want {
				t.Errorf("ShouldEscalate(%s) = %v, want %v", tt.feedback, got, tt.want)
			}
		})
	}
}

func TestGateEmitsEscalation(t *testing.T) {
	inv := newInvocation(t)
	inv.Session.State.Set(state.KeyJudgeFeedback, state.Structured(map[string]any{"overall_status": "pass"}))

	gate := NewGate(state.KeyJudgeFeedback)
	if err := gate.Run(context.Background(), inv); err != nil {
		t.Fatal(err)
	}

	ev := inv.Session.LastByAuthor(GateName)
	if ev == nil {
		t.Fatal("expected escalation event")
	}
	if ev.Type != types.EventEscalation || !ev.Escalate {
		t.Errorf("unexpected event %+v", ev)
	}
	if ev.Text != "" {
		t.Errorf("escalation event must not carry text, got %q", ev.Text)
	}
}

func TestGateReportsVerdictSummary(t *testing.T) {
	inv := newInvocation(t)
	inv.Session.State.Set(state.KeyJudgeFeedback, state.Structured(map[string]any{
		"overall_status": "fail",
		"verdicts": []any{
			map[string]any{"principle_name": "Consent", "status": "approved"},
			map[string]any{"principle_name": "Be nice", "status": "rejected"},
		},
		"mandatory_constraints": []any{"Cite sources"},
	}))

	if err := NewGate(state.KeyJudgeFeedback).Run(context.Background(), inv); err != nil {
		t.Fatal(err)
	}
	ev := inv.Session.LastByAuthor(GateName)
	if ev == nil || ev.Escalate {
		t.Fatalf("expected non-escalating event, got %+v", ev)
	}
	var payload escalationPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Principles != 2 || payload.Approved != 1 {
		t.Errorf("expected 1 of 2 principles approved, got %+v", payload)
	}
	if len(payload.Constraints) != 1 || payload.Constraints[0] != "Cite sources" {
		t.Errorf("unexpected constraints %+v", payload.Constraints)
	}
	if payload.Feedback != "structured" {
		t.Errorf("expected structured feedback kind, got %q", payload.Feedback)
	}
}

func TestGateMissingFeedbackContinues(t *testing.T) {
	inv := newInvocation(t)
	if err := NewGate(state.KeyJudgeFeedback).Run(context.Background(), inv); err != nil {
		t.Fatal(err)
	}
	ev := inv.Session.LastByAuthor(GateName)
	if ev == nil || ev.Escalate {
		t.Fatalf("expected non-escalating event, got %+v", ev)
	}
}

func TestDecodeVerdict(t *testing.T) {
	v := state.Structured(map[string]any{
		"overall_status": "pass",
		"verdicts": []any{
			map[string]any{"principle_name": "Data Minimization", "status": "approved", "reasoning": "clear"},
			map[string]any{"principle_name": "Be nice", "status": "rejected", "reasoning": "vague"},
			map[string]any{"principle_name": "Consent", "status": "amended", "reasoning": "tighten", "amendment_text": "Obtain written consent."},
		},
		"mandatory_constraints": []any{"No diagnosis without a clinician"},
		"interpretive_guidance": "formal",
	})

	verdict, err := DecodeVerdict(v)
	if err != nil {
		t.Fatal(err)
	}
	if verdict.OverallStatus != "pass" {
		t.Errorf("expected pass verdict, got %q", verdict.OverallStatus)
	}
	approved := verdict.Approved()
	if len(approved) != 2 || approved[1].AmendmentText != "Obtain written consent." {
		t.Errorf("unexpected approved principles %+v", approved)
	}
	if len(verdict.MandatoryConstraints) != 1 {
		t.Errorf("unexpected constraints %+v", verdict.MandatoryConstraints)
	}
}

func TestDecodeVerdictRawAndAbsent(t *testing.T) {
	verdict, err := DecodeVerdict(state.Raw(`{"overall_status":"fail"}`))
	if err != nil {
		t.Fatal(err)
	}
	if verdict.OverallStatus != "fail" {
		t.Errorf("expected fail verdict, got %q", verdict.OverallStatus)
	}
	if _, err := DecodeVerdict(state.Raw("not json")); err == nil {
		t.Error("expected error for unparseable raw feedback")
	}
	if _, err := DecodeVerdict(state.Absent()); err == nil {
		t.Error("expected error for absent feedback")
	}
}

package pipeline

import (
	"strings"
	"testing"

	"github.com/user/charterd/internal/state"
	"github.com/user/charterd/internal/types"
)

func TestResolveResult(t *testing.T) {
	builderEvent := &types.Event{Type: types.EventStageOutput, Author: StageContentBuilder, Text: "from event"}
	researchEvent := &types.Event{Type: types.EventStageOutput, Author: StageResearcher, Text: "research"}
	failedBuilder := &types.Event{Type: types.EventStageError, Author: StageContentBuilder, Text: "Error: Could not contact content_builder. x"}

	tests := []struct {
		name    string
		content state.Value
		events  []*types.Event
		want    string
	}{
		{"constitution field", state.Structured(map[string]any{"constitution": "TEXT", "content": "other"}), nil, "TEXT"},
		{"content field", state.Structured(map[string]any{"content": "C"}), nil, "C"},
		{"document field", state.Structured(map[string]any{"document": "D", "title": "t"}), nil, "D"},
		{"text field", state.Structured(map[string]any{"text": "T"}), nil, "T"},
		{"non-string field", state.Structured(map[string]any{"content": map[string]any{"a": 1.0}}), nil, `{"a":1}`},
		{"raw content", state.Raw("plain draft"), []*types.Event{builderEvent}, "plain draft"},
		{"builder event fallback", state.Absent(), []*types.Event{researchEvent, builderEvent}, "from event"},
		{"accumulated fallback", state.Absent(), []*types.Event{researchEvent, failedBuilder}, "research"},
		{"nothing", state.Absent(), []*types.Event{failedBuilder}, NoContent},
		{"empty raw falls through", state.Raw(""), nil, NoContent},
		{"empty preferred field", state.Structured(map[string]any{"constitution": ""}), []*types.Event{builderEvent}, NoContent},
		{"null preferred field", state.Structured(map[string]any{"constitution": nil}), []*types.Event{researchEvent, builderEvent}, NoContent},
		{"null field shadows later fields", state.Structured(map[string]any{"constitution": nil, "content": "C"}), nil, NoContent},
		{"numeric field", state.Structured(map[string]any{"document": 7.0}), nil, "7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := state.NewStore()
			store.Set(state.KeyContentOutput, tt.content)
			if got := ResolveResult(store, state.KeyContentOutput, StageContentBuilder, tt.events); got != tt.want {
				t.Errorf("ResolveResult = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveResultWholeObject(t *testing.T) {
	store := state.NewStore()
	store.Set(state.KeyContentOutput, state.Structured(map[string]any{
		"title":    "The Constitution of Medical Bots",
		"preamble": "We the operators",
	}))

	got := ResolveResult(store, state.KeyContentOutput, StageContentBuilder, nil)
	if !strings.Contains(got, "\n  \"preamble\": \"We the operators\"") {
		t.Errorf("expected indented JSON of the whole object, got %q", got)
	}
}

func TestResolveResultIgnoresOtherEventTypes(t *testing.T) {
	store := state.NewStore()
	events := []*types.Event{
		{Type: types.EventUserMessage, Author: UserAuthor, Text: "question"},
		{Type: types.EventEscalation, Author: GateName},
	}
	if got := ResolveResult(store, state.KeyContentOutput, StageContentBuilder, events); got != NoContent {
		t.Errorf("expected user text to be ignored, got %q", got)
	}
}

package pipeline

import (
	"encoding/json"
	"strings"

	"github.com/user/charterd/internal/state"
	"github.com/user/charterd/internal/types"
)

// NoContent is the result when no stage produced anything usable.
const NoContent = "Error: No content generated"

// contentFields are tried in order on a structured drafting output.
var contentFields = []string{"constitution", "content", "document", "text"}

// ResolveResult picks the text returned to the user for a run: the drafting
// output from state, then the drafting stage's last successful event, then
// everything the run's stages said. It never returns an empty string.
func ResolveResult(store *state.Store, contentKey, draftStage string, runEvents []*types.Event) string {
	if text, ok := contentText(store.Get(contentKey)); ok {
		if text == "" {
			return NoContent
		}
		return text
	}

	var last string
	var all []string
	for _, ev := range runEvents {
		if ev.Type != types.EventStageOutput || ev.IsFailure() {
			continue
		}
		if ev.Author == draftStage && ev.Text != "" {
			last = ev.Text
		}
		if ev.Text != "" {
			all = append(all, ev.Text)
		}
	}
	if last != "" {
		return last
	}
	if text := strings.TrimSpace(strings.Join(all, "\n")); text != "" {
		return text
	}
	return NoContent
}

// contentText extracts the document from the drafting output. ok is false
// when there is no usable output and the event fallbacks apply. A present
// content field settles the result even when it is null or empty.
func contentText(v state.Value) (text string, ok bool) {
	switch v.Kind() {
	case state.KindStructured:
		fields, _ := v.AsStructured()
		if len(fields) == 0 {
			return "", false
		}
		for _, name := range contentFields {
			if field, present := fields[name]; present {
				return state.FromInterface(field).Text(), true
			}
		}
		encoded, err := json.MarshalIndent(fields, "", "  ")
		if err != nil {
			return "", false
		}
		return string(encoded), true
	case state.KindRaw:
		raw, _ := v.AsRaw()
		return raw, raw != ""
	default:
		return "", false
	}
}

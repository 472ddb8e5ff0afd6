package remote

import (
	"encoding/json"
	"strings"

	"github.com/user/charterd/internal/state"
)

// Output is a stage response reduced to what the pipeline stores and shows.
type Output struct {
	// Text is the display text of the response: the stage's text, or the
	// JSON encoding of its structured payload.
	Text string
	// Value is what gets written under the stage's state key.
	Value state.Value
	// Malformed is set when the text looked like a JSON object but did not
	// parse. Value is then the raw text.
	Malformed bool
}

// Normalize converts a stage response into a state value. A structured
// payload wins over text; object-looking text is parsed; anything else is
// kept verbatim.
func Normalize(resp *Response) Output {
	if resp.Empty() {
		return Output{Value: state.Absent()}
	}
	if resp.Data != nil {
		encoded, err := json.Marshal(resp.Data)
		if err == nil {
			return Output{Text: string(encoded), Value: state.Structured(resp.Data)}
		}
	}

	text := resp.Text
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		// Data failed to encode and there is no text.
		return Output{Value: state.Absent()}
	}
	if strings.HasPrefix(trimmed, "{") {
		var fields map[string]any
		if err := json.Unmarshal([]byte(trimmed), &fields); err != nil || fields == nil {
			return Output{Text: text, Value: state.Raw(text), Malformed: true}
		}
		return Output{Text: text, Value: state.Structured(fields)}
	}
	return Output{Text: text, Value: state.Raw(text)}
}

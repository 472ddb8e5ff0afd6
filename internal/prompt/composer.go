// Package prompt composes the messages sent to pipeline stages and keeps
// them within a token budget.
package prompt

import (
	"encoding/json"
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// TruncationMarker is appended to input cut down to the budget.
const TruncationMarker = "\n[truncated]"

// Composer measures and trims stage input by token count.
type Composer struct {
	tokenizer *tiktoken.Tiktoken
	maxTokens int
}

// New creates a Composer. model selects the tokenizer (e.g. "gpt-4");
// maxTokens <= 0 disables trimming.
func New(model string, maxTokens int) (*Composer, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	return &Composer{tokenizer: enc, maxTokens: maxTokens}, nil
}

// Count returns the token count of text.
func (c *Composer) Count(text string) int {
	return len(c.tokenizer.Encode(text, nil, nil))
}

// Fit returns text cut to the budget, keeping its head. trimmed reports
// whether anything was dropped.
func (c *Composer) Fit(text string) (out string, trimmed bool) {
	if c == nil || c.maxTokens <= 0 {
		return text, false
	}
	tokens := c.tokenizer.Encode(text, nil, nil)
	if len(tokens) <= c.maxTokens {
		return text, false
	}
	return c.tokenizer.Decode(tokens[:c.maxTokens]) + TruncationMarker, true
}

// DraftInput renders a state snapshot as the drafting stage's message.
// The snapshot is sent whole when it fits; otherwise the largest entries
// are collapsed to their trimmed text until it does.
func (c *Composer) DraftInput(snapshot map[string]any) (string, error) {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal state: %w", err)
	}
	if c == nil || c.maxTokens <= 0 || c.Count(string(data)) <= c.maxTokens {
		return string(data), nil
	}

	// Share the budget evenly across keys so every entry keeps its head.
	share := c.maxTokens / max(len(snapshot), 1)
	each := &Composer{tokenizer: c.tokenizer, maxTokens: share}
	reduced := make(map[string]any, len(snapshot))
	for key, v := range snapshot {
		var text string
		if s, ok := v.(string); ok {
			text = s
		} else {
			encoded, err := json.Marshal(v)
			if err != nil {
				return "", fmt.Errorf("marshal %s: %w", key, err)
			}
			text = string(encoded)
		}
		if fitted, trimmed := each.Fit(text); trimmed {
			reduced[key] = fitted
		} else {
			reduced[key] = v
		}
	}
	data, err = json.MarshalIndent(reduced, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal state: %w", err)
	}
	return string(data), nil
}

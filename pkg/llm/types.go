// Package llm defines the chat-completion types shared by LLM-backed stages.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Provider sends one chat completion request and returns the full response.
type Provider interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// Config holds common configuration for LLM providers.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
}

// Request is a provider-neutral chat completion request. When ToolChoice
// names a tool, the model is forced to answer through it.
type Request struct {
	Messages   []Message
	Tools      []Tool
	ToolChoice string
}

// Message represents a chat message in a conversation.
type Message struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall represents a tool invocation requested by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall contains the function name and arguments for a tool call.
type FunctionCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Args decodes the call arguments into a key/value object. OpenAI-style
// APIs send arguments as a JSON-encoded string; others send the object
// itself. Both are accepted.
func (f FunctionCall) Args() (map[string]any, error) {
	raw := strings.TrimSpace(string(f.Arguments))
	if raw == "" || raw == "null" {
		return map[string]any{}, nil
	}
	if strings.HasPrefix(raw, `"`) {
		var encoded string
		if err := json.Unmarshal([]byte(raw), &encoded); err != nil {
			return nil, fmt.Errorf("decode argument string: %w", err)
		}
		raw = encoded
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("decode arguments: %w", err)
	}
	return args, nil
}

// Tool describes a tool that can be provided to the model.
type Tool struct {
	Type     string   `json:"type"`
	Function Function `json:"function"`
}

// Function describes a callable function including its parameters schema.
type Function struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// NewFunctionTool builds a function tool from a JSON schema.
func NewFunctionTool(name, description string, schema json.RawMessage) Tool {
	return Tool{
		Type: "function",
		Function: Function{
			Name:        name,
			Description: description,
			Parameters:  schema,
		},
	}
}

// Response represents a complete response from an LLM provider.
type Response struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Usage     Usage      `json:"usage"`
}

// Usage tracks token consumption for a request/response pair.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

package remote

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/user/charterd/pkg/llm"
)

// submitTool is the tool an LLM stage must call when it has an output schema.
const submitTool = "submit_output"

// LLMCaller runs a stage locally against a chat-completion provider. With a
// schema, the model is forced to answer through a tool call whose arguments
// become the structured payload.
type LLMCaller struct {
	provider    llm.Provider
	instruction string
	schema      json.RawMessage
}

// NewLLMCaller creates a local stage. schema may be nil for free-text stages.
func NewLLMCaller(provider llm.Provider, instruction string, schema json.RawMessage) *LLMCaller {
	return &LLMCaller{provider: provider, instruction: instruction, schema: schema}
}

// Call sends the instruction and message to the provider.
func (c *LLMCaller) Call(ctx context.Context, req Request) (*Response, error) {
	if c.provider == nil {
		return nil, fmt.Errorf("no llm provider configured for stage %s", req.Stage)
	}

	llmReq := &llm.Request{}
	if c.instruction != "" {
		llmReq.Messages = append(llmReq.Messages, llm.Message{Role: "system", Content: c.instruction})
	}
	llmReq.Messages = append(llmReq.Messages, llm.Message{Role: "user", Content: req.Message})
	if len(c.schema) > 0 {
		llmReq.Tools = []llm.Tool{llm.NewFunctionTool(submitTool, "Submit the stage output.", c.schema)}
		llmReq.ToolChoice = submitTool
	}

	resp, err := c.provider.Complete(ctx, llmReq)
	if err != nil {
		return nil, fmt.Errorf("llm completion: %w", err)
	}

	for _, call := range resp.ToolCalls {
		if call.Function.Name != submitTool {
			continue
		}
		args, err := call.Function.Args()
		if err != nil {
			return nil, fmt.Errorf("decode %s arguments: %w", submitTool, err)
		}
		return &Response{Text: resp.Content, Data: args}, nil
	}
	return &Response{Text: resp.Content}, nil
}

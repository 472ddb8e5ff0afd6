package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// A2A JSON-RPC method for a single request/response exchange.
const methodMessageSend = "message/send"

// Part is one piece of an A2A message. Kind is "text", "data" or "file";
// older services send the tag as "type".
type Part struct {
	Kind string         `json:"kind,omitempty"`
	Type string         `json:"type,omitempty"`
	Text string         `json:"text,omitempty"`
	Data map[string]any `json:"data,omitempty"`
}

func (p Part) kind() string {
	if p.Kind != "" {
		return p.Kind
	}
	if p.Type != "" {
		return p.Type
	}
	if p.Data != nil {
		return "data"
	}
	return "text"
}

// Message is an A2A conversational message.
type Message struct {
	Kind      string `json:"kind"`
	MessageID string `json:"messageId"`
	Role      string `json:"role"`
	Parts     []Part `json:"parts"`
	ContextID string `json:"contextId,omitempty"`
}

type taskStatus struct {
	State   string   `json:"state"`
	Message *Message `json:"message,omitempty"`
}

type artifact struct {
	Parts []Part `json:"parts"`
}

// sendResult is either a Message or a Task; the union is decoded into one
// struct and told apart by Kind.
type sendResult struct {
	Kind      string     `json:"kind"`
	Role      string     `json:"role"`
	Parts     []Part     `json:"parts"`
	Status    taskStatus `json:"status"`
	Artifacts []artifact `json:"artifacts"`
	History   []Message  `json:"history"`
}

type rpcRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      string         `json:"id"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result *sendResult `json:"result"`
	Error  *rpcError   `json:"error"`
}

// A2ACaller talks to a stage through the agent-to-agent protocol. The
// endpoint comes from the stage's discovery card, resolved on first use.
type A2ACaller struct {
	cardURL    string
	resolver   *CardResolver
	httpClient *http.Client
}

// NewA2ACaller creates a caller for the stage whose card lives at cardURL.
func NewA2ACaller(cardURL string, resolver *CardResolver, client *http.Client) *A2ACaller {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	if resolver == nil {
		resolver = NewCardResolver(client, nil)
	}
	return &A2ACaller{cardURL: cardURL, resolver: resolver, httpClient: client}
}

// Call sends the message with message/send and collects the reply parts.
func (c *A2ACaller) Call(ctx context.Context, req Request) (*Response, error) {
	card, err := c.resolver.Resolve(ctx, c.cardURL)
	if err != nil {
		return nil, err
	}

	rpc := rpcRequest{
		JSONRPC: "2.0",
		ID:      uuid.New().String(),
		Method:  methodMessageSend,
		Params: map[string]any{
			"message": Message{
				Kind:      "message",
				MessageID: uuid.New().String(),
				Role:      "user",
				Parts:     []Part{{Kind: "text", Text: req.Message}},
				ContextID: req.SessionID,
			},
			"metadata": map[string]string{"user_id": req.UserID},
		},
	}
	payload, err := json.Marshal(rpc)
	if err != nil {
		return nil, fmt.Errorf("marshal rpc: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, card.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.resolver.Forget(c.cardURL)
		return nil, fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkStatus(resp, body); err != nil {
		return nil, err
	}

	var decoded rpcResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("parse rpc response: %w", err)
	}
	if decoded.Error != nil {
		return nil, fmt.Errorf("rpc error %d: %s", decoded.Error.Code, decoded.Error.Message)
	}
	if decoded.Result == nil {
		return nil, fmt.Errorf("rpc response has no result")
	}
	return collectParts(decoded.Result.replyParts()), nil
}

// replyParts picks the parts that answer the request: the parts of a
// message result, or for a task its artifacts, then its status message,
// then its last agent message in history.
func (r *sendResult) replyParts() []Part {
	if r.Kind == "message" || (r.Kind == "" && len(r.Parts) > 0) {
		return r.Parts
	}
	var parts []Part
	for _, a := range r.Artifacts {
		parts = append(parts, a.Parts...)
	}
	if len(parts) > 0 {
		return parts
	}
	if r.Status.Message != nil && len(r.Status.Message.Parts) > 0 {
		return r.Status.Message.Parts
	}
	for i := len(r.History) - 1; i >= 0; i-- {
		if r.History[i].Role == "agent" {
			return r.History[i].Parts
		}
	}
	return nil
}

// collectParts concatenates text parts and keeps the last data part as the
// structured payload.
func collectParts(parts []Part) *Response {
	var text strings.Builder
	out := &Response{}
	for _, p := range parts {
		switch p.kind() {
		case "text":
			text.WriteString(p.Text)
		case "data":
			if p.Data != nil {
				out.Data = p.Data
			}
		}
	}
	out.Text = text.String()
	return out
}

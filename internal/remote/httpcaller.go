package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds one stage round trip.
const DefaultTimeout = 60 * time.Second

// maxResponseBody caps how much of a stage response is read.
const maxResponseBody = 8 * 1024 * 1024

// HTTPCaller talks to a stage exposing the generic chat endpoint:
// POST {base}/api/chat {message,user_id,session_id} -> {response}.
type HTTPCaller struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPCaller creates an HTTPCaller for the stage at baseURL. A nil
// client gets one with DefaultTimeout.
func NewHTTPCaller(baseURL string, client *http.Client) *HTTPCaller {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &HTTPCaller{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
	}
}

type chatResponse struct {
	Response string `json:"response"`
}

// Call posts the message and returns the stage's response text.
func (c *HTTPCaller) Call(ctx context.Context, req Request) (*Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkStatus(resp, body); err != nil {
		return nil, err
	}

	var decoded chatResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return &Response{Text: decoded.Response}, nil
}

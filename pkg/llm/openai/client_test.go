package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/user/charterd/pkg/llm"
)

var _ llm.Provider = (*Client)(nil)

func TestOpenAIClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Error("missing or invalid auth header")
		}
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("expected path /v1/chat/completions, got %q", r.URL.Path)
		}

		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "test response"}},
			},
			"usage": map[string]any{
				"prompt_tokens":     10,
				"completion_tokens": 5,
				"total_tokens":      15,
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := New(&llm.Config{BaseURL: server.URL + "/v1/", APIKey: "test-key", Model: "gpt-4o"})

	resp, err := client.Complete(context.Background(), &llm.Request{
		Messages: []llm.Message{{Role: "user", Content: "hello"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "test response" {
		t.Errorf("expected 'test response', got %s", resp.Content)
	}
	if resp.Usage.InputTokens != 10 || resp.Usage.OutputTokens != 5 || resp.Usage.TotalTokens != 15 {
		t.Errorf("unexpected usage %+v", resp.Usage)
	}
}

func TestOpenAIClientForcedTool(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reqBody map[string]any
		if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
			t.Fatal(err)
		}
		if reqBody["model"] != "gpt-4o" {
			t.Errorf("expected model gpt-4o, got %v", reqBody["model"])
		}
		tools, ok := reqBody["tools"].([]any)
		if !ok || len(tools) != 1 {
			t.Errorf("expected 1 tool, got %v", reqBody["tools"])
		}
		choice, ok := reqBody["tool_choice"].(map[string]any)
		if !ok {
			t.Fatalf("expected tool_choice object, got %v", reqBody["tool_choice"])
		}
		fn, _ := choice["function"].(map[string]any)
		if fn["name"] != "submit_output" {
			t.Errorf("expected forced submit_output, got %v", choice)
		}

		resp := map[string]any{
			"choices": []map[string]any{
				{
					"message": map[string]any{
						"role":    "assistant",
						"content": "",
						"tool_calls": []map[string]any{
							{
								"id":   "call_1",
								"type": "function",
								"function": map[string]any{
									"name":      "submit_output",
									"arguments": `{"overall_status":"pass"}`,
								},
							},
						},
					},
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := New(&llm.Config{BaseURL: server.URL, APIKey: "key", Model: "gpt-4o"})

	resp, err := client.Complete(context.Background(), &llm.Request{
		Messages:   []llm.Message{{Role: "user", Content: "judge this"}},
		Tools:      []llm.Tool{llm.NewFunctionTool("submit_output", "Return the verdict", json.RawMessage(`{"type":"object"}`))},
		ToolChoice: "submit_output",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(resp.ToolCalls))
	}
	args, err := resp.ToolCalls[0].Function.Args()
	if err != nil {
		t.Fatal(err)
	}
	if args["overall_status"] != "pass" {
		t.Errorf("expected overall_status pass, got %v", args)
	}
}

func TestOpenAIClientAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
	}))
	defer server.Close()

	client := New(&llm.Config{BaseURL: server.URL, APIKey: "bad-key", Model: "gpt-4o"})

	_, err := client.Complete(context.Background(), &llm.Request{
		Messages: []llm.Message{{Role: "user", Content: "hello"}},
	})
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
}

func TestOpenAIClientNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	client := New(&llm.Config{BaseURL: server.URL, Model: "gpt-4o"})
	if _, err := client.Complete(context.Background(), &llm.Request{}); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestOpenAIClientHasNoFixedTimeout(t *testing.T) {
	if c := New(&llm.Config{}); c.httpClient.Timeout != 0 {
		t.Errorf("expected no client timeout, got %s", c.httpClient.Timeout)
	}
	hc := &http.Client{Timeout: 5 * time.Minute}
	if c := New(&llm.Config{}, WithHTTPClient(hc)); c.httpClient != hc {
		t.Error("expected the given HTTP client to be used")
	}
}

func TestOpenAIClientHonoursContextDeadline(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := New(&llm.Config{BaseURL: server.URL, Model: "gpt-4o"})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, err := client.Complete(ctx, &llm.Request{}); err == nil {
		t.Fatal("expected deadline error")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("call outlived its context: %s", elapsed)
	}
}

// Package remote talks to the stage services of the pipeline and
// normalizes what they send back.
package remote

import (
	"context"
	"fmt"
	"strings"
)

// Request is one message sent to a stage on behalf of a session.
type Request struct {
	Stage     string `json:"-"`
	Message   string `json:"message"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// Response is what a stage returned. Data carries structured key/value
// arguments when the stage answered with a function-call style payload.
type Response struct {
	Text string
	Data map[string]any
}

// Empty reports whether the stage sent nothing usable.
func (r *Response) Empty() bool {
	return r == nil || (strings.TrimSpace(r.Text) == "" && r.Data == nil)
}

// Caller performs one request/response round trip with a stage.
type Caller interface {
	Call(ctx context.Context, req Request) (*Response, error)
}

// CallerFunc adapts a function to the Caller interface.
type CallerFunc func(ctx context.Context, req Request) (*Response, error)

func (f CallerFunc) Call(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// StatusError is returned when a stage answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("stage returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("stage returned status %d: %s", e.StatusCode, e.Body)
}

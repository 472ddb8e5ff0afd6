package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/user/charterd/internal/state"
	"github.com/user/charterd/internal/types"
)

// Gateway turns inbound messages into runs. It resolves (or creates) the
// message's session, wraps the message in a Run, and enqueues the run on
// the session's lane.
type Gateway struct {
	sessions *state.SessionStore
	Queue    *Queue

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Gateway over sessions with the given limit on runs
// processed at the same time across sessions.
func New(sessions *state.SessionStore, maxConcurrent ...int64) *Gateway {
	var concurrency int64 = 2
	if len(maxConcurrent) > 0 && maxConcurrent[0] > 0 {
		concurrency = maxConcurrent[0]
	}
	return &Gateway{
		sessions: sessions,
		Queue:    NewQueue(concurrency),
	}
}

// Start initialises the gateway's context and starts the internal queue.
func (g *Gateway) Start(ctx context.Context) {
	g.ctx, g.cancel = context.WithCancel(ctx)
	g.Queue.Start(g.ctx)
}

// Stop cancels the gateway context, stops the queue, and waits for any
// outstanding work to finish.
func (g *Gateway) Stop() {
	if g.cancel != nil {
		g.cancel()
	}
	g.Queue.Stop()
}

// RunOption configures optional behavior on a Run.
type RunOption func(*Run)

// WithOnComplete sets a callback invoked with the run's final response.
func WithOnComplete(fn func(string)) RunOption {
	return func(r *Run) { r.OnComplete = fn }
}

// WithOnProgress sets a callback invoked for each stage progress record.
func WithOnProgress(fn func(types.Record)) RunOption {
	return func(r *Run) { r.OnProgress = fn }
}

// HandleInbound resolves or creates the session for the event, wraps it in
// a Run, and enqueues it. The run ID is returned so callers can correlate
// events and artifacts.
func (g *Gateway) HandleInbound(ctx context.Context, event *types.InboundEvent, opts ...RunOption) (types.RunID, error) {
	if strings.TrimSpace(event.Text) == "" {
		return "", fmt.Errorf("empty message")
	}
	sess, _ := g.sessions.ResolveOrCreate(ctx, event.UserID, event.SessionID)
	event.UserID, event.SessionID = sess.UserID, sess.ID

	run := NewRun(event)
	for _, opt := range opts {
		opt(run)
	}
	if err := g.Queue.Enqueue(run); err != nil {
		return "", err
	}
	return run.ID, nil
}

// Submit enqueues the event and waits for its final response. Progress
// records go to the WithOnProgress callback if one is given.
func (g *Gateway) Submit(ctx context.Context, event *types.InboundEvent, opts ...RunOption) (string, error) {
	done := make(chan string, 1)
	opts = append(opts, WithOnComplete(func(resp string) {
		done <- resp
	}))
	if _, err := g.HandleInbound(ctx, event, opts...); err != nil {
		return "", err
	}
	select {
	case resp := <-done:
		return resp, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

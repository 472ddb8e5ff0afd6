package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/user/charterd/internal/remote"
	"github.com/user/charterd/internal/state"
	"github.com/user/charterd/internal/types"
)

// fakeCaller answers with a fixed response or error and counts calls.
type fakeCaller struct {
	mu       sync.Mutex
	resp     *remote.Response
	err      error
	calls    int
	messages []string
}

func (f *fakeCaller) Call(ctx context.Context, req remote.Request) (*remote.Response, error) {
	f.mu.Lock()
	f.calls++
	f.messages = append(f.messages, req.Message)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func (f *fakeCaller) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func textCaller(text string) *fakeCaller {
	return &fakeCaller{resp: &remote.Response{Text: text}}
}

func failingCaller(msg string) *fakeCaller {
	return &fakeCaller{err: errors.New(msg)}
}

// callerFunc answers each call with the next text from fn.
func callerFunc(fn func() string) remote.Caller {
	return remote.CallerFunc(func(ctx context.Context, req remote.Request) (*remote.Response, error) {
		return &remote.Response{Text: fn()}, nil
	})
}

func newInvocation(t *testing.T) *Invocation {
	t.Helper()
	sessions := state.NewSessionStore(nil)
	sess, _ := sessions.ResolveOrCreate(context.Background(), "u", "s")
	inv := &Invocation{Session: sess, RunID: types.NewRunID()}
	inv.Emit(context.Background(), &types.Event{Type: types.EventUserMessage, Author: UserAuthor, Text: "A medical diagnosis bot"})
	return inv
}

func eventsOfType(evs []*types.Event, typ string) []*types.Event {
	var out []*types.Event
	for _, ev := range evs {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

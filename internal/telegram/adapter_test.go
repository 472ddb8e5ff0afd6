package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/charterd/internal/gateway"
	"github.com/user/charterd/internal/state"
	"github.com/user/charterd/internal/types"
)

// fakeSender records outgoing messages. failMarkdown rejects any message
// sent with a parse mode.
type fakeSender struct {
	mu           sync.Mutex
	sent         []tgbotapi.MessageConfig
	actions      int
	failMarkdown bool
	notify       chan struct{}
}

func newFakeSender() *fakeSender {
	return &fakeSender{notify: make(chan struct{}, 16)}
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg, ok := c.(tgbotapi.MessageConfig)
	if !ok {
		return tgbotapi.Message{}, errors.New("unexpected chattable")
	}
	if f.failMarkdown && msg.ParseMode != "" {
		return tgbotapi.Message{}, errors.New("can't parse entities")
	}
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	f.mu.Unlock()
	f.notify <- struct{}{}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	f.actions++
	f.mu.Unlock()
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.sent {
		out = append(out, m.Text)
	}
	return out
}

func (f *fakeSender) wait(t *testing.T) {
	t.Helper()
	select {
	case <-f.notify:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func newTestAdapter(t *testing.T, processor func(*gateway.Run) error) (*Adapter, *fakeSender, *state.SessionStore) {
	t.Helper()
	sessions := state.NewSessionStore(nil)
	gw := gateway.New(sessions)
	gw.Queue.SetProcessor(processor)
	gw.Start(context.Background())
	t.Cleanup(gw.Stop)

	out := newFakeSender()
	return newAdapter(out, gw, sessions), out, sessions
}

func textMessage(text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		Text: text,
		From: &tgbotapi.User{ID: 12345},
		Chat: &tgbotapi.Chat{ID: 67890},
	}
}

func commandMessage(cmd string) *tgbotapi.Message {
	msg := textMessage("/" + cmd)
	msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd) + 1}}
	return msg
}

func TestHandleMessageRepliesWithResult(t *testing.T) {
	var gotEvent *types.InboundEvent
	a, out, _ := newTestAdapter(t, func(run *gateway.Run) error {
		gotEvent = run.Event
		run.Progress(types.Record{Type: types.RecordProgress, Text: "researching"})
		run.Complete("# Constitution")
		return nil
	})

	a.handleMessage(context.Background(), textMessage("A tutoring bot"))
	out.wait(t)

	if texts := out.texts(); len(texts) != 1 || texts[0] != "# Constitution" {
		t.Errorf("unexpected replies %v", texts)
	}
	if out.sent[0].ChatID != 67890 {
		t.Errorf("expected reply to chat 67890, got %d", out.sent[0].ChatID)
	}
	if out.actions != 1 {
		t.Errorf("expected 1 typing action, got %d", out.actions)
	}
	if gotEvent.UserID != "telegram:12345" || gotEvent.SessionID != "67890" {
		t.Errorf("unexpected identity %s/%s", gotEvent.UserID, gotEvent.SessionID)
	}
}

func TestSendResponseFallsBackToPlainText(t *testing.T) {
	a, out, _ := newTestAdapter(t, func(*gateway.Run) error { return nil })
	out.failMarkdown = true

	if err := a.Deliver(context.Background(), "42", "*unbalanced"); err != nil {
		t.Fatal(err)
	}
	if len(out.sent) != 1 || out.sent[0].ParseMode != "" || out.sent[0].ChatID != 42 {
		t.Errorf("unexpected sends %+v", out.sent)
	}
}

func TestDeliverRejectsBadChatID(t *testing.T) {
	a, _, _ := newTestAdapter(t, func(*gateway.Run) error { return nil })
	if err := a.Deliver(context.Background(), "not-a-chat", "x"); err == nil {
		t.Error("expected error for bad chat id")
	}
}

func TestNewCommandStartsFreshSession(t *testing.T) {
	a, out, _ := newTestAdapter(t, func(*gateway.Run) error { return nil })

	_, before := a.identity(12345, 67890)
	a.handleMessage(context.Background(), commandMessage("new"))
	out.wait(t)
	_, after := a.identity(12345, 67890)

	if before != "67890" || after != "67890-1" {
		t.Errorf("unexpected session ids %q -> %q", before, after)
	}
}

func TestStatusCommand(t *testing.T) {
	a, out, sessions := newTestAdapter(t, func(*gateway.Run) error { return nil })

	a.handleMessage(context.Background(), commandMessage("status"))
	out.wait(t)
	if texts := out.texts(); !strings.Contains(texts[0], "No runs yet") {
		t.Errorf("unexpected status %q", texts[0])
	}

	sess, _ := sessions.ResolveOrCreate(context.Background(), "telegram:12345", "67890")
	sess.State.Set(state.KeyResearchFindings, state.Raw("notes"))
	a.handleMessage(context.Background(), commandMessage("status"))
	out.wait(t)
	if texts := out.texts(); !strings.Contains(texts[1], state.KeyResearchFindings) {
		t.Errorf("unexpected status %q", texts[1])
	}
}

func TestSplitMessage(t *testing.T) {
	short := "Hello world"
	parts := splitMessage(short)
	if len(parts) != 1 {
		t.Fatalf("expected 1 part, got %d", len(parts))
	}
	if parts[0] != short {
		t.Errorf("expected %q, got %q", short, parts[0])
	}
}

func TestSplitMessageLong(t *testing.T) {
	long := strings.Repeat("a", 5000)
	parts := splitMessage(long)
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	if len(parts[0]) != maxTelegramMessage {
		t.Errorf("expected first part length %d, got %d", maxTelegramMessage, len(parts[0]))
	}
}

func TestSplitMessagePrefersNewlines(t *testing.T) {
	text := strings.Repeat("b", 3000) + "\n" + strings.Repeat("c", 3000)
	parts := splitMessage(text)
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	if !strings.HasSuffix(parts[0], "\n") || len(parts[0]) != 3001 {
		t.Errorf("expected split after newline, got first part of %d bytes", len(parts[0]))
	}
	if strings.Join(parts, "") != text {
		t.Error("parts do not reassemble to the original")
	}
}

func TestSplitMessageKeepsRunes(t *testing.T) {
	text := "x" + strings.Repeat("é", 3000)
	for _, part := range splitMessage(text) {
		if !utf8.ValidString(part) {
			t.Fatal("split inside a multi-byte rune")
		}
	}
}

// Package telegram is a chat front door: each message starts a pipeline run
// and the drafted document is sent back to the chat.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/charterd/internal/gateway"
	"github.com/user/charterd/internal/state"
	"github.com/user/charterd/internal/types"
)

const maxTelegramMessage = 4096

// sender is the part of the bot API the adapter writes through.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Adapter bridges Telegram to the gateway.
type Adapter struct {
	bot      *tgbotapi.BotAPI
	out      sender
	gateway  *gateway.Gateway
	sessions *state.SessionStore

	mu     sync.Mutex
	epochs map[int64]int
}

// New creates a Telegram adapter.
func New(token string, gw *gateway.Gateway, sessions *state.SessionStore) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	a := newAdapter(bot, gw, sessions)
	a.bot = bot
	return a, nil
}

func newAdapter(out sender, gw *gateway.Gateway, sessions *state.SessionStore) *Adapter {
	return &Adapter{
		out:      out,
		gateway:  gw,
		sessions: sessions,
		epochs:   make(map[int64]int),
	}
}

// Start long-polls for Telegram updates until ctx is done.
func (a *Adapter) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := a.bot.GetUpdatesChan(u)
	slog.Info("telegram adapter started", "bot", a.bot.Self.UserName)

	for {
		select {
		case update := <-updates:
			if update.Message == nil || update.Message.Text == "" || update.Message.From == nil {
				continue
			}
			a.handleMessage(ctx, update.Message)
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			return
		}
	}
}

// Deliver sends a finished document to the chat named by address. It is
// registered as the "telegram" delivery scheme.
func (a *Adapter) Deliver(_ context.Context, address, message string) error {
	chatID, err := strconv.ParseInt(address, 10, 64)
	if err != nil {
		return fmt.Errorf("parse chat id %q: %w", address, err)
	}
	return a.sendResponse(chatID, message)
}

func (a *Adapter) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.IsCommand() {
		a.handleCommand(msg)
		return
	}

	chatID := msg.Chat.ID
	userID, sessionID := a.identity(msg.From.ID, chatID)
	event := &types.InboundEvent{
		Source:    "telegram",
		UserID:    userID,
		SessionID: sessionID,
		Text:      msg.Text,
	}

	_, err := a.gateway.HandleInbound(ctx, event,
		gateway.WithOnProgress(func(types.Record) {
			if _, err := a.out.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
				slog.Debug("send chat action failed", "chat_id", chatID, "error", err)
			}
		}),
		gateway.WithOnComplete(func(response string) {
			if err := a.sendResponse(chatID, response); err != nil {
				slog.Error("send telegram response failed", "chat_id", chatID, "error", err)
			}
		}),
	)
	if err != nil {
		slog.Error("handle inbound failed", "chat_id", chatID, "error", err)
		a.sendResponse(chatID, "Sorry, I could not start drafting for that message.")
	}
}

func (a *Adapter) handleCommand(msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start":
		a.sendResponse(chatID, "Hello! Describe the assistant you are building and I will research governance principles and draft a constitution for it.")

	case "new":
		a.mu.Lock()
		a.epochs[chatID]++
		a.mu.Unlock()
		a.sendResponse(chatID, "Starting a new session. Earlier research and drafts stay in the old one.")

	case "status":
		userID, sessionID := a.identity(msg.From.ID, chatID)
		key := types.UserSessionKey(userID, sessionID)
		sess, ok := a.sessions.Get(key)
		if !ok {
			a.sendResponse(chatID, fmt.Sprintf("Session: %s\nNo runs yet.", key))
			return
		}
		info := sess.Info()
		a.sendResponse(chatID, fmt.Sprintf("Session: %s\nEvents: %d\nState: %s",
			key, info.EventCount, strings.Join(sess.State.Keys(), ", ")))

	default:
		a.sendResponse(chatID, "Unknown command. Available: /start, /new, /status")
	}
}

// identity maps a Telegram user and chat onto the pipeline's
// (user_id, session_id) pair. /new moves the chat to a fresh session ID.
func (a *Adapter) identity(userID, chatID int64) (string, string) {
	a.mu.Lock()
	epoch := a.epochs[chatID]
	a.mu.Unlock()

	sessionID := strconv.FormatInt(chatID, 10)
	if epoch > 0 {
		sessionID += "-" + strconv.Itoa(epoch)
	}
	return "telegram:" + strconv.FormatInt(userID, 10), sessionID
}

func (a *Adapter) sendResponse(chatID int64, text string) error {
	var firstErr error
	for _, part := range splitMessage(text) {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if _, err := a.out.Send(msg); err != nil {
			// Drafts are free-form markdown; retry as plain text.
			msg.ParseMode = ""
			if _, err := a.out.Send(msg); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("send message: %w", err)
			}
		}
	}
	return firstErr
}

// splitMessage cuts text into Telegram-sized parts, preferring to break
// after a newline and never inside a UTF-8 sequence.
func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > maxTelegramMessage {
		end := maxTelegramMessage
		if nl := strings.LastIndexByte(text[:end], '\n'); nl > maxTelegramMessage/2 {
			end = nl + 1
		} else {
			for end > 0 && !utf8.RuneStart(text[end]) {
				end--
			}
		}
		parts = append(parts, text[:end])
		text = text[end:]
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}

// Package bot wires the dispatcher to the proxy pool: command and
// callback handlers plus the proxy-text completion flow.
package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/sadewadee/tgproxybot/internal/dispatcher"
	"github.com/sadewadee/tgproxybot/internal/domain"
)

// Pool is the slice of the pool manager the handlers need.
type Pool interface {
	WorkingProxy(ctx context.Context, userInput, apiURL string) *domain.Proxy
	DefaultProxy(ctx context.Context) *domain.Proxy
}

// Sender is the outbound Telegram surface used by the handlers.
type Sender interface {
	SendMessage(chatID int64, text string) error
	SendMessageWithMarkup(chatID int64, text string, markup tgbotapi.InlineKeyboardMarkup) error
	AnswerCallback(callbackID, text string) error
}

const noProxyFound = "no working proxy found"

// Handlers carries the dependencies shared by all handler funcs.
type Handlers struct {
	sender Sender
	pool   Pool
}

func NewHandlers(sender Sender, pool Pool) *Handlers {
	return &Handlers{sender: sender, pool: pool}
}

// Register installs every command, callback and flow handler.
func (h *Handlers) Register(d *dispatcher.Dispatcher) {
	d.Command("start", h.Start)
	d.Command("proxy", h.Proxy)
	d.Command("cancel", h.Cancel)
	d.Command("accounts", h.Accounts)

	d.Callback("proxy_text", h.ChooseText)
	d.Callback("proxy_url", h.ChooseURL)
	d.Callback("proxy_auto", h.ChooseAuto)

	d.OnProxyText(h.ProxyText)
	d.Default(h.Menu)
}

func (h *Handlers) Start(_ context.Context, env domain.Envelope, sess *domain.Session) error {
	sess.State = domain.StateIdle
	return h.sendMenu(env.ChatID)
}

// Menu is the default handler for anything unrouted.
func (h *Handlers) Menu(_ context.Context, env domain.Envelope, _ *domain.Session) error {
	return h.sendMenu(env.ChatID)
}

func (h *Handlers) sendMenu(chatID int64) error {
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Paste proxy list", "proxy_text"),
			tgbotapi.NewInlineKeyboardButtonData("Proxy API URL", "proxy_url"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Find one for me", "proxy_auto"),
		),
	)

	return h.sender.SendMessageWithMarkup(chatID, "What do you want to do?", markup)
}

// Proxy asks for a proxy list and moves the session to awaiting it.
func (h *Handlers) Proxy(_ context.Context, env domain.Envelope, sess *domain.Session) error {
	sess.State = domain.StateAwaitingProxyText
	return h.sender.SendMessage(env.ChatID, "Send proxies, one per line (scheme://host:port), or upload a .txt file.")
}

func (h *Handlers) Cancel(_ context.Context, env domain.Envelope, sess *domain.Session) error {
	sess.State = domain.StateIdle
	sess.PendingProxy = nil
	return h.sender.SendMessage(env.ChatID, "Cancelled.")
}

// Accounts lists stored snapshots; the core only echoes what external
// handlers stored.
func (h *Handlers) Accounts(_ context.Context, env domain.Envelope, sess *domain.Session) error {
	if len(sess.Accounts) == 0 {
		return h.sender.SendMessage(env.ChatID, "No accounts stored yet.")
	}

	var b strings.Builder
	for i, acc := range sess.Accounts {
		fmt.Fprintf(&b, "%d. %s [%s] %s\n", i+1, acc.Gmail, acc.Status, acc.CreatedAt.Format("2006-01-02"))
	}

	return h.sender.SendMessage(env.ChatID, b.String())
}

func (h *Handlers) ChooseText(_ context.Context, env domain.Envelope, sess *domain.Session) error {
	_ = h.sender.AnswerCallback(env.CallbackID, "")
	sess.State = domain.StateAwaitingProxyText
	return h.sender.SendMessage(env.ChatID, "Send proxies, one per line, or upload a .txt file.")
}

func (h *Handlers) ChooseURL(_ context.Context, env domain.Envelope, sess *domain.Session) error {
	_ = h.sender.AnswerCallback(env.CallbackID, "")
	sess.State = domain.StateAwaitingProxyURL
	return h.sender.SendMessage(env.ChatID, "Send the inventory URL returning a proxy list.")
}

// ChooseAuto finds a proxy from the built-in sources right away.
func (h *Handlers) ChooseAuto(ctx context.Context, env domain.Envelope, sess *domain.Session) error {
	_ = h.sender.AnswerCallback(env.CallbackID, "Searching...")
	sess.State = domain.StateIdle

	p := h.pool.DefaultProxy(ctx)
	if p == nil {
		return h.sender.SendMessage(env.ChatID, noProxyFound)
	}

	sess.PendingProxy = p
	return h.sender.SendMessage(env.ChatID, "Working proxy: "+p.URL())
}

// ProxyText completes the awaiting flow: the text (pasted or from an
// uploaded document) is treated as a candidate list. The session
// returns to idle whatever the outcome.
func (h *Handlers) ProxyText(ctx context.Context, env domain.Envelope, sess *domain.Session) error {
	text := env.Text

	var apiURL string
	if sess.State == domain.StateAwaitingProxyURL {
		apiURL = strings.TrimSpace(text)
		text = ""
	}

	sess.State = domain.StateIdle

	p := h.pool.WorkingProxy(ctx, text, apiURL)
	if p == nil {
		return h.sender.SendMessage(env.ChatID, noProxyFound)
	}

	sess.PendingProxy = p
	return h.sender.SendMessage(env.ChatID, "Working proxy: "+p.URL())
}

// Package telegram abstracts the two Bot API update delivery modes,
// long-polling and webhook, behind one cancellable stream of envelopes.
package telegram

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/sadewadee/tgproxybot/internal/domain"
)

// Mode selects the update delivery mechanism.
type Mode string

const (
	ModePolling Mode = "polling"
	ModeWebhook Mode = "webhook"
)

var allowedUpdates = []string{"message", "edited_message", "callback_query"}

// Config for the transport. Endpoint overrides the Bot API base URL in
// tests; empty means api.telegram.org.
type Config struct {
	Token       string
	Mode        Mode
	WebhookBase string // public https base for webhook mode
	Port        string // listen port for webhook mode
	PollTimeout int    // long-poll timeout in seconds
	Endpoint    string
}

// Transport owns the startup handshake and the steady-state update
// loop for one bot credential. Within a session (no restart) envelopes
// come out strictly increasing by update id, at most once each.
type Transport struct {
	cfg       Config
	bot       *tgbotapi.BotAPI
	updates   chan domain.Envelope
	seen      *seenSet
	sessionID string
}

// New authenticates the credential (getMe) and prepares the transport.
func New(cfg Config) (*Transport, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram: empty bot token")
	}
	if cfg.Mode == "" {
		cfg.Mode = ModePolling
	}
	if cfg.PollTimeout == 0 {
		cfg.PollTimeout = 30
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}

	client := &http.Client{Timeout: time.Duration(cfg.PollTimeout+10) * time.Second}

	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram: credential check failed: %w", err)
	}

	return &Transport{
		cfg:       cfg,
		bot:       bot,
		updates:   make(chan domain.Envelope, 64),
		seen:      newSeenSet(),
		sessionID: uuid.NewString(),
	}, nil
}

// Self returns the authenticated bot username.
func (t *Transport) Self() string {
	return t.bot.Self.UserName
}

// Updates is the envelope stream. It is closed when Run returns.
func (t *Transport) Updates() <-chan domain.Envelope {
	return t.updates
}

// Run performs the startup handshake and then blocks producing updates
// until ctx is cancelled or the transport gives up on a persistent
// peer conflict.
func (t *Transport) Run(ctx context.Context) error {
	defer close(t.updates)

	// Drop-pending happens exactly once, here, in both modes.
	if _, err := t.bot.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: true}); err != nil {
		return fmt.Errorf("telegram: deleteWebhook: %w", err)
	}

	log.Printf("[Transport] session %s authorized as @%s mode=%s", t.sessionID, t.bot.Self.UserName, t.cfg.Mode)

	if t.cfg.Mode == ModeWebhook {
		return t.runWebhook(ctx)
	}
	return t.runPolling(ctx)
}

// emit delivers an update as an envelope unless its id was already
// seen in this session or it carries no routable payload.
func (t *Transport) emit(ctx context.Context, upd tgbotapi.Update) {
	if !t.seen.Add(upd.UpdateID) {
		log.Printf("[Transport] duplicate update %d dropped", upd.UpdateID)
		return
	}

	env, ok := toEnvelope(upd)
	if !ok {
		return
	}

	select {
	case t.updates <- env:
	case <-ctx.Done():
	}
}

func toEnvelope(upd tgbotapi.Update) (domain.Envelope, bool) {
	env := domain.Envelope{UpdateID: upd.UpdateID}

	switch {
	case upd.CallbackQuery != nil:
		cb := upd.CallbackQuery
		if cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
			return env, false
		}
		env.Kind = domain.UpdateCallbackQuery
		env.UserID = cb.From.ID
		env.ChatID = cb.Message.Chat.ID
		env.CallbackID = cb.ID
		env.CallbackData = cb.Data
		return env, true

	case upd.Message != nil:
		return messageEnvelope(env, upd.Message)

	case upd.EditedMessage != nil:
		return messageEnvelope(env, upd.EditedMessage)
	}

	return env, false
}

func messageEnvelope(env domain.Envelope, msg *tgbotapi.Message) (domain.Envelope, bool) {
	if msg.From == nil || msg.Chat == nil {
		return env, false
	}

	env.UserID = msg.From.ID
	env.ChatID = msg.Chat.ID

	if msg.Document != nil {
		env.Kind = domain.UpdateMessageDocument
		env.Text = msg.Caption
		env.Document = &domain.Document{
			FileID:   msg.Document.FileID,
			FileName: msg.Document.FileName,
			FileSize: msg.Document.FileSize,
		}
		return env, true
	}

	if msg.Text == "" {
		return env, false
	}

	env.Kind = domain.UpdateMessageText
	env.Text = msg.Text
	return env, true
}

// seenSet tracks the last delivered update ids. Once it exceeds maxSeen
// entries it is trimmed to the most recent keepSeen. Safe for
// concurrent use; webhook deliveries arrive on separate goroutines.
type seenSet struct {
	mu    sync.Mutex
	ids   map[int]struct{}
	order []int
}

const (
	maxSeen  = 1000
	keepSeen = 500
)

func newSeenSet() *seenSet {
	return &seenSet{ids: make(map[int]struct{}, maxSeen)}
}

// Add records id and reports whether it was new.
func (s *seenSet) Add(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.ids[id]; dup {
		return false
	}

	s.ids[id] = struct{}{}
	s.order = append(s.order, id)

	if len(s.order) > maxSeen {
		cut := len(s.order) - keepSeen
		for _, old := range s.order[:cut] {
			delete(s.ids, old)
		}
		s.order = append(s.order[:0], s.order[cut:]...)
	}

	return true
}

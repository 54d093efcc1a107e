// Package dispatcher routes envelopes to registered handlers with
// per-user in-memory sessions. It is the boundary that absorbs handler
// failures: nothing a handler does propagates up to the transport.
package dispatcher

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/sadewadee/tgproxybot/internal/domain"
)

// HandlerFunc processes one envelope against the caller's session. The
// session is locked for the duration of the call; handlers may mutate
// it freely but must not touch other users' sessions.
type HandlerFunc func(ctx context.Context, env domain.Envelope, sess *domain.Session) error

// Messenger is the outbound surface the dispatcher needs to report
// handler failures to the originating chat and to acknowledge
// callback queries nobody handles.
type Messenger interface {
	SendMessage(chatID int64, text string) error
	AnswerCallback(callbackID, text string) error
}

// Downloader fetches an uploaded document within bounded size and time.
type Downloader interface {
	DownloadDocument(ctx context.Context, fileID string, maxBytes int64) ([]byte, error)
}

const maxDocumentBytes = 50 << 10

// Dispatcher holds the session store and the handler registry.
type Dispatcher struct {
	messenger  Messenger
	downloader Downloader

	commands  map[string]HandlerFunc
	callbacks map[string]HandlerFunc
	proxyText HandlerFunc
	fallback  HandlerFunc

	mu       sync.Mutex
	sessions map[int64]*entry
}

type entry struct {
	mu   sync.Mutex
	sess *domain.Session
}

func New(messenger Messenger, downloader Downloader) *Dispatcher {
	return &Dispatcher{
		messenger:  messenger,
		downloader: downloader,
		commands:   make(map[string]HandlerFunc),
		callbacks:  make(map[string]HandlerFunc),
		sessions:   make(map[int64]*entry),
	}
}

// Command registers a handler for "/name".
func (d *Dispatcher) Command(name string, h HandlerFunc) {
	d.commands[strings.TrimPrefix(name, "/")] = h
}

// Callback registers a handler for callback queries carrying data.
func (d *Dispatcher) Callback(data string, h HandlerFunc) {
	d.callbacks[data] = h
}

// OnProxyText registers the handler invoked with proxy-list text when
// the session is awaiting it.
func (d *Dispatcher) OnProxyText(h HandlerFunc) {
	d.proxyText = h
}

// Default registers the handler for anything unrouted.
func (d *Dispatcher) Default(h HandlerFunc) {
	d.fallback = h
}

// Session returns the user's session, creating an idle one on first
// contact. Sessions are never destroyed while the process runs.
func (d *Dispatcher) Session(userID, chatID int64) *domain.Session {
	return d.entryFor(userID, chatID).sess
}

func (d *Dispatcher) entryFor(userID, chatID int64) *entry {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.sessions[userID]
	if !ok {
		e = &entry{sess: &domain.Session{
			UserID: userID,
			ChatID: chatID,
			State:  domain.StateIdle,
		}}
		d.sessions[userID] = e
	}

	return e
}

// Dispatch routes one envelope. Mutations are serialized per user id;
// distinct users proceed independently.
func (d *Dispatcher) Dispatch(ctx context.Context, env domain.Envelope) {
	e := d.entryFor(env.UserID, env.ChatID)

	e.mu.Lock()
	defer e.mu.Unlock()

	h := d.route(ctx, &env, e.sess)
	if h == nil {
		return
	}

	d.invoke(ctx, h, env, e.sess)
}

func (d *Dispatcher) route(ctx context.Context, env *domain.Envelope, sess *domain.Session) HandlerFunc {
	switch env.Kind {
	case domain.UpdateCallbackQuery:
		if h, ok := d.callbacks[env.CallbackData]; ok {
			return h
		}
		// Ack anyway so the client stops showing its spinner.
		if d.messenger != nil && env.CallbackID != "" {
			if err := d.messenger.AnswerCallback(env.CallbackID, ""); err != nil {
				log.Printf("[Dispatcher] callback ack failed: %v", err)
			}
		}
		return nil

	case domain.UpdateMessageText:
		if strings.HasPrefix(env.Text, "/") {
			name := strings.TrimPrefix(strings.Fields(env.Text)[0], "/")
			if i := strings.Index(name, "@"); i >= 0 {
				name = name[:i]
			}
			if h, ok := d.commands[name]; ok {
				return h
			}
			return d.fallback
		}

		if awaitingProxyInput(sess.State) && d.proxyText != nil {
			return d.proxyText
		}

		return d.fallback

	case domain.UpdateMessageDocument:
		if sess.State != domain.StateAwaitingProxyText || d.proxyText == nil {
			// Stay in the current state; the user may still send text.
			return nil
		}

		data, err := d.downloader.DownloadDocument(ctx, env.Document.FileID, maxDocumentBytes)
		if err != nil {
			log.Printf("[Dispatcher] document download failed for user %d: %v", env.UserID, err)
			d.report(env.ChatID)
			return nil
		}

		env.Text = string(data)
		return d.proxyText
	}

	return nil
}

// invoke runs a handler behind a panic barrier. A failure is logged
// and reported once to the originating chat, never escalated.
func (d *Dispatcher) invoke(ctx context.Context, h HandlerFunc, env domain.Envelope, sess *domain.Session) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("handler panic: %v", r)
			}
		}()
		return h(ctx, env, sess)
	}()

	if err != nil {
		log.Printf("[Dispatcher] handler failed for user %d: %v", env.UserID, err)
		d.report(env.ChatID)
	}
}

func awaitingProxyInput(s domain.SessionState) bool {
	return s == domain.StateAwaitingProxyText || s == domain.StateAwaitingProxyURL
}

func (d *Dispatcher) report(chatID int64) {
	if d.messenger == nil {
		return
	}
	if err := d.messenger.SendMessage(chatID, "Something went wrong, please try again."); err != nil {
		log.Printf("[Dispatcher] error report failed: %v", err)
	}
}

package bot

import (
	"context"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sadewadee/tgproxybot/internal/domain"
)

type fakeSender struct {
	sent      []string
	markups   []tgbotapi.InlineKeyboardMarkup
	callbacks []string
}

func (f *fakeSender) SendMessage(chatID int64, text string) error {
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeSender) SendMessageWithMarkup(chatID int64, text string, markup tgbotapi.InlineKeyboardMarkup) error {
	f.sent = append(f.sent, text)
	f.markups = append(f.markups, markup)
	return nil
}

func (f *fakeSender) AnswerCallback(callbackID, text string) error {
	f.callbacks = append(f.callbacks, callbackID)
	return nil
}

type fakePool struct {
	working  *domain.Proxy
	fallback *domain.Proxy

	gotInput  string
	gotAPIURL string
}

func (f *fakePool) WorkingProxy(ctx context.Context, userInput, apiURL string) *domain.Proxy {
	f.gotInput = userInput
	f.gotAPIURL = apiURL
	return f.working
}

func (f *fakePool) DefaultProxy(ctx context.Context) *domain.Proxy {
	return f.fallback
}

func newTestHandlers() (*Handlers, *fakeSender, *fakePool) {
	sender := &fakeSender{}
	pool := &fakePool{}
	return NewHandlers(sender, pool), sender, pool
}

func idleSession() *domain.Session {
	return &domain.Session{UserID: 1, ChatID: 1, State: domain.StateIdle}
}

func TestStart_ShowsMenu(t *testing.T) {
	h, sender, _ := newTestHandlers()
	sess := idleSession()
	sess.State = domain.StateAwaitingProxyText

	require.NoError(t, h.Start(context.Background(), domain.Envelope{ChatID: 1}, sess))

	assert.Equal(t, domain.StateIdle, sess.State)
	require.Len(t, sender.markups, 1)
	assert.Len(t, sender.markups[0].InlineKeyboard, 2)
}

func TestProxy_MovesToAwaitingText(t *testing.T) {
	h, sender, _ := newTestHandlers()
	sess := idleSession()

	require.NoError(t, h.Proxy(context.Background(), domain.Envelope{ChatID: 1}, sess))

	assert.Equal(t, domain.StateAwaitingProxyText, sess.State)
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0], "one per line")
}

func TestCancel_ResetsSession(t *testing.T) {
	h, sender, _ := newTestHandlers()
	sess := idleSession()
	sess.State = domain.StateAwaitingProxyURL
	sess.PendingProxy = &domain.Proxy{Scheme: domain.SchemeHTTP, Host: "1.2.3.4", Port: 8080}

	require.NoError(t, h.Cancel(context.Background(), domain.Envelope{ChatID: 1}, sess))

	assert.Equal(t, domain.StateIdle, sess.State)
	assert.Nil(t, sess.PendingProxy)
	assert.Equal(t, []string{"Cancelled."}, sender.sent)
}

func TestChooseText_AnswersCallbackAndPrompts(t *testing.T) {
	h, sender, _ := newTestHandlers()
	sess := idleSession()

	env := domain.Envelope{ChatID: 1, CallbackID: "cb9"}
	require.NoError(t, h.ChooseText(context.Background(), env, sess))

	assert.Equal(t, domain.StateAwaitingProxyText, sess.State)
	assert.Equal(t, []string{"cb9"}, sender.callbacks)
}

func TestChooseURL_MovesToAwaitingURL(t *testing.T) {
	h, _, _ := newTestHandlers()
	sess := idleSession()

	require.NoError(t, h.ChooseURL(context.Background(), domain.Envelope{ChatID: 1, CallbackID: "cb1"}, sess))
	assert.Equal(t, domain.StateAwaitingProxyURL, sess.State)
}

func TestChooseAuto_ReportsProxyOrMiss(t *testing.T) {
	h, sender, pool := newTestHandlers()
	sess := idleSession()

	require.NoError(t, h.ChooseAuto(context.Background(), domain.Envelope{ChatID: 1, CallbackID: "cb1"}, sess))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, noProxyFound, sender.sent[0])
	assert.Nil(t, sess.PendingProxy)

	pool.fallback = &domain.Proxy{Scheme: domain.SchemeSOCKS5, Host: "5.6.7.8", Port: 1080}
	require.NoError(t, h.ChooseAuto(context.Background(), domain.Envelope{ChatID: 1, CallbackID: "cb2"}, sess))
	require.Len(t, sender.sent, 2)
	assert.Equal(t, "Working proxy: socks5://5.6.7.8:1080", sender.sent[1])
	assert.Equal(t, pool.fallback, sess.PendingProxy)
}

func TestProxyText_PastedList(t *testing.T) {
	h, sender, pool := newTestHandlers()
	pool.working = &domain.Proxy{Scheme: domain.SchemeHTTP, Host: "1.2.3.4", Port: 8080}

	sess := idleSession()
	sess.State = domain.StateAwaitingProxyText

	env := domain.Envelope{ChatID: 1, Text: "1.2.3.4:8080\n5.6.7.8:3128\n"}
	require.NoError(t, h.ProxyText(context.Background(), env, sess))

	assert.Equal(t, "1.2.3.4:8080\n5.6.7.8:3128\n", pool.gotInput)
	assert.Empty(t, pool.gotAPIURL)
	assert.Equal(t, domain.StateIdle, sess.State)
	assert.Equal(t, pool.working, sess.PendingProxy)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Working proxy: http://1.2.3.4:8080", sender.sent[0])
}

func TestProxyText_URLState(t *testing.T) {
	h, _, pool := newTestHandlers()
	pool.working = &domain.Proxy{Scheme: domain.SchemeHTTP, Host: "1.2.3.4", Port: 8080}

	sess := idleSession()
	sess.State = domain.StateAwaitingProxyURL

	env := domain.Envelope{ChatID: 1, Text: "  https://inventory.example/list.txt \n"}
	require.NoError(t, h.ProxyText(context.Background(), env, sess))

	assert.Empty(t, pool.gotInput)
	assert.Equal(t, "https://inventory.example/list.txt", pool.gotAPIURL)
	assert.Equal(t, domain.StateIdle, sess.State)
}

func TestProxyText_NothingWorking(t *testing.T) {
	h, sender, _ := newTestHandlers()

	sess := idleSession()
	sess.State = domain.StateAwaitingProxyText

	require.NoError(t, h.ProxyText(context.Background(), domain.Envelope{ChatID: 1, Text: "garbage"}, sess))

	assert.Equal(t, domain.StateIdle, sess.State)
	assert.Nil(t, sess.PendingProxy)
	assert.Equal(t, []string{noProxyFound}, sender.sent)
}

func TestAccounts_Listing(t *testing.T) {
	h, sender, _ := newTestHandlers()
	sess := idleSession()

	require.NoError(t, h.Accounts(context.Background(), domain.Envelope{ChatID: 1}, sess))
	assert.Equal(t, []string{"No accounts stored yet."}, sender.sent)

	sess.Accounts = []domain.AccountSnapshot{
		{Gmail: "a@gmail.com", Status: "active", CreatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
		{Gmail: "b@gmail.com", Status: "pending", CreatedAt: time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)},
	}

	require.NoError(t, h.Accounts(context.Background(), domain.Envelope{ChatID: 1}, sess))
	require.Len(t, sender.sent, 2)
	assert.Contains(t, sender.sent[1], "1. a@gmail.com [active] 2026-03-01")
	assert.Contains(t, sender.sent[1], "2. b@gmail.com [pending] 2026-04-02")
}

package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (t *Transport) runWebhook(ctx context.Context) error {
	if t.cfg.WebhookBase == "" {
		return fmt.Errorf("telegram: webhook mode requires a public base URL")
	}

	wh, err := tgbotapi.NewWebhook(t.cfg.WebhookBase + "/webhook")
	if err != nil {
		return fmt.Errorf("telegram: build webhook config: %w", err)
	}
	wh.AllowedUpdates = allowedUpdates
	wh.MaxConnections = 40

	if _, err := t.bot.Request(wh); err != nil {
		return fmt.Errorf("telegram: setWebhook: %w", err)
	}

	info, err := t.bot.GetWebhookInfo()
	if err != nil {
		return fmt.Errorf("telegram: getWebhookInfo: %w", err)
	}
	if info.LastErrorDate != 0 {
		log.Printf("[Transport] webhook last error: %s", info.LastErrorMessage)
	}
	log.Printf("[Transport] webhook set to %s (%d pending)", info.URL, info.PendingUpdateCount)

	port := t.cfg.Port
	if port == "" {
		port = "8080"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", t.handleWebhook(ctx))

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("telegram: webhook server: %w", err)
	}
}

// handleWebhook parses each POST body as one Telegram update. Bodies
// that fail schema validation are dropped with a debug log; Telegram
// still gets a 200 so it does not retry garbage.
func (t *Transport) handleWebhook(ctx context.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		defer r.Body.Close()

		var upd tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
			log.Printf("[Transport] malformed webhook body: %v", err)
			w.WriteHeader(http.StatusOK)
			return
		}

		if upd.UpdateID != 0 || upd.Message != nil || upd.CallbackQuery != nil {
			t.emit(ctx, upd)
		}

		w.WriteHeader(http.StatusOK)
	}
}

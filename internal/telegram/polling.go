package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	maxBackoff       = 15 * time.Second
	failProbeAfter   = 5
	failProbeWait    = 30 * time.Second
	conflictPause    = 2 * time.Second
	maxConflictRetry = 3
)

// ErrPeerConflict is returned when another process keeps polling the
// same credential and self-recovery did not help. The caller is
// expected to exit and let its guard go.
var ErrPeerConflict = errors.New("telegram: persistent getUpdates conflict (409)")

func (t *Transport) runPolling(ctx context.Context) error {
	offset, err := t.bootstrapOffset(ctx)
	if err != nil {
		return err
	}

	var (
		retries   int
		conflicts int
	)

	for {
		if ctx.Err() != nil {
			return nil
		}

		cfg := tgbotapi.NewUpdate(offset)
		cfg.Timeout = t.cfg.PollTimeout
		cfg.AllowedUpdates = allowedUpdates

		updates, err := t.bot.GetUpdates(cfg)
		if err != nil {
			if isConflict(err) {
				conflicts++
				log.Printf("[Transport] 409 conflict handled (attempt %d)", conflicts)

				if conflicts >= maxConflictRetry {
					return ErrPeerConflict
				}

				// Ask Telegram to drop the other session, then
				// resume with the current offset.
				_, _ = t.bot.MakeRequest("close", nil)
				if !sleepCtx(ctx, conflictPause) {
					return nil
				}
				continue
			}

			retries++
			log.Printf("[Transport] getUpdates failed (retry %d): %v", retries, err)

			if retries >= failProbeAfter {
				if _, err := t.bot.GetMe(); err == nil {
					retries = 0
					continue
				}
				if !sleepCtx(ctx, failProbeWait) {
					return nil
				}
				continue
			}

			backoff := min(time.Duration(2*retries)*time.Second, maxBackoff)
			if !sleepCtx(ctx, backoff) {
				return nil
			}
			continue
		}

		retries = 0
		conflicts = 0

		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			t.emit(ctx, upd)
		}
	}
}

// bootstrapOffset learns the current high-water mark so the steady
// loop never replays history after a reset to -1.
func (t *Transport) bootstrapOffset(ctx context.Context) (int, error) {
	if ctx.Err() != nil {
		return 0, nil
	}

	cfg := tgbotapi.NewUpdate(-1)
	cfg.Timeout = 1

	updates, err := t.bot.GetUpdates(cfg)
	if err != nil {
		if isConflict(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("telegram: bootstrap offset: %w", err)
	}

	if len(updates) == 0 {
		return 0, nil
	}

	return updates[len(updates)-1].UpdateID + 1, nil
}

func isConflict(err error) bool {
	var apiErr *tgbotapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == 409
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

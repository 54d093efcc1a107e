package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// MaxDocumentBytes caps uploaded proxy-list documents.
const MaxDocumentBytes = 50 << 10

// SendMessage delivers a plain-text message to a chat.
func (t *Transport) SendMessage(chatID int64, text string) error {
	if _, err := t.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("telegram: sendMessage: %w", err)
	}
	return nil
}

// SendMessageWithMarkup delivers a message with an inline keyboard.
func (t *Transport) SendMessageWithMarkup(chatID int64, text string, markup tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = markup

	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram: sendMessage: %w", err)
	}
	return nil
}

// AnswerCallback acknowledges a callback query so the client stops
// showing its spinner.
func (t *Transport) AnswerCallback(callbackID, text string) error {
	if _, err := t.bot.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("telegram: answerCallbackQuery: %w", err)
	}
	return nil
}

// DownloadDocument fetches an uploaded file within a bounded size and
// time. Oversized files are rejected before any bytes move.
func (t *Transport) DownloadDocument(ctx context.Context, fileID string, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = MaxDocumentBytes
	}

	file, err := t.bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("telegram: getFile: %w", err)
	}
	if int64(file.FileSize) > maxBytes {
		return nil, fmt.Errorf("telegram: file too large (%d bytes)", file.FileSize)
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.Link(t.bot.Token), nil)
	if err != nil {
		return nil, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram: download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram: download file: status %d", resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxBytes))
}

// Package telegram adapts the Telegram Bot API to the bot package: it turns
// updates into bot events and renders views as Telegram messages.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/iconidentify/vidvault/internal/bot"
)

// Telegram rejects longer texts and captions.
const (
	maxTextLength    = 4096
	maxCaptionLength = 1024
)

// api is the subset of *tgbotapi.BotAPI the client uses.
type api interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Client sends views to Telegram and resolves file download URLs.
type Client struct {
	api    api
	logger *slog.Logger
}

// NewClient creates a client for an authorized bot.
func NewClient(botAPI *tgbotapi.BotAPI, logger *slog.Logger) *Client {
	return newClient(botAPI, logger)
}

func newClient(a api, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{api: a, logger: logger}
}

// Send posts a new HTML message and returns its id.
func (c *Client) Send(ctx context.Context, chatID int64, v bot.View) (int, error) {
	msg := tgbotapi.NewMessage(chatID, truncate(v.Text, maxTextLength))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if kb := inlineKeyboard(v.Keyboard); kb != nil {
		msg.ReplyMarkup = *kb
	}

	sent, err := c.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("send message: %w", err)
	}
	return sent.MessageID, nil
}

// Edit replaces the text and keyboard of a message sent by the bot.
// Editing a message to identical content is not an error.
func (c *Client) Edit(ctx context.Context, chatID int64, messageID int, v bot.View) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, truncate(v.Text, maxTextLength))
	edit.ParseMode = tgbotapi.ModeHTML
	edit.DisableWebPagePreview = true
	edit.ReplyMarkup = inlineKeyboard(v.Keyboard)

	if _, err := c.api.Request(edit); err != nil {
		if strings.Contains(err.Error(), "message is not modified") {
			return nil
		}
		return fmt.Errorf("edit message: %w", err)
	}
	return nil
}

// SendPhoto uploads a local image with the view's text as caption.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, path string, v bot.View) error {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FilePath(path))
	photo.Caption = truncate(v.Text, maxCaptionLength)
	photo.ParseMode = tgbotapi.ModeHTML
	if kb := inlineKeyboard(v.Keyboard); kb != nil {
		photo.ReplyMarkup = *kb
	}

	if _, err := c.api.Send(photo); err != nil {
		return fmt.Errorf("send photo: %w", err)
	}
	return nil
}

// SendVideo uploads a local video file.
func (c *Client) SendVideo(ctx context.Context, chatID int64, path, caption string) error {
	video := tgbotapi.NewVideo(chatID, tgbotapi.FilePath(path))
	video.Caption = truncate(caption, maxCaptionLength)
	video.ParseMode = tgbotapi.ModeHTML
	video.SupportsStreaming = true

	if _, err := c.api.Send(video); err != nil {
		return fmt.Errorf("send video: %w", err)
	}
	return nil
}

// AnswerCallback acknowledges a button press, optionally showing a toast.
func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if callbackID == "" {
		return nil
	}
	if _, err := c.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}

// FileURL returns the download URL of an uploaded file.
func (c *Client) FileURL(ctx context.Context, fileID string) (string, error) {
	u, err := c.api.GetFileDirectURL(fileID)
	if err != nil {
		return "", fmt.Errorf("get file %s: %w", fileID, err)
	}
	return u, nil
}

// inlineKeyboard converts a bot keyboard. It returns nil for an empty one so
// no markup is attached.
func inlineKeyboard(kb bot.Keyboard) *tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb))
	for _, r := range kb {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(r))
		for _, b := range r {
			if b.URL != "" {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(b.Label, b.URL))
				continue
			}
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data))
		}
		if len(buttons) > 0 {
			rows = append(rows, buttons)
		}
	}
	if len(rows) == 0 {
		return nil
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

// truncate cuts s to at most limit runes.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}

package telegram

import (
	"strings"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/iconidentify/vidvault/internal/bot"
	"github.com/iconidentify/vidvault/internal/domain"
)

// Normalize converts an update into a bot event. It reports false for
// updates the bot does not handle (edits, channel posts, messages without a
// sender).
func Normalize(u tgbotapi.Update) (bot.Event, bool) {
	switch {
	case u.CallbackQuery != nil:
		return normalizeCallback(u.CallbackQuery)
	case u.Message != nil:
		return normalizeMessage(u.Message)
	default:
		return bot.Event{}, false
	}
}

func normalizeCallback(q *tgbotapi.CallbackQuery) (bot.Event, bool) {
	if q.From == nil {
		return bot.Event{}, false
	}
	ev := bot.Event{
		Kind:       bot.EventCallback,
		UserID:     q.From.ID,
		ChatID:     q.From.ID,
		Username:   q.From.UserName,
		Token:      q.Data,
		CallbackID: q.ID,
	}
	if q.Message != nil {
		ev.MessageID = q.Message.MessageID
		if q.Message.Chat != nil {
			ev.ChatID = q.Message.Chat.ID
		}
	}
	return ev, true
}

func normalizeMessage(m *tgbotapi.Message) (bot.Event, bool) {
	if m.From == nil || m.Chat == nil {
		return bot.Event{}, false
	}
	ev := bot.Event{
		UserID:    m.From.ID,
		ChatID:    m.Chat.ID,
		MessageID: m.MessageID,
		Username:  m.From.UserName,
	}

	if m.IsCommand() {
		ev.Kind = bot.EventCommand
		ev.Command = strings.ToLower(m.Command())
		ev.Text = m.CommandArguments()
		return ev, true
	}

	ev.Text = m.Text
	if ev.Text == "" {
		ev.Text = m.Caption
	}
	ev.Media = messageMedia(m)
	if ev.Media != nil {
		ev.Kind = bot.EventMedia
	} else {
		ev.Kind = bot.EventText
	}
	return ev, true
}

// messageMedia builds the attachment variant of a message, or nil for plain
// text without links.
func messageMedia(m *tgbotapi.Message) domain.Media {
	switch {
	case m.Video != nil:
		return domain.Document{
			FileID:   m.Video.FileID,
			FileName: m.Video.FileName,
			MimeType: videoMime(m.Video.MimeType),
			Size:     int64(m.Video.FileSize),
		}
	case m.Animation != nil:
		return domain.Unsupported{Reason: "animation"}
	case m.Document != nil:
		return domain.Document{
			FileID:   m.Document.FileID,
			FileName: m.Document.FileName,
			MimeType: m.Document.MimeType,
			Size:     int64(m.Document.FileSize),
		}
	case len(m.Photo) > 0:
		return domain.Unsupported{Reason: "photo"}
	case m.Sticker != nil:
		return domain.Unsupported{Reason: "sticker"}
	case m.Voice != nil:
		return domain.Unsupported{Reason: "voice"}
	case m.Audio != nil:
		return domain.Unsupported{Reason: "audio"}
	case m.VideoNote != nil:
		return domain.Unsupported{Reason: "video_note"}
	}

	if u, ok := firstLink(m.Text, m.Entities); ok {
		return domain.LinkPreview{URL: u}
	}
	if u, ok := firstLink(m.Caption, m.CaptionEntities); ok {
		return domain.LinkPreview{URL: u}
	}
	return nil
}

// Videos sent as video messages sometimes carry no MIME type.
func videoMime(mime string) string {
	if mime == "" {
		return "video/mp4"
	}
	return mime
}

// firstLink returns the first URL found in the entities of text. Entity
// offsets count UTF-16 code units.
func firstLink(text string, entities []tgbotapi.MessageEntity) (string, bool) {
	var encoded []uint16
	for _, e := range entities {
		switch {
		case e.IsTextLink() && e.URL != "":
			return e.URL, true
		case e.IsURL():
			if encoded == nil {
				encoded = utf16.Encode([]rune(text))
			}
			end := e.Offset + e.Length
			if e.Offset < 0 || e.Length <= 0 || end > len(encoded) {
				continue
			}
			return string(utf16.Decode(encoded[e.Offset:end])), true
		}
	}
	return "", false
}

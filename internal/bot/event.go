package bot

import (
	"context"

	"github.com/iconidentify/vidvault/internal/domain"
)

// EventKind classifies an inbound update.
type EventKind int

const (
	EventText EventKind = iota
	EventCommand
	EventCallback
	EventMedia
)

func (k EventKind) String() string {
	switch k {
	case EventText:
		return "text"
	case EventCommand:
		return "command"
	case EventCallback:
		return "callback"
	case EventMedia:
		return "media"
	default:
		return "unknown"
	}
}

// Event is an inbound update normalized at the transport boundary.
type Event struct {
	Kind      EventKind
	UserID    int64
	ChatID    int64
	MessageID int
	Username  string

	// Text is the message text or caption. For commands it holds the
	// arguments after the command name.
	Text string

	// Command is the command name without the leading slash.
	Command string

	// Token and CallbackID are set for button clicks.
	Token      string
	CallbackID string

	// Media is the attachment, nil for plain text.
	Media domain.Media
}

// Button is a single inline button. Exactly one of Data or URL is set.
type Button struct {
	Label string
	Data  string
	URL   string
}

// Keyboard is a grid of buttons, one slice per row.
type Keyboard [][]Button

// View is a message body plus optional buttons. Text is HTML.
type View struct {
	Text     string
	Keyboard Keyboard
}

// Responder sends output to a chat.
type Responder interface {
	// Send posts a new message and returns its id.
	Send(ctx context.Context, chatID int64, v View) (int, error)

	// Edit replaces the text and buttons of an existing message.
	Edit(ctx context.Context, chatID int64, messageID int, v View) error

	// SendPhoto posts a local image with v.Text as caption.
	SendPhoto(ctx context.Context, chatID int64, path string, v View) error

	// SendVideo posts a local video file.
	SendVideo(ctx context.Context, chatID int64, path, caption string) error

	// AnswerCallback acknowledges a button click, optionally with a toast.
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

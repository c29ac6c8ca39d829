package telegram

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iconidentify/vidvault/internal/bot"
	"github.com/iconidentify/vidvault/internal/domain"
)

func message(text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 7,
		From:      &tgbotapi.User{ID: 42, UserName: "alice"},
		Chat:      &tgbotapi.Chat{ID: 42},
		Text:      text,
	}
}

func TestNormalize_Messages(t *testing.T) {
	withVideo := message("")
	withVideo.Caption = "my clip"
	withVideo.Video = &tgbotapi.Video{FileID: "vid", FileSize: 1024}

	withDoc := message("")
	withDoc.Document = &tgbotapi.Document{FileID: "doc", MimeType: "video/webm", FileName: "a.webm", FileSize: 99}

	withPDF := message("")
	withPDF.Document = &tgbotapi.Document{FileID: "pdf", MimeType: "application/pdf"}

	withPhoto := message("")
	withPhoto.Photo = []tgbotapi.PhotoSize{{FileID: "p"}}

	withSticker := message("")
	withSticker.Sticker = &tgbotapi.Sticker{FileID: "s"}

	withURL := message("see https://vimeo.com/1 now")
	withURL.Entities = []tgbotapi.MessageEntity{{Type: "url", Offset: 4, Length: 19}}

	// The emoji occupies two UTF-16 code units.
	withEmojiURL := message("🎬 youtu.be/x")
	withEmojiURL.Entities = []tgbotapi.MessageEntity{{Type: "url", Offset: 3, Length: 10}}

	withTextLink := message("click here")
	withTextLink.Entities = []tgbotapi.MessageEntity{{Type: "text_link", Offset: 0, Length: 10, URL: "https://example.com/v"}}

	tests := []struct {
		name     string
		msg      *tgbotapi.Message
		wantKind bot.EventKind
		wantText string
		want     domain.Media
	}{
		{"plain text", message("hello"), bot.EventText, "hello", nil},
		{"video", withVideo, bot.EventMedia, "my clip", domain.Document{FileID: "vid", MimeType: "video/mp4", Size: 1024}},
		{"video document", withDoc, bot.EventMedia, "", domain.Document{FileID: "doc", FileName: "a.webm", MimeType: "video/webm", Size: 99}},
		{"other document", withPDF, bot.EventMedia, "", domain.Document{FileID: "pdf", MimeType: "application/pdf"}},
		{"photo", withPhoto, bot.EventMedia, "", domain.Unsupported{Reason: "photo"}},
		{"sticker", withSticker, bot.EventMedia, "", domain.Unsupported{Reason: "sticker"}},
		{"url entity", withURL, bot.EventMedia, "see https://vimeo.com/1 now", domain.LinkPreview{URL: "https://vimeo.com/1"}},
		{"url after emoji", withEmojiURL, bot.EventMedia, "🎬 youtu.be/x", domain.LinkPreview{URL: "youtu.be/x"}},
		{"text link", withTextLink, bot.EventMedia, "click here", domain.LinkPreview{URL: "https://example.com/v"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := Normalize(tgbotapi.Update{Message: tt.msg})
			require.True(t, ok)
			assert.Equal(t, tt.wantKind, ev.Kind)
			assert.Equal(t, int64(42), ev.UserID)
			assert.Equal(t, int64(42), ev.ChatID)
			assert.Equal(t, "alice", ev.Username)
			assert.Equal(t, tt.wantText, ev.Text)
			assert.Equal(t, tt.want, ev.Media)
		})
	}
}

func TestNormalize_Command(t *testing.T) {
	m := message("/Start@vidvault_bot now")
	m.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 19}}

	ev, ok := Normalize(tgbotapi.Update{Message: m})
	require.True(t, ok)
	assert.Equal(t, bot.EventCommand, ev.Kind)
	assert.Equal(t, "start", ev.Command)
	assert.Equal(t, "now", ev.Text)
}

func TestNormalize_Callback(t *testing.T) {
	ev, ok := Normalize(tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb1",
		From:    &tgbotapi.User{ID: 9},
		Message: &tgbotapi.Message{MessageID: 77, Chat: &tgbotapi.Chat{ID: 900}},
		Data:    "browse_cat_3",
	}})
	require.True(t, ok)
	assert.Equal(t, bot.Event{
		Kind:       bot.EventCallback,
		UserID:     9,
		ChatID:     900,
		MessageID:  77,
		Token:      "browse_cat_3",
		CallbackID: "cb1",
	}, ev)
}

func TestNormalize_Ignored(t *testing.T) {
	tests := []struct {
		name   string
		update tgbotapi.Update
	}{
		{"empty", tgbotapi.Update{}},
		{"edited message", tgbotapi.Update{EditedMessage: message("x")}},
		{"no sender", tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 1}, Text: "x"}}},
		{"callback without sender", tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{ID: "x"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := Normalize(tt.update)
			assert.False(t, ok)
		})
	}
}

func TestInlineKeyboard(t *testing.T) {
	assert.Nil(t, inlineKeyboard(nil))
	assert.Nil(t, inlineKeyboard(bot.Keyboard{{}}))

	kb := inlineKeyboard(bot.Keyboard{
		{{Label: "Open", URL: "https://example.com"}},
		{{Label: "A", Data: "a"}, {Label: "B", Data: "b"}},
	})
	require.NotNil(t, kb)
	require.Len(t, kb.InlineKeyboard, 2)

	link := kb.InlineKeyboard[0][0]
	require.NotNil(t, link.URL)
	assert.Equal(t, "https://example.com", *link.URL)
	assert.Nil(t, link.CallbackData)

	require.Len(t, kb.InlineKeyboard[1], 2)
	require.NotNil(t, kb.InlineKeyboard[1][1].CallbackData)
	assert.Equal(t, "b", *kb.InlineKeyboard[1][1].CallbackData)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "абв…", truncate("абвгд", 4))
}

type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	err      error
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: len(f.sent)}, f.err
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: f.err == nil}, f.err
}

func (f *fakeAPI) GetFileDirectURL(fileID string) (string, error) {
	return "https://api.telegram.org/file/bot123/" + fileID, f.err
}

func TestClient_Send(t *testing.T) {
	f := &fakeAPI{}
	c := newClient(f, nil)

	id, err := c.Send(context.Background(), 5, bot.View{Text: "<b>hi</b>", Keyboard: bot.Keyboard{{{Label: "x", Data: "y"}}}})
	require.NoError(t, err)
	assert.Equal(t, 1, id)

	msg, ok := f.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(5), msg.ChatID)
	assert.Equal(t, tgbotapi.ModeHTML, msg.ParseMode)
	assert.IsType(t, tgbotapi.InlineKeyboardMarkup{}, msg.ReplyMarkup)

	_, err = c.Send(context.Background(), 5, bot.View{Text: "plain"})
	require.NoError(t, err)
	assert.Nil(t, f.sent[1].(tgbotapi.MessageConfig).ReplyMarkup)
}

func TestClient_EditNotModified(t *testing.T) {
	f := &fakeAPI{err: errors.New("Bad Request: message is not modified")}
	c := newClient(f, nil)
	assert.NoError(t, c.Edit(context.Background(), 1, 2, bot.View{Text: "x"}))

	f.err = errors.New("Bad Request: message to edit not found")
	assert.Error(t, c.Edit(context.Background(), 1, 2, bot.View{Text: "x"}))
}

func TestClient_MediaAndCallbacks(t *testing.T) {
	f := &fakeAPI{}
	c := newClient(f, nil)
	ctx := context.Background()

	require.NoError(t, c.SendPhoto(ctx, 3, "/tmp/t.jpg", bot.View{Text: "cap"}))
	photo, ok := f.sent[0].(tgbotapi.PhotoConfig)
	require.True(t, ok)
	assert.Equal(t, tgbotapi.FilePath("/tmp/t.jpg"), photo.File)
	assert.Equal(t, "cap", photo.Caption)

	require.NoError(t, c.SendVideo(ctx, 3, "/tmp/v.mp4", "title"))
	video, ok := f.sent[1].(tgbotapi.VideoConfig)
	require.True(t, ok)
	assert.True(t, video.SupportsStreaming)

	require.NoError(t, c.AnswerCallback(ctx, "", "ignored"))
	assert.Empty(t, f.requests)
	require.NoError(t, c.AnswerCallback(ctx, "cb", "toast"))
	require.Len(t, f.requests, 1)

	u, err := c.FileURL(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "https://api.telegram.org/file/bot123/abc", u)
}

type recordingHandler struct {
	mu     sync.Mutex
	events []bot.Event
	block  chan struct{}
	delay  time.Duration
}

func (h *recordingHandler) Handle(ctx context.Context, ev bot.Event) error {
	if h.block != nil {
		<-h.block
	}
	time.Sleep(h.delay)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
	return nil
}

func TestSource_DispatchBoundsInFlight(t *testing.T) {
	h := &recordingHandler{block: make(chan struct{})}
	s := NewSource(nil, SourceConfig{MaxInFlight: 1}, h, nil)

	require.NoError(t, s.Dispatch(context.Background(), tgbotapi.Update{Message: message("one")}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := s.Dispatch(ctx, tgbotapi.Update{Message: message("two")})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(h.block)
	s.Wait()
	require.Len(t, h.events, 1)
	assert.Equal(t, "one", h.events[0].Text)

	require.NoError(t, s.Dispatch(context.Background(), tgbotapi.Update{}), "ignored updates never block")
}

func userMessage(userID int64, text string) *tgbotapi.Message {
	m := message(text)
	m.From = &tgbotapi.User{ID: userID}
	m.Chat = &tgbotapi.Chat{ID: userID}
	return m
}

func TestSource_DispatchKeepsPerUserOrder(t *testing.T) {
	h := &recordingHandler{delay: time.Millisecond}
	s := NewSource(nil, SourceConfig{}, h, nil)

	const n = 20
	for i := 0; i < n; i++ {
		for _, uid := range []int64{42, 43} {
			require.NoError(t, s.Dispatch(context.Background(), tgbotapi.Update{Message: userMessage(uid, strconv.Itoa(i))}))
		}
	}
	s.Wait()

	got := map[int64][]string{}
	for _, ev := range h.events {
		got[ev.UserID] = append(got[ev.UserID], ev.Text)
	}
	var want []string
	for i := 0; i < n; i++ {
		want = append(want, strconv.Itoa(i))
	}
	assert.Equal(t, want, got[42])
	assert.Equal(t, want, got[43])
}

type gatedHandler struct {
	gated int64
	gate  chan struct{}
	done  chan int64
}

func (h *gatedHandler) Handle(ctx context.Context, ev bot.Event) error {
	if ev.UserID == h.gated {
		<-h.gate
	}
	h.done <- ev.UserID
	return nil
}

func TestSource_UsersDoNotWaitForEachOther(t *testing.T) {
	h := &gatedHandler{gated: 42, gate: make(chan struct{}), done: make(chan int64, 2)}
	s := NewSource(nil, SourceConfig{}, h, nil)

	require.NoError(t, s.Dispatch(context.Background(), tgbotapi.Update{Message: userMessage(42, "slow")}))
	require.NoError(t, s.Dispatch(context.Background(), tgbotapi.Update{Message: userMessage(43, "fast")}))

	select {
	case uid := <-h.done:
		assert.Equal(t, int64(43), uid)
	case <-time.After(time.Second):
		t.Fatal("second user was blocked behind the first")
	}

	close(h.gate)
	assert.Equal(t, int64(42), <-h.done)
	s.Wait()
}

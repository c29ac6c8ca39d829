// Package bot implements the conversation state machine behind the archive
// bot: password login, category management, video management and browsing.
//
// Every inbound Event is handled inside the user's session lock, so a user
// has at most one transition in flight while different users proceed
// concurrently.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/iconidentify/vidvault/internal/domain"
	"github.com/iconidentify/vidvault/internal/media"
	"github.com/iconidentify/vidvault/internal/repository"
	"github.com/iconidentify/vidvault/internal/session"
)

// Gate decides who may use the bot.
type Gate interface {
	IsAdmin(userID int64) bool
	IsAuthorized(ctx context.Context, userID int64) (bool, error)
	GrantAdmin(ctx context.Context, userID int64, username string) (bool, error)
	Login(ctx context.Context, userID int64, username, input string) (time.Time, error)
	Timeout() time.Duration
}

// MediaStore ingests uploads and removes the files of deleted videos.
type MediaStore interface {
	Ingest(ctx context.Context, doc domain.Document) (*media.Result, error)
	DeleteFiles(v domain.Video) bool
}

// Config holds dispatcher settings.
type Config struct {
	// MaxFileSize is shown to users whose upload is rejected for size.
	MaxFileSize int64
}

// Dispatcher routes events to the flow handlers.
type Dispatcher struct {
	cfg      Config
	gate     Gate
	store    repository.Store
	media    MediaStore
	out      Responder
	sessions *session.Manager
	logger   *slog.Logger
	routes   []route
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg Config, gate Gate, store repository.Store, mediaStore MediaStore, out Responder, sessions *session.Manager, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		cfg:      cfg,
		gate:     gate,
		store:    store,
		media:    mediaStore,
		out:      out,
		sessions: sessions,
		logger:   logger,
	}
	d.routes = d.buildRoutes()
	return d
}

// call carries one event through the handlers.
type call struct {
	ev       Event
	s        *session.Session
	logger   *slog.Logger
	answered bool
}

// Handle processes a single event. Panics and handler errors stop at this
// boundary: they are logged, the user gets a generic failure message and the
// error is returned for the caller's bookkeeping.
func (d *Dispatcher) Handle(ctx context.Context, ev Event) error {
	logger := d.logger.With("user_id", ev.UserID, "event", ev.Kind.String())

	err := d.sessions.Do(ctx, ev.UserID, func(s *session.Session) (err error) {
		c := &call{ev: ev, s: s, logger: logger}
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic handling update", "panic", r, "stack", string(debug.Stack()))
				err = fmt.Errorf("panic handling update: %v", r)
			}
			if err != nil {
				d.fail(ctx, c)
			}
			if ev.Kind == EventCallback && !c.answered {
				d.answer(ctx, c, "")
			}
		}()
		return d.dispatch(ctx, c)
	})
	switch {
	case errors.Is(err, session.ErrClosed):
		logger.Debug("update dropped during shutdown")
	case err != nil:
		logger.Error("update failed", "error", err)
	}
	return err
}

func (d *Dispatcher) dispatch(ctx context.Context, c *call) error {
	switch c.ev.Kind {
	case EventCommand:
		return d.handleCommand(ctx, c)
	case EventCallback:
		return d.handleCallback(ctx, c)
	case EventText, EventMedia:
		return d.handleMessage(ctx, c)
	default:
		c.logger.Debug("ignoring event")
		return nil
	}
}

func (d *Dispatcher) handleCommand(ctx context.Context, c *call) error {
	switch c.ev.Command {
	case "start":
		return d.start(ctx, c)
	case "cancel":
		d.discardDraft(c)
		c.s.Reset()
		ok, err := d.gate.IsAuthorized(ctx, c.ev.UserID)
		if err != nil {
			return err
		}
		if !ok {
			return d.start(ctx, c)
		}
		return d.send(ctx, c, mainMenuView())
	case "help":
		return d.send(ctx, c, helpView())
	default:
		c.logger.Debug("ignoring command", "command", c.ev.Command)
		return nil
	}
}

// handleMessage routes text and attachments to the flow owning the user's
// state. Messages from idle users are ignored.
func (d *Dispatcher) handleMessage(ctx context.Context, c *call) error {
	st := c.s.State()
	if st.Idle() {
		c.logger.Debug("ignoring message from idle user", "media", domain.MediaKind(c.ev.Media))
		return nil
	}

	if st.Flow == session.FlowAuth {
		return d.password(ctx, c)
	}

	ok, err := d.authorize(ctx, c)
	if err != nil || !ok {
		return err
	}

	switch st.Flow {
	case session.FlowCategory:
		return d.categoryMessage(ctx, c, st)
	case session.FlowVideo:
		return d.videoMessage(ctx, c, st)
	}
	return nil
}

// ============================================================================
// Callback routing
// ============================================================================

type route struct {
	token  string
	withID bool
	fn     func(ctx context.Context, c *call, id int64) error
}

func (d *Dispatcher) buildRoutes() []route {
	exact := func(token string, fn func(ctx context.Context, c *call) error) route {
		return route{token: token, fn: func(ctx context.Context, c *call, _ int64) error { return fn(ctx, c) }}
	}
	withID := func(prefix string, fn func(ctx context.Context, c *call, id int64) error) route {
		return route{token: prefix, withID: true, fn: fn}
	}

	return []route{
		exact(tokBackToMain, d.backToMain),
		exact(tokMenuCategories, d.browseMenu),
		exact(tokMenuManageCategories, d.manageCategories),
		exact(tokMenuManageVideos, d.manageVideos),
		exact(tokCategoryAdd, d.addCategory),
		exact(tokCategoryDelete, d.deleteCategoryMenu),
		exact(tokBackToCategories, d.backToCategories),
		exact(tokVideoAdd, d.addVideo),
		exact(tokVideoDelete, d.deleteVideoMenu),
		exact(tokBackToVideos, d.backToVideos),

		// Longer prefixes first; ids must be numeric so overlapping
		// prefixes cannot capture each other's tokens.
		withID(prefixConfirmDeleteVideo, d.confirmDeleteVideo),
		withID(prefixDeleteVideoCategory, d.deleteVideoCategory),
		withID(prefixConfirmDeleteCat, d.confirmDeleteCategory),
		withID(prefixSelectCategory, d.selectCategory),
		withID(prefixDeleteCategory, d.deleteCategory),
		withID(prefixDeleteVideo, d.deleteVideo),
		withID(prefixBrowseCategory, d.browseCategory),
		withID(prefixPlayVideo, d.playVideo),
	}
}

func (d *Dispatcher) match(token string) (route, int64, bool) {
	for _, r := range d.routes {
		if !r.withID {
			if token == r.token {
				return r, 0, true
			}
			continue
		}
		rest, ok := strings.CutPrefix(token, r.token)
		if !ok {
			continue
		}
		id, err := strconv.ParseInt(rest, 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		return r, id, true
	}
	return route{}, 0, false
}

func (d *Dispatcher) handleCallback(ctx context.Context, c *call) error {
	r, id, ok := d.match(c.ev.Token)
	if !ok {
		c.logger.Warn("unknown callback token", "token", c.ev.Token)
		return nil
	}

	allowed, err := d.authorize(ctx, c)
	if err != nil || !allowed {
		return err
	}

	c.logger.Debug("callback", "token", c.ev.Token, "id", id)
	return r.fn(ctx, c, id)
}

// ============================================================================
// Output helpers
// ============================================================================

// authorize re-checks access. Expired users lose any pending flow and are
// told to log in again.
func (d *Dispatcher) authorize(ctx context.Context, c *call) (bool, error) {
	ok, err := d.gate.IsAuthorized(ctx, c.ev.UserID)
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}

	c.logger.Info("access expired")
	c.s.Reset()
	if c.ev.Kind == EventCallback {
		d.answer(ctx, c, msgAccessExpired)
		return false, nil
	}
	return false, d.send(ctx, c, accessExpiredView())
}

// reply edits the message that carried the clicked button, or sends a new
// message for text input and when the edit fails.
func (d *Dispatcher) reply(ctx context.Context, c *call, v View) error {
	if c.ev.Kind == EventCallback && c.ev.MessageID != 0 {
		err := d.out.Edit(ctx, c.ev.ChatID, c.ev.MessageID, v)
		if err == nil {
			return nil
		}
		c.logger.Debug("edit failed, sending instead", "error", err)
	}
	return d.send(ctx, c, v)
}

func (d *Dispatcher) send(ctx context.Context, c *call, v View) error {
	if _, err := d.out.Send(ctx, c.ev.ChatID, v); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func (d *Dispatcher) answer(ctx context.Context, c *call, text string) {
	c.answered = true
	if err := d.out.AnswerCallback(ctx, c.ev.CallbackID, text); err != nil {
		c.logger.Debug("answer callback failed", "error", err)
	}
}

// fail tells the user something went wrong. Delivery errors are only logged.
func (d *Dispatcher) fail(ctx context.Context, c *call) {
	if c.ev.ChatID == 0 {
		return
	}
	if _, err := d.out.Send(ctx, c.ev.ChatID, genericErrorView(tokBackToMain)); err != nil {
		c.logger.Warn("failed to report error to user", "error", err)
	}
}

package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/semaphore"

	"github.com/iconidentify/vidvault/internal/bot"
)

// Handler processes normalized events.
type Handler interface {
	Handle(ctx context.Context, ev bot.Event) error
}

// SourceConfig holds update source configuration.
type SourceConfig struct {
	// PollTimeout is the long polling timeout in seconds.
	PollTimeout int
	// MaxInFlight bounds the number of updates handled concurrently.
	MaxInFlight int64
	// WebhookURL switches from long polling to webhook delivery.
	WebhookURL    string
	WebhookSecret string
}

// Source receives updates and hands them to the handler. Each user's
// events are queued and handled one at a time in dispatch order; different
// users are handled concurrently.
type Source struct {
	api     *tgbotapi.BotAPI
	cfg     SourceConfig
	handler Handler
	sem     *semaphore.Weighted
	wg      sync.WaitGroup
	logger  *slog.Logger

	mu     sync.Mutex
	queues map[int64][]bot.Event
}

// NewSource creates an update source.
func NewSource(botAPI *tgbotapi.BotAPI, cfg SourceConfig, handler Handler, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 60
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 64
	}
	return &Source{
		api:     botAPI,
		cfg:     cfg,
		handler: handler,
		sem:     semaphore.NewWeighted(cfg.MaxInFlight),
		logger:  logger,
		queues:  make(map[int64][]bot.Event),
	}
}

// Poll long-polls for updates until ctx is cancelled, then waits for
// in-flight updates to finish.
func (s *Source) Poll(ctx context.Context) error {
	// A leftover webhook makes getUpdates fail.
	if _, err := s.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		s.logger.Warn("failed to delete webhook", "error", err)
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = s.cfg.PollTimeout
	updates := s.api.GetUpdatesChan(u)

	s.logger.Info("polling for updates", "bot", s.api.Self.UserName, "timeout", s.cfg.PollTimeout)
	defer s.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			s.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if err := s.Dispatch(ctx, update); err != nil {
				s.api.StopReceivingUpdates()
				return nil
			}
		}
	}
}

// RegisterWebhook points Telegram at the configured webhook URL.
func (s *Source) RegisterWebhook() error {
	params := tgbotapi.Params{}
	params["url"] = s.cfg.WebhookURL
	params.AddNonEmpty("secret_token", s.cfg.WebhookSecret)
	if err := params.AddInterface("allowed_updates", []string{"message", "callback_query"}); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}

	resp, err := s.api.MakeRequest("setWebhook", params)
	if err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	if !resp.Ok {
		return fmt.Errorf("set webhook: %s", resp.Description)
	}
	s.logger.Info("webhook registered", "url", s.cfg.WebhookURL)
	return nil
}

// WebhookHandler returns the HTTP handler for webhook deliveries. Updates
// are handled under ctx, not the request context, so the response is
// returned before the handler finishes.
func (s *Source) WebhookHandler(ctx context.Context) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		update, err := s.api.HandleUpdate(r)
		if err != nil {
			s.logger.Warn("invalid webhook payload", "error", err)
			http.Error(w, "invalid update", http.StatusBadRequest)
			return
		}
		if err := s.Dispatch(ctx, *update); err != nil {
			http.Error(w, "shutting down", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
}

// Dispatch queues an update for its user once a slot is free. Queued and
// running updates share the MaxInFlight slots. It returns an error only when
// ctx ends while waiting.
func (s *Source) Dispatch(ctx context.Context, update tgbotapi.Update) error {
	ev, ok := Normalize(update)
	if !ok {
		s.logger.Debug("ignoring update", "update_id", update.UpdateID)
		return nil
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	s.mu.Lock()
	pending, draining := s.queues[ev.UserID]
	s.queues[ev.UserID] = append(pending, ev)
	if !draining {
		s.wg.Add(1)
	}
	s.mu.Unlock()

	if !draining {
		go s.drain(ctx, ev.UserID)
	}
	return nil
}

// drain handles a user's queued events in order and exits once the queue
// is empty.
func (s *Source) drain(ctx context.Context, userID int64) {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		q := s.queues[userID]
		if len(q) == 0 {
			delete(s.queues, userID)
			s.mu.Unlock()
			return
		}
		ev := q[0]
		s.queues[userID] = q[1:]
		s.mu.Unlock()

		if err := s.handler.Handle(ctx, ev); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Debug("update handled with error", "user_id", userID, "error", err)
		}
		s.sem.Release(1)
	}
}

// Wait blocks until all dispatched updates are handled.
func (s *Source) Wait() {
	s.wg.Wait()
}

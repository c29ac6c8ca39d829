// Package api serves the health endpoints and, in webhook mode, Telegram
// update deliveries.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/iconidentify/vidvault/internal/api/handler"
	mw "github.com/iconidentify/vidvault/internal/api/middleware"
)

// WebhookPath is where Telegram posts updates in webhook mode.
const WebhookPath = "/telegram/webhook"

// NewRouter creates the HTTP router with all routes configured. A nil
// webhook handler leaves the webhook route unregistered.
func NewRouter(
	healthHandler *handler.HealthHandler,
	webhook http.Handler,
	webhookSecret string,
	logger *slog.Logger,
) *chi.Mux {
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CleanPath) // Normalize paths (e.g., //ready -> /ready)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger(logger))
	r.Use(mw.Recovery(logger))
	r.Use(middleware.Timeout(30 * time.Second))

	// Health endpoints (no auth)
	r.Get("/health", healthHandler.Live)
	r.Get("/ready", healthHandler.Ready)
	r.Get("/stats", healthHandler.Stats)

	if webhook != nil {
		r.With(mw.WebhookSecret(webhookSecret)).Method(http.MethodPost, WebhookPath, webhook)
	}

	return r
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"github.com/iconidentify/vidvault/internal/access"
	"github.com/iconidentify/vidvault/internal/api"
	"github.com/iconidentify/vidvault/internal/api/handler"
	"github.com/iconidentify/vidvault/internal/bot"
	"github.com/iconidentify/vidvault/internal/config"
	"github.com/iconidentify/vidvault/internal/downloader"
	"github.com/iconidentify/vidvault/internal/janitor"
	"github.com/iconidentify/vidvault/internal/media"
	"github.com/iconidentify/vidvault/internal/repository"
	"github.com/iconidentify/vidvault/internal/session"
	"github.com/iconidentify/vidvault/internal/telegram"
	"github.com/iconidentify/vidvault/internal/worker"
	"github.com/iconidentify/vidvault/pkg/ffmpeg"
)

// Build information (set via ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("vidvault %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	if err := config.LoadDotEnv(); err != nil {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))
	slog.SetDefault(logger)

	logger.Info("starting vidvault",
		"version", Version,
		"build_time", BuildTime,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal error", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	for _, dir := range []string{cfg.Storage.VideoDir, cfg.Storage.ThumbnailDir, filepath.Dir(cfg.Storage.DatabasePath)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	db, err := repository.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := repository.Migrate(db); err != nil {
		return err
	}
	store := repository.NewSQLiteStore(db)

	gate := access.NewGate(access.Config{
		AdminID:       cfg.Telegram.AdminID,
		Password:      cfg.Access.Password,
		Timeout:       cfg.Access.Timeout,
		AdminDuration: cfg.Access.AdminDuration,
		AttemptRate:   cfg.Access.AttemptRate,
		AttemptBurst:  cfg.Access.AttemptBurst,
	}, store, logger)

	pool := worker.NewPool(worker.Config{
		Workers:   cfg.Worker.Count,
		QueueSize: cfg.Worker.QueueSize,
	}, logger)
	pool.Start()
	defer func() {
		if err := pool.Stop(25 * time.Second); err != nil {
			logger.Error("worker pool shutdown error", "error", err)
		}
	}()

	dl := downloader.NewHTTPDownloader(cfg.Download)
	dl.SetLogger(logger)

	var frames media.FrameSource
	if proc, err := ffmpeg.NewVideoProcessor(cfg.Media.FFmpegPath, cfg.Media.FFprobePath); err != nil {
		logger.Warn("ffmpeg not available, thumbnails disabled", "error", err)
	} else {
		frames = proc
		if v, err := proc.GetVersion(context.Background()); err == nil {
			logger.Info("ffmpeg available", "version", v)
		}
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return fmt.Errorf("connect to telegram: %w", err)
	}
	botAPI.Debug = cfg.Telegram.Debug
	logger.Info("authorized with telegram", "bot", botAPI.Self.UserName)

	client := telegram.NewClient(botAPI, logger)

	pipeline := media.NewPipeline(media.Config{
		VideoDir:         cfg.Storage.VideoDir,
		ThumbnailDir:     cfg.Storage.ThumbnailDir,
		MaxFileSize:      cfg.Storage.MaxFileSize,
		MinFreeSpace:     cfg.Storage.MinFreeSpace,
		ThumbnailSize:    cfg.Media.ThumbnailSize,
		ThumbnailQuality: cfg.Media.ThumbnailQuality,
	}, client, dl, frames, pool, logger)

	sessions := session.NewManager(cfg.Session.IdleTimeout, logger)

	dispatcher := bot.NewDispatcher(
		bot.Config{MaxFileSize: cfg.Storage.MaxFileSize},
		gate,
		store,
		pipeline,
		client,
		sessions,
		logger,
	)

	source := telegram.NewSource(botAPI, telegram.SourceConfig{
		PollTimeout:   cfg.Telegram.PollTimeout,
		MaxInFlight:   int64(cfg.Worker.MaxInFlight),
		WebhookURL:    cfg.Telegram.WebhookURL,
		WebhookSecret: cfg.Telegram.WebhookSecret,
	}, dispatcher, logger)

	jan, err := janitor.New(janitor.Config{
		Schedule: cfg.Janitor.Schedule,
		MinAge:   cfg.Janitor.MinAge,
		Dirs:     []string{cfg.Storage.VideoDir, cfg.Storage.ThumbnailDir},
	}, store, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return sessions.Run(gctx, cfg.Session.SweepInterval) })
	g.Go(func() error { return jan.Run(gctx) })

	var webhook http.Handler
	if cfg.Telegram.UseWebhook() {
		if err := source.RegisterWebhook(); err != nil {
			return err
		}
		webhook = source.WebhookHandler(gctx)
	} else {
		g.Go(func() error { return source.Poll(gctx) })
	}

	if cfg.Server.Enabled() {
		healthHandler := handler.NewHealthHandler(store, pool, sessions, pipeline)
		router := api.NewRouter(healthHandler, webhook, cfg.Telegram.WebhookSecret, logger)

		srv := &http.Server{
			Addr:         cfg.Server.Address(),
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}

		g.Go(func() error {
			logger.Info("starting HTTP server", "addr", srv.Addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("server shutdown error", "error", err)
			}
			return nil
		})
	}

	err = g.Wait()
	logger.Info("shutting down")
	source.Wait()
	return err
}

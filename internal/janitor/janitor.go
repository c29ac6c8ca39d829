// Package janitor removes video and thumbnail files that no video row
// references, such as uploads abandoned before a category was chosen.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/robfig/cron/v3"

	"github.com/iconidentify/vidvault/internal/media"
)

// PathSource lists the files owned by stored videos.
type PathSource interface {
	ReferencedPaths(ctx context.Context) (map[string]struct{}, error)
}

// Config holds janitor configuration.
type Config struct {
	// Schedule is a standard five-field cron expression.
	Schedule string
	// MinAge protects files still being written or waiting in a draft.
	MinAge time.Duration
	// Dirs are scanned non-recursively.
	Dirs []string
	// Timeout bounds a single sweep.
	Timeout time.Duration
}

// Result summarizes one sweep.
type Result struct {
	Scanned int
	Removed int
	Freed   int64
}

// Janitor periodically deletes orphaned files.
type Janitor struct {
	cfg    Config
	paths  PathSource
	logger *slog.Logger
	now    func() time.Time
}

// New creates a janitor. The schedule is validated here so a typo fails at
// startup rather than silently disabling cleanup.
func New(cfg Config, paths PathSource, logger *slog.Logger) (*Janitor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
			return nil, fmt.Errorf("parse janitor schedule %q: %w", cfg.Schedule, err)
		}
	}
	if cfg.MinAge <= 0 {
		cfg.MinAge = 24 * time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	return &Janitor{
		cfg:    cfg,
		paths:  paths,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Enabled reports whether a schedule is configured.
func (j *Janitor) Enabled() bool {
	return j.cfg.Schedule != ""
}

// Run schedules sweeps until ctx is cancelled and waits for a running
// sweep to finish.
func (j *Janitor) Run(ctx context.Context) error {
	if !j.Enabled() {
		return nil
	}

	c := cron.New()
	_, err := c.AddFunc(j.cfg.Schedule, func() {
		sweepCtx, cancel := context.WithTimeout(ctx, j.cfg.Timeout)
		defer cancel()
		if _, err := j.Sweep(sweepCtx); err != nil {
			j.logger.Error("janitor sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule janitor: %w", err)
	}

	c.Start()
	j.logger.Info("janitor started", "schedule", j.cfg.Schedule, "min_age", j.cfg.MinAge)

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// Sweep removes unreferenced regular files older than MinAge. Only names the
// media pipeline writes are considered; other files are never touched.
func (j *Janitor) Sweep(ctx context.Context) (Result, error) {
	var res Result

	refs, err := j.paths.ReferencedPaths(ctx)
	if err != nil {
		return res, fmt.Errorf("load referenced paths: %w", err)
	}
	keep := make(map[string]struct{}, len(refs))
	for p := range refs {
		keep[canonical(p)] = struct{}{}
	}

	cutoff := j.now().Add(-j.cfg.MinAge)
	for _, dir := range j.cfg.Dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return res, fmt.Errorf("read %s: %w", dir, err)
		}

		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			if !e.Type().IsRegular() || !media.OwnsFile(e.Name()) {
				continue
			}
			res.Scanned++

			path := filepath.Join(dir, e.Name())
			if _, ok := keep[canonical(path)]; ok {
				continue
			}
			info, err := e.Info()
			if err != nil || info.ModTime().After(cutoff) {
				continue
			}

			if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				j.logger.Warn("failed to remove orphaned file", "path", path, "error", err)
				continue
			}
			res.Removed++
			res.Freed += info.Size()
			j.logger.Debug("removed orphaned file", "path", path, "age", j.now().Sub(info.ModTime()))
		}
	}

	if res.Removed > 0 {
		j.logger.Info("janitor sweep complete", "scanned", res.Scanned, "removed", res.Removed, "freed", humanize.Bytes(uint64(res.Freed)))
	}
	return res, nil
}

func canonical(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

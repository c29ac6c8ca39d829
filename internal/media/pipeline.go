// Package media stores uploaded videos on disk, produces their thumbnails
// and removes both when a video is deleted.
package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/iconidentify/vidvault/internal/domain"
	"github.com/iconidentify/vidvault/internal/worker"
)

// FileResolver turns an uploaded file id into a downloadable URL.
type FileResolver interface {
	FileURL(ctx context.Context, fileID string) (string, error)
}

// Fetcher streams a URL into a local file.
type Fetcher interface {
	DownloadToFile(ctx context.Context, url, dst string, maxSize int64) (int64, error)
}

// Config holds pipeline configuration.
type Config struct {
	VideoDir         string
	ThumbnailDir     string
	MaxFileSize      int64
	MinFreeSpace     int64
	ThumbnailSize    int
	ThumbnailQuality int
}

// Result describes a stored upload. ThumbnailPath is empty when no
// thumbnail could be produced.
type Result struct {
	VideoPath     string
	ThumbnailPath string
	Size          int64
}

// Pipeline ingests uploaded videos.
type Pipeline struct {
	cfg       Config
	resolver  FileResolver
	fetcher   Fetcher
	frames    FrameSource
	pool      *worker.Pool
	logger    *slog.Logger
	freeSpace func(path string) int64
	newName   func() string
}

// NewPipeline creates a media pipeline. frames may be nil when ffmpeg is not
// installed; uploads are then stored without thumbnails. pool may be nil to
// extract thumbnails on the calling goroutine.
func NewPipeline(cfg Config, resolver FileResolver, fetcher Fetcher, frames FrameSource, pool *worker.Pool, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ThumbnailSize <= 0 {
		cfg.ThumbnailSize = 320
	}
	if cfg.ThumbnailQuality <= 0 {
		cfg.ThumbnailQuality = 85
	}

	return &Pipeline{
		cfg:       cfg,
		resolver:  resolver,
		fetcher:   fetcher,
		frames:    frames,
		pool:      pool,
		logger:    logger,
		freeSpace: freeDiskSpace,
		newName:   newVideoName,
	}
}

func newVideoName() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "") + ".mp4"
}

// ownedName matches the videos, thumbnails and temporary files the pipeline
// writes: <32 hex>.mp4, <32 hex>.mp4.jpg, each optionally with .part or .tmp.
var ownedName = regexp.MustCompile(`^[0-9a-f]{32}\.mp4(\.jpg)?(\.part|\.tmp)?$`)

// OwnsFile reports whether a file name has the shape of one the pipeline
// writes. Anything else in the media directories belongs to someone else.
func OwnsFile(name string) bool {
	return ownedName.MatchString(name)
}

// Ingest downloads doc into the video directory and tries to produce a
// thumbnail. A thumbnail failure is logged and leaves Result.ThumbnailPath
// empty; the stored video is still returned.
func (p *Pipeline) Ingest(ctx context.Context, doc domain.Document) (*Result, error) {
	logger := p.logger.With("file_id", doc.FileID, "mime_type", doc.MimeType, "size", doc.Size)

	if !doc.IsVideo() {
		return nil, domain.ErrInvalidMediaType
	}
	if p.cfg.MaxFileSize > 0 && doc.Size > p.cfg.MaxFileSize {
		return nil, fmt.Errorf("%w: %d bytes", domain.ErrFileTooLarge, doc.Size)
	}
	if err := p.checkFreeSpace(doc.Size); err != nil {
		return nil, err
	}

	url, err := p.resolver.FileURL(ctx, doc.FileID)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve file: %w", domain.ErrDownloadFailed, err)
	}

	videoPath := filepath.Join(p.cfg.VideoDir, p.newName())
	logger.Info("downloading video", "path", videoPath)

	size, err := p.fetcher.DownloadToFile(ctx, url, videoPath, p.cfg.MaxFileSize)
	if err != nil {
		if errors.Is(err, domain.ErrFileTooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrDownloadFailed, err)
	}

	result := &Result{VideoPath: videoPath, Size: size}

	thumb, err := p.GenerateThumbnail(ctx, videoPath)
	if err != nil {
		logger.Warn("thumbnail generation failed", "path", videoPath, "error", err)
		return result, nil
	}
	result.ThumbnailPath = thumb

	logger.Info("video stored", "path", videoPath, "thumbnail", thumb, "bytes", size)
	return result, nil
}

// GenerateThumbnail extracts the middle frame of videoPath on the worker pool
// and waits for the result.
func (p *Pipeline) GenerateThumbnail(ctx context.Context, videoPath string) (string, error) {
	if p.frames == nil {
		return "", fmt.Errorf("%w: no frame source configured", domain.ErrFrameRead)
	}

	extract := func(ctx context.Context) (string, error) {
		return extractThumbnail(ctx, p.frames, videoPath, p.cfg.ThumbnailDir, p.cfg.ThumbnailSize, p.cfg.ThumbnailQuality)
	}
	if p.pool == nil {
		return extract(ctx)
	}

	future, err := worker.Submit(ctx, p.pool, "thumbnail", extract)
	if err != nil {
		return "", fmt.Errorf("queue thumbnail: %w", err)
	}
	return future.Wait(ctx)
}

func (p *Pipeline) checkFreeSpace(incoming int64) error {
	if p.cfg.MinFreeSpace <= 0 {
		return nil
	}
	free := p.freeSpace(p.cfg.VideoDir)
	if free == 0 {
		// Unknown; do not block uploads on a failed statfs.
		return nil
	}
	if free < p.cfg.MinFreeSpace+incoming {
		return fmt.Errorf("%w: %d bytes free", domain.ErrStorageFull, free)
	}
	return nil
}

// DeleteFiles removes the files that belong to a video. Links own no files.
// Missing files are logged and tolerated. It reports false when a file that
// exists could not be removed.
func (p *Pipeline) DeleteFiles(v domain.Video) bool {
	if v.Kind != domain.KindFile {
		return true
	}

	logger := p.logger.With("video_id", v.ID)
	ok := p.removeFile(logger, v.Location, "video")
	if v.ThumbnailPath != "" {
		ok = p.removeFile(logger, v.ThumbnailPath, "thumbnail") && ok
	}
	return ok
}

func (p *Pipeline) removeFile(logger *slog.Logger, path, what string) bool {
	err := os.Remove(path)
	switch {
	case err == nil:
		logger.Info("deleted file", "kind", what, "path", path)
		return true
	case errors.Is(err, os.ErrNotExist):
		logger.Warn("file already missing", "kind", what, "path", path)
		return true
	default:
		logger.Error("failed to delete file", "kind", what, "path", path, "error", err)
		return false
	}
}

// FreeSpace returns the bytes available in the video directory, 0 if unknown.
func (p *Pipeline) FreeSpace() int64 {
	return p.freeSpace(p.cfg.VideoDir)
}

package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/iconidentify/vidvault/internal/config"
	"github.com/iconidentify/vidvault/internal/domain"
)

// ErrURLExpired is returned when the file URL is no longer valid.
var ErrURLExpired = errors.New("download URL expired or forbidden")

// ErrNotFound is returned when the server has no file at the URL.
var ErrNotFound = errors.New("remote file not found")

// HTTPDownloader fetches files over HTTP with retries and stall detection.
type HTTPDownloader struct {
	// streamClient has no overall timeout; stalls are caught per read.
	streamClient *http.Client
	userAgent    string
	cfg          config.DownloadConfig
	logger       *slog.Logger
}

// NewHTTPDownloader creates a new HTTP-based file downloader.
func NewHTTPDownloader(cfg config.DownloadConfig) *HTTPDownloader {
	streamTransport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ResponseHeaderTimeout: 30 * time.Second,
	}

	return &HTTPDownloader{
		streamClient: &http.Client{
			Transport: streamTransport,
		},
		userAgent: cfg.UserAgent,
		cfg:       cfg,
		logger:    slog.Default(),
	}
}

// SetLogger sets the logger for download progress reporting.
func (d *HTTPDownloader) SetLogger(logger *slog.Logger) {
	d.logger = logger
}

func (d *HTTPDownloader) retryConfig() RetryConfig {
	rc := DefaultRetryConfig()
	if d.cfg.RetryDelay > 0 {
		rc.InitialDelay = d.cfg.RetryDelay
	}
	if d.cfg.MaxRetryDelay > 0 {
		rc.MaxDelay = d.cfg.MaxRetryDelay
	}
	return rc
}

type download struct {
	body io.ReadCloser
	size int64
}

// Download fetches content from URL with retry logic.
// Returns a progress-tracking reader for large file streaming.
func (d *HTTPDownloader) Download(ctx context.Context, url string) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	res, err := RetryWithCheck(ctx, d.retryConfig(), func() (download, error) {
		body, size, err := d.downloadOnce(ctx, url)
		return download{body: body, size: size}, err
	}, isRetryableError)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		return nil, 0, fmt.Errorf("download failed after retries: %w", err)
	}
	return res.body, res.size, nil
}

// DownloadToFile streams URL into dst. Content is written to a temporary
// sibling file that is renamed into place only when complete; on any failure
// nothing is left at dst. A positive maxSize aborts larger downloads with
// domain.ErrFileTooLarge.
func (d *HTTPDownloader) DownloadToFile(ctx context.Context, url, dst string, maxSize int64) (int64, error) {
	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}

	body, size, err := d.Download(ctx, url)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	if maxSize > 0 && size > maxSize {
		return 0, fmt.Errorf("%w: %d bytes", domain.ErrFileTooLarge, size)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return 0, fmt.Errorf("create destination dir: %w", err)
	}

	tmp := dst + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}

	var src io.Reader = body
	if maxSize > 0 {
		// One extra byte detects bodies longer than declared.
		src = io.LimitReader(body, maxSize+1)
	}

	written, copyErr := io.Copy(f, src)
	closeErr := f.Close()

	switch {
	case copyErr != nil:
		os.Remove(tmp)
		return 0, fmt.Errorf("write file: %w", copyErr)
	case closeErr != nil:
		os.Remove(tmp)
		return 0, fmt.Errorf("close file: %w", closeErr)
	case maxSize > 0 && written > maxSize:
		os.Remove(tmp)
		return 0, fmt.Errorf("%w: more than %d bytes", domain.ErrFileTooLarge, maxSize)
	}

	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("move file into place: %w", err)
	}
	return written, nil
}

func (d *HTTPDownloader) downloadOnce(ctx context.Context, url string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "video/*,*/*;q=0.8")

	resp, err := d.streamClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("send request: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusForbidden, http.StatusUnauthorized:
		resp.Body.Close()
		return nil, 0, ErrURLExpired
	case http.StatusNotFound:
		resp.Body.Close()
		return nil, 0, ErrNotFound
	case http.StatusTooManyRequests:
		resp.Body.Close()
		return nil, 0, domain.ErrRateLimited
	default:
		resp.Body.Close()
		return nil, 0, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	size := resp.ContentLength
	if size < 0 {
		if cl := resp.Header.Get("Content-Length"); cl != "" {
			if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
				size = n
			}
		}
	}

	return newProgressReader(resp.Body, size, d.cfg.ReadTimeout, d.logger), size, nil
}

func isRetryableError(err error) bool {
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		return true
	case errors.Is(err, ErrURLExpired), errors.Is(err, ErrNotFound):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

// progressReader wraps an io.ReadCloser to track download progress
// and detect stalls (no data for readTimeout).
type progressReader struct {
	reader      io.ReadCloser
	total       int64
	downloaded  int64
	readTimeout time.Duration
	lastRead    time.Time
	lastLog     time.Time
	logger      *slog.Logger
	mu          sync.Mutex
	closed      bool
}

func newProgressReader(r io.ReadCloser, total int64, readTimeout time.Duration, logger *slog.Logger) *progressReader {
	now := time.Now()
	return &progressReader{
		reader:      r,
		total:       total,
		readTimeout: readTimeout,
		lastRead:    now,
		lastLog:     now,
		logger:      logger,
	}
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.reader.Read(buf)

	p.mu.Lock()
	defer p.mu.Unlock()

	if n > 0 {
		p.downloaded += int64(n)
		p.lastRead = time.Now()

		if time.Since(p.lastLog) > 30*time.Second {
			p.logProgress()
			p.lastLog = time.Now()
		}
	}

	if err == nil && p.readTimeout > 0 && time.Since(p.lastRead) > p.readTimeout {
		return n, fmt.Errorf("download stalled: no data received for %v", p.readTimeout)
	}

	return n, err
}

func (p *progressReader) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.downloaded > 0 {
		p.logProgress()
	}
	p.mu.Unlock()

	return p.reader.Close()
}

func (p *progressReader) logProgress() {
	if p.total > 0 {
		pct := float64(p.downloaded) / float64(p.total) * 100
		p.logger.Debug("download progress",
			"downloaded_bytes", p.downloaded,
			"total_bytes", p.total,
			"percent", fmt.Sprintf("%.1f%%", pct),
		)
	} else {
		p.logger.Debug("download progress", "downloaded_bytes", p.downloaded)
	}
}

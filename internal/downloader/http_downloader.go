package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/iconidentify/xstash/internal/config"
	"github.com/iconidentify/xstash/internal/domain"
)

// StatusError is returned when the server answers with a non-2xx status.
// It is never retried.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d for %s", e.StatusCode, e.URL)
}

func (e *StatusError) Unwrap() error {
	return domain.ErrDownloadFailed
}

// HTTPDownloader implements Fetcher using HTTP requests.
type HTTPDownloader struct {
	client       *http.Client
	userAgent    string
	cfg          config.DownloadConfig
	minFreeBytes uint64
	freeSpace    func(path string) uint64
	now          func() time.Time
	logger       *slog.Logger
}

// NewHTTPDownloader creates a new HTTP-based media downloader.
func NewHTTPDownloader(cfg config.DownloadConfig, minFreeBytes uint64, logger *slog.Logger) *HTTPDownloader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPDownloader{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		userAgent:    cfg.UserAgent,
		cfg:          cfg,
		minFreeBytes: minFreeBytes,
		freeSpace:    getFreeDiskSpace,
		now:          time.Now,
		logger:       logger,
	}
}

// Fetch downloads url into dir. Non-2xx responses fail immediately;
// transport errors are retried up to MaxAttempts.
func (d *HTTPDownloader) Fetch(ctx context.Context, url, dir string) (*SavedFile, error) {
	if err := d.checkFreeSpace(dir); err != nil {
		return nil, err
	}

	b := backoff{
		attempts: d.cfg.MaxAttempts,
		delay:    d.cfg.RetryDelay,
		maxDelay: d.cfg.Timeout,
		factor:   2.0,
	}

	saved, err := withRetry(ctx, b, func(attempt int) (*SavedFile, error) {
		if attempt > 1 {
			d.logger.Debug("retrying download", "url", url, "attempt", attempt)
		}
		return d.fetchOnce(ctx, url, dir)
	}, isRetryableError)
	if err != nil {
		if errors.Is(err, domain.ErrDownloadFailed) || errors.Is(err, domain.ErrStorageFull) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrDownloadFailed, err)
	}

	d.logger.Debug("media saved", "url", url, "path", saved.Path, "bytes", saved.Size)
	return saved, nil
}

func (d *HTTPDownloader) fetchOnce(ctx context.Context, url, dir string) (*SavedFile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", domain.ErrDownloadFailed, err)
	}

	// Set headers to mimic browser request
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "image/*,video/*;q=0.9,*/*;q=0.8")
	req.Header.Set("Referer", "https://x.com/")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	contentType := resp.Header.Get("Content-Type")
	ext := InferExtension(url, contentType)
	name := NewFileName(d.now(), ext)

	n, err := writeAtomic(dir, name, resp.Body)
	if err != nil {
		return nil, err
	}

	return &SavedFile{
		Path:        filepath.Join(dir, name),
		Size:        n,
		ContentType: contentType,
		Extension:   ext,
	}, nil
}

// CopyLocal persists a local file (plain path or file:// URI) into dir.
func (d *HTTPDownloader) CopyLocal(ctx context.Context, src, dir string) (*SavedFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := d.checkFreeSpace(dir); err != nil {
		return nil, err
	}

	src = strings.TrimPrefix(src, "file://")
	f, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", domain.ErrDownloadFailed, src, err)
	}
	defer f.Close()

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(src), "."))
	if !safeExtRe.MatchString(ext) {
		ext = DefaultExtension
	}
	name := NewFileName(d.now(), ext)

	n, err := writeAtomic(dir, name, f)
	if err != nil {
		return nil, err
	}

	return &SavedFile{
		Path:        filepath.Join(dir, name),
		Size:        n,
		ContentType: mime.TypeByExtension("." + ext),
		Extension:   ext,
	}, nil
}

func (d *HTTPDownloader) checkFreeSpace(dir string) error {
	if d.minFreeBytes == 0 {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create media directory: %w", err)
	}
	free := d.freeSpace(dir)
	if free > 0 && free < d.minFreeBytes {
		return fmt.Errorf("%w: %d bytes free in %s", domain.ErrStorageFull, free, dir)
	}
	return nil
}

func isRetryableError(err error) bool {
	if errors.Is(err, domain.ErrDownloadFailed) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

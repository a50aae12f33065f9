package resolver

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/iconidentify/xstash/internal/domain"
	"github.com/iconidentify/xstash/pkg/twitter"
)

const (
	// DefaultPollInterval is how often a rendered page is re-inspected.
	DefaultPollInterval = 1500 * time.Millisecond
	// DefaultMaxWait bounds a whole rendered extraction.
	DefaultMaxWait = 6 * time.Second
)

// Snapshot is what a rendered page exposes at one point in time.
type Snapshot struct {
	Images      []string `json:"images"`
	Canonical   string   `json:"canonical"`
	OgURL       string   `json:"ogUrl"`
	LocationURL string   `json:"locationUrl"`
}

// CanonicalURL picks the best post URL from the snapshot: the first of
// canonical link, og:url and location that points at a status, otherwise
// the first non-empty one.
func (s Snapshot) CanonicalURL() string {
	candidates := []string{s.Canonical, s.OgURL, s.LocationURL}
	for _, c := range candidates {
		if strings.Contains(c, "/status/") {
			return c
		}
	}
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return ""
}

// Browser opens pages in a JavaScript-capable renderer.
type Browser interface {
	Open(ctx context.Context, url string) (Page, error)
}

// Page is one open rendered page.
type Page interface {
	Snapshot(ctx context.Context) (Snapshot, error)
	Close() error
}

// RenderedStrategy loads the post in a real browser and reads images and
// the canonical URL from the live DOM.
type RenderedStrategy struct {
	browser      Browser
	maxWait      time.Duration
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewRenderedStrategy creates the rendered-page strategy. A nil browser
// makes every extraction return empty.
func NewRenderedStrategy(browser Browser, maxWait, pollInterval time.Duration, logger *slog.Logger) *RenderedStrategy {
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RenderedStrategy{
		browser:      browser,
		maxWait:      maxWait,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Name implements Strategy.
func (s *RenderedStrategy) Name() string { return "rendered" }

// Resolve implements Strategy.
func (s *RenderedStrategy) Resolve(ctx context.Context, ref domain.PostReference) Partial {
	target := ref.RawURL
	if !strings.Contains(target, "/status/") && ref.HasID() {
		target = twitter.StatusURL(ref.PostID)
	}
	if s.browser == nil || target == "" {
		return Partial{Status: StatusEmpty}
	}

	snap, err := s.Extract(ctx, target)
	if err != nil {
		s.logger.Debug("rendered extraction failed", "url", target, "error", err)
		return failed(err)
	}

	var images []string
	for _, img := range snap.Images {
		if twitter.IsMediaHostURL(img) {
			images = domain.AppendUnique(images, img)
		}
	}
	return resolved(domain.MediaResolution{
		PhotoURLs:    images,
		CanonicalURL: snap.CanonicalURL(),
	})
}

// Extract opens url and polls the page until it reports a non-placeholder
// canonical URL or maxWait elapses, then returns the last snapshot. Images
// seen in earlier polls are kept. The page is closed exactly once on every
// path.
func (s *RenderedStrategy) Extract(ctx context.Context, url string) (Snapshot, error) {
	if s.browser == nil {
		return Snapshot{}, domain.ErrBrowserUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, s.maxWait)
	defer cancel()

	page, err := s.browser.Open(ctx, url)
	if err != nil {
		return Snapshot{}, err
	}

	var once sync.Once
	closePage := func() {
		once.Do(func() {
			if err := page.Close(); err != nil {
				s.logger.Debug("close rendered page", "url", url, "error", err)
			}
		})
	}
	defer closePage()
	stop := context.AfterFunc(ctx, closePage)
	defer stop()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	var (
		last    Snapshot
		images  []string
		lastErr error
		ok      bool
	)
	for {
		snap, err := page.Snapshot(ctx)
		if err != nil {
			lastErr = err
		} else {
			ok = true
			images = domain.AppendUnique(images, snap.Images...)
			last = snap
			last.Images = images
		}

		if c := last.CanonicalURL(); c != "" && !twitter.IsPlaceholderURL(c) {
			return last, nil
		}

		select {
		case <-ctx.Done():
			if !ok && lastErr != nil {
				return Snapshot{}, lastErr
			}
			return last, nil
		case <-ticker.C:
		}
	}
}

package resolver

import (
	"context"
	"log/slog"
	"time"

	"github.com/iconidentify/xstash/internal/domain"
	"github.com/iconidentify/xstash/pkg/twitter"
)

// PageSource fetches raw HTML pages.
type PageSource interface {
	FetchPage(ctx context.Context, pageURL string) (*twitter.Page, error)
}

// FallbackStrategy scans the shared text, the canonical page and its mirror
// for media host URLs.
type FallbackStrategy struct {
	pages      PageSource
	mirrorBase string
	timeout    time.Duration
	logger     *slog.Logger
}

// NewFallbackStrategy creates the HTML scanning strategy.
func NewFallbackStrategy(pages PageSource, mirrorBase string, timeout time.Duration, logger *slog.Logger) *FallbackStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackStrategy{
		pages:      pages,
		mirrorBase: mirrorBase,
		timeout:    timeout,
		logger:     logger,
	}
}

// Name implements Strategy.
func (s *FallbackStrategy) Name() string { return "fallback" }

// Resolve implements Strategy. Page fetch failures contribute nothing.
func (s *FallbackStrategy) Resolve(ctx context.Context, ref domain.PostReference) Partial {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	found := twitter.FindMediaURLs(ref.SharedText)

	targets := []string{ref.RawURL}
	if mirror := twitter.MirrorURL(ref.RawURL, s.mirrorBase); mirror != "" && mirror != ref.RawURL {
		targets = append(targets, mirror)
	}

	for _, target := range targets {
		if target == "" || ctx.Err() != nil {
			continue
		}
		page, err := s.pages.FetchPage(ctx, target)
		if err != nil {
			s.logger.Debug("fallback page fetch failed", "url", target, "error", err)
			continue
		}
		found = domain.AppendUnique(found, twitter.FindMediaURLs(page.Body)...)
	}

	return resolved(domain.MediaResolution{PhotoURLs: found})
}

package resolver

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/iconidentify/xstash/internal/domain"
	"github.com/iconidentify/xstash/pkg/twitter"
)

// MediaSource is the structured mirror API.
type MediaSource interface {
	FetchMedia(ctx context.Context, id domain.TweetID) (*twitter.MediaResult, error)
}

// APIStrategy asks the JSON mirror for the post's photos and videos.
type APIStrategy struct {
	source  MediaSource
	timeout time.Duration
	logger  *slog.Logger
}

// NewAPIStrategy creates the structured API strategy.
func NewAPIStrategy(source MediaSource, timeout time.Duration, logger *slog.Logger) *APIStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIStrategy{source: source, timeout: timeout, logger: logger}
}

// Name implements Strategy.
func (s *APIStrategy) Name() string { return "api" }

// Resolve implements Strategy. Non-2xx answers and empty bodies are Empty;
// transport failures are Error.
func (s *APIStrategy) Resolve(ctx context.Context, ref domain.PostReference) Partial {
	if !ref.HasID() {
		return Partial{Status: StatusSkipped}
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	result, err := s.source.FetchMedia(ctx, ref.PostID)
	if err != nil {
		if errors.Is(err, twitter.ErrUnexpectedStatus) || errors.Is(err, twitter.ErrEmptyBody) {
			s.logger.Debug("api returned no media", "tweet_id", ref.PostID.String(), "error", err)
			return Partial{Status: StatusEmpty}
		}
		s.logger.Debug("api lookup failed", "tweet_id", ref.PostID.String(), "error", err)
		return failed(err)
	}

	return resolved(domain.MediaResolution{
		PhotoURLs: result.PhotoURLs,
		VideoURLs: result.VideoURLs,
	})
}

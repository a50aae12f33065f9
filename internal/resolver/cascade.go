package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/iconidentify/xstash/internal/domain"
)

// AuthorLookup is the part of AuthorResolver the cascade uses.
type AuthorLookup interface {
	FromSyndication(ctx context.Context, id domain.TweetID) string
	FromURL(ctx context.Context, raw string) string
}

// Resolution is the merged result of one cascade run.
type Resolution struct {
	Reference domain.PostReference
	Media     domain.MediaResolution
	Author    string

	API      Status
	Fallback Status
	Rendered Status

	// Debug holds key=value notes about what each stage produced.
	Debug []string
}

// URLs returns every media URL in download order.
func (r *Resolution) URLs() []string {
	return r.Media.All()
}

// DebugString joins the debug notes.
func (r *Resolution) DebugString() string {
	return strings.Join(r.Debug, ", ")
}

// Cascade runs the API, fallback and rendered strategies in order and
// merges their output.
type Cascade struct {
	api      Strategy
	fallback Strategy
	rendered Strategy
	authors  AuthorLookup
	logger   *slog.Logger
}

// NewCascade creates a cascade. Any strategy may be nil.
func NewCascade(api, fallback, rendered Strategy, authors AuthorLookup, logger *slog.Logger) *Cascade {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cascade{
		api:      api,
		fallback: fallback,
		rendered: rendered,
		authors:  authors,
		logger:   logger,
	}
}

// Resolve runs the cascade for ref. It returns domain.ErrNoMediaResolved
// when no stage produced a URL; the Resolution is returned either way.
//
// The fallback runs only when the API produced no photos. The rendered
// stage runs when nothing has produced media yet or the author is still
// unknown, but its images are used only in the first case.
func (c *Cascade) Resolve(ctx context.Context, ref domain.PostReference) (*Resolution, error) {
	res := &Resolution{Reference: ref}
	logger := c.logger.With("tweet_id", ref.PostID.String(), "url", ref.RawURL)

	var (
		apiPart Partial
		author  string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		apiPart = c.run(gctx, c.api, ref)
		return nil
	})
	g.Go(func() error {
		if c.authors == nil {
			return nil
		}
		if ref.HasID() {
			author = c.authors.FromSyndication(gctx, ref.PostID)
		}
		if author == "" {
			author = c.authors.FromURL(gctx, ref.RawURL)
		}
		return nil
	})
	_ = g.Wait()

	res.API = apiPart.Status
	apiPhotos := apiPart.Media.PhotoURLs
	apiVideos := apiPart.Media.VideoURLs
	if ref.HasID() {
		res.Debug = append(res.Debug,
			fmt.Sprintf("apiPhotoCount=%d", len(apiPhotos)),
			fmt.Sprintf("apiVideoCount=%d", len(apiVideos)),
		)
	} else {
		res.Debug = append(res.Debug, "tweetIdMissing=true")
	}

	var fallbackURLs []string
	if len(apiPhotos) == 0 {
		part := c.run(ctx, c.fallback, ref)
		res.Fallback = part.Status
		fallbackURLs = part.Media.PhotoURLs
		res.Debug = append(res.Debug, fmt.Sprintf("fallbackCount=%d", len(fallbackURLs)))
	}

	nothingYet := len(apiPhotos) == 0 && len(fallbackURLs) == 0 && len(apiVideos) == 0

	var renderedPart Partial
	if nothingYet || author == "" {
		renderedPart = c.run(ctx, c.rendered, ref)
		res.Rendered = renderedPart.Status
	}

	canonical := renderedPart.Media.CanonicalURL
	if author == "" && canonical != "" && c.authors != nil {
		author = c.authors.FromURL(ctx, canonical)
	}

	var renderedURLs []string
	if nothingYet {
		renderedURLs = renderedPart.Media.PhotoURLs
		res.Debug = append(res.Debug, fmt.Sprintf("webViewCount=%d", len(renderedURLs)))
	}

	photos := domain.AppendUnique(nil, apiPhotos...)
	photos = domain.AppendUnique(photos, fallbackURLs...)
	photos = domain.AppendUnique(photos, renderedURLs...)

	var videos []string
	for _, v := range apiVideos {
		if !slices.Contains(photos, v) {
			videos = domain.AppendUnique(videos, v)
		}
	}

	res.Media = domain.MediaResolution{
		PhotoURLs:    photos,
		VideoURLs:    videos,
		CanonicalURL: canonical,
	}
	res.Author = domain.NormalizeAuthor(author)

	logger.Debug("cascade finished",
		"api", res.API.String(),
		"fallback", res.Fallback.String(),
		"rendered", res.Rendered.String(),
		"photos", len(photos),
		"videos", len(videos),
		"author", res.Author,
	)

	if res.Media.IsEmpty() {
		return res, fmt.Errorf("%w (%s)", domain.ErrNoMediaResolved, res.DebugString())
	}
	return res, nil
}

func (c *Cascade) run(ctx context.Context, s Strategy, ref domain.PostReference) Partial {
	if s == nil {
		return Partial{Status: StatusSkipped}
	}
	if err := ctx.Err(); err != nil {
		return failed(err)
	}
	part := s.Resolve(ctx, ref)
	if part.Status == StatusError {
		c.logger.Debug("strategy failed", "strategy", s.Name(), "error", part.Err)
		part.Media = domain.MediaResolution{}
	}
	return part
}

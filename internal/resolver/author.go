package resolver

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/iconidentify/xstash/internal/domain"
	"github.com/iconidentify/xstash/pkg/twitter"
)

// AuthorSource looks up a post author by ID.
type AuthorSource interface {
	FetchAuthor(ctx context.Context, id domain.TweetID) (string, error)
}

var canonicalLinkRe = regexp.MustCompile(`<link[^>]*rel=["']canonical["'][^>]*href=["']([^"']+)["']`)

// AuthorResolver finds the author handle of a post.
type AuthorResolver struct {
	authors AuthorSource
	pages   PageSource
	timeout time.Duration
	logger  *slog.Logger
}

// NewAuthorResolver creates an author resolver.
func NewAuthorResolver(authors AuthorSource, pages PageSource, timeout time.Duration, logger *slog.Logger) *AuthorResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthorResolver{
		authors: authors,
		pages:   pages,
		timeout: timeout,
		logger:  logger,
	}
}

// Resolve tries the syndication lookup first and then each URL in turn.
func (r *AuthorResolver) Resolve(ctx context.Context, id domain.TweetID, urls ...string) string {
	if author := r.FromSyndication(ctx, id); author != "" {
		return author
	}
	for _, u := range urls {
		if author := r.FromURL(ctx, u); author != "" {
			return author
		}
	}
	return ""
}

// FromSyndication asks the syndication endpoint. Failures yield "".
func (r *AuthorResolver) FromSyndication(ctx context.Context, id domain.TweetID) string {
	if id.IsZero() || r.authors == nil {
		return ""
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	author, err := r.authors.FetchAuthor(ctx, id)
	if err != nil {
		r.logger.Debug("syndication lookup failed", "tweet_id", id.String(), "error", err)
		return ""
	}
	return domain.NormalizeAuthor(author)
}

// FromURL reads the handle from the URL itself, or failing that fetches the
// page and inspects the redirect target, the Location header and the
// canonical link.
func (r *AuthorResolver) FromURL(ctx context.Context, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if author := twitter.UsernameFromURL(raw); author != "" {
		return domain.NormalizeAuthor(author)
	}
	if r.pages == nil {
		return ""
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	page, err := r.pages.FetchPage(ctx, raw)
	if err != nil {
		r.logger.Debug("author page fetch failed", "url", raw, "error", err)
		return ""
	}

	for _, candidate := range []string{page.FinalURL, page.Location, CanonicalFromHTML(page.Body)} {
		if author := twitter.UsernameFromURL(candidate); author != "" {
			return domain.NormalizeAuthor(author)
		}
	}
	return ""
}

func (r *AuthorResolver) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

// CanonicalFromHTML returns the canonical link of an HTML document, falling
// back to og:url. Documents the parser rejects are scanned with a regex.
func CanonicalFromHTML(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err == nil {
		if href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok && href != "" {
			return href
		}
		if content, ok := doc.Find(`meta[property="og:url"]`).First().Attr("content"); ok && content != "" {
			return content
		}
	}

	if m := canonicalLinkRe.FindStringSubmatch(html); len(m) == 2 {
		return m[1]
	}
	return ""
}

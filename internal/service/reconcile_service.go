package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/iconidentify/xstash/internal/domain"
	"github.com/iconidentify/xstash/internal/repository"
	"github.com/iconidentify/xstash/internal/resolver"
	"github.com/iconidentify/xstash/pkg/twitter"
)

// Sweep jobs.
const (
	JobAuthors = "authors"
	JobExpand  = "expand"
	JobSource  = "source"
	JobSync    = "sync"
)

// DefaultItemDelay is the minimum spacing between items in a sweep.
const DefaultItemDelay = 300 * time.Millisecond

// PageRenderer loads a page in the rendering browser.
type PageRenderer interface {
	Extract(ctx context.Context, url string) (resolver.Snapshot, error)
}

// SweepReport summarizes one sweep.
type SweepReport struct {
	Job     string        `json:"job"`
	Scanned int           `json:"scanned"`
	Updated int           `json:"updated"`
	Failed  int           `json:"failed"`
	Elapsed time.Duration `json:"elapsed"`
}

// ReconcileService repairs stored bookmarks whose author or source URL
// could not be resolved at save time. Item failures never abort a sweep.
type ReconcileService struct {
	repo     repository.BookmarkRepository
	authors  resolver.AuthorLookup
	renderer PageRenderer
	diag     domain.DiagnosticRecorder
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// NewReconcileService creates a reconciliation service. renderer may be nil,
// in which case URL expansion finds nothing.
func NewReconcileService(
	repo repository.BookmarkRepository,
	authors resolver.AuthorLookup,
	renderer PageRenderer,
	diag domain.DiagnosticRecorder,
	itemDelay time.Duration,
	logger *slog.Logger,
) *ReconcileService {
	if diag == nil {
		diag = domain.NopRecorder{}
	}
	if itemDelay <= 0 {
		itemDelay = DefaultItemDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReconcileService{
		repo:     repo,
		authors:  authors,
		renderer: renderer,
		diag:     diag,
		limiter:  rate.NewLimiter(rate.Every(itemDelay), 1),
		logger:   logger,
	}
}

// Run dispatches a sweep by job name.
func (s *ReconcileService) Run(ctx context.Context, job string) (*SweepReport, error) {
	switch job {
	case JobAuthors:
		return s.RefreshUnknownAuthors(ctx)
	case JobExpand:
		return s.ExpandSourceURLs(ctx)
	case JobSource:
		return s.RefreshAuthorsFromSourceURLs(ctx)
	case JobSync:
		return s.Sync(ctx)
	default:
		return nil, fmt.Errorf("unknown reconcile job %q", job)
	}
}

// RefreshUnknownAuthors re-resolves the author of every bookmark without
// one: syndication by tweet ID, then the source URL, then the canonical URL
// reported by the rendering browser.
func (s *ReconcileService) RefreshUnknownAuthors(ctx context.Context) (*SweepReport, error) {
	report := &SweepReport{Job: JobAuthors}
	start := time.Now()

	targets, err := s.repo.FindWhere(ctx, domain.BookmarkFilter{AuthorMissing: true})
	if err != nil {
		return nil, fmt.Errorf("find unknown authors: %w", err)
	}

	for _, b := range targets {
		if err := s.limiter.Wait(ctx); err != nil {
			return s.finish(report, start), err
		}
		report.Scanned++

		url := itemURL(b)
		author := s.resolveAuthor(ctx, b, url)
		if author == "" {
			report.Failed++
			s.diag.Record(domain.DiagnosticEntry{
				Status:  domain.DiagnosticAuthorRefreshFail,
				Message: "Unresolved",
				Detail:  "url=" + url,
			})
			continue
		}

		s.diag.Record(domain.DiagnosticEntry{
			Status:  domain.DiagnosticAuthorRefreshOK,
			Message: author,
			Detail:  "url=" + url,
		})
		if author == b.Author {
			continue
		}
		if err := s.repo.UpdateField(ctx, b.ID, domain.FieldAuthor, author); err != nil {
			s.logger.Warn("author update failed", "id", b.ID, "error", err)
			report.Failed++
			continue
		}
		report.Updated++
	}

	return s.finish(report, start), nil
}

func (s *ReconcileService) resolveAuthor(ctx context.Context, b *domain.Bookmark, url string) string {
	if s.authors == nil {
		return ""
	}
	if author := s.authors.FromSyndication(ctx, b.TweetID); author != "" {
		return author
	}
	if author := s.authors.FromURL(ctx, b.SourceURL); author != "" {
		return author
	}
	if s.renderer == nil || url == "" {
		return ""
	}
	snap, err := s.renderer.Extract(ctx, url)
	if err != nil {
		s.logger.Debug("rendered author lookup failed", "id", b.ID, "url", url, "error", err)
		return ""
	}
	if canonical := snap.CanonicalURL(); canonical != "" {
		return s.authors.FromURL(ctx, canonical)
	}
	return ""
}

// ExpandSourceURLs replaces placeholder or missing source URLs with the
// canonical URL the rendering browser lands on. Only bookmarks with a tweet
// ID and no author are considered.
func (s *ReconcileService) ExpandSourceURLs(ctx context.Context) (*SweepReport, error) {
	report := &SweepReport{Job: JobExpand}
	start := time.Now()

	targets, err := s.repo.FindWhere(ctx, domain.BookmarkFilter{
		SourcePlaceholder: true,
		RequireTweetID:    true,
		AuthorMissing:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("find unexpanded source urls: %w", err)
	}

	for _, b := range targets {
		if err := s.limiter.Wait(ctx); err != nil {
			return s.finish(report, start), err
		}
		report.Scanned++

		url := itemURL(b)
		canonical := ""
		if s.renderer != nil {
			snap, err := s.renderer.Extract(ctx, url)
			if err != nil {
				s.logger.Debug("url expansion failed", "id", b.ID, "url", url, "error", err)
			} else {
				canonical = snap.CanonicalURL()
			}
		}

		if !expandsTo(b, canonical) {
			report.Failed++
			detail := "url=" + url
			if canonical != "" {
				detail += " canonical=" + canonical
			}
			s.diag.Record(domain.DiagnosticEntry{
				Status:  domain.DiagnosticURLExpandFail,
				Message: "Unresolved",
				Detail:  detail,
			})
			continue
		}

		s.diag.Record(domain.DiagnosticEntry{
			Status:  domain.DiagnosticURLExpandOK,
			Message: canonical,
			Detail:  "url=" + url,
		})
		if canonical == b.SourceURL {
			continue
		}
		if err := s.repo.UpdateField(ctx, b.ID, domain.FieldSourceURL, canonical); err != nil {
			s.logger.Warn("source url update failed", "id", b.ID, "error", err)
			report.Failed++
			continue
		}
		report.Updated++
	}

	return s.finish(report, start), nil
}

// expandsTo reports whether canonical is a post link for the same post as b.
func expandsTo(b *domain.Bookmark, canonical string) bool {
	if !twitter.IsCanonicalPostURL(canonical) {
		return false
	}
	id, _ := twitter.ExtractTweetID(canonical)
	return b.TweetID == 0 || id == b.TweetID
}

// RefreshAuthorsFromSourceURLs sets the author of every bookmark from the
// handle in its source URL. No network access.
func (s *ReconcileService) RefreshAuthorsFromSourceURLs(ctx context.Context) (*SweepReport, error) {
	report := &SweepReport{Job: JobSource}
	start := time.Now()

	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bookmarks: %w", err)
	}

	for _, b := range all {
		if err := ctx.Err(); err != nil {
			return s.finish(report, start), err
		}
		if b.SourceURL == "" {
			continue
		}
		report.Scanned++

		author := domain.NormalizeAuthor(twitter.UsernameFromURL(b.SourceURL))
		if author == "" || author == b.Author {
			continue
		}
		if err := s.repo.UpdateField(ctx, b.ID, domain.FieldAuthor, author); err != nil {
			s.logger.Warn("author update failed", "id", b.ID, "error", err)
			report.Failed++
			continue
		}
		report.Updated++
	}

	return s.finish(report, start), nil
}

// Sync expands source URLs and then refreshes authors from them.
func (s *ReconcileService) Sync(ctx context.Context) (*SweepReport, error) {
	start := time.Now()
	expand, err := s.ExpandSourceURLs(ctx)
	if err != nil {
		return expand, err
	}
	source, err := s.RefreshAuthorsFromSourceURLs(ctx)
	if err != nil {
		return source, err
	}
	return s.finish(&SweepReport{
		Job:     JobSync,
		Scanned: expand.Scanned + source.Scanned,
		Updated: expand.Updated + source.Updated,
		Failed:  expand.Failed + source.Failed,
	}, start), nil
}

func (s *ReconcileService) finish(report *SweepReport, start time.Time) *SweepReport {
	report.Elapsed = time.Since(start)
	s.logger.Info("reconcile sweep finished",
		"job", report.Job,
		"scanned", report.Scanned,
		"updated", report.Updated,
		"failed", report.Failed,
		"elapsed", report.Elapsed,
	)
	return report
}

// itemURL is the page a sweep loads for b.
func itemURL(b *domain.Bookmark) string {
	if b.SourceURL != "" {
		return b.SourceURL
	}
	if b.TweetID != 0 {
		return twitter.StatusURL(b.TweetID)
	}
	return ""
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/iconidentify/xstash/internal/config"
	"github.com/iconidentify/xstash/internal/domain"
	"github.com/iconidentify/xstash/internal/downloader"
	"github.com/iconidentify/xstash/internal/gate"
	"github.com/iconidentify/xstash/internal/repository"
	"github.com/iconidentify/xstash/internal/resolver"
	"github.com/iconidentify/xstash/pkg/twitter"
)

const (
	MessageSaved   = "Saved successfully"
	MessageSkipped = "Skipped: another save is in progress"
)

// MediaResolver runs the extraction cascade.
type MediaResolver interface {
	Resolve(ctx context.Context, ref domain.PostReference) (*resolver.Resolution, error)
}

// ShareService ingests share events: it resolves media for shared posts,
// downloads it and records one bookmark per saved file.
type ShareService struct {
	gate      gate.Gate
	resolver  MediaResolver
	fetcher   downloader.Fetcher
	repo      repository.BookmarkRepository
	diag      domain.DiagnosticRecorder
	diagName  string
	mediaPath string
	cfg       config.IngestConfig
	now       func() time.Time
	logger    *slog.Logger
}

// NewShareService creates a new share ingestion service.
func NewShareService(
	g gate.Gate,
	res MediaResolver,
	fetcher downloader.Fetcher,
	repo repository.BookmarkRepository,
	diag domain.DiagnosticRecorder,
	mediaPath string,
	cfg config.IngestConfig,
	logger *slog.Logger,
) *ShareService {
	if diag == nil {
		diag = domain.NopRecorder{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	diagName := ""
	if p, ok := diag.(interface{ Path() string }); ok && p.Path() != "" {
		diagName = filepath.Base(p.Path())
	}

	return &ShareService{
		gate:      g,
		resolver:  res,
		fetcher:   fetcher,
		repo:      repo,
		diag:      diag,
		diagName:  diagName,
		mediaPath: mediaPath,
		cfg:       cfg,
		now:       time.Now,
		logger:    logger,
	}
}

// Ingest handles one share event end to end. It never returns an error:
// every attempt ends in an outcome carrying a user-facing message.
//
// Only one attempt runs at a time across the process and its restarts. A
// concurrent attempt is skipped without touching the gate.
func (s *ShareService) Ingest(ctx context.Context, ev domain.ShareEvent) *domain.ShareOutcome {
	acquired, err := s.gate.TryAcquire(ctx)
	if err != nil {
		s.logger.Error("ingestion gate unavailable", "error", err)
		s.record(ev, domain.DiagnosticFail, err.Error(), "gate", "")
		return s.failure(err)
	}
	if !acquired {
		s.logger.Info("share skipped, another save in progress", "action", ev.Action)
		s.record(ev, domain.DiagnosticSkipped, domain.ErrGateHeld.Error(), "", "")
		return &domain.ShareOutcome{Status: domain.OutcomeSkipped, Message: MessageSkipped}
	}
	defer s.releaseGate(ctx)

	s.record(ev, domain.DiagnosticStart, "Share receiver started", "", "")

	attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	outcome, err := s.handle(attemptCtx, ev)
	if err != nil {
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
		s.logger.Warn("share failed", "action", ev.Action, "error", err)
		s.record(ev, domain.DiagnosticFail, err.Error(), errorType(err), "")
		return s.failure(err)
	}

	s.logger.Info("share saved",
		"tweet_id", outcome.TweetID.String(),
		"author", outcome.Author,
		"files", len(outcome.BookmarkIDs),
	)
	s.record(ev, domain.DiagnosticSuccess, MessageSaved, "", "")
	outcome.Status = domain.OutcomeSaved
	outcome.Message = MessageSaved
	return outcome
}

func (s *ShareService) releaseGate(ctx context.Context) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.gate.Release(releaseCtx); err != nil {
		s.logger.Error("failed to release ingestion gate", "error", err)
	}
}

func (s *ShareService) handle(ctx context.Context, ev domain.ShareEvent) (*domain.ShareOutcome, error) {
	switch ev.Action {
	case domain.ShareActionSend:
		if len(ev.Streams) > 0 {
			return s.saveStreams(ctx, ev.Streams[:1], ev.LocalStreams)
		}
		return s.saveFromText(ctx, ev.Text)
	case domain.ShareActionSendMultiple:
		if len(ev.Streams) == 0 {
			return nil, fmt.Errorf("%w: no shared streams", domain.ErrUnsupportedShare)
		}
		return s.saveStreams(ctx, ev.Streams, ev.LocalStreams)
	default:
		return nil, fmt.Errorf("%w: action %q", domain.ErrUnsupportedShare, ev.Action)
	}
}

// saveStreams persists directly shared media without any resolution. Local
// paths are copied only when allowLocal is set.
func (s *ShareService) saveStreams(ctx context.Context, streams []string, allowLocal bool) (*domain.ShareOutcome, error) {
	outcome := &domain.ShareOutcome{}
	for _, src := range streams {
		src = strings.TrimSpace(src)
		if src == "" {
			continue
		}

		var (
			saved *downloader.SavedFile
			err   error
		)
		switch {
		case strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://"):
			saved, err = s.fetcher.Fetch(ctx, src, s.mediaPath)
		case !allowLocal:
			err = domain.ErrLocalStream
		default:
			saved, err = s.fetcher.CopyLocal(ctx, src, s.mediaPath)
		}
		if err != nil {
			return nil, domain.NewShareError(0, "save stream", err)
		}

		id, err := s.repo.Insert(ctx, &domain.Bookmark{
			FilePath: saved.Path,
			SavedAt:  s.now(),
		})
		if err != nil {
			return nil, domain.NewShareError(0, "insert", err)
		}
		outcome.BookmarkIDs = append(outcome.BookmarkIDs, id)
	}
	if len(outcome.BookmarkIDs) == 0 {
		return nil, fmt.Errorf("%w: no shared streams", domain.ErrUnsupportedShare)
	}
	return outcome, nil
}

// saveFromText resolves the post linked in text and saves each media item.
// A failed download aborts the remaining items; records already inserted
// are kept.
func (s *ShareService) saveFromText(ctx context.Context, text string) (*domain.ShareOutcome, error) {
	if twitter.ExtractStatusURL(text) == "" {
		return nil, domain.ErrNoStatusURL
	}
	ref := twitter.ParseReference(text)
	logger := s.logger.With("tweet_id", ref.PostID.String(), "url", ref.RawURL)

	res, err := s.resolver.Resolve(ctx, ref)
	if err != nil {
		if errors.Is(err, domain.ErrNoMediaResolved) && res != nil {
			s.diag.Record(domain.DiagnosticEntry{
				Status:     domain.DiagnosticEmptyResult,
				Message:    "No image URL extracted",
				Action:     domain.ShareActionSend,
				SharedText: text,
				Detail:     res.DebugString(),
			})
		}
		return nil, domain.NewShareError(ref.PostID, "resolve", err)
	}

	var urls []string
	for _, u := range res.URLs() {
		urls = domain.AppendUnique(urls, twitter.NormalizeMediaURL(u))
	}

	sourceURL := ref.RawURL
	if c := res.Media.CanonicalURL; twitter.IsCanonicalPostURL(c) {
		sourceURL = c
	}
	postedAt := twitter.PostedAt(ref.PostID)

	outcome := &domain.ShareOutcome{Author: res.Author, TweetID: ref.PostID}
	for _, u := range urls {
		saved, err := s.fetcher.Fetch(ctx, u, s.mediaPath)
		if err != nil {
			logger.Warn("media download failed", "media_url", u, "error", err)
			return nil, domain.NewShareError(ref.PostID, "download", err)
		}

		id, err := s.repo.Insert(ctx, &domain.Bookmark{
			TweetID:   ref.PostID,
			FilePath:  saved.Path,
			SourceURL: sourceURL,
			Author:    res.Author,
			SavedAt:   s.now(),
			PostedAt:  postedAt,
		})
		if err != nil {
			return nil, domain.NewShareError(ref.PostID, "insert", err)
		}
		logger.Debug("bookmark saved", "id", id, "path", saved.Path)
		outcome.BookmarkIDs = append(outcome.BookmarkIDs, id)
	}

	return outcome, nil
}

func (s *ShareService) failure(err error) *domain.ShareOutcome {
	logged := " (failed to write log)"
	if s.diagName != "" {
		logged = fmt.Sprintf(" (logged: %s)", s.diagName)
	}
	return &domain.ShareOutcome{
		Status:  domain.OutcomeFailed,
		Message: fmt.Sprintf("Save failed: %s%s", err.Error(), logged),
	}
}

func (s *ShareService) record(ev domain.ShareEvent, status domain.DiagnosticStatus, message, errType, detail string) {
	entry := domain.DiagnosticEntry{
		Status:     status,
		Message:    message,
		Action:     ev.Action,
		MimeType:   ev.MimeType,
		SharedText: ev.Text,
		ErrorType:  errType,
		Detail:     detail,
	}
	if len(ev.Streams) > 0 {
		entry.SharedURI = ev.Streams[0]
	}
	s.diag.Record(entry)
}

// errorType names the failing step for the diagnostic trail.
func errorType(err error) string {
	var shareErr *domain.ShareError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &shareErr):
		return shareErr.Op
	case errors.Is(err, domain.ErrUnsupportedShare):
		return "unsupported"
	case errors.Is(err, domain.ErrNoStatusURL):
		return "parse"
	default:
		return fmt.Sprintf("%T", err)
	}
}

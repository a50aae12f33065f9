package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/iconidentify/xstash/internal/domain"
	"github.com/iconidentify/xstash/internal/repository"
)

// BookmarkService serves stored bookmarks.
type BookmarkService struct {
	repo   repository.BookmarkRepository
	logger *slog.Logger
}

// NewBookmarkService creates a new bookmark service.
func NewBookmarkService(repo repository.BookmarkRepository, logger *slog.Logger) *BookmarkService {
	if logger == nil {
		logger = slog.Default()
	}
	return &BookmarkService{repo: repo, logger: logger}
}

// List returns bookmarks newest first, optionally for one author.
// The author "Unknown" selects bookmarks without an author.
func (s *BookmarkService) List(ctx context.Context, author string) ([]*domain.Bookmark, error) {
	switch author {
	case "":
		return s.repo.List(ctx)
	case domain.UnknownAuthor:
		return s.repo.FindWhere(ctx, domain.BookmarkFilter{AuthorMissing: true})
	default:
		return s.repo.FindWhere(ctx, domain.BookmarkFilter{Author: author})
	}
}

// Get returns one bookmark.
func (s *BookmarkService) Get(ctx context.Context, id int64) (*domain.Bookmark, error) {
	return s.repo.Get(ctx, id)
}

// Delete removes the record and then its media file. The file removal is
// best effort; a missing file is not an error.
func (s *BookmarkService) Delete(ctx context.Context, id int64) error {
	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	n, err := s.repo.DeleteByID(ctx, id)
	if err != nil {
		return fmt.Errorf("delete bookmark: %w", err)
	}
	if n == 0 {
		return domain.ErrBookmarkNotFound
	}

	if b.FilePath != "" {
		if err := os.Remove(b.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to remove media file", "id", id, "path", b.FilePath, "error", err)
		}
	}
	s.logger.Info("bookmark deleted", "id", id)
	return nil
}

// Authors groups bookmarks by author, most recently saved group first.
// Bookmarks without an author land in the "Unknown" group.
func (s *BookmarkService) Authors(ctx context.Context) ([]*domain.AuthorGroup, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	groups := make(map[string]*domain.AuthorGroup)
	var order []*domain.AuthorGroup
	for _, b := range all {
		name := domain.NormalizeAuthor(b.Author)
		if name == "" {
			name = domain.UnknownAuthor
		}
		g, ok := groups[name]
		if !ok {
			g = &domain.AuthorGroup{Author: name}
			groups[name] = g
			order = append(order, g)
		}
		g.Count++
		g.Bookmarks = append(g.Bookmarks, b)
		if b.SavedAt.After(g.LatestAt) {
			g.LatestAt = b.SavedAt
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return order[i].LatestAt.After(order[j].LatestAt)
	})
	return order, nil
}

package repository

import (
	"context"

	"github.com/iconidentify/xstash/internal/domain"
)

// BookmarkRepository persists saved media records.
type BookmarkRepository interface {
	// Insert stores a new bookmark and returns its assigned ID.
	Insert(ctx context.Context, b *domain.Bookmark) (int64, error)

	// Get retrieves a bookmark by ID.
	Get(ctx context.Context, id int64) (*domain.Bookmark, error)

	// List returns all bookmarks, most recently saved first.
	List(ctx context.Context) ([]*domain.Bookmark, error)

	// FindWhere returns bookmarks matching filter, most recently saved first.
	FindWhere(ctx context.Context, filter domain.BookmarkFilter) ([]*domain.Bookmark, error)

	// UpdateField sets a single mutable column on one bookmark.
	UpdateField(ctx context.Context, id int64, field domain.BookmarkField, value string) error

	// DeleteByID removes a bookmark and returns the number of rows removed.
	DeleteByID(ctx context.Context, id int64) (int64, error)

	// Observe streams the full bookmark list: once immediately, then after
	// every change. The channel closes when ctx is done. Slow readers only
	// ever see the latest snapshot.
	Observe(ctx context.Context) <-chan []*domain.Bookmark
}

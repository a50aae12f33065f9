package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iconidentify/xstash/internal/domain"
)

// InMemoryBookmarkRepository implements BookmarkRepository using in-memory storage.
type InMemoryBookmarkRepository struct {
	mu        sync.RWMutex
	bookmarks map[int64]*domain.Bookmark
	nextID    int64
	feed      *broadcaster
}

// NewInMemoryBookmarkRepository creates a new in-memory bookmark repository.
func NewInMemoryBookmarkRepository() *InMemoryBookmarkRepository {
	r := &InMemoryBookmarkRepository{
		bookmarks: make(map[int64]*domain.Bookmark),
	}
	r.feed = newBroadcaster(r.List)
	return r
}

// Insert stores a copy of b.
func (r *InMemoryBookmarkRepository) Insert(ctx context.Context, b *domain.Bookmark) (int64, error) {
	r.mu.Lock()
	r.nextID++
	stored := *b
	stored.ID = r.nextID
	stored.Author = domain.NormalizeAuthor(stored.Author)
	if stored.SavedAt.IsZero() {
		stored.SavedAt = time.Now()
	}
	r.bookmarks[stored.ID] = &stored
	r.mu.Unlock()

	r.feed.publish(ctx)
	return stored.ID, nil
}

// Get retrieves a bookmark by ID.
func (r *InMemoryBookmarkRepository) Get(ctx context.Context, id int64) (*domain.Bookmark, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bookmarks[id]
	if !ok {
		return nil, domain.ErrBookmarkNotFound
	}
	cp := *b
	return &cp, nil
}

// List returns all bookmarks, most recently saved first.
func (r *InMemoryBookmarkRepository) List(ctx context.Context) ([]*domain.Bookmark, error) {
	return r.FindWhere(ctx, domain.BookmarkFilter{})
}

// FindWhere returns bookmarks matching filter.
func (r *InMemoryBookmarkRepository) FindWhere(ctx context.Context, filter domain.BookmarkFilter) ([]*domain.Bookmark, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.Bookmark, 0, len(r.bookmarks))
	for _, b := range r.bookmarks {
		if filter.Matches(b) {
			cp := *b
			result = append(result, &cp)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].SavedAt.Equal(result[j].SavedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].SavedAt.After(result[j].SavedAt)
	})
	return result, nil
}

// UpdateField sets author or source_url on one bookmark.
func (r *InMemoryBookmarkRepository) UpdateField(ctx context.Context, id int64, field domain.BookmarkField, value string) error {
	if !field.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidField, field)
	}

	r.mu.Lock()
	b, ok := r.bookmarks[id]
	if !ok {
		r.mu.Unlock()
		return domain.ErrBookmarkNotFound
	}
	switch field {
	case domain.FieldAuthor:
		b.Author = domain.NormalizeAuthor(value)
	case domain.FieldSourceURL:
		b.SourceURL = value
	}
	r.mu.Unlock()

	r.feed.publish(ctx)
	return nil
}

// DeleteByID removes a bookmark.
func (r *InMemoryBookmarkRepository) DeleteByID(ctx context.Context, id int64) (int64, error) {
	r.mu.Lock()
	_, ok := r.bookmarks[id]
	delete(r.bookmarks, id)
	r.mu.Unlock()

	if !ok {
		return 0, nil
	}
	r.feed.publish(ctx)
	return 1, nil
}

// Observe streams bookmark list snapshots until ctx is done.
func (r *InMemoryBookmarkRepository) Observe(ctx context.Context) <-chan []*domain.Bookmark {
	return r.feed.subscribe(ctx)
}

// Clear removes all bookmarks (useful for testing).
func (r *InMemoryBookmarkRepository) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.bookmarks = make(map[int64]*domain.Bookmark)
}

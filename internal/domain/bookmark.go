package domain

import (
	"path/filepath"
	"strings"
	"time"
)

// Bookmark is one saved media file together with what is known about the
// post it came from.
type Bookmark struct {
	ID        int64     `json:"id"`
	TweetID   TweetID   `json:"tweet_id,omitempty"`
	FilePath  string    `json:"file_path"`
	SourceURL string    `json:"source_url,omitempty"`
	Author    string    `json:"author,omitempty"`
	SavedAt   time.Time `json:"saved_at"`
	PostedAt  time.Time `json:"posted_at,omitempty"`
}

// MediaType returns "video" for video files and "image" otherwise.
func (b *Bookmark) MediaType() MediaType {
	if IsVideoFile(b.FilePath) {
		return MediaTypeVideo
	}
	return MediaTypeImage
}

// MediaType represents the type of media.
type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
)

var videoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".m4v":  true,
	".webm": true,
	".mkv":  true,
	".3gp":  true,
}

// IsVideoFile reports whether path has a known video extension.
func IsVideoFile(path string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(path))]
}

// PlaceholderStatusPath is the path segment X uses for links that do not
// carry the author handle.
const PlaceholderStatusPath = "/i/status/"

// NormalizeAuthor maps blank values and the "unknown" placeholder to "".
func NormalizeAuthor(author string) string {
	author = strings.TrimSpace(author)
	if author == "" || strings.EqualFold(author, "unknown") {
		return ""
	}
	return author
}

// BookmarkField names a mutable bookmark column.
type BookmarkField string

const (
	FieldAuthor    BookmarkField = "author"
	FieldSourceURL BookmarkField = "source_url"
)

// Valid reports whether f is an updatable field.
func (f BookmarkField) Valid() bool {
	return f == FieldAuthor || f == FieldSourceURL
}

// BookmarkFilter selects bookmarks. Zero-valued criteria match everything.
type BookmarkFilter struct {
	// AuthorMissing matches records with no usable author.
	AuthorMissing bool
	// SourcePlaceholder matches records whose source URL is empty or an
	// /i/status/ link.
	SourcePlaceholder bool
	// RequireTweetID matches only records with a tweet ID.
	RequireTweetID bool
	// Author matches an exact author handle.
	Author string
}

// Matches reports whether b satisfies the filter.
func (f BookmarkFilter) Matches(b *Bookmark) bool {
	if f.AuthorMissing && NormalizeAuthor(b.Author) != "" {
		return false
	}
	if f.SourcePlaceholder && b.SourceURL != "" && !strings.Contains(b.SourceURL, PlaceholderStatusPath) {
		return false
	}
	if f.RequireTweetID && b.TweetID == 0 {
		return false
	}
	if f.Author != "" && b.Author != f.Author {
		return false
	}
	return true
}

// AuthorGroup is the set of bookmarks saved for one author.
type AuthorGroup struct {
	Author    string      `json:"author"`
	Count     int         `json:"count"`
	LatestAt  time.Time   `json:"latest_at"`
	Bookmarks []*Bookmark `json:"bookmarks"`
}

// UnknownAuthor labels the group of bookmarks without an author.
const UnknownAuthor = "Unknown"

package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/iconidentify/xstash/internal/domain"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// BookmarkResponse represents a bookmark in list responses. Tweet IDs are
// strings so JavaScript clients keep all 64 bits.
type BookmarkResponse struct {
	ID        int64      `json:"id"`
	TweetID   string     `json:"tweet_id,omitempty"`
	FilePath  string     `json:"file_path"`
	MediaType string     `json:"media_type"`
	SourceURL string     `json:"source_url,omitempty"`
	Author    string     `json:"author,omitempty"`
	SavedAt   time.Time  `json:"saved_at"`
	PostedAt  *time.Time `json:"posted_at,omitempty"`
}

func toBookmarkResponse(b *domain.Bookmark) BookmarkResponse {
	resp := BookmarkResponse{
		ID:        b.ID,
		TweetID:   b.TweetID.String(),
		FilePath:  b.FilePath,
		MediaType: string(b.MediaType()),
		SourceURL: b.SourceURL,
		Author:    b.Author,
		SavedAt:   b.SavedAt,
	}
	if !b.PostedAt.IsZero() {
		posted := b.PostedAt
		resp.PostedAt = &posted
	}
	return resp
}

func toBookmarkResponses(list []*domain.Bookmark) []BookmarkResponse {
	out := make([]BookmarkResponse, 0, len(list))
	for _, b := range list {
		out = append(out, toBookmarkResponse(b))
	}
	return out
}

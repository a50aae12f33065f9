package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/iconidentify/xstash/internal/domain"
)

func sampleBookmarks() []*domain.Bookmark {
	return []*domain.Bookmark{
		{ID: 2, TweetID: 1933136925198545287, FilePath: "/media/b.mp4", Author: "alice", SavedAt: testSavedAt, PostedAt: time.UnixMilli(1749730733571).UTC()},
		{ID: 1, FilePath: "/media/a.jpg", SavedAt: testSavedAt.Add(-time.Hour)},
	}
}

// ============================================================================
// List / Authors
// ============================================================================

func TestBookmarkHandler_List(t *testing.T) {
	store := &mockStore{bookmarks: sampleBookmarks()}
	handler := NewBookmarkHandler(store, store, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/bookmarks?author=alice", nil)
	w := httptest.NewRecorder()
	handler.List(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if store.authorArg != "alice" {
		t.Errorf("author filter = %q, want alice", store.authorArg)
	}

	var resp ListResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Total != 2 || len(resp.Bookmarks) != 2 {
		t.Fatalf("response = %+v", resp)
	}

	first := resp.Bookmarks[0]
	if first.TweetID != "1933136925198545287" || first.MediaType != "video" || first.PostedAt == nil {
		t.Errorf("first = %+v", first)
	}
	second := resp.Bookmarks[1]
	if second.TweetID != "" || second.MediaType != "image" || second.PostedAt != nil {
		t.Errorf("second = %+v", second)
	}
}

func TestBookmarkHandler_List_Error(t *testing.T) {
	store := &mockStore{listErr: errStore}
	handler := NewBookmarkHandler(store, store, testLogger())

	w := httptest.NewRecorder()
	handler.List(w, httptest.NewRequest(http.MethodGet, "/api/v1/bookmarks", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestBookmarkHandler_Authors(t *testing.T) {
	list := sampleBookmarks()
	store := &mockStore{groups: []*domain.AuthorGroup{
		{Author: "alice", Count: 1, LatestAt: testSavedAt, Bookmarks: list[:1]},
		{Author: domain.UnknownAuthor, Count: 1, LatestAt: testSavedAt.Add(-time.Hour), Bookmarks: list[1:]},
	}}
	handler := NewBookmarkHandler(store, store, testLogger())

	w := httptest.NewRecorder()
	handler.Authors(w, httptest.NewRequest(http.MethodGet, "/api/v1/authors", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp struct {
		Authors []AuthorResponse `json:"authors"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Authors) != 2 || resp.Authors[1].Author != "Unknown" || resp.Authors[1].Bookmarks[0].ID != 1 {
		t.Errorf("authors = %+v", resp.Authors)
	}
}

// ============================================================================
// Delete
// ============================================================================

func TestBookmarkHandler_Delete(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		deleteErr  error
		wantStatus int
	}{
		{"deleted", "/api/v1/bookmarks/7", nil, http.StatusNoContent},
		{"not found", "/api/v1/bookmarks/7", domain.ErrBookmarkNotFound, http.StatusNotFound},
		{"store error", "/api/v1/bookmarks/7", errStore, http.StatusInternalServerError},
		{"bad id", "/api/v1/bookmarks/abc", nil, http.StatusBadRequest},
		{"zero id", "/api/v1/bookmarks/0", nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockStore{deleteErr: tt.deleteErr}
			handler := NewBookmarkHandler(store, store, testLogger())

			r := chi.NewRouter()
			r.Delete("/api/v1/bookmarks/{id}", handler.Delete)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, tt.path, nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusNoContent && (len(store.deleted) != 1 || store.deleted[0] != 7) {
				t.Errorf("deleted = %v, want [7]", store.deleted)
			}
		})
	}
}

// ============================================================================
// Watch
// ============================================================================

func TestBookmarkHandler_Watch(t *testing.T) {
	store := &mockStore{updates: make(chan []*domain.Bookmark)}
	handler := NewBookmarkHandler(store, store, testLogger())

	server := httptest.NewServer(http.HandlerFunc(handler.Watch))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	snapshots := [][]*domain.Bookmark{sampleBookmarks(), sampleBookmarks()[:1]}
	for i, snap := range snapshots {
		select {
		case store.updates <- snap:
		case <-ctx.Done():
			t.Fatal("watcher never subscribed")
		}

		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg ListResponse
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read %d failed: %v", i, err)
		}
		if msg.Total != len(snap) || len(msg.Bookmarks) != len(snap) {
			t.Errorf("message %d = %+v, want %d bookmarks", i, msg, len(snap))
		}
	}
}

func TestBookmarkHandler_Watch_RequiresUpgrade(t *testing.T) {
	store := &mockStore{updates: make(chan []*domain.Bookmark)}
	handler := NewBookmarkHandler(store, store, testLogger())

	w := httptest.NewRecorder()
	handler.Watch(w, httptest.NewRequest(http.MethodGet, "/api/v1/bookmarks/watch", nil))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

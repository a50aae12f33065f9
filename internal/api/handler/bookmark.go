package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/iconidentify/xstash/internal/domain"
)

const (
	watchWriteWait  = 10 * time.Second
	watchPongWait   = 60 * time.Second
	watchPingPeriod = watchPongWait * 9 / 10
)

// BookmarkStore lists, groups and deletes bookmarks.
type BookmarkStore interface {
	List(ctx context.Context, author string) ([]*domain.Bookmark, error)
	Delete(ctx context.Context, id int64) error
	Authors(ctx context.Context) ([]*domain.AuthorGroup, error)
}

// BookmarkFeed streams bookmark snapshots.
type BookmarkFeed interface {
	Observe(ctx context.Context) <-chan []*domain.Bookmark
}

// BookmarkHandler handles bookmark HTTP requests.
type BookmarkHandler struct {
	store    BookmarkStore
	feed     BookmarkFeed
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewBookmarkHandler creates a new bookmark handler.
func NewBookmarkHandler(store BookmarkStore, feed BookmarkFeed, logger *slog.Logger) *BookmarkHandler {
	return &BookmarkHandler{
		store:  store,
		feed:   feed,
		logger: logger,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: watchWriteWait,
			CheckOrigin:      func(r *http.Request) bool { return true },
		},
	}
}

// ListResponse contains a bookmark list.
type ListResponse struct {
	Bookmarks []BookmarkResponse `json:"bookmarks"`
	Total     int                `json:"total"`
}

// AuthorResponse is one author group.
type AuthorResponse struct {
	Author    string             `json:"author"`
	Count     int                `json:"count"`
	LatestAt  time.Time          `json:"latest_at"`
	Bookmarks []BookmarkResponse `json:"bookmarks"`
}

// List handles GET /api/v1/bookmarks?author=
func (h *BookmarkHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.List(r.Context(), r.URL.Query().Get("author"))
	if err != nil {
		h.logger.Error("list bookmarks failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list bookmarks")
		return
	}

	writeJSON(w, http.StatusOK, ListResponse{
		Bookmarks: toBookmarkResponses(list),
		Total:     len(list),
	})
}

// Delete handles DELETE /api/v1/bookmarks/{id}
func (h *BookmarkHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid bookmark id")
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrBookmarkNotFound) {
			writeError(w, http.StatusNotFound, "bookmark not found")
			return
		}
		h.logger.Error("delete bookmark failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete bookmark")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Authors handles GET /api/v1/authors
func (h *BookmarkHandler) Authors(w http.ResponseWriter, r *http.Request) {
	groups, err := h.store.Authors(r.Context())
	if err != nil {
		h.logger.Error("list authors failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list authors")
		return
	}

	out := make([]AuthorResponse, 0, len(groups))
	for _, g := range groups {
		out = append(out, AuthorResponse{
			Author:    g.Author,
			Count:     g.Count,
			LatestAt:  g.LatestAt,
			Bookmarks: toBookmarkResponses(g.Bookmarks),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"authors": out})
}

// Watch handles GET /api/v1/bookmarks/watch. Each websocket text message is
// the full bookmark list; the first one is sent right after the upgrade.
func (h *BookmarkHandler) Watch(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reader: only control frames are expected; any error ends the watch.
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(watchPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(watchPongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(watchPingPeriod)
	defer ping.Stop()

	updates := h.feed.Observe(ctx)
	h.logger.Debug("bookmark watcher connected", "remote_addr", r.RemoteAddr)

	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		case snapshot, ok := <-updates:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(watchWriteWait))
			if err := conn.WriteJSON(ListResponse{
				Bookmarks: toBookmarkResponses(snapshot),
				Total:     len(snapshot),
			}); err != nil {
				h.logger.Debug("bookmark watcher write failed", "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(watchWriteWait)); err != nil {
				return
			}
		}
	}
}

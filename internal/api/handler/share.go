package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/iconidentify/xstash/internal/domain"
)

// Ingester runs one share attempt.
type Ingester interface {
	Ingest(ctx context.Context, ev domain.ShareEvent) *domain.ShareOutcome
}

// ShareHandler accepts share events.
type ShareHandler struct {
	ingester Ingester
	logger   *slog.Logger
}

// NewShareHandler creates a new share handler.
func NewShareHandler(ingester Ingester, logger *slog.Logger) *ShareHandler {
	return &ShareHandler{
		ingester: ingester,
		logger:   logger,
	}
}

// maxShareBody bounds a share request body.
const maxShareBody = 256 << 10

// ShareRequest is the JSON request body for a share. URL is accepted as an
// alias for Text; Action defaults to "send".
type ShareRequest struct {
	Action   string   `json:"action"`
	Text     string   `json:"text"`
	URL      string   `json:"url"`
	Streams  []string `json:"streams"`
	MimeType string   `json:"mime_type"`
}

// ShareResponse reports the outcome of a share.
type ShareResponse struct {
	Status      string  `json:"status"`
	Message     string  `json:"message"`
	BookmarkIDs []int64 `json:"bookmark_ids"`
	Author      string  `json:"author,omitempty"`
	TweetID     string  `json:"tweet_id,omitempty"`
}

// Create handles POST /api/v1/shares. The attempt runs to completion even if
// the client disconnects. Streams must be http(s) URLs.
func (h *ShareHandler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxShareBody)

	var req ShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	for _, stream := range req.Streams {
		if !isRemoteStream(stream) {
			writeError(w, http.StatusBadRequest, "streams must be http(s) URLs")
			return
		}
	}

	ev := domain.ShareEvent{
		Action:   domain.ShareAction(strings.TrimSpace(req.Action)),
		Text:     req.Text,
		Streams:  req.Streams,
		MimeType: req.MimeType,
	}
	if ev.Action == "" {
		ev.Action = domain.ShareActionSend
	}
	if ev.Text == "" {
		ev.Text = req.URL
	}
	if ev.Text == "" && len(ev.Streams) == 0 {
		writeError(w, http.StatusBadRequest, "text, url or streams is required")
		return
	}

	outcome := h.ingester.Ingest(context.WithoutCancel(r.Context()), ev)

	status := http.StatusOK
	switch outcome.Status {
	case domain.OutcomeSkipped:
		status = http.StatusConflict
	case domain.OutcomeFailed:
		status = http.StatusUnprocessableEntity
	}

	ids := outcome.BookmarkIDs
	if ids == nil {
		ids = []int64{}
	}
	writeJSON(w, status, ShareResponse{
		Status:      string(outcome.Status),
		Message:     outcome.Message,
		BookmarkIDs: ids,
		Author:      outcome.Author,
		TweetID:     outcome.TweetID.String(),
	})
}

func isRemoteStream(stream string) bool {
	u, err := url.Parse(strings.TrimSpace(stream))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

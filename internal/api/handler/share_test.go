package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/iconidentify/xstash/internal/domain"
)

func TestShareHandler_Create(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		outcome    *domain.ShareOutcome
		wantStatus int
		wantEvent  domain.ShareEvent
	}{
		{
			name:       "saved",
			body:       `{"text":"see https://x.com/alice/status/1933136925198545287"}`,
			outcome:    &domain.ShareOutcome{Status: domain.OutcomeSaved, Message: "Saved successfully", BookmarkIDs: []int64{1, 2}, TweetID: 1933136925198545287},
			wantStatus: http.StatusOK,
			wantEvent:  domain.ShareEvent{Action: domain.ShareActionSend, Text: "see https://x.com/alice/status/1933136925198545287"},
		},
		{
			name:       "url alias",
			body:       `{"url":"https://x.com/i/status/1"}`,
			outcome:    &domain.ShareOutcome{Status: domain.OutcomeSaved},
			wantStatus: http.StatusOK,
			wantEvent:  domain.ShareEvent{Action: domain.ShareActionSend, Text: "https://x.com/i/status/1"},
		},
		{
			name:       "skipped",
			body:       `{"action":"send","text":"https://x.com/i/status/1"}`,
			outcome:    &domain.ShareOutcome{Status: domain.OutcomeSkipped, Message: "Skipped: another save is in progress"},
			wantStatus: http.StatusConflict,
			wantEvent:  domain.ShareEvent{Action: domain.ShareActionSend, Text: "https://x.com/i/status/1"},
		},
		{
			name:       "failed",
			body:       `{"action":"send_multiple","streams":["https://cdn.example.com/a.jpg"],"mime_type":"image/*"}`,
			outcome:    &domain.ShareOutcome{Status: domain.OutcomeFailed, Message: "Save failed: boom (logged: save_failures.log)"},
			wantStatus: http.StatusUnprocessableEntity,
			wantEvent:  domain.ShareEvent{Action: domain.ShareActionSendMultiple, Streams: []string{"https://cdn.example.com/a.jpg"}, MimeType: "image/*"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ingester := &mockIngester{outcome: tt.outcome}
			handler := NewShareHandler(ingester, testLogger())

			req := httptest.NewRequest(http.MethodPost, "/api/v1/shares", bytes.NewBufferString(tt.body))
			w := httptest.NewRecorder()
			handler.Create(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if len(ingester.events) != 1 {
				t.Fatalf("ingest calls = %d, want 1", len(ingester.events))
			}
			got := ingester.events[0]
			if got.Action != tt.wantEvent.Action || got.Text != tt.wantEvent.Text || got.MimeType != tt.wantEvent.MimeType || len(got.Streams) != len(tt.wantEvent.Streams) {
				t.Errorf("event = %+v, want %+v", got, tt.wantEvent)
			}

			var resp ShareResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Status != string(tt.outcome.Status) || resp.Message != tt.outcome.Message {
				t.Errorf("response = %+v", resp)
			}
			if resp.BookmarkIDs == nil {
				t.Error("bookmark_ids should never be null")
			}
		})
	}
}

func TestShareHandler_Create_TweetIDAsString(t *testing.T) {
	ingester := &mockIngester{outcome: &domain.ShareOutcome{Status: domain.OutcomeSaved, TweetID: 1933136925198545287}}
	handler := NewShareHandler(ingester, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/shares", bytes.NewBufferString(`{"text":"https://x.com/a/status/1933136925198545287"}`))
	w := httptest.NewRecorder()
	handler.Create(w, req)

	var raw map[string]any
	if err := json.NewDecoder(w.Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if raw["tweet_id"] != "1933136925198545287" {
		t.Errorf("tweet_id = %#v", raw["tweet_id"])
	}
}

func TestShareHandler_Create_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", "not json"},
		{"empty", `{}`},
		{"action only", `{"action":"send"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ingester := &mockIngester{}
			handler := NewShareHandler(ingester, testLogger())

			req := httptest.NewRequest(http.MethodPost, "/api/v1/shares", bytes.NewBufferString(tt.body))
			w := httptest.NewRecorder()
			handler.Create(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			if len(ingester.events) != 0 {
				t.Error("ingester should not be called")
			}
		})
	}
}

func TestShareHandler_Create_DetachesFromClient(t *testing.T) {
	ingester := &mockIngester{outcome: &domain.ShareOutcome{Status: domain.OutcomeSaved}}
	handler := NewShareHandler(ingester, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/shares", bytes.NewBufferString(`{"text":"https://x.com/i/status/1"}`))
	ctx, cancel := context.WithCancel(req.Context())
	cancel()
	handler.Create(httptest.NewRecorder(), req.WithContext(ctx))

	if ingester.ctxErr != nil {
		t.Errorf("ingest context err = %v, want nil", ingester.ctxErr)
	}
}

func TestShareHandler_RejectsLocalStreams(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"absolute path", `{"streams":["/etc/passwd"]}`},
		{"file url", `{"action":"send_multiple","streams":["https://cdn.example.com/a.jpg","file:///etc/passwd"]}`},
		{"relative path", `{"streams":["secret.txt"]}`},
		{"no host", `{"streams":["http:///etc/passwd"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ingester := &mockIngester{outcome: &domain.ShareOutcome{Status: domain.OutcomeSaved}}
			handler := NewShareHandler(ingester, testLogger())

			w := httptest.NewRecorder()
			handler.Create(w, httptest.NewRequest(http.MethodPost, "/api/v1/shares", bytes.NewBufferString(tt.body)))

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			if len(ingester.events) != 0 {
				t.Errorf("ingest calls = %d, want 0", len(ingester.events))
			}
		})
	}
}

func TestShareHandler_BodyTooLarge(t *testing.T) {
	ingester := &mockIngester{outcome: &domain.ShareOutcome{Status: domain.OutcomeSaved}}
	handler := NewShareHandler(ingester, testLogger())

	body := `{"text":"https://x.com/i/status/1 ` + strings.Repeat("x", 2<<20) + `"}`
	w := httptest.NewRecorder()
	handler.Create(w, httptest.NewRequest(http.MethodPost, "/api/v1/shares", strings.NewReader(body)))

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want %d", w.Code, http.StatusRequestEntityTooLarge)
	}
	if len(ingester.events) != 0 {
		t.Errorf("ingest calls = %d, want 0", len(ingester.events))
	}
}

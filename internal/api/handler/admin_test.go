package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/iconidentify/xstash/internal/domain"
	"github.com/iconidentify/xstash/internal/gate"
)

func TestAdminHandler_Diagnostics(t *testing.T) {
	entries := make([]domain.DiagnosticEntry, 60)
	for i := range entries {
		entries[i] = domain.DiagnosticEntry{Status: domain.DiagnosticFail, Message: "boom"}
	}

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantLimit  int
		wantTotal  int
	}{
		{"default limit", "", http.StatusOK, 50, 50},
		{"explicit", "?limit=3", http.StatusOK, 3, 3},
		{"capped", "?limit=5000", http.StatusOK, 1000, 60},
		{"invalid", "?limit=abc", http.StatusBadRequest, 0, 0},
		{"negative", "?limit=-1", http.StatusBadRequest, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diag := &mockDiagnostics{entries: entries}
			handler := NewAdminHandler(diag, &mockGate{}, &mockTrigger{}, testLogger())

			w := httptest.NewRecorder()
			handler.Diagnostics(w, httptest.NewRequest(http.MethodGet, "/api/v1/diagnostics"+tt.query, nil))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			if diag.limitArg != tt.wantLimit {
				t.Errorf("limit = %d, want %d", diag.limitArg, tt.wantLimit)
			}
			var resp struct {
				Entries []domain.DiagnosticEntry `json:"entries"`
				Total   int                      `json:"total"`
			}
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Total != tt.wantTotal || len(resp.Entries) != tt.wantTotal {
				t.Errorf("total = %d, entries = %d, want %d", resp.Total, len(resp.Entries), tt.wantTotal)
			}
		})
	}
}

func TestAdminHandler_DiagnosticsEmpty(t *testing.T) {
	handler := NewAdminHandler(&mockDiagnostics{}, &mockGate{}, &mockTrigger{}, testLogger())

	w := httptest.NewRecorder()
	handler.Diagnostics(w, httptest.NewRequest(http.MethodGet, "/api/v1/diagnostics", nil))

	var raw map[string]any
	if err := json.NewDecoder(w.Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if entries, ok := raw["entries"].([]any); !ok || len(entries) != 0 {
		t.Errorf("entries = %#v, want empty array", raw["entries"])
	}
}

func TestAdminHandler_Gate(t *testing.T) {
	g := &mockGate{lease: gate.Lease{Held: true, Owner: "abc", ExpiresAt: time.Now().Add(time.Minute)}}
	handler := NewAdminHandler(&mockDiagnostics{}, g, &mockTrigger{}, testLogger())

	w := httptest.NewRecorder()
	handler.GateStatus(w, httptest.NewRequest(http.MethodGet, "/api/v1/gate", nil))

	var lease gate.Lease
	if err := json.NewDecoder(w.Body).Decode(&lease); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !lease.Held || lease.Owner != "abc" {
		t.Errorf("lease = %+v", lease)
	}

	w = httptest.NewRecorder()
	handler.GateReset(w, httptest.NewRequest(http.MethodPost, "/api/v1/gate/reset", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if g.resets != 1 {
		t.Errorf("resets = %d, want 1", g.resets)
	}
	lease = gate.Lease{}
	if err := json.NewDecoder(w.Body).Decode(&lease); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if lease.Held {
		t.Error("lease should be free after reset")
	}
}

func TestAdminHandler_GateError(t *testing.T) {
	handler := NewAdminHandler(&mockDiagnostics{}, &mockGate{err: errStore}, &mockTrigger{}, testLogger())

	w := httptest.NewRecorder()
	handler.GateReset(w, httptest.NewRequest(http.MethodPost, "/api/v1/gate/reset", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestAdminHandler_Reconcile(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		full       bool
		wantStatus int
		wantJob    string
	}{
		{"default sync", "", false, http.StatusAccepted, "sync"},
		{"authors", "?job=authors", false, http.StatusAccepted, "authors"},
		{"expand", "?job=expand", false, http.StatusAccepted, "expand"},
		{"source", "?job=source", false, http.StatusAccepted, "source"},
		{"unknown", "?job=purge", false, http.StatusBadRequest, ""},
		{"queue full", "?job=authors", true, http.StatusServiceUnavailable, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trigger := &mockTrigger{full: tt.full}
			handler := NewAdminHandler(&mockDiagnostics{}, &mockGate{}, trigger, testLogger())

			w := httptest.NewRecorder()
			handler.Reconcile(w, httptest.NewRequest(http.MethodPost, "/api/v1/reconcile"+tt.query, nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantJob != "" && (len(trigger.jobs) != 1 || trigger.jobs[0] != tt.wantJob) {
				t.Errorf("jobs = %v, want [%s]", trigger.jobs, tt.wantJob)
			}
		})
	}
}

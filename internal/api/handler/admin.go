package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/iconidentify/xstash/internal/domain"
	"github.com/iconidentify/xstash/internal/gate"
	"github.com/iconidentify/xstash/internal/service"
)

const (
	defaultDiagnosticsLimit = 50
	maxDiagnosticsLimit     = 1000
)

// DiagnosticsReader returns recent diagnostic entries, newest first.
type DiagnosticsReader interface {
	Recent(limit int) ([]domain.DiagnosticEntry, error)
}

// GateAdmin inspects and resets the ingestion gate.
type GateAdmin interface {
	Status(ctx context.Context) (*gate.Lease, error)
	Reset(ctx context.Context) error
}

// SweepTrigger queues a reconciliation job.
type SweepTrigger interface {
	Trigger(job string) bool
}

// AdminHandler exposes diagnostics, the ingestion gate and reconciliation.
type AdminHandler struct {
	diag    DiagnosticsReader
	gate    GateAdmin
	sweeper SweepTrigger
	logger  *slog.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(diag DiagnosticsReader, g GateAdmin, sweeper SweepTrigger, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		diag:    diag,
		gate:    g,
		sweeper: sweeper,
		logger:  logger,
	}
}

// Diagnostics handles GET /api/v1/diagnostics?limit=
func (h *AdminHandler) Diagnostics(w http.ResponseWriter, r *http.Request) {
	limit := defaultDiagnosticsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxDiagnosticsLimit)
	}

	entries, err := h.diag.Recent(limit)
	if err != nil {
		h.logger.Error("read diagnostics failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read diagnostics")
		return
	}
	if entries == nil {
		entries = []domain.DiagnosticEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "total": len(entries)})
}

// GateStatus handles GET /api/v1/gate
func (h *AdminHandler) GateStatus(w http.ResponseWriter, r *http.Request) {
	lease, err := h.gate.Status(r.Context())
	if err != nil {
		h.logger.Error("read gate failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read gate")
		return
	}
	writeJSON(w, http.StatusOK, lease)
}

// GateReset handles POST /api/v1/gate/reset
func (h *AdminHandler) GateReset(w http.ResponseWriter, r *http.Request) {
	if err := h.gate.Reset(r.Context()); err != nil {
		h.logger.Error("reset gate failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reset gate")
		return
	}
	h.logger.Warn("ingestion gate reset manually", "remote_addr", r.RemoteAddr)
	h.GateStatus(w, r)
}

// Reconcile handles POST /api/v1/reconcile?job=authors|expand|source|sync.
// The job runs asynchronously on the sweeper.
func (h *AdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	job := r.URL.Query().Get("job")
	if job == "" {
		job = service.JobSync
	}
	switch job {
	case service.JobAuthors, service.JobExpand, service.JobSource, service.JobSync:
	default:
		writeError(w, http.StatusBadRequest, "unknown job "+strconv.Quote(job))
		return
	}

	if !h.sweeper.Trigger(job) {
		writeError(w, http.StatusServiceUnavailable, "reconcile queue is full")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job": job, "status": "queued"})
}

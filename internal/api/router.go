package api

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/iconidentify/xstash/internal/api/handler"
	mw "github.com/iconidentify/xstash/internal/api/middleware"
)

// Handlers groups the HTTP handlers mounted by NewRouter.
type Handlers struct {
	Health    *handler.HealthHandler
	Shares    *handler.ShareHandler
	Bookmarks *handler.BookmarkHandler
	Admin     *handler.AdminHandler
}

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(h Handlers, apiKey string, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CleanPath)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger(logger))
	r.Use(mw.Recovery(logger))
	r.Use(mw.CORS)

	// Health endpoints (no auth)
	r.Get("/health", h.Health.Live)
	r.Get("/ready", h.Health.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(apiKey))

		// Long-lived websocket, no request timeout.
		r.Get("/bookmarks/watch", h.Bookmarks.Watch)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(2 * time.Minute))

			r.Get("/stats", h.Health.Stats)

			r.Post("/shares", h.Shares.Create)

			r.Get("/bookmarks", h.Bookmarks.List)
			r.Delete("/bookmarks/{id}", h.Bookmarks.Delete)
			r.Get("/authors", h.Bookmarks.Authors)

			r.Post("/reconcile", h.Admin.Reconcile)
			r.Get("/diagnostics", h.Admin.Diagnostics)
			r.Get("/gate", h.Admin.GateStatus)
			r.Post("/gate/reset", h.Admin.GateReset)
		})
	})

	return r
}

// Package app wires the storage, resolver and service layers from config.
// Both the HTTP server and the one-shot share command build on it.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/iconidentify/xstash/internal/config"
	"github.com/iconidentify/xstash/internal/diagnostics"
	"github.com/iconidentify/xstash/internal/downloader"
	"github.com/iconidentify/xstash/internal/gate"
	"github.com/iconidentify/xstash/internal/repository"
	"github.com/iconidentify/xstash/internal/resolver"
	"github.com/iconidentify/xstash/internal/service"
	"github.com/iconidentify/xstash/pkg/twitter"
)

// App holds the long-lived components.
type App struct {
	DB        *sql.DB
	Repo      *repository.SQLiteBookmarkRepository
	Gate      *gate.SQLiteGate
	Trail     *diagnostics.Trail
	Shares    *service.ShareService
	Reconcile *service.ReconcileService
	Bookmarks *service.BookmarkService

	browser *resolver.RodBrowser
	logger  *slog.Logger
}

// New opens the database and builds every service.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(cfg.Storage.MediaPath, 0755); err != nil {
		return nil, fmt.Errorf("create media directory: %w", err)
	}

	db, err := repository.OpenSQLite(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, err
	}
	repo, err := repository.NewSQLiteBookmarkRepository(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init bookmarks: %w", err)
	}
	g, err := gate.NewSQLiteGate(db, cfg.Ingest.GateLeaseTTL, logger.With("component", "gate"))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init gate: %w", err)
	}

	trail := diagnostics.NewTrail(cfg.Storage.DiagnosticsPath, cfg.Storage.MaxDiagnostics, logger)

	client := twitter.NewClient(twitter.ClientConfig{
		APIBaseURL:     cfg.Resolver.APIBaseURL,
		SyndicationURL: cfg.Resolver.SyndicationURL,
		APIUserAgent:   cfg.Resolver.APIUserAgent,
		PageUserAgent:  cfg.Resolver.PageUserAgent,
		Timeout:        cfg.Resolver.Timeout,
	}, logger.With("component", "twitter"))

	a := &App{DB: db, Repo: repo, Gate: g, Trail: trail, logger: logger}

	resolverLog := logger.With("component", "resolver")
	var browser resolver.Browser
	if cfg.Browser.Enabled {
		a.browser = resolver.NewRodBrowser(cfg.Browser, resolverLog)
		browser = a.browser
	}
	rendered := resolver.NewRenderedStrategy(browser, cfg.Browser.MaxWait, cfg.Browser.PollInterval, resolverLog)
	authors := resolver.NewAuthorResolver(client, client, cfg.Resolver.Timeout, resolverLog)

	cascade := resolver.NewCascade(
		resolver.NewAPIStrategy(client, cfg.Resolver.Timeout, resolverLog),
		resolver.NewFallbackStrategy(client, cfg.Resolver.MirrorBaseURL, cfg.Resolver.Timeout, resolverLog),
		rendered,
		authors,
		resolverLog,
	)

	dl := downloader.NewHTTPDownloader(cfg.Download, cfg.Storage.MinFreeBytes, logger.With("component", "downloader"))

	a.Shares = service.NewShareService(g, cascade, dl, repo, trail, cfg.Storage.MediaPath, cfg.Ingest, logger.With("component", "share"))
	a.Reconcile = service.NewReconcileService(repo, authors, rendered, trail, cfg.Reconcile.ItemDelay, logger.With("component", "reconcile"))
	a.Bookmarks = service.NewBookmarkService(repo, logger.With("component", "bookmarks"))

	return a, nil
}

// WarmBrowser starts the rendering browser ahead of the first share. It is
// a no-op when rendering is disabled.
func (a *App) WarmBrowser(ctx context.Context) error {
	if a.browser == nil {
		return nil
	}
	return a.browser.Warm(ctx)
}

// Close shuts down the browser and the database.
func (a *App) Close() error {
	var errs []error
	if a.browser != nil {
		if err := a.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
	}
	if err := a.DB.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}
	return errors.Join(errs...)
}

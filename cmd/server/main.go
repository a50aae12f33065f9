package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iconidentify/xstash/internal/api"
	"github.com/iconidentify/xstash/internal/api/handler"
	"github.com/iconidentify/xstash/internal/app"
	"github.com/iconidentify/xstash/internal/config"
	"github.com/iconidentify/xstash/internal/service"
	"github.com/iconidentify/xstash/internal/worker"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *showVersion {
		fmt.Printf("xstash %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("starting xstash",
		"version", Version,
		"build_time", BuildTime,
	)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}

	// Clear a lease left behind by a crash of this process.
	if lease, err := a.Gate.Status(context.Background()); err == nil && lease.Held && lease.Expired {
		logger.Warn("clearing expired ingestion lease", "owner", lease.Owner, "expired_at", lease.ExpiresAt)
		if err := a.Gate.Reset(context.Background()); err != nil {
			logger.Error("failed to clear expired lease", "error", err)
		}
	}

	go func() {
		warmCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := a.WarmBrowser(warmCtx); err != nil {
			logger.Warn("headless browser not ready, rendered stage will retry on demand", "error", err)
		}
	}()

	sweeper := worker.NewSweeper(worker.Config{
		Interval:   cfg.Reconcile.Interval,
		Jobs:       []string{service.JobAuthors, service.JobSync},
		ManualOnly: !cfg.Reconcile.Enabled,
	}, a.Reconcile, logger.With("component", "sweeper"))
	sweeper.Start()

	router := api.NewRouter(api.Handlers{
		Health:    handler.NewHealthHandler(a.DB, cfg.Storage.MediaPath),
		Shares:    handler.NewShareHandler(a.Shares, logger),
		Bookmarks: handler.NewBookmarkHandler(a.Bookmarks, a.Repo, logger),
		Admin:     handler.NewAdminHandler(a.Trail, a.Gate, sweeper, logger),
	}, cfg.Server.APIKey, logger)

	if cfg.Server.APIKey == "" {
		logger.Warn("API_KEY is not set, /api/v1 is unauthenticated")
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if err := sweeper.Stop(10 * time.Second); err != nil {
		logger.Error("sweeper shutdown error", "error", err)
	}

	if err := a.Close(); err != nil {
		logger.Error("close error", "error", err)
	}

	logger.Info("shutdown complete")
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/bthode/engawa/app/api"
	"github.com/bthode/engawa/app/cfg"
	"github.com/bthode/engawa/app/database"
	"github.com/bthode/engawa/app/feed"
	"github.com/bthode/engawa/app/library"
	"github.com/bthode/engawa/app/logging"
	"github.com/bthode/engawa/app/metadata"
	"github.com/bthode/engawa/app/tasks"
	"github.com/bthode/engawa/app/ytdlp"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if appCfg == nil {
		return
	}

	logCloser := logging.Setup(logging.Options{Debug: appCfg.Debug, LogFile: appCfg.LogFile})
	defer logCloser.Close()

	if err := run(appCfg); err != nil {
		slog.Error("Exiting", "error", err)
		logCloser.Close()
		os.Exit(1)
	}
}

func run(appCfg *cfg.Cfg) error {
	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	subRepo := database.NewSubscriptionRepository(db)
	videoRepo := database.NewVideoRepository(db)

	if appCfg.Status {
		if _, err := database.RunMigrations(db); err != nil {
			return err
		}
		out, err := renderStatus(context.Background(), subRepo, videoRepo)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	}

	lockPath := filepath.Join(filepath.Dir(appCfg.DBPath), "engawa.lock")
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another instance holds %s", lockPath)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			slog.Warn("Failed to release lock", "path", lockPath, "error", err)
		}
	}()

	slog.Info("Starting engawa", "version", appCfg.Version, "db", appCfg.DBPath)

	migration, err := database.RunMigrations(db)
	if err != nil {
		return err
	}
	if migration.Applied() {
		slog.Info("Database migrated", "from", migration.From, "to", migration.To)
	}
	slog.Info("Database ready", "schema_version", migration.To)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	configCache := feed.NewConfigCache(appCfg.SubscriptionsDir)
	configTask := tasks.NewSyncSubscriptionConfigTask(configCache, subRepo)
	configTask.Start()
	if err := configTask.Execute(ctx); err != nil {
		return fmt.Errorf("failed to sync subscription configs: %w", err)
	}

	orchestrator := newOrchestrator(appCfg, db)

	if appCfg.Once {
		report := orchestrator.RunCycle(ctx)
		if report.Error != "" {
			return errors.New(report.Error)
		}
		if failed := report.Count(tasks.OutcomeFailed); failed > 0 {
			return fmt.Errorf("%d subscriptions failed", failed)
		}
		return nil
	}

	scheduler := tasks.NewScheduler(orchestrator, appCfg.TickInterval)
	scheduler.Start()

	handler := api.NewHandler(subRepo, videoRepo, scheduler, appCfg.Version)
	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      api.NewServer(handler, appCfg.APIAccessKey),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case runErr = <-serverErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP server shutdown error", "error", err)
	}

	scheduler.Stop()
	slog.Info("Shutdown complete")
	return runErr
}

func newOrchestrator(appCfg *cfg.Cfg, db *database.DB) *tasks.Orchestrator {
	httpClient := &http.Client{}

	downloader := ytdlp.NewClient(appCfg.YtdlpPath, appCfg.DownloadFormat)

	var updater library.Updater = library.NoopUpdater{}
	switch appCfg.MediaServer {
	case "plex":
		updater = library.NewPlexUpdater(appCfg.PlexURL, appCfg.PlexToken, httpClient)
	case "jellyfin":
		updater = library.NewJellyfinUpdater(appCfg.JellyfinURL, appCfg.JellyfinAPIKey, httpClient)
	}

	return tasks.NewOrchestrator(tasks.Dependencies{
		Store:    database.NewSyncRepository(db),
		Feeds:    feed.NewFetcher(httpClient, feed.NewParser(), appCfg.UserAgent, appCfg.FeedTimeout),
		Metadata: metadata.NewCoordinator(downloader, appCfg.MetadataWorkers, appCfg.MetadataTimeout),
		Content:  downloader,
		Library:  updater,
	}, tasks.Options{
		UpdateWindow:    appCfg.UpdateWindow,
		MaxRetries:      appCfg.MaxRetries,
		DownloadTimeout: appCfg.DownloadTimeout,
		RefreshTimeout:  appCfg.RefreshTimeout,
		MinFreeSpace:    appCfg.MinFreeSpace,
	})
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/webflasher/firmware-server/internal/api"
	"github.com/webflasher/firmware-server/internal/config"
	"github.com/webflasher/firmware-server/internal/firmware"
	"github.com/webflasher/firmware-server/internal/github"
	"github.com/webflasher/firmware-server/internal/gitstore"
	"github.com/webflasher/firmware-server/internal/middleware"
	"github.com/webflasher/firmware-server/internal/sync"
)

func run(cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting firmware server",
		"firmware_root", cfg.FirmwareRoot,
		"port", cfg.Port,
		"cache_size", cfg.CacheSize,
		"mirror_repo", cfg.RepoURL,
	)

	// The mirror must be in place before the catalog reads from the root
	var store *gitstore.Store
	if cfg.MirrorEnabled() {
		var err error
		store, err = openMirror(cfg, logger)
		if err != nil {
			return err
		}
	}

	catalog, err := firmware.New(firmware.Config{
		Root:      cfg.FirmwareRoot,
		CacheSize: cfg.CacheSize,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize firmware catalog: %w", err)
	}

	chips, err := catalog.ListChips(context.Background())
	if err != nil {
		logger.Warn("failed to list chips", "error", err)
	} else {
		logger.Info("firmware catalog ready", "root", catalog.Root(), "chip_count", len(chips))
	}

	var syncMgr *sync.Manager
	if store != nil {
		syncMgr = sync.NewManager(sync.Config{
			Store:        store,
			Catalog:      catalog,
			PollInterval: cfg.PollInterval,
			Debounce:     10 * time.Second,
			Logger:       logger,
		})
	}

	shutdownTracer, err := middleware.InitTracer(cfg.OTLPEndpoint, api.Version)
	if err != nil {
		logger.Warn("failed to initialize tracer, continuing without tracing", "error", err)
	}

	router := api.NewRouter(api.Config{
		Catalog:            catalog,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		Logger:             logger,
		Mirror:             store,
		SyncManager:        syncMgr,
		WebhookSecret:      cfg.WebhookSecret,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           middleware.Chain(router, logger),
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	syncCtx, syncCancel := context.WithCancel(context.Background())
	defer syncCancel()
	if syncMgr != nil {
		go syncMgr.Start(syncCtx)
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	syncCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	if shutdownTracer != nil {
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown error", "error", err)
		}
	}

	logger.Info("server stopped gracefully")
	return nil
}

func openMirror(cfg *config.Config, logger *slog.Logger) (*gitstore.Store, error) {
	var auth gitstore.Authenticator
	if cfg.GitHubAppEnabled() {
		appAuth, err := github.NewAppAuth(
			cfg.GitHubAppID,
			cfg.GitHubAppPrivateKey,
			cfg.GitHubInstallationID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize GitHub App auth: %w", err)
		}
		auth = appAuth
	}

	store, err := gitstore.New(gitstore.Config{
		RepoURL:   cfg.RepoURL,
		Branch:    cfg.RepoBranch,
		LocalPath: cfg.FirmwareRoot,
		Auth:      auth,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create git store: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.CloneTimeout)
	defer cancel()

	if err := store.Open(ctx); err != nil {
		return nil, fmt.Errorf("failed to prepare firmware repository within %s: %w", cfg.CloneTimeout, err)
	}
	logger.Info("firmware repository ready", "commit", store.CurrentCommit())

	return store, nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/JainamDedhia/Eduthon/internal/auth"
	"github.com/JainamDedhia/Eduthon/internal/cleanup"
	"github.com/JainamDedhia/Eduthon/internal/compress"
	"github.com/JainamDedhia/Eduthon/internal/config"
	"github.com/JainamDedhia/Eduthon/internal/directory"
	"github.com/JainamDedhia/Eduthon/internal/http/rest"
	"github.com/JainamDedhia/Eduthon/internal/logctx"
	"github.com/JainamDedhia/Eduthon/internal/notifier"
	"github.com/JainamDedhia/Eduthon/internal/offline"
	"github.com/JainamDedhia/Eduthon/internal/storage/sqlite"
	"github.com/JainamDedhia/Eduthon/internal/telemetry"
	"github.com/JainamDedhia/Eduthon/internal/upload"
	"github.com/JainamDedhia/Eduthon/internal/viewer"
	"github.com/go-chi/chi/v5"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := slog.New(logctx.NewTraceHandler(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}),
	))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("offline materials service starting...", "log_level", cfg.LogLevel)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Start Database
	database, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		logger.Error("DB error", "err", err)

		return err
	}
	defer database.Close()

	repo := sqlite.NewInstrumentedRecordRepository(database, tel)

	// =========================================================================
	// Start Offline Manager
	scratchDir := cfg.ScratchDir
	if scratchDir == "" {
		scratchDir = filepath.Join(cfg.StorageDir, "scratch")
	}

	manager := offline.NewManager(
		repo,
		compress.NewZstd(),
		[]viewer.Viewer{viewer.Platform{}, viewer.LocationHandler{}},
		cfg.StorageDir,
		scratchDir,
		cfg.MaxParallel,
		tel,
	)
	manager.ViewerGrace = cfg.ViewerGrace
	defer manager.Close()

	// =========================================================================
	// Start Notification
	setupNotificationForManager(ctx, manager, cfg)

	// =========================================================================
	// Start Class Watchers
	dirClient := directory.NewClient(cfg.DirectoryBaseURL, cfg.DirectoryToken)
	setupClassWatchers(ctx, dirClient, manager, cfg)

	if cfg.AuthBaseURL != "" {
		user, err := auth.NewClient(cfg.AuthBaseURL, cfg.AuthToken).CurrentUser(ctx)
		if err != nil {
			logger.Warn("could not resolve signed-in user", "err", err)
		} else {
			logger.Info("signed in", "user_id", user.ID, "display_name", user.DisplayName, "teacher", user.IsTeacher)
		}
	}

	// =========================================================================
	// Start API Service

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	server := setupServer(ctx, manager, dirClient, tel, cfg)

	go func() {
		logger.Info("Initializing API support", "host", cfg.Web.BindAddress)
		serverErrors <- server.ListenAndServe()
	}()

	logger.Info("watching classes for new materials...",
		"classes", cfg.ClassIDs,
		"storage_dir", cfg.StorageDir,
		"poll_interval", cfg.PollInterval.String(),
		"scratch_retention", cfg.ScratchRetention.String(),
	)

	// =========================================================================
	// Start Cleanup
	setupCleanup(ctx, scratchDir, cfg)

	// =========================================================================
	// Wait for shutdown
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("start shutdown")

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		return ctx.Err()
	}
}

func setupNotificationForManager(ctx context.Context, manager *offline.Manager, cfg *config.Config) {
	logger := logctx.LoggerFromContext(ctx)

	var notif notifier.Notifier
	if cfg.WebhookURL != "" {
		notif = &notifier.WebhookNotifier{WebhookURL: cfg.WebhookURL}
	}

	go func() {
		for event := range manager.OnDownloadError {
			logger.Error("material download failed", "material", event.Name, "url", event.URL)

			if notif == nil {
				continue
			}

			if notifyErr := notif.Notify(
				"❌ Download failed for material: " + event.Name,
			); notifyErr != nil {
				logger.Error("failed to send notification", "err", notifyErr)
			}
		}
	}()

	go func() {
		for event := range manager.OnDownloadFinished {
			logger.Info("material saved offline", "class_id", event.ClassID, "material", event.Name)

			if notif == nil {
				continue
			}

			if notifyErr := notif.Notify(
				"✅ Saved offline: " + event.Name + " (" + event.ClassID + ")",
			); notifyErr != nil {
				logger.Error("failed to send notification", "material", event.Name, "err", notifyErr)
			}
		}
	}()
}

// setupClassWatchers starts one directory watcher per configured class and
// prefetches every material a snapshot announces.
func setupClassWatchers(ctx context.Context, svc directory.Service, manager *offline.Manager, cfg *config.Config) {
	logger := logctx.LoggerFromContext(ctx)

	for _, classID := range cfg.ClassIDs {
		w := directory.NewWatcher(svc, classID, cfg.PollInterval)
		w.Watch(ctx)

		go func(classID string) {
			for snap := range w.Snapshots {
				downloaded, err := manager.DownloadAll(ctx, classID, snap.Class.Materials)
				if err != nil {
					logger.Error("failed to prefetch class materials", "class_id", classID, "err", err)
				}

				if downloaded > 0 {
					logger.Info("class materials prefetched", "class_id", classID, "new_files", downloaded)
				}
			}
		}(classID)
	}
}

// setupServer prepares the handlers and services to create the http rest server.
func setupServer(ctx context.Context, manager *offline.Manager, dirClient *directory.Client, tel *telemetry.Telemetry, cfg *config.Config) *http.Server {
	handler := rest.NewMaterialsHandler(manager)

	// Sharing re-publishes offline copies, so it needs hosted storage.
	if cfg.UploadURL != "" {
		handler = handler.WithSharing(upload.NewClient(cfg.UploadURL), dirClient)
	}

	r := chi.NewRouter()
	r.Use(telemetry.RequestID)
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)
	r.Mount("/", handler.Routes())
	r.Method(http.MethodGet, "/metrics", tel.Handler())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      r,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}

func setupCleanup(ctx context.Context, scratchDir string, cfg *config.Config) {
	logger := logctx.LoggerFromContext(ctx)

	go func() {
		cleanupTicker := time.NewTicker(cfg.CleanupInterval)
		defer cleanupTicker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Info("cleanup goroutine shutting down.")

				return
			case <-cleanupTicker.C:
				if err := cleanup.SweepScratch(ctx, scratchDir, cfg.ScratchRetention); err != nil {
					logger.Error("failed to sweep scratch dir", "err", err)
				}
			}
		}
	}()
}

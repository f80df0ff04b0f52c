package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/groblegark/wealthd/internal/config"
	"github.com/groblegark/wealthd/internal/events"
	"github.com/groblegark/wealthd/internal/pricing"
	"github.com/groblegark/wealthd/internal/projection"
	"github.com/groblegark/wealthd/internal/recon"
	"github.com/groblegark/wealthd/internal/server"
	"github.com/groblegark/wealthd/internal/snapshot"
	"github.com/groblegark/wealthd/internal/store/postgres"
	"github.com/groblegark/wealthd/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the wealthd server and job executor",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		store, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return err
		}

		var publisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				store.Close()
				return err
			}
			publisher = pub
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = &events.NoopPublisher{}
			logger.Info("events disabled (WEALTHD_NATS_URL not set)")
		}

		// Reconciliation pipeline: reconciler applies events, the
		// projection engine recomputes read views after each mutation.
		engine := projection.NewEngine(store, publisher, logger)
		reconciler := recon.New(store, publisher, logger)
		reconciler.SetRecomputer(engine)

		// Job executor.
		handlers := worker.NewHandlers(store, reconciler, pricing.NewStaticSource(), engine, publisher, cfg.Currency, logger)
		executor := worker.NewExecutor(store, publisher, worker.Options{
			PollInterval: cfg.PollInterval,
			LockTimeout:  cfg.LockTimeout,
			MaxAttempts:  cfg.MaxAttempts,
		}, logger)
		handlers.RegisterAll(executor)
		executor.Start()
		logger.Info("job executor started", "poll_interval", cfg.PollInterval, "lock_timeout", cfg.LockTimeout)

		// Snapshot scheduler, when a destination is configured.
		var scheduler *snapshot.Scheduler
		if cfg.SnapshotInterval > 0 && cfg.SnapshotS3Bucket != "" {
			s3Dest, err := snapshot.NewS3Destination(
				context.Background(),
				cfg.SnapshotS3Bucket,
				cfg.SnapshotS3Key,
				cfg.SnapshotS3Region,
				cfg.SnapshotS3Endpoint,
			)
			if err != nil {
				logger.Error("failed to create S3 snapshot destination", "err", err)
			} else {
				scheduler = snapshot.NewScheduler(store, []snapshot.Destination{s3Dest}, publisher, cfg.SnapshotInterval, logger)
				scheduler.Start()
				logger.Info("snapshot scheduler started", "interval", cfg.SnapshotInterval, "destination", s3Dest.Name())
			}
		}

		// HTTP server.
		wealthServer := server.New(store, publisher, logger)
		httpServer := &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: wealthServer.NewHTTPHandler(cfg.AuthToken),
		}

		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		logger.Info("wealthd started", "http_addr", cfg.HTTPAddr, "currency", cfg.Currency)

		// Wait for SIGINT or SIGTERM.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		// Graceful shutdown.
		executor.Stop()
		logger.Info("job executor stopped")

		if scheduler != nil {
			scheduler.Stop()
			logger.Info("snapshot scheduler stopped")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := store.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}

package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/groblegark/wealthd/internal/config"
	"github.com/groblegark/wealthd/internal/events"
	"github.com/groblegark/wealthd/internal/pricing"
	"github.com/groblegark/wealthd/internal/projection"
	"github.com/groblegark/wealthd/internal/recon"
	"github.com/groblegark/wealthd/internal/store/postgres"
	"github.com/groblegark/wealthd/internal/worker"
)

var workCmd = &cobra.Command{
	Use:     "work",
	Short:   "Run a standalone job executor without the HTTP server",
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
		} else {
			publisher = &events.NoopPublisher{}
		}

		engine := projection.NewEngine(store, publisher, logger)
		reconciler := recon.New(store, publisher, logger)
		reconciler.SetRecomputer(engine)

		handlers := worker.NewHandlers(store, reconciler, pricing.NewStaticSource(), engine, publisher, cfg.Currency, logger)
		executor := worker.NewExecutor(store, publisher, worker.Options{
			PollInterval: cfg.PollInterval,
			LockTimeout:  cfg.LockTimeout,
			MaxAttempts:  cfg.MaxAttempts,
		}, logger)
		handlers.RegisterAll(executor)
		executor.Start()
		logger.Info("job executor started", "poll_interval", cfg.PollInterval, "lock_timeout", cfg.LockTimeout)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		executor.Stop()
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

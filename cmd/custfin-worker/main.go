package main

import (
	"context"
	"errors"
	"os"
	"time"

	"custfin/internal/backend"
	"custfin/internal/cli"
	applog "custfin/internal/log"
	"custfin/internal/services"
	"custfin/internal/sheets"
	gsheet "custfin/internal/sheets/google"
	memsheets "custfin/internal/sheets/memory"
	"custfin/internal/worker"
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig(applog.ComponentWorker)
	logger.Info("Starting custfin-worker")

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required by the worker")
		os.Exit(1)
	}
	if cfg.DataBackend == string(backend.MemoryBackend) {
		logger.Warn("Worker runs on its own in-memory store; compensations will not reach the API process")
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger.Logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	if res.Events == nil {
		logger.Error("AMQP client unavailable, cannot consume finance events")
		_ = res.Cleanup()
		os.Exit(1)
	}

	var (
		journal  sheets.JournalWriter
		exporter sheets.OverviewExporter
	)
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.NewFromEnv(context.Background(), cfg.Location())
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			_ = res.Cleanup()
			os.Exit(1)
		}
		journal, exporter = client, client
		logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		mem := memsheets.New()
		journal, exporter = mem, mem
		logger.Info("Google Sheets disabled - journal kept in memory")
	}

	eventWorker := worker.NewEventWorker(res.Store, journal, res.Service)
	processor := services.NewReconcileProcessor(res.Service, exporter, services.ReconcileProcessorConfig{
		Interval: cfg.ReconcileInterval,
		Apply:    cfg.ReconcileApply,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		logger.Info("Shutting down worker...")
		if err := processor.Stop(shutdownCtx); err != nil {
			logger.Error("Reconcile processor stop error", "error", err)
		}
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	})

	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start reconcile processor", "error", err)
		os.Exit(1)
	}

	go func() {
		err := res.Events.ConsumeEvents(ctx, eventWorker.HandleEvent)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Event consumption failed", "error", err)
			_ = processor.Stop(context.Background())
			_ = res.Cleanup()
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}

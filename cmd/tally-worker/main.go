package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"tally/internal/amqp"
	"tally/internal/cli"
	"tally/internal/services"
	"tally/internal/sheets"
	gsheet "tally/internal/sheets/google"
	mem "tally/internal/sheets/memory"
	"tally/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()

	logger.Info("Starting tally-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	store := cli.InitStore(logger, cfg.SQLiteDBPath)
	defer store.Close()

	var writer sheets.ReportWriter
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.NewFromEnv(context.Background())
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		writer = client
		logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		writer = mem.New()
		logger.Info("Google Sheets disabled - exporting to memory only")
	}

	reports := services.NewReportService(store)
	exportWorker := worker.NewExportWorker(store, reports, writer)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	// Export the current month once on startup so a restart catches up
	// on anything missed while the worker was down.
	now := time.Now()
	if err := exportWorker.ExportMonth(ctx, now.Year(), int(now.Month())); err != nil {
		logger.Error("Startup export failed", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return amqp.ConsumeWithReconnect(gctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, exportWorker.HandleEvent)
	})
	g.Go(func() error {
		return exportWorker.RunPeriodic(gctx, cfg.ExportInterval)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker failed", "error", err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}

package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"mealtracker/internal/amqp"
	"mealtracker/internal/cli"
	"mealtracker/internal/config"
	"mealtracker/internal/log"
	gsheet "mealtracker/internal/sheets/google"
	"mealtracker/internal/storage"
	"mealtracker/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL")).WithComponent(log.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).ValidateWorker)

	logger.Info("Starting mealtracker-worker", log.FieldOperation, log.OpStartup)

	sqliteRepo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer sqliteRepo.Close()

	ledger, err := gsheet.New(context.Background(), cfg.GoogleSpreadsheetID, cfg.GoogleSheetName)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", "error", err)
		os.Exit(1)
	}
	logger.Info("Google Sheets ledger ready", "spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	syncWorker := worker.NewSyncWorker(sqliteRepo, ledger, cfg.SyncBatchSize)
	syncWorker.SetLookbackDays(cfg.SyncLookbackDays)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)
	ctx = log.WithContext(ctx, logger)

	// Catch up on anything published while the worker was down.
	if err := syncWorker.ResyncRecent(ctx); err != nil {
		logger.Error("Startup resync failed", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return amqpClient.Consume(gctx, syncWorker)
	})
	g.Go(func() error {
		return syncWorker.RunPeriodicResync(gctx, cfg.SyncInterval)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
	<-done
	logger.Info("Worker shutdown complete")
}

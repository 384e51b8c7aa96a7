package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"bilancio/internal/amqp"
	"bilancio/internal/cli"
	"bilancio/internal/sheets"
	gsheet "bilancio/internal/sheets/google"
	memsheet "bilancio/internal/sheets/memory"
	"bilancio/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger("bilancio-worker")

	logger.Info("Starting bilancio-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	// Report sink: the Google spreadsheet when configured, an in-memory
	// report otherwise so the queue still drains during local development.
	var (
		writer  sheets.ReportWriter
		deleter sheets.ReportDeleter
	)
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.New(context.Background(), gsheet.Options{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			ReportSheetBase: cfg.GoogleSheetName,
			CredentialsJSON: cfg.GoogleCredentialsJSON,
			CredentialsFile: cfg.GoogleCredentialsFile,
			OAuthClientFile: cfg.GoogleOAuthClientFile,
			OAuthTokenFile:  cfg.GoogleOAuthTokenFile,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		writer, deleter = client, client
		logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)
	} else {
		report := memsheet.New()
		writer, deleter = report, report
		logger.Info("No spreadsheet configured, exporting to in-memory report")
	}

	exporter := worker.NewExportWorker(repo, writer, deleter, cfg.ExportBatchSize)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	// Catch rows whose change events were lost while the worker was down.
	if err := exporter.StartupCheck(ctx); err != nil {
		logger.Error("Startup export check failed", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	// Change events wake the worker up as writes happen.
	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Warn("Failed to initialize AMQP client, relying on periodic scans only", "error", err)
	} else {
		defer amqpClient.Close()
		g.Go(func() error {
			return amqpClient.ConsumeEntityChanges(gctx, func(msg *amqp.EntityChangeMessage) error {
				return exporter.HandleChangeEvent(gctx, msg)
			})
		})
	}

	// The periodic scan is the safety net for missed events.
	g.Go(func() error {
		return exporter.Run(gctx, cfg.ExportInterval)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}

package main

import (
	"context"
	"os"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/cli"
	"bilancio/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger("bilancio-recurring")

	logger.Info("Starting bilancio-recurring")

	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	// Materialized expenses are announced on the bus like manual entries,
	// so the export worker picks them up. Without AMQP the periodic export
	// scan still finds them in the queue.
	var bus services.EventPublisher
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		var err error
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without change events", "error", err)
		} else {
			defer amqpClient.Close()
			bus = amqpClient
		}
	}

	ledger := services.NewLedger(repo, bus)
	processor := services.NewRecurringProcessor(repo, ledger, services.RecurringProcessorConfig{
		Interval: cfg.RecurringInterval,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := processor.Stop(stopCtx); err != nil {
			logger.Error("Processor stop failed", "error", err)
		}
	})

	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start recurring processor", "error", err)
		os.Exit(1)
	}
	logger.Info("Recurring expense processor running", "interval", cfg.RecurringInterval, "sqlite_db", cfg.SQLiteDBPath)

	cli.WaitForShutdown(ctx, done)
	logger.Info("Recurring processor shutdown complete")
}

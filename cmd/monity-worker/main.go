// Command monity-worker mirrors the ledgers into SQLite and, when configured,
// a Google spreadsheet. It resyncs a ledger on every change event and all of
// them periodically.
package main

import (
	"flag"
	"os"

	"monity/internal/amqp"
	"monity/internal/cli"
	applog "monity/internal/log"
	"monity/internal/sheets"
	gsheet "monity/internal/sheets/google"
	"monity/internal/storage"
	"monity/internal/worker"
)

func main() {
	configFile := flag.String("config", "", "configuration file (toml, yaml or json)")
	flag.Parse()

	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig(*configFile)
	if err != nil {
		cli.Fatal(applog.New(applog.DefaultConfig()), "Configuration validation failed", err)
	}
	logger := cli.SetupLogger(cfg.LogLevel).WithComponent(applog.ComponentWorker)
	logger.Info("Starting monity-worker", applog.FieldPath, cfg.LedgerDir)

	// The worker only reads the ledgers, so its service publishes nothing
	svcCfg := *cfg
	svcCfg.AMQPURL = ""
	svc, closeService, err := cli.BuildService(&svcCfg, logger)
	if err != nil {
		cli.Fatal(logger, "Failed to build ledger service", err)
	}
	defer closeService()

	mirror, err := storage.OpenMirror(cfg.SQLiteDBPath, logger)
	if err != nil {
		cli.Fatal(logger, "Failed to open SQLite mirror", err)
	}
	defer mirror.Close()

	ctx, cancel := cli.GracefulShutdown(logger, nil)
	defer cancel()

	// Google Sheets export is optional
	var exporter sheets.Exporter
	if sc, ok := cfg.SheetsConfig(); ok {
		client, err := gsheet.New(ctx, sc, logger)
		if err != nil {
			cli.Fatal(logger, "Failed to initialize Google Sheets client", err)
		}
		exporter = client
		logger.Info("Google Sheets export enabled", "spreadsheet_id", sc.SpreadsheetID)
	} else {
		logger.Info("Google Sheets export disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	// Without a broker the worker relies on the periodic resync alone
	var consumer worker.Consumer
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			cli.Fatal(logger, "Failed to initialize AMQP client", err)
		}
		defer client.Close()
		consumer = client
	} else {
		logger.Info("AMQP disabled - periodic resync only", "interval", cfg.SyncInterval)
	}

	w := worker.NewMirrorWorker(svc, mirror, exporter, cfg.SyncInterval, logger)
	if err := w.Run(ctx, consumer); err != nil {
		logger.Error("Worker stopped", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker shut down gracefully")
}

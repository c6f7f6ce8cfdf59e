package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"banyg/internal/config"
	"banyg/internal/events"
	sheetsexport "banyg/internal/export/sheets"
	"banyg/internal/log"
	"banyg/internal/storage"
)

const heartbeatInterval = 5 * time.Minute

// banyg-worker mirrors committed ledger writes to Google Sheets. It consumes
// the event queue, loads each transaction from the shared database and
// appends it to the configured spreadsheet.
func main() {
	_ = godotenv.Load()

	logger := log.New(log.DefaultConfig()).WithComponent(log.ComponentWorker)
	log.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	if !cfg.EventsEnabled() {
		logger.Error("worker requires AMQP_URL to be set")
		os.Exit(1)
	}
	if !cfg.SheetsEnabled() {
		logger.Error("worker requires SHEETS_SPREADSHEET_ID to be set")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// The worker shares the database file with the app; migrations already
	// ran there, so no backup manager is wired here.
	store, err := storage.Open(cfg.DBPath, nil, logger)
	if err != nil {
		logger.Error("failed to open store", log.FieldError, err, log.FieldPath, cfg.DBPath)
		os.Exit(1)
	}
	defer store.Close()

	exporter, err := sheetsexport.New(ctx, sheetsexport.Options{
		SpreadsheetID:   cfg.SheetsSpreadsheetID,
		SheetName:       cfg.SheetsSheetName,
		CredentialsJSON: []byte(cfg.SheetsCredentialsJSON),
		CredentialsFile: cfg.SheetsCredentialsFile,
	}, logger)
	if err != nil {
		logger.Error("failed to initialize sheets exporter", log.FieldError, err)
		os.Exit(1)
	}

	eventsClient, err := events.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("failed to connect to the event queue", log.FieldError, err)
		os.Exit(1)
	}
	defer eventsClient.Close()

	handler := func(event *events.LedgerEvent) error {
		switch event.Kind {
		case events.KindTransactionSaved:
			t, err := store.GetTransaction(ctx, event.TransactionID)
			if err != nil {
				return err
			}
			return exporter.AppendTransaction(ctx, t)
		case events.KindTransactionDeleted, events.KindImportCommitted:
			// Deletions and bulk imports are not mirrored row by row; the
			// spreadsheet is an append-only journal.
			logger.Info("skipping non-mirrored event", "kind", event.Kind)
			return nil
		default:
			logger.Warn("unknown event kind", "kind", event.Kind)
			return nil
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return eventsClient.Consume(gctx, handler)
	})

	g.Go(func() error {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				pending, err := store.ListPendingTransactions(gctx)
				if err != nil {
					logger.Warn("heartbeat query failed", log.FieldError, err)
					continue
				}
				logger.Info("worker heartbeat", log.FieldRows, len(pending))
			}
		}
	})

	logger.Info("worker started",
		"queue", cfg.AMQPQueue,
		"spreadsheet_id", cfg.SheetsSpreadsheetID)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("worker shut down")
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"banyg/internal/config"
	"banyg/internal/core"
	"banyg/internal/events"
	"banyg/internal/importer"
	"banyg/internal/log"
	"banyg/internal/services"
	"banyg/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production)
	_ = godotenv.Load()

	logger := log.New(log.DefaultConfig())
	log.SetDefault(logger)

	importFile := flag.String("import", "", "CSV file to import")
	importAccount := flag.String("account", "", "account id for -import")
	budgetsPeriod := flag.String("budgets", "", "print the budget report for a period (YYYY-MM)")
	watchFeeds := flag.Bool("watch", false, "follow the account and pending feeds until interrupted")
	flag.Parse()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}

	backups, err := storage.NewBackupManager(cfg.BackupDir)
	if err != nil {
		logger.Error("failed to prepare backup directory", log.FieldError, err)
		os.Exit(1)
	}

	store, err := storage.Open(cfg.DBPath, backups, logger)
	if err != nil {
		logger.Error("failed to open store", log.FieldError, err, log.FieldPath, cfg.DBPath)
		os.Exit(1)
	}

	var eventsClient *events.Client
	if cfg.EventsEnabled() {
		eventsClient, err = events.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			// Local-first: the ledger works without a broker.
			logger.Warn("event relay unavailable, continuing without it", log.FieldError, err)
		}
	}

	svc := services.NewLedgerService(store, eventsClient, logger)
	defer svc.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch {
	case *importFile != "":
		err = runImport(ctx, svc, cfg, *importFile, *importAccount)
	case *budgetsPeriod != "":
		err = runBudgetReport(ctx, svc, *budgetsPeriod)
	case *watchFeeds:
		err = runWatch(ctx, store, logger)
	default:
		err = runAccountSummary(ctx, store)
	}
	if err != nil {
		logger.Error("command failed", log.FieldError, err)
		os.Exit(1)
	}
}

func runImport(ctx context.Context, svc *services.LedgerService, cfg *config.Config, path, accountID string) error {
	if accountID == "" {
		return fmt.Errorf("-import requires -account")
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open import file: %w", err)
	}
	defer f.Close()

	header, _, err := importer.ReadRecords(f)
	if err != nil {
		return err
	}
	mapping, ok := importer.DetectMapping(header)
	if !ok {
		return fmt.Errorf("cannot detect column mapping from header %v", header)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return fmt.Errorf("rewind import file: %w", err)
	}

	summary, err := svc.ImportCSV(ctx, accountID, f, mapping, cfg.ImportMaxRows)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d rows (%d duplicates skipped, %d errors, %d deselected)\n",
		summary.Imported, summary.Duplicates, summary.Errors, summary.Deselected)
	return nil
}

func runBudgetReport(ctx context.Context, svc *services.LedgerService, periodKey string) error {
	period, err := core.PeriodFromKey(periodKey)
	if err != nil {
		return err
	}
	report, err := svc.BudgetReport(ctx, period)
	if err != nil {
		return err
	}
	if len(report) == 0 {
		fmt.Printf("no budgets set for %s\n", period)
		return nil
	}
	for _, status := range report {
		budgeted := core.NewMoney(status.Budget.AmountMinor, status.Budget.Currency)
		spent := core.NewMoney(status.SpentMinor, status.Budget.Currency)
		remaining := core.NewMoney(status.RemainingMinor, status.Budget.Currency)
		fmt.Printf("%s: budget %s, spent %s, remaining %s\n",
			status.Budget.CategoryID, budgeted.Format(), spent.Format(), remaining.Format())
	}
	return nil
}

func runWatch(ctx context.Context, store *storage.Store, logger *log.Logger) error {
	accounts, err := store.WatchActiveAccounts(ctx)
	if err != nil {
		return err
	}
	pending, err := store.WatchPendingTransactions(ctx)
	if err != nil {
		return err
	}

	logger.Info("watching ledger feeds, press Ctrl-C to stop")
	for {
		select {
		case <-ctx.Done():
			return nil
		case snapshot, ok := <-accounts:
			if !ok {
				return nil
			}
			for _, a := range snapshot {
				fmt.Printf("account %s: %s\n", a.Name, a.CurrentBalance.Format())
			}
		case snapshot, ok := <-pending:
			if !ok {
				return nil
			}
			fmt.Printf("%d pending transactions\n", len(snapshot))
		}
	}
}

func runAccountSummary(ctx context.Context, store *storage.Store) error {
	accounts, err := store.ListAccounts(ctx)
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		fmt.Println("no accounts yet")
		return nil
	}
	for _, a := range accounts {
		marker := ""
		if a.IsArchived {
			marker = " (archived)"
		}
		fmt.Printf("%s [%s]%s: %s\n", a.Name, a.Type, marker, a.CurrentBalance.Format())
	}
	return nil
}

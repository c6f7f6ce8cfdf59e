// Package services orchestrates ledger operations across the store, the
// optional event relay and the read-side caches.
package services

import (
	"context"
	"fmt"
	"io"
	"time"

	"banyg/internal/cache"
	"banyg/internal/core"
	"banyg/internal/events"
	"banyg/internal/importer"
	"banyg/internal/log"
	"banyg/internal/storage"
)

const (
	spendCacheSize = 256
	spendCacheTTL  = 5 * time.Minute
)

// LedgerService is the write path of the application. Every mutation goes
// through the store first; event publishing is best-effort and never fails
// the local write.
type LedgerService struct {
	store  *storage.Store
	events *events.Client
	logger *log.Logger

	// spending aggregates keyed by "<categoryID>|<period>"
	spendCache *cache.LRU[int64]
}

func NewLedgerService(store *storage.Store, eventsClient *events.Client, logger *log.Logger) *LedgerService {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &LedgerService{
		store:      store,
		events:     eventsClient,
		logger:     logger.WithComponent(log.ComponentLedger),
		spendCache: cache.NewLRU[int64](spendCacheSize, spendCacheTTL),
	}
}

// SaveTransaction writes a transaction locally and relays the event.
func (s *LedgerService) SaveTransaction(ctx context.Context, t core.Transaction) error {
	var previous core.Transaction
	if existing, err := s.store.GetTransaction(ctx, t.ID); err == nil {
		previous = existing
	}

	if err := s.store.SaveTransaction(ctx, t); err != nil {
		return err
	}

	s.invalidateSpending(previous)
	s.invalidateSpending(t)
	s.publish(ctx, &events.LedgerEvent{
		Kind:          events.KindTransactionSaved,
		TransactionID: t.ID,
		AccountID:     t.AccountID,
		AmountMinor:   t.Amount.Minor,
		Currency:      t.Amount.Currency.Code,
		OccurredAt:    time.Now().UTC(),
	})
	return nil
}

// DeleteTransaction removes a transaction locally and relays the event.
func (s *LedgerService) DeleteTransaction(ctx context.Context, id string) error {
	t, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteTransaction(ctx, id); err != nil {
		return err
	}

	s.invalidateSpending(t)
	s.publish(ctx, &events.LedgerEvent{
		Kind:          events.KindTransactionDeleted,
		TransactionID: t.ID,
		AccountID:     t.AccountID,
		AmountMinor:   t.Amount.Minor,
		Currency:      t.Amount.Currency.Code,
		OccurredAt:    time.Now().UTC(),
	})
	return nil
}

// Transfer moves money between two accounts as a linked pair of postings.
func (s *LedgerService) Transfer(ctx context.Context, fromAccountID, toAccountID string, amount core.Money, date core.Date, memo string) (string, error) {
	out, in, err := core.NewTransferPair(fromAccountID, toAccountID, amount, date, memo)
	if err != nil {
		return "", err
	}
	if err := s.store.SaveTransferPair(ctx, out, in); err != nil {
		return "", err
	}

	s.publish(ctx, &events.LedgerEvent{
		Kind:          events.KindTransactionSaved,
		TransactionID: out.ID,
		AccountID:     out.AccountID,
		AmountMinor:   out.Amount.Minor,
		Currency:      out.Amount.Currency.Code,
		OccurredAt:    time.Now().UTC(),
	})
	return out.TransferID, nil
}

// ImportCSV runs the full import flow in one shot: stage, preview, commit.
// Duplicate and unparseable rows stay out of the batch.
func (s *LedgerService) ImportCSV(ctx context.Context, accountID string, r io.Reader, mapping importer.ColumnMapping, maxRows int) (importer.Summary, error) {
	session, err := importer.NewSession(ctx, s.store, s.logger, accountID, r, mapping, maxRows)
	if err != nil {
		return importer.Summary{}, err
	}
	if _, err := session.Preview(ctx); err != nil {
		return importer.Summary{}, err
	}
	summary, err := session.Commit(ctx)
	if err != nil {
		return importer.Summary{}, err
	}

	// Imported rows may touch any category's aggregates.
	s.spendCache.Purge()
	s.publish(ctx, &events.LedgerEvent{
		Kind:       events.KindImportCommitted,
		AccountID:  accountID,
		OccurredAt: time.Now().UTC(),
	})
	return summary, nil
}

// BudgetStatus pairs a budget with what was actually spent against it.
// Spending is negative for outflows; Remaining is the budget less the
// magnitude of net spending.
type BudgetStatus struct {
	Budget         core.Budget
	SpentMinor     int64
	RemainingMinor int64
}

// BudgetReport returns the status of every budget in a period.
func (s *LedgerService) BudgetReport(ctx context.Context, period core.Period) ([]BudgetStatus, error) {
	budgets, err := s.store.ListBudgets(ctx, period)
	if err != nil {
		return nil, err
	}

	statuses := make([]BudgetStatus, 0, len(budgets))
	for _, b := range budgets {
		spent, err := s.spending(ctx, b.CategoryID, period)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, BudgetStatus{
			Budget:         b,
			SpentMinor:     spent,
			RemainingMinor: b.AmountMinor + spent,
		})
	}
	return statuses, nil
}

// SetBudget validates and stores a budget, refreshing its cached aggregate.
func (s *LedgerService) SetBudget(ctx context.Context, b core.Budget) error {
	if err := s.store.UpsertBudget(ctx, b); err != nil {
		return err
	}
	s.spendCache.Delete(spendKey(b.CategoryID, b.Period))
	return nil
}

func spendKey(categoryID string, period core.Period) string {
	return categoryID + "|" + period.Key()
}

func (s *LedgerService) spending(ctx context.Context, categoryID string, period core.Period) (int64, error) {
	key := spendKey(categoryID, period)
	if spent, ok := s.spendCache.Get(key); ok {
		return spent, nil
	}
	spent, err := s.store.BudgetSpending(ctx, categoryID, period)
	if err != nil {
		return 0, err
	}
	s.spendCache.Set(key, spent)
	return spent, nil
}

// invalidateSpending drops the cached aggregates of every category a
// transaction touches, across all periods.
func (s *LedgerService) invalidateSpending(t core.Transaction) {
	if t.CategoryID != "" {
		s.spendCache.DeletePrefix(t.CategoryID + "|")
	}
	for _, split := range t.Splits {
		s.spendCache.DeletePrefix(split.CategoryID + "|")
	}
}

func (s *LedgerService) publish(ctx context.Context, event *events.LedgerEvent) {
	if err := s.events.Publish(ctx, event); err != nil {
		// The local write already succeeded; a relay failure is not fatal.
		s.logger.ErrorContext(ctx, "failed to publish ledger event",
			log.FieldError, err, "kind", event.Kind)
	}
}

// Close releases the store and the event relay.
func (s *LedgerService) Close() error {
	var errs []error

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if err := s.events.Close(); err != nil {
		errs = append(errs, fmt.Errorf("events: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %v", errs)
	}
	return nil
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"banyg/internal/core"
	"banyg/internal/log"
)

const budgetColumns = `category_id, period, amount_minor, currency, created_at, updated_at`

// UpsertBudget sets the budget for one category and period, inserting or
// overwriting in place.
func (s *Store) UpsertBudget(ctx context.Context, b core.Budget) error {
	if err := b.Validate(); err != nil {
		return err
	}
	row := budgetToRow(b)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO budgets (`+budgetColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(category_id, period) DO UPDATE SET
			amount_minor = excluded.amount_minor,
			currency = excluded.currency,
			updated_at = excluded.updated_at`,
		row.CategoryID, row.Period, row.AmountMinor, row.Currency, row.CreatedAt, row.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert budget: %w", err)
	}
	s.logger.InfoContext(ctx, "budget set",
		log.FieldCategoryID, b.CategoryID,
		log.FieldAmountMinor, b.AmountMinor,
		log.FieldCurrency, b.Currency.Code)
	return nil
}

// GetBudget loads the budget for one category and period.
func (s *Store) GetBudget(ctx context.Context, categoryID string, period core.Period) (core.Budget, error) {
	var row budgetRow
	err := s.db.QueryRowContext(ctx, `
		SELECT `+budgetColumns+` FROM budgets WHERE category_id = ? AND period = ?`,
		categoryID, period.Key()).Scan(
		&row.CategoryID, &row.Period, &row.AmountMinor, &row.Currency, &row.CreatedAt, &row.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Budget{}, fmt.Errorf("budget for %s in %s: %w", categoryID, period, core.ErrNotFound)
	}
	if err != nil {
		return core.Budget{}, fmt.Errorf("query budget: %w", err)
	}
	return row.toDomain()
}

// ListBudgets returns every budget set for a period, ordered by category.
func (s *Store) ListBudgets(ctx context.Context, period core.Period) ([]core.Budget, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+budgetColumns+` FROM budgets WHERE period = ? ORDER BY category_id`,
		period.Key())
	if err != nil {
		return nil, fmt.Errorf("query budgets: %w", err)
	}
	defer rows.Close()

	var budgets []core.Budget
	for rows.Next() {
		var row budgetRow
		if err := rows.Scan(&row.CategoryID, &row.Period, &row.AmountMinor, &row.Currency,
			&row.CreatedAt, &row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		b, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		budgets = append(budgets, b)
	}
	return budgets, rows.Err()
}

// DeleteBudget removes the budget for one category and period.
func (s *Store) DeleteBudget(ctx context.Context, categoryID string, period core.Period) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM budgets WHERE category_id = ? AND period = ?`, categoryID, period.Key())
	if err != nil {
		return fmt.Errorf("delete budget: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("budget for %s in %s: %w", categoryID, period, core.ErrNotFound)
	}
	return nil
}

// BudgetSpending sums what was actually spent against a category in a
// period. Two sources count: split lines pointing at the category, and
// uncategorized-at-line-level transactions whose own category matches. Void
// transactions contribute nothing from either source.
func (s *Store) BudgetSpending(ctx context.Context, categoryID string, period core.Period) (int64, error) {
	firstKey, lastKey := periodKeyRange(period)

	var fromSplits int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(sp.amount_minor), 0)
		FROM splits sp
		JOIN transactions t ON t.id = sp.transaction_id
		WHERE sp.category_id = ? AND t.status != ? AND t.posted_on BETWEEN ? AND ?`,
		categoryID, string(core.StatusVoid), firstKey, lastKey).Scan(&fromSplits)
	if err != nil {
		return 0, fmt.Errorf("sum split spending: %w", err)
	}

	var fromTransactions int64
	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(t.amount_minor), 0)
		FROM transactions t
		WHERE t.category_id = ? AND t.status != ?
			AND t.posted_on BETWEEN ? AND ?
			AND NOT EXISTS (SELECT 1 FROM splits sp WHERE sp.transaction_id = t.id)`,
		categoryID, string(core.StatusVoid), firstKey, lastKey).Scan(&fromTransactions)
	if err != nil {
		return 0, fmt.Errorf("sum transaction spending: %w", err)
	}

	return fromSplits + fromTransactions, nil
}

// periodKeyRange returns the inclusive posted_on key bounds of a calendar
// month.
func periodKeyRange(p core.Period) (int64, int64) {
	first := core.Date{Year: p.Year, Month: p.Month, Day: 1}
	lastDay := time.Date(p.Year, time.Month(p.Month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
	last := core.Date{Year: p.Year, Month: p.Month, Day: lastDay}
	return first.Key(), last.Key()
}

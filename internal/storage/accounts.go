package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"banyg/internal/core"
	"banyg/internal/log"
)

const accountColumns = `id, name, type, currency, opening_balance_minor, current_balance_minor, is_archived, created_at, updated_at`

// CreateAccount inserts a new account.
func (s *Store) CreateAccount(ctx context.Context, a core.Account) error {
	if err := a.Validate(); err != nil {
		return err
	}
	row := accountToRow(a)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.Name, row.Type, row.Currency, row.OpeningMinor, row.CurrentMinor,
		row.IsArchived, row.CreatedAt, row.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}

	s.logger.InfoContext(ctx, "account created",
		log.FieldAccountID, a.ID, log.FieldCurrency, a.Currency.Code)
	s.notifyChanges(ctx)
	return nil
}

// GetAccount loads one account by id.
func (s *Store) GetAccount(ctx context.Context, id string) (core.Account, error) {
	var row accountRow
	err := s.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id).Scan(
		&row.ID, &row.Name, &row.Type, &row.Currency, &row.OpeningMinor, &row.CurrentMinor,
		&row.IsArchived, &row.CreatedAt, &row.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, fmt.Errorf("account %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("query account: %w", err)
	}
	return row.toDomain()
}

// ListAccounts returns every account, archived included, ordered by name.
func (s *Store) ListAccounts(ctx context.Context) ([]core.Account, error) {
	return s.listAccounts(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY name`)
}

// ListActiveAccounts returns non-archived accounts ordered by name. This is
// the query behind the accounts feed.
func (s *Store) ListActiveAccounts(ctx context.Context) ([]core.Account, error) {
	return s.listAccounts(ctx, `SELECT `+accountColumns+` FROM accounts WHERE is_archived = 0 ORDER BY name`)
}

func (s *Store) listAccounts(ctx context.Context, query string) ([]core.Account, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []core.Account
	for rows.Next() {
		var row accountRow
		if err := rows.Scan(&row.ID, &row.Name, &row.Type, &row.Currency, &row.OpeningMinor,
			&row.CurrentMinor, &row.IsArchived, &row.CreatedAt, &row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		a, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// UpdateAccount rewrites the mutable account fields (name, type, archived).
// Balances are only ever touched by transaction writes.
func (s *Store) UpdateAccount(ctx context.Context, a core.Account) error {
	if err := a.Validate(); err != nil {
		return err
	}
	row := accountToRow(a)
	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET name = ?, type = ?, is_archived = ?, updated_at = ?
		WHERE id = ?`,
		row.Name, row.Type, row.IsArchived, row.UpdatedAt, row.ID)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("account %s: %w", a.ID, core.ErrNotFound)
	}
	s.notifyChanges(ctx)
	return nil
}

// SetAccountArchived toggles the archived flag.
func (s *Store) SetAccountArchived(ctx context.Context, id string, archived bool, updatedAt int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET is_archived = ?, updated_at = ? WHERE id = ?`,
		boolToInt(archived), updatedAt, id)
	if err != nil {
		return fmt.Errorf("archive account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("account %s: %w", id, core.ErrNotFound)
	}
	s.notifyChanges(ctx)
	return nil
}

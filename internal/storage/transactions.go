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

const transactionColumns = `id, account_id, posted_on, amount_minor, currency, merchant, memo, category_id, status, cleared_at, transfer_id, created_at, updated_at`

// PostingKey identifies a transaction for duplicate detection during CSV
// import: posting date, signed amount and raw merchant text.
type PostingKey struct {
	DateKey     int64
	AmountMinor int64
	Merchant    string
}

// SaveTransaction writes a transaction and its splits as one atomic unit.
//
// The split invariant is checked before any row is written. Split rows are
// fully replaced: whatever was stored before, the table ends with exactly
// the splits carried by t. The owning account's balance moves by the
// transaction's signed effective amount in the same unit, reversing any
// previous posting of the same id, so a crash mid-write can never leave
// balances or splits inconsistent.
func (s *Store) SaveTransaction(ctx context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := saveTransactionTx(ctx, tx, t); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	s.logger.InfoContext(ctx, "transaction saved",
		log.FieldTransactionID, t.ID,
		log.FieldAccountID, t.AccountID,
		log.FieldAmountMinor, t.Amount.Minor,
		log.FieldCurrency, t.Amount.Currency.Code)
	s.notifyChanges(ctx)
	return nil
}

// SaveTransferPair writes both legs of a transfer and both balance updates
// in one atomic unit.
func (s *Store) SaveTransferPair(ctx context.Context, out, in core.Transaction) error {
	if err := core.ValidateTransferPair(out, in); err != nil {
		return err
	}
	if err := out.Validate(); err != nil {
		return err
	}
	if err := in.Validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transfer: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := saveTransactionTx(ctx, tx, out); err != nil {
		return err
	}
	if err := saveTransactionTx(ctx, tx, in); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transfer: %w", err)
	}

	s.logger.InfoContext(ctx, "transfer saved",
		log.FieldTransactionID, out.ID,
		log.FieldAmountMinor, in.Amount.Minor,
		log.FieldCurrency, in.Amount.Currency.Code)
	s.notifyChanges(ctx)
	return nil
}

// InsertTransactionsBatch writes a batch of new transactions in a single
// atomic unit: either every transaction lands or none does. Used by the CSV
// import commit.
func (s *Store) InsertTransactionsBatch(ctx context.Context, txns []core.Transaction) error {
	for _, t := range txns {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	if len(txns) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, t := range txns {
		if err := saveTransactionTx(ctx, tx, t); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	s.logger.InfoContext(ctx, "transaction batch saved", log.FieldRows, len(txns))
	s.notifyChanges(ctx)
	return nil
}

// saveTransactionTx performs the write inside an open SQL transaction.
func saveTransactionTx(ctx context.Context, tx *sql.Tx, t core.Transaction) error {
	// The owning account must exist and share the transaction currency.
	var accountCurrency string
	err := tx.QueryRowContext(ctx,
		`SELECT currency FROM accounts WHERE id = ?`, t.AccountID).Scan(&accountCurrency)
	if errors.Is(err, sql.ErrNoRows) {
		return core.IntegrityErr(fmt.Sprintf("transaction references missing account %s", t.AccountID), core.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("query account: %w", err)
	}
	if accountCurrency != t.Amount.Currency.Code {
		return core.ValidationErr("currency", core.ErrCurrencyMismatch)
	}

	row := transactionToRow(t)

	// Reverse any previous posting of this id before applying the new one.
	var oldAccountID string
	var oldAmount int64
	var oldStatus string
	err = tx.QueryRowContext(ctx,
		`SELECT account_id, amount_minor, status FROM transactions WHERE id = ?`, t.ID).
		Scan(&oldAccountID, &oldAmount, &oldStatus)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO transactions (`+transactionColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			row.ID, row.AccountID, row.PostedOn, row.AmountMinor, row.Currency, row.Merchant,
			row.Memo, row.CategoryID, row.Status, row.ClearedAt, row.TransferID,
			row.CreatedAt, row.UpdatedAt); err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
	case err != nil:
		return fmt.Errorf("query existing transaction: %w", err)
	default:
		oldEffective := oldAmount
		if oldStatus == string(core.StatusVoid) {
			oldEffective = 0
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE accounts SET current_balance_minor = current_balance_minor - ?, updated_at = ?
			WHERE id = ?`, oldEffective, row.UpdatedAt, oldAccountID); err != nil {
			return fmt.Errorf("reverse previous posting: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE transactions SET account_id = ?, posted_on = ?, amount_minor = ?, currency = ?,
				merchant = ?, memo = ?, category_id = ?, status = ?, cleared_at = ?, transfer_id = ?,
				updated_at = ?
			WHERE id = ?`,
			row.AccountID, row.PostedOn, row.AmountMinor, row.Currency, row.Merchant, row.Memo,
			row.CategoryID, row.Status, row.ClearedAt, row.TransferID, row.UpdatedAt, row.ID); err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}
	}

	// Replace-all split semantics: delete then insert the current set.
	if _, err := tx.ExecContext(ctx, `DELETE FROM splits WHERE transaction_id = ?`, t.ID); err != nil {
		return fmt.Errorf("delete previous splits: %w", err)
	}
	for _, split := range t.Splits {
		sr := splitToRow(split)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO splits (transaction_id, line_id, category_id, amount_minor, memo)
			VALUES (?, ?, ?, ?, ?)`,
			row.ID, sr.LineID, sr.CategoryID, sr.AmountMinor, sr.Memo); err != nil {
			return fmt.Errorf("insert split %d: %w", split.LineID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE accounts SET current_balance_minor = current_balance_minor + ?, updated_at = ?
		WHERE id = ?`, t.EffectiveAmount(), row.UpdatedAt, t.AccountID); err != nil {
		return fmt.Errorf("apply balance: %w", err)
	}
	return nil
}

// DeleteTransaction removes a transaction, cascade-deleting its splits, and
// reverses its balance contribution in the same atomic unit.
func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var accountID string
	var amount int64
	var status string
	err = tx.QueryRowContext(ctx,
		`SELECT account_id, amount_minor, status FROM transactions WHERE id = ?`, id).
		Scan(&accountID, &amount, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("query transaction: %w", err)
	}

	effective := amount
	if status == string(core.StatusVoid) {
		effective = 0
	}
	now := time.Now().UTC().Unix()
	if _, err := tx.ExecContext(ctx, `
		UPDATE accounts SET current_balance_minor = current_balance_minor - ?, updated_at = ?
		WHERE id = ?`, effective, now, accountID); err != nil {
		return fmt.Errorf("reverse balance: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}

	s.logger.InfoContext(ctx, "transaction deleted", log.FieldTransactionID, id)
	s.notifyChanges(ctx)
	return nil
}

// GetTransaction loads one transaction with its splits ordered by line id.
func (s *Store) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	var row transactionRow
	err := s.db.QueryRowContext(ctx, `
		SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id).Scan(
		&row.ID, &row.AccountID, &row.PostedOn, &row.AmountMinor, &row.Currency, &row.Merchant,
		&row.Memo, &row.CategoryID, &row.Status, &row.ClearedAt, &row.TransferID,
		&row.CreatedAt, &row.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("query transaction: %w", err)
	}

	t, err := row.toDomain()
	if err != nil {
		return core.Transaction{}, err
	}

	splits, err := s.listSplits(ctx, t.ID, t.Amount.Currency)
	if err != nil {
		return core.Transaction{}, err
	}
	t.Splits = splits
	return t, nil
}

func (s *Store) listSplits(ctx context.Context, transactionID string, cur core.Currency) ([]core.Split, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT transaction_id, line_id, category_id, amount_minor, memo
		FROM splits WHERE transaction_id = ? ORDER BY line_id`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("query splits: %w", err)
	}
	defer rows.Close()

	var splits []core.Split
	for rows.Next() {
		var sr splitRow
		if err := rows.Scan(&sr.TransactionID, &sr.LineID, &sr.CategoryID, &sr.AmountMinor, &sr.Memo); err != nil {
			return nil, fmt.Errorf("scan split: %w", err)
		}
		splits = append(splits, sr.toDomain(cur))
	}
	return splits, rows.Err()
}

// ListTransactionsByAccount returns an account's transactions, newest first.
// Splits are not hydrated; use GetTransaction for the full shape.
func (s *Store) ListTransactionsByAccount(ctx context.Context, accountID string) ([]core.Transaction, error) {
	return s.listTransactions(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE account_id = ? ORDER BY posted_on DESC, created_at DESC`, accountID)
}

// ListPendingTransactions returns every PENDING transaction. This is the
// query behind the pending feed.
func (s *Store) ListPendingTransactions(ctx context.Context) ([]core.Transaction, error) {
	return s.listTransactions(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE status = ? ORDER BY posted_on DESC, created_at DESC`, string(core.StatusPending))
}

// GetTransferPair loads both legs sharing a transfer id.
func (s *Store) GetTransferPair(ctx context.Context, transferID string) ([]core.Transaction, error) {
	legs, err := s.listTransactions(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE transfer_id = ? ORDER BY amount_minor`, transferID)
	if err != nil {
		return nil, err
	}
	if len(legs) != 2 {
		return nil, core.IntegrityErr(
			fmt.Sprintf("transfer %s has %d legs, want 2", transferID, len(legs)), nil)
	}
	return legs, nil
}

func (s *Store) listTransactions(ctx context.Context, query string, args ...any) ([]core.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var txns []core.Transaction
	for rows.Next() {
		var row transactionRow
		if err := rows.Scan(&row.ID, &row.AccountID, &row.PostedOn, &row.AmountMinor, &row.Currency,
			&row.Merchant, &row.Memo, &row.CategoryID, &row.Status, &row.ClearedAt, &row.TransferID,
			&row.CreatedAt, &row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// ListPostingKeys returns the duplicate-detection keys of every non-void
// transaction.
func (s *Store) ListPostingKeys(ctx context.Context) ([]PostingKey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT posted_on, amount_minor, merchant FROM transactions WHERE status != ?`,
		string(core.StatusVoid))
	if err != nil {
		return nil, fmt.Errorf("query posting keys: %w", err)
	}
	defer rows.Close()

	var keys []PostingKey
	for rows.Next() {
		var k PostingKey
		if err := rows.Scan(&k.DateKey, &k.AmountMinor, &k.Merchant); err != nil {
			return nil, fmt.Errorf("scan posting key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

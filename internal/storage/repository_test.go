package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"banyg/internal/core"
)

var testTime = time.Unix(1755900000, 0).UTC()

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	backups, err := NewBackupManager(filepath.Join(dir, "backups"))
	if err != nil {
		t.Fatalf("NewBackupManager: %v", err)
	}
	s, err := Open(filepath.Join(dir, "banyg.db"), backups, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustCurrency(t *testing.T, code string) core.Currency {
	t.Helper()
	cur, ok := core.LookupCurrency(code)
	if !ok {
		t.Fatalf("currency %s not registered", code)
	}
	return cur
}

func newTestAccount(t *testing.T, s *Store, opening int64) core.Account {
	t.Helper()
	cur := mustCurrency(t, "PHP")
	a := core.Account{
		ID:             uuid.NewString(),
		Name:           "BPI Checking",
		Type:           core.AccountChecking,
		Currency:       cur,
		OpeningBalance: core.NewMoney(opening, cur),
		CurrentBalance: core.NewMoney(opening, cur),
		CreatedAt:      testTime,
		UpdatedAt:      testTime,
	}
	if err := s.CreateAccount(context.Background(), a); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	return a
}

func newTestCategory(t *testing.T, s *Store, name string) core.Category {
	t.Helper()
	c := core.Category{ID: uuid.NewString(), Name: name}
	if err := s.CreateCategory(context.Background(), c); err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}
	return c
}

func newTestTransaction(accountID string, minor int64, day int, merchant string) core.Transaction {
	cur, _ := core.LookupCurrency("PHP")
	return core.Transaction{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Date:      core.Date{Year: 2026, Month: 8, Day: day},
		Amount:    core.NewMoney(minor, cur),
		Merchant:  merchant,
		Status:    core.StatusCleared,
		CreatedAt: testTime,
		UpdatedAt: testTime,
	}
}

func accountBalance(t *testing.T, s *Store, id string) int64 {
	t.Helper()
	a, err := s.GetAccount(context.Background(), id)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	return a.CurrentBalance.Minor
}

func TestSaveTransactionMovesBalance(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	acc := newTestAccount(t, s, 10000)

	txn := newTestTransaction(acc.ID, -2500, 15, "Jollibee")
	if err := s.SaveTransaction(ctx, txn); err != nil {
		t.Fatalf("SaveTransaction: %v", err)
	}
	if got := accountBalance(t, s, acc.ID); got != 7500 {
		t.Fatalf("balance after spend = %d, want 7500", got)
	}

	// Re-saving the same id replaces the posting, not stacks it.
	txn.Amount = core.NewMoney(-3000, txn.Amount.Currency)
	if err := s.SaveTransaction(ctx, txn); err != nil {
		t.Fatalf("SaveTransaction update: %v", err)
	}
	if got := accountBalance(t, s, acc.ID); got != 7000 {
		t.Fatalf("balance after update = %d, want 7000", got)
	}

	// Voiding removes the contribution without removing the row.
	txn.Status = core.StatusVoid
	if err := s.SaveTransaction(ctx, txn); err != nil {
		t.Fatalf("SaveTransaction void: %v", err)
	}
	if got := accountBalance(t, s, acc.ID); got != 10000 {
		t.Fatalf("balance after void = %d, want 10000", got)
	}
	if _, err := s.GetTransaction(ctx, txn.ID); err != nil {
		t.Fatalf("voided transaction should still exist: %v", err)
	}
}

func TestSaveTransactionReplacesSplits(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	acc := newTestAccount(t, s, 0)
	food := newTestCategory(t, s, "Food")
	fun := newTestCategory(t, s, "Fun")

	cur := acc.Currency
	txn := newTestTransaction(acc.ID, -1000, 10, "SM Supermarket")
	txn.Splits = []core.Split{
		{TransactionID: txn.ID, LineID: 0, CategoryID: food.ID, Amount: core.NewMoney(-400, cur)},
		{TransactionID: txn.ID, LineID: 1, CategoryID: fun.ID, Amount: core.NewMoney(-350, cur)},
		{TransactionID: txn.ID, LineID: 2, CategoryID: food.ID, Amount: core.NewMoney(-250, cur)},
	}
	if err := s.SaveTransaction(ctx, txn); err != nil {
		t.Fatalf("SaveTransaction with splits: %v", err)
	}

	txn.Splits = []core.Split{
		{TransactionID: txn.ID, LineID: 0, CategoryID: food.ID, Amount: core.NewMoney(-1000, cur)},
	}
	if err := s.SaveTransaction(ctx, txn); err != nil {
		t.Fatalf("SaveTransaction resplit: %v", err)
	}

	got, err := s.GetTransaction(ctx, txn.ID)
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if len(got.Splits) != 1 {
		t.Fatalf("splits after replace = %d, want 1", len(got.Splits))
	}
	if got.Splits[0].Amount.Minor != -1000 || got.Splits[0].CategoryID != food.ID {
		t.Fatalf("unexpected surviving split: %+v", got.Splits[0])
	}
	if got := accountBalance(t, s, acc.ID); got != -1000 {
		t.Fatalf("balance = %d, want -1000", got)
	}
}

func TestSaveTransactionRejectsSplitSumMismatch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	acc := newTestAccount(t, s, 5000)
	food := newTestCategory(t, s, "Food")

	txn := newTestTransaction(acc.ID, -1000, 10, "SM Supermarket")
	txn.Splits = []core.Split{
		{TransactionID: txn.ID, LineID: 0, CategoryID: food.ID, Amount: core.NewMoney(-400, acc.Currency)},
	}
	err := s.SaveTransaction(ctx, txn)
	if !errors.Is(err, core.ErrSplitSumMismatch) {
		t.Fatalf("SaveTransaction error = %v, want ErrSplitSumMismatch", err)
	}

	// Nothing may have been written.
	if _, err := s.GetTransaction(ctx, txn.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("GetTransaction after rejection = %v, want ErrNotFound", err)
	}
	if got := accountBalance(t, s, acc.ID); got != 5000 {
		t.Fatalf("balance after rejection = %d, want 5000", got)
	}
}

func TestSaveTransactionRejectsCurrencyMismatch(t *testing.T) {
	s := openTestStore(t)
	acc := newTestAccount(t, s, 0)

	txn := newTestTransaction(acc.ID, -100, 5, "Amazon")
	txn.Amount = core.NewMoney(-100, mustCurrency(t, "USD"))
	if err := s.SaveTransaction(context.Background(), txn); !errors.Is(err, core.ErrCurrencyMismatch) {
		t.Fatalf("SaveTransaction error = %v, want ErrCurrencyMismatch", err)
	}
}

func TestDeleteTransactionRestoresBalanceAndCascades(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	acc := newTestAccount(t, s, 2000)
	food := newTestCategory(t, s, "Food")

	txn := newTestTransaction(acc.ID, -500, 3, "7-Eleven")
	txn.Splits = []core.Split{
		{TransactionID: txn.ID, LineID: 0, CategoryID: food.ID, Amount: core.NewMoney(-500, acc.Currency)},
	}
	if err := s.SaveTransaction(ctx, txn); err != nil {
		t.Fatalf("SaveTransaction: %v", err)
	}
	if err := s.DeleteTransaction(ctx, txn.ID); err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}
	if got := accountBalance(t, s, acc.ID); got != 2000 {
		t.Fatalf("balance after delete = %d, want 2000", got)
	}

	var orphans int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM splits WHERE transaction_id = ?`, txn.ID).Scan(&orphans); err != nil {
		t.Fatalf("count splits: %v", err)
	}
	if orphans != 0 {
		t.Fatalf("orphaned splits = %d, want 0", orphans)
	}

	if err := s.DeleteTransaction(ctx, txn.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("second delete = %v, want ErrNotFound", err)
	}
}

func TestSaveTransferPair(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	from := newTestAccount(t, s, 10000)

	cur := from.Currency
	to := core.Account{
		ID:             uuid.NewString(),
		Name:           "GCash",
		Type:           core.AccountEWallet,
		Currency:       cur,
		OpeningBalance: core.NewMoney(0, cur),
		CurrentBalance: core.NewMoney(0, cur),
		CreatedAt:      testTime,
		UpdatedAt:      testTime,
	}
	if err := s.CreateAccount(ctx, to); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	out, in, err := core.NewTransferPair(from.ID, to.ID, core.NewMoney(2500, cur),
		core.Date{Year: 2026, Month: 8, Day: 20}, "top up")
	if err != nil {
		t.Fatalf("NewTransferPair: %v", err)
	}
	if err := s.SaveTransferPair(ctx, out, in); err != nil {
		t.Fatalf("SaveTransferPair: %v", err)
	}

	if got := accountBalance(t, s, from.ID); got != 7500 {
		t.Fatalf("source balance = %d, want 7500", got)
	}
	if got := accountBalance(t, s, to.ID); got != 2500 {
		t.Fatalf("destination balance = %d, want 2500", got)
	}

	legs, err := s.GetTransferPair(ctx, out.TransferID)
	if err != nil {
		t.Fatalf("GetTransferPair: %v", err)
	}
	if legs[0].Amount.Minor+legs[1].Amount.Minor != 0 {
		t.Fatalf("transfer legs do not net to zero: %d and %d", legs[0].Amount.Minor, legs[1].Amount.Minor)
	}
}

func TestDeleteCategoryPolicies(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	acc := newTestAccount(t, s, 0)
	food := newTestCategory(t, s, "Food")

	txn := newTestTransaction(acc.ID, -300, 7, "Grab")
	txn.CategoryID = food.ID
	txn.Splits = []core.Split{
		{TransactionID: txn.ID, LineID: 0, CategoryID: food.ID, Amount: core.NewMoney(-300, acc.Currency)},
	}
	if err := s.SaveTransaction(ctx, txn); err != nil {
		t.Fatalf("SaveTransaction: %v", err)
	}

	if err := s.DeleteCategory(ctx, food.ID); err != nil {
		t.Fatalf("DeleteCategory: %v", err)
	}

	got, err := s.GetTransaction(ctx, txn.ID)
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if got.CategoryID != "" {
		t.Fatalf("transaction category after delete = %q, want cleared", got.CategoryID)
	}
	if len(got.Splits) != 0 {
		t.Fatalf("splits after category delete = %d, want 0 (cascade)", len(got.Splits))
	}
}

func TestBudgetUpsertAndSpending(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	acc := newTestAccount(t, s, 0)
	food := newTestCategory(t, s, "Food")
	fun := newTestCategory(t, s, "Fun")

	period := core.Period{Year: 2026, Month: 8}
	cur := acc.Currency
	budget := core.Budget{
		CategoryID:  food.ID,
		Period:      period,
		AmountMinor: 50000,
		Currency:    cur,
		CreatedAt:   testTime,
		UpdatedAt:   testTime,
	}
	if err := s.UpsertBudget(ctx, budget); err != nil {
		t.Fatalf("UpsertBudget: %v", err)
	}
	budget.AmountMinor = 60000
	if err := s.UpsertBudget(ctx, budget); err != nil {
		t.Fatalf("UpsertBudget overwrite: %v", err)
	}
	got, err := s.GetBudget(ctx, food.ID, period)
	if err != nil {
		t.Fatalf("GetBudget: %v", err)
	}
	if got.AmountMinor != 60000 {
		t.Fatalf("budget amount = %d, want 60000", got.AmountMinor)
	}

	budget.AmountMinor = -1
	if err := s.UpsertBudget(ctx, budget); !errors.Is(err, core.ErrNegativeBudget) {
		t.Fatalf("negative budget error = %v, want ErrNegativeBudget", err)
	}

	// Spending counts split lines plus unsplit categorized transactions,
	// never void ones, never other months.
	split := newTestTransaction(acc.ID, -1000, 10, "SM Supermarket")
	split.Splits = []core.Split{
		{TransactionID: split.ID, LineID: 0, CategoryID: food.ID, Amount: core.NewMoney(-700, cur)},
		{TransactionID: split.ID, LineID: 1, CategoryID: fun.ID, Amount: core.NewMoney(-300, cur)},
	}
	unsplit := newTestTransaction(acc.ID, -250, 12, "Jollibee")
	unsplit.CategoryID = food.ID
	voided := newTestTransaction(acc.ID, -9000, 13, "Refunded order")
	voided.CategoryID = food.ID
	voided.Status = core.StatusVoid
	lastMonth := newTestTransaction(acc.ID, -400, 10, "Jollibee")
	lastMonth.Date = core.Date{Year: 2026, Month: 7, Day: 10}
	lastMonth.CategoryID = food.ID
	for _, txn := range []core.Transaction{split, unsplit, voided, lastMonth} {
		if err := s.SaveTransaction(ctx, txn); err != nil {
			t.Fatalf("SaveTransaction %s: %v", txn.Merchant, err)
		}
	}

	spent, err := s.BudgetSpending(ctx, food.ID, period)
	if err != nil {
		t.Fatalf("BudgetSpending: %v", err)
	}
	if spent != -950 {
		t.Fatalf("spending = %d, want -950", spent)
	}
}

func TestInsertTransactionsBatchAllOrNothing(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	acc := newTestAccount(t, s, 0)

	good := newTestTransaction(acc.ID, -100, 1, "Shop A")
	bad := newTestTransaction(uuid.NewString(), -200, 2, "Shop B") // unknown account
	err := s.InsertTransactionsBatch(ctx, []core.Transaction{good, bad})
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("batch error = %v, want ErrNotFound", err)
	}

	txns, err := s.ListTransactionsByAccount(ctx, acc.ID)
	if err != nil {
		t.Fatalf("ListTransactionsByAccount: %v", err)
	}
	if len(txns) != 0 {
		t.Fatalf("rows after failed batch = %d, want 0", len(txns))
	}
	if got := accountBalance(t, s, acc.ID); got != 0 {
		t.Fatalf("balance after failed batch = %d, want 0", got)
	}
}

func TestListPostingKeysExcludesVoid(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	acc := newTestAccount(t, s, 0)

	live := newTestTransaction(acc.ID, -150, 4, "Jollibee")
	voided := newTestTransaction(acc.ID, -150, 4, "Jollibee")
	voided.Status = core.StatusVoid
	for _, txn := range []core.Transaction{live, voided} {
		if err := s.SaveTransaction(ctx, txn); err != nil {
			t.Fatalf("SaveTransaction: %v", err)
		}
	}

	keys, err := s.ListPostingKeys(ctx)
	if err != nil {
		t.Fatalf("ListPostingKeys: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("keys = %d, want 1", len(keys))
	}
	want := PostingKey{DateKey: 20260804, AmountMinor: -150, Merchant: "Jollibee"}
	if keys[0] != want {
		t.Fatalf("key = %+v, want %+v", keys[0], want)
	}
}

func TestMigrationPreservesExistingRows(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "banyg.db")

	// Build a populated store at the first schema version.
	if err := MigrateTo(dbPath, 1); err != nil {
		t.Fatalf("MigrateTo(1): %v", err)
	}
	raw, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		t.Fatalf("open raw: %v", err)
	}
	accID := uuid.NewString()
	if _, err := raw.Exec(`
		INSERT INTO accounts (id, name, type, currency, opening_balance_minor, current_balance_minor, created_at, updated_at)
		VALUES (?, 'Old Wallet', 'cash', 'PHP', 500, 500, ?, ?)`,
		accID, testTime.Unix(), testTime.Unix()); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	if _, err := raw.Exec(`
		INSERT INTO transactions (id, account_id, posted_on, amount_minor, currency, merchant, status, created_at, updated_at)
		VALUES (?, ?, 20250101, -100, 'PHP', 'Sari-sari store', 'CLEARED', ?, ?)`,
		uuid.NewString(), accID, testTime.Unix(), testTime.Unix()); err != nil {
		t.Fatalf("seed transaction: %v", err)
	}
	if err := raw.Close(); err != nil {
		t.Fatalf("close raw: %v", err)
	}

	backups, err := NewBackupManager(filepath.Join(dir, "backups"))
	if err != nil {
		t.Fatalf("NewBackupManager: %v", err)
	}
	s, err := Open(dbPath, backups, nil)
	if err != nil {
		t.Fatalf("Open after upgrade: %v", err)
	}
	defer s.Close()

	version, dirty, err := SchemaVersion(dbPath)
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if dirty {
		t.Fatal("schema left dirty after upgrade")
	}
	if version != 3 {
		t.Fatalf("schema version = %d, want 3", version)
	}

	acc, err := s.GetAccount(context.Background(), accID)
	if err != nil {
		t.Fatalf("GetAccount after upgrade: %v", err)
	}
	if acc.Name != "Old Wallet" || acc.CurrentBalance.Minor != 500 {
		t.Fatalf("account mangled by upgrade: %+v", acc)
	}
	txns, err := s.ListTransactionsByAccount(context.Background(), accID)
	if err != nil {
		t.Fatalf("ListTransactionsByAccount: %v", err)
	}
	if len(txns) != 1 || txns[0].Merchant != "Sari-sari store" {
		t.Fatalf("transactions mangled by upgrade: %+v", txns)
	}

	// A pre-migration backup of the v1 file must exist and verify.
	list, err := backups.List()
	if err != nil {
		t.Fatalf("List backups: %v", err)
	}
	if len(list) == 0 {
		t.Fatal("no backup taken before migration")
	}
	if err := backups.Verify(list[0]); err != nil {
		t.Fatalf("backup does not verify: %v", err)
	}
}

func TestWatchActiveAccounts(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed, err := s.WatchActiveAccounts(ctx)
	if err != nil {
		t.Fatalf("WatchActiveAccounts: %v", err)
	}
	if got := recvSnapshot(t, feed); len(got) != 0 {
		t.Fatalf("initial snapshot = %d accounts, want 0", len(got))
	}

	acc := newTestAccount(t, s, 100)
	if got := recvSnapshot(t, feed); len(got) != 1 || got[0].ID != acc.ID {
		t.Fatalf("snapshot after create = %+v, want the new account", got)
	}

	now := time.Now().UTC().Unix()
	if err := s.SetAccountArchived(context.Background(), acc.ID, true, now); err != nil {
		t.Fatalf("SetAccountArchived: %v", err)
	}
	if got := recvSnapshot(t, feed); len(got) != 0 {
		t.Fatalf("snapshot after archive = %d accounts, want 0", len(got))
	}
}

func recvSnapshot[T any](t *testing.T, feed <-chan T) T {
	t.Helper()
	select {
	case snapshot := <-feed:
		return snapshot
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for feed snapshot")
		panic("unreachable")
	}
}

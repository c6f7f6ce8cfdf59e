package core

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending TxStatus = "PENDING"
	StatusCleared TxStatus = "CLEARED"
	StatusVoid    TxStatus = "VOID"
)

type (
	TxStatus string

	// Transaction is a single ledger posting. Splits, when present, carve
	// the total amount into category lines and must sum to it exactly.
	Transaction struct {
		ID         string
		AccountID  string
		Date       Date
		Amount     Money
		Merchant   string
		Memo       string
		CategoryID string // empty = uncategorized
		Status     TxStatus
		ClearedAt  *time.Time
		TransferID string // empty unless part of a transfer pair
		Splits     []Split
		CreatedAt  time.Time
		UpdatedAt  time.Time
	}

	// Split is one category line of a transaction. Owned by its parent and
	// cascade-deleted with it. LineID is unique within the transaction.
	Split struct {
		TransactionID string
		LineID        int
		CategoryID    string
		Amount        Money
		Memo          string
	}
)

// IsValid reports whether s is a known transaction status.
func (s TxStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusCleared, StatusVoid:
		return true
	default:
		return false
	}
}

func (t Transaction) Validate() error {
	if t.AccountID == "" {
		return ValidationErr("accountId", errors.New("missing account"))
	}
	if err := t.Date.Validate(); err != nil {
		return ValidationErr("date", err)
	}
	if strings.TrimSpace(t.Merchant) == "" {
		return ValidationErr("merchant", ErrBlankName)
	}
	if _, ok := LookupCurrency(t.Amount.Currency.Code); !ok {
		return ValidationErr("currency", ErrUnknownCurrency)
	}
	if !t.Status.IsValid() {
		return ValidationErr("status", errors.New("unknown status"))
	}
	if err := t.ValidateSplits(); err != nil {
		return err
	}
	return nil
}

// ValidateSplits enforces the cross-entity split invariants: no zero lines,
// no duplicate line ids, no foreign currencies, and an exact sum matching the
// transaction total. Checked here, before any row is written, not as a
// database constraint.
func (t Transaction) ValidateSplits() error {
	if len(t.Splits) == 0 {
		return nil
	}
	seen := make(map[int]bool, len(t.Splits))
	var sum int64
	for _, s := range t.Splits {
		if s.LineID < 0 {
			return ValidationErr("splits", errors.New("negative line id"))
		}
		if seen[s.LineID] {
			return ValidationErr("splits", errors.New("duplicate line id"))
		}
		seen[s.LineID] = true
		if s.Amount.IsZero() {
			return ValidationErr("splits", ErrZeroSplit)
		}
		if s.Amount.Currency.Code != t.Amount.Currency.Code {
			return ValidationErr("splits", ErrCurrencyMismatch)
		}
		if s.CategoryID == "" {
			return ValidationErr("splits", errors.New("split missing category"))
		}
		sum += s.Amount.Minor
	}
	if sum != t.Amount.Minor {
		return ValidationErr("splits", ErrSplitSumMismatch)
	}
	return nil
}

// EffectiveAmount is the transaction's contribution to its account balance.
// VOID transactions contribute nothing.
func (t Transaction) EffectiveAmount() int64 {
	if t.Status == StatusVoid {
		return 0
	}
	return t.Amount.Minor
}

// NewTransferPair builds the two linked transactions of a transfer: an
// outflow from one account and a matching inflow to another. The pair nets
// to exactly zero and shares a transfer id.
func NewTransferPair(fromAccountID, toAccountID string, amount Money, date Date, memo string) (Transaction, Transaction, error) {
	if fromAccountID == "" || toAccountID == "" {
		return Transaction{}, Transaction{}, ValidationErr("account", errors.New("missing account"))
	}
	if fromAccountID == toAccountID {
		return Transaction{}, Transaction{}, ValidationErr("account", errors.New("transfer needs two distinct accounts"))
	}
	if amount.Minor <= 0 {
		return Transaction{}, Transaction{}, ValidationErr("amount", ErrInvalidAmount)
	}
	if err := date.Validate(); err != nil {
		return Transaction{}, Transaction{}, ValidationErr("date", err)
	}
	transferID := uuid.NewString()
	now := time.Now().UTC().Truncate(time.Second)
	out := Transaction{
		ID:         uuid.NewString(),
		AccountID:  fromAccountID,
		Date:       date,
		Amount:     amount.Neg(),
		Merchant:   "Transfer out",
		Memo:       memo,
		Status:     StatusCleared,
		TransferID: transferID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	in := Transaction{
		ID:         uuid.NewString(),
		AccountID:  toAccountID,
		Date:       date,
		Amount:     amount,
		Merchant:   "Transfer in",
		Memo:       memo,
		Status:     StatusCleared,
		TransferID: transferID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return out, in, nil
}

// ValidateTransferPair checks the net-zero transfer invariant on two legs.
func ValidateTransferPair(a, b Transaction) error {
	if a.TransferID == "" || a.TransferID != b.TransferID {
		return ValidationErr("transferId", errors.New("legs do not share a transfer id"))
	}
	if a.Amount.Currency.Code != b.Amount.Currency.Code {
		return ValidationErr("amount", ErrCurrencyMismatch)
	}
	if a.Amount.Minor+b.Amount.Minor != 0 || a.Amount.Minor == 0 {
		return ValidationErr("amount", errors.New("transfer legs must net to zero"))
	}
	if a.AccountID == b.AccountID {
		return ValidationErr("account", errors.New("transfer needs two distinct accounts"))
	}
	return nil
}

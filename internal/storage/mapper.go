package storage

import (
	"database/sql"
	"fmt"
	"time"

	"banyg/internal/core"
)

// Row shapes mirror the persisted schema. Mapping to and from domain
// entities is lossless: entity -> row -> entity is identity for all fields.
// An unknown currency code in a persisted row is corruption and surfaces as
// a fatal integrity error, never a defaulted value.

type accountRow struct {
	ID           string
	Name         string
	Type         string
	Currency     string
	OpeningMinor int64
	CurrentMinor int64
	IsArchived   int64
	CreatedAt    int64
	UpdatedAt    int64
}

type transactionRow struct {
	ID          string
	AccountID   string
	PostedOn    int64
	AmountMinor int64
	Currency    string
	Merchant    string
	Memo        string
	CategoryID  sql.NullString
	Status      string
	ClearedAt   sql.NullInt64
	TransferID  sql.NullString
	CreatedAt   int64
	UpdatedAt   int64
}

type splitRow struct {
	TransactionID string
	LineID        int64
	CategoryID    string
	AmountMinor   int64
	Memo          string
}

type budgetRow struct {
	CategoryID  string
	Period      string
	AmountMinor int64
	Currency    string
	CreatedAt   int64
	UpdatedAt   int64
}

type categoryRow struct {
	ID        string
	Name      string
	GroupID   sql.NullString
	GroupName sql.NullString
	IsHidden  int64
	Icon      sql.NullString
	Color     sql.NullString
}

func accountToRow(a core.Account) accountRow {
	return accountRow{
		ID:           a.ID,
		Name:         a.Name,
		Type:         string(a.Type),
		Currency:     a.Currency.Code,
		OpeningMinor: a.OpeningBalance.Minor,
		CurrentMinor: a.CurrentBalance.Minor,
		IsArchived:   boolToInt(a.IsArchived),
		CreatedAt:    a.CreatedAt.Unix(),
		UpdatedAt:    a.UpdatedAt.Unix(),
	}
}

func (r accountRow) toDomain() (core.Account, error) {
	cur, ok := core.LookupCurrency(r.Currency)
	if !ok {
		return core.Account{}, core.IntegrityErr(
			fmt.Sprintf("account %s carries unknown currency %q", r.ID, r.Currency), core.ErrUnknownCurrency)
	}
	return core.Account{
		ID:             r.ID,
		Name:           r.Name,
		Type:           core.AccountType(r.Type),
		Currency:       cur,
		OpeningBalance: core.NewMoney(r.OpeningMinor, cur),
		CurrentBalance: core.NewMoney(r.CurrentMinor, cur),
		IsArchived:     r.IsArchived != 0,
		CreatedAt:      time.Unix(r.CreatedAt, 0).UTC(),
		UpdatedAt:      time.Unix(r.UpdatedAt, 0).UTC(),
	}, nil
}

func transactionToRow(t core.Transaction) transactionRow {
	row := transactionRow{
		ID:          t.ID,
		AccountID:   t.AccountID,
		PostedOn:    t.Date.Key(),
		AmountMinor: t.Amount.Minor,
		Currency:    t.Amount.Currency.Code,
		Merchant:    t.Merchant,
		Memo:        t.Memo,
		Status:      string(t.Status),
		CreatedAt:   t.CreatedAt.Unix(),
		UpdatedAt:   t.UpdatedAt.Unix(),
	}
	if t.CategoryID != "" {
		row.CategoryID = sql.NullString{String: t.CategoryID, Valid: true}
	}
	if t.ClearedAt != nil {
		row.ClearedAt = sql.NullInt64{Int64: t.ClearedAt.Unix(), Valid: true}
	}
	if t.TransferID != "" {
		row.TransferID = sql.NullString{String: t.TransferID, Valid: true}
	}
	return row
}

func (r transactionRow) toDomain() (core.Transaction, error) {
	cur, ok := core.LookupCurrency(r.Currency)
	if !ok {
		return core.Transaction{}, core.IntegrityErr(
			fmt.Sprintf("transaction %s carries unknown currency %q", r.ID, r.Currency), core.ErrUnknownCurrency)
	}
	t := core.Transaction{
		ID:         r.ID,
		AccountID:  r.AccountID,
		Date:       core.DateFromKey(r.PostedOn),
		Amount:     core.NewMoney(r.AmountMinor, cur),
		Merchant:   r.Merchant,
		Memo:       r.Memo,
		CategoryID: r.CategoryID.String,
		Status:     core.TxStatus(r.Status),
		TransferID: r.TransferID.String,
		CreatedAt:  time.Unix(r.CreatedAt, 0).UTC(),
		UpdatedAt:  time.Unix(r.UpdatedAt, 0).UTC(),
	}
	if r.ClearedAt.Valid {
		cleared := time.Unix(r.ClearedAt.Int64, 0).UTC()
		t.ClearedAt = &cleared
	}
	return t, nil
}

func splitToRow(s core.Split) splitRow {
	return splitRow{
		TransactionID: s.TransactionID,
		LineID:        int64(s.LineID),
		CategoryID:    s.CategoryID,
		AmountMinor:   s.Amount.Minor,
		Memo:          s.Memo,
	}
}

func (r splitRow) toDomain(cur core.Currency) core.Split {
	return core.Split{
		TransactionID: r.TransactionID,
		LineID:        int(r.LineID),
		CategoryID:    r.CategoryID,
		Amount:        core.NewMoney(r.AmountMinor, cur),
		Memo:          r.Memo,
	}
}

func budgetToRow(b core.Budget) budgetRow {
	return budgetRow{
		CategoryID:  b.CategoryID,
		Period:      b.Period.Key(),
		AmountMinor: b.AmountMinor,
		Currency:    b.Currency.Code,
		CreatedAt:   b.CreatedAt.Unix(),
		UpdatedAt:   b.UpdatedAt.Unix(),
	}
}

func (r budgetRow) toDomain() (core.Budget, error) {
	cur, ok := core.LookupCurrency(r.Currency)
	if !ok {
		return core.Budget{}, core.IntegrityErr(
			fmt.Sprintf("budget for category %s carries unknown currency %q", r.CategoryID, r.Currency), core.ErrUnknownCurrency)
	}
	period, err := core.PeriodFromKey(r.Period)
	if err != nil {
		return core.Budget{}, core.IntegrityErr(
			fmt.Sprintf("budget for category %s carries malformed period %q", r.CategoryID, r.Period), err)
	}
	return core.Budget{
		CategoryID:  r.CategoryID,
		Period:      period,
		AmountMinor: r.AmountMinor,
		Currency:    cur,
		CreatedAt:   time.Unix(r.CreatedAt, 0).UTC(),
		UpdatedAt:   time.Unix(r.UpdatedAt, 0).UTC(),
	}, nil
}

func categoryToRow(c core.Category) categoryRow {
	return categoryRow{
		ID:        c.ID,
		Name:      c.Name,
		GroupID:   nullableString(c.GroupID),
		GroupName: nullableString(c.GroupName),
		IsHidden:  boolToInt(c.IsHidden),
		Icon:      nullableString(c.Icon),
		Color:     nullableString(c.Color),
	}
}

func (r categoryRow) toDomain() core.Category {
	return core.Category{
		ID:        r.ID,
		Name:      r.Name,
		GroupID:   r.GroupID.String,
		GroupName: r.GroupName.String,
		IsHidden:  r.IsHidden != 0,
		Icon:      r.Icon.String,
		Color:     r.Color.String,
	}
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

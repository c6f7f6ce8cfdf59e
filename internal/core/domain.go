package core

import (
	"errors"
	"strings"
	"time"
)

const (
	AccountChecking   AccountType = "checking"
	AccountSavings    AccountType = "savings"
	AccountCreditCard AccountType = "credit_card"
	AccountCash       AccountType = "cash"
	AccountEWallet    AccountType = "e_wallet"
	AccountInvestment AccountType = "investment"
	AccountLoan       AccountType = "loan"
	AccountOther      AccountType = "other"
)

type (
	AccountType string

	// Account is a ledger account. CurrentBalance is maintained
	// incrementally as transactions post, inside the same atomic unit as
	// the transaction write.
	Account struct {
		ID             string
		Name           string
		Type           AccountType
		Currency       Currency
		OpeningBalance Money
		CurrentBalance Money
		IsArchived     bool
		CreatedAt      time.Time
		UpdatedAt      time.Time
	}

	// Category labels transactions and splits. Group is optional.
	Category struct {
		ID        string
		Name      string
		GroupID   string
		GroupName string
		IsHidden  bool
		Icon      string
		Color     string
	}

	// Budget allocates a non-negative amount to one category for one
	// year-month period. Identity is (CategoryID, Period).
	Budget struct {
		CategoryID  string
		Period      Period
		AmountMinor int64
		Currency    Currency
		CreatedAt   time.Time
		UpdatedAt   time.Time
	}
)

// IsValid reports whether t is one of the supported account types.
func (t AccountType) IsValid() bool {
	switch t {
	case AccountChecking, AccountSavings, AccountCreditCard, AccountCash,
		AccountEWallet, AccountInvestment, AccountLoan, AccountOther:
		return true
	default:
		return false
	}
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return ValidationErr("name", ErrBlankName)
	}
	if !a.Type.IsValid() {
		return ValidationErr("type", errors.New("unknown account type"))
	}
	if _, ok := LookupCurrency(a.Currency.Code); !ok {
		return ValidationErr("currency", ErrUnknownCurrency)
	}
	if a.OpeningBalance.Currency.Code != a.Currency.Code {
		return ValidationErr("openingBalance", ErrCurrencyMismatch)
	}
	if a.CurrentBalance.Currency.Code != a.Currency.Code {
		return ValidationErr("currentBalance", ErrCurrencyMismatch)
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ValidationErr("name", ErrBlankName)
	}
	return nil
}

// DisplayName composes "Group: Name" when the category belongs to a group.
func (c Category) DisplayName() string {
	if c.GroupName != "" {
		return c.GroupName + ": " + c.Name
	}
	return c.Name
}

func (b Budget) Validate() error {
	if b.CategoryID == "" {
		return ValidationErr("categoryId", ErrBlankName)
	}
	if err := b.Period.Validate(); err != nil {
		return ValidationErr("period", err)
	}
	if b.AmountMinor < 0 {
		return ValidationErr("amount", ErrNegativeBudget)
	}
	if _, ok := LookupCurrency(b.Currency.Code); !ok {
		return ValidationErr("currency", ErrUnknownCurrency)
	}
	return nil
}

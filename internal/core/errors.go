package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrAmountOverflow   = errors.New("amount overflow")
	ErrCurrencyMismatch = errors.New("currency mismatch")
	ErrUnknownCurrency  = errors.New("unknown currency")
	ErrInvalidDate      = errors.New("invalid date")
	ErrBlankName        = errors.New("blank name")
	ErrZeroSplit        = errors.New("split amount cannot be zero")
	ErrSplitSumMismatch = errors.New("split amounts do not sum to transaction amount")
	ErrNegativeBudget   = errors.New("budget amount cannot be negative")
	ErrNotFound         = errors.New("not found")
)

// FailureKind classifies an error per the app-wide taxonomy.
type FailureKind int

const (
	// KindValidation covers user-correctable input problems.
	KindValidation FailureKind = iota
	// KindIntegrity covers corruption found in persisted data.
	KindIntegrity
	// KindMigration covers schema migration failures; these block startup.
	KindMigration
	// KindTransient covers I/O failures where a retry may succeed.
	KindTransient
)

func (k FailureKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindIntegrity:
		return "integrity"
	case KindMigration:
		return "migration"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Error is a classified failure. Every instance carries a human-readable
// message and whether a retry affordance should be offered.
type Error struct {
	Kind      FailureKind
	Field     string // optional field name for validation errors
	Msg       string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// ValidationErr builds a field-level validation error wrapping a sentinel.
func ValidationErr(field string, err error) *Error {
	return &Error{Kind: KindValidation, Field: field, Msg: err.Error(), Err: err}
}

// IntegrityErr marks persisted-data corruption. Never user-correctable.
func IntegrityErr(msg string, err error) *Error {
	return &Error{Kind: KindIntegrity, Msg: msg, Err: err}
}

// MigrationErr marks a schema migration failure. Fatal at startup.
func MigrationErr(msg string, err error) *Error {
	return &Error{Kind: KindMigration, Msg: msg, Err: err}
}

// TransientErr marks a recoverable I/O failure; retry is offered.
func TransientErr(msg string, err error) *Error {
	return &Error{Kind: KindTransient, Msg: msg, Retryable: true, Err: err}
}

// IsValidation reports whether err is classified as user-correctable.
func IsValidation(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindValidation
}

// IsIntegrity reports whether err indicates persisted-data corruption.
func IsIntegrity(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindIntegrity
}

// Retryable reports whether the user should be offered a retry.
func Retryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable
}

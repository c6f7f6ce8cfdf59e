// Package sheets appends committed transactions to a Google Sheets
// spreadsheet. It is a one-way mirror for people who review their ledger in
// a spreadsheet; the database remains the source of truth.
package sheets

import (
	"context"
	"errors"
	"fmt"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"banyg/internal/core"
	"banyg/internal/log"
)

// Options selects the target spreadsheet and the service account that writes
// to it. Exactly one of CredentialsJSON or CredentialsFile must be set.
type Options struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON []byte
	CredentialsFile string
}

type Exporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *log.Logger
}

func New(ctx context.Context, opts Options, logger *log.Logger) (*Exporter, error) {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	if opts.SpreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if opts.SheetName == "" {
		opts.SheetName = "Transactions"
	}

	var credOption goption.ClientOption
	switch {
	case len(opts.CredentialsJSON) > 0:
		credOption = goption.WithCredentialsJSON(opts.CredentialsJSON)
	case opts.CredentialsFile != "":
		credOption = goption.WithCredentialsFile(opts.CredentialsFile)
	default:
		return nil, errors.New("missing service account credentials")
	}

	svc, err := gsheet.NewService(ctx, credOption,
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Exporter{
		svc:           svc,
		spreadsheetID: opts.SpreadsheetID,
		sheetName:     opts.SheetName,
		logger:        logger.WithComponent(log.ComponentExport),
	}, nil
}

// AppendTransaction appends one transaction as a spreadsheet row. Amounts
// are written as display strings so no float ever carries money.
func (e *Exporter) AppendTransaction(ctx context.Context, t core.Transaction) error {
	if e.svc == nil {
		return errors.New("sheets service not initialized")
	}

	row := transactionRow(t)
	rng := fmt.Sprintf("%s!A:F", e.sheetName)
	vr := &gsheet.ValueRange{Values: [][]any{row}}

	_, err := e.svc.Spreadsheets.Values.Append(e.spreadsheetID, rng, vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append to sheet %s: %w", e.sheetName, err)
	}

	e.logger.InfoContext(ctx, "transaction exported",
		log.FieldTransactionID, t.ID,
		log.FieldAmountMinor, t.Amount.Minor)
	return nil
}

func transactionRow(t core.Transaction) []any {
	return []any{
		t.Date.String(),
		t.Merchant,
		t.Amount.Format(),
		string(t.Status),
		t.CategoryID,
		t.Memo,
	}
}

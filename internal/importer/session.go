package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"banyg/internal/core"
	"banyg/internal/log"
	"banyg/internal/storage"
)

// Ledger is the slice of the store the import session needs.
type Ledger interface {
	GetAccount(ctx context.Context, id string) (core.Account, error)
	ListPostingKeys(ctx context.Context) ([]storage.PostingKey, error)
	InsertTransactionsBatch(ctx context.Context, txns []core.Transaction) error
}

// RowStatus classifies a parsed CSV row after preview.
type RowStatus string

const (
	RowNew       RowStatus = "NEW"
	RowDuplicate RowStatus = "DUPLICATE"
	RowError     RowStatus = "ERROR"
)

// Row is one CSV line staged for import.
type Row struct {
	Index       int
	Record      []string
	Transaction core.Transaction
	Status      RowStatus
	Err         error
	Selected    bool
}

// Summary reports the outcome of a committed session.
type Summary struct {
	Imported   int
	Duplicates int
	Errors     int
	Deselected int
}

type sessionState int

const (
	stateLoaded sessionState = iota
	statePreviewed
	stateCommitted
)

// Session stages one CSV file against one account. It moves strictly
// forward: load, preview, commit.
type Session struct {
	ledger  Ledger
	logger  *log.Logger
	batchID string

	account core.Account
	rows    []Row
	state   sessionState
	maxRows int
}

// NewSession parses a CSV stream into a staged session for the given
// account. maxRows of 0 means no limit.
func NewSession(ctx context.Context, ledger Ledger, logger *log.Logger, accountID string, r io.Reader, mapping ColumnMapping, maxRows int) (*Session, error) {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	account, err := ledger.GetAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load import account: %w", err)
	}

	header, records, err := ReadRecords(r)
	if err != nil {
		return nil, err
	}
	if !mapping.Valid(len(header)) {
		return nil, core.ValidationErr("mapping", errors.New("column mapping outside header width"))
	}
	if maxRows > 0 && len(records) > maxRows {
		return nil, core.ValidationErr("file", fmt.Errorf("%d rows exceeds the limit of %d", len(records), maxRows))
	}

	s := &Session{
		ledger:  ledger,
		logger:  logger.WithComponent(log.ComponentImporter),
		batchID: uuid.NewString(),
		account: account,
		maxRows: maxRows,
	}
	now := time.Now().UTC().Truncate(time.Second)
	for i, record := range records {
		s.rows = append(s.rows, s.parseRow(i, record, mapping, now))
	}
	s.logger.InfoContext(ctx, "import session staged",
		log.FieldBatchID, s.batchID,
		log.FieldAccountID, accountID,
		log.FieldRows, len(s.rows))
	return s, nil
}

func (s *Session) parseRow(index int, record []string, m ColumnMapping, now time.Time) Row {
	row := Row{Index: index, Record: record, Status: RowError}
	if !m.Valid(len(record)) {
		row.Err = errors.New("row has fewer columns than the mapping")
		return row
	}

	date, err := parseRowDate(record[m.Date])
	if err != nil {
		row.Err = err
		return row
	}
	amount, err := parseRowAmount(record[m.Amount], s.account.Currency)
	if err != nil {
		row.Err = err
		return row
	}
	merchant := strings.TrimSpace(record[m.Merchant])
	if merchant == "" {
		row.Err = core.ErrBlankName
		return row
	}
	memo := ""
	if m.Memo >= 0 {
		memo = strings.TrimSpace(record[m.Memo])
	}

	row.Transaction = core.Transaction{
		ID:        uuid.NewString(),
		AccountID: s.account.ID,
		Date:      date,
		Amount:    amount,
		Merchant:  merchant,
		Memo:      memo,
		Status:    core.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	row.Status = RowNew
	row.Selected = true
	return row
}

// Preview classifies every parsed row against the existing ledger. A row is
// a duplicate when an existing non-void transaction shares its exact posting
// date, exact signed amount and normalized merchant. Duplicates are
// deselected and stay out of the commit.
func (s *Session) Preview(ctx context.Context) ([]Row, error) {
	if s.state == stateCommitted {
		return nil, errors.New("session already committed")
	}

	keys, err := s.ledger.ListPostingKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("load posting keys: %w", err)
	}
	existing := make(map[string]bool, len(keys))
	for _, k := range keys {
		existing[postingFingerprint(k.DateKey, k.AmountMinor, k.Merchant)] = true
	}

	// Rows within the same file also collide with each other.
	seen := make(map[string]bool, len(s.rows))
	for i := range s.rows {
		row := &s.rows[i]
		if row.Status == RowError {
			continue
		}
		fp := postingFingerprint(row.Transaction.Date.Key(), row.Transaction.Amount.Minor, row.Transaction.Merchant)
		if existing[fp] || seen[fp] {
			row.Status = RowDuplicate
			row.Selected = false
		} else {
			row.Status = RowNew
			row.Selected = true
			seen[fp] = true
		}
	}
	s.state = statePreviewed
	return s.Rows(), nil
}

// Rows returns a copy of the staged rows.
func (s *Session) Rows() []Row {
	out := make([]Row, len(s.rows))
	copy(out, s.rows)
	return out
}

// SetSelected overrides the selection of one row. Error rows can never be
// selected.
func (s *Session) SetSelected(index int, selected bool) error {
	if index < 0 || index >= len(s.rows) {
		return fmt.Errorf("row %d out of range", index)
	}
	if s.rows[index].Status == RowError {
		return core.ValidationErr("row", errors.New("cannot select a row that failed to parse"))
	}
	s.rows[index].Selected = selected
	return nil
}

// Commit writes the selected NEW rows in one atomic batch and seals the
// session. Either all of them land or none do. Duplicate and error rows are
// never committed, selected or not.
func (s *Session) Commit(ctx context.Context) (Summary, error) {
	if s.state != statePreviewed {
		return Summary{}, errors.New("commit requires a preview first")
	}

	var batch []core.Transaction
	var sum Summary
	for _, row := range s.rows {
		switch {
		case row.Status == RowError:
			sum.Errors++
		case row.Status == RowDuplicate:
			sum.Duplicates++
		case row.Selected:
			batch = append(batch, row.Transaction)
		default:
			sum.Deselected++
		}
	}

	if err := s.ledger.InsertTransactionsBatch(ctx, batch); err != nil {
		return Summary{}, fmt.Errorf("commit import batch: %w", err)
	}
	sum.Imported = len(batch)
	s.state = stateCommitted

	s.logger.InfoContext(ctx, "import committed",
		log.FieldBatchID, s.batchID,
		log.FieldRows, sum.Imported)
	return sum, nil
}

// postingFingerprint is the duplicate-detection key: exact date, exact
// signed amount, merchant normalized to lowercase with punctuation stripped
// and whitespace collapsed.
func postingFingerprint(dateKey, amountMinor int64, merchant string) string {
	return fmt.Sprintf("%d|%d|%s", dateKey, amountMinor, normalizeMerchant(merchant))
}

func normalizeMerchant(s string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		default:
			// punctuation and other symbols are dropped
		}
	}
	return strings.TrimSpace(b.String())
}

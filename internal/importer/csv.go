// Package importer turns bank CSV exports into ledger transactions through a
// staged session: parse, preview with duplicate detection, then an
// all-or-nothing commit.
package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"banyg/internal/core"
)

// ColumnMapping binds CSV columns to transaction fields. Memo is optional
// and -1 when the file has no memo column.
type ColumnMapping struct {
	Date     int
	Amount   int
	Merchant int
	Memo     int
}

// Valid reports whether the required columns are bound within the record
// width.
func (m ColumnMapping) Valid(width int) bool {
	for _, idx := range []int{m.Date, m.Amount, m.Merchant} {
		if idx < 0 || idx >= width {
			return false
		}
	}
	return m.Memo < width
}

// ReadRecords parses a CSV stream with a sniffed delimiter. The first record
// is returned separately as the header. Rows may be ragged; width checks
// happen per row during mapping.
func ReadRecords(r io.Reader) (header []string, rows [][]string, err error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("read csv: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil, core.ValidationErr("file", errors.New("empty file"))
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = sniffDelimiter(data)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, core.ValidationErr("file", fmt.Errorf("malformed csv: %w", err))
	}
	if len(records) == 0 {
		return nil, nil, core.ValidationErr("file", errors.New("no rows"))
	}
	return records[0], records[1:], nil
}

// sniffDelimiter picks the delimiter that splits the first line into the
// most fields. Comma wins ties.
func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	best, bestCount := ',', bytes.Count(line, []byte{','})
	for _, c := range []byte{';', '\t'} {
		if n := bytes.Count(line, []byte{c}); n > bestCount {
			best, bestCount = rune(c), n
		}
	}
	return best
}

// DetectMapping guesses a column mapping from header names. It reports false
// when any required column cannot be identified; the caller then asks the
// user to map columns by hand.
func DetectMapping(header []string) (ColumnMapping, bool) {
	m := ColumnMapping{Date: -1, Amount: -1, Merchant: -1, Memo: -1}
	for i, name := range header {
		switch key := strings.ToLower(strings.TrimSpace(name)); {
		case m.Date < 0 && matchesAny(key, "date", "posted", "transaction date", "posting date"):
			m.Date = i
		case m.Amount < 0 && matchesAny(key, "amount", "value", "debit/credit"):
			m.Amount = i
		case m.Merchant < 0 && matchesAny(key, "merchant", "payee", "description", "details", "name"):
			m.Merchant = i
		case m.Memo < 0 && matchesAny(key, "memo", "note", "notes", "remarks"):
			m.Memo = i
		}
	}
	return m, m.Date >= 0 && m.Amount >= 0 && m.Merchant >= 0
}

func matchesAny(key string, candidates ...string) bool {
	for _, c := range candidates {
		if key == c || strings.Contains(key, c) {
			return true
		}
	}
	return false
}

// dateLayouts are tried in order when parsing a CSV date cell.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"02 Jan 2006",
	"Jan 2, 2006",
}

func parseRowDate(cell string) (core.Date, error) {
	cell = strings.TrimSpace(cell)
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, cell); err == nil {
			return core.DateOf(ts), nil
		}
	}
	return core.Date{}, fmt.Errorf("unrecognized date %q: %w", cell, core.ErrInvalidDate)
}

// parseRowAmount reads a signed decimal amount cell. Currency symbols,
// thousands separators and accounting parentheses are tolerated.
func parseRowAmount(cell string, cur core.Currency) (core.Money, error) {
	cell = strings.TrimSpace(cell)
	negative := false
	if strings.HasPrefix(cell, "(") && strings.HasSuffix(cell, ")") {
		negative = true
		cell = cell[1 : len(cell)-1]
	}
	var b strings.Builder
	for _, r := range cell {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-', r == '+':
			b.WriteRune(r)
		}
	}
	m, err := core.ParseDecimal(b.String(), cur)
	if err != nil {
		return core.Money{}, fmt.Errorf("amount %q: %w", cell, err)
	}
	if negative {
		m = m.Neg()
	}
	return m, nil
}

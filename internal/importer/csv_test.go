package importer

import (
	"errors"
	"strings"
	"testing"

	"banyg/internal/core"
)

func TestReadRecordsSniffsDelimiter(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		fields int
	}{
		{"comma", "date,amount,payee\n2026-08-01,-100.00,Jollibee\n", 3},
		{"semicolon", "date;amount;payee\n2026-08-01;-100,00;Jollibee\n", 3},
		{"tab", "date\tamount\tpayee\n2026-08-01\t-100.00\tJollibee\n", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header, rows, err := ReadRecords(strings.NewReader(tt.input))
			if err != nil {
				t.Fatalf("ReadRecords: %v", err)
			}
			if len(header) != tt.fields {
				t.Fatalf("header fields = %d, want %d", len(header), tt.fields)
			}
			if len(rows) != 1 || len(rows[0]) != tt.fields {
				t.Fatalf("rows = %+v, want one row of %d fields", rows, tt.fields)
			}
		})
	}
}

func TestReadRecordsRejectsEmptyFile(t *testing.T) {
	_, _, err := ReadRecords(strings.NewReader("  \n "))
	if !core.IsValidation(err) {
		t.Fatalf("ReadRecords error = %v, want validation failure", err)
	}
}

func TestDetectMapping(t *testing.T) {
	tests := []struct {
		name   string
		header []string
		want   ColumnMapping
		ok     bool
	}{
		{
			name:   "standard bank export",
			header: []string{"Date", "Description", "Amount", "Notes"},
			want:   ColumnMapping{Date: 0, Merchant: 1, Amount: 2, Memo: 3},
			ok:     true,
		},
		{
			name:   "payee naming",
			header: []string{"Posting Date", "Payee", "Value"},
			want:   ColumnMapping{Date: 0, Merchant: 1, Amount: 2, Memo: -1},
			ok:     true,
		},
		{
			name:   "missing amount",
			header: []string{"Date", "Payee"},
			ok:     false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DetectMapping(tt.header)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Fatalf("mapping = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseRowDate(t *testing.T) {
	want := core.Date{Year: 2026, Month: 8, Day: 1}
	for _, cell := range []string{"2026-08-01", "2026/08/01", "08/01/2026", "01 Aug 2026", "Aug 1, 2026"} {
		got, err := parseRowDate(cell)
		if err != nil {
			t.Fatalf("parseRowDate(%q): %v", cell, err)
		}
		if got != want {
			t.Fatalf("parseRowDate(%q) = %v, want %v", cell, got, want)
		}
	}

	if _, err := parseRowDate("yesterday"); !errors.Is(err, core.ErrInvalidDate) {
		t.Fatalf("parseRowDate(yesterday) = %v, want ErrInvalidDate", err)
	}
}

func TestParseRowAmount(t *testing.T) {
	php, _ := core.LookupCurrency("PHP")
	jpy, _ := core.LookupCurrency("JPY")

	tests := []struct {
		cell string
		cur  core.Currency
		want int64
	}{
		{"-100.50", php, -10050},
		{"1,234.56", php, 123456},
		{"₱ 250.00", php, 25000},
		{"(42.00)", php, -4200},
		{"+10", php, 1000},
		{"1500", jpy, 1500},
	}
	for _, tt := range tests {
		got, err := parseRowAmount(tt.cell, tt.cur)
		if err != nil {
			t.Fatalf("parseRowAmount(%q): %v", tt.cell, err)
		}
		if got.Minor != tt.want {
			t.Fatalf("parseRowAmount(%q) = %d, want %d", tt.cell, got.Minor, tt.want)
		}
	}

	if _, err := parseRowAmount("n/a", php); err == nil {
		t.Fatal("parseRowAmount accepted a non-numeric cell")
	}
}

func TestNormalizeMerchant(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Jollibee", "jollibee"},
		{"  JOLLIBEE   #123  ", "jollibee 123"},
		{"S.M. Super-Market", "sm supermarket"},
		{"Café São Paulo", "café são paulo"},
	}
	for _, tt := range tests {
		if got := normalizeMerchant(tt.in); got != tt.want {
			t.Fatalf("normalizeMerchant(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

package core

import (
	"fmt"
	"time"
)

// Date is a calendar date without a time component. Transactions are posted
// on dates, not instants; time zones never shift a posting.
type Date struct {
	Year  int
	Month int
	Day   int
}

// NewDate builds a date from year, month and day.
func NewDate(year, month, day int) Date {
	return Date{Year: year, Month: month, Day: day}
}

// DateOf truncates an instant to its calendar date in UTC.
func DateOf(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return Date{Year: y, Month: int(m), Day: d}
}

// Validate rejects impossible calendar dates, including month/day overflow
// like February 30.
func (d Date) Validate() error {
	if d.Year < 1 || d.Month < 1 || d.Month > 12 || d.Day < 1 || d.Day > 31 {
		return ErrInvalidDate
	}
	t := time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC)
	if t.Year() != d.Year || int(t.Month()) != d.Month || t.Day() != d.Day {
		return ErrInvalidDate
	}
	return nil
}

// Key encodes the date as year*10000 + month*100 + day, the persisted
// integer form. Single-digit months and days occupy their padded positions,
// so 2026-01-05 encodes as 20260105.
func (d Date) Key() int64 {
	return int64(d.Year)*10000 + int64(d.Month)*100 + int64(d.Day)
}

// DateFromKey is the exact inverse of Key.
func DateFromKey(key int64) Date {
	return Date{
		Year:  int(key / 10000),
		Month: int(key / 100 % 100),
		Day:   int(key % 100),
	}
}

// Time returns the date at midnight UTC.
func (d Date) Time() time.Time {
	return time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC)
}

// Before reports whether d is earlier than o.
func (d Date) Before(o Date) bool { return d.Key() < o.Key() }

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Period is a year-month budget key.
type Period struct {
	Year  int
	Month int
}

// PeriodOf returns the period containing a date.
func PeriodOf(d Date) Period {
	return Period{Year: d.Year, Month: d.Month}
}

// Validate rejects impossible year-month pairs.
func (p Period) Validate() error {
	if p.Year < 1 || p.Month < 1 || p.Month > 12 {
		return ErrInvalidDate
	}
	return nil
}

// Key returns the persisted "YYYY-MM" form.
func (p Period) Key() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// PeriodFromKey parses a "YYYY-MM" key.
func PeriodFromKey(key string) (Period, error) {
	var p Period
	if _, err := fmt.Sscanf(key, "%04d-%02d", &p.Year, &p.Month); err != nil {
		return Period{}, fmt.Errorf("parse period %q: %w", key, ErrInvalidDate)
	}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

func (p Period) String() string { return p.Key() }

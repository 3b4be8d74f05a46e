package payroll

import (
	"fmt"
	"time"
)

// Period is a payroll month in YYYY-MM form.
type Period string

var monthNames = [...]string{
	"ENERO", "FEBRERO", "MARZO", "ABRIL", "MAYO", "JUNIO",
	"JULIO", "AGOSTO", "SEPTIEMBRE", "OCTUBRE", "NOVIEMBRE", "DICIEMBRE",
}

func ParsePeriod(value string) (Period, error) {
	t, err := time.Parse("2006-01", value)
	if err != nil || len(value) != 7 {
		return "", fmt.Errorf("%w: %q", ErrInvalidPeriod, value)
	}
	return Period(t.Format("2006-01")), nil
}

func (p Period) String() string {
	return string(p)
}

func (p Period) month() time.Time {
	t, err := time.Parse("2006-01", string(p))
	if err != nil {
		return time.Time{}
	}
	return t
}

// Start is the first calendar day of the period.
func (p Period) Start() time.Time {
	return p.month()
}

// End is the last calendar day of the period.
func (p Period) End() time.Time {
	return p.month().AddDate(0, 1, -1)
}

// Contains reports whether the calendar date of t falls inside the period,
// both ends inclusive.
func (p Period) Contains(t time.Time) bool {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return !day.Before(p.Start()) && !day.After(p.End())
}

func (p Period) MonthName() string {
	m := p.month()
	if m.IsZero() {
		return ""
	}
	return monthNames[m.Month()-1]
}

func (p Period) Year() int {
	return p.month().Year()
}

package core

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Period is a "recent" window such as 2 weeks or 6 months.
type Period struct {
	Amount int
	Unit   string
}

var (
	ErrInvalidPeriod = errors.New("invalid period")

	periodPattern = regexp.MustCompile(`^([0-9]+)([a-z]+)$`)
)

// ParsePeriod parses the compact URL form, e.g. "2weeks" or "1years".
func ParsePeriod(s string) (Period, error) {
	m := periodPattern.FindStringSubmatch(s)
	if m == nil {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	p := Period{Amount: n, Unit: m[2]}
	if !validUnit(p.Unit) {
		return Period{}, fmt.Errorf("%w: unknown unit %q", ErrInvalidPeriod, p.Unit)
	}
	return p, nil
}

// String renders the period the way ParsePeriod reads it, e.g. "2weeks".
func (p Period) String() string {
	return strconv.Itoa(p.Amount) + p.Unit
}

// Start returns the beginning of the window that ends at end.
func (p Period) Start(end time.Time) (time.Time, error) {
	return SubtractPeriod(end, p.Amount, p.Unit)
}

func validUnit(unit string) bool {
	switch unit {
	case "years", "months", "weeks", "days", "hours", "minutes", "seconds":
		return true
	}
	return false
}

// SubtractPeriod subtracts amount units from end.
//
// Years and months have no fixed duration, so they decrement the calendar
// field the way a person means "one month ago". A resulting day that does
// not exist (February 30th) rolls forward to the first of the next month.
// Weeks through seconds are fixed durations.
func SubtractPeriod(end time.Time, amount int, unit string) (time.Time, error) {
	if amount < 0 {
		return time.Time{}, fmt.Errorf("%w: amount may not be negative", ErrInvalidPeriod)
	}
	switch unit {
	case "years":
		return replaceYearMonth(end, end.Year()-amount, int(end.Month())), nil
	case "months":
		total := end.Year()*12 + int(end.Month()) - 1 - amount
		year, month := floorDiv(total, 12), floorMod(total, 12)+1
		return replaceYearMonth(end, year, month), nil
	case "weeks":
		return end.Add(-time.Duration(amount) * 7 * 24 * time.Hour), nil
	case "days":
		return end.Add(-time.Duration(amount) * 24 * time.Hour), nil
	case "hours":
		return end.Add(-time.Duration(amount) * time.Hour), nil
	case "minutes":
		return end.Add(-time.Duration(amount) * time.Minute), nil
	case "seconds":
		return end.Add(-time.Duration(amount) * time.Second), nil
	}
	return time.Time{}, fmt.Errorf("%w: unknown unit %q", ErrInvalidPeriod, unit)
}

func replaceYearMonth(t time.Time, year, month int) time.Time {
	day := t.Day()
	if day > daysIn(year, month) {
		// roll forward to the first of the following month
		year, month, day = year+month/12, month%12+1, 1
	}
	return time.Date(year, time.Month(month), day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func floorMod(a, b int) int {
	return a - floorDiv(a, b)*b
}

// Package cadence defines the billing cadences a lease can use and the due-date
// and late-fee rules that follow from each one.
package cadence

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/matthewbaird/rentledger/internal/policy"
)

// Cadence is the billing frequency of a lease.
type Cadence string

const (
	Weekly   Cadence = "weekly"
	Biweekly Cadence = "bi-weekly"
	Monthly  Cadence = "monthly"
)

// DueWeekday is the weekday weekly and bi-weekly rent falls due on.
const DueWeekday = time.Friday

// MonthlyDueDays are the days of the month monthly rent may fall due on.
var MonthlyDueDays = []int{1, 15}

// ErrUnknownCadence is returned by Parse for values Normalize does not recognize.
var ErrUnknownCadence = errors.New("unknown cadence")

// Normalize maps a stored or user-supplied cadence string onto a Cadence.
// Matching ignores case and any '-', '_' or space separators. Unrecognized
// input falls back to Monthly with ok=false; it never fails, so rows written
// with inconsistent spellings keep working.
func Normalize(s string) (c Cadence, ok bool) {
	key := strings.Map(func(r rune) rune {
		switch r {
		case '-', '_', ' ', '\t':
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(s)))

	switch key {
	case "weekly", "week":
		return Weekly, true
	case "biweekly", "fortnightly", "everytwoweeks":
		return Biweekly, true
	case "monthly", "month":
		return Monthly, true
	}
	return Monthly, false
}

// Parse is the strict form of Normalize used for new input.
func Parse(s string) (Cadence, error) {
	c, ok := Normalize(s)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCadence, s)
	}
	return c, nil
}

// IntervalDays is the period length used to count how many periods a
// payment is late. Monthly counts as 30 days.
func (c Cadence) IntervalDays() int {
	switch c {
	case Weekly:
		return 7
	case Biweekly:
		return 14
	}
	return 30
}

// UsesDueDay reports whether the lease's rent-due-day applies. Weekly and
// bi-weekly rent is always due on DueWeekday.
func (c Cadence) UsesDueDay() bool {
	return c == Monthly
}

// ValidDueDay reports whether day is an allowed monthly due day.
func ValidDueDay(day int) bool {
	for _, d := range MonthlyDueDays {
		if d == day {
			return true
		}
	}
	return false
}

// FirstDue returns the first due date on or after start. dueDay is only
// consulted for Monthly and must be one of MonthlyDueDays.
func (c Cadence) FirstDue(start time.Time, dueDay int) time.Time {
	if c.UsesDueDay() {
		y, m, d := start.Date()
		if d > dueDay {
			m++
		}
		return time.Date(y, m, dueDay, 0, 0, 0, 0, time.UTC)
	}
	offset := (int(DueWeekday) - int(start.Weekday()) + 7) % 7
	y, m, d := start.Date()
	return time.Date(y, m, d+offset, 0, 0, 0, 0, time.UTC)
}

// Next returns the due date following due.
func (c Cadence) Next(due time.Time) time.Time {
	switch c {
	case Weekly:
		return due.AddDate(0, 0, 7)
	case Biweekly:
		return due.AddDate(0, 0, 14)
	}
	// Due days are 1 or 15, so AddDate never overflows into the next month.
	return due.AddDate(0, 1, 0)
}

// DefaultLateFee is the per-late-period fee for the cadence under p.
func (c Cadence) DefaultLateFee(p policy.Policy) decimal.Decimal {
	switch c {
	case Weekly:
		return p.WeeklyLateFee
	case Biweekly:
		return p.BiweeklyLateFee
	}
	return p.MonthlyLateFee
}

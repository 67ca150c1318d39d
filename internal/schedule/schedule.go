// Package schedule turns a lease into its ordered rent periods and plans
// regeneration when a lease changes. It is pure: callers persist the output.
package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/matthewbaird/rentledger/internal/cadence"
	"github.com/matthewbaird/rentledger/internal/types"
)

// MaxPeriods bounds a single lease's schedule.
const MaxPeriods = 1200

// ValidationError lists every problem found with a lease.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid lease: " + strings.Join(e.Problems, "; ")
}

// Result is the outcome of generating a lease's schedule.
type Result struct {
	Periods []types.RentPeriod
	// Cadence is the cadence actually used, after normalization.
	Cadence cadence.Cadence
	// Warnings are data-quality conditions that did not stop generation,
	// such as an unrecognized stored cadence falling back to monthly.
	Warnings []string
}

// Validate checks the fields generation depends on. A cadence that cannot be
// normalized is not a validation failure here; Generate falls back instead.
func Validate(l types.Lease) error {
	var problems []string
	if l.StartDate.IsZero() {
		problems = append(problems, "start_date is required")
	}
	if l.EndDate.IsZero() {
		problems = append(problems, "end_date is required")
	}
	if !l.StartDate.IsZero() && !l.EndDate.IsZero() && types.Day(l.EndDate).Before(types.Day(l.StartDate)) {
		problems = append(problems, "end_date must not be before start_date")
	}
	if !l.Rent.IsPositive() {
		problems = append(problems, "rent must be greater than zero")
	}
	if l.MoveInFee.IsNegative() {
		problems = append(problems, "move_in_fee must not be negative")
	}
	if l.LateFeeOverride != nil && l.LateFeeOverride.IsNegative() {
		problems = append(problems, "late_fee_override must not be negative")
	}
	if c, ok := cadence.Normalize(string(l.Cadence)); ok && c.UsesDueDay() && !cadence.ValidDueDay(l.RentDueDay) {
		problems = append(problems, fmt.Sprintf("rent_due_day must be one of %v for monthly leases", cadence.MonthlyDueDays))
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// Generate produces the lease's periods from its start date through its
// effective end date, inclusive. Every period snapshots the lease's current
// rent and starts unpaid.
func Generate(l types.Lease) (Result, error) {
	if err := Validate(l); err != nil {
		return Result{}, err
	}

	var res Result
	c, ok := cadence.Normalize(string(l.Cadence))
	if !ok {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("lease %s: cadence %q not recognized, using monthly", l.ID, l.Cadence))
	}
	res.Cadence = c

	dueDay := l.RentDueDay
	if c.UsesDueDay() && !cadence.ValidDueDay(dueDay) {
		// Only reachable after a cadence fallback; Validate rejects it otherwise.
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("lease %s: rent_due_day %d not valid for monthly fallback, using 1", l.ID, dueDay))
		dueDay = cadence.MonthlyDueDays[0]
	}

	end := types.Day(l.EffectiveEnd())
	for due := c.FirstDue(types.Day(l.StartDate), dueDay); !due.After(end); due = c.Next(due) {
		if len(res.Periods) == MaxPeriods {
			return Result{}, &ValidationError{Problems: []string{
				fmt.Sprintf("lease term produces more than %d periods", MaxPeriods),
			}}
		}
		res.Periods = append(res.Periods, newPeriod(l, due))
	}
	if len(res.Periods) == 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"lease %s: no %s due date falls between %s and %s, no periods generated",
			l.ID, c, types.FormatDate(l.StartDate), types.FormatDate(end)))
	}
	return res, nil
}

func newPeriod(l types.Lease, due time.Time) types.RentPeriod {
	return types.RentPeriod{
		ID:             uuid.New(),
		LeaseID:        l.ID,
		DueDate:        due,
		RentAmount:     l.Rent,
		AmountPaid:     decimal.Zero,
		Status:         types.PeriodUnpaid,
		LateFeeApplied: decimal.Zero,
		LateFeeSource:  types.LateFeeNone,
	}
}

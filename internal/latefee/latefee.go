// Package latefee decides whether a rent period is late and what fee applies.
// Assessment is recomputed from scratch on every call, so running it twice
// with the same as-of date yields the same fee.
package latefee

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/matthewbaird/rentledger/internal/cadence"
	"github.com/matthewbaird/rentledger/internal/policy"
	"github.com/matthewbaird/rentledger/internal/types"
)

// ErrNegativeFee is returned when a manual override is below zero.
var ErrNegativeFee = errors.New("late fee must not be negative")

var hundred = decimal.NewFromInt(100)

// Params are the lease-level inputs to assessment.
type Params struct {
	Cadence   cadence.Cadence
	Rate      decimal.Decimal // fee per late period
	GraceDays int
	// MaxPercent caps a period's fee as a percent of its rent. Zero disables it.
	MaxPercent decimal.Decimal
}

// ParamsFor derives assessment parameters for a lease. The lease's override
// replaces the cadence default when set.
func ParamsFor(l types.Lease, p policy.Policy) Params {
	c, _ := cadence.Normalize(string(l.Cadence))
	rate := c.DefaultLateFee(p)
	if l.LateFeeOverride != nil {
		rate = *l.LateFeeOverride
	}
	return Params{
		Cadence:    c,
		Rate:       rate,
		GraceDays:  p.GraceDays,
		MaxPercent: p.MaxLateFeePercent,
	}
}

// Decision is the outcome of assessing one period.
type Decision struct {
	PeriodID    string          `json:"period_id"`
	Late        bool            `json:"late"`
	DaysLate    int             `json:"days_late"`
	PeriodsLate int             `json:"periods_late"`
	Fee         decimal.Decimal `json:"fee"`
	Waived      bool            `json:"waived"`
	Capped      bool            `json:"capped,omitempty"`
}

// Assess computes the late fee for period as of asOf. A period is late when
// it is not paid and more than GraceDays have passed since its due date;
// the fee is Rate times the number of cadence intervals elapsed, rounded up.
func Assess(period types.RentPeriod, asOf time.Time, params Params) Decision {
	d := Decision{PeriodID: period.ID.String(), Fee: decimal.Zero}
	if period.Status == types.PeriodPaid {
		return d
	}
	days := types.DaysBetween(period.DueDate, asOf)
	if days <= params.GraceDays {
		return d
	}

	interval := params.Cadence.IntervalDays()
	d.Late = true
	d.DaysLate = days
	d.PeriodsLate = (days + interval - 1) / interval
	d.Fee = params.Rate.Mul(decimal.NewFromInt(int64(d.PeriodsLate)))

	if params.MaxPercent.IsPositive() {
		limit := period.RentAmount.Mul(params.MaxPercent).Div(hundred).Round(2)
		if d.Fee.GreaterThan(limit) {
			d.Fee = limit
			d.Capped = true
		}
	}
	return d
}

// ShouldAssess reports whether the automatic pass may write to period.
// A manual override is left alone unless the operator forces reassessment.
func ShouldAssess(period types.RentPeriod, force bool) bool {
	return force || period.LateFeeSource != types.LateFeeManual
}

// Apply writes an automatic decision onto period and reports whether
// anything changed.
func Apply(period *types.RentPeriod, d Decision, asOf time.Time) bool {
	source := types.LateFeeAutomatic
	if !d.Late && period.LateFeeSource == types.LateFeeNone {
		source = types.LateFeeNone
	}
	if period.LateFeeApplied.Equal(d.Fee) && !period.LateFeeWaived && period.LateFeeSource == source {
		return false
	}
	at := types.Day(asOf)
	period.LateFeeApplied = d.Fee
	period.LateFeeWaived = false
	period.LateFeeSource = source
	period.LateFeeAssessedAt = &at
	period.LateFeeSetBy = ""
	period.LateFeeSetAt = nil
	return true
}

// Override sets a period's late fee by hand. A zero fee marks it waived.
func Override(period *types.RentPeriod, fee decimal.Decimal, by string, at time.Time) error {
	if fee.IsNegative() {
		return ErrNegativeFee
	}
	period.LateFeeApplied = fee
	period.LateFeeWaived = fee.IsZero()
	period.LateFeeSource = types.LateFeeManual
	period.LateFeeSetBy = by
	period.LateFeeSetAt = &at
	period.LateFeeAssessedAt = nil
	return nil
}

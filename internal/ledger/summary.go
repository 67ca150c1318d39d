package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/matthewbaird/rentledger/internal/types"
)

// LeaseSummary totals what a tenant owes under a lease as of a date.
type LeaseSummary struct {
	LeaseID         uuid.UUID         `json:"lease_id"`
	Status          types.LeaseStatus `json:"status"`
	AsOf            time.Time         `json:"as_of"`
	PeriodsDue      int               `json:"periods_due"`
	PeriodsPaid     int               `json:"periods_paid"`
	PeriodsPartial  int               `json:"periods_partial"`
	PeriodsUnpaid   int               `json:"periods_unpaid"`
	PeriodsOverdue  int               `json:"periods_overdue"`
	RentOutstanding decimal.Decimal   `json:"rent_outstanding"`
	LateFees        decimal.Decimal   `json:"late_fees"`
	TotalDue        decimal.Decimal   `json:"total_due"`
	Band            string            `json:"band"`
	NextDue         *time.Time        `json:"next_due,omitempty"`
	PeriodsPending  bool              `json:"periods_pending"`
}

// Summary totals the periods of a lease that are due on or before asOf.
// Waived late fees are not counted. A zero asOf means today.
func (s *Service) Summary(ctx context.Context, leaseID uuid.UUID, asOf time.Time) (LeaseSummary, error) {
	if asOf.IsZero() {
		asOf = s.today()
	}
	asOf = types.Day(asOf)

	l, err := s.store.GetLease(ctx, leaseID)
	if err != nil {
		return LeaseSummary{}, err
	}
	periods, err := s.store.ListPeriods(ctx, leaseID)
	if err != nil {
		return LeaseSummary{}, err
	}

	sum := LeaseSummary{
		LeaseID:         l.ID,
		Status:          l.Status,
		AsOf:            asOf,
		RentOutstanding: decimal.Zero,
		LateFees:        decimal.Zero,
		PeriodsPending:  l.PeriodsPending,
	}
	for _, p := range periods {
		if p.DueDate.After(asOf) {
			if sum.NextDue == nil {
				due := p.DueDate
				sum.NextDue = &due
			}
			continue
		}
		sum.PeriodsDue++
		switch p.Status {
		case types.PeriodPaid:
			sum.PeriodsPaid++
		case types.PeriodPartial:
			sum.PeriodsPartial++
		default:
			sum.PeriodsUnpaid++
		}
		if p.Status != types.PeriodPaid && types.DaysBetween(p.DueDate, asOf) > s.policy.GraceDays {
			sum.PeriodsOverdue++
		}
		sum.RentOutstanding = sum.RentOutstanding.Add(p.Outstanding())
		if !p.LateFeeWaived {
			sum.LateFees = sum.LateFees.Add(p.LateFeeApplied)
		}
	}
	sum.TotalDue = sum.RentOutstanding.Add(sum.LateFees)
	sum.Band = s.policy.Band(sum.TotalDue)
	return sum, nil
}

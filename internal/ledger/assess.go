package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/matthewbaird/rentledger/internal/event"
	"github.com/matthewbaird/rentledger/internal/latefee"
	"github.com/matthewbaird/rentledger/internal/store"
	"github.com/matthewbaird/rentledger/internal/types"
)

// Assessment is the outcome of one "assess now" pass over a lease.
type Assessment struct {
	LeaseID   uuid.UUID          `json:"lease_id"`
	AsOf      time.Time          `json:"as_of"`
	Forced    bool               `json:"forced"`
	Decisions []latefee.Decision `json:"decisions"`
	// Skipped lists periods whose manual fee the pass left alone.
	Skipped       []uuid.UUID     `json:"skipped_manual,omitempty"`
	Changed       int             `json:"changed"`
	TotalLateFees decimal.Decimal `json:"total_late_fees"`
}

// AssessLease recomputes late fees for every period of a lease as of asOf
// (today when zero). Manually set fees are skipped unless force is set.
// Running it twice with the same asOf changes nothing the second time.
func (s *Service) AssessLease(ctx context.Context, leaseID uuid.UUID, asOf time.Time, force bool, audit types.Audit) (Assessment, error) {
	if asOf.IsZero() {
		asOf = s.today()
	}
	asOf = types.Day(asOf)

	res := Assessment{LeaseID: leaseID, AsOf: asOf, Forced: force, TotalLateFees: decimal.Zero}
	var events []event.DomainEvent
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		l, err := tx.GetLease(ctx, leaseID)
		if err != nil {
			return err
		}
		params := latefee.ParamsFor(l, s.policy)
		periods, err := tx.ListPeriods(ctx, leaseID)
		if err != nil {
			return err
		}
		for _, p := range periods {
			if !latefee.ShouldAssess(p, force) {
				res.Skipped = append(res.Skipped, p.ID)
				res.TotalLateFees = res.TotalLateFees.Add(p.LateFeeApplied)
				continue
			}
			d := latefee.Assess(p, asOf, params)
			res.Decisions = append(res.Decisions, d)
			previous := p.LateFeeApplied
			if latefee.Apply(&p, d, asOf) {
				if _, err := tx.UpdatePeriod(ctx, p); err != nil {
					return err
				}
				res.Changed++
				events = append(events, event.NewLateFeeAssessed(event.LateFeeAssessedPayload{
					LeaseID:     leaseID.String(),
					PeriodID:    p.ID.String(),
					DueDate:     types.FormatDate(p.DueDate),
					AsOf:        types.FormatDate(asOf),
					DaysLate:    d.DaysLate,
					PeriodsLate: d.PeriodsLate,
					PreviousFee: previous,
					Fee:         d.Fee,
				}))
			}
			res.TotalLateFees = res.TotalLateFees.Add(p.LateFeeApplied)
		}
		return nil
	})
	if err != nil {
		return Assessment{}, fmt.Errorf("assessing lease %s: %w", leaseID, err)
	}
	s.emit(ctx, audit, events...)
	return res, nil
}

// AssessTenant runs AssessLease on the tenant's active lease at a property.
func (s *Service) AssessTenant(ctx context.Context, tenantID, propertyID uuid.UUID, asOf time.Time, force bool, audit types.Audit) (Assessment, error) {
	l, err := s.store.ActiveLease(ctx, tenantID, propertyID)
	if err != nil {
		return Assessment{}, err
	}
	return s.AssessLease(ctx, l.ID, asOf, force, audit)
}

// OverrideInput is a manual late fee for one period.
type OverrideInput struct {
	Fee decimal.Decimal
	// Version, when set, must match the period's stored version.
	Version *int
}

// OverrideLateFee sets a period's late fee by hand. A zero fee waives it.
// The next automatic pass leaves it alone unless forced.
func (s *Service) OverrideLateFee(ctx context.Context, periodID uuid.UUID, in OverrideInput, audit types.Audit) (types.RentPeriod, error) {
	var (
		out types.RentPeriod
		evt event.DomainEvent
	)
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		p, err := tx.GetPeriod(ctx, periodID)
		if err != nil {
			return err
		}
		if in.Version != nil && *in.Version != p.Version {
			return fmt.Errorf("period %s is at version %d, not %d: %w", periodID, p.Version, *in.Version, store.ErrConflict)
		}
		previous := p.LateFeeApplied
		if err := latefee.Override(&p, in.Fee, audit.Actor, s.now().UTC()); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalid, err)
		}
		out, err = tx.UpdatePeriod(ctx, p)
		if err != nil {
			return err
		}
		evt = event.NewLateFeeOverridden(event.LateFeeOverriddenPayload{
			LeaseID:     p.LeaseID.String(),
			PeriodID:    p.ID.String(),
			PreviousFee: previous,
			Fee:         p.LateFeeApplied,
			Waived:      p.LateFeeWaived,
			SetBy:       audit.Actor,
		})
		return nil
	})
	if err != nil {
		return types.RentPeriod{}, fmt.Errorf("overriding late fee on period %s: %w", periodID, err)
	}
	s.emit(ctx, audit, evt)
	return out, nil
}

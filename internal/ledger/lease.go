package ledger

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/matthewbaird/rentledger/internal/cadence"
	"github.com/matthewbaird/rentledger/internal/event"
	"github.com/matthewbaird/rentledger/internal/schedule"
	"github.com/matthewbaird/rentledger/internal/store"
	"github.com/matthewbaird/rentledger/internal/types"
)

// LeaseInput is a new lease as submitted by a caller.
type LeaseInput struct {
	TenantID        uuid.UUID
	PropertyID      uuid.UUID
	Rent            decimal.Decimal
	Cadence         string
	RentDueDay      int
	StartDate       time.Time
	EndDate         time.Time
	MoveInFee       decimal.Decimal
	LateFeeOverride *decimal.Decimal
}

// LeasePatch lists the fields to change on a lease. Nil fields are left
// alone.
type LeasePatch struct {
	Rent                 *decimal.Decimal
	Cadence              *string
	RentDueDay           *int
	EndDate              *time.Time
	MoveInFee            *decimal.Decimal
	LateFeeOverride      *decimal.Decimal
	ClearLateFeeOverride bool
	Status               *types.LeaseStatus
}

// LeaseResult is a lease together with its current periods.
type LeaseResult struct {
	Lease    types.Lease        `json:"lease"`
	Periods  []types.RentPeriod `json:"periods"`
	Warnings []string           `json:"warnings,omitempty"`
}

// CreateLease validates and saves a lease, then generates its periods.
// Invalid input is rejected with nothing saved. If the lease is saved but
// its periods cannot be, the lease stays with PeriodsPending set and the
// result carries a warning; RegeneratePeriods retries.
func (s *Service) CreateLease(ctx context.Context, in LeaseInput, audit types.Audit) (LeaseResult, error) {
	c, err := cadence.Parse(in.Cadence)
	if err != nil {
		return LeaseResult{}, &schedule.ValidationError{Problems: []string{err.Error()}}
	}
	l := types.Lease{
		ID:              uuid.New(),
		TenantID:        in.TenantID,
		PropertyID:      in.PropertyID,
		Rent:            in.Rent,
		Cadence:         c,
		RentDueDay:      in.RentDueDay,
		StartDate:       types.Day(in.StartDate),
		EndDate:         types.Day(in.EndDate),
		Status:          types.LeaseActive,
		MoveInFee:       in.MoveInFee,
		LateFeeOverride: in.LateFeeOverride,
		CreatedBy:       audit.Actor,
		UpdatedBy:       audit.Actor,
		Source:          audit.Source,
	}
	if !c.UsesDueDay() {
		l.RentDueDay = 0
	}
	gen, err := schedule.Generate(l)
	if err != nil {
		return LeaseResult{}, err
	}

	if err := s.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.InsertLease(ctx, l)
	}); err != nil {
		return LeaseResult{}, fmt.Errorf("creating lease: %w", err)
	}

	created := func(periods int) event.DomainEvent {
		return event.NewLeaseCreated(event.LeaseCreatedPayload{
			LeaseID:    l.ID.String(),
			TenantID:   l.TenantID.String(),
			PropertyID: l.PropertyID.String(),
			Cadence:    string(gen.Cadence),
			Rent:       l.Rent,
			StartDate:  types.FormatDate(l.StartDate),
			EndDate:    types.FormatDate(l.EndDate),
			Periods:    periods,
			Warnings:   gen.Warnings,
		})
	}

	if err := s.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.InsertPeriods(ctx, gen.Periods)
	}); err != nil {
		log.Printf("ledger: lease %s created but period generation failed: %v", l.ID, err)
		warning := fmt.Sprintf("lease created but period generation failed: %v", err)
		if perr := s.markPending(ctx, l.ID); perr != nil {
			log.Printf("ledger: flagging lease %s for period generation: %v", l.ID, perr)
		}
		s.emit(ctx, audit, created(0), event.NewPeriodGenerationFailed(event.PeriodGenerationFailedPayload{
			LeaseID: l.ID.String(),
			Error:   err.Error(),
		}))
		res, lerr := s.loadLease(ctx, l.ID)
		if lerr != nil {
			return LeaseResult{}, lerr
		}
		res.Warnings = append(gen.Warnings, warning)
		return res, nil
	}

	s.emit(ctx, audit, created(len(gen.Periods)))
	res, err := s.loadLease(ctx, l.ID)
	if err != nil {
		return LeaseResult{}, err
	}
	res.Warnings = gen.Warnings
	return res, nil
}

func (s *Service) markPending(ctx context.Context, id uuid.UUID) error {
	return s.store.WithTx(ctx, func(tx store.Tx) error {
		l, err := tx.GetLease(ctx, id)
		if err != nil {
			return err
		}
		l.PeriodsPending = true
		return tx.UpdateLease(ctx, l)
	})
}

// GetLease returns a lease.
func (s *Service) GetLease(ctx context.Context, id uuid.UUID) (types.Lease, error) {
	return s.store.GetLease(ctx, id)
}

// ListPeriods returns a lease's periods ordered by due date.
func (s *Service) ListPeriods(ctx context.Context, leaseID uuid.UUID) ([]types.RentPeriod, error) {
	if _, err := s.store.GetLease(ctx, leaseID); err != nil {
		return nil, err
	}
	return s.store.ListPeriods(ctx, leaseID)
}

func (s *Service) loadLease(ctx context.Context, id uuid.UUID) (LeaseResult, error) {
	l, err := s.store.GetLease(ctx, id)
	if err != nil {
		return LeaseResult{}, err
	}
	ps, err := s.store.ListPeriods(ctx, id)
	if err != nil {
		return LeaseResult{}, err
	}
	return LeaseResult{Lease: l, Periods: ps}, nil
}

// UpdateLease applies a patch to an active lease. A change to rent, cadence,
// due day or end date regenerates periods due from today on; earlier or
// touched periods are kept as they are.
func (s *Service) UpdateLease(ctx context.Context, id uuid.UUID, patch LeasePatch, audit types.Audit) (LeaseResult, error) {
	var (
		warnings []string
		events   []event.DomainEvent
	)
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		l, err := tx.GetLease(ctx, id)
		if err != nil {
			return err
		}
		if l.Status != types.LeaseActive {
			return fmt.Errorf("%w: lease %s is %s", ErrLeaseClosed, id, l.Status)
		}
		updated, fields, regen, err := applyLeasePatch(l, patch)
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			return nil
		}
		if err := schedule.Validate(updated); err != nil {
			return err
		}
		updated.UpdatedBy = audit.Actor
		updated.Source = audit.Source

		if regen {
			plan, err := s.regenerate(ctx, tx, &updated)
			if err != nil {
				return err
			}
			warnings = plan.Warnings
			events = append(events, periodsGenerated(updated.ID, "updated", plan))
		}
		if err := tx.UpdateLease(ctx, updated); err != nil {
			return err
		}
		events = append([]event.DomainEvent{event.NewLeaseUpdated(event.LeaseUpdatedPayload{
			LeaseID:    id.String(),
			TenantID:   l.TenantID.String(),
			PropertyID: l.PropertyID.String(),
			Fields:     fields,
		})}, events...)
		return nil
	})
	if err != nil {
		return LeaseResult{}, fmt.Errorf("updating lease %s: %w", id, err)
	}
	s.emit(ctx, audit, events...)

	res, err := s.loadLease(ctx, id)
	if err != nil {
		return LeaseResult{}, err
	}
	res.Warnings = warnings
	return res, nil
}

// applyLeasePatch returns the patched lease, the names of the fields that
// changed, and whether the change affects the period schedule.
func applyLeasePatch(l types.Lease, p LeasePatch) (types.Lease, []string, bool, error) {
	var (
		fields []string
		regen  bool
	)
	if p.Status != nil && *p.Status != l.Status {
		if err := ValidateTransition(leaseTransitions, string(l.Status), string(*p.Status)); err != nil {
			return l, nil, false, err
		}
		if *p.Status == types.LeaseTerminated {
			return l, nil, false, fmt.Errorf("%w: use terminate to end a lease early", ErrInvalid)
		}
		l.Status = *p.Status
		fields = append(fields, "status")
	}
	if p.Rent != nil && !p.Rent.Equal(l.Rent) {
		l.Rent = *p.Rent
		fields = append(fields, "rent")
		regen = true
	}
	if p.Cadence != nil {
		c, err := cadence.Parse(*p.Cadence)
		if err != nil {
			return l, nil, false, &schedule.ValidationError{Problems: []string{err.Error()}}
		}
		if c != l.Cadence {
			l.Cadence = c
			if !c.UsesDueDay() {
				l.RentDueDay = 0
			}
			fields = append(fields, "cadence")
			regen = true
		}
	}
	if p.RentDueDay != nil && *p.RentDueDay != l.RentDueDay {
		l.RentDueDay = *p.RentDueDay
		fields = append(fields, "rent_due_day")
		regen = true
	}
	if p.EndDate != nil && !types.Day(*p.EndDate).Equal(l.EndDate) {
		l.EndDate = types.Day(*p.EndDate)
		fields = append(fields, "end_date")
		regen = true
	}
	if p.MoveInFee != nil && !p.MoveInFee.Equal(l.MoveInFee) {
		l.MoveInFee = *p.MoveInFee
		fields = append(fields, "move_in_fee")
	}
	switch {
	case p.ClearLateFeeOverride && l.LateFeeOverride != nil:
		l.LateFeeOverride = nil
		fields = append(fields, "late_fee_override")
	case p.LateFeeOverride != nil && (l.LateFeeOverride == nil || !p.LateFeeOverride.Equal(*l.LateFeeOverride)):
		v := *p.LateFeeOverride
		l.LateFeeOverride = &v
		fields = append(fields, "late_fee_override")
	}
	if regen && l.Status != types.LeaseActive {
		return l, nil, false, fmt.Errorf("%w: schedule changes need an active lease", ErrInvalid)
	}
	return l, fields, regen, nil
}

// TerminateLease ends a lease early. Untouched periods due after the
// termination date are removed; anything already paid or assessed stays.
// A zero on means today.
func (s *Service) TerminateLease(ctx context.Context, id uuid.UUID, on time.Time, audit types.Audit) (LeaseResult, error) {
	if on.IsZero() {
		on = s.today()
	}
	on = types.Day(on)

	var evt event.DomainEvent
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		l, err := tx.GetLease(ctx, id)
		if err != nil {
			return err
		}
		if err := ValidateTransition(leaseTransitions, string(l.Status), string(types.LeaseTerminated)); err != nil {
			return err
		}
		if on.Before(l.StartDate) || on.After(l.EndDate) {
			return fmt.Errorf("%w: termination date %s outside lease term %s to %s", ErrInvalid,
				types.FormatDate(on), types.FormatDate(l.StartDate), types.FormatDate(l.EndDate))
		}

		existing, err := tx.ListPeriods(ctx, id)
		if err != nil {
			return err
		}
		plan := schedule.PlanTermination(existing, on)
		if err := applyPlan(ctx, tx, plan); err != nil {
			return err
		}

		l.Status = types.LeaseTerminated
		l.TerminatedOn = &on
		l.UpdatedBy = audit.Actor
		l.Source = audit.Source
		if err := tx.UpdateLease(ctx, l); err != nil {
			return err
		}
		evt = event.NewLeaseTerminated(event.LeaseTerminatedPayload{
			LeaseID:        id.String(),
			TenantID:       l.TenantID.String(),
			PropertyID:     l.PropertyID.String(),
			TerminatedOn:   types.FormatDate(on),
			PeriodsRemoved: len(plan.Remove),
		})
		return nil
	})
	if err != nil {
		return LeaseResult{}, fmt.Errorf("terminating lease %s: %w", id, err)
	}
	s.emit(ctx, audit, evt)
	return s.loadLease(ctx, id)
}

// RegeneratePeriods rebuilds a lease's untouched periods from its current
// terms. Running it again with nothing changed yields the same schedule.
// For a lease whose periods never got saved it generates the full term.
func (s *Service) RegeneratePeriods(ctx context.Context, id uuid.UUID, audit types.Audit) (LeaseResult, error) {
	var (
		warnings []string
		evt      event.DomainEvent
	)
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		l, err := tx.GetLease(ctx, id)
		if err != nil {
			return err
		}
		if l.Status != types.LeaseActive && !l.PeriodsPending {
			return fmt.Errorf("%w: lease %s is %s", ErrLeaseClosed, id, l.Status)
		}
		wasPending := l.PeriodsPending
		plan, err := s.regenerate(ctx, tx, &l)
		if err != nil {
			return err
		}
		if wasPending {
			l.UpdatedBy = audit.Actor
			if err := tx.UpdateLease(ctx, l); err != nil {
				return err
			}
		}
		warnings = plan.Warnings
		evt = periodsGenerated(id, "regenerated", plan)
		return nil
	})
	if err != nil {
		return LeaseResult{}, fmt.Errorf("regenerating periods for lease %s: %w", id, err)
	}
	s.emit(ctx, audit, evt)

	res, err := s.loadLease(ctx, id)
	if err != nil {
		return LeaseResult{}, err
	}
	res.Warnings = warnings
	return res, nil
}

// regenerate plans and applies a schedule rebuild for l inside tx and
// clears l.PeriodsPending. The caller saves l.
func (s *Service) regenerate(ctx context.Context, tx store.Tx, l *types.Lease) (schedule.Plan, error) {
	existing, err := tx.ListPeriods(ctx, l.ID)
	if err != nil {
		return schedule.Plan{}, err
	}
	cutoff := s.today()
	if l.PeriodsPending {
		cutoff = l.StartDate
	}
	plan, err := schedule.PlanRegeneration(existing, *l, cutoff)
	if err != nil {
		return schedule.Plan{}, err
	}
	for _, w := range plan.Warnings {
		log.Printf("ledger: %s", w)
	}
	if err := applyPlan(ctx, tx, plan); err != nil {
		return schedule.Plan{}, err
	}
	l.PeriodsPending = false
	return plan, nil
}

func applyPlan(ctx context.Context, tx store.Tx, plan schedule.Plan) error {
	if len(plan.Remove) > 0 {
		ids := make([]uuid.UUID, len(plan.Remove))
		for i, p := range plan.Remove {
			ids[i] = p.ID
		}
		if err := tx.DeletePeriods(ctx, ids); err != nil {
			return err
		}
	}
	return tx.InsertPeriods(ctx, plan.Add)
}

func periodsGenerated(leaseID uuid.UUID, reason string, plan schedule.Plan) event.DomainEvent {
	return event.NewPeriodsGenerated(event.PeriodsGeneratedPayload{
		LeaseID:  leaseID.String(),
		Reason:   reason,
		Added:    len(plan.Add),
		Removed:  len(plan.Remove),
		Kept:     len(plan.Keep),
		Warnings: plan.Warnings,
	})
}

// ActiveLeases returns every active lease.
func (s *Service) ActiveLeases(ctx context.Context) ([]types.Lease, error) {
	return s.store.ActiveLeases(ctx)
}

package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/matthewbaird/rentledger/internal/allocation"
	"github.com/matthewbaird/rentledger/internal/event"
	"github.com/matthewbaird/rentledger/internal/store"
	"github.com/matthewbaird/rentledger/internal/types"
)

// PaymentInput is a payment as entered by an operator. Split, when set,
// replaces oldest-first allocation with an explicit per-period amount.
type PaymentInput struct {
	TenantID   uuid.UUID
	PropertyID uuid.UUID
	PaidOn     time.Time
	Amount     decimal.Decimal
	Type       types.PaymentType
	Notes      string
	Split      map[uuid.UUID]decimal.Decimal
}

// PaymentPatch lists the fields to change on a payment. Changing Amount,
// Type or Split reverses the payment's allocations and allocates it again,
// oldest first unless Split is given. Other edits leave allocations alone.
type PaymentPatch struct {
	PaidOn *time.Time
	Amount *decimal.Decimal
	Type   *types.PaymentType
	Notes  *string
	Split  map[uuid.UUID]decimal.Decimal
}

// PaymentResult is a payment with what it was applied to.
type PaymentResult struct {
	Payment     types.Payment      `json:"payment"`
	Allocations []types.Allocation `json:"allocations"`
	// Allocation is the allocator's report for a payment just recorded or edited.
	Allocation *allocation.Result `json:"allocation,omitempty"`
}

func validatePayment(in PaymentInput) error {
	var problems []string
	if !in.Amount.IsPositive() {
		problems = append(problems, "amount must be greater than zero")
	}
	if !in.Type.Valid() {
		problems = append(problems, fmt.Sprintf("unknown payment type %q", in.Type))
	}
	if in.PaidOn.IsZero() {
		problems = append(problems, "paid_on is required")
	}
	if len(in.Split) > 0 && in.Type != types.PaymentRent {
		problems = append(problems, "allocations apply to rent payments only")
	}
	if in.TenantID == uuid.Nil || in.PropertyID == uuid.Nil {
		problems = append(problems, "tenant_id and property_id are required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// RecordPayment saves a payment and applies it to the tenant's outstanding
// periods at the property in the same transaction. Only rent payments are
// allocated; whatever no period absorbs is kept on the payment as unapplied.
func (s *Service) RecordPayment(ctx context.Context, in PaymentInput, audit types.Audit) (PaymentResult, error) {
	if err := validatePayment(in); err != nil {
		return PaymentResult{}, err
	}
	pay := types.Payment{
		ID:         uuid.New(),
		TenantID:   in.TenantID,
		PropertyID: in.PropertyID,
		PaidOn:     types.Day(in.PaidOn),
		Amount:     in.Amount,
		Type:       in.Type,
		Notes:      in.Notes,
		CreatedBy:  audit.Actor,
		UpdatedBy:  audit.Actor,
		Source:     audit.Source,
	}

	var (
		res allocation.Result
		evt event.DomainEvent
	)
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		res, err = s.allocate(ctx, tx, &pay, in.Split)
		if err != nil {
			return err
		}
		if err := tx.InsertPayment(ctx, pay); err != nil {
			return err
		}
		if err := tx.InsertAllocations(ctx, allocationsOf(pay.ID, res)); err != nil {
			return err
		}
		evt = paymentRecorded(pay, res)
		return nil
	})
	if err != nil {
		return PaymentResult{}, fmt.Errorf("recording payment: %w", err)
	}
	s.emit(ctx, audit, evt)
	return s.paymentResult(ctx, pay.ID, &res)
}

// allocate applies pay to the open periods inside tx, writes the updated
// periods and sets pay.Unapplied. It does not save pay.
func (s *Service) allocate(ctx context.Context, tx store.Tx, pay *types.Payment, split map[uuid.UUID]decimal.Decimal) (allocation.Result, error) {
	if pay.Type != types.PaymentRent {
		pay.Unapplied = pay.Amount
		return allocation.Result{TotalAllocated: decimal.Zero, Unapplied: pay.Amount}, nil
	}
	candidates, err := tx.OpenPeriods(ctx, pay.TenantID, pay.PropertyID)
	if err != nil {
		return allocation.Result{}, err
	}
	var res allocation.Result
	if len(split) > 0 {
		res, err = allocation.Manual(pay.Amount, candidates, split)
	} else {
		res, err = allocation.Auto(pay.Amount, candidates)
	}
	if err != nil {
		return allocation.Result{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	for _, p := range res.Periods {
		if _, err := tx.UpdatePeriod(ctx, p); err != nil {
			return allocation.Result{}, err
		}
	}
	pay.Unapplied = res.Unapplied
	return res, nil
}

// reverse takes every allocation of paymentID back off its period inside tx
// and deletes the allocation rows.
func reverse(ctx context.Context, tx store.Tx, paymentID uuid.UUID) ([]types.Allocation, error) {
	allocs, err := tx.ListAllocations(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	for _, a := range allocs {
		p, err := tx.GetPeriod(ctx, a.PeriodID)
		if err != nil {
			return nil, err
		}
		allocation.Reverse(&p, a.Amount)
		if _, err := tx.UpdatePeriod(ctx, p); err != nil {
			return nil, err
		}
	}
	if err := tx.DeleteAllocations(ctx, paymentID); err != nil {
		return nil, err
	}
	return allocs, nil
}

// UpdatePayment edits a payment. Its previous allocations are reversed and
// the edited payment is allocated again, all in one transaction.
func (s *Service) UpdatePayment(ctx context.Context, id uuid.UUID, patch PaymentPatch, audit types.Audit) (PaymentResult, error) {
	var (
		res       allocation.Result
		events    []event.DomainEvent
		unchanged bool
	)
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		pay, err := tx.GetPayment(ctx, id)
		if err != nil {
			return err
		}
		in := PaymentInput{
			TenantID:   pay.TenantID,
			PropertyID: pay.PropertyID,
			PaidOn:     pay.PaidOn,
			Amount:     pay.Amount,
			Type:       pay.Type,
			Notes:      pay.Notes,
			Split:      patch.Split,
		}
		if patch.PaidOn != nil {
			in.PaidOn = *patch.PaidOn
		}
		if patch.Amount != nil {
			in.Amount = *patch.Amount
		}
		if patch.Type != nil {
			in.Type = *patch.Type
		}
		if patch.Notes != nil {
			in.Notes = *patch.Notes
		}
		if err := validatePayment(in); err != nil {
			return err
		}

		if !reallocates(pay, in) {
			fields := changedDetails(pay, in)
			pay.PaidOn = types.Day(in.PaidOn)
			pay.Notes = in.Notes
			pay.UpdatedBy = audit.Actor
			pay.Source = audit.Source
			if err := tx.UpdatePayment(ctx, pay); err != nil {
				return err
			}
			if len(fields) > 0 {
				events = append(events, event.NewPaymentUpdated(event.PaymentUpdatedPayload{
					PaymentID:  pay.ID.String(),
					TenantID:   pay.TenantID.String(),
					PropertyID: pay.PropertyID.String(),
					Fields:     fields,
				}))
			}
			unchanged = true
			return nil
		}

		reversed, err := reverse(ctx, tx, id)
		if err != nil {
			return err
		}
		prev := pay
		pay.PaidOn = types.Day(in.PaidOn)
		pay.Amount = in.Amount
		pay.Type = in.Type
		pay.Notes = in.Notes
		pay.UpdatedBy = audit.Actor
		pay.Source = audit.Source

		res, err = s.allocate(ctx, tx, &pay, in.Split)
		if err != nil {
			return err
		}
		if err := tx.UpdatePayment(ctx, pay); err != nil {
			return err
		}
		if err := tx.InsertAllocations(ctx, allocationsOf(pay.ID, res)); err != nil {
			return err
		}
		events = append(events, paymentReversed(prev, reversed, "updated"), paymentRecorded(pay, res))
		return nil
	})
	if err != nil {
		return PaymentResult{}, fmt.Errorf("updating payment %s: %w", id, err)
	}
	s.emit(ctx, audit, events...)
	if unchanged {
		return s.paymentResult(ctx, id, nil)
	}
	return s.paymentResult(ctx, id, &res)
}

// reallocates reports whether an edit touches what the payment's
// allocations were computed from.
func reallocates(pay types.Payment, in PaymentInput) bool {
	return len(in.Split) > 0 || !in.Amount.Equal(pay.Amount) || in.Type != pay.Type
}

func changedDetails(pay types.Payment, in PaymentInput) []string {
	var fields []string
	if !types.Day(in.PaidOn).Equal(pay.PaidOn) {
		fields = append(fields, "paid_on")
	}
	if in.Notes != pay.Notes {
		fields = append(fields, "notes")
	}
	return fields
}

// DeletePayment removes a payment and takes its amounts back off the
// periods it was applied to. Period statuses may move backwards.
func (s *Service) DeletePayment(ctx context.Context, id uuid.UUID, audit types.Audit) error {
	var evt event.DomainEvent
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		pay, err := tx.GetPayment(ctx, id)
		if err != nil {
			return err
		}
		reversed, err := reverse(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := tx.DeletePayment(ctx, id); err != nil {
			return err
		}
		evt = paymentReversed(pay, reversed, "deleted")
		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting payment %s: %w", id, err)
	}
	s.emit(ctx, audit, evt)
	return nil
}

// GetPayment returns a payment and its allocations.
func (s *Service) GetPayment(ctx context.Context, id uuid.UUID) (PaymentResult, error) {
	return s.paymentResult(ctx, id, nil)
}

func (s *Service) paymentResult(ctx context.Context, id uuid.UUID, res *allocation.Result) (PaymentResult, error) {
	pay, err := s.store.GetPayment(ctx, id)
	if err != nil {
		return PaymentResult{}, err
	}
	allocs, err := s.store.ListAllocations(ctx, id)
	if err != nil {
		return PaymentResult{}, err
	}
	return PaymentResult{Payment: pay, Allocations: allocs, Allocation: res}, nil
}

func allocationsOf(paymentID uuid.UUID, res allocation.Result) []types.Allocation {
	out := make([]types.Allocation, 0, len(res.Lines))
	for _, line := range res.Lines {
		out = append(out, types.Allocation{PaymentID: paymentID, PeriodID: line.PeriodID, Amount: line.Amount})
	}
	return out
}

func paymentRecorded(pay types.Payment, res allocation.Result) event.DomainEvent {
	lines := make([]event.AllocationLine, len(res.Lines))
	for i, l := range res.Lines {
		lines[i] = event.AllocationLine{PeriodID: l.PeriodID.String(), Amount: l.Amount}
	}
	return event.NewPaymentRecorded(event.PaymentRecordedPayload{
		PaymentID:  pay.ID.String(),
		TenantID:   pay.TenantID.String(),
		PropertyID: pay.PropertyID.String(),
		Type:       string(pay.Type),
		Amount:     pay.Amount,
		Mode:       string(res.Mode),
		Allocated:  res.TotalAllocated,
		Unapplied:  pay.Unapplied,
		Lines:      lines,
	})
}

func paymentReversed(pay types.Payment, allocs []types.Allocation, reason string) event.DomainEvent {
	lines := make([]event.AllocationLine, len(allocs))
	for i, a := range allocs {
		lines[i] = event.AllocationLine{PeriodID: a.PeriodID.String(), Amount: a.Amount}
	}
	return event.NewPaymentReversed(event.PaymentReversedPayload{
		PaymentID:  pay.ID.String(),
		TenantID:   pay.TenantID.String(),
		PropertyID: pay.PropertyID.String(),
		Amount:     pay.Amount,
		Reason:     reason,
		Lines:      lines,
	})
}

// Package allocation applies a payment to outstanding rent periods, either
// oldest-first or by an explicit operator split. It works on copies; the
// caller persists the updated periods and the allocation lines in one
// transaction.
package allocation

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/matthewbaird/rentledger/internal/types"
)

// Mode selects how a payment is spread across periods.
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeManual Mode = "manual"
)

var (
	ErrInvalidAmount  = errors.New("allocation amount must be greater than zero")
	ErrUnknownPeriod  = errors.New("period is not an outstanding candidate")
	ErrOverAllocation = errors.New("allocation exceeds the outstanding balance")
	ErrOverPayment    = errors.New("split exceeds the payment amount")
)

// Line is the part of the payment applied to one period.
type Line struct {
	PeriodID      uuid.UUID       `json:"period_id"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
}

// Result contains the outcome of allocating one payment.
type Result struct {
	Mode           Mode            `json:"mode"`
	Lines          []Line          `json:"lines"`
	TotalAllocated decimal.Decimal `json:"total_allocated"`
	// Unapplied is what remained after every candidate was considered.
	Unapplied decimal.Decimal `json:"unapplied"`
	// Periods holds the updated copy of every period a line touched.
	Periods []types.RentPeriod `json:"-"`
}

// StatusFor derives a period's status from what has been paid against it.
func StatusFor(p types.RentPeriod) types.PeriodStatus {
	switch {
	case !p.AmountPaid.LessThan(p.RentAmount):
		return types.PeriodPaid
	case p.AmountPaid.IsPositive():
		return types.PeriodPartial
	}
	return types.PeriodUnpaid
}

// Outstanding filters candidates to periods with a balance left and orders
// them oldest-first. Ties on due date are broken by ID for a stable order.
func Outstanding(candidates []types.RentPeriod) []types.RentPeriod {
	out := make([]types.RentPeriod, 0, len(candidates))
	for _, p := range candidates {
		if p.Outstanding().IsPositive() {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].DueDate.Before(out[j].DueDate)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// Auto applies amount to the oldest outstanding period first, then the
// next, until the amount or the periods run out.
func Auto(amount decimal.Decimal, candidates []types.RentPeriod) (Result, error) {
	if !amount.IsPositive() {
		return Result{}, ErrInvalidAmount
	}
	res := Result{Mode: ModeAuto, TotalAllocated: decimal.Zero}
	remaining := amount
	for _, p := range Outstanding(candidates) {
		if !remaining.IsPositive() {
			break
		}
		apply := decimal.Min(remaining, p.Outstanding())
		res.add(p, apply)
		remaining = remaining.Sub(apply)
	}
	res.Unapplied = remaining
	return res, nil
}

// Manual applies an operator-chosen split. Every period must be an
// outstanding candidate and no amount may exceed that period's balance or,
// in total, the payment.
func Manual(amount decimal.Decimal, candidates []types.RentPeriod, split map[uuid.UUID]decimal.Decimal) (Result, error) {
	if !amount.IsPositive() {
		return Result{}, ErrInvalidAmount
	}
	byID := make(map[uuid.UUID]types.RentPeriod)
	var order []uuid.UUID
	for _, p := range Outstanding(candidates) {
		byID[p.ID] = p
		order = append(order, p.ID)
	}

	total := decimal.Zero
	for id, amt := range split {
		p, ok := byID[id]
		if !ok {
			return Result{}, fmt.Errorf("%w: %s", ErrUnknownPeriod, id)
		}
		if !amt.IsPositive() {
			return Result{}, fmt.Errorf("%w: period %s", ErrInvalidAmount, id)
		}
		if amt.GreaterThan(p.Outstanding()) {
			return Result{}, fmt.Errorf("%w: period %s owes %s, split gives %s", ErrOverAllocation, id, p.Outstanding(), amt)
		}
		total = total.Add(amt)
	}
	if total.GreaterThan(amount) {
		return Result{}, fmt.Errorf("%w: split %s, payment %s", ErrOverPayment, total, amount)
	}

	res := Result{Mode: ModeManual, TotalAllocated: decimal.Zero}
	for _, id := range order {
		if amt, ok := split[id]; ok {
			res.add(byID[id], amt)
		}
	}
	res.Unapplied = amount.Sub(res.TotalAllocated)
	return res, nil
}

func (r *Result) add(p types.RentPeriod, amount decimal.Decimal) {
	before := p.Outstanding()
	p.AmountPaid = p.AmountPaid.Add(amount)
	p.Status = StatusFor(p)
	r.Lines = append(r.Lines, Line{
		PeriodID:      p.ID,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  p.Outstanding(),
	})
	r.Periods = append(r.Periods, p)
	r.TotalAllocated = r.TotalAllocated.Add(amount)
}

// Reverse takes a previously applied amount back off a period, as when the
// payment that made it is edited or deleted. The status may move backwards.
func Reverse(p *types.RentPeriod, amount decimal.Decimal) {
	p.AmountPaid = p.AmountPaid.Sub(amount)
	if p.AmountPaid.IsNegative() {
		p.AmountPaid = decimal.Zero
	}
	p.Status = StatusFor(*p)
}

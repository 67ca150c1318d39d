package schedule

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/matthewbaird/rentledger/internal/types"
)

// Plan describes how to move a lease's stored periods to a new schedule.
// Keep is never modified; Remove and Add are applied in one transaction.
type Plan struct {
	Keep     []types.RentPeriod
	Remove   []types.RentPeriod
	Add      []types.RentPeriod
	Warnings []string
}

// Replaceable reports whether a stored period may be deleted by a
// regeneration with the given cutoff: it is due on or after the cutoff and
// neither a payment nor a late fee has touched it.
func Replaceable(p types.RentPeriod, cutoff time.Time) bool {
	if types.Day(p.DueDate).Before(types.Day(cutoff)) {
		return false
	}
	if p.Touched() || p.LateFeeApplied.IsPositive() {
		return false
	}
	return p.LateFeeSource != types.LateFeeManual
}

// PlanRegeneration partitions existing into kept and replaced periods and
// generates replacements for the lease's current terms. Only periods due on
// or after cutoff are generated. A generated period due inside the stretch a
// kept period already bills is skipped, so regeneration never bills the same
// days twice. A generated period whose own stretch runs over a kept period
// is added with a warning.
func PlanRegeneration(existing []types.RentPeriod, l types.Lease, cutoff time.Time) (Plan, error) {
	res, err := Generate(l)
	if err != nil {
		return Plan{}, err
	}

	plan := Plan{Warnings: res.Warnings}
	ends := billedUntil(existing)
	var kept []span
	for _, p := range existing {
		if Replaceable(p, cutoff) {
			plan.Remove = append(plan.Remove, p)
			continue
		}
		plan.Keep = append(plan.Keep, p)
		kept = append(kept, span{from: types.Day(p.DueDate), to: ends[p.ID]})
	}

	cut := types.Day(cutoff)
	skipped := 0
	for _, p := range res.Periods {
		if p.DueDate.Before(cut) {
			continue
		}
		if coveredBy(kept, p.DueDate) {
			skipped++
			continue
		}
		next := res.Cadence.Next(p.DueDate)
		for _, k := range kept {
			if k.from.After(p.DueDate) && k.from.Before(next) {
				plan.Warnings = append(plan.Warnings, fmt.Sprintf(
					"lease %s: new period due %s overlaps kept period due %s",
					l.ID, types.FormatDate(p.DueDate), types.FormatDate(k.from)))
			}
		}
		plan.Add = append(plan.Add, p)
	}
	if skipped > 0 {
		plan.Warnings = append(plan.Warnings, fmt.Sprintf(
			"lease %s: %d new periods skipped, already billed by kept periods", l.ID, skipped))
	}
	return plan, nil
}

// span is the stretch of days a stored period bills, from its due date up
// to but not including to.
type span struct {
	from, to time.Time
}

func coveredBy(spans []span, due time.Time) bool {
	for _, s := range spans {
		if due.Equal(s.from) || (due.After(s.from) && due.Before(s.to)) {
			return true
		}
	}
	return false
}

// billedUntil maps each stored period to the end of the stretch it bills:
// the next stored due date, or for the last period the gap before it again.
// A lone period bills only its own due date.
func billedUntil(existing []types.RentPeriod) map[uuid.UUID]time.Time {
	sorted := slices.Clone(existing)
	slices.SortFunc(sorted, func(a, b types.RentPeriod) int { return a.DueDate.Compare(b.DueDate) })

	ends := make(map[uuid.UUID]time.Time, len(sorted))
	for i, p := range sorted {
		due := types.Day(p.DueDate)
		switch {
		case i+1 < len(sorted):
			ends[p.ID] = types.Day(sorted[i+1].DueDate)
		case i > 0:
			ends[p.ID] = due.Add(due.Sub(types.Day(sorted[i-1].DueDate)))
		default:
			ends[p.ID] = due
		}
	}
	return ends
}

// PlanTermination removes the untouched periods that fall due after the
// termination date. Nothing is added.
func PlanTermination(existing []types.RentPeriod, terminatedOn time.Time) Plan {
	var plan Plan
	after := types.Day(terminatedOn).AddDate(0, 0, 1)
	for _, p := range existing {
		if Replaceable(p, after) {
			plan.Remove = append(plan.Remove, p)
			continue
		}
		plan.Keep = append(plan.Keep, p)
	}
	return plan
}

// Empty reports whether applying the plan would change nothing.
func (p Plan) Empty() bool {
	return len(p.Remove) == 0 && len(p.Add) == 0
}

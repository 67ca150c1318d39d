// Package worker contains batch jobs that run ledger operations across
// many leases.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/matthewbaird/rentledger/internal/ledger"
	"github.com/matthewbaird/rentledger/internal/types"
)

// Assessor is the part of the ledger service a sweep needs.
type Assessor interface {
	ActiveLeases(ctx context.Context) ([]types.Lease, error)
	AssessLease(ctx context.Context, leaseID uuid.UUID, asOf time.Time, force bool, audit types.Audit) (ledger.Assessment, error)
}

// SweepReport summarizes one AssessSweep run.
type SweepReport struct {
	AsOf          time.Time       `json:"as_of"`
	Leases        int             `json:"leases"`
	Changed       int             `json:"changed"`
	TotalLateFees decimal.Decimal `json:"total_late_fees"`
	Failed        []uuid.UUID     `json:"failed,omitempty"`
}

// AssessSweep runs late-fee assessment over every active lease.
type AssessSweep struct {
	assessor Assessor
	audit    types.Audit
}

// NewAssessSweep creates a sweep that records its changes under audit.
func NewAssessSweep(a Assessor, audit types.Audit) *AssessSweep {
	return &AssessSweep{assessor: a, audit: audit}
}

// Run assesses each active lease in its own transaction. A lease that
// fails is logged and reported; the rest still run. The returned error
// joins every per-lease failure.
func (w *AssessSweep) Run(ctx context.Context, asOf time.Time, force bool) (SweepReport, error) {
	leases, err := w.assessor.ActiveLeases(ctx)
	if err != nil {
		return SweepReport{}, fmt.Errorf("listing active leases: %w", err)
	}

	report := SweepReport{AsOf: types.Day(asOf), TotalLateFees: decimal.Zero}
	var errs []error
	for _, l := range leases {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res, err := w.assessor.AssessLease(ctx, l.ID, asOf, force, w.audit)
		if err != nil {
			log.Printf("assess_sweep: lease %s: %v", l.ID, err)
			report.Failed = append(report.Failed, l.ID)
			errs = append(errs, err)
			continue
		}
		report.AsOf = res.AsOf
		report.Leases++
		report.Changed += res.Changed
		report.TotalLateFees = report.TotalLateFees.Add(res.TotalLateFees)
	}
	log.Printf("assess_sweep: %d leases assessed as of %s, %d periods changed, %d failed",
		report.Leases, types.FormatDate(report.AsOf), report.Changed, len(report.Failed))
	return report, errors.Join(errs...)
}

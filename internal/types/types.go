// Package types provides the Go structs shared by the rent engine, the store and
// the HTTP layer. Money is carried as decimal.Decimal and persisted as canonical
// decimal strings; calendar dates are time.Time values at UTC midnight.
package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/matthewbaird/rentledger/internal/cadence"
)

// LeaseStatus is the lifecycle state of a lease.
type LeaseStatus string

const (
	LeaseActive     LeaseStatus = "active"
	LeaseEnded      LeaseStatus = "ended"
	LeaseTerminated LeaseStatus = "terminated"
)

// PeriodStatus is the payment state of a rent period.
type PeriodStatus string

const (
	PeriodUnpaid  PeriodStatus = "unpaid"
	PeriodPartial PeriodStatus = "partial"
	PeriodPaid    PeriodStatus = "paid"
)

// LateFeeSource records which write path last set a period's late fee.
// Automatic assessment skips periods whose fee was set manually unless forced.
type LateFeeSource string

const (
	LateFeeNone      LateFeeSource = "none"
	LateFeeAutomatic LateFeeSource = "automatic"
	LateFeeManual    LateFeeSource = "manual"
)

// PaymentType classifies a payment. Only rent payments are allocated to periods.
type PaymentType string

const (
	PaymentRent    PaymentType = "rent"
	PaymentDeposit PaymentType = "deposit"
	PaymentLateFee PaymentType = "late_fee"
	PaymentUtility PaymentType = "utility"
	PaymentOther   PaymentType = "other"
)

// Valid reports whether t is one of the known payment types.
func (t PaymentType) Valid() bool {
	switch t {
	case PaymentRent, PaymentDeposit, PaymentLateFee, PaymentUtility, PaymentOther:
		return true
	}
	return false
}

// Audit holds the audit metadata attached to every write.
type Audit struct {
	Actor         string  `json:"actor"`
	Source        string  `json:"source"`
	CorrelationID *string `json:"correlation_id,omitempty"`
}

// SystemAudit is used for writes that are not attributable to a person,
// such as CLI maintenance commands.
func SystemAudit() Audit {
	return Audit{Actor: "system", Source: "system"}
}

// Lease is the contract that drives period generation.
type Lease struct {
	ID              uuid.UUID        `json:"id"`
	TenantID        uuid.UUID        `json:"tenant_id"`
	PropertyID      uuid.UUID        `json:"property_id"`
	Rent            decimal.Decimal  `json:"rent"`
	Cadence         cadence.Cadence  `json:"cadence"`
	RentDueDay      int              `json:"rent_due_day"`
	StartDate       time.Time        `json:"start_date"`
	EndDate         time.Time        `json:"end_date"`
	Status          LeaseStatus      `json:"status"`
	MoveInFee       decimal.Decimal  `json:"move_in_fee"`
	LateFeeOverride *decimal.Decimal `json:"late_fee_override,omitempty"`
	TerminatedOn    *time.Time       `json:"terminated_on,omitempty"`
	// PeriodsPending is set when the lease was saved but its periods could
	// not be generated; regeneration clears it.
	PeriodsPending bool      `json:"periods_pending"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	CreatedBy      string    `json:"created_by"`
	UpdatedBy      string    `json:"updated_by"`
	Source         string    `json:"source"`
}

// EffectiveEnd is the last date periods may fall on: the end date, or the
// termination date when the lease was terminated early.
func (l Lease) EffectiveEnd() time.Time {
	if l.TerminatedOn != nil && l.TerminatedOn.Before(l.EndDate) {
		return *l.TerminatedOn
	}
	return l.EndDate
}

// RentPeriod is one billing interval's obligation under a lease.
type RentPeriod struct {
	ID         uuid.UUID       `json:"id"`
	LeaseID    uuid.UUID       `json:"lease_id"`
	DueDate    time.Time       `json:"due_date"`
	RentAmount decimal.Decimal `json:"rent_amount"`
	AmountPaid decimal.Decimal `json:"amount_paid"`
	Status     PeriodStatus    `json:"status"`

	LateFeeApplied    decimal.Decimal `json:"late_fee_applied"`
	LateFeeWaived     bool            `json:"late_fee_waived"`
	LateFeeSource     LateFeeSource   `json:"late_fee_source"`
	LateFeeAssessedAt *time.Time      `json:"late_fee_assessed_at,omitempty"`
	LateFeeSetBy      string          `json:"late_fee_set_by,omitempty"`
	LateFeeSetAt      *time.Time      `json:"late_fee_set_at,omitempty"`

	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Outstanding is the rent still owed on the period.
func (p RentPeriod) Outstanding() decimal.Decimal {
	o := p.RentAmount.Sub(p.AmountPaid)
	if o.IsNegative() {
		return decimal.Zero
	}
	return o
}

// Touched reports whether a payment has been applied to the period.
func (p RentPeriod) Touched() bool {
	return p.Status != PeriodUnpaid || p.AmountPaid.IsPositive()
}

// Payment is a single amount received from a tenant.
type Payment struct {
	ID         uuid.UUID       `json:"id"`
	TenantID   uuid.UUID       `json:"tenant_id"`
	PropertyID uuid.UUID       `json:"property_id"`
	PaidOn     time.Time       `json:"paid_on"`
	Amount     decimal.Decimal `json:"amount"`
	Type       PaymentType     `json:"type"`
	Notes      string          `json:"notes,omitempty"`
	// Unapplied is the part of Amount that no period absorbed.
	Unapplied decimal.Decimal `json:"unapplied_amount"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	CreatedBy string          `json:"created_by"`
	UpdatedBy string          `json:"updated_by"`
	Source    string          `json:"source"`
}

// Allocation is the part of a payment applied to one period.
type Allocation struct {
	PaymentID uuid.UUID       `json:"payment_id"`
	PeriodID  uuid.UUID       `json:"period_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// SourceRef identifies an entity referenced by a domain event.
type SourceRef struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Role       string `json:"role"` // "subject", "target", "related", "context"
}

// ActivityEntry is a secondary index entry over the domain event log,
// keyed by a referenced entity. One event produces multiple entries.
type ActivityEntry struct {
	EventID           string          `json:"event_id"`
	EventType         string          `json:"event_type"`
	OccurredAt        time.Time       `json:"occurred_at"`
	IndexedEntityType string          `json:"indexed_entity_type"`
	IndexedEntityID   string          `json:"indexed_entity_id"`
	EntityRole        string          `json:"entity_role"`
	SourceRefs        []SourceRef     `json:"source_refs"`
	Summary           string          `json:"summary"`
	Category          string          `json:"category"`
	Weight            string          `json:"weight"`
	Polarity          string          `json:"polarity"`
	Payload           json.RawMessage `json:"payload"`
}

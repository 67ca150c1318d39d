package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DomainEvent carries the canonical shape of every domain event.
type DomainEvent struct {
	ID               string
	EventType        string
	OccurredAt       time.Time
	AffectedEntities []SourceRef
	Summary          string
	Category         string // "lease", "period", "payment"
	Weight           string // "critical", "major", "minor", "info"
	Polarity         string // "positive", "negative", "neutral"
	Payload          json.RawMessage
	// Audit identifies who caused the event.
	Actor         string
	Source        string
	CorrelationID string
}

func newID() string { return uuid.New().String() }

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

// Short returns the first eight characters of an ID for summaries and logs.
func Short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func newEvent(eventType, category, weight, polarity, summary string, refs []SourceRef, payload any) DomainEvent {
	return DomainEvent{
		ID:               newID(),
		EventType:        eventType,
		OccurredAt:       time.Now(),
		AffectedEntities: refs,
		Summary:          summary,
		Category:         category,
		Weight:           weight,
		Polarity:         polarity,
		Payload:          mustJSON(payload),
	}
}

// WithAudit stamps the audit fields onto a copy of e.
func (e DomainEvent) WithAudit(actor, source, correlationID string) DomainEvent {
	e.Actor, e.Source, e.CorrelationID = actor, source, correlationID
	return e
}

func leaseRefs(leaseID, tenantID, propertyID string) []SourceRef {
	return []SourceRef{
		{EntityType: "lease", EntityID: leaseID, Role: "subject"},
		{EntityType: "tenant", EntityID: tenantID, Role: "related"},
		{EntityType: "property", EntityID: propertyID, Role: "context"},
	}
}

// ── Lease events ─────────────────────────────────────────────────────────────

// LeaseCreatedPayload carries event-specific data for LeaseCreated.
type LeaseCreatedPayload struct {
	LeaseID    string          `json:"lease_id"`
	TenantID   string          `json:"tenant_id"`
	PropertyID string          `json:"property_id"`
	Cadence    string          `json:"cadence"`
	Rent       decimal.Decimal `json:"rent"`
	StartDate  string          `json:"start_date"`
	EndDate    string          `json:"end_date"`
	Periods    int             `json:"periods"`
	Warnings   []string        `json:"warnings,omitempty"`
}

func NewLeaseCreated(p LeaseCreatedPayload) DomainEvent {
	return newEvent("lease_created", "lease", "major", "positive",
		fmt.Sprintf("Lease %s created with %d %s periods", Short(p.LeaseID), p.Periods, p.Cadence),
		leaseRefs(p.LeaseID, p.TenantID, p.PropertyID), p)
}

// LeaseUpdatedPayload carries event-specific data for LeaseUpdated.
type LeaseUpdatedPayload struct {
	LeaseID    string   `json:"lease_id"`
	TenantID   string   `json:"tenant_id"`
	PropertyID string   `json:"property_id"`
	Fields     []string `json:"fields"`
}

func NewLeaseUpdated(p LeaseUpdatedPayload) DomainEvent {
	return newEvent("lease_updated", "lease", "minor", "neutral",
		fmt.Sprintf("Lease %s updated: %v", Short(p.LeaseID), p.Fields),
		leaseRefs(p.LeaseID, p.TenantID, p.PropertyID), p)
}

// LeaseTerminatedPayload carries event-specific data for LeaseTerminated.
type LeaseTerminatedPayload struct {
	LeaseID        string `json:"lease_id"`
	TenantID       string `json:"tenant_id"`
	PropertyID     string `json:"property_id"`
	TerminatedOn   string `json:"terminated_on"`
	PeriodsRemoved int    `json:"periods_removed"`
}

func NewLeaseTerminated(p LeaseTerminatedPayload) DomainEvent {
	return newEvent("lease_terminated", "lease", "major", "negative",
		fmt.Sprintf("Lease %s terminated on %s", Short(p.LeaseID), p.TerminatedOn),
		leaseRefs(p.LeaseID, p.TenantID, p.PropertyID), p)
}

// ── Period events ────────────────────────────────────────────────────────────

// PeriodsGeneratedPayload carries event-specific data for PeriodsGenerated.
type PeriodsGeneratedPayload struct {
	LeaseID  string   `json:"lease_id"`
	Reason   string   `json:"reason"` // "created", "updated", "regenerated"
	Added    int      `json:"added"`
	Removed  int      `json:"removed"`
	Kept     int      `json:"kept"`
	Warnings []string `json:"warnings,omitempty"`
}

func NewPeriodsGenerated(p PeriodsGeneratedPayload) DomainEvent {
	return newEvent("periods_generated", "period", "info", "neutral",
		fmt.Sprintf("Lease %s periods %s: %d added, %d removed", Short(p.LeaseID), p.Reason, p.Added, p.Removed),
		[]SourceRef{{EntityType: "lease", EntityID: p.LeaseID, Role: "subject"}}, p)
}

// PeriodGenerationFailedPayload carries event-specific data for PeriodGenerationFailed.
type PeriodGenerationFailedPayload struct {
	LeaseID string `json:"lease_id"`
	Error   string `json:"error"`
}

func NewPeriodGenerationFailed(p PeriodGenerationFailedPayload) DomainEvent {
	return newEvent("period_generation_failed", "period", "critical", "negative",
		fmt.Sprintf("Lease %s saved without periods: %s", Short(p.LeaseID), p.Error),
		[]SourceRef{{EntityType: "lease", EntityID: p.LeaseID, Role: "subject"}}, p)
}

// LateFeeAssessedPayload carries event-specific data for LateFeeAssessed.
type LateFeeAssessedPayload struct {
	LeaseID     string          `json:"lease_id"`
	PeriodID    string          `json:"period_id"`
	DueDate     string          `json:"due_date"`
	AsOf        string          `json:"as_of"`
	DaysLate    int             `json:"days_late"`
	PeriodsLate int             `json:"periods_late"`
	PreviousFee decimal.Decimal `json:"previous_fee"`
	Fee         decimal.Decimal `json:"fee"`
}

func NewLateFeeAssessed(p LateFeeAssessedPayload) DomainEvent {
	polarity := "negative"
	if p.Fee.IsZero() {
		polarity = "positive"
	}
	return newEvent("late_fee_assessed", "period", "minor", polarity,
		fmt.Sprintf("Late fee on period due %s set to %s (%d days late)", p.DueDate, p.Fee.StringFixed(2), p.DaysLate),
		[]SourceRef{
			{EntityType: "period", EntityID: p.PeriodID, Role: "subject"},
			{EntityType: "lease", EntityID: p.LeaseID, Role: "context"},
		}, p)
}

// LateFeeOverriddenPayload carries event-specific data for LateFeeOverridden.
type LateFeeOverriddenPayload struct {
	LeaseID     string          `json:"lease_id"`
	PeriodID    string          `json:"period_id"`
	PreviousFee decimal.Decimal `json:"previous_fee"`
	Fee         decimal.Decimal `json:"fee"`
	Waived      bool            `json:"waived"`
	SetBy       string          `json:"set_by"`
}

func NewLateFeeOverridden(p LateFeeOverriddenPayload) DomainEvent {
	summary := fmt.Sprintf("Late fee set to %s by %s", p.Fee.StringFixed(2), p.SetBy)
	polarity := "neutral"
	if p.Waived {
		summary = fmt.Sprintf("Late fee waived by %s", p.SetBy)
		polarity = "positive"
	}
	return newEvent("late_fee_overridden", "period", "minor", polarity, summary,
		[]SourceRef{
			{EntityType: "period", EntityID: p.PeriodID, Role: "subject"},
			{EntityType: "lease", EntityID: p.LeaseID, Role: "context"},
		}, p)
}

// ── Payment events ───────────────────────────────────────────────────────────

// AllocationLine is one period's share of a payment.
type AllocationLine struct {
	PeriodID string          `json:"period_id"`
	Amount   decimal.Decimal `json:"amount"`
}

// PaymentRecordedPayload carries event-specific data for PaymentRecorded.
type PaymentRecordedPayload struct {
	PaymentID  string           `json:"payment_id"`
	TenantID   string           `json:"tenant_id"`
	PropertyID string           `json:"property_id"`
	Type       string           `json:"type"`
	Amount     decimal.Decimal  `json:"amount"`
	Mode       string           `json:"mode,omitempty"`
	Allocated  decimal.Decimal  `json:"allocated"`
	Unapplied  decimal.Decimal  `json:"unapplied"`
	Lines      []AllocationLine `json:"lines,omitempty"`
}

func NewPaymentRecorded(p PaymentRecordedPayload) DomainEvent {
	return newEvent("payment_recorded", "payment", "info", "positive",
		fmt.Sprintf("Payment of %s applied to %d periods, %s unapplied", p.Amount.StringFixed(2), len(p.Lines), p.Unapplied.StringFixed(2)),
		paymentRefs(p.PaymentID, p.TenantID, p.PropertyID, p.Lines), p)
}

// PaymentReversedPayload carries event-specific data for PaymentReversed.
type PaymentReversedPayload struct {
	PaymentID  string           `json:"payment_id"`
	TenantID   string           `json:"tenant_id"`
	PropertyID string           `json:"property_id"`
	Amount     decimal.Decimal  `json:"amount"`
	Reason     string           `json:"reason"` // "updated", "deleted"
	Lines      []AllocationLine `json:"lines,omitempty"`
}

func NewPaymentReversed(p PaymentReversedPayload) DomainEvent {
	return newEvent("payment_reversed", "payment", "minor", "negative",
		fmt.Sprintf("Payment %s %s, %d allocations reversed", Short(p.PaymentID), p.Reason, len(p.Lines)),
		paymentRefs(p.PaymentID, p.TenantID, p.PropertyID, p.Lines), p)
}

// PaymentUpdatedPayload carries event-specific data for PaymentUpdated.
type PaymentUpdatedPayload struct {
	PaymentID  string   `json:"payment_id"`
	TenantID   string   `json:"tenant_id"`
	PropertyID string   `json:"property_id"`
	Fields     []string `json:"fields"`
}

// NewPaymentUpdated is an edit that left the payment's allocations in place.
func NewPaymentUpdated(p PaymentUpdatedPayload) DomainEvent {
	return newEvent("payment_updated", "payment", "info", "neutral",
		fmt.Sprintf("Payment %s updated: %v", Short(p.PaymentID), p.Fields),
		paymentRefs(p.PaymentID, p.TenantID, p.PropertyID, nil), p)
}

func paymentRefs(paymentID, tenantID, propertyID string, lines []AllocationLine) []SourceRef {
	refs := []SourceRef{
		{EntityType: "payment", EntityID: paymentID, Role: "subject"},
		{EntityType: "tenant", EntityID: tenantID, Role: "related"},
		{EntityType: "property", EntityID: propertyID, Role: "context"},
	}
	for _, l := range lines {
		refs = append(refs, SourceRef{EntityType: "period", EntityID: l.PeriodID, Role: "target"})
	}
	return refs
}

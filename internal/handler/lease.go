package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/matthewbaird/rentledger/internal/ledger"
	"github.com/matthewbaird/rentledger/internal/types"
)

// LeaseHandler implements HTTP handlers for leases and their rent periods.
type LeaseHandler struct {
	svc *ledger.Service
}

// NewLeaseHandler creates a new LeaseHandler.
func NewLeaseHandler(svc *ledger.Service) *LeaseHandler {
	return &LeaseHandler{svc: svc}
}

type createLeaseRequest struct {
	TenantID        string           `json:"tenant_id" validate:"required,uuid"`
	PropertyID      string           `json:"property_id" validate:"required,uuid"`
	Rent            decimal.Decimal  `json:"rent"`
	Cadence         string           `json:"cadence" validate:"required"`
	RentDueDay      int              `json:"rent_due_day" validate:"omitempty,min=1,max=31"`
	StartDate       string           `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate         string           `json:"end_date" validate:"required,datetime=2006-01-02"`
	MoveInFee       decimal.Decimal  `json:"move_in_fee"`
	LateFeeOverride *decimal.Decimal `json:"late_fee_override,omitempty"`
}

func (h *LeaseHandler) CreateLease(w http.ResponseWriter, r *http.Request) {
	audit, ok := parseAuditContext(w, r)
	if !ok {
		return
	}
	var req createLeaseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	start, _ := types.ParseDate(req.StartDate)
	end, _ := types.ParseDate(req.EndDate)

	res, err := h.svc.CreateLease(r.Context(), ledger.LeaseInput{
		TenantID:        uuid.MustParse(req.TenantID),
		PropertyID:      uuid.MustParse(req.PropertyID),
		Rent:            req.Rent,
		Cadence:         req.Cadence,
		RentDueDay:      req.RentDueDay,
		StartDate:       start,
		EndDate:         end,
		MoveInFee:       req.MoveInFee,
		LateFeeOverride: req.LateFeeOverride,
	}, audit)
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *LeaseHandler) GetLease(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	l, err := h.svc.GetLease(r.Context(), id)
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

type updateLeaseRequest struct {
	Rent                 *decimal.Decimal   `json:"rent,omitempty"`
	Cadence              *string            `json:"cadence,omitempty"`
	RentDueDay           *int               `json:"rent_due_day,omitempty" validate:"omitempty,min=1,max=31"`
	EndDate              *string            `json:"end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	MoveInFee            *decimal.Decimal   `json:"move_in_fee,omitempty"`
	LateFeeOverride      *decimal.Decimal   `json:"late_fee_override,omitempty"`
	ClearLateFeeOverride bool               `json:"clear_late_fee_override,omitempty"`
	Status               *types.LeaseStatus `json:"status,omitempty" validate:"omitempty,oneof=active ended terminated"`
}

// UpdateLease edits a lease. Schedule changes regenerate periods due from
// today on.
func (h *LeaseHandler) UpdateLease(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	audit, ok := parseAuditContext(w, r)
	if !ok {
		return
	}
	var req updateLeaseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	patch := ledger.LeasePatch{
		Rent:                 req.Rent,
		Cadence:              req.Cadence,
		RentDueDay:           req.RentDueDay,
		MoveInFee:            req.MoveInFee,
		LateFeeOverride:      req.LateFeeOverride,
		ClearLateFeeOverride: req.ClearLateFeeOverride,
		Status:               req.Status,
	}
	if req.EndDate != nil {
		end, _ := types.ParseDate(*req.EndDate)
		patch.EndDate = &end
	}
	res, err := h.svc.UpdateLease(r.Context(), id, patch, audit)
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *LeaseHandler) TerminateLease(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	audit, ok := parseAuditContext(w, r)
	if !ok {
		return
	}
	var req struct {
		TerminatedOn string `json:"terminated_on" validate:"omitempty,datetime=2006-01-02"`
	}
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	on, ok := parseDate(w, "terminated_on", req.TerminatedOn)
	if !ok {
		return
	}
	res, err := h.svc.TerminateLease(r.Context(), id, on, audit)
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *LeaseHandler) RegeneratePeriods(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	audit, ok := parseAuditContext(w, r)
	if !ok {
		return
	}
	res, err := h.svc.RegeneratePeriods(r.Context(), id, audit)
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *LeaseHandler) ListPeriods(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	ps, err := h.svc.ListPeriods(r.Context(), id)
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	if ps == nil {
		ps = []types.RentPeriod{}
	}
	writeJSON(w, http.StatusOK, ps)
}

// AssessLease runs late-fee assessment now.
// POST /v1/leases/{id}/assess {as_of?, force?}
func (h *LeaseHandler) AssessLease(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	audit, ok := parseAuditContext(w, r)
	if !ok {
		return
	}
	var req struct {
		AsOf  string `json:"as_of" validate:"omitempty,datetime=2006-01-02"`
		Force bool   `json:"force"`
	}
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	asOf, ok := parseDate(w, "as_of", req.AsOf)
	if !ok {
		return
	}
	res, err := h.svc.AssessLease(r.Context(), id, asOf, req.Force, audit)
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Summary returns what is owed on a lease.
// GET /v1/leases/{id}/summary?as_of=YYYY-MM-DD
func (h *LeaseHandler) Summary(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	asOf, ok := parseDate(w, "as_of", r.URL.Query().Get("as_of"))
	if !ok {
		return
	}
	sum, err := h.svc.Summary(r.Context(), id, asOf)
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// OverrideLateFee sets a period's late fee by hand. Zero waives it.
// PATCH /v1/periods/{id}/late-fee {fee, version?}
func (h *LeaseHandler) OverrideLateFee(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	audit, ok := parseAuditContext(w, r)
	if !ok {
		return
	}
	var req struct {
		Fee     *decimal.Decimal `json:"fee" validate:"required"`
		Version *int             `json:"version,omitempty"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.svc.OverrideLateFee(r.Context(), id, ledger.OverrideInput{Fee: *req.Fee, Version: req.Version}, audit)
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/matthewbaird/rentledger/internal/ledger"
	"github.com/matthewbaird/rentledger/internal/types"
)

// PaymentHandler implements HTTP handlers for payments.
type PaymentHandler struct {
	svc *ledger.Service
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(svc *ledger.Service) *PaymentHandler {
	return &PaymentHandler{svc: svc}
}

type allocationRequest struct {
	PeriodID string          `json:"period_id" validate:"required,uuid"`
	Amount   decimal.Decimal `json:"amount"`
}

type createPaymentRequest struct {
	TenantID   string              `json:"tenant_id" validate:"required,uuid"`
	PropertyID string              `json:"property_id" validate:"required,uuid"`
	PaidOn     string              `json:"paid_on" validate:"required,datetime=2006-01-02"`
	Amount     decimal.Decimal     `json:"amount"`
	Type       string              `json:"type" validate:"omitempty,oneof=rent deposit late_fee utility other"`
	Notes      string              `json:"notes,omitempty" validate:"max=2000"`
	Split      []allocationRequest `json:"allocations,omitempty" validate:"dive"`
}

// split turns the requested allocations into a per-period map. Repeated
// periods are summed.
func split(reqs []allocationRequest) map[uuid.UUID]decimal.Decimal {
	if len(reqs) == 0 {
		return nil
	}
	out := make(map[uuid.UUID]decimal.Decimal, len(reqs))
	for _, a := range reqs {
		id := uuid.MustParse(a.PeriodID)
		out[id] = out[id].Add(a.Amount)
	}
	return out
}

// CreatePayment records a payment and allocates it.
// POST /v1/payments
func (h *PaymentHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	audit, ok := parseAuditContext(w, r)
	if !ok {
		return
	}
	var req createPaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	paidOn, _ := types.ParseDate(req.PaidOn)
	pt := types.PaymentType(req.Type)
	if pt == "" {
		pt = types.PaymentRent
	}
	res, err := h.svc.RecordPayment(r.Context(), ledger.PaymentInput{
		TenantID:   uuid.MustParse(req.TenantID),
		PropertyID: uuid.MustParse(req.PropertyID),
		PaidOn:     paidOn,
		Amount:     req.Amount,
		Type:       pt,
		Notes:      req.Notes,
		Split:      split(req.Split),
	}, audit)
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *PaymentHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	res, err := h.svc.GetPayment(r.Context(), id)
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type updatePaymentRequest struct {
	PaidOn *string             `json:"paid_on,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Amount *decimal.Decimal    `json:"amount,omitempty"`
	Type   *string             `json:"type,omitempty" validate:"omitempty,oneof=rent deposit late_fee utility other"`
	Notes  *string             `json:"notes,omitempty" validate:"omitempty,max=2000"`
	Split  []allocationRequest `json:"allocations,omitempty" validate:"dive"`
}

// UpdatePayment edits a payment, reversing and redoing its allocations.
// PATCH /v1/payments/{id}
func (h *PaymentHandler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	audit, ok := parseAuditContext(w, r)
	if !ok {
		return
	}
	var req updatePaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	patch := ledger.PaymentPatch{
		Amount: req.Amount,
		Notes:  req.Notes,
		Split:  split(req.Split),
	}
	if req.PaidOn != nil {
		d, _ := types.ParseDate(*req.PaidOn)
		patch.PaidOn = &d
	}
	if req.Type != nil {
		pt := types.PaymentType(*req.Type)
		patch.Type = &pt
	}
	res, err := h.svc.UpdatePayment(r.Context(), id, patch, audit)
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// DeletePayment removes a payment and reverses its allocations.
// DELETE /v1/payments/{id}
func (h *PaymentHandler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	audit, ok := parseAuditContext(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeletePayment(r.Context(), id, audit); err != nil {
		errorToHTTP(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/matthewbaird/rentledger/internal/ledger"
	"github.com/matthewbaird/rentledger/internal/schedule"
	"github.com/matthewbaird/rentledger/internal/store"
	"github.com/matthewbaird/rentledger/internal/types"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// writeJSON marshals v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("writeJSON encode error: %v", err)
	}
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}

// decodeJSON decodes the request body into v and checks its validate tags.
// On failure it writes the 400 response and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return false
	}
	if err := validate.Struct(v); err != nil {
		var ve validator.ValidationErrors
		if !errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return false
		}
		fields := make(map[string]string, len(ve))
		problems := make([]string, 0, len(ve))
		for _, fe := range ve {
			fields[fe.Field()] = fe.Tag()
			problems = append(problems, fe.Field()+" failed "+fe.Tag())
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  strings.Join(problems, "; "),
			"code":   "VALIDATION_ERROR",
			"fields": fields,
		})
		return false
	}
	return true
}

// parseUUID extracts and validates a UUID path parameter.
func parseUUID(w http.ResponseWriter, r *http.Request, paramName string) (uuid.UUID, bool) {
	raw := chi.URLParam(r, paramName)
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "invalid UUID: "+raw)
		return uuid.Nil, false
	}
	return id, true
}

// parseDate reads an optional YYYY-MM-DD value. Empty yields the zero time,
// which the ledger reads as today.
func parseDate(w http.ResponseWriter, field, raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, true
	}
	t, err := types.ParseDate(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_DATE", field+" must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return t, true
}

// errorToHTTP maps ledger and store errors to HTTP responses.
func errorToHTTP(w http.ResponseWriter, err error) {
	var verr *schedule.ValidationError
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.As(err, &verr), errors.Is(err, ledger.ErrInvalid):
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, store.ErrActiveLeaseExists):
		writeError(w, http.StatusConflict, "ACTIVE_LEASE_EXISTS", err.Error())
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, "CONFLICT", err.Error())
	case errors.Is(err, ledger.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "INVALID_TRANSITION", err.Error())
	case errors.Is(err, ledger.ErrLeaseClosed):
		writeError(w, http.StatusConflict, "LEASE_CLOSED", err.Error())
	default:
		log.Printf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

// parseAuditContext extracts audit metadata from request headers.
func parseAuditContext(w http.ResponseWriter, r *http.Request) (types.Audit, bool) {
	actor := r.Header.Get("X-Actor")
	if actor == "" {
		writeError(w, http.StatusBadRequest, "MISSING_ACTOR", "X-Actor header is required")
		return types.Audit{}, false
	}
	source := r.Header.Get("X-Source")
	if source == "" {
		source = "user"
	}
	info := types.Audit{
		Actor:  actor,
		Source: source,
	}
	if cid := r.Header.Get("X-Correlation-ID"); cid != "" {
		info.CorrelationID = &cid
	}
	return info, true
}

package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/matthewbaird/rentledger/internal/activity"
	"github.com/matthewbaird/rentledger/internal/types"
)

// ActivityHandler serves the activity feed built from domain events.
type ActivityHandler struct {
	store activity.Store
}

// NewActivityHandler creates a new ActivityHandler.
func NewActivityHandler(store activity.Store) *ActivityHandler {
	return &ActivityHandler{store: store}
}

// HandleGetEntityActivity returns a chronological activity feed for a lease,
// period, payment, tenant or property.
// GET /v1/activity/entity/{entity_type}/{entity_id}
func (h *ActivityHandler) HandleGetEntityActivity(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entity_type")
	entityID := chi.URLParam(r, "entity_id")
	if entityType == "" || entityID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_PARAMS", "entity_type and entity_id are required")
		return
	}

	q := r.URL.Query()
	opts := activity.DefaultQueryOptions()
	if s := q.Get("since"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			opts.Since = &t
		}
	}
	if u := q.Get("until"); u != "" {
		if t, err := time.Parse(time.RFC3339, u); err == nil {
			opts.Until = &t
		}
	}
	if cats := q.Get("categories"); cats != "" {
		opts.Categories = strings.Split(cats, ",")
	}
	if mw := q.Get("min_weight"); mw != "" {
		opts.MinWeight = mw
	}
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			opts.Limit = min(n, 500)
		}
	}
	opts.Cursor = q.Get("cursor")

	entries, nextCursor, totalCount, err := h.store.QueryByEntity(r.Context(), entityType, entityID, opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "QUERY_FAILED", err.Error())
		return
	}
	if entries == nil {
		entries = []types.ActivityEntry{}
	}
	writeJSON(w, http.StatusOK, struct {
		Activities []types.ActivityEntry `json:"activities"`
		NextCursor string                `json:"next_cursor,omitempty"`
		TotalCount int                   `json:"total_count"`
	}{entries, nextCursor, totalCount})
}

// HandleSearchActivity searches event summaries.
// POST /v1/activity/search
func (h *ActivityHandler) HandleSearchActivity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query      string   `json:"query" validate:"required"`
		EntityType string   `json:"entity_type,omitempty"`
		Since      string   `json:"since,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
		Categories []string `json:"categories,omitempty"`
		Limit      int      `json:"limit,omitempty" validate:"omitempty,min=1,max=500"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	opts := activity.DefaultSearchOptions()
	opts.EntityType = req.EntityType
	opts.Categories = req.Categories
	if req.Limit > 0 {
		opts.Limit = req.Limit
	}
	if req.Since != "" {
		if t, err := time.Parse(time.RFC3339, req.Since); err == nil {
			opts.Since = &t
		}
	}

	entries, totalCount, err := h.store.Search(r.Context(), req.Query, opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SEARCH_FAILED", err.Error())
		return
	}
	if entries == nil {
		entries = []types.ActivityEntry{}
	}
	writeJSON(w, http.StatusOK, struct {
		Results    []types.ActivityEntry `json:"results"`
		TotalCount int                   `json:"total_count"`
	}{entries, totalCount})
}

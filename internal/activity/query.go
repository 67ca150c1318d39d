// Package activity stores the per-entity activity feed built from domain
// events. One event becomes one entry per entity it references.
package activity

import (
	"slices"
	"strings"
	"time"

	"github.com/matthewbaird/rentledger/internal/types"
)

// WeightOrder maps event weights to numeric severity (lower = more severe).
var WeightOrder = map[string]int{
	"critical": 1,
	"major":    2,
	"minor":    3,
	"info":     4,
}

// WeightSeverity returns the numeric severity of weight. Unknown weights
// sort after "info".
func WeightSeverity(weight string) int {
	if s, ok := WeightOrder[weight]; ok {
		return s
	}
	return 5
}

// IsAtLeastWeight returns true if actual is at least as severe as minimum.
func IsAtLeastWeight(actual, minimum string) bool {
	return WeightSeverity(actual) <= WeightSeverity(minimum)
}

// QueryOptions controls filtering and pagination for entity activity queries.
type QueryOptions struct {
	Since      *time.Time // default: 6 months ago
	Until      *time.Time // default: now
	Categories []string   // "lease", "period", "payment"
	MinWeight  string     // minimum weight threshold (default: "info")
	Limit      int        // max results (default: 100, max: 500)
	Cursor     string     // occurred_at of the last entry on the previous page
}

// SearchOptions controls filtering for summary search.
type SearchOptions struct {
	EntityType string
	Since      *time.Time
	Categories []string
	Limit      int // max results (default: 20)
}

// DefaultQueryOptions returns QueryOptions with sensible defaults.
func DefaultQueryOptions() QueryOptions {
	sixMonthsAgo := time.Now().AddDate(0, -6, 0)
	now := time.Now()
	return QueryOptions{
		Since:     &sixMonthsAgo,
		Until:     &now,
		MinWeight: "info",
		Limit:     100,
	}
}

// DefaultSearchOptions returns SearchOptions with sensible defaults.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{Limit: 20}
}

func (o QueryOptions) limit() int {
	if o.Limit <= 0 || o.Limit > 500 {
		return 100
	}
	return o.Limit
}

func (o SearchOptions) limit() int {
	if o.Limit <= 0 {
		return 20
	}
	return o.Limit
}

// minWeights lists the weights that pass a MinWeight filter, or nil when
// the filter admits everything.
func minWeights(minimum string) []string {
	if minimum == "" || minimum == "info" {
		return nil
	}
	var out []string
	for w := range WeightOrder {
		if IsAtLeastWeight(w, minimum) {
			out = append(out, w)
		}
	}
	return out
}

// admits reports whether e passes every filter except the cursor.
func (o QueryOptions) admits(e types.ActivityEntry) bool {
	switch {
	case o.Since != nil && e.OccurredAt.Before(*o.Since):
		return false
	case o.Until != nil && e.OccurredAt.After(*o.Until):
		return false
	case len(o.Categories) > 0 && !slices.Contains(o.Categories, e.Category):
		return false
	case o.MinWeight != "" && !IsAtLeastWeight(e.Weight, o.MinWeight):
		return false
	}
	return true
}

// admits reports whether e matches the lowered search text q and the
// filters.
func (o SearchOptions) admits(e types.ActivityEntry, q string) bool {
	switch {
	case !strings.Contains(strings.ToLower(e.Summary), q):
		return false
	case o.EntityType != "" && e.IndexedEntityType != o.EntityType:
		return false
	case o.Since != nil && e.OccurredAt.Before(*o.Since):
		return false
	case len(o.Categories) > 0 && !slices.Contains(o.Categories, e.Category):
		return false
	}
	return true
}

// parseCursor returns the cursor time, or nil when the cursor is empty or
// malformed. A malformed cursor restarts from the newest entry.
func parseCursor(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil
	}
	return &t
}

func cursorOf(e types.ActivityEntry) string {
	return e.OccurredAt.Format(time.RFC3339Nano)
}
